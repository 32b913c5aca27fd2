package auth

import (
	"fmt"
	"unicode"
)

// PasswordPolicy defines password complexity requirements.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// DefaultPasswordPolicy returns the policy applied to reset passwords.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
		RequireSpecial:   true,
	}
}

// Violations returns one message per unmet requirement. An empty slice means
// the password satisfies the policy.
func (p *PasswordPolicy) Violations(password string) []string {
	var violations []string

	if p.MinLength > 0 && len(password) < p.MinLength {
		violations = append(violations, fmt.Sprintf("password must be at least %d characters long", p.MinLength))
	}
	if p.RequireUppercase && !containsUppercase(password) {
		violations = append(violations, "password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !containsLowercase(password) {
		violations = append(violations, "password must contain at least one lowercase letter")
	}
	if p.RequireNumber && !containsNumber(password) {
		violations = append(violations, "password must contain at least one number")
	}
	if p.RequireSpecial && !containsSpecial(password) {
		violations = append(violations, "password must contain at least one special character")
	}

	return violations
}

// containsUppercase checks if string contains at least one uppercase letter.
func containsUppercase(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// containsLowercase checks if string contains at least one lowercase letter.
func containsLowercase(s string) bool {
	for _, r := range s {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

// containsNumber checks if string contains at least one digit.
func containsNumber(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// containsSpecial checks if string contains at least one special character.
func containsSpecial(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

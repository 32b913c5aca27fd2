package auth

import (
	"net/mail"
	"strings"

	"github.com/clinicore/authd/pkg/domain"
)

// NormalizeEmail lowercases and trims an email address for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail reports whether the input is a plausible email address.
// Returns domain.ErrInvalidEmail when it is not.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > 254 {
		return domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return domain.ErrInvalidEmail
	}
	return nil
}

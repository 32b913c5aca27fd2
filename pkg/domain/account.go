package domain

import "time"

// Account roles.
const (
	RoleAdmin    = "admin"
	RoleStandard = "standard"
)

// Account statuses.
const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

// Account represents a user account of the clinical-data application.
// Email is stored lowercased and is unique among non-deleted accounts.
type Account struct {
	ID                  string
	Email               string
	PasswordHash        string
	Name                string
	Role                string
	Status              string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	// IsProtected marks the seeded static admin account. A protected account
	// can never be locked out of existence by admin workflows: deactivation
	// and deletion must be refused regardless of Status or IsDeleted.
	IsProtected bool
	IsDeleted   bool
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsLockedAt reports whether the account is locked out at the given instant.
func (a *Account) IsLockedAt(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// LockExpiredAt reports whether a past lockout is still recorded on the row
// and should be lazily cleared before the next credential check.
func (a *Account) LockExpiredAt(now time.Time) bool {
	return a.LockedUntil != nil && !now.Before(*a.LockedUntil)
}

// IsActive reports whether the account may hold a session.
func (a *Account) IsActive() bool {
	return a.Status == StatusActive && !a.IsDeleted
}

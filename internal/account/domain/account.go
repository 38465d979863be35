package domain

import (
	"errors"
	"time"
)

// Account is a local account owned by the account store. Externally registered
// accounts have an empty PasswordHash and at least one ExternalLogin.
type Account struct {
	ID           string
	Username     string
	PasswordHash string // empty for external-only accounts
	Status       AccountStatus
	FailedLogins int
	LockedUntil  *time.Time // nil when not locked
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusDisabled AccountStatus = "disabled"
)

// Validate validates the account for persistence.
func (a *Account) Validate() error {
	if a.Username == "" {
		return errors.New("username is required")
	}
	if a.Status == "" {
		a.Status = AccountStatusActive
	}
	return nil
}

// Locked reports whether the account is locked out at the given instant.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// ExternalLogin links an identity asserted by an external provider to a local
// account. A (Provider, ProviderKey) pair maps to at most one account; the
// store enforces this.
type ExternalLogin struct {
	ID          string
	AccountID   string
	Provider    string
	ProviderKey string
	CreatedAt   time.Time
}

package repository

import (
	"context"
	"errors"
	"time"

	"tenant-identity-provider/internal/account/domain"
)

// Store-level uniqueness violations. The store is the authority for these:
// callers must act on the store's result, never on a prior read.
var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrLoginAlreadyLinked = errors.New("external login already linked to an account")
)

// Repository defines persistence for accounts and their external logins.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	// GetByLogin returns the account linked to (provider, providerKey), or nil
	// if no account is linked.
	GetByLogin(ctx context.Context, provider, providerKey string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	// CreateWithLogin creates the account and links the external login in a
	// single transaction. If linking fails the account creation is rolled
	// back; no orphaned account survives. Returns ErrUsernameTaken or
	// ErrLoginAlreadyLinked on the corresponding uniqueness violation.
	CreateWithLogin(ctx context.Context, a *domain.Account, l *domain.ExternalLogin) error
	// UpdateLoginAttempts records the failed-login counter and lockout
	// deadline for the account.
	UpdateLoginAttempts(ctx context.Context, id string, failedLogins int, lockedUntil *time.Time) error
}

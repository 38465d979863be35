// Package session establishes and terminates signed-in sessions. The Manager
// is the only code path that sees plaintext passwords; callers must not retain
// them after the authentication call returns.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	accountdomain "tenant-identity-provider/internal/account/domain"
	"tenant-identity-provider/internal/security"
	"tenant-identity-provider/internal/session/domain"
	"tenant-identity-provider/internal/session/repository"
)

// Sentinel errors for sign-in; the login flow maps them to result variants.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked out")
	ErrInvalidSession     = errors.New("invalid or expired session")
)

// AccountRepo is the minimal account repository needed by the session manager.
type AccountRepo interface {
	GetByUsername(ctx context.Context, username string) (*accountdomain.Account, error)
	UpdateLoginAttempts(ctx context.Context, id string, failedLogins int, lockedUntil *time.Time) error
}

// SignInResult holds the established session and the token that binds the
// browser cookie to it.
type SignInResult struct {
	Session *domain.Session
	Token   string
}

// Manager validates credentials, applies the lockout policy, and owns
// session lifecycle (create, validate, revoke).
type Manager struct {
	sessions        repository.Repository
	accounts        AccountRepo
	hasher          *security.Hasher
	tokens          *security.TokenProvider
	sessionTTL      time.Duration
	maxFailedLogins int
	lockoutDuration time.Duration
}

// NewManager returns a Manager with the given dependencies. maxFailedLogins
// consecutive failures lock the account for lockoutDuration.
func NewManager(
	sessions repository.Repository,
	accounts AccountRepo,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	sessionTTL time.Duration,
	maxFailedLogins int,
	lockoutDuration time.Duration,
) *Manager {
	if maxFailedLogins <= 0 {
		maxFailedLogins = 5
	}
	if lockoutDuration <= 0 {
		lockoutDuration = 15 * time.Minute
	}
	return &Manager{
		sessions:        sessions,
		accounts:        accounts,
		hasher:          hasher,
		tokens:          tokens,
		sessionTTL:      sessionTTL,
		maxFailedLogins: maxFailedLogins,
		lockoutDuration: lockoutDuration,
	}
}

// PasswordSignIn authenticates username/password and establishes a session.
// Returns ErrAccountLocked when the lockout policy blocks the attempt and
// ErrInvalidCredentials for every other authentication failure, so callers
// cannot distinguish an unknown username from a wrong password.
func (m *Manager) PasswordSignIn(ctx context.Context, username, password, tenantID, ip string) (*SignInResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	acct, err := m.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if acct == nil || acct.Status != accountdomain.AccountStatusActive {
		return nil, ErrInvalidCredentials
	}
	now := time.Now().UTC()
	if acct.Locked(now) {
		return nil, ErrAccountLocked
	}
	if acct.PasswordHash == "" {
		// External-only account; no password to check.
		return nil, ErrInvalidCredentials
	}
	if err := m.hasher.Compare(acct.PasswordHash, []byte(password)); err != nil {
		return nil, m.recordFailure(ctx, acct, now)
	}
	if acct.FailedLogins > 0 || acct.LockedUntil != nil {
		if err := m.accounts.UpdateLoginAttempts(ctx, acct.ID, 0, nil); err != nil {
			return nil, err
		}
	}
	return m.SignIn(ctx, acct.ID, tenantID, ip)
}

// recordFailure bumps the failed-login counter and locks the account when the
// threshold is crossed. The attempt that trips the lock observes ErrAccountLocked.
func (m *Manager) recordFailure(ctx context.Context, acct *accountdomain.Account, now time.Time) error {
	failed := acct.FailedLogins + 1
	var lockedUntil *time.Time
	if failed >= m.maxFailedLogins {
		t := now.Add(m.lockoutDuration)
		lockedUntil = &t
		failed = 0
	}
	if err := m.accounts.UpdateLoginAttempts(ctx, acct.ID, failed, lockedUntil); err != nil {
		return err
	}
	if lockedUntil != nil {
		return ErrAccountLocked
	}
	return ErrInvalidCredentials
}

// SignIn establishes a session for an already-authenticated account and
// returns the session plus its signed token.
func (m *Manager) SignIn(ctx context.Context, accountID, tenantID, ip string) (*SignInResult, error) {
	now := time.Now().UTC()
	sess := &domain.Session{
		ID:        uuid.New().String(),
		AccountID: accountID,
		TenantID:  tenantID,
		ExpiresAt: now.Add(m.sessionTTL),
		IPAddress: ip,
		CreatedAt: now,
	}
	token, _, err := m.tokens.IssueSession(sess.ID, accountID, tenantID)
	if err != nil {
		return nil, err
	}
	if err := m.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &SignInResult{Session: sess, Token: token}, nil
}

// SignOut revokes the session bound to the given token. Idempotent: an
// invalid, expired, or already-revoked token is not an error.
func (m *Manager) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	sessionID, _, _, err := m.tokens.ValidateSession(token)
	if err != nil {
		return nil
	}
	return m.sessions.Revoke(ctx, sessionID)
}

// Validate returns the live session bound to the token, or ErrInvalidSession
// when the token is bad or the session is revoked or expired.
func (m *Manager) Validate(ctx context.Context, token string) (*domain.Session, error) {
	sessionID, _, _, err := m.tokens.ValidateSession(token)
	if err != nil {
		return nil, ErrInvalidSession
	}
	sess, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if sess == nil || !sess.Live(now) {
		return nil, ErrInvalidSession
	}
	_ = m.sessions.UpdateLastSeen(ctx, sessionID, now)
	return sess, nil
}

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	accountdomain "tenant-identity-provider/internal/account/domain"
	"tenant-identity-provider/internal/security"
	"tenant-identity-provider/internal/session/domain"
)

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Session
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id], nil
}

func (r *memSessionRepo) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s2 := *s
	r.m[s.ID] = &s2
	return nil
}

func (r *memSessionRepo) Revoke(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok && s.RevokedAt == nil {
		t := time.Now()
		s.RevokedAt = &t
	}
	return nil
}

func (r *memSessionRepo) RevokeAllByAccount(ctx context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := time.Now()
	for _, s := range r.m {
		if s.AccountID == accountID && s.RevokedAt == nil {
			s.RevokedAt = &t
		}
	}
	return nil
}

func (r *memSessionRepo) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	return nil
}

type memAccountRepo struct {
	mu sync.Mutex
	m  map[string]*accountdomain.Account
}

func (r *memAccountRepo) GetByUsername(ctx context.Context, username string) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.m {
		if a.Username == username {
			a2 := *a
			return &a2, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) UpdateLoginAttempts(ctx context.Context, id string, failedLogins int, lockedUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.m[id]; ok {
		a.FailedLogins = failedLogins
		a.LockedUntil = lockedUntil
	}
	return nil
}

func newTestManager(t *testing.T) (*Manager, *memAccountRepo, *memSessionRepo) {
	t.Helper()
	hasher := security.NewHasher(4)
	hash, err := hasher.Hash([]byte("correctpw"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	accounts := &memAccountRepo{m: map[string]*accountdomain.Account{
		"a1": {
			ID:           "a1",
			Username:     "alice",
			PasswordHash: hash,
			Status:       accountdomain.AccountStatusActive,
			CreatedAt:    time.Now().UTC(),
			UpdatedAt:    time.Now().UTC(),
		},
	}}
	sessions := &memSessionRepo{m: make(map[string]*domain.Session)}
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	return NewManager(sessions, accounts, hasher, tokens, time.Hour, 3, 10*time.Minute), accounts, sessions
}

func TestManager_PasswordSignIn(t *testing.T) {
	m, _, sessions := newTestManager(t)
	ctx := context.Background()

	res, err := m.PasswordSignIn(ctx, "alice", "correctpw", "", "127.0.0.1")
	if err != nil {
		t.Fatalf("PasswordSignIn: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected session token")
	}
	if res.Session.AccountID != "a1" {
		t.Errorf("AccountID = %q, want a1", res.Session.AccountID)
	}
	if _, ok := sessions.m[res.Session.ID]; !ok {
		t.Error("session not persisted")
	}
}

func TestManager_PasswordSignInWrongPassword(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.PasswordSignIn(ctx, "alice", "wrongpw", "", ""); err != ErrInvalidCredentials {
		t.Errorf("wrong password: want ErrInvalidCredentials, got %v", err)
	}
	if _, err := m.PasswordSignIn(ctx, "nobody", "whatever", "", ""); err != ErrInvalidCredentials {
		t.Errorf("unknown user: want ErrInvalidCredentials, got %v", err)
	}
	if _, err := m.PasswordSignIn(ctx, "alice", "", "", ""); err != ErrInvalidCredentials {
		t.Errorf("empty password: want ErrInvalidCredentials, got %v", err)
	}
}

func TestManager_LockoutAfterRepeatedFailures(t *testing.T) {
	m, accounts, _ := newTestManager(t)
	ctx := context.Background()

	// Threshold is 3: two plain failures, the third trips the lock.
	for i := 0; i < 2; i++ {
		if _, err := m.PasswordSignIn(ctx, "alice", "wrongpw", "", ""); err != ErrInvalidCredentials {
			t.Fatalf("attempt %d: want ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	if _, err := m.PasswordSignIn(ctx, "alice", "wrongpw", "", ""); err != ErrAccountLocked {
		t.Fatalf("third failure: want ErrAccountLocked, got %v", err)
	}
	if accounts.m["a1"].LockedUntil == nil {
		t.Fatal("lockout deadline not recorded")
	}
	// Correct password is still rejected while locked.
	if _, err := m.PasswordSignIn(ctx, "alice", "correctpw", "", ""); err != ErrAccountLocked {
		t.Errorf("locked account: want ErrAccountLocked, got %v", err)
	}
}

func TestManager_LockoutExpires(t *testing.T) {
	m, accounts, _ := newTestManager(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	accounts.m["a1"].LockedUntil = &past

	res, err := m.PasswordSignIn(ctx, "alice", "correctpw", "", "")
	if err != nil {
		t.Fatalf("expired lockout should allow sign-in: %v", err)
	}
	if res.Token == "" {
		t.Error("expected session token")
	}
	if accounts.m["a1"].LockedUntil != nil {
		t.Error("lockout deadline should be cleared on success")
	}
}

func TestManager_ExternalOnlyAccountRejectsPassword(t *testing.T) {
	m, accounts, _ := newTestManager(t)
	ctx := context.Background()
	accounts.m["a1"].PasswordHash = ""

	if _, err := m.PasswordSignIn(ctx, "alice", "correctpw", "", ""); err != ErrInvalidCredentials {
		t.Errorf("external-only account: want ErrInvalidCredentials, got %v", err)
	}
}

func TestManager_SignOutIdempotent(t *testing.T) {
	m, _, sessions := newTestManager(t)
	ctx := context.Background()

	res, err := m.PasswordSignIn(ctx, "alice", "correctpw", "", "")
	if err != nil {
		t.Fatalf("PasswordSignIn: %v", err)
	}
	if err := m.SignOut(ctx, res.Token); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if sessions.m[res.Session.ID].RevokedAt == nil {
		t.Fatal("session not revoked")
	}
	// Second sign-out and garbage tokens are no-ops.
	if err := m.SignOut(ctx, res.Token); err != nil {
		t.Errorf("repeat SignOut: %v", err)
	}
	if err := m.SignOut(ctx, "garbage"); err != nil {
		t.Errorf("SignOut(garbage): %v", err)
	}
	if err := m.SignOut(ctx, ""); err != nil {
		t.Errorf("SignOut(empty): %v", err)
	}
}

func TestManager_Validate(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	res, err := m.PasswordSignIn(ctx, "alice", "correctpw", "finbuckle", "")
	if err != nil {
		t.Fatalf("PasswordSignIn: %v", err)
	}
	sess, err := m.Validate(ctx, res.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if sess.TenantID != "finbuckle" {
		t.Errorf("TenantID = %q, want finbuckle", sess.TenantID)
	}

	if err := m.SignOut(ctx, res.Token); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := m.Validate(ctx, res.Token); err != ErrInvalidSession {
		t.Errorf("revoked session: want ErrInvalidSession, got %v", err)
	}
	if _, err := m.Validate(ctx, "garbage"); err != ErrInvalidSession {
		t.Errorf("garbage token: want ErrInvalidSession, got %v", err)
	}
}

package interaction

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogoutContext is the state behind a logoutId: which relying party asked for
// the logout and where it wants the browser sent afterwards.
type LogoutContext struct {
	ClientID              string
	PostLogoutRedirectURI string
}

type logoutEntry struct {
	ctx       LogoutContext
	expiresAt time.Time
}

// LogoutStore is an in-memory TTL store of pending logout contexts keyed by
// logoutId. Contexts are single-use: a read removes the entry.
type LogoutStore struct {
	mu   sync.Mutex
	m    map[string]logoutEntry
	ttl  time.Duration
	nowF func() time.Time
}

// NewLogoutStore returns a store whose entries live for ttl.
func NewLogoutStore(ttl time.Duration) *LogoutStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LogoutStore{
		m:    make(map[string]logoutEntry),
		ttl:  ttl,
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a logout context and returns its opaque logoutId.
func (s *LogoutStore) Create(ctx context.Context, lc LogoutContext) string {
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = logoutEntry{ctx: lc, expiresAt: s.nowF().Add(s.ttl)}
	return id
}

// Get returns the logout context for logoutId and removes it. Returns ok
// false for an unknown, expired, or already-consumed id; the logout flow then
// targets the default landing page.
func (s *LogoutStore) Get(ctx context.Context, logoutID string) (*LogoutContext, bool) {
	if logoutID == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[logoutID]
	if !ok {
		return nil, false
	}
	delete(s.m, logoutID)
	if !e.expiresAt.After(s.nowF()) {
		return nil, false
	}
	lc := e.ctx
	return &lc, true
}

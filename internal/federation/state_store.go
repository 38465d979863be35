package federation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// PendingLogin tracks one external challenge from hand-off until the login
// info is consumed. Info stays nil until the callback completes the exchange.
type PendingLogin struct {
	StateID   string
	Scheme    string
	ReturnURL string
	Nonce     string
	Info      *ExternalLoginInfo
	ExpiresAt time.Time
}

// StateStore is an in-memory TTL store of in-flight external logins, keyed by
// the opaque state value round-tripped through the provider. Entries expire
// when the user abandons the flow; expired or deleted entries read as absent,
// which the login flow surfaces as the no-info outcome.
type StateStore struct {
	mu   sync.Mutex
	m    map[string]*PendingLogin
	ttl  time.Duration
	nowF func() time.Time
}

// NewStateStore returns a store whose entries live for ttl.
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{
		m:    make(map[string]*PendingLogin),
		ttl:  ttl,
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Begin records a new challenge for the scheme and returns the state and
// nonce to bind into the provider hand-off.
func (s *StateStore) Begin(ctx context.Context, scheme, returnURL string) (stateID, nonce string, err error) {
	stateID, err = randomToken()
	if err != nil {
		return "", "", err
	}
	nonce, err = randomToken()
	if err != nil {
		return "", "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[stateID] = &PendingLogin{
		StateID:   stateID,
		Scheme:    scheme,
		ReturnURL: returnURL,
		Nonce:     nonce,
		ExpiresAt: s.nowF().Add(s.ttl),
	}
	return stateID, nonce, nil
}

// Get returns the pending login for stateID, or ok false when the state is
// unknown or expired. Expired entries are removed on read.
func (s *StateStore) Get(ctx context.Context, stateID string) (*PendingLogin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[stateID]
	if !ok {
		return nil, false
	}
	if !p.ExpiresAt.After(s.nowF()) {
		delete(s.m, stateID)
		return nil, false
	}
	p2 := *p
	return &p2, true
}

// Complete attaches the verified login info to the pending state. Returns
// false when the state is unknown or expired.
func (s *StateStore) Complete(ctx context.Context, stateID string, info *ExternalLoginInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[stateID]
	if !ok || !p.ExpiresAt.After(s.nowF()) {
		delete(s.m, stateID)
		return false
	}
	p.Info = info
	return true
}

// Delete removes the state; called once the login info has been consumed.
func (s *StateStore) Delete(ctx context.Context, stateID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, stateID)
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

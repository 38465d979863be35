package domain

import "time"

// Session represents a signed-in browser session for a local account.
type Session struct {
	ID         string
	AccountID  string
	TenantID   string // empty when the login carried no tenant context
	ExpiresAt  time.Time
	RevokedAt  *time.Time // nil when not revoked
	LastSeenAt *time.Time
	IPAddress  string
	CreatedAt  time.Time
}

// Live reports whether the session is usable at the given instant.
func (s *Session) Live(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

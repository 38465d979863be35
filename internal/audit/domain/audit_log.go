package domain

import "time"

// AuditLog is one recorded authentication event.
type AuditLog struct {
	ID        string
	TenantID  string
	AccountID string // empty when the event has no authenticated account
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}

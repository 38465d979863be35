// Package telemetry defines the authentication event stream exported to the
// observability backend.
package telemetry

import (
	"context"
	"time"
)

// Event is one authentication event (login, external link, logout).
type Event struct {
	TenantID  string
	AccountID string
	SessionID string
	EventType string
	Source    string
	Metadata  string
	CreatedAt time.Time
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// Package audit records authentication events (logins, external links,
// logouts) for operators. Recording is best-effort and never fails a flow.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"tenant-identity-provider/internal/audit/domain"
	auditrepo "tenant-identity-provider/internal/audit/repository"
	"tenant-identity-provider/internal/telemetry"
	telemetryotel "tenant-identity-provider/internal/telemetry/otel"
)

// SentinelTenantID is the tenant_id used for events with no tenant context
// (e.g. a failed login before any tenant is known).
const SentinelTenantID = "_none"

// Actions recorded by the login, linking, and logout flows.
const (
	ActionLoginSuccess     = "login_success"
	ActionLoginFailure     = "login_failure"
	ActionLoginLocked      = "login_locked"
	ActionExternalLink     = "external_link"
	ActionExternalRegister = "external_register"
	ActionRegister         = "register"
	ActionLogout           = "logout"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, tenantID, accountID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	emitter     telemetry.EventEmitter
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor
// for client IP. ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// WithEmitter also mirrors every event to the telemetry emitter. Emission is
// asynchronous and best-effort.
func (l *Logger) WithEmitter(e telemetry.EventEmitter) *Logger {
	l.emitter = e
	return l
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, tenantID, accountID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if tenantID == "" {
		tenantID = SentinelTenantID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		AccountID: accountID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
	if l.emitter != nil {
		telemetryotel.EmitAsync(l.emitter, &telemetry.Event{
			TenantID:  entry.TenantID,
			AccountID: entry.AccountID,
			EventType: entry.Action,
			Source:    entry.Resource,
			Metadata:  entry.Metadata,
			CreatedAt: entry.CreatedAt,
		})
	}
}

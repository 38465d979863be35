package service

import (
	"context"

	"tenant-identity-provider/internal/audit"
	"tenant-identity-provider/internal/auth/domain"
	"tenant-identity-provider/internal/interaction"
)

// SessionTerminator revokes the session bound to a token.
type SessionTerminator interface {
	SignOut(ctx context.Context, token string) error
}

// LogoutService ends the session and decides where the browser goes next.
type LogoutService struct {
	sessions   SessionTerminator
	logouts    *interaction.LogoutStore
	clients    *interaction.ClientRegistry
	defaultURL string
	auditLog   audit.AuditLogger
}

// NewLogoutService returns a LogoutService. defaultURL is the landing page
// used when no valid client redirect exists. auditLog may be nil.
func NewLogoutService(
	sessions SessionTerminator,
	logouts *interaction.LogoutStore,
	clients *interaction.ClientRegistry,
	defaultURL string,
	auditLog audit.AuditLogger,
) *LogoutService {
	if defaultURL == "" {
		defaultURL = "/"
	}
	return &LogoutService{
		sessions:   sessions,
		logouts:    logouts,
		clients:    clients,
		defaultURL: defaultURL,
		auditLog:   auditLog,
	}
}

// PrepareLogout records the relying party's end-session request and returns
// the logoutId the confirmation page carries. An unregistered post-logout URI
// is dropped here; the logout will target the default landing page.
func (s *LogoutService) PrepareLogout(ctx context.Context, clientID, postLogoutURI string) string {
	if !s.clients.ValidPostLogoutURI(clientID, postLogoutURI) {
		postLogoutURI = ""
	}
	return s.logouts.Create(ctx, interaction.LogoutContext{
		ClientID:              clientID,
		PostLogoutRedirectURI: postLogoutURI,
	})
}

// Logout revokes the session behind token and resolves the post-logout
// redirect. Idempotent: a missing or already-revoked session still succeeds.
// The stored redirect URI is re-validated against the client registry before
// use; anything unregistered falls back to the default landing page.
func (s *LogoutService) Logout(ctx context.Context, token, logoutID string) (*domain.RedirectTarget, error) {
	if err := s.sessions.SignOut(ctx, token); err != nil {
		return nil, err
	}
	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, "", "", audit.ActionLogout, "auth", "")
	}
	target := domain.RedirectTarget{URL: s.defaultURL, Default: true}
	lc, ok := s.logouts.Get(ctx, logoutID)
	if !ok {
		return &target, nil
	}
	if s.clients.ValidPostLogoutURI(lc.ClientID, lc.PostLogoutRedirectURI) {
		target = domain.RedirectTarget{URL: lc.PostLogoutRedirectURI}
	}
	return &target, nil
}

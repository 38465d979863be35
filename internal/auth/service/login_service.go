// Package service implements the login, external-linking, and logout flows.
// All persistence and protocol work is delegated to collaborators; the
// services own only the branching between their typed outcomes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	accountdomain "tenant-identity-provider/internal/account/domain"
	accountrepo "tenant-identity-provider/internal/account/repository"
	"tenant-identity-provider/internal/audit"
	"tenant-identity-provider/internal/auth/domain"
	"tenant-identity-provider/internal/federation"
	"tenant-identity-provider/internal/security"
	"tenant-identity-provider/internal/server/middleware"
	"tenant-identity-provider/internal/session"
	"tenant-identity-provider/internal/tenant"
)

// ErrSchemeNotConfigured is returned when the tenant table names a scheme the
// registry does not know. This is a deployment misconfiguration, surfaced to
// the operator, never to the end user.
var ErrSchemeNotConfigured = errors.New("authentication scheme not configured")

// SchemeRegistry enumerates the configured external authentication schemes.
type SchemeRegistry interface {
	Schemes() []federation.SchemeDescriptor
	Lookup(name string) (federation.SchemeDescriptor, bool)
}

// Challenger starts an external challenge for a named scheme.
type Challenger interface {
	BeginExternalChallenge(ctx context.Context, provider, returnURL string) (*domain.ChallengeDirective, error)
}

// SessionManager is the minimal session manager surface needed by the login flows.
type SessionManager interface {
	PasswordSignIn(ctx context.Context, username, password, tenantID, ip string) (*session.SignInResult, error)
	SignIn(ctx context.Context, accountID, tenantID, ip string) (*session.SignInResult, error)
}

// AccountRepo is the minimal account repository needed by the login service.
type AccountRepo interface {
	Create(ctx context.Context, a *accountdomain.Account) error
}

// LoginService decides, per login attempt, whether to show the local form,
// hand off to an external provider, or sign the user in directly.
type LoginService struct {
	resolver *tenant.Resolver
	registry SchemeRegistry
	external Challenger
	sessions SessionManager
	accounts AccountRepo
	hasher   *security.Hasher
	auditLog audit.AuditLogger
}

// NewLoginService returns a LoginService with the given dependencies.
// auditLog may be nil.
func NewLoginService(
	resolver *tenant.Resolver,
	registry SchemeRegistry,
	external Challenger,
	sessions SessionManager,
	accounts AccountRepo,
	hasher *security.Hasher,
	auditLog audit.AuditLogger,
) *LoginService {
	return &LoginService{
		resolver: resolver,
		registry: registry,
		external: external,
		sessions: sessions,
		accounts: accounts,
		hasher:   hasher,
		auditLog: auditLog,
	}
}

// BeginLogin resolves the tenant's scheme and produces the login
// presentation. A tenant bound to an external scheme short-circuits into a
// challenge directive; everyone else gets the local form with the available
// external providers. A tenant bound to a scheme the registry does not know
// is a fatal misconfiguration.
func (s *LoginService) BeginLogin(ctx context.Context, returnURL string, tc *tenant.Context) (*domain.LoginPresentation, error) {
	returnURL = SanitizeReturnURL(returnURL)
	scheme := s.resolver.ResolveContext(tc)
	if scheme != s.resolver.DefaultScheme() {
		if _, ok := s.registry.Lookup(scheme); !ok {
			tenantID := ""
			if tc != nil {
				tenantID = tc.Identifier
			}
			log.Printf("auth: scheme %q resolved for tenant %q is not registered", scheme, tenantID)
			return nil, fmt.Errorf("%w: scheme %q for tenant %q", ErrSchemeNotConfigured, scheme, tenantID)
		}
		directive, err := s.external.BeginExternalChallenge(ctx, scheme, returnURL)
		if err != nil {
			return nil, err
		}
		return &domain.LoginPresentation{ReturnURL: returnURL, Challenge: directive}, nil
	}
	return &domain.LoginPresentation{
		ReturnURL:         returnURL,
		ExternalProviders: s.registry.Schemes(),
	}, nil
}

// SubmitLogin validates the credentials and produces a typed result. The
// submitted password is never carried into any result variant.
func (s *LoginService) SubmitLogin(ctx context.Context, attempt domain.LoginAttempt) (*domain.LoginResult, error) {
	returnURL := SanitizeReturnURL(attempt.ReturnURL)
	res, err := s.sessions.PasswordSignIn(ctx, attempt.Username, attempt.Password, attempt.TenantID, middleware.ClientIP(ctx))
	switch {
	case err == nil:
		s.audit(ctx, attempt.TenantID, res.Session.AccountID, audit.ActionLoginSuccess, "")
		return &domain.LoginResult{
			Outcome:      domain.LoginOutcomeRedirect,
			RedirectURL:  returnURL,
			SessionToken: res.Token,
		}, nil
	case errors.Is(err, session.ErrAccountLocked):
		s.audit(ctx, attempt.TenantID, "", audit.ActionLoginLocked, attempt.Username)
		return &domain.LoginResult{
			Outcome:      domain.LoginOutcomeLockedOut,
			Presentation: s.reRender(attempt.Username, returnURL),
			Failure:      "account is temporarily locked",
		}, nil
	case errors.Is(err, session.ErrInvalidCredentials):
		s.audit(ctx, attempt.TenantID, "", audit.ActionLoginFailure, attempt.Username)
		return &domain.LoginResult{
			Outcome:      domain.LoginOutcomeInvalid,
			Presentation: s.reRender(attempt.Username, returnURL),
			Failure:      "invalid username or password",
		}, nil
	default:
		return nil, err
	}
}

// RegisterLocal creates a password account and signs it in.
func (s *LoginService) RegisterLocal(ctx context.Context, attempt domain.LoginAttempt) (*domain.LoginResult, error) {
	returnURL := SanitizeReturnURL(attempt.ReturnURL)
	username := strings.TrimSpace(attempt.Username)
	if username == "" {
		return &domain.LoginResult{
			Outcome:      domain.LoginOutcomeInvalid,
			Presentation: s.reRender("", returnURL),
			Failure:      "username is required",
		}, nil
	}
	if err := validatePassword(attempt.Password); err != nil {
		return &domain.LoginResult{
			Outcome:      domain.LoginOutcomeInvalid,
			Presentation: s.reRender(username, returnURL),
			Failure:      err.Error(),
		}, nil
	}
	hashed, err := s.hasher.Hash([]byte(attempt.Password))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	acct := &accountdomain.Account{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hashed,
		Status:       accountdomain.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := acct.Validate(); err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, accountrepo.ErrUsernameTaken) {
			return &domain.LoginResult{
				Outcome:      domain.LoginOutcomeUsernameTaken,
				Presentation: s.reRender(username, returnURL),
				Failure:      fmt.Sprintf("username %q is already taken", username),
			}, nil
		}
		return nil, err
	}
	res, err := s.sessions.SignIn(ctx, acct.ID, attempt.TenantID, middleware.ClientIP(ctx))
	if err != nil {
		return nil, err
	}
	s.audit(ctx, attempt.TenantID, acct.ID, audit.ActionRegister, "")
	return &domain.LoginResult{
		Outcome:      domain.LoginOutcomeRedirect,
		RedirectURL:  returnURL,
		SessionToken: res.Token,
	}, nil
}

func (s *LoginService) reRender(username, returnURL string) *domain.LoginPresentation {
	return &domain.LoginPresentation{
		ReturnURL:         returnURL,
		Username:          username,
		ExternalProviders: s.registry.Schemes(),
	}
}

func (s *LoginService) audit(ctx context.Context, tenantID, accountID, action, metadata string) {
	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, tenantID, accountID, action, "auth", metadata)
	}
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		}
	}
	if !hasUpper || !hasLower || !hasNumber {
		return errors.New("password must contain upper and lower case letters and a number")
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	accountdomain "tenant-identity-provider/internal/account/domain"
	accountrepo "tenant-identity-provider/internal/account/repository"
	"tenant-identity-provider/internal/audit"
	"tenant-identity-provider/internal/auth/domain"
	"tenant-identity-provider/internal/federation"
	"tenant-identity-provider/internal/server/middleware"
)

// ErrUnknownProvider is returned when a challenge names a scheme that has no
// registered provider.
var ErrUnknownProvider = errors.New("unknown external provider")

// ProviderRegistry resolves a scheme name to its protocol provider.
type ProviderRegistry interface {
	Provider(name string) (federation.Provider, bool)
}

// ExternalAccountRepo is the account repository surface the external flow
// needs: lookup by provider key and the transactional create-and-link.
type ExternalAccountRepo interface {
	GetByLogin(ctx context.Context, provider, providerKey string) (*accountdomain.Account, error)
	CreateWithLogin(ctx context.Context, a *accountdomain.Account, l *accountdomain.ExternalLogin) error
}

// ExternalService runs the external login round-trip: challenge hand-off,
// callback verification, account matching, and the registration step for
// first-time external identities.
type ExternalService struct {
	providers ProviderRegistry
	states    *federation.StateStore
	accounts  ExternalAccountRepo
	sessions  SessionManager
	auditLog  audit.AuditLogger
}

// NewExternalService returns an ExternalService. auditLog may be nil.
func NewExternalService(
	providers ProviderRegistry,
	states *federation.StateStore,
	accounts ExternalAccountRepo,
	sessions SessionManager,
	auditLog audit.AuditLogger,
) *ExternalService {
	return &ExternalService{
		providers: providers,
		states:    states,
		accounts:  accounts,
		sessions:  sessions,
		auditLog:  auditLog,
	}
}

// BeginExternalChallenge records a pending login and builds the provider
// redirect for it.
func (s *ExternalService) BeginExternalChallenge(ctx context.Context, provider, returnURL string) (*domain.ChallengeDirective, error) {
	p, ok := s.providers.Provider(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	returnURL = SanitizeReturnURL(returnURL)
	stateID, nonce, err := s.states.Begin(ctx, provider, returnURL)
	if err != nil {
		return nil, err
	}
	return &domain.ChallengeDirective{
		Scheme:      provider,
		RedirectURL: p.AuthURL(stateID, nonce),
		StateID:     stateID,
	}, nil
}

// CompleteExternalLogin handles the provider callback. A verified identity
// that matches a linked account is signed in; an unmatched one is parked in
// the state store and handed to the registration step. Anything that prevents
// establishing the identity is a no-info outcome, never an error page.
func (s *ExternalService) CompleteExternalLogin(ctx context.Context, stateID, code, providerErr string) (*domain.ExternalLoginResult, error) {
	if providerErr != "" {
		s.states.Delete(ctx, stateID)
		return noInfo(fmt.Sprintf("external provider reported: %s", providerErr)), nil
	}
	pending, ok := s.states.Get(ctx, stateID)
	if !ok {
		return noInfo("login state is unknown or has expired"), nil
	}
	p, ok := s.providers.Provider(pending.Scheme)
	if !ok {
		s.states.Delete(ctx, stateID)
		return noInfo(fmt.Sprintf("provider %q is no longer configured", pending.Scheme)), nil
	}
	info, err := p.Exchange(ctx, code, pending.Nonce)
	if err != nil {
		s.states.Delete(ctx, stateID)
		return noInfo("could not verify the external identity"), nil
	}
	if info == nil || info.ProviderKey == "" {
		s.states.Delete(ctx, stateID)
		return noInfo("provider did not assert an identity"), nil
	}

	acct, err := s.accounts.GetByLogin(ctx, info.Provider, info.ProviderKey)
	if err != nil {
		return nil, err
	}
	if acct != nil {
		s.states.Delete(ctx, stateID)
		res, err := s.sessions.SignIn(ctx, acct.ID, "", middleware.ClientIP(ctx))
		if err != nil {
			return nil, err
		}
		s.audit(ctx, acct.ID, audit.ActionExternalLink, info.Provider)
		return &domain.ExternalLoginResult{
			Outcome:      domain.ExternalOutcomeSignedIn,
			RedirectURL:  pending.ReturnURL,
			SessionToken: res.Token,
		}, nil
	}

	// First time we see this identity: keep the verified info server-side
	// and send the user to the registration step.
	if !s.states.Complete(ctx, stateID, info) {
		return noInfo("login state is unknown or has expired"), nil
	}
	return &domain.ExternalLoginResult{
		Outcome:           domain.ExternalOutcomeNeedsRegistration,
		SuggestedUsername: suggestUsername(info),
		ReturnURL:         pending.ReturnURL,
		StateID:           stateID,
	}, nil
}

// RegisterExternal fuses the pending external identity with a new local
// account. Account creation and login linking happen in one transaction, so a
// failed link never leaves an orphaned account behind.
func (s *ExternalService) RegisterExternal(ctx context.Context, attempt domain.ExternalRegisterAttempt) (*domain.LoginResult, error) {
	pending, ok := s.states.Get(ctx, attempt.StateID)
	if !ok || pending.Info == nil {
		return &domain.LoginResult{
			Outcome: domain.LoginOutcomeLinkFailed,
			Failure: "external login state is unknown or has expired; please sign in again",
		}, nil
	}
	info := pending.Info
	username := strings.TrimSpace(attempt.Username)
	if username == "" {
		username = suggestUsername(info)
	}
	now := time.Now().UTC()
	acct := &accountdomain.Account{
		ID:        uuid.New().String(),
		Username:  username,
		Status:    accountdomain.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	login := &accountdomain.ExternalLogin{
		ID:          uuid.New().String(),
		AccountID:   acct.ID,
		Provider:    info.Provider,
		ProviderKey: info.ProviderKey,
		CreatedAt:   now,
	}
	err := s.accounts.CreateWithLogin(ctx, acct, login)
	switch {
	case err == nil:
		// created below
	case errors.Is(err, accountrepo.ErrUsernameTaken):
		return &domain.LoginResult{
			Outcome: domain.LoginOutcomeUsernameTaken,
			Failure: fmt.Sprintf("username %q is already taken", username),
		}, nil
	case errors.Is(err, accountrepo.ErrLoginAlreadyLinked):
		// Lost a race with a concurrent registration for the same external
		// identity. The link exists; sign in to the account that owns it.
		existing, gerr := s.accounts.GetByLogin(ctx, info.Provider, info.ProviderKey)
		if gerr != nil {
			return nil, gerr
		}
		if existing == nil {
			return &domain.LoginResult{
				Outcome: domain.LoginOutcomeLinkFailed,
				Failure: "this external identity is already linked to another account",
			}, nil
		}
		acct = existing
	default:
		return nil, err
	}
	s.states.Delete(ctx, attempt.StateID)
	res, err := s.sessions.SignIn(ctx, acct.ID, "", middleware.ClientIP(ctx))
	if err != nil {
		return nil, err
	}
	s.audit(ctx, acct.ID, audit.ActionExternalRegister, info.Provider)
	return &domain.LoginResult{
		Outcome:      domain.LoginOutcomeRedirect,
		RedirectURL:  SanitizeReturnURL(firstNonEmpty(attempt.ReturnURL, pending.ReturnURL)),
		SessionToken: res.Token,
	}, nil
}

// suggestUsername derives a username from the asserted claims: the name
// claim, then the email local part, then a generated placeholder.
func suggestUsername(info *federation.ExternalLoginInfo) string {
	if name := strings.TrimSpace(info.Claim(federation.ClaimName)); name != "" {
		return name
	}
	if email := info.Claim(federation.ClaimEmail); email != "" {
		if local, _, found := strings.Cut(email, "@"); found && local != "" {
			return local
		}
	}
	if preferred := strings.TrimSpace(info.Claim(federation.ClaimUsername)); preferred != "" {
		return preferred
	}
	return "user-" + uuid.New().String()[:8]
}

func noInfo(reason string) *domain.ExternalLoginResult {
	return &domain.ExternalLoginResult{Outcome: domain.ExternalOutcomeNoInfo, Reason: reason}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func (s *ExternalService) audit(ctx context.Context, accountID, action, provider string) {
	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, "", accountID, action, "auth", provider)
	}
}

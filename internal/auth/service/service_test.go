package service

import (
	"context"
	"errors"
	"sync"

	accountdomain "tenant-identity-provider/internal/account/domain"
	accountrepo "tenant-identity-provider/internal/account/repository"
	"tenant-identity-provider/internal/auth/domain"
	"tenant-identity-provider/internal/federation"
	"tenant-identity-provider/internal/session"
	sessiondomain "tenant-identity-provider/internal/session/domain"
)

// fakeSessions implements SessionManager and SessionTerminator with canned
// responses and call recording.
type fakeSessions struct {
	mu            sync.Mutex
	passwordErr   error
	signInErr     error
	signedIn      []string // account IDs passed to SignIn
	passwordCalls []string // usernames passed to PasswordSignIn
	signedOut     []string
}

func (f *fakeSessions) PasswordSignIn(ctx context.Context, username, password, tenantID, ip string) (*session.SignInResult, error) {
	f.mu.Lock()
	f.passwordCalls = append(f.passwordCalls, username)
	f.mu.Unlock()
	if f.passwordErr != nil {
		return nil, f.passwordErr
	}
	return &session.SignInResult{
		Session: &sessiondomain.Session{ID: "sess-1", AccountID: "acct-1", TenantID: tenantID},
		Token:   "token-1",
	}, nil
}

func (f *fakeSessions) SignIn(ctx context.Context, accountID, tenantID, ip string) (*session.SignInResult, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	f.mu.Lock()
	f.signedIn = append(f.signedIn, accountID)
	f.mu.Unlock()
	return &session.SignInResult{
		Session: &sessiondomain.Session{ID: "sess-2", AccountID: accountID, TenantID: tenantID},
		Token:   "token-" + accountID,
	}, nil
}

func (f *fakeSessions) SignOut(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, token)
	return nil
}

// fakeChallenger implements Challenger.
type fakeChallenger struct {
	err  error
	last string
}

func (f *fakeChallenger) BeginExternalChallenge(ctx context.Context, provider, returnURL string) (*domain.ChallengeDirective, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.last = provider
	return &domain.ChallengeDirective{
		Scheme:      provider,
		RedirectURL: "https://idp.example/auth?scheme=" + provider,
		StateID:     "state-1",
	}, nil
}

// memExternalRepo implements ExternalAccountRepo and AccountRepo over maps,
// enforcing the same uniqueness the store does.
type memExternalRepo struct {
	mu       sync.Mutex
	byID     map[string]*accountdomain.Account
	byName   map[string]string // username -> id
	links    map[string]string // provider/key -> account id
	createN  int
	linkedN  int
	failNext error
}

func newMemExternalRepo() *memExternalRepo {
	return &memExternalRepo{
		byID:   make(map[string]*accountdomain.Account),
		byName: make(map[string]string),
		links:  make(map[string]string),
	}
}

func (r *memExternalRepo) Create(ctx context.Context, a *accountdomain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	if _, taken := r.byName[a.Username]; taken {
		return accountrepo.ErrUsernameTaken
	}
	cp := *a
	r.byID[a.ID] = &cp
	r.byName[a.Username] = a.ID
	r.createN++
	return nil
}

func (r *memExternalRepo) GetByLogin(ctx context.Context, provider, providerKey string) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.links[provider+"/"+providerKey]
	if !ok {
		return nil, nil
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *memExternalRepo) CreateWithLogin(ctx context.Context, a *accountdomain.Account, l *accountdomain.ExternalLogin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	if _, taken := r.byName[a.Username]; taken {
		return accountrepo.ErrUsernameTaken
	}
	key := l.Provider + "/" + l.ProviderKey
	if _, linked := r.links[key]; linked {
		return accountrepo.ErrLoginAlreadyLinked
	}
	cp := *a
	r.byID[a.ID] = &cp
	r.byName[a.Username] = a.ID
	r.links[key] = a.ID
	r.createN++
	r.linkedN++
	return nil
}

// fakeProvider implements federation.Provider.
type fakeProvider struct {
	info        *federation.ExternalLoginInfo
	exchangeErr error
}

func (p *fakeProvider) AuthURL(state, nonce string) string {
	return "https://provider.example/authorize?state=" + state
}

func (p *fakeProvider) Exchange(ctx context.Context, code, nonce string) (*federation.ExternalLoginInfo, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.info, nil
}

// recordingAudit captures audit actions for assertions.
type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) LogEvent(ctx context.Context, tenantID, accountID, action, resource, metadata string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

func (a *recordingAudit) has(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, got := range a.actions {
		if got == action {
			return true
		}
	}
	return false
}

var errStoreDown = errors.New("store down")

package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	accountdomain "tenant-identity-provider/internal/account/domain"
	"tenant-identity-provider/internal/audit"
	"tenant-identity-provider/internal/auth/domain"
	"tenant-identity-provider/internal/federation"
)

type externalFixture struct {
	svc      *ExternalService
	registry *federation.Registry
	states   *federation.StateStore
	repo     *memExternalRepo
	sessions *fakeSessions
	audit    *recordingAudit
	provider *fakeProvider
}

func newExternalFixture() *externalFixture {
	provider := &fakeProvider{
		info: &federation.ExternalLoginInfo{
			Provider:    "demoidsrv",
			ProviderKey: "subject-42",
			Claims: map[string]string{
				federation.ClaimName:  "Alice Smith",
				federation.ClaimEmail: "alice@example.com",
			},
		},
	}
	registry := federation.NewRegistry()
	registry.Register(federation.SchemeDescriptor{Name: "demoidsrv", DisplayName: "Demo IdP"}, provider)

	f := &externalFixture{
		registry: registry,
		states:   federation.NewStateStore(time.Minute),
		repo:     newMemExternalRepo(),
		sessions: &fakeSessions{},
		audit:    &recordingAudit{},
		provider: provider,
	}
	f.svc = NewExternalService(registry, f.states, f.repo, f.sessions, f.audit)
	return f
}

func (f *externalFixture) begin(t *testing.T) string {
	t.Helper()
	d, err := f.svc.BeginExternalChallenge(context.Background(), "demoidsrv", "/cb")
	if err != nil {
		t.Fatalf("BeginExternalChallenge: %v", err)
	}
	return d.StateID
}

func TestBeginExternalChallenge(t *testing.T) {
	f := newExternalFixture()

	d, err := f.svc.BeginExternalChallenge(context.Background(), "demoidsrv", "/cb")
	if err != nil {
		t.Fatalf("BeginExternalChallenge: %v", err)
	}
	if d.Scheme != "demoidsrv" || d.StateID == "" {
		t.Errorf("directive = %+v", d)
	}
	if !strings.Contains(d.RedirectURL, d.StateID) {
		t.Error("redirect URL does not carry the state")
	}
	if _, ok := f.states.Get(context.Background(), d.StateID); !ok {
		t.Error("challenge not recorded in the state store")
	}
}

func TestBeginExternalChallenge_UnknownProvider(t *testing.T) {
	f := newExternalFixture()

	_, err := f.svc.BeginExternalChallenge(context.Background(), "nope", "/cb")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestCompleteExternalLogin_LinkedAccountSignsIn(t *testing.T) {
	f := newExternalFixture()
	acct := &accountdomain.Account{ID: "acct-9", Username: "alice", Status: accountdomain.AccountStatusActive}
	f.repo.byID[acct.ID] = acct
	f.repo.byName[acct.Username] = acct.ID
	f.repo.links["demoidsrv/subject-42"] = acct.ID

	stateID := f.begin(t)
	res, err := f.svc.CompleteExternalLogin(context.Background(), stateID, "code", "")
	if err != nil {
		t.Fatalf("CompleteExternalLogin: %v", err)
	}
	if res.Outcome != domain.ExternalOutcomeSignedIn {
		t.Fatalf("Outcome = %q, want signed_in", res.Outcome)
	}
	if res.SessionToken == "" || res.RedirectURL != "/cb" {
		t.Errorf("result = %+v", res)
	}
	if _, ok := f.states.Get(context.Background(), stateID); ok {
		t.Error("state not consumed after sign-in")
	}
	if !f.audit.has(audit.ActionExternalLink) {
		t.Error("missing external_link audit event")
	}
}

func TestCompleteExternalLogin_NewIdentityNeedsRegistration(t *testing.T) {
	f := newExternalFixture()

	stateID := f.begin(t)
	res, err := f.svc.CompleteExternalLogin(context.Background(), stateID, "code", "")
	if err != nil {
		t.Fatalf("CompleteExternalLogin: %v", err)
	}
	if res.Outcome != domain.ExternalOutcomeNeedsRegistration {
		t.Fatalf("Outcome = %q, want needs_registration", res.Outcome)
	}
	if res.SuggestedUsername != "Alice Smith" {
		t.Errorf("SuggestedUsername = %q, want name claim", res.SuggestedUsername)
	}
	if res.StateID != stateID || res.ReturnURL != "/cb" {
		t.Errorf("result = %+v", res)
	}
	pending, ok := f.states.Get(context.Background(), stateID)
	if !ok || pending.Info == nil {
		t.Fatal("verified info not parked in the state store")
	}
}

func TestCompleteExternalLogin_NoInfoOutcomes(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		f := newExternalFixture()
		stateID := f.begin(t)
		res, err := f.svc.CompleteExternalLogin(context.Background(), stateID, "", "access_denied")
		if err != nil {
			t.Fatalf("CompleteExternalLogin: %v", err)
		}
		if res.Outcome != domain.ExternalOutcomeNoInfo || res.Reason == "" {
			t.Errorf("result = %+v", res)
		}
	})
	t.Run("unknown state", func(t *testing.T) {
		f := newExternalFixture()
		res, err := f.svc.CompleteExternalLogin(context.Background(), "bogus", "code", "")
		if err != nil {
			t.Fatalf("CompleteExternalLogin: %v", err)
		}
		if res.Outcome != domain.ExternalOutcomeNoInfo {
			t.Errorf("Outcome = %q, want no_info", res.Outcome)
		}
	})
	t.Run("exchange failure", func(t *testing.T) {
		f := newExternalFixture()
		f.provider.exchangeErr = errors.New("bad nonce")
		stateID := f.begin(t)
		res, err := f.svc.CompleteExternalLogin(context.Background(), stateID, "code", "")
		if err != nil {
			t.Fatalf("CompleteExternalLogin: %v", err)
		}
		if res.Outcome != domain.ExternalOutcomeNoInfo {
			t.Errorf("Outcome = %q, want no_info", res.Outcome)
		}
		if _, ok := f.states.Get(context.Background(), stateID); ok {
			t.Error("state should be dropped after a failed exchange")
		}
	})
	t.Run("missing subject", func(t *testing.T) {
		f := newExternalFixture()
		f.provider.info = &federation.ExternalLoginInfo{Provider: "demoidsrv"}
		stateID := f.begin(t)
		res, err := f.svc.CompleteExternalLogin(context.Background(), stateID, "code", "")
		if err != nil {
			t.Fatalf("CompleteExternalLogin: %v", err)
		}
		if res.Outcome != domain.ExternalOutcomeNoInfo {
			t.Errorf("Outcome = %q, want no_info", res.Outcome)
		}
	})
}

func TestRegisterExternal_CreatesLinkedAccountAtomically(t *testing.T) {
	f := newExternalFixture()
	stateID := f.begin(t)
	if _, err := f.svc.CompleteExternalLogin(context.Background(), stateID, "code", ""); err != nil {
		t.Fatalf("CompleteExternalLogin: %v", err)
	}

	res, err := f.svc.RegisterExternal(context.Background(), domain.ExternalRegisterAttempt{
		StateID:  stateID,
		Username: "alice",
	})
	if err != nil {
		t.Fatalf("RegisterExternal: %v", err)
	}
	if res.Outcome != domain.LoginOutcomeRedirect {
		t.Fatalf("Outcome = %q: %s", res.Outcome, res.Failure)
	}
	if f.repo.createN != 1 || f.repo.linkedN != 1 {
		t.Errorf("createN = %d, linkedN = %d, want 1/1", f.repo.createN, f.repo.linkedN)
	}
	if _, ok := f.states.Get(context.Background(), stateID); ok {
		t.Error("state not consumed after registration")
	}
	if !f.audit.has(audit.ActionExternalRegister) {
		t.Error("missing external_register audit event")
	}
}

func TestRegisterExternal_LinkFailureLeavesNoAccount(t *testing.T) {
	f := newExternalFixture()
	stateID := f.begin(t)
	if _, err := f.svc.CompleteExternalLogin(context.Background(), stateID, "code", ""); err != nil {
		t.Fatalf("CompleteExternalLogin: %v", err)
	}
	f.repo.failNext = errStoreDown

	_, err := f.svc.RegisterExternal(context.Background(), domain.ExternalRegisterAttempt{StateID: stateID, Username: "alice"})
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("err = %v, want store error", err)
	}
	if f.repo.createN != 0 {
		t.Errorf("createN = %d, want 0: a failed link must not leave an account", f.repo.createN)
	}
}

func TestRegisterExternal_RaceSignsInToWinner(t *testing.T) {
	f := newExternalFixture()

	// Two browsers complete the same external identity concurrently.
	stateA := f.begin(t)
	stateB := f.begin(t)
	if _, err := f.svc.CompleteExternalLogin(context.Background(), stateA, "code", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CompleteExternalLogin(context.Background(), stateB, "code", ""); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]*domain.LoginResult, 2)
	for i, st := range []string{stateA, stateB} {
		wg.Add(1)
		go func(i int, stateID string) {
			defer wg.Done()
			res, err := f.svc.RegisterExternal(context.Background(), domain.ExternalRegisterAttempt{
				StateID:  stateID,
				Username: "alice-" + uuid.New().String()[:4],
			})
			if err != nil {
				t.Errorf("RegisterExternal: %v", err)
				return
			}
			results[i] = res
		}(i, st)
	}
	wg.Wait()

	if f.repo.linkedN != 1 {
		t.Fatalf("linkedN = %d, want exactly 1 link for the identity", f.repo.linkedN)
	}
	for i, res := range results {
		if res == nil {
			t.Fatalf("result %d missing", i)
		}
		if res.Outcome != domain.LoginOutcomeRedirect {
			t.Errorf("result %d: Outcome = %q, want redirect for both racers", i, res.Outcome)
		}
	}
	winner := f.repo.links["demoidsrv/subject-42"]
	for _, id := range f.sessions.signedIn {
		if id != winner {
			t.Errorf("signed in account %q, want winner %q", id, winner)
		}
	}
}

func TestRegisterExternal_ExpiredState(t *testing.T) {
	f := newExternalFixture()

	res, err := f.svc.RegisterExternal(context.Background(), domain.ExternalRegisterAttempt{StateID: "gone", Username: "x"})
	if err != nil {
		t.Fatalf("RegisterExternal: %v", err)
	}
	if res.Outcome != domain.LoginOutcomeLinkFailed {
		t.Fatalf("Outcome = %q, want link_failed", res.Outcome)
	}
}

func TestSuggestUsername_FallbackChain(t *testing.T) {
	cases := []struct {
		name   string
		claims map[string]string
		want   string
	}{
		{"name claim wins", map[string]string{federation.ClaimName: "Bob", federation.ClaimEmail: "b@x.io"}, "Bob"},
		{"email local part", map[string]string{federation.ClaimEmail: "bob.jones@x.io"}, "bob.jones"},
		{"preferred username", map[string]string{federation.ClaimUsername: "bjones"}, "bjones"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := suggestUsername(&federation.ExternalLoginInfo{Claims: c.claims})
			if got != c.want {
				t.Errorf("suggestUsername = %q, want %q", got, c.want)
			}
		})
	}

	t.Run("generated placeholder", func(t *testing.T) {
		got := suggestUsername(&federation.ExternalLoginInfo{})
		if !strings.HasPrefix(got, "user-") || len(got) != len("user-")+8 {
			t.Errorf("suggestUsername = %q, want user-<8 hex>", got)
		}
	})
}

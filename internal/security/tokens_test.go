package security

import (
	"testing"
	"time"
)

func TestTokenProvider_IssueAndValidateSession(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	token, expiresAt, err := p.IssueSession("sess-1", "acct-1", "finbuckle")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Error("expiresAt should be in the future")
	}

	sessionID, accountID, tenantID, err := p.ValidateSession(token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if sessionID != "sess-1" || accountID != "acct-1" || tenantID != "finbuckle" {
		t.Errorf("claims = (%q, %q, %q), want (sess-1, acct-1, finbuckle)", sessionID, accountID, tenantID)
	}
}

func TestTokenProvider_EmptyTenant(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, err := p.IssueSession("sess-1", "acct-1", "")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	_, _, tenantID, err := p.ValidateSession(token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if tenantID != "" {
		t.Errorf("tenantID = %q, want empty", tenantID)
	}
}

func TestTokenProvider_ValidateSessionInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	for _, bad := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, _, _, err := p.ValidateSession(bad); err != ErrInvalidToken {
			t.Errorf("ValidateSession(%q): want ErrInvalidToken, got %v", bad, err)
		}
	}
}

func TestTokenProvider_RejectsWrongIssuer(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	issuerA := NewTokenProvider(signer, pub, "issuer-a", "idp", time.Hour)
	issuerB := NewTokenProvider(signer, pub, "issuer-b", "idp", time.Hour)

	token, _, err := issuerA.IssueSession("sess-1", "acct-1", "")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, _, _, err := issuerB.ValidateSession(token); err != ErrInvalidToken {
		t.Errorf("cross-issuer token: want ErrInvalidToken, got %v", err)
	}
}

package federation

import (
	"context"
	"errors"
	"fmt"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCProvider is a relying-party client for one upstream OIDC provider,
// driving the authorization-code flow and ID-token verification.
type OIDCProvider struct {
	name     string
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCProvider discovers the issuer's endpoints and returns a provider
// client for the named scheme. redirectURL is this server's callback endpoint.
func NewOIDCProvider(ctx context.Context, name, issuer, clientID, clientSecret, redirectURL string, scopes []string) (*OIDCProvider, error) {
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover %s issuer %s: %w", name, issuer, err)
	}
	if len(scopes) == 0 {
		scopes = []string{"profile", "email"}
	}
	return &OIDCProvider{
		name: name,
		oauth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     p.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       append([]string{oidc.ScopeOpenID}, scopes...),
		},
		verifier: p.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// AuthURL builds the provider's authorization URL for the given state and nonce.
func (p *OIDCProvider) AuthURL(state, nonce string) string {
	return p.oauth.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange redeems the authorization code, verifies the ID token against the
// issuer and the challenge nonce, and extracts the asserted identity.
func (p *OIDCProvider) Exchange(ctx context.Context, code, nonce string) (*ExternalLoginInfo, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s code exchange: %w", p.name, err)
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("%s token response has no id_token", p.name)
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%s id_token verify: %w", p.name, err)
	}
	if idToken.Nonce != nonce {
		return nil, errors.New("id_token nonce does not match challenge")
	}
	var claims struct {
		Name              string `json:"name"`
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s id_token claims: %w", p.name, err)
	}
	info := &ExternalLoginInfo{
		Provider:    p.name,
		ProviderKey: idToken.Subject,
		Claims:      map[string]string{},
	}
	if claims.Name != "" {
		info.Claims[ClaimName] = claims.Name
	}
	if claims.Email != "" {
		info.Claims[ClaimEmail] = claims.Email
	}
	if claims.PreferredUsername != "" {
		info.Claims[ClaimUsername] = claims.PreferredUsername
	}
	return info, nil
}

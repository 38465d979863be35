// Package interaction holds the identity-protocol surface the login and
// logout flows interact with: the registered relying parties, the tenant
// context a return URL carries, and pending logout contexts.
package interaction

import (
	"net/url"

	"tenant-identity-provider/internal/tenant"
)

// Client is a registered relying party. Redirect targets presented at
// runtime are only honored when they match a registered URI exactly.
type Client struct {
	ID                     string
	Name                   string
	RedirectURIs           []string
	PostLogoutRedirectURIs []string
}

// ClientRegistry is the read-only set of registered relying parties,
// populated from configuration at startup.
type ClientRegistry struct {
	m map[string]Client
}

// NewClientRegistry returns a registry over the given clients.
func NewClientRegistry(clients []Client) *ClientRegistry {
	m := make(map[string]Client, len(clients))
	for _, c := range clients {
		if c.ID != "" {
			m[c.ID] = c
		}
	}
	return &ClientRegistry{m: m}
}

// Get returns the client with the given id.
func (r *ClientRegistry) Get(id string) (Client, bool) {
	c, ok := r.m[id]
	return c, ok
}

// ValidPostLogoutURI reports whether uri is a registered post-logout redirect
// for the client. Unknown clients and unregistered URIs are rejected; the
// logout flow falls back to the default landing page in that case.
func (r *ClientRegistry) ValidPostLogoutURI(clientID, uri string) bool {
	c, ok := r.m[clientID]
	if !ok || uri == "" {
		return false
	}
	for _, registered := range c.PostLogoutRedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// AuthorizationContext is what the protocol layer embedded in a login's
// return URL: the requesting client and, when present, the tenant.
type AuthorizationContext struct {
	ClientID string
	Tenant   *tenant.Context
}

// ParseAuthorizationContext extracts the authorization context from a return
// URL's query. Returns nil when the URL carries no recognizable context; the
// login flow then proceeds without a tenant, which resolves to local auth.
func ParseAuthorizationContext(returnURL string) *AuthorizationContext {
	u, err := url.Parse(returnURL)
	if err != nil {
		return nil
	}
	q := u.Query()
	clientID := q.Get("client_id")
	tenantID := q.Get("tenant")
	if clientID == "" && tenantID == "" {
		return nil
	}
	actx := &AuthorizationContext{ClientID: clientID}
	if tenantID != "" {
		actx.Tenant = &tenant.Context{ID: tenantID, Identifier: tenantID}
	}
	return actx
}

// Package federation manages the external authentication schemes a login can
// be routed through: the registered scheme descriptors, the OIDC round trip
// with each provider, and the in-flight challenge state.
package federation

// Well-known claim types copied off the external principal.
const (
	ClaimName     = "name"
	ClaimEmail    = "email"
	ClaimUsername = "preferred_username"
)

// SchemeDescriptor describes a configured external authentication scheme.
type SchemeDescriptor struct {
	Name        string
	DisplayName string
}

// ExternalLoginInfo is the identity asserted by an external provider after a
// completed challenge round trip. Read-only; consumed once to either sign in
// or seed registration.
type ExternalLoginInfo struct {
	Provider    string
	ProviderKey string
	Claims      map[string]string
}

// Claim returns the value of the named claim, or "" when absent.
func (i *ExternalLoginInfo) Claim(name string) string {
	if i == nil {
		return ""
	}
	return i.Claims[name]
}

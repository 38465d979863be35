// Package tenant resolves which authentication scheme a tenant's users are
// routed through at login.
package tenant

// Context is the tenant context attached to a login request. It is resolved
// by the protocol layer before the login flow starts and is read-only here.
type Context struct {
	ID         string
	Identifier string
	// AuthSchemeOverride, when set, wins over the configured table.
	AuthSchemeOverride string
}

// Resolver maps tenant identifiers to authentication scheme names. The table
// is fixed at construction. Unknown tenants are never rejected: anything not
// in the table resolves to the default local-credential scheme.
type Resolver struct {
	schemes       map[string]string
	defaultScheme string
}

// NewResolver returns a Resolver over a copy of the given table. defaultScheme
// is returned for empty or unknown tenant identifiers.
func NewResolver(schemes map[string]string, defaultScheme string) *Resolver {
	m := make(map[string]string, len(schemes))
	for k, v := range schemes {
		if k != "" && v != "" {
			m[k] = v
		}
	}
	return &Resolver{schemes: m, defaultScheme: defaultScheme}
}

// Resolve returns the scheme configured for tenantID, or the default scheme
// when tenantID is empty or not in the table.
func (r *Resolver) Resolve(tenantID string) string {
	if s, ok := r.schemes[tenantID]; ok {
		return s
	}
	return r.defaultScheme
}

// ResolveContext resolves the scheme for a tenant context. A nil context
// resolves to the default scheme; an explicit override wins over the table.
func (r *Resolver) ResolveContext(c *Context) string {
	if c == nil {
		return r.defaultScheme
	}
	if c.AuthSchemeOverride != "" {
		return c.AuthSchemeOverride
	}
	return r.Resolve(c.Identifier)
}

// DefaultScheme returns the configured default local-credential scheme name.
func (r *Resolver) DefaultScheme() string {
	return r.defaultScheme
}

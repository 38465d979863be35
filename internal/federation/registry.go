package federation

import "context"

// Provider performs the challenge/callback handshake with one external
// identity system.
type Provider interface {
	// AuthURL builds the provider's authorization URL for a challenge bound
	// to the given state and nonce.
	AuthURL(state, nonce string) string
	// Exchange redeems the callback code, verifies the asserted identity
	// (including the nonce binding), and extracts its claims.
	Exchange(ctx context.Context, code, nonce string) (*ExternalLoginInfo, error)
}

// Registry holds the configured external schemes in registration order.
// Populated once at startup; read-only afterwards.
type Registry struct {
	order     []SchemeDescriptor
	providers map[string]Provider
}

// NewRegistry returns an empty scheme registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a scheme and its provider. Last registration wins on name collision.
func (r *Registry) Register(d SchemeDescriptor, p Provider) {
	if _, exists := r.providers[d.Name]; !exists {
		r.order = append(r.order, d)
	} else {
		for i := range r.order {
			if r.order[i].Name == d.Name {
				r.order[i] = d
				break
			}
		}
	}
	r.providers[d.Name] = p
}

// Schemes returns the registered scheme descriptors in registration order.
func (r *Registry) Schemes() []SchemeDescriptor {
	out := make([]SchemeDescriptor, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the descriptor for the named scheme, or ok false when no
// such scheme is registered.
func (r *Registry) Lookup(name string) (SchemeDescriptor, bool) {
	if _, ok := r.providers[name]; !ok {
		return SchemeDescriptor{}, false
	}
	for _, d := range r.order {
		if d.Name == name {
			return d, true
		}
	}
	return SchemeDescriptor{}, false
}

// Provider returns the provider for the named scheme.
func (r *Registry) Provider(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

package tenancy

import "context"

// DefaultNamespace is the reserved namespace used when no tenant is bound
const DefaultNamespace = "public"

// Resolver answers which namespace the current unit of work belongs to.
// It re-reads the binding on every call.
type Resolver struct {
	defaultNamespace string
}

// NewResolver creates a resolver falling back to defaultNamespace.
// An empty value selects DefaultNamespace.
func NewResolver(defaultNamespace string) *Resolver {
	if defaultNamespace == "" {
		defaultNamespace = DefaultNamespace
	}
	return &Resolver{defaultNamespace: defaultNamespace}
}

// ResolveCurrent returns the bound tenant, or the default namespace when nothing is bound.
// This is the only place an implicit default is applied.
func (r *Resolver) ResolveCurrent(ctx context.Context) string {
	if id, ok := Current(ctx); ok {
		return id
	}
	return r.defaultNamespace
}

// IsRoot reports whether id is the default namespace
func (r *Resolver) IsRoot(id string) bool {
	return id == r.defaultNamespace
}

// Default returns the default namespace
func (r *Resolver) Default() string {
	return r.defaultNamespace
}

// Package wiring verifies at startup that every tenant-scoped component
// names the transaction scope it runs in.
//
// Components declare their transaction boundaries through an explicit
// manifest of Markers. Markers compose other markers, so a declaration is
// judged by everything it resolves to, not by the literal marker used.
package wiring

import (
	"github.com/erp/tenancy/internal/infrastructure/persistence/txn"
)

type markerKind int

const (
	kindComposite markerKind = iota
	kindTransactional
	kindScope
)

// Marker is a transaction declaration
type Marker struct {
	name     string
	kind     markerKind
	scope    txn.Scope
	composes []*Marker
}

// Base and composed markers
var (
	// Transactional is the generic declaration. On its own it does not say
	// which manager the transaction belongs to.
	Transactional = &Marker{name: "Transactional", kind: kindTransactional}
	PublicScoped  = &Marker{name: "PublicScoped", kind: kindScope, scope: txn.ScopePublic}
	TenantScoped  = &Marker{name: "TenantScoped", kind: kindScope, scope: txn.ScopeTenant}

	PublicTransactional = Compose("PublicTransactional", Transactional, PublicScoped)
	TenantTransactional = Compose("TenantTransactional", Transactional, TenantScoped)
)

// Compose declares a marker that carries every marker in markers
func Compose(name string, markers ...*Marker) *Marker {
	return &Marker{name: name, kind: kindComposite, composes: markers}
}

// Name returns the marker name
func (m *Marker) Name() string {
	return m.name
}

func (m *Marker) String() string {
	return m.name
}

// resolution is everything a set of markers resolves to
type resolution struct {
	transactional bool
	scopes        map[txn.Scope]bool
}

func resolve(markers []*Marker) resolution {
	r := resolution{scopes: make(map[txn.Scope]bool)}
	seen := make(map[*Marker]bool)

	var walk func(m *Marker)
	walk = func(m *Marker) {
		if m == nil || seen[m] {
			return
		}
		seen[m] = true
		switch m.kind {
		case kindTransactional:
			r.transactional = true
		case kindScope:
			r.scopes[m.scope] = true
		}
		for _, c := range m.composes {
			walk(c)
		}
	}
	for _, m := range markers {
		walk(m)
	}
	return r
}

// scope returns the single scope the markers resolve to
func (r resolution) scope() (txn.Scope, bool) {
	if len(r.scopes) != 1 {
		return 0, false
	}
	for s := range r.scopes {
		return s, true
	}
	return 0, false
}

// Declarations is a component's transaction manifest
type Declarations struct {
	// Type markers apply to the component as a whole
	Type []*Marker
	// Methods maps a method name to its own markers. Method markers replace
	// the type markers for that method; they are not merged.
	Methods map[string][]*Marker
}

// ScopeOf returns the scope method runs in: its own markers if it has any,
// else the type markers.
func (d Declarations) ScopeOf(method string) (txn.Scope, bool) {
	if markers, ok := d.Methods[method]; ok && len(markers) > 0 {
		return resolve(markers).scope()
	}
	return resolve(d.Type).scope()
}

// Declarer is implemented by components that carry a transaction manifest
type Declarer interface {
	TransactionDeclarations() Declarations
}

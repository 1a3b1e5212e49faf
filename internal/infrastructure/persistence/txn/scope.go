// Package txn runs units of work inside explicitly scoped transactions.
//
// Two managers share one connection pool: the PUBLIC manager pins its
// connections to the default namespace and the TENANT manager pins them to
// whatever tenant is bound to the unit of work. Every call names its scope,
// propagation and access mode through a Definition; there is no ambient
// default manager.
package txn

import "fmt"

// Scope selects the transaction manager
type Scope int

const (
	ScopePublic Scope = iota + 1
	ScopeTenant
)

func (s Scope) String() string {
	switch s {
	case ScopePublic:
		return "public"
	case ScopeTenant:
		return "tenant"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Propagation decides whether an active transaction is joined or suspended
type Propagation int

const (
	// PropagationRequired joins an active transaction of the same scope, or begins one
	PropagationRequired Propagation = iota + 1
	// PropagationRequiresNew suspends any active transaction and begins an independent one
	PropagationRequiresNew
)

func (p Propagation) String() string {
	switch p {
	case PropagationRequired:
		return "required"
	case PropagationRequiresNew:
		return "requires_new"
	default:
		return fmt.Sprintf("propagation(%d)", int(p))
	}
}

// Definition is one of the eight execution modes
type Definition struct {
	Scope       Scope
	Propagation Propagation
	ReadOnly    bool
}

func (d Definition) String() string {
	mode := "read_write"
	if d.ReadOnly {
		mode = "read_only"
	}
	return d.Scope.String() + "/" + d.Propagation.String() + "/" + mode
}

// The eight execution modes
var (
	PublicRequired            = Definition{Scope: ScopePublic, Propagation: PropagationRequired}
	PublicRequiredReadOnly    = Definition{Scope: ScopePublic, Propagation: PropagationRequired, ReadOnly: true}
	PublicRequiresNew         = Definition{Scope: ScopePublic, Propagation: PropagationRequiresNew}
	PublicRequiresNewReadOnly = Definition{Scope: ScopePublic, Propagation: PropagationRequiresNew, ReadOnly: true}
	TenantRequired            = Definition{Scope: ScopeTenant, Propagation: PropagationRequired}
	TenantRequiredReadOnly    = Definition{Scope: ScopeTenant, Propagation: PropagationRequired, ReadOnly: true}
	TenantRequiresNew         = Definition{Scope: ScopeTenant, Propagation: PropagationRequiresNew}
	TenantRequiresNewReadOnly = Definition{Scope: ScopeTenant, Propagation: PropagationRequiresNew, ReadOnly: true}
)

// Definitions returns all eight execution modes
func Definitions() []Definition {
	return []Definition{
		PublicRequired, PublicRequiredReadOnly, PublicRequiresNew, PublicRequiresNewReadOnly,
		TenantRequired, TenantRequiredReadOnly, TenantRequiresNew, TenantRequiresNewReadOnly,
	}
}

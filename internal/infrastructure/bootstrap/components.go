package bootstrap

import (
	"github.com/erp/tenancy/internal/domain/audit"
	"github.com/erp/tenancy/internal/domain/catalog"
	"github.com/erp/tenancy/internal/infrastructure/wiring"
)

// RegisterRepositories adds the repository ports with the scope their
// implementations run in.
func RegisterRepositories(r *wiring.Registry) {
	wiring.RegisterInterface[catalog.ProductRepository](r, wiring.Declarations{
		Type: []*wiring.Marker{wiring.TenantTransactional},
	})
	wiring.RegisterInterface[audit.Repository](r, wiring.Declarations{
		Type: []*wiring.Marker{wiring.PublicTransactional},
	})
}

// ComponentRegistry builds the registry checked at startup: components plus
// every repository port.
func ComponentRegistry(components ...any) *wiring.Registry {
	r := wiring.NewRegistry()
	r.Register(components...)
	RegisterRepositories(r)
	return r
}

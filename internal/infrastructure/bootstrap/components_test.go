package bootstrap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	auditapp "github.com/erp/tenancy/internal/application/audit"
	catalogapp "github.com/erp/tenancy/internal/application/catalog"
	tenancyapp "github.com/erp/tenancy/internal/application/tenancy"
	"github.com/erp/tenancy/internal/domain/catalog"
	"github.com/erp/tenancy/internal/infrastructure/config"
	"github.com/erp/tenancy/internal/infrastructure/wiring"
)

func serverComponents() []any {
	dispatcher := auditapp.NewDispatcher(nil, nil)
	return []any{
		dispatcher,
		auditapp.NewQueryService(nil, nil),
		catalogapp.NewProductService(nil, nil, dispatcher),
		tenancyapp.NewOnboardingService(nil, nil, nil, nil, dispatcher, nil),
	}
}

func TestComponentRegistry_ServerComponentsPass(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	registry := ComponentRegistry(serverComponents()...)
	require.Equal(t, 6, registry.Len())

	verifier := wiring.NewVerifier(registry, config.DefaultScopedPackages, true, zap.New(core))
	require.NoError(t, verifier.Verify())

	finished := logs.FilterMessage("Startup wiring verification finished").All()
	require.Len(t, finished, 1)
	// Four services and both repository ports
	assert.Equal(t, int64(6), finished[0].ContextMap()["checked"])
}

func TestComponentRegistry_RepositoryPortsAreVerified(t *testing.T) {
	registry := ComponentRegistry(serverComponents()...)
	wiring.RegisterInterface[catalog.ProductRepository](registry, wiring.Declarations{
		Methods: map[string][]*wiring.Marker{"Save": {wiring.Transactional}},
	})

	err := wiring.NewVerifier(registry, config.DefaultScopedPackages, true, nil).Verify()
	require.Error(t, err)

	var verr *wiring.VerificationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"catalog.ProductRepository.Save"}, verr.Signatures())
}

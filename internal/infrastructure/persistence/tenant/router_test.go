package tenant

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/erp/tenancy/internal/domain/shared"
	"github.com/erp/tenancy/internal/domain/tenancy"
	"github.com/erp/tenancy/internal/infrastructure/cache"
)

func newMockRouter(t *testing.T, opts ...Option) (*ConnectionRouter, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewConnectionRouter(db, tenancy.NewResolver("public"), opts...), db, mock
}

func expectProvision(mock sqlmock.Sqlmock, namespace string, exists bool) {
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "` + namespace + `"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(namespaceExistsQuery).
		WithArgs(namespace).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
}

func TestConnectionRouter_GetConnection(t *testing.T) {
	ctx := context.Background()

	t.Run("tenant namespace is provisioned and pinned ahead of default", func(t *testing.T) {
		router, _, mock := newMockRouter(t)
		expectProvision(mock, "t_acme", true)
		mock.ExpectExec(`SET search_path TO "t_acme", "public"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`SET search_path TO "public"`).WillReturnResult(sqlmock.NewResult(0, 0))

		conn, err := router.GetConnection(ctx, "t_acme")
		require.NoError(t, err)
		router.ReleaseConnection(ctx, "t_acme", conn)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("default namespace is pinned alone and never provisioned", func(t *testing.T) {
		router, _, mock := newMockRouter(t)
		mock.ExpectExec(`SET search_path TO "public"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`SET search_path TO "public"`).WillReturnResult(sqlmock.NewResult(0, 0))

		conn, err := router.GetConnection(ctx, "public")
		require.NoError(t, err)
		router.ReleaseConnection(ctx, "public", conn)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("blank request falls back to default", func(t *testing.T) {
		router, _, mock := newMockRouter(t)
		mock.ExpectExec(`SET search_path TO "public"`).WillReturnResult(sqlmock.NewResult(0, 0))

		conn, err := router.GetConnection(ctx, "  ")
		require.NoError(t, err)
		require.NotNil(t, conn)
		_ = conn.Close()

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid identifiers are rejected before any SQL", func(t *testing.T) {
		router, _, mock := newMockRouter(t)

		for _, id := range []string{`acme"; DROP SCHEMA public; --`, "1tenant", "t-acme", "pg_catalog", "t acme"} {
			conn, err := router.GetConnection(ctx, id)
			assert.Nil(t, conn, id)
			assert.ErrorIs(t, err, tenancy.ErrInvalidIdentifier, id)
		}

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("create failure discards the connection", func(t *testing.T) {
		router, db, mock := newMockRouter(t)
		mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "t_acme"`).WillReturnError(errors.New("permission denied"))
		mock.ExpectClose()

		conn, err := router.GetConnection(ctx, "t_acme")
		assert.Nil(t, conn)
		assert.ErrorIs(t, err, ErrProvisioningFailed)
		assert.Equal(t, "NAMESPACE_PROVISIONING_FAILED", shared.CodeOf(err))

		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Zero(t, db.Stats().OpenConnections)
	})

	t.Run("namespace missing after create is a provisioning failure", func(t *testing.T) {
		router, _, mock := newMockRouter(t)
		expectProvision(mock, "t_acme", false)
		mock.ExpectClose()

		_, err := router.GetConnection(ctx, "t_acme")
		assert.ErrorIs(t, err, ErrProvisioningFailed)
		assert.ErrorIs(t, err, ErrNamespaceMissing)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pin failure discards the connection and does not fall back", func(t *testing.T) {
		router, _, mock := newMockRouter(t)
		expectProvision(mock, "t_acme", true)
		mock.ExpectExec(`SET search_path TO "t_acme", "public"`).WillReturnError(errors.New("boom"))
		mock.ExpectClose()

		conn, err := router.GetConnection(ctx, "t_acme")
		assert.Nil(t, conn)
		assert.ErrorIs(t, err, ErrProvisioningFailed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cached namespace skips create and lookup", func(t *testing.T) {
		pc := cache.NewInMemoryProvisionCache(time.Minute)
		defer pc.Close()
		require.NoError(t, pc.Remember(ctx, "t_acme"))

		router, _, mock := newMockRouter(t, WithProvisionCache(pc))
		mock.ExpectExec(`SET search_path TO "t_acme", "public"`).WillReturnResult(sqlmock.NewResult(0, 0))

		conn, err := router.GetConnection(ctx, "t_acme")
		require.NoError(t, err)
		_ = conn.Close()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("successful provisioning populates the cache", func(t *testing.T) {
		pc := cache.NewInMemoryProvisionCache(time.Minute)
		defer pc.Close()

		router, _, mock := newMockRouter(t, WithProvisionCache(pc))
		expectProvision(mock, "t_beta", true)
		mock.ExpectExec(`SET search_path TO "t_beta", "public"`).WillReturnResult(sqlmock.NewResult(0, 0))

		conn, err := router.GetConnection(ctx, "t_beta")
		require.NoError(t, err)
		_ = conn.Close()

		known, _ := pc.Known(ctx, "t_beta")
		assert.True(t, known)
	})
}

func TestConnectionRouter_ReleaseConnection(t *testing.T) {
	t.Run("resets even when the request context is cancelled", func(t *testing.T) {
		router, _, mock := newMockRouter(t)
		mock.ExpectExec(`SET search_path TO "public"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`SET search_path TO "public"`).WillReturnResult(sqlmock.NewResult(0, 0))

		ctx, cancel := context.WithCancel(context.Background())
		conn, err := router.GetConnection(ctx, "")
		require.NoError(t, err)

		cancel()
		router.ReleaseConnection(ctx, "public", conn)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed reset discards instead of pooling", func(t *testing.T) {
		core, recorded := observer.New(zapcore.WarnLevel)
		router, db, mock := newMockRouter(t, WithLogger(zap.New(core)))
		expectProvision(mock, "t_acme", true)
		mock.ExpectExec(`SET search_path TO "t_acme", "public"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`SET search_path TO "public"`).WillReturnError(errors.New("connection reset"))
		mock.ExpectClose()

		conn, err := router.GetConnection(context.Background(), "t_acme")
		require.NoError(t, err)
		router.ReleaseConnection(context.Background(), "t_acme", conn)

		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Zero(t, db.Stats().Idle)
		assert.Equal(t, 1, recorded.FilterMessage("Failed to reset search path, discarding connection").Len())
	})

	t.Run("nil connection is ignored", func(t *testing.T) {
		router, _, _ := newMockRouter(t)
		assert.NotPanics(t, func() { router.ReleaseConnection(context.Background(), "t_acme", nil) })
	})
}

func TestConnectionRouter_Provision(t *testing.T) {
	ctx := context.Background()

	t.Run("is idempotent", func(t *testing.T) {
		router, _, mock := newMockRouter(t)
		expectProvision(mock, "t_acme", true)
		expectProvision(mock, "t_acme", true)

		require.NoError(t, router.Provision(ctx, "t_acme"))
		require.NoError(t, router.Provision(ctx, "t_acme"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("default namespace is never provisioned", func(t *testing.T) {
		router, _, mock := newMockRouter(t)
		require.NoError(t, router.Provision(ctx, "public"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bypasses a cached answer", func(t *testing.T) {
		pc := cache.NewInMemoryProvisionCache(time.Minute)
		defer pc.Close()
		require.NoError(t, pc.Remember(ctx, "t_acme"))

		router, _, mock := newMockRouter(t, WithProvisionCache(pc))
		expectProvision(mock, "t_acme", true)

		require.NoError(t, router.Provision(ctx, "t_acme"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects invalid identifiers", func(t *testing.T) {
		router, _, _ := newMockRouter(t)
		assert.ErrorIs(t, router.Provision(ctx, "bad-name"), tenancy.ErrInvalidIdentifier)
	})
}

func TestConnectionRouter_NamespaceExists(t *testing.T) {
	router, _, mock := newMockRouter(t)
	mock.ExpectQuery(namespaceExistsQuery).
		WithArgs("t_acme").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := router.NamespaceExists(context.Background(), "t_acme")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSearchPathDirective(t *testing.T) {
	assert.Equal(t, `SET search_path TO "public"`, SearchPathDirective("public", "public"))
	assert.Equal(t, `SET search_path TO "t_acme", "public"`, SearchPathDirective("t_acme", "public"))
}

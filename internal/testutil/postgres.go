// Package testutil starts disposable PostgreSQL instances for integration
// tests and migrates the default namespace into them.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/erp/tenancy/internal/infrastructure/migration"
	"github.com/erp/tenancy/internal/infrastructure/persistence"
)

// DefaultNamespace is the namespace the test database is migrated into
const DefaultNamespace = "public"

// TestDB is a migrated PostgreSQL container
type TestDB struct {
	*persistence.Database
	DSN    string
	Logger *zap.Logger
}

// SkipIfShort skips integration tests under -short
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestDB starts a fresh PostgreSQL container, migrates the default
// namespace and registers cleanup on t.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("tenancy_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	sqlDB, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	// Nested REQUIRES_NEW transactions hold one connection per level.
	sqlDB.SetMaxOpenConns(10)
	require.NoError(t, sqlDB.PingContext(ctx))

	log := zaptest.NewLogger(t)
	runMigrations(t, sqlDB, log)

	db, err := persistence.FromSQL(sqlDB, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &TestDB{Database: db, DSN: dsn, Logger: log}
}

// SchemaExists reports whether namespace exists in the catalog
func (tdb *TestDB) SchemaExists(t *testing.T, namespace string) bool {
	t.Helper()
	var exists bool
	err := tdb.SQL.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)", namespace,
	).Scan(&exists)
	require.NoError(t, err)
	return exists
}

// CountRows counts the rows of namespace.table
func (tdb *TestDB) CountRows(t *testing.T, namespace, table string) int64 {
	t.Helper()
	var n int64
	err := tdb.DB.Table(namespace + "." + table).Count(&n).Error
	require.NoError(t, err)
	return n
}

func runMigrations(t *testing.T, sqlDB *sql.DB, log *zap.Logger) {
	t.Helper()
	m, err := migration.New(sqlDB, MigrationsPath(), DefaultNamespace, log)
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")
}

// MigrationsPath returns the absolute path of the repository's migrations directory
func MigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

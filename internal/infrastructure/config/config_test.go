package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"TENANCY_APP_ENV",
	"TENANCY_JWT_SECRET",
	"TENANCY_DATABASE_PASSWORD",
	"TENANCY_DATABASE_SSLMODE",
	"TENANCY_DATABASE_MAX_OPEN_CONNS",
	"TENANCY_DATABASE_MAX_IDLE_CONNS",
	"TENANCY_TENANCY_DEFAULT_NAMESPACE",
	"TENANCY_TENANCY_VERIFIER_ENABLED",
	"TENANCY_TENANCY_PROVISION_CACHE",
	"TENANCY_TENANCY_RELEASE_TIMEOUT",
	"TENANCY_AUDIT_FLUSH_POLICY",
	"TENANCY_TELEMETRY_SAMPLING_RATIO",
	"TENANCY_TELEMETRY_PROFILING_ENABLED",
	"TENANCY_TELEMETRY_PROFILING_SERVER_ADDRESS",
}

// isolateEnv clears every config variable for the duration of the test
func isolateEnv(t *testing.T) {
	t.Helper()
	original := make(map[string]string, len(envKeys))
	for _, k := range envKeys {
		original[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for k, v := range original {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		isolateEnv(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "tenancy-service", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, "public", cfg.Tenancy.DefaultNamespace)
		assert.True(t, cfg.Tenancy.VerifierEnabled)
		assert.True(t, cfg.Tenancy.TenantMigrationsEnabled)
		assert.Equal(t, ProvisionCacheNone, cfg.Tenancy.ProvisionCache)
		assert.Equal(t, 5*time.Second, cfg.Tenancy.ReleaseTimeout)
		assert.Equal(t, AuditFlushOnCommit, cfg.Audit.FlushPolicy)
		assert.Equal(t, DefaultScopedPackages, cfg.Tenancy.ScopedPackages)
		assert.Contains(t, cfg.Tenancy.ScopedPackages, "github.com/erp/tenancy/internal/domain/catalog")
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
		assert.False(t, cfg.Telemetry.DBTracing)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("TENANCY_TENANCY_PROVISION_CACHE", "memory")
		os.Setenv("TENANCY_AUDIT_FLUSH_POLICY", "completion")
		os.Setenv("TENANCY_TENANCY_RELEASE_TIMEOUT", "2s")
		os.Setenv("TENANCY_TENANCY_VERIFIER_ENABLED", "false")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ProvisionCacheMemory, cfg.Tenancy.ProvisionCache)
		assert.Equal(t, AuditFlushOnCompletion, cfg.Audit.FlushPolicy)
		assert.Equal(t, 2*time.Second, cfg.Tenancy.ReleaseTimeout)
		assert.False(t, cfg.Tenancy.VerifierEnabled)
	})

	t.Run("rejects unknown provision cache", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("TENANCY_TENANCY_PROVISION_CACHE", "memcached")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tenancy.provision_cache")
	})

	t.Run("rejects unknown flush policy", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("TENANCY_AUDIT_FLUSH_POLICY", "eventually")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audit.flush_policy")
	})

	t.Run("rejects a sampling ratio outside [0, 1]", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("TENANCY_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.sampling_ratio")
	})

	t.Run("requires a profiling server address when profiling is enabled", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("TENANCY_TELEMETRY_PROFILING_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.profiling_server_address")

		os.Setenv("TENANCY_TELEMETRY_PROFILING_SERVER_ADDRESS", "http://pyroscope:4040")
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Telemetry.ProfilingEnabled)
		assert.Equal(t, "http://pyroscope:4040", cfg.Telemetry.ProfilingServerAddress)
	})

	t.Run("rejects a pool too small for nested transactions", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("TENANCY_DATABASE_MAX_OPEN_CONNS", "1")
		os.Setenv("TENANCY_DATABASE_MAX_IDLE_CONNS", "1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 2")
	})

	t.Run("rejects idle conns above open conns", func(t *testing.T) {
		isolateEnv(t)
		os.Setenv("TENANCY_DATABASE_MAX_OPEN_CONNS", "5")
		os.Setenv("TENANCY_DATABASE_MAX_IDLE_CONNS", "10")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func() {
		os.Setenv("TENANCY_APP_ENV", "production")
		os.Setenv("TENANCY_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		os.Setenv("TENANCY_DATABASE_PASSWORD", "secure-password")
		os.Setenv("TENANCY_DATABASE_SSLMODE", "require")
	}

	t.Run("requires jwt.secret in production", func(t *testing.T) {
		isolateEnv(t)
		setValidProductionBase()
		os.Unsetenv("TENANCY_JWT_SECRET")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required in production")
	})

	t.Run("requires jwt.secret at least 32 characters in production", func(t *testing.T) {
		isolateEnv(t)
		setValidProductionBase()
		os.Setenv("TENANCY_JWT_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		isolateEnv(t)
		setValidProductionBase()
		os.Unsetenv("TENANCY_DATABASE_PASSWORD")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		isolateEnv(t)
		setValidProductionBase()
		os.Setenv("TENANCY_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("refuses to disable the wiring verifier in production", func(t *testing.T) {
		isolateEnv(t)
		setValidProductionBase()
		os.Setenv("TENANCY_TENANCY_VERIFIER_ENABLED", "false")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "verifier_enabled")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		isolateEnv(t)
		setValidProductionBase()

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "/testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", cfg.Addr())
}

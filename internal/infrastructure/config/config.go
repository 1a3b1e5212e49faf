package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Tenancy   TenancyConfig
	Audit     AuditConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
	// TenantHeaderEnabled allows X-Tenant-ID when no bearer token carries a tenant
	TenantHeaderEnabled bool
	// TenantBaseDomain enables subdomain tenant extraction when set (acme.erp.example -> acme)
	TenantBaseDomain string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
	ExportInterval    time.Duration
	SamplingRatio     float64
	DBTracing         bool
	DBTracingFullSQL  bool
	// Continuous profiling, independent of Enabled
	ProfilingEnabled       bool
	ProfilingServerAddress string
	ProfilingTypes         []string
	// SpanProfiles links CPU samples to spans; needs both tracing and profiling
	SpanProfiles bool
}

// Provision cache backends
const (
	ProvisionCacheNone   = "none"
	ProvisionCacheMemory = "memory"
	ProvisionCacheRedis  = "redis"
)

// DefaultScopedPackages covers the application services and the repository ports
var DefaultScopedPackages = []string{
	"github.com/erp/tenancy/internal/application",
	"github.com/erp/tenancy/internal/domain/catalog",
	"github.com/erp/tenancy/internal/domain/audit",
}

// TenancyConfig holds namespace routing settings
type TenancyConfig struct {
	// DefaultNamespace is the reserved namespace used when no tenant is bound
	DefaultNamespace string
	// VerifierEnabled turns the startup wiring verifier on (disable only in constrained test setups)
	VerifierEnabled bool
	// ScopedPackages are package path prefixes whose components must declare a transaction scope
	ScopedPackages []string
	// ProvisionCache is one of none, memory, redis
	ProvisionCache    string
	ProvisionCacheTTL time.Duration
	// ReleaseTimeout bounds the search path reset done when a connection is returned
	ReleaseTimeout time.Duration
	// TenantMigrationsEnabled migrates tenant tables when a namespace is onboarded
	TenantMigrationsEnabled bool
}

// Audit flush policies
const (
	AuditFlushOnCommit     = "commit"
	AuditFlushOnCompletion = "completion"
)

// AuditConfig holds deferred audit dispatch settings
type AuditConfig struct {
	// FlushPolicy is "commit" (flush only after a successful commit) or
	// "completion" (flush after commit or rollback)
	FlushPolicy string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with TENANCY_ prefix (e.g., TENANCY_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("TENANCY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true need explicit viper defaults,
	// otherwise an unset key reads as false.
	v.SetDefault("tenancy.verifier_enabled", true)
	v.SetDefault("tenancy.tenant_migrations_enabled", true)
	v.SetDefault("http.tenant_header_enabled", true)
	v.SetDefault("telemetry.sampling_ratio", 1.0)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:         v.GetDuration("http.read_timeout"),
			WriteTimeout:        v.GetDuration("http.write_timeout"),
			IdleTimeout:         v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:      v.GetInt("http.max_header_bytes"),
			TrustedProxies:      v.GetStringSlice("http.trusted_proxies"),
			TenantHeaderEnabled: v.GetBool("http.tenant_header_enabled"),
			TenantBaseDomain:    v.GetString("http.tenant_base_domain"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			DBTracing:         v.GetBool("telemetry.db_tracing"),
			DBTracingFullSQL:  v.GetBool("telemetry.db_tracing_full_sql"),

			ProfilingEnabled:       v.GetBool("telemetry.profiling_enabled"),
			ProfilingServerAddress: v.GetString("telemetry.profiling_server_address"),
			ProfilingTypes:         v.GetStringSlice("telemetry.profiling_types"),
			SpanProfiles:           v.GetBool("telemetry.span_profiles"),
		},
		Tenancy: TenancyConfig{
			DefaultNamespace:        v.GetString("tenancy.default_namespace"),
			VerifierEnabled:         v.GetBool("tenancy.verifier_enabled"),
			ScopedPackages:          v.GetStringSlice("tenancy.scoped_packages"),
			ProvisionCache:          v.GetString("tenancy.provision_cache"),
			ProvisionCacheTTL:       v.GetDuration("tenancy.provision_cache_ttl"),
			ReleaseTimeout:          v.GetDuration("tenancy.release_timeout"),
			TenantMigrationsEnabled: v.GetBool("tenancy.tenant_migrations_enabled"),
		},
		Audit: AuditConfig{
			FlushPolicy: v.GetString("audit.flush_policy"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "tenancy-service"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "tenancy"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "tenancy-service"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "tenancy-service"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 60 * time.Second
	}
	if cfg.Tenancy.DefaultNamespace == "" {
		cfg.Tenancy.DefaultNamespace = "public"
	}
	if len(cfg.Tenancy.ScopedPackages) == 0 {
		cfg.Tenancy.ScopedPackages = slices.Clone(DefaultScopedPackages)
	}
	if cfg.Tenancy.ProvisionCache == "" {
		cfg.Tenancy.ProvisionCache = ProvisionCacheNone
	}
	if cfg.Tenancy.ProvisionCacheTTL == 0 {
		cfg.Tenancy.ProvisionCacheTTL = 10 * time.Minute
	}
	if cfg.Tenancy.ReleaseTimeout == 0 {
		cfg.Tenancy.ReleaseTimeout = 5 * time.Second
	}
	if cfg.Audit.FlushPolicy == "" {
		cfg.Audit.FlushPolicy = AuditFlushOnCommit
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	// A REQUIRES_NEW transaction holds a second connection while the outer one is suspended
	if c.Database.MaxOpenConns < 2 {
		return fmt.Errorf("database.max_open_conns must be at least 2 to allow nested REQUIRES_NEW transactions")
	}

	if !slices.Contains([]string{ProvisionCacheNone, ProvisionCacheMemory, ProvisionCacheRedis}, c.Tenancy.ProvisionCache) {
		return fmt.Errorf("tenancy.provision_cache must be one of none, memory, redis, got %q", c.Tenancy.ProvisionCache)
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be within [0, 1], got %v", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingServerAddress == "" {
		return fmt.Errorf("telemetry.profiling_server_address is required when profiling is enabled")
	}
	if c.Audit.FlushPolicy != AuditFlushOnCommit && c.Audit.FlushPolicy != AuditFlushOnCompletion {
		return fmt.Errorf("audit.flush_policy must be commit or completion, got %q", c.Audit.FlushPolicy)
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if !c.Tenancy.VerifierEnabled {
			return fmt.Errorf("tenancy.verifier_enabled cannot be false in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address in host:port form
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

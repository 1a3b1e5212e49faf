package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	auditapp "github.com/erp/tenancy/internal/application/audit"
	catalogapp "github.com/erp/tenancy/internal/application/catalog"
	tenancyapp "github.com/erp/tenancy/internal/application/tenancy"
	"github.com/erp/tenancy/internal/domain/tenancy"
	"github.com/erp/tenancy/internal/infrastructure/auth"
	"github.com/erp/tenancy/internal/infrastructure/bootstrap"
	"github.com/erp/tenancy/internal/infrastructure/cache"
	"github.com/erp/tenancy/internal/infrastructure/config"
	"github.com/erp/tenancy/internal/infrastructure/logger"
	"github.com/erp/tenancy/internal/infrastructure/migration"
	"github.com/erp/tenancy/internal/infrastructure/persistence"
	"github.com/erp/tenancy/internal/infrastructure/persistence/tenant"
	"github.com/erp/tenancy/internal/infrastructure/persistence/txn"
	"github.com/erp/tenancy/internal/infrastructure/telemetry"
	"github.com/erp/tenancy/internal/infrastructure/wiring"
	"github.com/erp/tenancy/internal/interfaces/http/handler"
	"github.com/erp/tenancy/internal/interfaces/http/middleware"
	"github.com/erp/tenancy/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting tenancy service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("default_namespace", cfg.Tenancy.DefaultNamespace),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Traces and logs
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.TracerConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Continuous profiling; span profiles need the profiler running first
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
		ProfileTypes:    cfg.Telemetry.ProfilingTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if cfg.Telemetry.SpanProfiles && profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize OTEL logs", zap.Error(err))
	}
	defer func() {
		if err := loggerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()
	log = loggerProvider.Bridge(log, cfg.Telemetry.ServiceName)

	// Metrics
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()
	meter := meterProvider.Meter(cfg.Telemetry.ServiceName)
	metrics, err := telemetry.NewTenancyMetrics(meter)
	if err != nil {
		log.Fatal("Failed to register tenancy metrics", zap.Error(err))
	}

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTracing,
		LogFullSQL:      cfg.Telemetry.DBTracingFullSQL,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	poolMetrics, err := telemetry.NewPoolMetrics(meter, db.SQL, 15*time.Second, log)
	if err != nil {
		log.Fatal("Failed to register pool metrics", zap.Error(err))
	}
	poolMetrics.Start(ctx)
	defer poolMetrics.Stop()

	// Namespace routing
	provisionCache, err := cache.NewProvisionCache(cfg.Tenancy, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to create provision cache", zap.Error(err))
	}
	routerOpts := []tenant.Option{
		tenant.WithReleaseTimeout(cfg.Tenancy.ReleaseTimeout),
		tenant.WithLogger(log.Named("tenant")),
		tenant.WithMetrics(metrics),
	}
	if provisionCache != nil {
		defer func() { _ = provisionCache.Close() }()
		routerOpts = append(routerOpts, tenant.WithProvisionCache(provisionCache))
	}

	resolver := tenancy.NewResolver(cfg.Tenancy.DefaultNamespace)
	connRouter := tenant.NewConnectionRouter(db.SQL, resolver, routerOpts...)

	// Transaction managers, each bound to its own scope
	publicManager := txn.NewPublicManager(connRouter, db.DB, log)
	tenantManager := txn.NewTenantManager(connRouter, resolver, db.DB, log)
	executor, executorErr := txn.NewExecutor(publicManager, tenantManager, log, metrics)

	// Application services
	dispatcher := auditapp.NewDispatcher(executor,
		persistence.NewGormAuditEventRepository(),
		auditapp.WithFlushPolicy(cfg.Audit.FlushPolicy),
		auditapp.WithLogger(log.Named("audit")),
		auditapp.WithMetrics(metrics),
	)
	auditQueryService := auditapp.NewQueryService(executor, persistence.NewGormAuditEventRepository())
	productService := catalogapp.NewProductService(executor, persistence.NewGormProductRepository(), dispatcher)

	var migrator tenancyapp.SchemaMigrator
	if cfg.Tenancy.TenantMigrationsEnabled {
		migrator = migration.NewTenantSchema(log)
	}
	onboardingService := tenancyapp.NewOnboardingService(executor, connRouter, migrator, resolver, dispatcher, log)

	// Startup checks: manager bindings, component declarations, default namespace
	registry := bootstrap.ComponentRegistry(dispatcher, auditQueryService, productService, onboardingService)
	verifier := wiring.NewVerifier(registry, cfg.Tenancy.ScopedPackages, cfg.Tenancy.VerifierEnabled, log)

	checkCtx, cancelChecks := context.WithTimeout(ctx, 30*time.Second)
	err = bootstrap.CheckStartup(checkCtx, log,
		bootstrap.ErrorCheck("transaction managers", executorErr),
		bootstrap.WiringCheck(verifier),
		bootstrap.DefaultNamespaceCheck(connRouter, cfg.Tenancy.DefaultNamespace),
	)
	cancelChecks()
	if err != nil {
		log.Fatal("Startup checks failed", zap.Error(err))
	}

	// HTTP
	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to set up request validator", zap.Error(err))
	}
	jwtService := auth.NewJWTService(cfg.JWT)

	r, err := router.NewRouter(router.Config{
		Logger: log,
		JWT:    middleware.DefaultJWTConfig(jwtService),
		Tenant: middleware.TenantMiddlewareConfig{
			HeaderEnabled:    cfg.HTTP.TenantHeaderEnabled,
			SubdomainEnabled: cfg.HTTP.TenantBaseDomain != "",
			BaseDomain:       cfg.HTTP.TenantBaseDomain,
			Logger:           log,
		},
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}, router.WithHealth(handler.NewHealthHandler(db, cfg.Tenancy.DefaultNamespace).Health))
	if err != nil {
		log.Fatal("Failed to create router", zap.Error(err))
	}
	engine := r.
		Register(handler.NewTenantHandler(onboardingService)).
		Register(handler.NewAuditHandler(auditQueryService)).
		Register(handler.NewProductHandler(productService)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully", zap.Any("pool", db.Stats()))
}

package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/erp/tenancy/internal/domain/tenancy"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include bind variables in spans, dev only
	SlowQueryThresh time.Duration // default 200ms
	DBSystem        string        // default "postgresql"
	// TracerProvider overrides the global provider
	TracerProvider trace.TracerProvider
}

// DefaultDBTracingConfig returns database tracing defaults
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

type queryStartKey struct{}

// RegisterDBTracing installs the otelgorm plugin on db. Each statement span is
// additionally tagged with the tenant bound to the unit of work and flagged
// when it exceeds the slow-query threshold. Sessions derived from db, including
// per-transaction sessions on pinned connections, inherit the callbacks.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}

	// Pool stats are exported by PoolMetrics
	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem), otelgorm.WithoutMetrics()}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(cfg.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	after := func(tx *gorm.DB) { annotateSpan(tx, cfg.SlowQueryThresh) }

	// The annotating hook must run while the otelgorm span is still open.
	cb := db.Callback()
	registrations := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("tenancy_trace:before_create", before) },
		func() error { return cb.Query().Before("gorm:query").Register("tenancy_trace:before_query", before) },
		func() error { return cb.Update().Before("gorm:update").Register("tenancy_trace:before_update", before) },
		func() error { return cb.Delete().Before("gorm:delete").Register("tenancy_trace:before_delete", before) },
		func() error { return cb.Row().Before("gorm:row").Register("tenancy_trace:before_row", before) },
		func() error { return cb.Raw().Before("gorm:raw").Register("tenancy_trace:before_raw", before) },
		func() error {
			return cb.Create().After("gorm:create").Before("otel:after:create").Register("tenancy_trace:after_create", after)
		},
		func() error {
			return cb.Query().After("gorm:query").Before("otel:after:select").Register("tenancy_trace:after_query", after)
		},
		func() error {
			return cb.Update().After("gorm:update").Before("otel:after:update").Register("tenancy_trace:after_update", after)
		},
		func() error {
			return cb.Delete().After("gorm:delete").Before("otel:after:delete").Register("tenancy_trace:after_delete", after)
		},
		func() error {
			return cb.Row().After("gorm:row").Before("otel:after:row").Register("tenancy_trace:after_row", after)
		},
		func() error {
			return cb.Raw().After("gorm:raw").Before("otel:after:raw").Register("tenancy_trace:after_raw", after)
		},
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
		zap.String("db_system", cfg.DBSystem),
	)
	return nil
}

func annotateSpan(db *gorm.DB, slowThresh time.Duration) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if tenantID, ok := tenancy.Current(ctx); ok {
		span.SetAttributes(attribute.String(SpanAttrTenantID, tenantID))
	}
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > slowThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}

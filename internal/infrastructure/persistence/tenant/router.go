// Package tenant routes pooled connections to tenant namespaces.
//
// Every connection handed out by ConnectionRouter has had its search path
// pinned to exactly one namespace (plus the default namespace as fallback for
// shared objects), and every connection handed back is reset to the default
// namespace before it returns to the pool.
package tenant

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/erp/tenancy/internal/domain/shared"
	"github.com/erp/tenancy/internal/domain/tenancy"
	"github.com/erp/tenancy/internal/infrastructure/cache"
	"github.com/erp/tenancy/internal/infrastructure/telemetry"
)

// Errors returned while routing a connection
var (
	ErrProvisioningFailed = shared.NewDomainError("NAMESPACE_PROVISIONING_FAILED", "namespace provisioning failed")
	ErrNamespaceMissing   = errors.New("namespace missing after create")
)

const namespaceExistsQuery = `SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`

// DefaultReleaseTimeout bounds the search path reset when none is configured
const DefaultReleaseTimeout = 5 * time.Second

// ConnectionRouter borrows connections from the shared pool and pins them to a namespace
type ConnectionRouter struct {
	db             *sql.DB
	resolver       *tenancy.Resolver
	cache          cache.ProvisionCache
	releaseTimeout time.Duration
	logger         *zap.Logger
	metrics        *telemetry.TenancyMetrics
}

// Option configures a ConnectionRouter
type Option func(*ConnectionRouter)

// WithProvisionCache lets known namespaces skip the create and lookup round trips
func WithProvisionCache(c cache.ProvisionCache) Option {
	return func(r *ConnectionRouter) {
		r.cache = c
	}
}

// WithReleaseTimeout bounds the reset issued when a connection is released
func WithReleaseTimeout(d time.Duration) Option {
	return func(r *ConnectionRouter) {
		if d > 0 {
			r.releaseTimeout = d
		}
	}
}

// WithLogger sets the router logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *ConnectionRouter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records borrows, provisioning and release failures
func WithMetrics(m *telemetry.TenancyMetrics) Option {
	return func(r *ConnectionRouter) {
		r.metrics = m
	}
}

// NewConnectionRouter creates a router over db
func NewConnectionRouter(db *sql.DB, resolver *tenancy.Resolver, opts ...Option) *ConnectionRouter {
	r := &ConnectionRouter{
		db:             db,
		resolver:       resolver,
		releaseTimeout: DefaultReleaseTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultNamespace returns the namespace used when nothing is requested
func (r *ConnectionRouter) DefaultNamespace() string {
	return r.resolver.Default()
}

// GetConnection returns a connection pinned to requested, or to the default
// namespace when requested is blank. Non-default namespaces are created if
// absent. On any failure after the connection is borrowed, the physical
// connection is discarded rather than returned to the pool.
func (r *ConnectionRouter) GetConnection(ctx context.Context, requested string) (*sql.Conn, error) {
	effective := requested
	if tenancy.IsBlank(effective) {
		effective = r.resolver.Default()
	}
	if err := tenancy.ValidateIdentifier(effective); err != nil {
		return nil, err
	}
	root := r.resolver.IsRoot(effective)

	conn, err := r.db.Conn(ctx)
	if err != nil {
		r.metrics.RecordBorrow(ctx, root, err)
		return nil, fmt.Errorf("%w: borrow connection for %q: %w", ErrProvisioningFailed, effective, err)
	}

	if !root {
		if err := r.ensure(ctx, conn, effective); err != nil {
			r.discard(conn)
			r.metrics.RecordBorrow(ctx, root, err)
			return nil, fmt.Errorf("%w: %q: %w", ErrProvisioningFailed, effective, err)
		}
	}

	if err := r.pin(ctx, conn, effective); err != nil {
		r.discard(conn)
		r.metrics.RecordBorrow(ctx, root, err)
		return nil, fmt.Errorf("%w: set search path for %q: %w", ErrProvisioningFailed, effective, err)
	}

	r.metrics.RecordBorrow(ctx, root, nil)
	return conn, nil
}

// ReleaseConnection resets conn to the default namespace and returns it to the
// pool. The reset runs on a context detached from ctx's cancellation so an
// aborted request still cleans up; if the reset fails the physical connection
// is discarded. conn is closed in every case.
func (r *ConnectionRouter) ReleaseConnection(ctx context.Context, namespace string, conn *sql.Conn) {
	if conn == nil {
		return
	}

	resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.releaseTimeout)
	defer cancel()

	if err := r.pin(resetCtx, conn, r.resolver.Default()); err != nil {
		r.logger.Warn("Failed to reset search path, discarding connection",
			zap.String("namespace", namespace),
			zap.Error(err),
		)
		r.metrics.RecordReleaseFailure(ctx)
		r.discard(conn)
		return
	}

	if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		r.logger.Warn("Failed to return connection to pool", zap.String("namespace", namespace), zap.Error(err))
	}
}

// Provision creates namespace if it does not exist. The default namespace is
// never provisioned on demand.
func (r *ConnectionRouter) Provision(ctx context.Context, namespace string) error {
	if err := tenancy.ValidateIdentifier(namespace); err != nil {
		return err
	}
	if r.resolver.IsRoot(namespace) {
		return nil
	}

	// Onboarding always goes to the catalog, never trusts a cached answer.
	if r.cache != nil {
		if err := r.cache.Forget(ctx, namespace); err != nil {
			r.logger.Warn("Provision cache eviction failed", zap.String("namespace", namespace), zap.Error(err))
		}
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: borrow connection for %q: %w", ErrProvisioningFailed, namespace, err)
	}
	defer conn.Close()

	if err := r.ensure(ctx, conn, namespace); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrProvisioningFailed, namespace, err)
	}
	return nil
}

// NamespaceExists reports whether namespace exists, bypassing the provision cache
func (r *ConnectionRouter) NamespaceExists(ctx context.Context, namespace string) (bool, error) {
	if err := tenancy.ValidateIdentifier(namespace); err != nil {
		return false, err
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, namespaceExistsQuery, namespace).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup namespace %q: %w", namespace, err)
	}
	return exists, nil
}

// ensure creates namespace if absent and re-checks it through the catalog,
// which also covers a concurrent provisioner winning the race.
func (r *ConnectionRouter) ensure(ctx context.Context, conn *sql.Conn, namespace string) error {
	if r.cache != nil {
		known, err := r.cache.Known(ctx, namespace)
		if err != nil {
			r.logger.Warn("Provision cache lookup failed", zap.String("namespace", namespace), zap.Error(err))
		}
		if known {
			r.metrics.RecordProvision(ctx, true, nil)
			return nil
		}
	}

	err := createNamespace(ctx, conn, namespace)
	r.metrics.RecordProvision(ctx, false, err)
	if err != nil {
		return err
	}

	if r.cache != nil {
		if err := r.cache.Remember(ctx, namespace); err != nil {
			r.logger.Warn("Provision cache update failed", zap.String("namespace", namespace), zap.Error(err))
		}
	}
	return nil
}

func createNamespace(ctx context.Context, conn *sql.Conn, namespace string) error {
	if _, err := conn.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(namespace)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var exists bool
	if err := conn.QueryRowContext(ctx, namespaceExistsQuery, namespace).Scan(&exists); err != nil {
		return fmt.Errorf("lookup schema: %w", err)
	}
	if !exists {
		return ErrNamespaceMissing
	}
	return nil
}

// pin sets the search path. Both names have already passed ValidateIdentifier
// and are quoted, so nothing unvalidated reaches the directive.
func (r *ConnectionRouter) pin(ctx context.Context, conn *sql.Conn, namespace string) error {
	_, err := conn.ExecContext(ctx, SearchPathDirective(namespace, r.resolver.Default()))
	return err
}

// SearchPathDirective builds the SET search_path statement for namespace
func SearchPathDirective(namespace, defaultNamespace string) string {
	if namespace == defaultNamespace {
		return "SET search_path TO " + pq.QuoteIdentifier(defaultNamespace)
	}
	return "SET search_path TO " + pq.QuoteIdentifier(namespace) + ", " + pq.QuoteIdentifier(defaultNamespace)
}

// discard closes the physical connection instead of returning it to the pool
func (r *ConnectionRouter) discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}

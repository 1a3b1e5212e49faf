package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router hands out connections pinned to a namespace and takes them back
type Router interface {
	GetConnection(ctx context.Context, namespace string) (*sql.Conn, error)
	ReleaseConnection(ctx context.Context, namespace string, conn *sql.Conn)
	DefaultNamespace() string
}

// NamespaceResolver answers which namespace the current unit of work belongs to
type NamespaceResolver interface {
	ResolveCurrent(ctx context.Context) string
}

// TransactionManager begins and completes physical transactions for one scope
type TransactionManager interface {
	Scope() Scope
	Begin(ctx context.Context, def Definition) (*Transaction, error)
	Commit(ctx context.Context, tx *Transaction) error
	Rollback(ctx context.Context, tx *Transaction) error
}

type handle struct {
	conn *sql.Conn
	tx   *sql.Tx
}

// NamespaceManager is the only TransactionManager the Executor accepts.
// It borrows a pinned connection from the Router per transaction and exposes
// a gorm session bound to the *sql.Tx on that connection.
type NamespaceManager struct {
	scope    Scope
	router   Router
	resolver NamespaceResolver
	base     *gorm.DB
	logger   *zap.Logger
}

// NewPublicManager creates the manager that pins every transaction to the default namespace
func NewPublicManager(router Router, base *gorm.DB, logger *zap.Logger) *NamespaceManager {
	return newNamespaceManager(ScopePublic, router, nil, base, logger)
}

// NewTenantManager creates the manager that pins every transaction to the
// namespace resolved for the current unit of work
func NewTenantManager(router Router, resolver NamespaceResolver, base *gorm.DB, logger *zap.Logger) *NamespaceManager {
	return newNamespaceManager(ScopeTenant, router, resolver, base, logger)
}

func newNamespaceManager(scope Scope, router Router, resolver NamespaceResolver, base *gorm.DB, logger *zap.Logger) *NamespaceManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NamespaceManager{
		scope:    scope,
		router:   router,
		resolver: resolver,
		base:     base,
		logger:   logger.Named(scope.String() + "-tx"),
	}
}

// Scope returns the scope this manager serves
func (m *NamespaceManager) Scope() Scope {
	return m.scope
}

func (m *NamespaceManager) namespace(ctx context.Context) string {
	if m.scope == ScopeTenant && m.resolver != nil {
		return m.resolver.ResolveCurrent(ctx)
	}
	return m.router.DefaultNamespace()
}

// Begin borrows a pinned connection and opens a transaction on it.
// The read-only flag of def is recorded as a hint only.
func (m *NamespaceManager) Begin(ctx context.Context, def Definition) (*Transaction, error) {
	if def.Scope != m.scope {
		return nil, fmt.Errorf("%w: %s manager cannot begin %s", ErrManagerKindMismatch, m.scope, def)
	}

	namespace := m.namespace(ctx)
	conn, err := m.router.GetConnection(ctx, namespace)
	if err != nil {
		return nil, err
	}

	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		m.router.ReleaseConnection(ctx, namespace, conn)
		return nil, fmt.Errorf("begin %s transaction: %w", m.scope, err)
	}

	// Same construction gorm uses for its own Begin: a fresh session whose
	// statements all run on the *sql.Tx.
	session := m.base.Session(&gorm.Session{Context: ctx, NewDB: true})
	session.Statement.ConnPool = sqlTx

	tx := &Transaction{
		id:         uuid.NewString(),
		definition: def,
		namespace:  namespace,
		handle:     &handle{conn: conn, tx: sqlTx},
		db:         session,
		started:    time.Now(),
	}
	m.logger.Debug("Transaction begun",
		zap.String("tx_id", tx.id),
		zap.String("definition", def.String()),
		zap.String("namespace", namespace),
	)
	return tx, nil
}

// Commit commits tx and releases its connection
func (m *NamespaceManager) Commit(ctx context.Context, tx *Transaction) error {
	defer m.router.ReleaseConnection(ctx, tx.namespace, tx.handle.conn)

	if err := tx.handle.tx.Commit(); err != nil {
		return fmt.Errorf("commit %s transaction: %w", m.scope, err)
	}
	return nil
}

// Rollback rolls tx back and releases its connection. A transaction the
// driver already aborted (for example on context cancellation) is not an error.
func (m *NamespaceManager) Rollback(ctx context.Context, tx *Transaction) error {
	defer m.router.ReleaseConnection(ctx, tx.namespace, tx.handle.conn)

	if err := tx.handle.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback %s transaction: %w", m.scope, err)
	}
	return nil
}

var _ TransactionManager = (*NamespaceManager)(nil)

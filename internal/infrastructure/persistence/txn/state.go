package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/erp/tenancy/internal/domain/shared"
	"github.com/erp/tenancy/internal/domain/tenancy"
)

// Errors returned by the transaction layer
var (
	ErrManagerKindMismatch = shared.NewDomainError("MANAGER_KIND_MISMATCH", "transaction manager is not a namespace manager bound to the expected scope")
	ErrScopeConflict       = shared.NewDomainError("TRANSACTION_SCOPE_CONFLICT", "a transaction of another scope is active on this unit of work")
	ErrUnexpectedRollback  = shared.NewDomainError("UNEXPECTED_ROLLBACK", "transaction was marked rollback-only by a participant")
	ErrNoTransaction       = shared.NewDomainError("NO_TRANSACTION", "no transaction is active on the context")
)

// Outcome is how a physical transaction ended
type Outcome int

const (
	OutcomeCommitted Outcome = iota + 1
	OutcomeRolledBack
)

func (o Outcome) String() string {
	if o == OutcomeCommitted {
		return "commit"
	}
	return "rollback"
}

// Synchronization runs once after a transaction completes. ctx carries no
// active transaction.
type Synchronization func(ctx context.Context, outcome Outcome)

// Transaction is one physical transaction on a pinned connection
type Transaction struct {
	id         string
	definition Definition
	namespace  string
	handle     *handle
	db         *gorm.DB
	suspended  *Transaction
	started    time.Time

	mu           sync.Mutex
	rollbackOnly bool
	completing   bool
	syncs        []Synchronization
}

// ID returns the transaction id (for logs)
func (t *Transaction) ID() string { return t.id }

// Scope returns the scope of the manager that began the transaction
func (t *Transaction) Scope() Scope { return t.definition.Scope }

// Definition returns the definition the transaction was begun with
func (t *Transaction) Definition() Definition { return t.definition }

// Namespace returns the namespace the connection is pinned to
func (t *Transaction) Namespace() string { return t.namespace }

// ReadOnly reports the read-only hint. It is not enforced.
func (t *Transaction) ReadOnly() bool { return t.definition.ReadOnly }

// SetRollbackOnly forces the owner to roll back
func (t *Transaction) SetRollbackOnly() {
	t.mu.Lock()
	t.rollbackOnly = true
	t.mu.Unlock()
}

// IsRollbackOnly reports whether a participant marked the transaction for rollback
func (t *Transaction) IsRollbackOnly() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbackOnly
}

func (t *Transaction) register(s Synchronization) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completing {
		return false
	}
	t.syncs = append(t.syncs, s)
	return true
}

// takeSynchronizations closes registration and returns what was registered
func (t *Transaction) takeSynchronizations() []Synchronization {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completing = true
	syncs := t.syncs
	t.syncs = nil
	return syncs
}

func (t *Transaction) synchronizationActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.completing
}

func (t *Transaction) suspendedDepth() int {
	depth := 0
	for s := t.suspended; s != nil; s = s.suspended {
		depth++
	}
	return depth
}

type txKey struct{}

type dbKey struct{}

func withTransaction(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// withoutTransaction masks every transaction on ctx, including suspended ones
func withoutTransaction(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey{}, (*Transaction)(nil))
}

// Current returns the transaction active on ctx, or nil
func Current(ctx context.Context) *Transaction {
	tx, _ := ctx.Value(txKey{}).(*Transaction)
	return tx
}

// IsActive reports whether a transaction is active on ctx
func IsActive(ctx context.Context) bool {
	return Current(ctx) != nil
}

// IsSynchronizationActive reports whether synchronizations can still be
// registered on the transaction active on ctx
func IsSynchronizationActive(ctx context.Context) bool {
	tx := Current(ctx)
	return tx != nil && tx.synchronizationActive()
}

// RegisterSynchronization runs s after the transaction active on ctx completes.
// Registrations made while joined to an outer transaction attach to the owner.
func RegisterSynchronization(ctx context.Context, s Synchronization) error {
	tx := Current(ctx)
	if tx == nil || !tx.register(s) {
		return ErrNoTransaction
	}
	return nil
}

// WithDB attaches a caller-managed handle that DB returns when no transaction
// is active. Used by migrations and repository tests.
func WithDB(ctx context.Context, db *gorm.DB) context.Context {
	return context.WithValue(ctx, dbKey{}, db)
}

// DB returns the session bound to the active transaction, or the handle
// attached with WithDB.
func DB(ctx context.Context) (*gorm.DB, error) {
	if tx := Current(ctx); tx != nil {
		return tx.db.WithContext(ctx), nil
	}
	if db, ok := ctx.Value(dbKey{}).(*gorm.DB); ok && db != nil {
		return db.WithContext(ctx), nil
	}
	return nil, ErrNoTransaction
}

// boundResources lists the types of everything bound to ctx, never their contents
func boundResources(ctx context.Context) []string {
	var resources []string
	if tx := Current(ctx); tx != nil {
		resources = append(resources,
			fmt.Sprintf("%T", tx.handle.conn),
			fmt.Sprintf("%T", tx.handle.tx),
			fmt.Sprintf("%T", tx.db),
		)
		if depth := tx.suspendedDepth(); depth > 0 {
			resources = append(resources, fmt.Sprintf("suspended[%d]", depth))
		}
	}
	if tc := tenancy.FromContext(ctx); tc != nil {
		resources = append(resources, fmt.Sprintf("%T", tc))
	}
	if db, ok := ctx.Value(dbKey{}).(*gorm.DB); ok && db != nil {
		resources = append(resources, fmt.Sprintf("caller-managed %T", db))
	}
	return resources
}

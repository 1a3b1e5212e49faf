package txn

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/tenancy/internal/infrastructure/logger"
	"github.com/erp/tenancy/internal/infrastructure/telemetry"
)

// Executor runs units of work under one of the eight Definitions.
// It is safe for concurrent use; all per-call state lives on the context.
type Executor struct {
	managers  map[Scope]TransactionManager
	templates map[Definition]*Template
	logger    *zap.Logger
	metrics   *telemetry.TenancyMetrics
}

// NewExecutor wires the PUBLIC and TENANT managers. Both must be
// *NamespaceManager instances bound to their scope and distinct from each
// other; anything else returns ErrManagerKindMismatch and the service must
// not start.
func NewExecutor(public, tenant TransactionManager, log *zap.Logger, metrics *telemetry.TenancyMetrics) (*Executor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := checkManager("public", public, ScopePublic); err != nil {
		return nil, err
	}
	if err := checkManager("tenant", tenant, ScopeTenant); err != nil {
		return nil, err
	}
	if public.(*NamespaceManager) == tenant.(*NamespaceManager) {
		return nil, fmt.Errorf("%w: public and tenant bindings share one manager instance", ErrManagerKindMismatch)
	}

	e := &Executor{
		managers: map[Scope]TransactionManager{ScopePublic: public, ScopeTenant: tenant},
		logger:   log.Named("txn"),
		metrics:  metrics,
	}
	e.templates = make(map[Definition]*Template, len(Definitions()))
	for _, def := range Definitions() {
		e.templates[def] = &Template{definition: def, manager: e.managers[def.Scope], executor: e}
	}
	return e, nil
}

func checkManager(binding string, m TransactionManager, want Scope) error {
	nm, ok := m.(*NamespaceManager)
	if !ok || nm == nil {
		return fmt.Errorf("%w: %s binding is %T, want *txn.NamespaceManager", ErrManagerKindMismatch, binding, m)
	}
	if nm.Scope() != want {
		return fmt.Errorf("%w: %s binding serves scope %s", ErrManagerKindMismatch, binding, nm.Scope())
	}
	return nil
}

// Template returns the pre-built template for def
func (e *Executor) Template(def Definition) (*Template, error) {
	t, ok := e.templates[def]
	if !ok {
		return nil, fmt.Errorf("unknown transaction definition %s", def)
	}
	return t, nil
}

// Execute runs fn under def
func (e *Executor) Execute(ctx context.Context, def Definition, fn func(ctx context.Context) error) error {
	t, err := e.Template(def)
	if err != nil {
		return err
	}
	return t.Execute(ctx, fn)
}

// Template executes units of work under one fixed Definition. Templates are
// built once by NewExecutor and hold no per-call state.
type Template struct {
	definition Definition
	manager    TransactionManager
	executor   *Executor
}

// Definition returns the template's execution mode
func (t *Template) Definition() Definition {
	return t.definition
}

// Execute begins (or joins) a transaction, runs fn, and commits when fn
// returns nil. An error from fn rolls back and is returned unchanged. A panic
// rolls back and is re-raised.
func (t *Template) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	current := Current(ctx)

	if t.definition.Propagation == PropagationRequired && current != nil {
		if current.Scope() != t.definition.Scope {
			err := fmt.Errorf("%w: %s requested inside %s transaction %s",
				ErrScopeConflict, t.definition, current.Scope(), current.ID())
			t.executor.logFailure(ctx, t.definition, "Transaction scope conflict", err)
			return err
		}
		return t.participate(ctx, current, fn)
	}

	return t.runNew(ctx, current, fn)
}

func (t *Template) participate(ctx context.Context, tx *Transaction, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			tx.SetRollbackOnly()
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		tx.SetRollbackOnly()
		return err
	}
	return nil
}

func (t *Template) runNew(ctx context.Context, outer *Transaction, fn func(ctx context.Context) error) (err error) {
	e := t.executor

	ctx, span := telemetry.StartSpan(ctx, "txn."+t.definition.Scope.String(),
		telemetry.WithAttribute(telemetry.SpanAttrTxScope, t.definition.Scope.String()),
		telemetry.WithAttribute(telemetry.SpanAttrPropagation, t.definition.Propagation.String()),
		telemetry.WithAttribute(telemetry.SpanAttrReadOnly, t.definition.ReadOnly),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	tx, err := t.manager.Begin(ctx, t.definition)
	if err != nil {
		e.logFailure(ctx, t.definition, "Failed to begin transaction", err)
		return err
	}
	tx.suspended = outer
	telemetry.SetAttribute(span, telemetry.SpanAttrTxID, tx.ID())
	telemetry.SetAttribute(span, telemetry.SpanAttrNamespace, tx.Namespace())
	txCtx := withTransaction(ctx, tx)

	finished := false
	defer func() {
		if finished {
			return
		}
		if r := recover(); r != nil {
			e.rollback(ctx, txCtx, t.manager, tx, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	telemetry.WithTransactionLabels(txCtx, t.definition.Scope.String(), tx.Namespace(), func(ctx context.Context) {
		err = fn(ctx)
	})
	finished = true

	if err != nil {
		e.rollback(ctx, txCtx, t.manager, tx, err)
		return err
	}

	if tx.IsRollbackOnly() {
		err := fmt.Errorf("%w: %s", ErrUnexpectedRollback, tx.ID())
		e.rollback(ctx, txCtx, t.manager, tx, err)
		return err
	}

	if err := t.manager.Commit(ctx, tx); err != nil {
		e.logFailure(txCtx, t.definition, "Failed to commit transaction", err)
		e.complete(ctx, tx, OutcomeRolledBack)
		return err
	}
	e.complete(ctx, tx, OutcomeCommitted)
	return nil
}

func (e *Executor) rollback(ctx, txCtx context.Context, m TransactionManager, tx *Transaction, cause error) {
	e.logFailure(txCtx, tx.definition, "Transaction rolled back", cause)
	if err := m.Rollback(ctx, tx); err != nil {
		e.logFailure(txCtx, tx.definition, "Rollback failed", err)
	}
	e.complete(ctx, tx, OutcomeRolledBack)
}

// complete records the outcome and runs synchronizations outside of any transaction
func (e *Executor) complete(ctx context.Context, tx *Transaction, outcome Outcome) {
	e.metrics.RecordTransaction(ctx, tx.definition.Scope.String(), tx.definition.Propagation.String(),
		outcome.String(), time.Since(tx.started))
	telemetry.SetAttribute(trace.SpanFromContext(ctx), telemetry.SpanAttrOutcome, outcome.String())

	syncs := tx.takeSynchronizations()
	if len(syncs) == 0 {
		return
	}
	syncCtx := withoutTransaction(ctx)
	for _, s := range syncs {
		e.runSynchronization(syncCtx, tx, s, outcome)
	}
}

func (e *Executor) runSynchronization(ctx context.Context, tx *Transaction, s Synchronization, outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Transaction synchronization panicked",
				zap.String("tx_id", tx.ID()),
				zap.String("outcome", outcome.String()),
				zap.Any("panic", r),
				zap.Stack("stacktrace"),
			)
		}
	}()
	s(ctx, outcome)
}

// logFailure logs the transactional state of ctx. Only the types of bound
// resources are logged, never their contents.
func (e *Executor) logFailure(ctx context.Context, def Definition, msg string, err error) {
	fields := []zap.Field{
		zap.String("definition", def.String()),
		zap.Bool("tx_active", IsActive(ctx)),
		zap.Bool("synchronization_active", IsSynchronizationActive(ctx)),
		zap.Strings("bound_resources", boundResources(ctx)),
		zap.Error(err),
	}
	if tx := Current(ctx); tx != nil {
		fields = append(fields, zap.String("tx_id", tx.ID()), zap.Bool("rollback_only", tx.IsRollbackOnly()))
	}
	e.logger.Warn(msg, append(fields, logger.ContextFields(ctx)...)...)
}

// Package audit writes audit events to the default namespace relative to the
// outcome of the caller's transaction, and reads them back.
package audit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/tenancy/internal/domain/audit"
	"github.com/erp/tenancy/internal/infrastructure/config"
	"github.com/erp/tenancy/internal/infrastructure/logger"
	"github.com/erp/tenancy/internal/infrastructure/persistence/txn"
	"github.com/erp/tenancy/internal/infrastructure/telemetry"
	"github.com/erp/tenancy/internal/infrastructure/wiring"
)

// TxExecutor runs fn inside a transaction of the given definition
type TxExecutor interface {
	Execute(ctx context.Context, def txn.Definition, fn func(ctx context.Context) error) error
}

// Producer builds the event to write. It runs inside the audit transaction,
// after the caller's transaction has completed when one was active.
type Producer func(ctx context.Context) (*audit.Event, error)

// Dispatcher is the single writer of audit events. Nothing it does is ever
// reported back to the caller.
type Dispatcher struct {
	executor    TxExecutor
	repo        audit.Repository
	flushPolicy string
	logger      *zap.Logger
	metrics     *telemetry.TenancyMetrics
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithFlushPolicy selects when deferred events are written:
// config.AuditFlushOnCommit or config.AuditFlushOnCompletion.
func WithFlushPolicy(policy string) DispatcherOption {
	return func(d *Dispatcher) {
		if policy != "" {
			d.flushPolicy = policy
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *telemetry.TenancyMetrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a Dispatcher that flushes after commit by default
func NewDispatcher(executor TxExecutor, repo audit.Repository, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		executor:    executor,
		repo:        repo,
		flushPolicy: config.AuditFlushOnCommit,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TransactionDeclarations implements wiring.Declarer. Writes always run in
// their own PUBLIC transaction.
func (d *Dispatcher) TransactionDeclarations() wiring.Declarations {
	return wiring.Declarations{Type: []*wiring.Marker{wiring.PublicTransactional}}
}

// FlushPolicy returns the configured flush policy
func (d *Dispatcher) FlushPolicy() string {
	return d.flushPolicy
}

// Record writes the event built by producer. Without an active transaction
// the event is written now in a new PUBLIC transaction; otherwise it is
// written once the active transaction completes.
func (d *Dispatcher) Record(ctx context.Context, producer Producer) {
	if !txn.IsActive(ctx) {
		d.flush(ctx, producer)
		return
	}

	err := txn.RegisterSynchronization(ctx, func(ctx context.Context, outcome txn.Outcome) {
		if outcome != txn.OutcomeCommitted && d.flushPolicy == config.AuditFlushOnCommit {
			d.metrics.RecordAuditFlush(ctx, telemetry.AuditFlushDiscarded)
			d.log(ctx).Info("Audit event discarded after rollback", zap.String("outcome", outcome.String()))
			return
		}
		d.flush(ctx, producer)
	})
	if err != nil {
		// The transaction is already completing; nothing left to defer to.
		d.flush(ctx, producer)
	}
}

// RecordEvent records a prebuilt event
func (d *Dispatcher) RecordEvent(ctx context.Context, event *audit.Event) {
	d.Record(ctx, func(context.Context) (*audit.Event, error) {
		return event, nil
	})
}

func (d *Dispatcher) flush(ctx context.Context, producer Producer) {
	var action string
	defer func() {
		if r := recover(); r != nil {
			d.metrics.RecordAuditFlush(ctx, telemetry.AuditFlushFailed)
			d.log(ctx).Error("Audit event write panicked",
				zap.String("action", action),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	err := d.executor.Execute(ctx, txn.PublicRequiresNew, func(ctx context.Context) error {
		event, err := producer(ctx)
		if err != nil {
			return fmt.Errorf("produce audit event: %w", err)
		}
		if event == nil {
			return nil
		}
		action = event.Action()
		return d.repo.Append(ctx, event)
	})
	if err != nil {
		d.metrics.RecordAuditFlush(ctx, telemetry.AuditFlushFailed)
		d.log(ctx).Error("Failed to write audit event", zap.String("action", action), zap.Error(err))
		return
	}
	if action != "" {
		d.metrics.RecordAuditFlush(ctx, telemetry.AuditFlushWritten)
		d.log(ctx).Debug("Audit event written", zap.String("action", action))
	}
}

func (d *Dispatcher) log(ctx context.Context) *zap.Logger {
	return d.logger.With(logger.ContextFields(ctx)...)
}

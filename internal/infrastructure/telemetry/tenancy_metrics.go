package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// TenancyMetrics counts namespace borrows, provisioning, release failures,
// transactions and audit flushes. A nil *TenancyMetrics records nothing.
type TenancyMetrics struct {
	borrows         *Counter
	provisions      *Counter
	releaseFailures *Counter
	transactions    *Counter
	txDuration      *Histogram
	auditFlushes    *Counter
}

// NewTenancyMetrics creates the tenancy instruments on meter.
func NewTenancyMetrics(meter metric.Meter) (*TenancyMetrics, error) {
	borrows, err := NewCounter(meter, "tenancy_connection_borrow_total", "Connections pinned to a namespace", "{connection}")
	if err != nil {
		return nil, err
	}
	provisions, err := NewCounter(meter, "tenancy_namespace_provision_total", "Namespace provisioning attempts", "{namespace}")
	if err != nil {
		return nil, err
	}
	releaseFailures, err := NewCounter(meter, "tenancy_connection_release_failure_total", "Connections discarded because the search path reset failed", "{connection}")
	if err != nil {
		return nil, err
	}
	transactions, err := NewCounter(meter, "tenancy_transaction_total", "Transactions by scope, propagation and outcome", "{transaction}")
	if err != nil {
		return nil, err
	}
	txDuration, err := NewHistogram(meter, "tenancy_transaction_duration_seconds", "Transaction duration in seconds", TxDurationBuckets)
	if err != nil {
		return nil, err
	}
	auditFlushes, err := NewCounter(meter, "tenancy_audit_flush_total", "Audit events flushed by result", "{event}")
	if err != nil {
		return nil, err
	}

	return &TenancyMetrics{
		borrows:         borrows,
		provisions:      provisions,
		releaseFailures: releaseFailures,
		transactions:    transactions,
		txDuration:      txDuration,
		auditFlushes:    auditFlushes,
	}, nil
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordBorrow records a connection borrow. Namespace names are not used as
// attributes to keep cardinality bounded.
func (m *TenancyMetrics) RecordBorrow(ctx context.Context, root bool, err error) {
	if m == nil {
		return
	}
	kind := "tenant"
	if root {
		kind = "default"
	}
	m.borrows.Inc(ctx, AttrNamespaceKind.String(kind), AttrResult.String(resultOf(err)))
}

// RecordProvision records an ensure-namespace attempt; cached reports a cache hit.
func (m *TenancyMetrics) RecordProvision(ctx context.Context, cached bool, err error) {
	if m == nil {
		return
	}
	result := resultOf(err)
	if cached && err == nil {
		result = "cached"
	}
	m.provisions.Inc(ctx, AttrResult.String(result))
}

// RecordReleaseFailure records a discarded connection.
func (m *TenancyMetrics) RecordReleaseFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.releaseFailures.Inc(ctx)
}

// RecordTransaction records a finished physical transaction.
func (m *TenancyMetrics) RecordTransaction(ctx context.Context, scope, propagation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transactions.Inc(ctx,
		AttrScope.String(scope),
		AttrPropagation.String(propagation),
		AttrOutcome.String(outcome),
	)
	m.txDuration.RecordDuration(ctx, elapsed, AttrScope.String(scope))
}

// Audit flush results
const (
	AuditFlushWritten   = "written"
	AuditFlushFailed    = "failed"
	AuditFlushDiscarded = "discarded"
)

// RecordAuditFlush records an audit flush result
func (m *TenancyMetrics) RecordAuditFlush(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.auditFlushes.Inc(ctx, AttrResult.String(result))
}

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func newTestMetrics(t *testing.T) (*TenancyMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := NewMeterProviderWithReader(reader, zap.NewNop())
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewTenancyMetrics(mp.Meter("tenancy"))
	require.NoError(t, err)
	return m, reader
}

func TestTenancyMetrics_Counters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBorrow(ctx, false, nil)
	m.RecordBorrow(ctx, false, nil)
	m.RecordBorrow(ctx, true, errors.New("boom"))
	m.RecordProvision(ctx, true, nil)
	m.RecordProvision(ctx, false, nil)
	m.RecordReleaseFailure(ctx)
	m.RecordTransaction(ctx, "tenant", "requires_new", "rollback", 10*time.Millisecond)
	m.RecordAuditFlush(ctx, AuditFlushWritten)

	metrics := collect(t, reader)

	borrows := metrics["tenancy_connection_borrow_total"]
	assert.Equal(t, int64(2), sumFor(t, borrows, AttrNamespaceKind.String("tenant"), AttrResult.String("ok")))
	assert.Equal(t, int64(1), sumFor(t, borrows, AttrNamespaceKind.String("default"), AttrResult.String("error")))

	provisions := metrics["tenancy_namespace_provision_total"]
	assert.Equal(t, int64(1), sumFor(t, provisions, AttrResult.String("cached")))
	assert.Equal(t, int64(1), sumFor(t, provisions, AttrResult.String("ok")))

	assert.Equal(t, int64(1), sumFor(t, metrics["tenancy_connection_release_failure_total"]))
	assert.Equal(t, int64(1), sumFor(t, metrics["tenancy_transaction_total"],
		AttrScope.String("tenant"), AttrPropagation.String("requires_new"), AttrOutcome.String("rollback")))
	assert.Equal(t, int64(1), sumFor(t, metrics["tenancy_audit_flush_total"], AttrResult.String(AuditFlushWritten)))
	assert.Contains(t, metrics, "tenancy_transaction_duration_seconds")
}

func TestTenancyMetrics_NilIsNoop(t *testing.T) {
	var m *TenancyMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordBorrow(ctx, false, nil)
		m.RecordProvision(ctx, false, nil)
		m.RecordReleaseFailure(ctx)
		m.RecordTransaction(ctx, "public", "required", "commit", time.Millisecond)
		m.RecordAuditFlush(ctx, "failed")
	})
}

func TestPoolMetrics_Collect(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reader := sdkmetric.NewManualReader()
	mp := NewMeterProviderWithReader(reader, zap.NewNop())
	defer mp.Shutdown(context.Background())

	pm, err := NewPoolMetrics(mp.Meter("pool"), db, 0, nil)
	require.NoError(t, err)
	pm.Collect(context.Background())

	metrics := collect(t, reader)
	assert.Contains(t, metrics, "db_pool_connections")
	assert.Contains(t, metrics, "db_pool_connections_max")
}

func TestPoolMetrics_StopIsIdempotent(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mp := NewMeterProviderWithReader(sdkmetric.NewManualReader(), zap.NewNop())
	pm, err := NewPoolMetrics(mp.Meter("pool"), db, time.Hour, nil)
	require.NoError(t, err)

	pm.Start(context.Background())
	pm.Stop()
	assert.NotPanics(t, pm.Stop)
}

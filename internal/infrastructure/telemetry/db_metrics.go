package telemetry

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PoolMetrics periodically records connection pool usage. REQUIRES_NEW
// transactions hold two connections at once, so pool exhaustion shows up here first.
type PoolMetrics struct {
	poolConnections    *Gauge
	poolConnectionsMax *Gauge

	sqlDB    *sql.DB
	interval time.Duration
	logger   *zap.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPoolMetrics creates pool gauges for sqlDB. A zero interval means 15s.
func NewPoolMetrics(meter metric.Meter, sqlDB *sql.DB, interval time.Duration, logger *zap.Logger) (*PoolMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval == 0 {
		interval = 15 * time.Second
	}

	poolConnections, err := NewGauge(meter, "db_pool_connections", "Number of connections in the pool by state", "{connection}")
	if err != nil {
		return nil, err
	}
	poolConnectionsMax, err := NewGauge(meter, "db_pool_connections_max", "Maximum number of connections in the pool", "{connection}")
	if err != nil {
		return nil, err
	}

	return &PoolMetrics{
		poolConnections:    poolConnections,
		poolConnectionsMax: poolConnectionsMax,
		sqlDB:              sqlDB,
		interval:           interval,
		logger:             logger,
		stopCh:             make(chan struct{}),
	}, nil
}

// Start collects pool stats until Stop is called or ctx is done.
func (m *PoolMetrics) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.Collect(ctx)
		for {
			select {
			case <-ticker.C:
				m.Collect(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	m.logger.Info("Started database connection pool stats collection", zap.Duration("interval", m.interval))
}

// Collect records the current pool statistics once.
func (m *PoolMetrics) Collect(ctx context.Context) {
	stats := m.sqlDB.Stats()
	m.poolConnectionsMax.Record(ctx, int64(stats.MaxOpenConnections))
	m.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConnections.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop stops the collection goroutine. Safe to call multiple times.
func (m *PoolMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/erp/tenancy/internal/domain/tenancy"
)

func newRecordingTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prev := otel.GetTracerProvider()
	sr := tracetest.NewSpanRecorder()
	tp, err := NewTracerProviderWithProcessor(TracerConfig{ServiceName: "tenancy-test", SamplingRatio: 1}, zap.NewNop(), sr)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return sr
}

func attrOf(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), TracerConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("x"))
	assert.NoError(t, tp.ForceFlush(context.Background()))
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestStartSpan_RecordsAttributesAndErrors(t *testing.T) {
	sr := newRecordingTracer(t)

	_, span := StartSpan(context.Background(), "txn.TENANT",
		WithAttribute(SpanAttrTxScope, "TENANT"),
		WithAttribute(SpanAttrReadOnly, true),
	)
	SetAttribute(span, SpanAttrTxID, "tx-1")
	RecordError(span, errors.New("boom"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "txn.TENANT", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	v, ok := attrOf(spans[0], SpanAttrTxScope)
	require.True(t, ok)
	assert.Equal(t, "TENANT", v.AsString())
	v, ok = attrOf(spans[0], SpanAttrReadOnly)
	require.True(t, ok)
	assert.True(t, v.AsBool())
	v, ok = attrOf(spans[0], SpanAttrTxID)
	require.True(t, ok)
	assert.Equal(t, "tx-1", v.AsString())
}

func TestRecordError_NilIsNoop(t *testing.T) {
	sr := newRecordingTracer(t)

	_, span := StartSpan(context.Background(), "noop")
	RecordError(span, nil)
	RecordError(nil, errors.New("ignored"))
	span.End()

	require.Len(t, sr.Ended(), 1)
	assert.NotEqual(t, codes.Error, sr.Ended()[0].Status().Code)
}

type widget struct {
	ID   uint
	Name string
}

func TestRegisterDBTracing(t *testing.T) {
	sr := newRecordingTracer(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))

	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.DBSystem = "sqlite"
	require.NoError(t, RegisterDBTracing(db, cfg, zap.NewNop()))

	ctx, release := tenancy.Begin(context.Background(), zap.NewNop())
	defer release()
	require.NoError(t, tenancy.Bind(ctx, "t_acme"))

	require.NoError(t, db.WithContext(ctx).Create(&widget{Name: "w1"}).Error)

	var found sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Name() == "gorm.Create" {
			found = s
			break
		}
	}
	require.NotNil(t, found, "expected a gorm.Create span")

	v, ok := attrOf(found, SpanAttrTenantID)
	require.True(t, ok)
	assert.Equal(t, "t_acme", v.AsString())
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	require.NoError(t, RegisterDBTracing(db, DBTracingConfig{}, zap.NewNop()))
	_, ok := db.Config.Plugins["otelgorm"]
	assert.False(t, ok)
}

type memoryProcessor struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (p *memoryProcessor) OnEmit(_ context.Context, r *sdklog.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r.Clone())
	return nil
}

func (p *memoryProcessor) Enabled(context.Context, sdklog.EnabledParameters) bool { return true }
func (p *memoryProcessor) Shutdown(context.Context) error                         { return nil }
func (p *memoryProcessor) ForceFlush(context.Context) error                       { return nil }

func (p *memoryProcessor) bodies() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

func TestLoggerProvider_Bridge(t *testing.T) {
	proc := &memoryProcessor{}
	lp := NewLoggerProviderWithProcessor(proc, zap.NewNop())
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	core, logs := observer.New(zapcore.InfoLevel)
	bridged := lp.Bridge(zap.New(core), "tenancy-test")

	bridged.Debug("below level")
	bridged.Info("namespace provisioned", zap.String("namespace", "t_acme"))

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, []string{"namespace provisioned"}, proc.bodies())
}

func TestLoggerProvider_DisabledReturnsBase(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), LogsConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	base := zap.NewNop()
	assert.Same(t, base, lp.Bridge(base, "x"))
	assert.NoError(t, lp.Shutdown(context.Background()))
}

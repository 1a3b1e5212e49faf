package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/erp/tenancy/internal/domain/audit"
	"github.com/erp/tenancy/internal/domain/tenancy"
	"github.com/erp/tenancy/internal/infrastructure/config"
	"github.com/erp/tenancy/internal/infrastructure/persistence/tenant"
	"github.com/erp/tenancy/internal/infrastructure/persistence/txn"
)

const existsQuery = `SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Append(ctx context.Context, event *audit.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockRepository) FindByTenant(ctx context.Context, tenantID string, limit int) ([]*audit.Event, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Event), args.Error(1)
}

// inPublicTx matches a context carrying a PUBLIC transaction
func inPublicTx() any {
	return mock.MatchedBy(func(ctx context.Context) bool {
		tx := txn.Current(ctx)
		return tx != nil && tx.Scope() == txn.ScopePublic && tx.Namespace() == "public"
	})
}

type fixture struct {
	executor *txn.Executor
	repo     *mockRepository
	mock     sqlmock.Sqlmock
	logs     *observer.ObservedLogs
	logger   *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)

	resolver := tenancy.NewResolver("public")
	router := tenant.NewConnectionRouter(db, resolver)
	executor, err := txn.NewExecutor(
		txn.NewPublicManager(router, gdb, nil),
		txn.NewTenantManager(router, resolver, gdb, nil),
		nil, nil,
	)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	return &fixture{executor: executor, repo: new(mockRepository), mock: mock, logs: logs, logger: zap.New(core)}
}

func (f *fixture) dispatcher(policy string) *Dispatcher {
	return NewDispatcher(f.executor, f.repo, WithFlushPolicy(policy), WithLogger(f.logger))
}

func (f *fixture) expectTenantTx(namespace string) {
	f.mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "` + namespace + `"`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectQuery(existsQuery).WithArgs(namespace).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	f.mock.ExpectExec(`SET search_path TO "` + namespace + `", "public"`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectBegin()
}

func (f *fixture) expectPublicTx() {
	f.mock.ExpectExec(`SET search_path TO "public"`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectBegin()
}

func (f *fixture) expectCommit() {
	f.mock.ExpectCommit()
	f.mock.ExpectExec(`SET search_path TO "public"`).WillReturnResult(sqlmock.NewResult(0, 0))
}

func (f *fixture) expectRollback() {
	f.mock.ExpectRollback()
	f.mock.ExpectExec(`SET search_path TO "public"`).WillReturnResult(sqlmock.NewResult(0, 0))
}

func newEvent(t *testing.T, action string) *audit.Event {
	t.Helper()
	e, err := audit.NewEvent(audit.EventParams{Action: action, TenantID: "t_acme"})
	require.NoError(t, err)
	return e
}

func TestDispatcher_WritesImmediatelyWithoutTransaction(t *testing.T) {
	f := newFixture(t)
	event := newEvent(t, "tenant.provisioned")
	f.expectPublicTx()
	f.expectCommit()
	f.repo.On("Append", inPublicTx(), event).Return(nil).Once()

	f.dispatcher(config.AuditFlushOnCommit).RecordEvent(context.Background(), event)

	f.repo.AssertExpectations(t)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDispatcher_DefersUntilCommit(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(config.AuditFlushOnCommit)
	event := newEvent(t, "product.created")

	f.expectTenantTx("t_acme")
	f.expectCommit()
	f.expectPublicTx()
	f.expectCommit()

	var tenantTxID string
	f.repo.On("Append", inPublicTx(), event).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		assert.NotEqual(t, tenantTxID, txn.Current(ctx).ID())
	}).Return(nil).Once()

	err := tenancy.Run(context.Background(), "t_acme", func(ctx context.Context) error {
		return f.executor.Execute(ctx, txn.TenantRequired, func(ctx context.Context) error {
			tenantTxID = txn.Current(ctx).ID()
			d.RecordEvent(ctx, event)
			f.repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
			return nil
		})
	})

	require.NoError(t, err)
	f.repo.AssertExpectations(t)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDispatcher_DiscardsOnRollbackWithCommitPolicy(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(config.AuditFlushOnCommit)
	producerCalled := false

	f.expectTenantTx("t_acme")
	f.expectRollback()

	errBusiness := errors.New("insufficient stock")
	err := tenancy.Run(context.Background(), "t_acme", func(ctx context.Context) error {
		return f.executor.Execute(ctx, txn.TenantRequired, func(ctx context.Context) error {
			d.Record(ctx, func(context.Context) (*audit.Event, error) {
				producerCalled = true
				return nil, nil
			})
			return errBusiness
		})
	})

	assert.ErrorIs(t, err, errBusiness)
	assert.False(t, producerCalled)
	f.repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	assert.Equal(t, 1, f.logs.FilterMessage("Audit event discarded after rollback").Len())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDispatcher_WritesAfterRollbackWithCompletionPolicy(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(config.AuditFlushOnCompletion)
	event := newEvent(t, "product.create_failed")

	f.expectTenantTx("t_acme")
	f.expectRollback()
	f.expectPublicTx()
	f.expectCommit()
	f.repo.On("Append", inPublicTx(), event).Return(nil).Once()

	err := tenancy.Run(context.Background(), "t_acme", func(ctx context.Context) error {
		return f.executor.Execute(ctx, txn.TenantRequired, func(ctx context.Context) error {
			d.RecordEvent(ctx, event)
			return errors.New("duplicate code")
		})
	})

	require.Error(t, err)
	f.repo.AssertExpectations(t)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDispatcher_SwallowsWriteFailure(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(config.AuditFlushOnCommit)
	event := newEvent(t, "product.created")

	f.expectTenantTx("t_acme")
	f.expectCommit()
	f.expectPublicTx()
	f.expectRollback()
	f.repo.On("Append", inPublicTx(), event).Return(errors.New("relation audit_events does not exist")).Once()

	err := tenancy.Run(context.Background(), "t_acme", func(ctx context.Context) error {
		return f.executor.Execute(ctx, txn.TenantRequired, func(ctx context.Context) error {
			d.RecordEvent(ctx, event)
			return nil
		})
	})

	require.NoError(t, err)
	entries := f.logs.FilterMessage("Failed to write audit event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "product.created", entries[0].ContextMap()["action"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDispatcher_SwallowsProducerPanic(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(config.AuditFlushOnCommit)
	f.expectPublicTx()
	f.expectRollback()

	assert.NotPanics(t, func() {
		d.Record(context.Background(), func(context.Context) (*audit.Event, error) {
			panic("producer bug")
		})
	})

	assert.Equal(t, 1, f.logs.FilterMessage("Audit event write panicked").Len())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDispatcher_SwallowsProducerError(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(config.AuditFlushOnCommit)
	f.expectPublicTx()
	f.expectRollback()

	d.Record(context.Background(), func(context.Context) (*audit.Event, error) {
		return nil, audit.ErrMissingAction
	})

	f.repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	assert.Equal(t, 1, f.logs.FilterMessage("Failed to write audit event").Len())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDispatcher_DefaultsToCommitPolicy(t *testing.T) {
	d := NewDispatcher(nil, nil)
	assert.Equal(t, config.AuditFlushOnCommit, d.FlushPolicy())
}

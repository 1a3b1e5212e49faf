package persistence

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	// gorm pings once while opening
	mock.ExpectPing()

	db, err := FromSQL(mockDB, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return db, mock
}

func TestFromSQL_DisablesPreparedStatements(t *testing.T) {
	db, _ := newMockDatabase(t)

	assert.False(t, db.DB.Config.PrepareStmt)
	assert.True(t, db.DB.Config.SkipDefaultTransaction)
	assert.NotNil(t, db.SQL)
}

func TestDatabase_Ping(t *testing.T) {
	t.Run("successful ping", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		mock.ExpectPing()

		require.NoError(t, db.Ping(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed ping", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		mock.ExpectPing().WillReturnError(assert.AnError)

		assert.Error(t, db.Ping(context.Background()))
	})
}

func TestDatabase_Stats(t *testing.T) {
	db, _ := newMockDatabase(t)

	stats := db.Stats()
	assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
}

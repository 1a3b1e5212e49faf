package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/erp/tenancy/internal/infrastructure/config"
	"github.com/erp/tenancy/internal/infrastructure/logger"
)

// Database holds the shared connection pool and the base gorm handle.
// Namespace routing borrows connections from SQL; repositories never use DB
// directly, they get a per-transaction session from the txn package.
type Database struct {
	DB  *gorm.DB
	SQL *sql.DB
}

// NewDatabase opens the pool described by cfg
func NewDatabase(cfg *config.DatabaseConfig, log *zap.Logger, level gormlogger.LogLevel) (*Database, error) {
	sqlDB, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db, err := FromSQL(sqlDB, logger.NewGormLogger(log, level))
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// FromSQL wraps an existing pool. Prepared statement caching stays off:
// a cached plan is bound to the search path it was prepared under.
func FromSQL(sqlDB *sql.DB, gormLog gormlogger.Interface) (*Database, error) {
	if gormLog == nil {
		gormLog = gormlogger.Discard
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 gormLog,
		SkipDefaultTransaction: true,
		PrepareStmt:            false,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}
	return &Database{DB: db, SQL: sqlDB}, nil
}

// Close closes the pool
func (d *Database) Close() error {
	return d.SQL.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping(ctx context.Context) error {
	return d.SQL.PingContext(ctx)
}

// Stats returns connection pool statistics
func (d *Database) Stats() ConnectionStats {
	stats := d.SQL.Stats()
	return ConnectionStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}
}

// ConnectionStats holds database connection pool statistics
type ConnectionStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

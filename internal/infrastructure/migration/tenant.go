package migration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/tenancy/internal/infrastructure/persistence/models"
	"github.com/erp/tenancy/internal/infrastructure/persistence/txn"
)

// TenantSchema creates and updates the tables every tenant namespace carries
type TenantSchema struct {
	models []any
	logger *zap.Logger
}

// NewTenantSchema creates a TenantSchema for models.TenantModels
func NewTenantSchema(logger *zap.Logger) *TenantSchema {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantSchema{models: models.TenantModels(), logger: logger}
}

// Migrate runs AutoMigrate on the TENANT transaction attached to ctx, so the
// tables land in that transaction's namespace.
func (s *TenantSchema) Migrate(ctx context.Context) error {
	tx := txn.Current(ctx)
	if tx == nil || tx.Scope() != txn.ScopeTenant {
		return fmt.Errorf("tenant schema migration requires a tenant transaction: %w", txn.ErrNoTransaction)
	}
	db, err := txn.DB(ctx)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(s.models...); err != nil {
		return fmt.Errorf("migrate namespace %s: %w", tx.Namespace(), err)
	}
	s.logger.Info("Tenant schema migrated", zap.String("namespace", tx.Namespace()), zap.Int("tables", len(s.models)))
	return nil
}

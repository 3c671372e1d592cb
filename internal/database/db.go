package database

import (
	"fmt"

	"pdv-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open conecta no Postgres. TranslateError faz violações de unique virarem
// gorm.ErrDuplicatedKey.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("banco indisponível: %w", err)
	}
	return db, nil
}

// Migrate cria/atualiza as tabelas e os índices que o AutoMigrate não sabe criar.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Branch{},
		&models.User{},
		&models.CashSession{},
		&models.CashMovement{},
		&models.ServiceOrder{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}

	// No máximo um caixa aberto por filial
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_cash_sessions_branch_open
		ON cash_sessions(branch_id) WHERE closed_at IS NULL
	`).Error; err != nil {
		return fmt.Errorf("índice de caixa aberto: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_service_orders_branch_pending
		ON service_orders(branch_id) WHERE status IN ('OPEN', 'IN_PROGRESS')
	`).Error; err != nil {
		return fmt.Errorf("índice de ordens pendentes: %w", err)
	}

	return nil
}

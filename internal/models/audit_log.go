package models

import "time"

type AuditAction string

const (
	AuditActionCreate       AuditAction = "create"
	AuditActionUpdate       AuditAction = "update"
	AuditActionOpen         AuditAction = "cash_session.open"
	AuditActionCount        AuditAction = "cash_session.count"
	AuditActionClose        AuditAction = "cash_session.close"
	AuditActionReport       AuditAction = "cash_session.report"
	AuditActionStatusChange AuditAction = "service_order.status"
)

// AuditLog é append-only. Não existe update nem delete nessa tabela.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	BranchID *uint `gorm:"index" json:"branch_id"`

	// Quem fez (nome ou id do operador)
	Actor string `gorm:"size:100" json:"actor"`

	// Entidade afetada (ex: "cash_session", "cash_movement", "service_order")
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   string `gorm:"size:64;index" json:"entity_id"`

	Action      AuditAction `gorm:"size:40;index" json:"action"`
	Description string      `gorm:"size:255" json:"description"`

	Metadata string `gorm:"type:jsonb" json:"metadata"`
}

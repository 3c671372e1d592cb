package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementOpening    MovementType = "opening"    // troco inicial
	MovementSale       MovementType = "sale"       // venda
	MovementRefund     MovementType = "refund"     // estorno
	MovementWithdrawal MovementType = "withdrawal" // sangria
	MovementDeposit    MovementType = "deposit"    // suprimento
)

// IsOutflow: tipos que tiram dinheiro do caixa e são gravados com sinal negativo.
func (t MovementType) IsOutflow() bool {
	return t == MovementRefund || t == MovementWithdrawal
}

func (t MovementType) Valid() bool {
	switch t {
	case MovementOpening, MovementSale, MovementRefund, MovementWithdrawal, MovementDeposit:
		return true
	}
	return false
}

type CashMethod string

const (
	CashMethodCash CashMethod = "cash" // dinheiro
	CashMethodCard CashMethod = "card" // cartão
	CashMethodPix  CashMethod = "pix"
)

func (m CashMethod) Valid() bool {
	return m == CashMethodCash || m == CashMethodCard || m == CashMethodPix
}

// CashMovement é append-only: nunca é alterado nem apagado. Estornos entram
// como um novo movimento negativo.
type CashMovement struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CashSessionID uuid.UUID       `gorm:"type:uuid;index;not null"`
	Type          MovementType    `gorm:"size:20;not null"`
	Method        CashMethod      `gorm:"size:20;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null"` // com sinal
	Description   string          `gorm:"size:255"`
	CreatedBy     string          `gorm:"size:100"`
	CreatedAt     time.Time       `gorm:"index"`
}

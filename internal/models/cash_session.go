package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// CashSession: aberto uma vez, fechado uma vez. ClosingAmount, Difference,
// ClosedAt e ClosedBy são gravados juntos no fechamento e nunca mais mudam.
type CashSession struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey"`
	BranchID      uint                `gorm:"index;not null"`
	OpeningAmount decimal.Decimal     `gorm:"type:numeric(14,2);not null"`
	ClosingAmount decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	CountedAmount decimal.NullDecimal `gorm:"type:numeric(14,2)"` // contado pelo operador
	Difference    decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	OpenedAt      time.Time           `gorm:"not null"`
	OpenedBy      string              `gorm:"size:100"`
	ClosedAt      *time.Time          `gorm:"index"`
	ClosedBy      *string             `gorm:"size:100"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *CashSession) IsClosed() bool {
	return s.ClosedAt != nil
}

func (s *CashSession) Status() SessionStatus {
	if s.IsClosed() {
		return SessionClosed
	}
	return SessionOpen
}

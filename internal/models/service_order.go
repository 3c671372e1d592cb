package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ServiceOrderStatus string

const (
	OrderOpen       ServiceOrderStatus = "OPEN"
	OrderInProgress ServiceOrderStatus = "IN_PROGRESS"
	OrderCompleted  ServiceOrderStatus = "COMPLETED"
	OrderDelivered  ServiceOrderStatus = "DELIVERED"
	OrderCanceled   ServiceOrderStatus = "CANCELED"
)

// PendingOrderStatuses bloqueiam o fechamento do caixa.
var PendingOrderStatuses = []ServiceOrderStatus{OrderOpen, OrderInProgress}

func (s ServiceOrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderDelivered || s == OrderCanceled
}

func (s ServiceOrderStatus) Valid() bool {
	return s == OrderOpen || s == OrderInProgress || s.IsTerminal()
}

type ServiceOrder struct {
	ID           uuid.UUID          `gorm:"type:uuid;primaryKey"`
	BranchID     uint               `gorm:"index;not null"`
	CustomerName string             `gorm:"size:150;not null"`
	Description  string             `gorm:"size:500"`
	Total        decimal.Decimal    `gorm:"type:numeric(14,2);not null;default:0"`
	Status       ServiceOrderStatus `gorm:"size:20;index;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

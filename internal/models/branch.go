package models

import "time"

// Branch é o tenant: cada loja/filial tem seus caixas e ordens de serviço.
type Branch struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;not null;unique"`
	Address   string `gorm:"size:255"`
	Phone     string `gorm:"size:50"` // opcional
	CreatedAt time.Time
	UpdatedAt time.Time

	Users []User
}

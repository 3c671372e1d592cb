package report

import (
	"sort"
	"time"

	"pdv-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Summary é tudo o que entra no relatório de fechamento.
type Summary struct {
	SessionID     uuid.UUID
	BranchID      uint
	OpenedAt      time.Time
	ClosedAt      time.Time
	ClosedBy      string
	OpeningAmount decimal.Decimal
	ClosingAmount decimal.Decimal
	CountedAmount decimal.Decimal
	Difference    decimal.Decimal
	MovementCount int
	TotalsByType  map[models.MovementType]decimal.Decimal
}

type typeTotal struct {
	Type  models.MovementType
	Total decimal.Decimal
}

func (s Summary) sortedTotals() []typeTotal {
	out := make([]typeTotal, 0, len(s.TotalsByType))
	for t, v := range s.TotalsByType {
		out = append(out, typeTotal{Type: t, Total: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

var movementLabels = map[models.MovementType]string{
	models.MovementOpening:    "Troco inicial",
	models.MovementSale:       "Vendas",
	models.MovementRefund:     "Estornos",
	models.MovementWithdrawal: "Sangrias",
	models.MovementDeposit:    "Suprimentos",
}

func movementLabel(t models.MovementType) string {
	if l, ok := movementLabels[t]; ok {
		return l
	}
	return string(t)
}

package cashsession

import (
	"math"

	"pdv-backend/internal/models"

	"github.com/shopspring/decimal"
)

// Reconciliation é o resultado puro do cálculo de fechamento: o mesmo conjunto
// de movimentos e a mesma contagem sempre dão o mesmo resultado.
type Reconciliation struct {
	ClosingAmount decimal.Decimal
	CountedAmount decimal.Decimal
	Difference    decimal.Decimal
	MovementCount int
	TotalsByType  map[models.MovementType]decimal.Decimal
}

// SumMovements soma os valores com sinal. Lista vazia dá zero; resultado
// negativo não é truncado.
func SumMovements(movs []models.CashMovement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movs {
		total = total.Add(m.Amount)
	}
	return total
}

func TotalsByType(movs []models.CashMovement) map[models.MovementType]decimal.Decimal {
	out := make(map[models.MovementType]decimal.Decimal)
	for _, m := range movs {
		out[m.Type] = out[m.Type].Add(m.Amount)
	}
	return out
}

// EffectiveCounted: contagem não informada vale zero.
func EffectiveCounted(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}

// CountedFromFloat converte o valor digitado pelo operador. NaN e ±Inf viram zero.
func CountedFromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f).Round(2)
}

// Reconcile: difference = contado - apurado. Positivo sobra dinheiro,
// negativo falta.
func Reconcile(movs []models.CashMovement, counted decimal.NullDecimal) Reconciliation {
	closing := SumMovements(movs)
	c := EffectiveCounted(counted)
	return Reconciliation{
		ClosingAmount: closing,
		CountedAmount: c,
		Difference:    c.Sub(closing),
		MovementCount: len(movs),
		TotalsByType:  TotalsByType(movs),
	}
}

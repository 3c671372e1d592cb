package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Limites das colunas numeric(14,2).
const (
	moneyIntDigits = 12
	moneyMaxScale  = 64
	moneyMaxBits   = 256
)

var (
	MaxMoney = decimal.New(1, moneyIntDigits).Sub(decimal.New(1, -2)) // 999999999999.99

	ErrMoneyOutOfRange = errors.New("valor fora do limite permitido (até 999.999.999.999,99)")
)

// NormalizeMoney arredonda para centavos e rejeita o que não cabe em
// numeric(14,2). Expoente e tamanho do coeficiente são conferidos antes de
// qualquer conta: "1e100000000" faria Round alocar um big.Int gigante.
func NormalizeMoney(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsZero() {
		return decimal.Zero, nil
	}
	exp := d.Exponent()
	if exp > moneyIntDigits || exp < -moneyMaxScale || d.Coefficient().BitLen() > moneyMaxBits {
		return decimal.Zero, ErrMoneyOutOfRange
	}
	d = d.Round(2)
	if d.Abs().GreaterThan(MaxMoney) {
		return decimal.Zero, ErrMoneyOutOfRange
	}
	return d, nil
}

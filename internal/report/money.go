package report

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatBRL formata no padrão brasileiro: R$ 1.234,56 / -R$ 0,50.
func FormatBRL(v decimal.Decimal) string {
	neg := v.IsNegative()
	s := v.Abs().StringFixed(2)

	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString("R$ ")
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}

package cashsession

import (
	"context"
	"fmt"
)

type OpenOrderCounter interface {
	CountOpen(ctx context.Context, branchID uint) (int64, error)
}

// OrderGate barra o fechamento enquanto a filial tiver OS OPEN ou IN_PROGRESS.
// Não grava nada: repetir a chamada com as mesmas OS dá o mesmo erro.
type OrderGate struct {
	orders OpenOrderCounter
}

func NewOrderGate(orders OpenOrderCounter) *OrderGate {
	return &OrderGate{orders: orders}
}

func (g *OrderGate) Check(ctx context.Context, branchID uint) error {
	n, err := g.orders.CountOpen(ctx, branchID)
	if err != nil {
		return fmt.Errorf("contar ordens de serviço abertas: %w", err)
	}
	if n > 0 {
		return &OpenOrdersError{Count: n}
	}
	return nil
}

package cashsession

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("requisição inválida")
	ErrNotFound        = errors.New("caixa não encontrado")
	ErrAlreadyOpen     = errors.New("já existe um caixa aberto nesta filial")
	ErrAlreadyClosed   = errors.New("caixa já fechado")
	ErrCloseInProgress = errors.New("fechamento em andamento")
	ErrOpenOrders      = errors.New("existem ordens de serviço pendentes")
	ErrReport          = errors.New("falha ao gerar o relatório de fechamento")
)

// OpenOrdersError vem do OrderGate ou da recontagem dentro de Repository.Close.
// errors.Is(err, ErrOpenOrders) vale.
type OpenOrdersError struct {
	Count int64
}

func (e *OpenOrdersError) Error() string {
	return fmt.Sprintf("%d ordens de serviço em aberto ou em andamento", e.Count)
}

func (e *OpenOrdersError) Unwrap() error { return ErrOpenOrders }

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

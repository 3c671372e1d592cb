package cashflow

import (
	"context"
	"errors"
	"fmt"

	"pdv-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSessionNotFound = errors.New("caixa não encontrado")
	ErrSessionClosed   = errors.New("caixa já fechado")
	ErrInvalidAmount   = errors.New("valor deve ser maior que zero")
	ErrInvalidType     = errors.New("tipo de movimento inválido")
)

// SignedAmount converte o valor informado (sempre positivo) no valor gravado:
// estorno e sangria saem do caixa e ficam negativos. O valor é arredondado
// para centavos antes da checagem, como a coluna vai gravar.
func SignedAmount(t models.MovementType, magnitude decimal.Decimal) (decimal.Decimal, error) {
	if !t.Valid() {
		return decimal.Zero, ErrInvalidType
	}
	magnitude, err := models.NormalizeMoney(magnitude)
	if err != nil {
		return decimal.Zero, err
	}
	if !magnitude.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if t.IsOutflow() {
		return magnitude.Neg(), nil
	}
	return magnitude, nil
}

type TypeTotal struct {
	Type  models.MovementType `json:"type"`
	Count int64               `json:"count"`
	Total decimal.Decimal     `json:"total"`
}

// Ledger é o livro de movimentos. Só insere: nada aqui altera ou apaga
// um movimento já gravado.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Append grava o movimento se o caixa existir (dentro do scope) e estiver
// aberto. A linha do caixa fica travada até o commit, então um fechamento
// concorrente espera e já enxerga este movimento na soma.
func (l *Ledger) Append(ctx context.Context, scope *uint, m *models.CashMovement) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.CashSession
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", m.CashSessionID)
		if scope != nil {
			q = q.Where("branch_id = ?", *scope)
		}
		if err := q.First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("lock cash session: %w", err)
		}
		if session.IsClosed() {
			return ErrSessionClosed
		}

		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("insert cash movement: %w", err)
		}
		return nil
	})
}

func (l *Ledger) ensureSession(ctx context.Context, sessionID uuid.UUID, scope *uint) error {
	q := l.db.WithContext(ctx).Model(&models.CashSession{}).Where("id = ?", sessionID)
	if scope != nil {
		q = q.Where("branch_id = ?", *scope)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListBySession devolve os movimentos em ordem de criação.
func (l *Ledger) ListBySession(ctx context.Context, sessionID uuid.UUID, scope *uint, method models.CashMethod) ([]models.CashMovement, error) {
	if err := l.ensureSession(ctx, sessionID, scope); err != nil {
		return nil, err
	}

	q := l.db.WithContext(ctx).Where("cash_session_id = ?", sessionID)
	if method != "" {
		q = q.Where("method = ?", method)
	}

	var movs []models.CashMovement
	if err := q.Order("created_at asc, id asc").Find(&movs).Error; err != nil {
		return nil, err
	}
	return movs, nil
}

func (l *Ledger) SummaryByType(ctx context.Context, sessionID uuid.UUID, scope *uint) ([]TypeTotal, error) {
	if err := l.ensureSession(ctx, sessionID, scope); err != nil {
		return nil, err
	}

	var rows []TypeTotal
	err := l.db.WithContext(ctx).Model(&models.CashMovement{}).
		Select("type, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("cash_session_id = ?", sessionID).
		Group("type").
		Order("type").
		Scan(&rows).Error
	return rows, err
}

package cashsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pdv-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CloseUpdate struct {
	ClosedBy string
	ClosedAt time.Time
}

// Repository guarda caixas no Postgres. Toda escrita acontece com a linha do
// caixa travada (SELECT ... FOR UPDATE).
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create grava o caixa e, se houver, o movimento de troco inicial na mesma
// transação. O índice parcial de caixa aberto por filial vira ErrAlreadyOpen.
func (r *Repository) Create(ctx context.Context, s *models.CashSession, opening *models.CashMovement) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			return err
		}
		if opening != nil {
			opening.CashSessionID = s.ID
			if opening.ID == uuid.Nil {
				opening.ID = uuid.New()
			}
			if err := tx.Create(opening).Error; err != nil {
				return fmt.Errorf("gravar troco inicial: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyOpen
	}
	return err
}

func scoped(q *gorm.DB, scope *uint) *gorm.DB {
	if scope != nil {
		return q.Where("branch_id = ?", *scope)
	}
	return q
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID, scope *uint) (*models.CashSession, error) {
	var s models.CashSession
	if err := scoped(r.db.WithContext(ctx).Where("id = ?", id), scope).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repository) List(ctx context.Context, scope *uint, status models.SessionStatus) ([]models.CashSession, error) {
	q := scoped(r.db.WithContext(ctx).Model(&models.CashSession{}), scope)
	switch status {
	case models.SessionOpen:
		q = q.Where("closed_at IS NULL")
	case models.SessionClosed:
		q = q.Where("closed_at IS NOT NULL")
	}

	var out []models.CashSession
	err := q.Order("opened_at desc").Find(&out).Error
	return out, err
}

func (r *Repository) Movements(ctx context.Context, id uuid.UUID) ([]models.CashMovement, error) {
	var movs []models.CashMovement
	err := r.db.WithContext(ctx).
		Where("cash_session_id = ?", id).
		Order("created_at asc, id asc").
		Find(&movs).Error
	return movs, err
}

func lockSession(tx *gorm.DB, id uuid.UUID, scope *uint) (*models.CashSession, error) {
	var s models.CashSession
	q := scoped(tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id), scope)
	if err := q.First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// SetCountedAmount grava a contagem do operador; só com o caixa aberto.
func (r *Repository) SetCountedAmount(ctx context.Context, id uuid.UUID, scope *uint, amount decimal.Decimal) (*models.CashSession, error) {
	var s *models.CashSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if s, err = lockSession(tx, id, scope); err != nil {
			return err
		}
		if s.IsClosed() {
			return ErrAlreadyClosed
		}
		s.CountedAmount = decimal.NewNullDecimal(amount)
		return tx.Model(s).Update("counted_amount", s.CountedAmount).Error
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close apura e fecha o caixa numa transação só: trava a linha, relê os
// movimentos, calcula e grava closing_amount, counted_amount, difference,
// closed_at e closed_by num único UPDATE condicionado a closed_at IS NULL.
// Se qualquer passo falhar nada é gravado e o caixa continua aberto.
func (r *Repository) Close(ctx context.Context, id uuid.UUID, scope *uint, upd CloseUpdate) (*models.CashSession, Reconciliation, error) {
	var (
		s   *models.CashSession
		rec Reconciliation
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if s, err = lockSession(tx, id, scope); err != nil {
			return err
		}
		if s.IsClosed() {
			return ErrAlreadyClosed
		}

		// OrderGate já conferiu fora da transação; a contagem repetida aqui,
		// com o caixa travado, pega uma OS criada nesse intervalo.
		var pending int64
		if err := tx.Model(&models.ServiceOrder{}).
			Where("branch_id = ? AND status IN ?", s.BranchID, models.PendingOrderStatuses).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("contar ordens de serviço abertas: %w", err)
		}
		if pending > 0 {
			return &OpenOrdersError{Count: pending}
		}

		var movs []models.CashMovement
		if err := tx.Where("cash_session_id = ?", id).Order("created_at asc, id asc").Find(&movs).Error; err != nil {
			return fmt.Errorf("ler movimentos: %w", err)
		}
		rec = Reconcile(movs, s.CountedAmount)

		res := tx.Model(&models.CashSession{}).
			Where("id = ? AND closed_at IS NULL", id).
			Updates(map[string]any{
				"closing_amount": rec.ClosingAmount,
				"counted_amount": rec.CountedAmount,
				"difference":     rec.Difference,
				"closed_at":      upd.ClosedAt,
				"closed_by":      upd.ClosedBy,
			})
		if res.Error != nil {
			return fmt.Errorf("atualizar caixa: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyClosed
		}

		s.ClosingAmount = decimal.NewNullDecimal(rec.ClosingAmount)
		s.CountedAmount = decimal.NewNullDecimal(rec.CountedAmount)
		s.Difference = decimal.NewNullDecimal(rec.Difference)
		s.ClosedAt = &upd.ClosedAt
		s.ClosedBy = &upd.ClosedBy
		return nil
	})
	if err != nil {
		return nil, Reconciliation{}, err
	}
	return s, rec, nil
}

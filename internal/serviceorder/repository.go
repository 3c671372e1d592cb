package serviceorder

import (
	"context"
	"errors"
	"fmt"

	"pdv-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound          = errors.New("ordem de serviço não encontrada")
	ErrInvalidTransition = errors.New("transição de status não permitida")
)

var transitions = map[models.ServiceOrderStatus][]models.ServiceOrderStatus{
	models.OrderOpen:       {models.OrderInProgress, models.OrderCompleted, models.OrderCanceled},
	models.OrderInProgress: {models.OrderOpen, models.OrderCompleted, models.OrderCanceled},
	models.OrderCompleted:  {models.OrderDelivered},
}

func CanTransition(from, to models.ServiceOrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, o *models.ServiceOrder) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(o).Error
}

// Get: scope != nil restringe à filial do usuário.
func (r *Repository) Get(ctx context.Context, id uuid.UUID, scope *uint) (*models.ServiceOrder, error) {
	q := r.db.WithContext(ctx).Where("id = ?", id)
	if scope != nil {
		q = q.Where("branch_id = ?", *scope)
	}

	var o models.ServiceOrder
	if err := q.First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *Repository) List(ctx context.Context, scope *uint, statuses []models.ServiceOrderStatus) ([]models.ServiceOrder, error) {
	q := r.db.WithContext(ctx).Model(&models.ServiceOrder{})
	if scope != nil {
		q = q.Where("branch_id = ?", *scope)
	}
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}

	var orders []models.ServiceOrder
	err := q.Order("created_at desc").Find(&orders).Error
	return orders, err
}

// UpdateStatus troca o status dentro de uma transação com lock na linha e
// devolve o status anterior (também em ErrInvalidTransition).
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, scope *uint, to models.ServiceOrderStatus) (*models.ServiceOrder, models.ServiceOrderStatus, error) {
	var (
		order models.ServiceOrder
		from  models.ServiceOrderStatus
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id)
		if scope != nil {
			q = q.Where("branch_id = ?", *scope)
		}
		if err := q.First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		from = order.Status
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}

		order.Status = to
		return tx.Model(&order).Update("status", to).Error
	})
	if err != nil {
		return nil, from, err
	}
	return &order, from, nil
}

// CountOpen conta as ordens OPEN/IN_PROGRESS da filial.
func (r *Repository) CountOpen(ctx context.Context, branchID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ServiceOrder{}).
		Where("branch_id = ? AND status IN ?", branchID, models.PendingOrderStatuses).
		Count(&n).Error
	return n, err
}

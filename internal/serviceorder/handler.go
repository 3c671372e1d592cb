package serviceorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pdv-backend/internal/audit"
	"pdv-backend/internal/auth"
	"pdv-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Store interface {
	Create(ctx context.Context, o *models.ServiceOrder) error
	Get(ctx context.Context, id uuid.UUID, scope *uint) (*models.ServiceOrder, error)
	List(ctx context.Context, scope *uint, statuses []models.ServiceOrderStatus) ([]models.ServiceOrder, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, scope *uint, to models.ServiceOrderStatus) (*models.ServiceOrder, models.ServiceOrderStatus, error)
}

type AuditWriter interface {
	Write(ctx context.Context, e audit.Entry) error
}

type CreateServiceOrderRequest struct {
	CustomerName string          `json:"customer_name"`
	Description  string          `json:"description"`
	Total        decimal.Decimal `json:"total"`
	BranchID     *uint           `json:"branch_id"` // só super_admin
}

type UpdateStatusRequest struct {
	Status models.ServiceOrderStatus `json:"status"`
}

type ServiceOrderResponse struct {
	ID           string                    `json:"id"`
	BranchID     uint                      `json:"branch_id"`
	CustomerName string                    `json:"customer_name"`
	Description  string                    `json:"description"`
	Total        string                    `json:"total"`
	Status       models.ServiceOrderStatus `json:"status"`
	CreatedAt    string                    `json:"created_at"`
	UpdatedAt    string                    `json:"updated_at"`
}

func toResponse(o *models.ServiceOrder) ServiceOrderResponse {
	return ServiceOrderResponse{
		ID:           o.ID.String(),
		BranchID:     o.BranchID,
		CustomerName: o.CustomerName,
		Description:  o.Description,
		Total:        o.Total.StringFixed(2),
		Status:       o.Status,
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    o.UpdatedAt.Format(time.RFC3339),
	}
}

// -------------------------------------------------
// POST /api/service-orders
// -------------------------------------------------
func CreateServiceOrderHandler(store Store, rec AuditWriter, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateServiceOrderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}

		body.CustomerName = strings.TrimSpace(body.CustomerName)
		if body.CustomerName == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Nome do cliente é obrigatório")
		}
		if body.Total.IsNegative() {
			return fiber.NewError(fiber.StatusBadRequest, "Total não pode ser negativo")
		}
		total, err := models.NormalizeMoney(body.Total)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Total fora do limite permitido")
		}

		branchID, err := auth.BranchForRequest(c, body.BranchID)
		if err != nil {
			return err
		}

		order := &models.ServiceOrder{
			BranchID:     branchID,
			CustomerName: body.CustomerName,
			Description:  strings.TrimSpace(body.Description),
			Total:        total,
			Status:       models.OrderOpen,
		}
		if err := store.Create(c.UserContext(), order); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível criar a ordem de serviço")
		}

		if err := rec.Write(c.UserContext(), audit.Entry{
			BranchID:    &order.BranchID,
			Actor:       auth.Actor(c),
			EntityType:  "service_order",
			EntityID:    order.ID.String(),
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("OS aberta para %s", order.CustomerName),
			Metadata:    toResponse(order),
		}); err != nil {
			log.Warn("audit write failed", zap.String("service_order_id", order.ID.String()), zap.Error(err))
		}

		return c.Status(fiber.StatusCreated).JSON(toResponse(order))
	}
}

// -------------------------------------------------
// GET /api/service-orders?status=OPEN,IN_PROGRESS
// -------------------------------------------------
func ListServiceOrdersHandler(store Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.BranchScope(c)
		if err != nil {
			return err
		}

		var statuses []models.ServiceOrderStatus
		if raw := c.Query("status"); raw != "" {
			for _, s := range strings.Split(raw, ",") {
				st := models.ServiceOrderStatus(strings.ToUpper(strings.TrimSpace(s)))
				if !st.Valid() {
					return fiber.NewError(fiber.StatusBadRequest, "Status inválido: "+s)
				}
				statuses = append(statuses, st)
			}
		}

		orders, err := store.List(c.UserContext(), scope, statuses)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível listar as ordens de serviço")
		}

		resp := make([]ServiceOrderResponse, 0, len(orders))
		for i := range orders {
			resp = append(resp, toResponse(&orders[i]))
		}
		return c.JSON(resp)
	}
}

// -------------------------------------------------
// PATCH /api/service-orders/:id/status
// -------------------------------------------------
func UpdateServiceOrderStatusHandler(store Store, rec AuditWriter, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		var body UpdateStatusRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		to := models.ServiceOrderStatus(strings.ToUpper(string(body.Status)))
		if !to.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Status inválido")
		}

		scope, err := auth.BranchScope(c)
		if err != nil {
			return err
		}

		order, from, err := store.UpdateStatus(c.UserContext(), id, scope, to)
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(fiber.StatusNotFound, "Ordem de serviço não encontrada")
		case errors.Is(err, ErrInvalidTransition):
			return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("Não é possível mudar o status de %s para %s", from, to))
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível atualizar a ordem de serviço")
		}

		if err := rec.Write(c.UserContext(), audit.Entry{
			BranchID:    &order.BranchID,
			Actor:       auth.Actor(c),
			EntityType:  "service_order",
			EntityID:    order.ID.String(),
			Action:      models.AuditActionStatusChange,
			Description: fmt.Sprintf("Status %s -> %s", from, to),
			Metadata:    fiber.Map{"from": from, "to": to},
		}); err != nil {
			log.Warn("audit write failed", zap.String("service_order_id", order.ID.String()), zap.Error(err))
		}

		return c.JSON(toResponse(order))
	}
}

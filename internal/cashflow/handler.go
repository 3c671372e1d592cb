package cashflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pdv-backend/internal/audit"
	"pdv-backend/internal/auth"
	"pdv-backend/internal/models"
	"pdv-backend/internal/report"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Store interface {
	Append(ctx context.Context, scope *uint, m *models.CashMovement) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, scope *uint, method models.CashMethod) ([]models.CashMovement, error)
	SummaryByType(ctx context.Context, sessionID uuid.UUID, scope *uint) ([]TypeTotal, error)
}

type AuditWriter interface {
	Write(ctx context.Context, e audit.Entry) error
}

type CreateCashMovementRequest struct {
	Type        models.MovementType `json:"type"`   // sale | refund | withdrawal | deposit
	Method      models.CashMethod   `json:"method"` // cash | card | pix
	Amount      decimal.Decimal     `json:"amount"` // sempre positivo
	Description string              `json:"description"`
}

type CashMovementResponse struct {
	ID            string              `json:"id"`
	CashSessionID string              `json:"cash_session_id"`
	Type          models.MovementType `json:"type"`
	Method        models.CashMethod   `json:"method"`
	Amount        string              `json:"amount"`
	Description   string              `json:"description"`
	CreatedBy     string              `json:"created_by"`
	CreatedAt     string              `json:"created_at"`
}

type SummaryResponse struct {
	CashSessionID string      `json:"cash_session_id"`
	Items         []TypeTotal `json:"items"`
	Total         string      `json:"total"`
}

func toResponse(m *models.CashMovement) CashMovementResponse {
	return CashMovementResponse{
		ID:            m.ID.String(),
		CashSessionID: m.CashSessionID.String(),
		Type:          m.Type,
		Method:        m.Method,
		Amount:        m.Amount.StringFixed(2),
		Description:   m.Description,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt.Format(time.RFC3339),
	}
}

func sessionIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "id do caixa inválido")
	}
	return id, nil
}

func mapError(err error, fallback string) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Caixa não encontrado")
	case errors.Is(err, ErrSessionClosed):
		return fiber.NewError(fiber.StatusConflict, "Caixa já fechado, movimento não permitido")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, fallback)
	}
}

// -------------------------------------------------
// POST /api/cash-sessions/:id/movements
// -------------------------------------------------
func CreateCashMovementHandler(store Store, rec AuditWriter, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID, err := sessionIDParam(c)
		if err != nil {
			return err
		}

		var body CreateCashMovementRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}

		// troco inicial só entra na abertura do caixa
		if body.Type == models.MovementOpening {
			return fiber.NewError(fiber.StatusBadRequest, "Movimento de abertura é registrado ao abrir o caixa")
		}
		if !body.Method.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Forma de pagamento inválida (cash|card|pix)")
		}
		amount, err := SignedAmount(body.Type, body.Amount)
		switch {
		case errors.Is(err, ErrInvalidType):
			return fiber.NewError(fiber.StatusBadRequest, "Tipo inválido (sale|refund|withdrawal|deposit)")
		case errors.Is(err, models.ErrMoneyOutOfRange):
			return fiber.NewError(fiber.StatusBadRequest, "Valor fora do limite permitido")
		case err != nil:
			return fiber.NewError(fiber.StatusBadRequest, "Valor deve ser maior que zero")
		}

		scope, err := auth.BranchScope(c)
		if err != nil {
			return err
		}

		mov := &models.CashMovement{
			CashSessionID: sessionID,
			Type:          body.Type,
			Method:        body.Method,
			Amount:        amount,
			Description:   strings.TrimSpace(body.Description),
			CreatedBy:     auth.Actor(c),
		}
		if err := store.Append(c.UserContext(), scope, mov); err != nil {
			return mapError(err, "Não foi possível registrar o movimento")
		}

		if err := rec.Write(c.UserContext(), audit.Entry{
			BranchID:    scope,
			Actor:       mov.CreatedBy,
			EntityType:  "cash_movement",
			EntityID:    mov.ID.String(),
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Movimento %s: %s", mov.Type, report.FormatBRL(mov.Amount)),
			Metadata:    toResponse(mov),
		}); err != nil {
			log.Warn("audit write failed", zap.String("cash_movement_id", mov.ID.String()), zap.Error(err))
		}

		return c.Status(fiber.StatusCreated).JSON(toResponse(mov))
	}
}

// -------------------------------------------------
// GET /api/cash-sessions/:id/movements?method=cash
// -------------------------------------------------
func ListCashMovementsHandler(store Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID, err := sessionIDParam(c)
		if err != nil {
			return err
		}

		method := models.CashMethod(c.Query("method"))
		if method != "" && !method.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Forma de pagamento inválida (cash|card|pix)")
		}

		scope, err := auth.BranchScope(c)
		if err != nil {
			return err
		}

		movs, err := store.ListBySession(c.UserContext(), sessionID, scope, method)
		if err != nil {
			return mapError(err, "Não foi possível listar os movimentos")
		}

		resp := make([]CashMovementResponse, 0, len(movs))
		for i := range movs {
			resp = append(resp, toResponse(&movs[i]))
		}
		return c.JSON(resp)
	}
}

// -------------------------------------------------
// GET /api/cash-sessions/:id/movements/summary
// -------------------------------------------------
func MovementSummaryHandler(store Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID, err := sessionIDParam(c)
		if err != nil {
			return err
		}

		scope, err := auth.BranchScope(c)
		if err != nil {
			return err
		}

		items, err := store.SummaryByType(c.UserContext(), sessionID, scope)
		if err != nil {
			return mapError(err, "Não foi possível calcular o resumo")
		}

		total := decimal.Zero
		for _, it := range items {
			total = total.Add(it.Total)
		}
		if items == nil {
			items = []TypeTotal{}
		}

		return c.JSON(SummaryResponse{
			CashSessionID: sessionID.String(),
			Items:         items,
			Total:         total.StringFixed(2),
		})
	}
}

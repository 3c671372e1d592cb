package cashsession

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pdv-backend/internal/auth"
	"pdv-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OpenSessionRequest struct {
	OpeningAmount decimal.Decimal `json:"opening_amount"`
	BranchID      *uint           `json:"branch_id"` // só super_admin
}

type CountRequest struct {
	// número ou string; "NaN"/"Infinity" são aceitos e gravados como 0
	CountedAmount json.RawMessage `json:"counted_amount"`
}

type SessionResponse struct {
	ID            string               `json:"id"`
	BranchID      uint                 `json:"branch_id"`
	Status        models.SessionStatus `json:"status"`
	OpeningAmount string               `json:"opening_amount"`
	ClosingAmount *string              `json:"closing_amount"`
	CountedAmount *string              `json:"counted_amount"`
	Difference    *string              `json:"difference"`
	OpenedAt      string               `json:"opened_at"`
	OpenedBy      string               `json:"opened_by"`
	ClosedAt      *string              `json:"closed_at"`
	ClosedBy      *string              `json:"closed_by"`
}

type CloseResponse struct {
	SessionID       string `json:"session_id"`
	ClosingAmount   string `json:"closing_amount"`
	CountedAmount   string `json:"counted_amount"`
	Difference      string `json:"difference"`
	ClosedAt        string `json:"closed_at"`
	ReportURL       string `json:"report_url"`
	ReportExpiresAt string `json:"report_expires_at"`
}

type ReportResponse struct {
	SessionID       string `json:"session_id"`
	ReportURL       string `json:"report_url"`
	ReportExpiresAt string `json:"report_expires_at"`
}

func nullString(v decimal.NullDecimal) *string {
	if !v.Valid {
		return nil
	}
	s := v.Decimal.StringFixed(2)
	return &s
}

func toResponse(s *models.CashSession) SessionResponse {
	resp := SessionResponse{
		ID:            s.ID.String(),
		BranchID:      s.BranchID,
		Status:        s.Status(),
		OpeningAmount: s.OpeningAmount.StringFixed(2),
		ClosingAmount: nullString(s.ClosingAmount),
		CountedAmount: nullString(s.CountedAmount),
		Difference:    nullString(s.Difference),
		OpenedAt:      s.OpenedAt.Format(time.RFC3339),
		OpenedBy:      s.OpenedBy,
		ClosedBy:      s.ClosedBy,
	}
	if s.ClosedAt != nil {
		t := s.ClosedAt.Format(time.RFC3339)
		resp.ClosedAt = &t
	}
	return resp
}

// parseCounted aceita 100.5, "100.50", "NaN", "Infinity". Valores que não
// cabem em numeric(14,2) são rejeitados.
func parseCounted(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero, errors.New("counted_amount obrigatório")
	}

	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, `"`) {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Zero, errors.New("counted_amount inválido")
		}
		text = strings.TrimSpace(text)
	}

	if d, err := decimal.NewFromString(text); err == nil {
		return models.NormalizeMoney(d)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return decimal.Zero, errors.New("counted_amount inválido")
	}
	return models.NormalizeMoney(CountedFromFloat(f))
}

func sessionIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "id do caixa inválido")
	}
	return id, nil
}

// mapError traduz os erros do serviço em status HTTP. O corpo é texto puro
// (ErrorHandler do main).
func mapError(err error) error {
	var open *OpenOrdersError
	switch {
	case errors.As(err, &open):
		return fiber.NewError(fiber.StatusConflict, fmt.Sprintf(
			"Existem %d ordens de serviço em aberto ou em andamento. Finalize-as antes de fechar o caixa.", open.Count))
	case errors.Is(err, ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Caixa não encontrado")
	case errors.Is(err, ErrAlreadyClosed):
		return fiber.NewError(fiber.StatusConflict, "Caixa já fechado")
	case errors.Is(err, ErrAlreadyOpen):
		return fiber.NewError(fiber.StatusConflict, "Já existe um caixa aberto nesta filial")
	case errors.Is(err, ErrCloseInProgress):
		return fiber.NewError(fiber.StatusConflict, "Fechamento em andamento, tente novamente em instantes")
	case errors.Is(err, ErrReport):
		return fiber.NewError(fiber.StatusInternalServerError, "Caixa fechado, mas o relatório falhou: "+err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// -------------------------------------------------
// POST /api/cash-sessions
// -------------------------------------------------
func OpenSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body OpenSessionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}

		branchID, err := auth.BranchForRequest(c, body.BranchID)
		if err != nil {
			return err
		}

		session, err := svc.Open(c.UserContext(), OpenInput{
			BranchID:      branchID,
			OpeningAmount: body.OpeningAmount,
			OpenedBy:      auth.Actor(c),
		})
		if err != nil {
			return mapError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(session))
	}
}

// -------------------------------------------------
// GET /api/cash-sessions/:id
// -------------------------------------------------
func GetSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := sessionIDParam(c)
		if err != nil {
			return err
		}
		scope, err := auth.BranchScope(c)
		if err != nil {
			return err
		}

		session, err := svc.Get(c.UserContext(), id, scope)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(toResponse(session))
	}
}

// -------------------------------------------------
// GET /api/cash-sessions?status=open|closed
// -------------------------------------------------
func ListSessionsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status := models.SessionStatus(strings.ToLower(c.Query("status")))
		if status != "" && status != models.SessionOpen && status != models.SessionClosed {
			return fiber.NewError(fiber.StatusBadRequest, "status deve ser open ou closed")
		}
		scope, err := auth.BranchScope(c)
		if err != nil {
			return err
		}

		sessions, err := svc.List(c.UserContext(), scope, status)
		if err != nil {
			return mapError(err)
		}

		resp := make([]SessionResponse, 0, len(sessions))
		for i := range sessions {
			resp = append(resp, toResponse(&sessions[i]))
		}
		return c.JSON(resp)
	}
}

// -------------------------------------------------
// PUT /api/cash-sessions/:id/count
// -------------------------------------------------
func RecordCountHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := sessionIDParam(c)
		if err != nil {
			return err
		}

		var body CountRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		counted, err := parseCounted(body.CountedAmount)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		scope, err := auth.BranchScope(c)
		if err != nil {
			return err
		}

		session, err := svc.RecordCount(c.UserContext(), id, scope, counted, auth.Actor(c))
		if err != nil {
			return mapError(err)
		}
		return c.JSON(toResponse(session))
	}
}

// -------------------------------------------------
// POST /api/cash-sessions/close?session_id=...&closed_by=...
// -------------------------------------------------
func CloseSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rawID := strings.TrimSpace(c.Query("session_id"))
		if rawID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "session_id obrigatório")
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "session_id inválido")
		}
		closedBy := strings.TrimSpace(c.Query("closed_by"))
		if closedBy == "" {
			return fiber.NewError(fiber.StatusBadRequest, "closed_by obrigatório")
		}

		scope, err := auth.BranchScope(c)
		if err != nil {
			return err
		}

		res, err := svc.Close(c.UserContext(), CloseInput{
			SessionID: id,
			ClosedBy:  closedBy,
			Scope:     scope,
		})
		if err != nil {
			return mapError(err)
		}

		return c.JSON(CloseResponse{
			SessionID:       res.Session.ID.String(),
			ClosingAmount:   res.Totals.ClosingAmount.StringFixed(2),
			CountedAmount:   res.Totals.CountedAmount.StringFixed(2),
			Difference:      res.Totals.Difference.StringFixed(2),
			ClosedAt:        res.Session.ClosedAt.Format(time.RFC3339),
			ReportURL:       res.Report.URL,
			ReportExpiresAt: res.Report.ExpiresAt.Format(time.RFC3339),
		})
	}
}

// -------------------------------------------------
// POST /api/cash-sessions/:id/report
// -------------------------------------------------
func RegenerateReportHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := sessionIDParam(c)
		if err != nil {
			return err
		}
		scope, err := auth.BranchScope(c)
		if err != nil {
			return err
		}

		res, err := svc.RegenerateReport(c.UserContext(), id, scope, auth.Actor(c))
		if err != nil {
			return mapError(err)
		}
		return c.JSON(ReportResponse{
			SessionID:       id.String(),
			ReportURL:       res.URL,
			ReportExpiresAt: res.ExpiresAt.Format(time.RFC3339),
		})
	}
}

package audit

import (
	"time"

	"pdv-backend/internal/auth"
	"pdv-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	BranchID    *uint              `json:"branch_id"`
	Actor       string             `json:"actor"`
	EntityType  string             `json:"entity_type"`
	EntityID    string             `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	Metadata    any                `json:"metadata"`
}

// GET /api/audit-logs?entity_type=cash_session&entity_id=...&action=...&limit=50
func ListAuditLogsHandler(rec *Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.BranchScope(c)
		if err != nil {
			return err
		}
		if scope == nil {
			if bid := c.QueryInt("branch_id", 0); bid > 0 {
				b := uint(bid)
				scope = &b
			}
		}

		logs, err := rec.List(c.UserContext(), Filter{
			BranchID:   scope,
			EntityType: c.Query("entity_type"),
			EntityID:   c.Query("entity_id"),
			Action:     c.Query("action"),
			Limit:      c.QueryInt("limit", 100),
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível listar a auditoria")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, AuditLogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.Format(time.RFC3339),
				BranchID:    l.BranchID,
				Actor:       l.Actor,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      l.Action,
				Description: l.Description,
				Metadata:    rawJSON(l.Metadata),
			})
		}
		return c.JSON(resp)
	}
}

type rawJSON string

func (r rawJSON) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

package admin

import (
	"errors"
	"strconv"

	"pdv-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Filiais e usuários são provisionados fora deste serviço; aqui é só leitura.

type BranchResponse struct {
	ID            uint    `json:"id"`
	Name          string  `json:"name"`
	Address       string  `json:"address"`
	Phone         string  `json:"phone"`
	OpenSessionID *string `json:"open_session_id"`
	PendingOrders int64   `json:"pending_orders"`
	CreatedAt     string  `json:"created_at"`
}

func branchResponse(db *gorm.DB, b models.Branch) (BranchResponse, error) {
	res := BranchResponse{
		ID:        b.ID,
		Name:      b.Name,
		Address:   b.Address,
		Phone:     b.Phone,
		CreatedAt: b.CreatedAt.Format("2006-01-02 15:04:05"),
	}

	var open models.CashSession
	err := db.Select("id").Where("branch_id = ? AND closed_at IS NULL", b.ID).Take(&open).Error
	switch {
	case err == nil:
		id := open.ID.String()
		res.OpenSessionID = &id
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return res, err
	}

	err = db.Model(&models.ServiceOrder{}).
		Where("branch_id = ? AND status IN ?", b.ID, models.PendingOrderStatuses).
		Count(&res.PendingOrders).Error
	return res, err
}

// GET /api/admin/branches
func ListBranchesHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctxDB := db.WithContext(c.UserContext())

		var branches []models.Branch
		if err := ctxDB.Order("name").Find(&branches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível listar as filiais")
		}

		res := make([]BranchResponse, 0, len(branches))
		for _, b := range branches {
			r, err := branchResponse(ctxDB, b)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível listar as filiais")
			}
			res = append(res, r)
		}
		return c.JSON(res)
	}
}

// GET /api/admin/branches/:id
func GetBranchHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil || id == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}
		ctxDB := db.WithContext(c.UserContext())

		var b models.Branch
		if err := ctxDB.First(&b, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Filial não encontrada")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível carregar a filial")
		}

		res, err := branchResponse(ctxDB, b)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível carregar a filial")
		}
		return c.JSON(res)
	}
}

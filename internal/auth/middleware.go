package auth

import (
	"strconv"
	"strings"

	"pdv-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserNameKey = "user_name"
	CtxUserRoleKey = "user_role"
	CtxBranchIDKey = "branch_id"
)

func JWTMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Cabeçalho Authorization ausente")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization deve ser 'Bearer <token>'")
		}

		claims, err := ParseToken(secret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Token inválido ou expirado")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserNameKey, claims.Name)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxBranchIDKey, claims.BranchID)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "Perfil do usuário não encontrado")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "Você não tem permissão para esta operação")
	}
}

// BranchScope: nil para super_admin (vê todas as filiais), senão a filial do token.
func BranchScope(c *fiber.Ctx) (*uint, error) {
	role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
	if !ok {
		return nil, fiber.NewError(fiber.StatusForbidden, "Perfil do usuário não encontrado")
	}
	if role == models.RoleSuperAdmin {
		return nil, nil
	}

	branchID, ok := c.Locals(CtxBranchIDKey).(*uint)
	if !ok || branchID == nil {
		return nil, fiber.NewError(fiber.StatusForbidden, "Filial não encontrada no token")
	}
	return branchID, nil
}

// BranchForRequest resolve a filial de uma escrita: do token para usuários de
// filial, do corpo/query para super_admin.
func BranchForRequest(c *fiber.Ctx, requested *uint) (uint, error) {
	scope, err := BranchScope(c)
	if err != nil {
		return 0, err
	}
	if scope != nil {
		return *scope, nil
	}

	if requested == nil || *requested == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "branch_id obrigatório")
	}
	return *requested, nil
}

// Actor é o nome gravado na auditoria para o usuário da requisição.
func Actor(c *fiber.Ctx) string {
	if name, ok := c.Locals(CtxUserNameKey).(string); ok && name != "" {
		return name
	}
	if id, ok := c.Locals(CtxUserIDKey).(uint); ok {
		return "user:" + strconv.FormatUint(uint64(id), 10)
	}
	return "desconhecido"
}

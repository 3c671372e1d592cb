package report

import (
	"errors"
	"path"

	"github.com/gofiber/fiber/v2"
)

// GET /api/reports/*?token=...
// Rota pública: o token do link assinado é a autorização.
func DownloadHandler(store ObjectStore, signer *URLSigner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Params("*")
		token := c.Query("token")
		if key == "" || token == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Chave e token são obrigatórios")
		}

		if err := signer.Verify(key, token); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Link inválido ou expirado")
		}

		data, err := store.Get(c.UserContext(), key)
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(fiber.StatusNotFound, "Relatório não encontrado")
		case errors.Is(err, ErrInvalidKey):
			return fiber.NewError(fiber.StatusBadRequest, "Chave de relatório inválida")
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível ler o relatório")
		}

		c.Attachment(path.Base(key))
		return c.Send(data)
	}
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/djibys/mini-bank/internal/core/domain"
)

// All endpoints answer with the {success, message, data} envelope the
// admin console expects.

func respond(c *fiber.Ctx, status int, message string, data any) error {
	body := fiber.Map{"success": true}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	return c.Status(status).JSON(body)
}

func respondError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "message": message})
}

// respondDomainError maps the error taxonomy to HTTP statuses. Storage
// failures surface as a generic 500; the original message is already in
// the logs.
func respondDomainError(c *fiber.Ctx, err error) error {
	switch {
	case domain.IsNotFound(err):
		return respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return respondError(c, http.StatusConflict, err.Error())
	case domain.IsClientError(err):
		return respondError(c, http.StatusBadRequest, err.Error())
	default:
		return respondError(c, http.StatusInternalServerError, "Erreur serveur")
	}
}

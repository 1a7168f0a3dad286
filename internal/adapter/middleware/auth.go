package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/djibys/mini-bank/internal/adapter/storage"
	"github.com/djibys/mini-bank/internal/core/auth"
	"github.com/djibys/mini-bank/internal/core/domain"
)

const userKey = "current_user"

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": message})
}

func forbidden(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusForbidden).JSON(fiber.Map{"success": false, "message": message})
}

// BearerToken extracts the token from the Authorization header, or ""
// when absent or malformed.
func BearerToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// Protected verifies the bearer JWT, checks it was not revoked by a
// logout, resolves the user and rejects blocked accounts. The resolved
// user is stashed in locals for downstream handlers.
func Protected(secret string, revocations *auth.RevocationList, users *storage.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := BearerToken(c)
		if token == "" {
			return unauthorized(c, "Token d'accès requis")
		}

		revoked, err := revocations.IsRevoked(token)
		if err != nil {
			slog.Error("revocation lookup failed", "error", err)
			return unauthorized(c, "Token invalide")
		}
		if revoked {
			return unauthorized(c, "Token invalide")
		}

		claims, err := auth.ParseToken(secret, token)
		if err != nil {
			return unauthorized(c, "Token invalide")
		}

		user, err := users.FindByID(c.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return unauthorized(c, "Utilisateur non trouvé")
			}
			slog.Error("user lookup failed", "user_id", claims.UserID, "error", err)
			return unauthorized(c, "Token invalide")
		}
		if user.IsBlocked {
			return forbidden(c, "Compte bloqué")
		}

		c.Locals(userKey, user)
		return c.Next()
	}
}

// RequireAgent guards mutating routes: posting, cancellation, account
// creation and balance overrides are agent-only.
func RequireAgent() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := c.Locals(userKey).(*domain.User)
		if !ok || user.TypeUtilisateur != "AGENT" {
			return forbidden(c, "Accès refusé: permissions insuffisantes")
		}
		return c.Next()
	}
}

// CurrentUser returns the authenticated user set by Protected.
func CurrentUser(c *fiber.Ctx) *domain.User {
	user, _ := c.Locals(userKey).(*domain.User)
	return user
}

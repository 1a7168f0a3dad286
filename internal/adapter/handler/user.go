package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/djibys/mini-bank/internal/adapter/middleware"
	"github.com/djibys/mini-bank/internal/adapter/storage"
	"github.com/djibys/mini-bank/internal/core/auth"
)

// UserHandler covers the session endpoints. Only agents may log into
// the back-office.
type UserHandler struct {
	Users       *storage.UserRepository
	Revocations *auth.RevocationList
	JWTSecret   string
	TokenTTL    time.Duration
}

type loginRequest struct {
	Email string `json:"email"`
	Pwd   string `json:"pwd"`
}

func (h *UserHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "Requête invalide")
	}

	user, pwdHash, err := h.Users.FindByEmail(c.Context(), req.Email)
	if err != nil || subtle.ConstantTimeCompare([]byte(pwdHash), []byte(storage.HashPassword(req.Pwd))) != 1 {
		return respondError(c, http.StatusUnauthorized, "Email ou mot de passe incorrect")
	}
	if user.TypeUtilisateur != "AGENT" {
		return respondError(c, http.StatusForbidden, "Accès refusé. Seuls les agents peuvent se connecter à cette application.")
	}
	if user.IsBlocked {
		return respondError(c, http.StatusForbidden, "Votre compte est bloqué")
	}

	if err := h.Users.TouchLastLogin(c.Context(), user.ID); err != nil {
		slog.Warn("last_login update failed", "user_id", user.ID, "error", err)
	}

	token, err := auth.GenerateToken(h.JWTSecret, user.ID, user.Email, user.TypeUtilisateur, h.TokenTTL)
	if err != nil {
		slog.Error("token signing failed", "user_id", user.ID, "error", err)
		return respondError(c, http.StatusInternalServerError, "Erreur serveur")
	}

	slog.Info("agent logged in", "user_id", user.ID, "email", user.Email)
	return respond(c, http.StatusOK, "Connexion réussie", fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Logout pushes the token into the revocation list for its remaining
// lifetime.
func (h *UserHandler) Logout(c *fiber.Ctx) error {
	token := middleware.BearerToken(c)
	if token == "" {
		return respondError(c, http.StatusBadRequest, "Token requis pour la déconnexion")
	}

	claims, err := auth.ParseToken(h.JWTSecret, token)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, "Token invalide")
	}

	revoked, err := h.Revocations.IsRevoked(token)
	if err != nil {
		slog.Error("revocation lookup failed", "error", err)
		return respondError(c, http.StatusInternalServerError, "Erreur serveur")
	}
	if revoked {
		return respondError(c, http.StatusBadRequest, "Vous êtes déjà déconnecté")
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if err := h.Revocations.Revoke(token, ttl); err != nil {
		slog.Error("token revocation failed", "user_id", claims.UserID, "error", err)
		return respondError(c, http.StatusInternalServerError, "Erreur serveur")
	}

	slog.Info("agent logged out", "user_id", claims.UserID)
	return respond(c, http.StatusOK, "Déconnexion réussie", nil)
}

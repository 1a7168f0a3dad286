package handler

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/djibys/mini-bank/internal/adapter/storage"
	"github.com/djibys/mini-bank/internal/core/domain"
	"github.com/djibys/mini-bank/internal/core/ledger"
)

type AccountHandler struct {
	Repo   *storage.AccountRepository
	Engine *ledger.Engine
}

type createCompteRequest struct {
	UserID                   string `json:"userId"`
	TypeCompte               string `json:"typeCompte"`
	NumeroCompteAgent        string `json:"numeroCompteAgent"`
	NumeroCompteDistributeur string `json:"numeroCompteDistributeur"`
}

func (req *createCompteRequest) parse() (uuid.UUID, domain.AccountKind, error) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return uuid.Nil, "", err
	}
	kind := domain.AccountKind(req.TypeCompte)
	if !domain.ValidAccountKind(kind) {
		return uuid.Nil, "", fiber.NewError(http.StatusBadRequest, "typeCompte invalide")
	}
	return userID, kind, nil
}

// CreateCompte opens an account for a (user, kind) pair. 409 when one
// already exists.
func (h *AccountHandler) CreateCompte(c *fiber.Ctx) error {
	var req createCompteRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Warn("invalid account body", "error", err)
		return respondError(c, http.StatusBadRequest, "Requête invalide")
	}
	userID, kind, err := req.parse()
	if err != nil {
		return respondError(c, http.StatusBadRequest, "userId ou typeCompte invalide")
	}

	compte, err := h.Repo.Create(c.Context(), userID, kind, req.NumeroCompteAgent, req.NumeroCompteDistributeur)
	if err != nil {
		slog.Warn("account creation failed", "user_id", userID, "type", kind, "error", err)
		return respondDomainError(c, err)
	}

	slog.Info("account created", "numero", compte.NumeroCompte, "user_id", userID, "type", kind)
	return respond(c, http.StatusCreated, "Compte créé avec succès", compte)
}

// EnsureCompte is the idempotent variant used before posting against a
// counterparty that may not have an account yet.
func (h *AccountHandler) EnsureCompte(c *fiber.Ctx) error {
	var req createCompteRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "Requête invalide")
	}
	userID, kind, err := req.parse()
	if err != nil {
		return respondError(c, http.StatusBadRequest, "userId ou typeCompte invalide")
	}

	compte, err := h.Repo.Ensure(c.Context(), userID, kind, req.NumeroCompteAgent, req.NumeroCompteDistributeur)
	if err != nil {
		slog.Error("ensure account failed", "user_id", userID, "type", kind, "error", err)
		return respondDomainError(c, err)
	}
	return respond(c, http.StatusOK, "", compte)
}

// GetComptes lists accounts, optionally filtered by typeCompte and userId.
func (h *AccountHandler) GetComptes(c *fiber.Ctx) error {
	kind := domain.AccountKind(c.Query("typeCompte"))
	if kind != "" && !domain.ValidAccountKind(kind) {
		return respondError(c, http.StatusBadRequest, "typeCompte invalide")
	}

	var userID *uuid.UUID
	if raw := c.Query("userId"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return respondError(c, http.StatusBadRequest, "userId invalide")
		}
		userID = &parsed
	}

	comptes, err := h.Repo.List(c.Context(), kind, userID)
	if err != nil {
		slog.Error("account listing failed", "error", err)
		return respondDomainError(c, err)
	}
	if comptes == nil {
		comptes = []domain.Account{}
	}
	return respond(c, http.StatusOK, "", comptes)
}

// GetCompteByNumero resolves a single account.
func (h *AccountHandler) GetCompteByNumero(c *fiber.Ctx) error {
	compte, err := h.Engine.GetAccount(c.Context(), c.Params("numeroCompte"))
	if err != nil {
		return respondDomainError(c, err)
	}
	return respond(c, http.StatusOK, "", compte)
}

// DeactivateCompte soft-disables an account. Accounts are never
// physically deleted.
func (h *AccountHandler) DeactivateCompte(c *fiber.Ctx) error {
	numero := c.Params("numeroCompte")
	if err := h.Repo.Deactivate(c.Context(), numero); err != nil {
		return respondDomainError(c, err)
	}
	slog.Info("account deactivated", "numero", numero)
	return respond(c, http.StatusOK, "Compte désactivé", nil)
}

type updateSoldeRequest struct {
	Montant   decimal.Decimal `json:"montant"`
	Operation string          `json:"operation"` // DEBIT | CREDIT
}

// UpdateSolde is the administrative balance override: validated like a
// posting but with no commission and no transaction record.
func (h *AccountHandler) UpdateSolde(c *fiber.Ctx) error {
	var req updateSoldeRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "Requête invalide")
	}

	numero := c.Params("numeroCompte")
	compte, err := h.Engine.AdjustDirect(c.Context(), numero, req.Montant, req.Operation)
	if err != nil {
		slog.Warn("balance override failed", "numero", numero, "operation", req.Operation, "error", err)
		return respondDomainError(c, err)
	}

	slog.Info("balance overridden", "numero", numero, "operation", req.Operation, "montant", req.Montant.String())
	return respond(c, http.StatusOK, "Solde mis à jour", compte)
}

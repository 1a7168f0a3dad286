package handler

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/djibys/mini-bank/internal/adapter/middleware"
	"github.com/djibys/mini-bank/internal/core/domain"
	"github.com/djibys/mini-bank/internal/core/ledger"
)

type TransactionHandler struct {
	Engine *ledger.Engine
}

type createTransactionRequest struct {
	TypeTransaction          string          `json:"typeTransaction"`
	Montant                  decimal.Decimal `json:"montant"`
	CompteSource             string          `json:"compteSource"`
	CompteDestination        string          `json:"compteDestination"`
	NumeroCompteAgent        string          `json:"numeroCompteAgent"`
	NumeroCompteDistributeur string          `json:"numeroCompteDistributeur"`
	Description              string          `json:"description"`
}

// CreateTransaction posts a DEPOT or RETRAIT through the ledger engine.
func (h *TransactionHandler) CreateTransaction(c *fiber.Ctx) error {
	var req createTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Warn("invalid transaction body", "error", err)
		return respondError(c, http.StatusBadRequest, "Requête invalide")
	}

	tx, err := h.Engine.Post(c.Context(), ledger.PostingRequest{
		Type:                     domain.TransactionKind(req.TypeTransaction),
		Montant:                  req.Montant,
		CompteSource:             req.CompteSource,
		CompteDestination:        req.CompteDestination,
		NumeroCompteAgent:        req.NumeroCompteAgent,
		NumeroCompteDistributeur: req.NumeroCompteDistributeur,
		Description:              req.Description,
	})
	if err != nil {
		slog.Warn("posting rejected", "type", req.TypeTransaction,
			"compte_source", req.CompteSource, "error", err)
		return respondDomainError(c, err)
	}

	logAttrs := []any{"numero", tx.NumeroTransaction,
		"type", tx.TypeTransaction, "montant", tx.Montant.String()}
	if agent := middleware.CurrentUser(c); agent != nil {
		logAttrs = append(logAttrs, "agent", agent.Email)
	}
	slog.Info("transaction posted", logAttrs...)
	return respond(c, http.StatusCreated, "Transaction effectuée avec succès", tx)
}

// GetTransactions lists records newest first with optional filters and
// pagination.
func (h *TransactionHandler) GetTransactions(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("limit", 20)

	filter := ledger.Filter{
		Type:         domain.TransactionKind(c.Query("typeTransaction")),
		CompteSource: c.Query("compteSource"),
		Statut:       domain.TransactionStatus(c.Query("statut")),
	}
	var err error
	if filter.DateDebut, err = parseDate(c.Query("dateDebut")); err != nil {
		return respondError(c, http.StatusBadRequest, "dateDebut invalide")
	}
	if filter.DateFin, err = parseDate(c.Query("dateFin")); err != nil {
		return respondError(c, http.StatusBadRequest, "dateFin invalide")
	}

	items, total, err := h.Engine.List(c.Context(), filter, page, pageSize)
	if err != nil {
		slog.Error("transaction listing failed", "error", err)
		return respondDomainError(c, err)
	}
	if items == nil {
		items = []domain.Transaction{}
	}

	totalPages := int64(math.Ceil(float64(total) / float64(pageSize)))
	return respond(c, http.StatusOK, "", fiber.Map{
		"transactions": items,
		"currentPage":  page,
		"totalPages":   totalPages,
		"total":        total,
	})
}

// GetStats reports aggregate counts and volumes of VALIDEE transactions.
func (h *TransactionHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.Engine.Stats(c.Context(), time.Now())
	if err != nil {
		slog.Error("stats aggregation failed", "error", err)
		return respondDomainError(c, err)
	}
	if stats.ByType == nil {
		stats.ByType = []domain.TypeStat{}
	}
	return respond(c, http.StatusOK, "", stats)
}

type cancelRequest struct {
	Raison string `json:"raison"`
}

// CancelTransaction reverses a VALIDEE transaction and marks it ANNULEE.
func (h *TransactionHandler) CancelTransaction(c *fiber.Ctx) error {
	var req cancelRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return respondError(c, http.StatusBadRequest, "Requête invalide")
	}

	numero := c.Params("id")
	tx, err := h.Engine.Cancel(c.Context(), numero, req.Raison)
	if err != nil {
		slog.Warn("cancellation rejected", "numero", numero, "error", err)
		return respondDomainError(c, err)
	}

	slog.Info("transaction cancelled", "numero", tx.NumeroTransaction, "raison", req.Raison)
	return respond(c, http.StatusOK, "Transaction annulée avec succès", tx)
}

// parseDate accepts RFC 3339 or plain YYYY-MM-DD.
func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

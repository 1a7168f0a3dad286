package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/djibys/mini-bank/internal/core/domain"
)

// WebhookQueue enqueues delivery jobs into the webhook_jobs table; the
// background worker drains it. Implements ledger.Notifier. Enqueue
// failures are logged and swallowed: notification is best-effort and
// must never fail a posting.
type WebhookQueue struct {
	db  *pgxpool.Pool
	url string
	log *slog.Logger
}

func NewWebhookQueue(db *pgxpool.Pool, url string) *WebhookQueue {
	return &WebhookQueue{db: db, url: url, log: slog.Default()}
}

func (q *WebhookQueue) TransactionPosted(ctx context.Context, tx *domain.Transaction) {
	q.enqueue(ctx, "transaction.posted", tx)
}

func (q *WebhookQueue) TransactionCancelled(ctx context.Context, tx *domain.Transaction) {
	q.enqueue(ctx, "transaction.cancelled", tx)
}

func (q *WebhookQueue) enqueue(ctx context.Context, event string, tx *domain.Transaction) {
	if q == nil || q.url == "" {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event":     event,
		"data":      tx,
		"timestamp": time.Now(),
	})
	if err != nil {
		q.log.Error("webhook payload marshal failed", "event", event, "error", err)
		return
	}
	_, err = q.db.Exec(ctx,
		`INSERT INTO webhook_jobs (id, url, payload) VALUES ($1, $2, $3)`,
		uuid.New(), q.url, payload)
	if err != nil {
		q.log.Error("webhook enqueue failed", "event", event,
			"transaction", tx.NumeroTransaction, "error", err)
		return
	}
	q.log.Info("webhook queued", "event", event, "transaction", tx.NumeroTransaction)
}

package worker

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/djibys/mini-bank/internal/core/notifications"
)

const maxAttempts = 5

// StartWebhookWorker polls webhook_jobs and delivers pending events.
// Failed deliveries are retried with a growing backoff until
// maxAttempts, then marked FAILED. Stops when ctx is cancelled.
func StartWebhookWorker(ctx context.Context, db *pgxpool.Pool) {
	go func() {
		slog.Info("webhook worker started")
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("webhook worker stopped")
				return
			case <-ticker.C:
				processOne(ctx, db)
			}
		}
	}()
}

func processOne(ctx context.Context, db *pgxpool.Pool) {
	tx, err := db.Begin(ctx)
	if err != nil {
		slog.Error("worker: begin failed", "error", err)
		return
	}
	defer tx.Rollback(ctx)

	// SKIP LOCKED lets several API instances share the queue without
	// fighting over the same job.
	var (
		id       string
		url      string
		payload  []byte
		attempts int
	)
	err = tx.QueryRow(ctx, `
		SELECT id, url, payload, attempts
		FROM webhook_jobs
		WHERE status = 'PENDING' AND next_run_at <= now()
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`).Scan(&id, &url, &payload, &attempts)
	if err != nil {
		return
	}

	secret := os.Getenv("WEBHOOK_SECRET")
	sendErr := notifications.SendWebhook(url, payload, secret)

	if sendErr != nil {
		attempts++
		slog.Error("worker: webhook delivery failed", "job_id", id, "attempts", attempts, "error", sendErr)
		if attempts >= maxAttempts {
			_, err = tx.Exec(ctx, `UPDATE webhook_jobs SET status = 'FAILED', attempts = $2 WHERE id = $1`, id, attempts)
		} else {
			nextRun := time.Now().Add(time.Duration(attempts*10) * time.Second)
			_, err = tx.Exec(ctx,
				`UPDATE webhook_jobs SET attempts = $2, next_run_at = $3 WHERE id = $1`,
				id, attempts, nextRun)
		}
	} else {
		slog.Info("worker: webhook delivered", "job_id", id)
		_, err = tx.Exec(ctx, `UPDATE webhook_jobs SET status = 'COMPLETED' WHERE id = $1`, id)
	}
	if err != nil {
		slog.Error("worker: job update failed", "job_id", id, "error", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		slog.Error("worker: commit failed", "job_id", id, "error", err)
	}
}

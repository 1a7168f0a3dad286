package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	radix "github.com/mediocregopher/radix/v3"

	"github.com/djibys/mini-bank/internal/adapter/handler"
	"github.com/djibys/mini-bank/internal/adapter/middleware"
	"github.com/djibys/mini-bank/internal/adapter/storage"
	"github.com/djibys/mini-bank/internal/core/auth"
	"github.com/djibys/mini-bank/internal/core/config"
	"github.com/djibys/mini-bank/internal/core/ledger"
	"github.com/djibys/mini-bank/internal/core/worker"
)

func main() {
	cfg := config.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET must be set")
		os.Exit(1)
	}

	dbPool, err := storage.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	// The revocation list degrades gracefully without Redis: tokens are
	// then only bounded by their own expiry.
	var redisClient radix.Client
	if cfg.RedisAddr != "" {
		redisClient, err = radix.NewPool("tcp", cfg.RedisAddr, 10)
		if err != nil {
			slog.Error("redis connection failed", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("REDIS_ADDR not set, token revocation disabled")
	}
	revocations := auth.NewRevocationList(redisClient)

	accountRepo := storage.NewAccountRepository(dbPool)
	transactionRepo := storage.NewTransactionRepository(dbPool)
	userRepo := storage.NewUserRepository(dbPool)
	webhookQueue := storage.NewWebhookQueue(dbPool, cfg.WebhookURL)

	engine := ledger.New(accountRepo, transactionRepo, ledger.WithNotifier(webhookQueue))

	accountHandler := &handler.AccountHandler{Repo: accountRepo, Engine: engine}
	transactionHandler := &handler.TransactionHandler{Engine: engine}
	userHandler := &handler.UserHandler{
		Users:       userRepo,
		Revocations: revocations,
		JWTSecret:   cfg.JWTSecret,
		TokenTTL:    cfg.TokenTTL,
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(cors.New())

	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "message": "API opérationnelle"})
	})
	api.Post("/users/login", userHandler.Login)
	api.Post("/users/logout", userHandler.Logout)

	private := api.Use(middleware.Protected(cfg.JWTSecret, revocations, userRepo))
	agent := middleware.RequireAgent()

	comptes := private.Group("/comptes")
	comptes.Post("/", agent, accountHandler.CreateCompte)
	comptes.Post("/ensure", agent, accountHandler.EnsureCompte)
	comptes.Get("/", accountHandler.GetComptes)
	comptes.Get("/:numeroCompte", accountHandler.GetCompteByNumero)
	comptes.Patch("/:numeroCompte/solde", agent, accountHandler.UpdateSolde)
	comptes.Delete("/:numeroCompte", agent, accountHandler.DeactivateCompte)

	transactions := private.Group("/transactions")
	transactions.Post("/", agent, transactionHandler.CreateTransaction)
	transactions.Get("/", transactionHandler.GetTransactions)
	transactions.Get("/stats", transactionHandler.GetStats)
	transactions.Patch("/:id/cancel", agent, transactionHandler.CancelTransaction)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Route " + c.Method() + " " + c.OriginalURL() + " non trouvée",
		})
	})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker.StartWebhookWorker(workerCtx, dbPool)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "env", cfg.Env, "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server stopped", "error", err)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	stopWorker()
	dbPool.Close()
	if redisClient != nil {
		redisClient.Close()
	}
	slog.Info("server exited")
}

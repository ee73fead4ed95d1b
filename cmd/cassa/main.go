package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cassa/internal/amqp"
	"cassa/internal/cli"
	"cassa/internal/core"
	apphttp "cassa/internal/http"
	"cassa/internal/log"
	"cassa/internal/services"
)

func main() {
	logger := cli.SetupLogger(slog.LevelInfo, log.ComponentApp)
	cli.LoadEnvFile(logger.Logger)

	cfg := cli.LoadAndValidateConfig(logger.Logger)
	if cfg.SlogLevel() != slog.LevelInfo {
		logger = cli.SetupLogger(cfg.SlogLevel(), log.ComponentApp)
	}

	repo := cli.InitSQLite(logger.Logger, cfg.SQLiteDBPath)

	clock := core.RealClock{}
	inventory := services.NewInventoryService(repo, clock)
	expenses := services.NewExpenseService(repo, clock)
	income := services.NewIncomeService(repo, clock)
	analytics := services.NewAnalyticsService(expenses, income, inventory, clock)

	svc := apphttp.Services{
		Inventory: inventory,
		Cart:      services.NewCartService(repo, clock, services.WithStrictStock(cfg.CheckoutStrictStock)),
		Expenses:  expenses,
		Income:    income,
		Analytics: analytics,
		Reports:   services.NewReportService(analytics, expenses, clock),
	}

	// Ledger events stay in the outbox table until a broker is configured.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err, log.FieldErrorType, log.ErrorTypeNetwork)
			os.Exit(1)
		}

		outboxCfg := services.DefaultOutboxProcessorConfig()
		outboxCfg.PollInterval = cfg.OutboxPollInterval
		outboxCfg.BatchSize = cfg.OutboxBatchSize
		outboxCfg.MaxRetries = cfg.OutboxMaxRetries

		svc.Outbox = services.NewOutboxProcessor(repo, amqpClient, clock, outboxCfg)
		if err := svc.Outbox.Start(context.Background()); err != nil {
			logger.Error("Failed to start outbox processor", "error", err)
			os.Exit(1)
		}
		logger.Info("Outbox processor started",
			"exchange", cfg.AMQPExchange,
			"poll_interval", cfg.OutboxPollInterval)
	} else {
		logger.Info("AMQP disabled - ledger events are kept in the outbox")
	}

	srv := apphttp.NewServer(":"+cfg.Port, repo, svc, apphttp.Options{
		DashboardCacheTTL:  cfg.DashboardCacheTTL,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if svc.Outbox != nil {
			if err := svc.Outbox.Stop(ctx); err != nil {
				logger.Error("Outbox processor shutdown error", "error", err)
			}
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", "error", err)
			}
		}
		if err := repo.Close(); err != nil {
			logger.Error("SQLite close error", "error", err)
		}
	})

	go func() {
		logger.Info("Starting cassa server",
			"port", cfg.Port,
			"strict_stock", cfg.CheckoutStrictStock,
			"dashboard_cache_ttl", cfg.DashboardCacheTTL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

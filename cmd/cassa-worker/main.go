package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"cassa/internal/amqp"
	"cassa/internal/backend"
	"cassa/internal/cli"
	"cassa/internal/log"
	"cassa/internal/worker"
)

func main() {
	logger := cli.SetupLogger(slog.LevelInfo, log.ComponentWorker)
	cli.LoadEnvFile(logger.Logger)

	cfg := cli.LoadAndValidateConfig(logger.Logger)
	if cfg.SlogLevel() != slog.LevelInfo {
		logger = cli.SetupLogger(cfg.SlogLevel(), log.ComponentWorker)
	}

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the export worker", log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	logger.Info("Starting cassa-worker", "export_backend", cfg.ExportBackend)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid export backend configuration", "error", err, log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger.Logger)
	sink, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize export backend", "error", err, "backend", cfg.ExportBackend)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err, log.FieldErrorType, log.ErrorTypeNetwork)
		_ = sink.Close()
		os.Exit(1)
	}

	exporter := worker.NewExportWorker(sink.Backend)

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(context.Context) {
		appended, skipped := exporter.Stats()
		logger.Info("Export worker stopping", "appended", appended, "skipped", skipped)
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", "error", err)
		}
		if err := sink.Close(); err != nil {
			logger.Error("Export backend close error", "error", err)
		}
	})

	go func() {
		if err := exporter.Run(ctx, amqpClient); err != nil {
			logger.Error("Export worker stopped", "error", err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}

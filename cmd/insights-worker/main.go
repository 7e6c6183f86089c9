package main

import (
	"context"
	"errors"
	"os"

	"insights/internal/amqp"
	"insights/internal/cli"
	applog "insights/internal/log"
	"insights/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	if cfg.DataBackend != "sqlite" {
		logger.Error("The snapshot worker reads datasets from sqlite; set DATA_BACKEND=sqlite", "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the snapshot worker")
		os.Exit(1)
	}

	logger.Info("Starting insights-worker", applog.FieldOperation, applog.OpStartup)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	snapshots := worker.NewSnapshotWorker(repo)
	err = client.ConsumeDatasetLoaded(ctx, snapshots.HandleDatasetLoaded)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully", applog.FieldOperation, applog.OpShutdown)
}

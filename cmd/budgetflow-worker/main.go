// budgetflow-worker polls the document store, runs every tenant through
// the processing pipeline, and applies the results to each tenant's
// ledger. One process, one polling loop, bounded concurrency across
// tenants.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"budgetflow/internal/config"
	"budgetflow/internal/docstore"
	docgoogle "budgetflow/internal/docstore/google"
	"budgetflow/internal/events"
	"budgetflow/internal/extractor"
	ledgergoogle "budgetflow/internal/ledger/google"
	"budgetflow/internal/log"
	"budgetflow/internal/orchestrator"
	"budgetflow/internal/registry"
	"budgetflow/internal/retry"
	"budgetflow/internal/state"
	"budgetflow/internal/taxonomy"
	"budgetflow/internal/vendors"

	"budgetflow/internal/ledger"
)

func main() {
	// Load .env for local development; ignore errors in production.
	_ = godotenv.Load()

	logger := log.New(log.Config{Level: slog.LevelInfo})
	log.SetDefault(logger)
	logger.Info("starting budgetflow-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	// The signal cancels the context directly so an in-flight cycle
	// observes shutdown between documents instead of running to the end
	// of the tenant list first.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tax, err := taxonomy.Load()
	if err != nil {
		logger.Error("failed to load category taxonomy", log.FieldError, err)
		os.Exit(1)
	}

	db, err := state.Open(cfg.StateDBPath)
	if err != nil {
		logger.Error("failed to open state database", log.FieldError, err, "path", cfg.StateDBPath)
		os.Exit(1)
	}
	defer db.Close()

	policy := retry.Policy{
		MaxAttempts:   cfg.RetryMaxAttempts,
		InitialDelay:  cfg.RetryInitialDelay,
		BackoffFactor: cfg.RetryBackoffFactor,
	}

	var source docstore.Source
	source, err = docgoogle.New(ctx, cfg.DriveRootFolderID, cfg.TempDir)
	if err != nil {
		logger.Error("failed to initialize document source", log.FieldError, err)
		os.Exit(1)
	}

	var ledgerStore ledger.Store
	ledgerStore, err = ledgergoogle.New(ctx, cfg.ReportName, tax)
	if err != nil {
		logger.Error("failed to initialize ledger store", log.FieldError, err)
		os.Exit(1)
	}

	inferencer, err := extractor.NewGemini(ctx, cfg.GeminiModel)
	if err != nil {
		logger.Error("failed to initialize inference client", log.FieldError, err)
		os.Exit(1)
	}

	reg := registry.New(db)
	vendorMemory := vendors.New(db, cfg.VendorFuzzyThreshold)
	ext := extractor.New(inferencer, tax, vendorMemory, policy, logger, cfg.MinResponseLen)
	updater := ledger.NewUpdater(ledgerStore, policy, logger)

	orch := orchestrator.New(source, ledgerStore, ext, reg, vendorMemory, updater, policy, logger, taxonomy.FallbackID)

	// Cycle summaries go to AMQP only when a broker is configured.
	var publisher orchestrator.CyclePublisher
	if cfg.AMQPURL != "" {
		p, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("failed to initialize event publisher", log.FieldError, err)
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
		logger.Info("cycle summary publishing enabled", "exchange", cfg.AMQPExchange)
	}

	fleet := orchestrator.NewFleet(source, orch, policy, logger, cfg.MaxConcurrentTenants, publisher)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	logger.Info("entering polling loop", "interval", cfg.PollInterval)

	// Run one cycle immediately, then on every tick. An in-flight
	// document commit always finishes; shutdown stops between documents,
	// and the loop exits once the interrupted cycle has returned.
	runCycle(ctx, fleet, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			logger.Info("budgetflow-worker stopped")
			return
		case <-ticker.C:
			runCycle(ctx, fleet, logger)
		}
	}
}

func runCycle(ctx context.Context, fleet *orchestrator.Fleet, logger *log.Logger) {
	if ctx.Err() != nil {
		return
	}
	if _, err := fleet.RunCycle(ctx); err != nil {
		logger.Error("polling cycle failed", log.FieldError, err)
	}
}

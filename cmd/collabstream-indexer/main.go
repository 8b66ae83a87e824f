package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabstream/internal/config"
	"collabstream/internal/indexer"
	"collabstream/internal/logging"
)

func main() {
	cfg := config.LoadConfig()

	if err := logging.Initialize(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Shutdown()

	if cfg.Database.Migrate {
		if err := indexer.Migrate(cfg.Database.URL); err != nil {
			slog.Error("Failed to apply migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("Database schema up to date")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := indexer.NewPgStore(ctx, cfg.Database.URL, slog.Default())
	cancel()
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	embedder := indexer.NewHTTPEmbedder(cfg.Indexer.EmbedServiceURL)

	worker := indexer.NewWorker(indexer.WorkerConfig{
		ScanInterval: cfg.Indexer.ScanInterval,
		BatchLimit:   cfg.Indexer.BatchLimit,
	}, store, embedder, slog.Default())

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if err := worker.Start(bgCtx); err != nil {
		slog.Error("Failed to start index worker", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down index worker...")

	bgCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := worker.Stop(shutdownCtx); err != nil {
		slog.Error("Index worker shutdown failed", "error", err)
	}
	slog.Info("Index worker stopped")
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabstream/internal/auth"
	"collabstream/internal/config"
	"collabstream/internal/gateway"
	"collabstream/internal/logging"
	"collabstream/internal/updatelog"
	"collabstream/internal/updatelog/memory"
	"collabstream/internal/updatelog/nats"
)

func main() {
	cfg := config.LoadConfig()

	if err := logging.Initialize(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Shutdown()

	provider, err := newProvider(cfg)
	if err != nil {
		slog.Error("Failed to create update log provider", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	if c, ok := provider.(updatelog.Connectable); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.Connect(ctx)
		cancel()
		if err != nil {
			slog.Error("Failed to connect to update log", "error", err)
			os.Exit(1)
		}
	}

	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		slog.Error("Failed to initialize token service", "error", err)
		os.Exit(1)
	}

	cfg.Gateway.StreamName = cfg.Stream.Name
	srv, err := gateway.NewServer(cfg.Gateway, provider, tokens, slog.Default())
	if err != nil {
		slog.Error("Failed to create gateway", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:    cfg.Gateway.Addr,
		Handler: srv,
	}

	go func() {
		slog.Info("Gateway listening", "addr", cfg.Gateway.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Gateway server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Gateway shutdown failed", "error", err)
	}
	slog.Info("Gateway stopped")
}

// newProvider selects the update log backend. An empty stream URL selects
// the in-memory engine, for single-process setups.
func newProvider(cfg *config.Config) (updatelog.Provider, error) {
	if cfg.Stream.URL == "" || cfg.Stream.Storage == "memory" {
		return memory.New(), nil
	}
	return nats.NewProvider(cfg.Stream.URL)
}

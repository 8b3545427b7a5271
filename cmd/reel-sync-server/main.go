package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/reel-sync/internal/auth"
	"github.com/alexjbarnes/reel-sync/internal/config"
	"github.com/alexjbarnes/reel-sync/internal/docstore"
	"github.com/alexjbarnes/reel-sync/internal/logging"
	"github.com/alexjbarnes/reel-sync/internal/server"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServer()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("reel-sync-server starting",
		slog.String("version", Version),
		slog.String("addr", cfg.ListenAddr),
		slog.String("database", cfg.DatabasePath),
	)

	store, err := docstore.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := auth.NewService(store, auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL), logger.With(slog.String("component", "auth")))

	mux := server.NewMux(server.MuxConfig{
		Auth:   svc,
		Store:  store,
		Hub:    docstore.NewHub(),
		Logger: logger.With(slog.String("component", "http")),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}

	return nil
}

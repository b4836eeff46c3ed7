// Package main is the entry point of the SkillPath Hub API server.
//
// It loads configuration, wires storage, the event bus and every handler
// through internal/app, then serves the REST API until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/skillpath/skillpath-hub/config"
	"github.com/skillpath/skillpath-hub/internal/app"
	httpserver "github.com/skillpath/skillpath-hub/internal/interface/http"
	"github.com/skillpath/skillpath-hub/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := app.NewLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting SkillPath Hub API",
		logger.String("version", cfg.App.Version),
		logger.String("progress_backend", string(cfg.Storage.ProgressBackend)),
		logger.String("ledger_backend", string(cfg.Storage.LedgerBackend)),
	)
	if cfg.AllowIdentityHeader() {
		log.Warn("trusting the X-Identity header; do not expose this instance publicly")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. APPLICATION
	// ─────────────────────────────────────────────────────────────────────────
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to close application", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	server := httpserver.NewServer(httpserver.ConfigFrom(cfg), httpserver.Dependencies{
		Commands: a.Commands,
		Queries:  a.Queries,
		Catalog:  a.Catalog,
		Auth:     httpserver.NewAuthenticator(cfg.Auth, cfg.AllowIdentityHeader()),
		Health:   a.Health,
		Logger:   log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 4. RUN UNTIL SIGNAL
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

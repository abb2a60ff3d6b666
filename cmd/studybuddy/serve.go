package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alem-hub/study-buddy/internal/infrastructure/persistence/postgres"
	httpapi "github.com/alem-hub/study-buddy/internal/interface/http"
	"github.com/alem-hub/study-buddy/internal/interface/http/handlers"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Config & logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info("starting study buddy service", logger.String("env", string(cfg.App.Environment)))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Stores & handlers
	// ─────────────────────────────────────────────────────────────────────────
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(a.db).Up(ctx)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", logger.Count("applied", applied))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Health checks
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.NewPingCheck(a.db), true)
	if a.cache != nil {
		health.AddCheck("redis", handlers.NewPingCheck(a.cache), false)
	}
	if a.llm != nil {
		health.AddCheck("llm", a.llm.CheckBreaker, false)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	server := httpapi.NewServer(httpapi.Config{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	}, httpapi.Dependencies{
		FindCandidates:         a.findCandidates,
		RankMatches:            a.rankMatches,
		CalculateCompatibility: a.calculate,
		AnalyzeCompatibility:   a.analyze,
		ListMatches:            a.listMatches,
		SuggestMatch:           a.suggestMatch,
		RespondToMatch:         a.respondToMatch,
		UpdatePreferences:      a.updatePreferences,
		HealthChecker:          health,
		Logger:                 log,
	})

	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Wait for signal or server error
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("service stopped")
	return nil
}

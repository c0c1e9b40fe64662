package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/david/lessons-learned/internal/ai"
	"github.com/david/lessons-learned/internal/analysis"
	"github.com/david/lessons-learned/internal/api"
	"github.com/david/lessons-learned/internal/auth"
	"github.com/david/lessons-learned/internal/config"
	"github.com/david/lessons-learned/internal/db"
	"github.com/david/lessons-learned/internal/logger"
	"github.com/david/lessons-learned/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		l.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, l); err != nil {
		l.Fatal("migration failed", zap.Error(err))
	}

	secret, err := auth.Secret(cfg.Auth.JWTSecret, l)
	if err != nil {
		l.Fatal("failed to prepare signing secret", zap.Error(err))
	}

	m := metrics.Default()
	var gen ai.Generator
	if cfg.Anthropic.APIKey != "" {
		gen = ai.NewClient(ai.ClientConfig{
			APIKey:  cfg.Anthropic.APIKey,
			Model:   cfg.Anthropic.Model,
			BaseURL: cfg.Anthropic.BaseURL,
			Timeout: cfg.Anthropic.Timeout,
		}, l, m)
	} else {
		l.Warn("ANTHROPIC_API_KEY not set; analysis endpoints are disabled")
	}

	srv := api.NewServer(api.Options{
		Store: db.NewStore(pool),
		Auth:  auth.NewService(pool, secret),
		Analyzer: analysis.New(gen, analysis.Config{
			AnalysisMaxTokens:    cfg.Anthropic.AnalysisMaxTokens,
			DeliverableMaxTokens: cfg.Anthropic.DeliverableMaxTokens,
			ChatMaxTokens:        cfg.Anthropic.ChatMaxTokens,
		}, l, m),
		JWTSecret:   secret,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      l,
		Metrics:     m,
	})

	go func() {
		l.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("model", cfg.Anthropic.Model))
		if err := srv.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("shutdown failed", zap.Error(err))
	}
	l.Info("server stopped")
}

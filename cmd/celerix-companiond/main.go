package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-companion/internal/api"
	"github.com/celerix-dev/celerix-companion/internal/clock"
	"github.com/celerix-dev/celerix-companion/internal/config"
	"github.com/celerix-dev/celerix-companion/internal/engage"
	"github.com/celerix-dev/celerix-companion/internal/llm"
	"github.com/celerix-dev/celerix-companion/internal/logging"
	"github.com/celerix-dev/celerix-companion/internal/persona"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "celerix-companiond: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	// 2. Calendar zone. A broken tz database is not fatal.
	zone, err := clock.LoadZone(cfg.Timezone)
	if err != nil {
		log.Warn("timezone unavailable, using fixed offset",
			zap.String("zone", cfg.Timezone),
			zap.Int("offset_minutes", clock.DefaultOffsetMinutes),
			zap.Error(err))
	}

	// 3. Personas
	var catalog *persona.Catalog
	if cfg.PersonaFile != "" {
		catalog, err = persona.Load(cfg.PersonaFile)
	} else {
		catalog, err = persona.Default()
	}
	if err != nil {
		return fmt.Errorf("load personas: %w", err)
	}

	// 4. Engine
	metrics, err := engage.NewMetrics(otel.GetMeterProvider().Meter(engage.MeterName))
	if err != nil {
		return err
	}
	generator := llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.GenTimeout,
	})
	eng, err := engage.New(engage.Config{
		DailyLimit:    cfg.DailyLimit,
		HistoryLimit:  cfg.HistoryLimit,
		ContextWindow: cfg.ContextWindow,
	}, engage.Deps{
		Personas:  catalog,
		Generator: generator,
		Zone:      zone,
		Logger:    log.Named("engage"),
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}
	log.Info("engine started",
		zap.Int("personas", len(catalog.List())),
		zap.String("default_persona", catalog.DefaultID()),
		zap.Int("daily_limit", eng.Limit()),
		zap.String("zone", zone.Name()))

	// 5. HTTP API
	gin.SetMode(cfg.GinMode)
	h := &api.Handler{Engine: eng, Log: log.Named("api")}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(h, api.NewClientLimiter(cfg.RateLimit, cfg.RateBurst)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 6. Handle Graceful Shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
	}

	log.Info("shutdown signal received, draining requests")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GenTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

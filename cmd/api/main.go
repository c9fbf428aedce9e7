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

	"docqa/internal/api"
	"docqa/internal/app"
	"docqa/internal/config"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		app.NewLogger(config.Defaults()).Error("load config", "err", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("api server stopped", "err", err)
		os.Exit(1)
	}
}

// run serves the API until ctx is done. Every resource it opens is closed
// before it returns.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open runtime: %w", err)
	}
	defer rt.Close()

	var workflows api.WorkflowClient
	tc, err := client.NewLazyClient(client.Options{
		HostPort: cfg.TemporalAddress,
		Logger:   tlog.NewStructuredLogger(logger.With("component", "temporal")),
	})
	if err != nil {
		logger.Warn("temporal unavailable, bulk ingestion disabled", "err", err)
	} else {
		defer tc.Close()
		workflows = tc
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewServer(rt, workflows).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("docqa api listening",
		"addr", cfg.APIAddr,
		"backend", cfg.VectorBackend,
		"embed_provider", cfg.EmbedProvider,
		"llm_providers", cfg.LLMProviders)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"docqa/internal/activities"
	"docqa/internal/app"
	"docqa/internal/config"
	"docqa/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		app.NewLogger(config.Defaults()).Error("load config", "err", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("worker stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if cfg.VectorBackend == "memory" {
		logger.Warn("memory backend is local to this process; the API will not see chunks ingested here")
	}

	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalAddress,
		Logger:   tlog.NewStructuredLogger(logger.With("component", "temporal")),
	})
	if err != nil {
		return fmt.Errorf("dial temporal: %w", err)
	}
	defer c.Close()

	rt, err := app.Open(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("open runtime: %w", err)
	}
	defer rt.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(rt.Files, rt.Store, rt.Ingester, cfg.DataOutRoot))

	logger.Info("docqa worker listening",
		"temporal", cfg.TemporalAddress,
		"queue", cfg.TemporalTaskQueue,
		"embed_provider", cfg.EmbedProvider)
	return w.Run(worker.InterruptCh())
}

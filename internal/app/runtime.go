package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"docqa/internal/config"
	"docqa/internal/extract"
	"docqa/internal/jobs"
	"docqa/internal/pipeline"
	"docqa/internal/providers"
	"docqa/internal/storage"
	"docqa/internal/util"
	"docqa/internal/vector"
)

// Runtime holds the wired components shared by the API server, the worker
// and the CLI.
type Runtime struct {
	Config    config.Config
	Logger    *slog.Logger
	DB        *storage.DB
	Files     *storage.FileStore
	Store     vector.Store
	Providers *providers.Manager
	Ingester  *pipeline.Ingester
	Querier   *pipeline.Querier
	Tracker   *jobs.Tracker
	Runner    *jobs.Runner
	QueryLog  *storage.QueryLogRepo
}

// Open connects the configured backend, resolves providers and checks that
// the embedder produces vectors of the collection's dimension.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = NewLogger(cfg)
	}
	rt := &Runtime{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	if err := rt.openStore(ctx); err != nil {
		return nil, err
	}

	pm, err := providers.NewManager(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}
	rt.Providers = pm
	if err := checkEmbedderDimension(ctx, pm.Embedder(), cfg.EmbedDim); err != nil {
		return nil, err
	}

	files, err := storage.NewFileStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	rt.Files = files

	chain, err := extract.NewChainFromNames(cfg.Strategies(), extract.ExecRunner{}, logger)
	if err != nil {
		return nil, err
	}
	chunker, err := util.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithEmbedBatchSize(cfg.EmbedBatchSize),
	}
	if cfg.QueryLog {
		if rt.DB == nil {
			logger.Warn("query log needs the pgvector backend, disabled")
		} else {
			repo := storage.NewQueryLogRepo(rt.DB)
			if err := repo.EnsureSchema(ctx); err != nil {
				return nil, err
			}
			rt.QueryLog = repo
			opts = append(opts, pipeline.WithQueryRecorder(repo))
		}
	}

	if cfg.LLMAudit {
		if rt.DB == nil {
			logger.Warn("llm audit needs the pgvector backend, disabled")
		} else {
			audit := storage.NewLLMAuditRepo(rt.DB)
			if err := audit.EnsureSchema(ctx); err != nil {
				return nil, err
			}
			pm.SetAuditor(audit)
		}
	}

	rt.Ingester = pipeline.NewIngester(extract.NewSource(files, chain), chunker, pm.Embedder(), rt.Store, opts...)
	rt.Querier = pipeline.NewQuerier(pm.Embedder(), rt.Store, pm.Generator(), opts...)

	rt.Tracker = jobs.NewTracker()
	runner, err := jobs.NewRunner(rt.Tracker, rt.Ingester.IngestWithProgress, cfg.IngestWorkers, logger)
	if err != nil {
		return nil, err
	}
	rt.Runner = runner

	logger.Info("runtime ready",
		"backend", cfg.VectorBackend,
		"collection", cfg.Collection,
		"dimension", cfg.EmbedDim,
		"chunk_size", cfg.ChunkSize,
		"chunk_overlap", cfg.ChunkOverlap)
	ok = true
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) error {
	cfg := rt.Config
	switch cfg.VectorBackend {
	case "memory":
		rt.Store = vector.NewMemoryStore(cfg.Collection)
	default:
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		db, err := storage.NewDB(dialCtx, cfg.PostgresURL)
		if err != nil {
			return util.External("open postgres", err)
		}
		rt.DB = db
		store, err := vector.NewPGStore(db.Pool, cfg.Collection)
		if err != nil {
			return err
		}
		rt.Store = store
	}
	if err := rt.Store.EnsureCollection(ctx, cfg.EmbedDim); err != nil {
		return fmt.Errorf("ensure collection %s: %w", cfg.Collection, err)
	}
	return nil
}

// checkEmbedderDimension embeds a probe string; a configured dimension that
// the model does not produce would fail every insert later.
func checkEmbedderDimension(ctx context.Context, e providers.Embedder, want int) error {
	v, err := e.Embed(ctx, "dimension probe")
	if err != nil {
		return util.External("embedder probe", err)
	}
	if len(v) != want {
		info := e.Info()
		return fmt.Errorf("%w: %s/%s returns %d dimensions, collection expects %d",
			vector.ErrDimensionMismatch, info.Name, info.Model, len(v), want)
	}
	return nil
}

func (rt *Runtime) Close() {
	if rt.Runner != nil {
		if err := rt.Runner.Close(10 * time.Second); err != nil {
			rt.Logger.Warn("ingest jobs still running at shutdown", "err", err)
		}
	}
	if rt.Providers != nil {
		rt.Providers.Close()
	}
	rt.DB.Close()
}

func NewLogger(cfg config.Config) *slog.Logger {
	return newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

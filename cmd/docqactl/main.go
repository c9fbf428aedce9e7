package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"docqa/internal/app"
	"docqa/internal/config"
	"docqa/internal/pipeline"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load(".env")
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docqactl",
		Usage: "Manage and query the document index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file (overrides DOCQA_CONFIG)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Store a PDF and ingest it",
				ArgsUsage: "<file.pdf>",
				Action:    addCommand,
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the indexed documents",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "top-k", Aliases: []string{"k"}, Usage: "Chunks to retrieve (default from config)"},
					&cli.Float64Flag{Name: "threshold", Aliases: []string{"t"}, Usage: "Minimum similarity score (default from config)"},
				},
			},
			{
				Name:      "search",
				Usage:     "Show the best matching chunks without generating an answer",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "top-k", Aliases: []string{"k"}, Usage: "Chunks to retrieve (default from config)"},
					&cli.Float64Flag{Name: "threshold", Aliases: []string{"t"}, Usage: "Drop chunks scoring below this value"},
					&cli.StringSliceFlag{Name: "document", Aliases: []string{"d"}, Usage: "Restrict to these document ids"},
				},
			},
			{
				Name:   "list",
				Usage:  "List indexed documents, newest first",
				Action: listCommand,
			},
			{
				Name:      "delete",
				Usage:     "Delete a document's chunks and stored file",
				ArgsUsage: "<document-id>",
				Action:    deleteCommand,
			},
			{
				Name:      "reindex",
				Usage:     "Rebuild a document's chunks from its stored file",
				ArgsUsage: "<document-id>",
				Action:    reindexCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show collection statistics",
				Action: statsCommand,
			},
		},
	}
}

// withRuntime loads configuration, opens the runtime for one command and
// closes it afterwards.
func withRuntime(c *cli.Context, fn func(ctx context.Context, rt *app.Runtime) error) error {
	if path := c.String("config"); path != "" {
		if err := os.Setenv("DOCQA_CONFIG", path); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.IsSet("log-level") || os.Getenv("DOCQA_LOG_LEVEL") == "" {
		cfg.LogLevel = c.String("log-level")
	}
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := app.Open(ctx, cfg, app.NewLogger(cfg))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func firstArg(c *cli.Context, what string) (string, error) {
	if c.NArg() < 1 || c.Args().First() == "" {
		return "", fmt.Errorf("%s is required", what)
	}
	return c.Args().First(), nil
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func addCommand(c *cli.Context) error {
	path, err := firstArg(c, "PDF path")
	if err != nil {
		return err
	}
	return withRuntime(c, func(ctx context.Context, rt *app.Runtime) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		saved, err := rt.Files.Save(uuid.NewString(), filepath.Base(path), f)
		if err != nil {
			return err
		}
		res, err := rt.Ingester.Ingest(ctx, saved.DocumentID, saved.Filename)
		if err != nil {
			return fmt.Errorf("ingest %s (stored as %s): %w", saved.Filename, saved.DocumentID, err)
		}
		return printJSON(c, res)
	})
}

func askCommand(c *cli.Context) error {
	question, err := firstArg(c, "question")
	if err != nil {
		return err
	}
	return withRuntime(c, func(ctx context.Context, rt *app.Runtime) error {
		k, err := topK(c, rt.Config)
		if err != nil {
			return err
		}
		threshold := rt.Config.SimilarityThreshold
		if c.IsSet("threshold") {
			threshold = c.Float64("threshold")
		}
		res, err := rt.Querier.Query(ctx, question, k, threshold)
		if err != nil {
			return err
		}
		return printJSON(c, res)
	})
}

func searchCommand(c *cli.Context) error {
	query, err := firstArg(c, "query")
	if err != nil {
		return err
	}
	return withRuntime(c, func(ctx context.Context, rt *app.Runtime) error {
		k, err := topK(c, rt.Config)
		if err != nil {
			return err
		}
		opts := pipeline.SearchOptions{DocumentIDs: c.StringSlice("document")}
		if c.IsSet("threshold") {
			opts.ApplyThreshold, opts.Threshold = true, c.Float64("threshold")
		}
		chunks, err := rt.Querier.Search(ctx, query, k, opts)
		if err != nil {
			return err
		}
		return printJSON(c, chunks)
	})
}

func topK(c *cli.Context, cfg config.Config) (int, error) {
	if !c.IsSet("top-k") {
		return cfg.TopK, nil
	}
	k := c.Int("top-k")
	if k < 1 || k > cfg.MaxTopK {
		return 0, fmt.Errorf("--top-k must be between 1 and %d", cfg.MaxTopK)
	}
	return k, nil
}

func listCommand(c *cli.Context) error {
	return withRuntime(c, func(ctx context.Context, rt *app.Runtime) error {
		docs, err := rt.Store.ListDocuments(ctx)
		if err != nil {
			return err
		}
		sort.SliceStable(docs, func(i, j int) bool {
			return docs[i].UploadTimestamp.After(docs[j].UploadTimestamp)
		})
		return printJSON(c, docs)
	})
}

func deleteCommand(c *cli.Context) error {
	id, err := firstArg(c, "document id")
	if err != nil {
		return err
	}
	return withRuntime(c, func(ctx context.Context, rt *app.Runtime) error {
		deleted, err := rt.Store.DeleteByDocument(ctx, id)
		if err != nil {
			return err
		}
		fileDeleted, err := rt.Files.Delete(id)
		if err != nil {
			return err
		}
		if deleted == 0 && !fileDeleted {
			return fmt.Errorf("document %s not found", id)
		}
		return printJSON(c, map[string]any{"document_id": id, "deleted_chunks": deleted, "file_deleted": fileDeleted})
	})
}

func reindexCommand(c *cli.Context) error {
	id, err := firstArg(c, "document id")
	if err != nil {
		return err
	}
	return withRuntime(c, func(ctx context.Context, rt *app.Runtime) error {
		f, err := rt.Files.Locate(id)
		if err != nil {
			return err
		}
		res, err := rt.Ingester.Reindex(ctx, id, f.Filename)
		if err != nil {
			return err
		}
		return printJSON(c, res)
	})
}

func statsCommand(c *cli.Context) error {
	return withRuntime(c, func(ctx context.Context, rt *app.Runtime) error {
		stats, err := rt.Store.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(c, stats)
	})
}

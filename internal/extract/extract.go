package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"docqa/internal/models"
	"docqa/internal/util"
)

// Strategy pulls per-page text out of one PDF file.
type Strategy interface {
	Name() string
	ExtractPages(ctx context.Context, path string) ([]models.Page, error)
}

// Chain tries strategies in order and keeps the first non-empty result.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewChain(logger *slog.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{strategies: strategies, logger: logger.With("component", "extract")}
}

// NewChainFromNames builds a chain from configured strategy names.
func NewChainFromNames(names []string, runner CommandRunner, logger *slog.Logger) (*Chain, error) {
	strategies := make([]Strategy, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(name) {
		case "pdf":
			strategies = append(strategies, PDFStrategy{})
		case "pdftotext":
			strategies = append(strategies, NewPDFToTextStrategy(runner))
		default:
			return nil, fmt.Errorf("unknown extraction strategy %q", name)
		}
	}
	if len(strategies) == 0 {
		return nil, errors.New("no extraction strategy configured")
	}
	return NewChain(logger, strategies...), nil
}

func (c *Chain) ExtractPages(ctx context.Context, path string) ([]models.Page, error) {
	var failures []string
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages, err := s.ExtractPages(ctx, path)
		if err != nil {
			c.logger.Warn("extraction strategy failed", "strategy", s.Name(), "path", path, "err", err)
			failures = append(failures, s.Name()+": "+err.Error())
			continue
		}
		pages = nonEmpty(pages)
		if len(pages) == 0 {
			c.logger.Debug("extraction strategy found no text", "strategy", s.Name(), "path", path)
			continue
		}
		c.logger.Debug("extracted pages", "strategy", s.Name(), "pages", len(pages))
		return pages, nil
	}
	if len(failures) > 0 {
		return nil, fmt.Errorf("%w (%s)", util.ErrNoExtractableText, strings.Join(failures, "; "))
	}
	return nil, util.ErrNoExtractableText
}

func nonEmpty(pages []models.Page) []models.Page {
	out := pages[:0]
	for _, p := range pages {
		p.Text = util.SanitizeText(p.Text)
		if p.Text != "" {
			out = append(out, p)
		}
	}
	return out
}

type Locator interface {
	Locate(documentID string) (models.StoredFile, error)
}

type PathExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]models.Page, error)
}

// Source resolves a document id to its stored upload and extracts its pages.
type Source struct {
	files     Locator
	extractor PathExtractor
}

func NewSource(files Locator, extractor PathExtractor) *Source {
	return &Source{files: files, extractor: extractor}
}

func (s *Source) ExtractPages(ctx context.Context, documentID string) ([]models.Page, error) {
	f, err := s.files.Locate(documentID)
	if err != nil {
		return nil, err
	}
	return s.extractor.ExtractPages(ctx, f.Path)
}

package extract

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"docqa/internal/models"
)

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// PDFToTextStrategy shells out to poppler's pdftotext, which separates pages
// with form feeds.
type PDFToTextStrategy struct {
	runner CommandRunner
}

func NewPDFToTextStrategy(runner CommandRunner) PDFToTextStrategy {
	if runner == nil {
		runner = ExecRunner{}
	}
	return PDFToTextStrategy{runner: runner}
}

func (PDFToTextStrategy) Name() string { return "pdftotext" }

func (s PDFToTextStrategy) ExtractPages(ctx context.Context, path string) ([]models.Page, error) {
	out, err := s.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}
	parts := strings.Split(string(out), "\f")
	pages := make([]models.Page, 0, len(parts))
	for i, text := range parts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, models.Page{Number: i + 1, Text: text})
	}
	return pages, nil
}

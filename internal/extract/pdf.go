package extract

import (
	"context"
	"fmt"

	"docqa/internal/models"

	"github.com/ledongthuc/pdf"
)

type PDFStrategy struct{}

func (PDFStrategy) Name() string { return "pdf" }

func (PDFStrategy) ExtractPages(ctx context.Context, path string) (pages []models.Page, err error) {
	// the parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	pages = make([]models.Page, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, models.Page{Number: i, Text: text})
	}
	return pages, nil
}

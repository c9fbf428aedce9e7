package vector

import (
	"context"
	"errors"
	"fmt"
	"math"

	"docqa/internal/models"
	"docqa/internal/util"
)

// ErrDimensionMismatch is a configuration error: the collection, the
// embedder and the configured dimension disagree.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ErrCollectionMissing is returned when an operation runs before EnsureCollection.
var ErrCollectionMissing = errors.New("collection does not exist")

type SearchFilter struct {
	DocumentIDs []string
}

// Store persists chunk embeddings and answers top-k cosine similarity searches.
//
// Inserted rows are visible to searches once Insert returns. Search results are
// ordered by descending score with ties broken by insertion order.
type Store interface {
	EnsureCollection(ctx context.Context, dimension int) error
	Insert(ctx context.Context, documentID, filename string, chunks []string, embeddings [][]float32, pageNumbers []int) (int, error)
	Search(ctx context.Context, query []float32, topK int, filter *SearchFilter) ([]models.SearchHit, error)
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	ListDocuments(ctx context.Context) ([]models.DocumentSummary, error)
	Stats(ctx context.Context) (models.StoreStats, error)
	HealthCheck(ctx context.Context) bool
}

func validateInsert(dim int, documentID string, chunks []string, embeddings [][]float32, pageNumbers []int) error {
	if documentID == "" {
		return util.Validationf("document id is required")
	}
	if len(chunks) != len(embeddings) || len(chunks) != len(pageNumbers) {
		return util.Validationf("chunks (%d), embeddings (%d) and page numbers (%d) must have equal length",
			len(chunks), len(embeddings), len(pageNumbers))
	}
	for i, e := range embeddings {
		if len(e) != dim {
			return fmt.Errorf("%w: embedding %d has %d values, collection expects %d", ErrDimensionMismatch, i, len(e), dim)
		}
	}
	return nil
}

func validateSearch(dim int, query []float32, topK int) error {
	if topK < 1 {
		return util.Validationf("top_k must be at least 1, got %d", topK)
	}
	if len(query) != dim {
		return fmt.Errorf("%w: query has %d values, collection expects %d", ErrDimensionMismatch, len(query), dim)
	}
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"docqa/internal/models"
	"docqa/internal/providers"
	"docqa/internal/util"
	"docqa/internal/vector"

	"github.com/stretchr/testify/require"
)

const testDim = 384

// sentenceRun builds count ten-word sentences with globally unique words.
func sentenceRun(firstID, count int) string {
	parts := make([]string, 0, count)
	for id := firstID; id < firstID+count; id++ {
		words := make([]string, 10)
		for w := range words {
			words[w] = fmt.Sprintf("s%dw%d", id, w+1)
		}
		parts = append(parts, strings.Join(words, " ")+".")
	}
	return strings.Join(parts, " ")
}

type fakePages struct {
	mu    sync.Mutex
	pages map[string][]models.Page
}

func (f *fakePages) ExtractPages(_ context.Context, documentID string) ([]models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[documentID]
	if !ok {
		return nil, util.NotFoundf("no stored file for document %s", documentID)
	}
	return p, nil
}

func (f *fakePages) remove(documentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pages, documentID)
}

// twoPageDoc yields three 30-word chunks per page with a 30/0 chunker.
func twoPageDoc() []models.Page {
	return []models.Page{
		{Number: 1, Text: sentenceRun(1, 9)},
		{Number: 2, Text: sentenceRun(10, 9)},
	}
}

type recordingEmbedder struct {
	*providers.MockProvider
	mu       sync.Mutex
	batches  []int
	failWith error
	// skew shifts the vector count of the nth batch: -1 drops one, +1 repeats one.
	skew []int
}

func (r *recordingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	r.mu.Lock()
	r.batches = append(r.batches, len(texts))
	fail := r.failWith
	n := len(r.batches) - 1
	shift := 0
	if n < len(r.skew) {
		shift = r.skew[n]
	}
	r.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	vecs, err := r.MockProvider.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) == 0 {
		return vecs, err
	}
	switch {
	case shift < 0:
		vecs = vecs[:len(vecs)-1]
	case shift > 0:
		vecs = append(vecs, vecs[len(vecs)-1])
	}
	return vecs, nil
}

type stubGenerator struct {
	mu    sync.Mutex
	calls int
	last  providers.GenerateRequest
	err   error
}

func (s *stubGenerator) Generate(_ context.Context, req providers.GenerateRequest) (providers.GenerateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = req
	if s.err != nil {
		return providers.GenerateResponse{}, s.err
	}
	return providers.GenerateResponse{Text: fmt.Sprintf("answer from %d fragments", len(req.Context))}, nil
}

type fixture struct {
	pages     *fakePages
	store     *vector.MemoryStore
	embedder  *recordingEmbedder
	generator *stubGenerator
	ingester  *Ingester
	querier   *Querier
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := vector.NewMemoryStore("documents")
	require.NoError(t, store.EnsureCollection(context.Background(), testDim))
	return newFixtureWithStore(t, store, store, opts...)
}

func newFixtureWithStore(t *testing.T, mem *vector.MemoryStore, store vector.Store, opts ...Option) *fixture {
	t.Helper()
	chunker, err := util.NewChunker(30, 0)
	require.NoError(t, err)
	f := &fixture{
		pages:     &fakePages{pages: map[string][]models.Page{"doc-1": twoPageDoc()}},
		store:     mem,
		embedder:  &recordingEmbedder{MockProvider: providers.NewMockProvider(testDim)},
		generator: &stubGenerator{},
	}
	f.ingester = NewIngester(f.pages, chunker, f.embedder, store, opts...)
	f.querier = NewQuerier(f.embedder, store, f.generator, opts...)
	return f
}

func chunkCount(t *testing.T, s vector.Store) int64 {
	t.Helper()
	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	return stats.TotalChunks
}

var errBoom = errors.New("boom")

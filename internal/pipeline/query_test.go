package pipeline

import (
	"context"
	"math"
	"sync"
	"testing"

	"docqa/internal/models"
	"docqa/internal/util"
	"docqa/internal/vector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ingested(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := newFixture(t, opts...)
	_, err := f.ingester.Ingest(context.Background(), "doc-1", "report.pdf")
	require.NoError(t, err)
	return f
}

func TestQueryValidatesInput(t *testing.T) {
	f := ingested(t)
	ctx := context.Background()

	_, err := f.querier.Query(ctx, "   \n", 5, 0.5)
	require.ErrorIs(t, err, util.ErrValidation)
	_, err = f.querier.Query(ctx, "what?", 0, 0.5)
	require.ErrorIs(t, err, util.ErrValidation)
	_, err = f.querier.Query(ctx, "what?", 5, math.NaN())
	require.ErrorIs(t, err, util.ErrValidation)
	assert.Equal(t, 0, f.generator.calls)
}

func TestQueryEmptyIndexSkipsGeneration(t *testing.T) {
	f := newFixture(t)
	res, err := f.querier.Query(context.Background(), "anything at all", 5, 0.5)
	require.NoError(t, err)
	assert.Equal(t, NoDocumentsAnswer, res.Answer)
	assert.Equal(t, models.OutcomeNoDocuments, res.Outcome)
	assert.Empty(t, res.RetrievedChunks)
	assert.Equal(t, 0, f.generator.calls)
}

func TestQueryThresholdAboveMaximumScore(t *testing.T) {
	f := ingested(t)
	res, err := f.querier.Query(context.Background(), sentenceRun(1, 3), 5, 1.01)
	require.NoError(t, err)
	assert.Equal(t, NotRelevantAnswer, res.Answer)
	assert.Equal(t, models.OutcomeBelowThreshold, res.Outcome)
	assert.Empty(t, res.RetrievedChunks)
	assert.NotEqual(t, NoDocumentsAnswer, res.Answer)
	assert.Equal(t, 0, f.generator.calls)
}

func TestQueryPassesContextInScoreOrder(t *testing.T) {
	f := ingested(t)
	// shares every word with chunk 0 and one sentence with chunk 1
	question := sentenceRun(1, 3) + " " + sentenceRun(4, 1)
	res, err := f.querier.Query(context.Background(), question, 6, 0.2)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeAnswered, res.Outcome)
	require.GreaterOrEqual(t, len(res.RetrievedChunks), 2)
	assert.Equal(t, 0, res.RetrievedChunks[0].Metadata.ChunkIndex)
	assert.Equal(t, 1, res.RetrievedChunks[1].Metadata.ChunkIndex)
	for i := 1; i < len(res.RetrievedChunks); i++ {
		assert.GreaterOrEqual(t, res.RetrievedChunks[i-1].Score, res.RetrievedChunks[i].Score)
		assert.GreaterOrEqual(t, res.RetrievedChunks[i].Score, 0.2)
	}
	require.Len(t, f.generator.last.Context, len(res.RetrievedChunks))
	assert.Equal(t, res.RetrievedChunks[0].Text, f.generator.last.Context[0].Text)
	assert.Contains(t, res.Answer, "answer from")
}

func TestQueryContentBlockDegradesToCannedAnswer(t *testing.T) {
	f := ingested(t)
	f.generator.err = util.External("openai generate", util.ErrContentBlocked)
	res, err := f.querier.Query(context.Background(), sentenceRun(1, 3), 5, 0.5)
	require.NoError(t, err)
	assert.Equal(t, ContentBlockedAnswer, res.Answer)
	assert.Equal(t, models.OutcomeContentBlocked, res.Outcome)
	assert.NotEmpty(t, res.RetrievedChunks)
}

func TestQueryGeneratorFailureIsExternal(t *testing.T) {
	f := ingested(t)
	f.generator.err = errBoom
	_, err := f.querier.Query(context.Background(), sentenceRun(1, 3), 5, 0.5)
	require.ErrorIs(t, err, util.ErrExternal)
}

func TestSearchWithoutGeneration(t *testing.T) {
	f := ingested(t)
	ctx := context.Background()

	all, err := f.querier.Search(ctx, sentenceRun(1, 3), 4, SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	relevant, err := f.querier.Search(ctx, sentenceRun(1, 3), 4, SearchOptions{ApplyThreshold: true, Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, relevant, 1)
	assert.Equal(t, 0, relevant[0].Metadata.ChunkIndex)

	none, err := f.querier.Search(ctx, sentenceRun(1, 3), 4, SearchOptions{DocumentIDs: []string{"other"}})
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, 0, f.generator.calls)
}

type memRecorder struct {
	mu   sync.Mutex
	recs []models.QueryLogRecord
}

func (m *memRecorder) Record(_ context.Context, rec models.QueryLogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func TestQueryRecorderSeesEveryOutcome(t *testing.T) {
	rec := &memRecorder{}
	f := ingested(t, WithQueryRecorder(rec))
	ctx := context.Background()

	_, err := f.querier.Query(ctx, sentenceRun(1, 3), 5, 0.5)
	require.NoError(t, err)
	_, err = f.querier.Query(ctx, sentenceRun(1, 3), 5, 2)
	require.NoError(t, err)
	_, err = f.querier.Query(ctx, " ", 5, 0.5)
	require.Error(t, err)

	require.Len(t, rec.recs, 3)
	assert.Equal(t, models.OutcomeAnswered, rec.recs[0].Outcome)
	assert.InDelta(t, 1.0, rec.recs[0].BestScore, 1e-5)
	assert.Equal(t, models.OutcomeBelowThreshold, rec.recs[1].Outcome)
	assert.Equal(t, "error", rec.recs[2].Outcome)
	assert.NotEmpty(t, rec.recs[2].ErrorMessage)
}

// gatedStore pauses Insert so a query can observe the window between a
// reindex's delete and its insert.
type gatedStore struct {
	*vector.MemoryStore
	inInsert chan struct{}
	release  chan struct{}
}

func (g *gatedStore) Insert(ctx context.Context, documentID, filename string, chunks []string, embeddings [][]float32, pageNumbers []int) (int, error) {
	close(g.inInsert)
	<-g.release
	return g.MemoryStore.Insert(ctx, documentID, filename, chunks, embeddings, pageNumbers)
}

func TestQueryDuringReindexSeesEmptyIndex(t *testing.T) {
	ctx := context.Background()
	mem := vector.NewMemoryStore("documents")
	require.NoError(t, mem.EnsureCollection(ctx, testDim))
	seed := newFixtureWithStore(t, mem, mem)
	_, err := seed.ingester.Ingest(ctx, "doc-1", "report.pdf")
	require.NoError(t, err)

	gate := &gatedStore{MemoryStore: mem, inInsert: make(chan struct{}), release: make(chan struct{})}
	f := newFixtureWithStore(t, mem, gate)

	done := make(chan error, 1)
	go func() {
		_, err := f.ingester.Reindex(ctx, "doc-1", "report.pdf")
		done <- err
	}()
	<-gate.inInsert

	mid, err := f.querier.Query(ctx, sentenceRun(1, 3), 5, 0.5)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoDocuments, mid.Outcome)

	close(gate.release)
	require.NoError(t, <-done)

	after, err := f.querier.Query(ctx, sentenceRun(1, 3), 5, 0.5)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAnswered, after.Outcome)
}

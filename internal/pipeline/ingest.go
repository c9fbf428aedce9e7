package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docqa/internal/models"
	"docqa/internal/providers"
	"docqa/internal/util"
	"docqa/internal/vector"
)

// PageSource returns the non-empty pages of a stored document.
type PageSource interface {
	ExtractPages(ctx context.Context, documentID string) ([]models.Page, error)
}

type Option func(*options)

type options struct {
	batchSize int
	logger    *slog.Logger
	recorder  QueryRecorder
	now       func() time.Time
}

func defaultOptions() options {
	return options{batchSize: 32, logger: slog.Default(), now: time.Now}
}

// WithEmbedBatchSize sets how many chunks go to the embedder per call.
func WithEmbedBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithQueryRecorder stores a summary of every query. Recording failures are
// logged and otherwise ignored.
func WithQueryRecorder(r QueryRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// Ingester turns a stored PDF into embedded chunks in the vector store.
type Ingester struct {
	pages    PageSource
	chunker  *util.Chunker
	embedder providers.Embedder
	store    vector.Store
	opts     options
	logger   *slog.Logger
}

func NewIngester(pages PageSource, chunker *util.Chunker, embedder providers.Embedder, store vector.Store, opts ...Option) *Ingester {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Ingester{
		pages:    pages,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		opts:     o,
		logger:   o.logger.With("component", "ingest"),
	}
}

type prepared struct {
	pages       int
	texts       []string
	pageNumbers []int
	embeddings  [][]float32
}

// Ingest extracts, chunks, embeds and inserts one document. Nothing is
// inserted unless every earlier step succeeds.
func (in *Ingester) Ingest(ctx context.Context, documentID, filename string) (models.IngestResult, error) {
	return in.IngestWithProgress(ctx, documentID, filename, nil)
}

func (in *Ingester) IngestWithProgress(ctx context.Context, documentID, filename string, progress func(int)) (models.IngestResult, error) {
	start := in.opts.now()
	report := progressFunc(progress)

	p, err := in.prepare(ctx, documentID, report)
	if err != nil {
		return models.IngestResult{}, err
	}
	inserted, err := in.insert(ctx, documentID, filename, p)
	if err != nil {
		return models.IngestResult{}, err
	}
	report(100)

	res := in.result(documentID, filename, p, inserted, start)
	in.logger.Info("document ingested",
		"document_id", documentID,
		"pages", res.PagesProcessed,
		"chunks", res.ChunksInserted,
		"seconds", res.ProcessingSeconds)
	return res, nil
}

// Reindex rebuilds a document's chunks from its stored file. Extraction,
// chunking and embedding run before the old chunks are deleted, so a missing
// or unreadable file leaves the existing chunks untouched. If the final
// insert fails after the delete, the document has no chunks until the next
// successful ingest.
func (in *Ingester) Reindex(ctx context.Context, documentID, filename string) (models.ReindexResult, error) {
	start := in.opts.now()
	p, err := in.prepare(ctx, documentID, progressFunc(nil))
	if err != nil {
		return models.ReindexResult{}, err
	}
	deleted, err := in.store.DeleteByDocument(ctx, documentID)
	if err != nil {
		return models.ReindexResult{}, util.External("delete old chunks", err)
	}
	inserted, err := in.insert(ctx, documentID, filename, p)
	if err != nil {
		in.logger.Error("reindex insert failed after delete",
			"document_id", documentID, "deleted", deleted, "err", err)
		return models.ReindexResult{}, err
	}
	res := models.ReindexResult{
		IngestResult:     in.result(documentID, filename, p, inserted, start),
		OldChunksDeleted: deleted,
	}
	in.logger.Info("document reindexed",
		"document_id", documentID, "deleted", deleted, "inserted", inserted)
	return res, nil
}

func (in *Ingester) prepare(ctx context.Context, documentID string, report func(int)) (prepared, error) {
	if documentID == "" {
		return prepared{}, util.Validationf("document id is required")
	}
	pages, err := in.pages.ExtractPages(ctx, documentID)
	if err != nil {
		return prepared{}, err
	}
	if len(pages) == 0 {
		return prepared{}, util.ErrNoExtractableText
	}
	report(20)

	p := prepared{pages: len(pages)}
	for _, page := range pages {
		for _, c := range in.chunker.Chunk(page.Text) {
			p.texts = append(p.texts, c.Text)
			p.pageNumbers = append(p.pageNumbers, page.Number)
		}
	}
	if len(p.texts) == 0 {
		return prepared{}, util.Validationf("document %s produced no chunks of at least %d words", documentID, util.MinChunkWords)
	}
	report(30)
	in.logger.Debug("chunked document", "document_id", documentID, "pages", len(pages), "chunks", len(p.texts))

	p.embeddings, err = in.embedAll(ctx, p.texts, report)
	if err != nil {
		return prepared{}, err
	}
	if len(p.embeddings) != len(p.texts) {
		return prepared{}, util.Validationf("got %d embeddings for %d chunks", len(p.embeddings), len(p.texts))
	}
	return p, nil
}

// embedAll embeds texts in batches and concatenates the results in order.
func (in *Ingester) embedAll(ctx context.Context, texts []string, report func(int)) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	size := in.opts.batchSize
	for startIdx := 0; startIdx < len(texts); startIdx += size {
		end := min(startIdx+size, len(texts))
		batch, err := in.embedder.EmbedBatch(ctx, texts[startIdx:end])
		if err != nil {
			return nil, util.External(fmt.Sprintf("embed chunks %d-%d", startIdx, end-1), err)
		}
		if len(batch) != end-startIdx {
			return nil, util.External(fmt.Sprintf("embed chunks %d-%d", startIdx, end-1),
				fmt.Errorf("got %d vectors for %d chunks", len(batch), end-startIdx))
		}
		out = append(out, batch...)
		report(30 + 60*end/len(texts))
	}
	return out, nil
}

func (in *Ingester) insert(ctx context.Context, documentID, filename string, p prepared) (int, error) {
	n, err := in.store.Insert(ctx, documentID, filename, p.texts, p.embeddings, p.pageNumbers)
	if err != nil {
		return 0, util.External("insert chunks", err)
	}
	return n, nil
}

func (in *Ingester) result(documentID, filename string, p prepared, inserted int, start time.Time) models.IngestResult {
	return models.IngestResult{
		DocumentID:          documentID,
		Filename:            filename,
		PagesProcessed:      p.pages,
		ChunksCreated:       len(p.texts),
		EmbeddingsGenerated: len(p.embeddings),
		ChunksInserted:      inserted,
		ProcessingSeconds:   in.opts.now().Sub(start).Seconds(),
	}
}

func progressFunc(fn func(int)) func(int) {
	if fn == nil {
		return func(int) {}
	}
	return fn
}

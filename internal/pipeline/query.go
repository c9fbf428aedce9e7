package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"docqa/internal/models"
	"docqa/internal/providers"
	"docqa/internal/util"
	"docqa/internal/vector"
)

const (
	NoDocumentsAnswer    = "I could not find any relevant documents to answer your question."
	NotRelevantAnswer    = "I found some documents, but none are relevant enough to answer your question reliably."
	ContentBlockedAnswer = "The answer could not be generated because the provider's content policy blocked the response. Try rephrasing your question."
)

type QueryRecorder interface {
	Record(ctx context.Context, rec models.QueryLogRecord) error
}

// Querier answers questions from previously ingested chunks.
type Querier struct {
	embedder  providers.Embedder
	store     vector.Store
	generator providers.Generator
	opts      options
	logger    *slog.Logger
}

func NewQuerier(embedder providers.Embedder, store vector.Store, generator providers.Generator, opts ...Option) *Querier {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Querier{
		embedder:  embedder,
		store:     store,
		generator: generator,
		opts:      o,
		logger:    o.logger.With("component", "query"),
	}
}

type SearchOptions struct {
	ApplyThreshold bool
	Threshold      float64
	DocumentIDs    []string
}

// Query retrieves the topK most similar chunks, keeps those scoring at least
// threshold and asks the generator for an answer grounded in them.
func (q *Querier) Query(ctx context.Context, question string, topK int, threshold float64) (models.QueryResult, error) {
	start := q.opts.now()
	res, err := q.query(ctx, question, topK, threshold)
	res.ProcessingSeconds = q.opts.now().Sub(start).Seconds()
	q.record(question, topK, threshold, res, err, start)
	if err != nil {
		return models.QueryResult{}, err
	}
	return res, nil
}

func (q *Querier) query(ctx context.Context, question string, topK int, threshold float64) (models.QueryResult, error) {
	if err := validateThreshold(threshold); err != nil {
		return models.QueryResult{}, err
	}
	hits, err := q.retrieve(ctx, question, topK, nil)
	if err != nil {
		return models.QueryResult{}, err
	}
	res := models.QueryResult{Question: question, RetrievedChunks: []models.RetrievedChunk{}}
	if len(hits) == 0 {
		res.Answer, res.Outcome = NoDocumentsAnswer, models.OutcomeNoDocuments
		return res, nil
	}
	relevant := filterByScore(hits, threshold)
	if len(relevant) == 0 {
		q.logger.Debug("no chunk met threshold", "best_score", hits[0].Score, "threshold", threshold)
		res.Answer, res.Outcome = NotRelevantAnswer, models.OutcomeBelowThreshold
		return res, nil
	}

	req := providers.GenerateRequest{Question: question, Context: make([]providers.ContextChunk, 0, len(relevant))}
	for _, h := range relevant {
		res.RetrievedChunks = append(res.RetrievedChunks, models.RetrievedFromHit(h))
		req.Context = append(req.Context, providers.ContextChunk{
			Text:       h.Text,
			Filename:   h.Filename,
			PageNumber: h.PageNumber,
			Score:      h.Score,
		})
	}

	resp, err := q.generator.Generate(ctx, req)
	switch {
	case errors.Is(err, util.ErrContentBlocked):
		q.logger.Warn("generation blocked by content policy", "err", err)
		res.Answer, res.Outcome = ContentBlockedAnswer, models.OutcomeContentBlocked
		return res, nil
	case err != nil:
		return models.QueryResult{}, util.External("generate answer", err)
	}
	res.Answer, res.Outcome = resp.Text, models.OutcomeAnswered
	return res, nil
}

// Search returns ranked chunks without generating an answer.
func (q *Querier) Search(ctx context.Context, question string, topK int, opts SearchOptions) ([]models.RetrievedChunk, error) {
	if opts.ApplyThreshold {
		if err := validateThreshold(opts.Threshold); err != nil {
			return nil, err
		}
	}
	var filter *vector.SearchFilter
	if len(opts.DocumentIDs) > 0 {
		filter = &vector.SearchFilter{DocumentIDs: opts.DocumentIDs}
	}
	hits, err := q.retrieve(ctx, question, topK, filter)
	if err != nil {
		return nil, err
	}
	if opts.ApplyThreshold {
		hits = filterByScore(hits, opts.Threshold)
	}
	out := make([]models.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, models.RetrievedFromHit(h))
	}
	return out, nil
}

func (q *Querier) retrieve(ctx context.Context, question string, topK int, filter *vector.SearchFilter) ([]models.SearchHit, error) {
	if strings.TrimSpace(question) == "" {
		return nil, util.Validationf("question must not be blank")
	}
	if topK < 1 {
		return nil, util.Validationf("top_k must be at least 1, got %d", topK)
	}
	emb, err := q.embedder.Embed(ctx, question)
	if err != nil {
		return nil, util.External("embed question", err)
	}
	hits, err := q.store.Search(ctx, emb, topK, filter)
	if err != nil {
		return nil, util.External("search chunks", err)
	}
	return hits, nil
}

func (q *Querier) record(question string, topK int, threshold float64, res models.QueryResult, qerr error, start time.Time) {
	if q.opts.recorder == nil {
		return
	}
	rec := models.QueryLogRecord{
		Question:       question,
		Outcome:        res.Outcome,
		TopK:           topK,
		Threshold:      threshold,
		RetrievedCount: len(res.RetrievedChunks),
		LatencyMS:      q.opts.now().Sub(start).Milliseconds(),
		CreatedAt:      start.UTC(),
	}
	if len(res.RetrievedChunks) > 0 {
		rec.BestScore = res.RetrievedChunks[0].Score
	}
	if qerr != nil {
		rec.Outcome = "error"
		rec.ErrorMessage = qerr.Error()
	}
	if math.IsNaN(rec.Threshold) || math.IsInf(rec.Threshold, 0) {
		rec.Threshold = 0
	}
	// the caller's context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.opts.recorder.Record(ctx, rec); err != nil {
		q.logger.Warn("record query failed", "err", err)
	}
}

func filterByScore(hits []models.SearchHit, threshold float64) []models.SearchHit {
	out := make([]models.SearchHit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= threshold {
			out = append(out, h)
		}
	}
	return out
}

func validateThreshold(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return util.Validationf("similarity threshold must be a finite number")
	}
	return nil
}

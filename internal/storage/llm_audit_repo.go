package storage

import (
	"context"
	"fmt"

	"docqa/internal/models"
)

// LLMAuditRepo stores one row per generation attempt.
type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS llm_calls (
  id BIGSERIAL PRIMARY KEY,
  operation TEXT NOT NULL,
  provider_name TEXT NOT NULL,
  key_alias TEXT,
  model TEXT,
  status TEXT NOT NULL,
  error_type TEXT,
  context_chunks INTEGER NOT NULL,
  latency_ms BIGINT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("create llm_calls: %w", err)
	}
	return nil
}

func (r *LLMAuditRepo) Record(ctx context.Context, rec models.LLMCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(operation, provider_name, key_alias, model, status, error_type, context_chunks, latency_ms)
VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, NULLIF($6,''), $7, $8)`,
		rec.Operation, rec.Provider, rec.KeyAlias, rec.Model, rec.Status, rec.ErrorType, rec.ContextChunks, rec.LatencyMS)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

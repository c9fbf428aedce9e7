package storage

import (
	"context"
	"fmt"

	"docqa/internal/models"
)

type QueryLogRepo struct {
	db *DB
}

func NewQueryLogRepo(db *DB) *QueryLogRepo {
	return &QueryLogRepo{db: db}
}

func (r *QueryLogRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS query_log (
  id BIGSERIAL PRIMARY KEY,
  question TEXT NOT NULL,
  outcome TEXT NOT NULL,
  top_k INTEGER NOT NULL,
  threshold DOUBLE PRECISION NOT NULL,
  retrieved_count INTEGER NOT NULL,
  best_score DOUBLE PRECISION NOT NULL,
  latency_ms BIGINT NOT NULL,
  error_message TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("create query_log: %w", err)
	}
	return nil
}

func (r *QueryLogRepo) Record(ctx context.Context, rec models.QueryLogRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO query_log(question, outcome, top_k, threshold, retrieved_count, best_score, latency_ms, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8,''))`,
		rec.Question, rec.Outcome, rec.TopK, rec.Threshold, rec.RetrievedCount, rec.BestScore, rec.LatencyMS, rec.ErrorMessage)
	if err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

func (r *QueryLogRepo) Recent(ctx context.Context, limit int) ([]models.QueryLogRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT question, outcome, top_k, threshold, retrieved_count, best_score, latency_ms, COALESCE(error_message, ''), created_at
FROM query_log
ORDER BY id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list query log: %w", err)
	}
	defer rows.Close()

	out := make([]models.QueryLogRecord, 0, limit)
	for rows.Next() {
		var rec models.QueryLogRecord
		if err := rows.Scan(&rec.Question, &rec.Outcome, &rec.TopK, &rec.Threshold, &rec.RetrievedCount,
			&rec.BestScore, &rec.LatencyMS, &rec.ErrorMessage, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan query log: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query log: %w", err)
	}
	return out, nil
}

package vector

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"docqa/internal/models"
	"docqa/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

var collectionName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// DB is the subset of *pgxpool.Pool used by PGStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore keeps one table per collection with a pgvector column and an HNSW
// cosine index.
type PGStore struct {
	db         DB
	collection string
	table      string

	mu        sync.RWMutex
	dimension int
}

func NewPGStore(db DB, collection string) (*PGStore, error) {
	if !collectionName.MatchString(collection) {
		return nil, util.Validationf("invalid collection name %q", collection)
	}
	return &PGStore{
		db:         db,
		collection: collection,
		table:      pgx.Identifier{collection}.Sanitize(),
	}, nil
}

func (s *PGStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension < 1 {
		return util.Validationf("dimension must be positive, got %d", dimension)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id BIGSERIAL PRIMARY KEY,
  document_id TEXT NOT NULL,
  filename TEXT NOT NULL,
  chunk_index INTEGER NOT NULL,
  page_number INTEGER NOT NULL,
  chunk_text TEXT NOT NULL,
  embedding vector(%d) NOT NULL,
  upload_timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id)`,
			pgx.Identifier{s.collection + "_document_id_idx"}.Sanitize(), s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{s.collection + "_embedding_idx"}.Sanitize(), s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure collection %s: %w", s.collection, err)
		}
	}

	var existing int
	err := s.db.QueryRow(ctx, `
SELECT a.atttypmod
FROM pg_attribute a
WHERE a.attrelid = to_regclass($1)
  AND a.attname = 'embedding'
  AND NOT a.attisdropped`, s.collection).Scan(&existing)
	if err != nil {
		return fmt.Errorf("read collection dimension: %w", err)
	}
	if existing != dimension {
		return fmt.Errorf("%w: collection %s has dimension %d, configured %d", ErrDimensionMismatch, s.collection, existing, dimension)
	}

	s.mu.Lock()
	s.dimension = dimension
	s.mu.Unlock()
	return nil
}

func (s *PGStore) dim() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension == 0 {
		return 0, ErrCollectionMissing
	}
	return s.dimension, nil
}

// Insert writes all rows in one transaction; rows become visible on commit.
func (s *PGStore) Insert(ctx context.Context, documentID, filename string, chunks []string, embeddings [][]float32, pageNumbers []int) (int, error) {
	dim, err := s.dim()
	if err != nil {
		return 0, err
	}
	if err := validateInsert(dim, documentID, chunks, embeddings, pageNumbers); err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	uploaded := time.Now().UTC()
	sql := fmt.Sprintf(`
INSERT INTO %s (document_id, filename, chunk_index, page_number, chunk_text, embedding, upload_timestamp)
VALUES ($1, $2, $3, $4, $5, $6::vector, $7)`, s.table)
	batch := &pgx.Batch{}
	for i := range chunks {
		batch.Queue(sql, documentID, filename, i, pageNumbers[i], chunks[i],
			pgvector.NewVector(embeddings[i]).String(), uploaded)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("insert chunk %d of %s: %w", i, documentID, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close insert batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}
	return len(chunks), nil
}

func (s *PGStore) Search(ctx context.Context, query []float32, topK int, filter *SearchFilter) ([]models.SearchHit, error) {
	dim, err := s.dim()
	if err != nil {
		return nil, err
	}
	if err := validateSearch(dim, query, topK); err != nil {
		return nil, err
	}

	args := []any{pgvector.NewVector(query).String(), topK}
	filterSQL := ""
	if filter != nil && len(filter.DocumentIDs) > 0 {
		filterSQL = "WHERE document_id = ANY($3)"
		args = append(args, filter.DocumentIDs)
	}
	sql := fmt.Sprintf(`
SELECT id, document_id, filename, chunk_index, page_number, chunk_text, upload_timestamp,
       1 - (embedding <=> $1::vector) AS score
FROM %s
%s
ORDER BY embedding <=> $1::vector, id
LIMIT $2`, s.table, filterSQL)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	out := make([]models.SearchHit, 0, topK)
	for rows.Next() {
		var h models.SearchHit
		if err := rows.Scan(&h.ID, &h.DocumentID, &h.Filename, &h.ChunkIndex, &h.PageNumber, &h.Text, &h.UploadTimestamp, &h.Score); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return out, nil
}

func (s *PGStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if _, err := s.dim(); err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.table), documentID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks of %s: %w", documentID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) ListDocuments(ctx context.Context) ([]models.DocumentSummary, error) {
	if _, err := s.dim(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
SELECT document_id, MIN(filename), MIN(upload_timestamp), COUNT(*)
FROM %s
GROUP BY document_id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.DocumentSummary, 0)
	for rows.Next() {
		var d models.DocumentSummary
		if err := rows.Scan(&d.DocumentID, &d.Filename, &d.UploadTimestamp, &d.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan document summary: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return out, nil
}

func (s *PGStore) Stats(ctx context.Context) (models.StoreStats, error) {
	dim, err := s.dim()
	if err != nil {
		return models.StoreStats{}, err
	}
	var total int64
	if err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&total); err != nil {
		return models.StoreStats{}, fmt.Errorf("count chunks: %w", err)
	}
	return models.StoreStats{TotalChunks: total, CollectionName: s.collection, Dimension: dim}, nil
}

func (s *PGStore) HealthCheck(ctx context.Context) bool {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, s.collection).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}

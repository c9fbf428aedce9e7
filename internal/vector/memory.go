package vector

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"docqa/internal/models"
	"docqa/internal/util"
)

type memoryRow struct {
	hit    models.SearchHit
	vector []float32
}

// MemoryStore is a brute-force cosine store held in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	collection string
	dimension  int
	nextID     int64
	rows       []memoryRow
	now        func() time.Time
}

func NewMemoryStore(collection string) *MemoryStore {
	return &MemoryStore{collection: collection, now: time.Now}
}

func (s *MemoryStore) EnsureCollection(_ context.Context, dimension int) error {
	if dimension < 1 {
		return util.Validationf("dimension must be positive, got %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension {
		return ErrDimensionMismatch
	}
	s.dimension = dimension
	return nil
}

func (s *MemoryStore) Insert(_ context.Context, documentID, filename string, chunks []string, embeddings [][]float32, pageNumbers []int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return 0, ErrCollectionMissing
	}
	if err := validateInsert(s.dimension, documentID, chunks, embeddings, pageNumbers); err != nil {
		return 0, err
	}
	uploaded := s.now().UTC()
	for i := range chunks {
		s.nextID++
		s.rows = append(s.rows, memoryRow{
			hit: models.SearchHit{
				ID:              s.nextID,
				DocumentID:      documentID,
				Filename:        filename,
				PageNumber:      pageNumbers[i],
				ChunkIndex:      i,
				Text:            chunks[i],
				UploadTimestamp: uploaded,
			},
			vector: slices.Clone(embeddings[i]),
		})
	}
	return len(chunks), nil
}

func (s *MemoryStore) Search(_ context.Context, query []float32, topK int, filter *SearchFilter) ([]models.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension == 0 {
		return nil, ErrCollectionMissing
	}
	if err := validateSearch(s.dimension, query, topK); err != nil {
		return nil, err
	}
	hits := make([]models.SearchHit, 0, len(s.rows))
	for _, r := range s.rows {
		if filter != nil && len(filter.DocumentIDs) > 0 && !slices.Contains(filter.DocumentIDs, r.hit.DocumentID) {
			continue
		}
		h := r.hit
		h.Score = cosine(query, r.vector)
		hits = append(hits, h)
	}
	// rows are kept in insertion order, so a stable sort breaks ties by id
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *MemoryStore) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	deleted := 0
	for _, r := range s.rows {
		if r.hit.DocumentID == documentID {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	clear(s.rows[len(kept):])
	s.rows = kept
	return deleted, nil
}

func (s *MemoryStore) ListDocuments(_ context.Context) ([]models.DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := map[string]*models.DocumentSummary{}
	order := make([]string, 0)
	for _, r := range s.rows {
		d, ok := byID[r.hit.DocumentID]
		if !ok {
			d = &models.DocumentSummary{
				DocumentID:      r.hit.DocumentID,
				Filename:        r.hit.Filename,
				UploadTimestamp: r.hit.UploadTimestamp,
			}
			byID[r.hit.DocumentID] = d
			order = append(order, r.hit.DocumentID)
		}
		d.ChunkCount++
	}
	out := make([]models.DocumentSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context) (models.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension == 0 {
		return models.StoreStats{}, ErrCollectionMissing
	}
	return models.StoreStats{
		TotalChunks:    int64(len(s.rows)),
		CollectionName: s.collection,
		Dimension:      s.dimension,
	}, nil
}

func (s *MemoryStore) HealthCheck(_ context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension != 0
}

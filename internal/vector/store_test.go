package vector

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"docqa/internal/util"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func unit(i int) []float32 {
	v := make([]float32, testDim)
	v[i%testDim] = 1
	return v
}

// runStoreContract exercises the behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("ensure is idempotent and rejects another dimension", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureCollection(ctx, testDim))
		require.NoError(t, s.EnsureCollection(ctx, testDim))
		require.ErrorIs(t, s.EnsureCollection(ctx, testDim+1), ErrDimensionMismatch)
		require.True(t, s.HealthCheck(ctx))
	})

	t.Run("insert rejects mismatched lengths without side effects", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureCollection(ctx, testDim))
		_, err := s.Insert(ctx, "doc-a", "a.pdf", []string{"x", "y"}, [][]float32{unit(0)}, []int{1, 1})
		require.ErrorIs(t, err, util.ErrValidation)

		_, err = s.Insert(ctx, "doc-a", "a.pdf", []string{"x"}, [][]float32{{1, 0}}, []int{1})
		require.ErrorIs(t, err, ErrDimensionMismatch)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, stats.TotalChunks)
		assert.Equal(t, testDim, stats.Dimension)
	})

	t.Run("empty insert returns zero", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureCollection(ctx, testDim))
		n, err := s.Insert(ctx, "doc-a", "a.pdf", nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("search orders by score and breaks ties by insertion", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureCollection(ctx, testDim))
		n, err := s.Insert(ctx, "doc-a", "a.pdf",
			[]string{"first", "second", "third", "fourth"},
			[][]float32{unit(0), unit(1), unit(0), {1, 1, 0, 0}},
			[]int{1, 1, 2, 2})
		require.NoError(t, err)
		require.Equal(t, 4, n)

		hits, err := s.Search(ctx, unit(0), 3, nil)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, "first", hits[0].Text)
		assert.Equal(t, "third", hits[1].Text)
		assert.Equal(t, "fourth", hits[2].Text)
		assert.Equal(t, 2, hits[1].ChunkIndex)
		assert.Equal(t, 2, hits[1].PageNumber)
		for i := 1; i < len(hits); i++ {
			assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
		}
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

		all, err := s.Search(ctx, unit(0), 50, nil)
		require.NoError(t, err)
		assert.Len(t, all, 4)

		_, err = s.Search(ctx, unit(0), 0, nil)
		require.ErrorIs(t, err, util.ErrValidation)
	})

	t.Run("delete is idempotent and removes chunks from search and list", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureCollection(ctx, testDim))
		_, err := s.Insert(ctx, "doc-a", "a.pdf", []string{"a1", "a2"}, [][]float32{unit(0), unit(1)}, []int{1, 2})
		require.NoError(t, err)
		_, err = s.Insert(ctx, "doc-b", "b.pdf", []string{"b1"}, [][]float32{unit(0)}, []int{1})
		require.NoError(t, err)

		docs, err := s.ListDocuments(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		counts := map[string]int{}
		for _, d := range docs {
			counts[d.DocumentID] = d.ChunkCount
		}
		assert.Equal(t, map[string]int{"doc-a": 2, "doc-b": 1}, counts)

		deleted, err := s.DeleteByDocument(ctx, "doc-a")
		require.NoError(t, err)
		assert.Equal(t, 2, deleted)
		deleted, err = s.DeleteByDocument(ctx, "doc-a")
		require.NoError(t, err)
		assert.Equal(t, 0, deleted)
		deleted, err = s.DeleteByDocument(ctx, "never-existed")
		require.NoError(t, err)
		assert.Equal(t, 0, deleted)

		hits, err := s.Search(ctx, unit(0), 10, nil)
		require.NoError(t, err)
		for _, h := range hits {
			assert.NotEqual(t, "doc-a", h.DocumentID)
		}
		docs, err = s.ListDocuments(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "b.pdf", docs[0].Filename)
	})

	t.Run("search filter restricts documents", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureCollection(ctx, testDim))
		_, err := s.Insert(ctx, "doc-a", "a.pdf", []string{"a1"}, [][]float32{unit(0)}, []int{1})
		require.NoError(t, err)
		_, err = s.Insert(ctx, "doc-b", "b.pdf", []string{"b1"}, [][]float32{unit(0)}, []int{1})
		require.NoError(t, err)

		hits, err := s.Search(ctx, unit(0), 5, &SearchFilter{DocumentIDs: []string{"doc-b"}})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "b1", hits[0].Text)
	})
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore("documents") })
}

func TestMemoryStoreRequiresCollection(t *testing.T) {
	s := NewMemoryStore("documents")
	require.False(t, s.HealthCheck(context.Background()))
	_, err := s.Insert(context.Background(), "doc", "a.pdf", []string{"x"}, [][]float32{unit(0)}, []int{1})
	require.ErrorIs(t, err, ErrCollectionMissing)
}

func TestNewPGStoreRejectsUnsafeCollection(t *testing.T) {
	_, err := NewPGStore(nil, `documents"; DROP TABLE x; --`)
	require.ErrorIs(t, err, util.ErrValidation)
	_, err = NewPGStore(nil, "documents")
	require.NoError(t, err)
}

func TestPGStoreContract(t *testing.T) {
	dsn := os.Getenv("DOCQA_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("DOCQA_TEST_POSTGRES_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	runStoreContract(t, func(t *testing.T) Store {
		name := fmt.Sprintf("docqa_test_%d", time.Now().UnixNano())
		s, err := NewPGStore(pool, name)
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+name)
		})
		return s
	})
}

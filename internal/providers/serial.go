package providers

import (
	"context"
	"fmt"

	"docqa/internal/util"

	"github.com/panjf2000/ants/v2"
)

// SerialEmbedder funnels every call through a single worker, for models that
// must not be used concurrently.
type SerialEmbedder struct {
	inner Embedder
	pool  *ants.Pool
}

func NewSerialEmbedder(inner Embedder) (*SerialEmbedder, error) {
	pool, err := ants.NewPool(1)
	if err != nil {
		return nil, fmt.Errorf("create embedder queue: %w", err)
	}
	return &SerialEmbedder{inner: inner, pool: pool}, nil
}

func (s *SerialEmbedder) Dimension() int     { return s.inner.Dimension() }
func (s *SerialEmbedder) Info() ProviderInfo { return s.inner.Info() }

func (s *SerialEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var (
		out []float32
		err error
	)
	if subErr := s.run(func() { out, err = s.inner.Embed(ctx, text) }); subErr != nil {
		return nil, subErr
	}
	return out, err
}

func (s *SerialEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var (
		out [][]float32
		err error
	)
	if subErr := s.run(func() { out, err = s.inner.EmbedBatch(ctx, texts) }); subErr != nil {
		return nil, subErr
	}
	return out, err
}

func (s *SerialEmbedder) run(fn func()) error {
	done := make(chan struct{})
	if err := s.pool.Submit(func() {
		defer close(done)
		fn()
	}); err != nil {
		return util.External("queue embedding", err)
	}
	<-done
	return nil
}

func (s *SerialEmbedder) Close() {
	s.pool.Release()
}

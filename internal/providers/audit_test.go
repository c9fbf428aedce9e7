package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"docqa/internal/config"
	"docqa/internal/models"
	"docqa/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memAuditor struct {
	recs []models.LLMCallRecord
	err  error
}

func (m *memAuditor) Record(_ context.Context, rec models.LLMCallRecord) error {
	m.recs = append(m.recs, rec)
	return m.err
}

func TestAuditedGeneratorRecordsOutcome(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(40 * time.Millisecond)
		return clock
	}
	auditor := &memAuditor{}
	g := &auditedGenerator{
		ref:     ProviderRef{Raw: "mock", Name: "mock"},
		next:    NewMockProvider(8),
		auditor: auditor,
		logger:  nopLogger(),
		now:     now,
	}
	req := GenerateRequest{Question: "q", Context: []ContextChunk{{Text: "a"}, {Text: "b"}}}
	_, err := g.Generate(context.Background(), req)
	require.NoError(t, err)

	g.next = &stubGenerator{err: util.External("groq generate", errors.New("503 unavailable"))}
	g.ref = ProviderRef{Raw: "groq:team", Name: "groq", KeyAlias: "team"}
	_, err = g.Generate(context.Background(), req)
	require.ErrorIs(t, err, util.ErrExternal)

	require.Len(t, auditor.recs, 2)
	ok := auditor.recs[0]
	assert.Equal(t, "ok", ok.Status)
	assert.Equal(t, "mock-llm-v1", ok.Model)
	assert.Equal(t, 2, ok.ContextChunks)
	assert.EqualValues(t, 40, ok.LatencyMS)

	failed := auditor.recs[1]
	assert.Equal(t, "error", failed.Status)
	assert.Equal(t, "team", failed.KeyAlias)
	assert.Equal(t, string(ErrorTransient), failed.ErrorType)
}

func TestAuditFailureDoesNotFailGeneration(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLMProviders = "mock|mock"
	m, err := NewManager(cfg, nopLogger())
	require.NoError(t, err)
	defer m.Close()

	auditor := &memAuditor{err: errors.New("db down")}
	m.SetAuditor(auditor)
	resp, err := m.Generator().Generate(context.Background(), GenerateRequest{Question: "q"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Text)
	require.Len(t, auditor.recs, 1)
	assert.Equal(t, "mock", auditor.recs[0].Provider)
}

package providers

import (
	"context"
	"log/slog"
	"time"

	"docqa/internal/models"
)

type CallAuditor interface {
	Record(ctx context.Context, rec models.LLMCallRecord) error
}

// auditedGenerator records every attempt against one provider. Audit
// failures are logged and never reach the caller.
type auditedGenerator struct {
	ref     ProviderRef
	next    Generator
	auditor CallAuditor
	logger  *slog.Logger
	now     func() time.Time
}

func (a *auditedGenerator) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	start := a.now()
	resp, err := a.next.Generate(ctx, req)
	rec := models.LLMCallRecord{
		Operation:     "generate",
		Provider:      a.ref.Name,
		KeyAlias:      a.ref.KeyAlias,
		Model:         resp.Provider.Model,
		Status:        "ok",
		ContextChunks: len(req.Context),
		LatencyMS:     a.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		rec.Status = "error"
		rec.ErrorType = string(ClassifyError(err))
	}
	if aerr := a.auditor.Record(ctx, rec); aerr != nil {
		a.logger.Warn("llm call audit failed", "provider", a.ref.Raw, "err", aerr)
	}
	return resp, err
}

package providers

import (
	"context"
	"errors"
	"log/slog"

	"docqa/internal/util"
)

// FailoverGenerator tries generators in configured order. Content-policy
// blocks and caller cancellation stop the chain.
type FailoverGenerator struct {
	generators []NamedGenerator
	logger     *slog.Logger
}

func NewFailoverGenerator(logger *slog.Logger, generators ...NamedGenerator) *FailoverGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverGenerator{generators: generators, logger: logger}
}

func (f *FailoverGenerator) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	var lastErr error
	for _, g := range f.generators {
		resp, err := g.Generator.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, util.ErrContentBlocked) || ctx.Err() != nil {
			return GenerateResponse{}, err
		}
		f.logger.Warn("generator failed, trying next", "provider", g.Ref.Raw, "error_type", ClassifyError(err), "err", err)
		lastErr = err
	}
	if lastErr == nil {
		return GenerateResponse{}, util.External("generate", errors.New("no generation provider configured"))
	}
	return GenerateResponse{}, lastErr
}

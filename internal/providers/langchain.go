package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"docqa/internal/util"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// chatGenerator runs the grounded prompt through any langchaingo chat model.
type chatGenerator struct {
	model llms.Model
	info  ProviderInfo
	opts  GenerationOptions
}

func (g chatGenerator) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, SystemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, BuildPrompt(req)),
	}
	callOpts := []llms.CallOption{llms.WithTemperature(g.opts.Temperature)}
	if g.opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(g.opts.MaxTokens))
	}
	resp, err := g.model.GenerateContent(ctx, content, callOpts...)
	op := g.info.Name + " generate"
	if err != nil {
		return GenerateResponse{}, wrapProviderError(op, err)
	}
	if len(resp.Choices) == 0 {
		return GenerateResponse{}, util.External(op, errors.New("empty response"))
	}
	choice := resp.Choices[0]
	if choice.StopReason == "content_filter" {
		return GenerateResponse{}, fmt.Errorf("%s: %w", op, util.ErrContentBlocked)
	}
	text := strings.TrimSpace(choice.Content)
	if text == "" {
		return GenerateResponse{}, util.External(op, errors.New("empty completion"))
	}
	return GenerateResponse{Text: text, Provider: g.info}, nil
}

// docEmbedder adapts a langchaingo embedder to Embedder.
type docEmbedder struct {
	embedder embeddings.Embedder
	info     ProviderInfo
	dim      int
}

func newDocEmbedder(client embeddings.EmbedderClient, info ProviderInfo, dim int) (*docEmbedder, error) {
	e, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", info.Name, err)
	}
	return &docEmbedder{embedder: e, info: info, dim: dim}, nil
}

func (d *docEmbedder) Dimension() int     { return d.dim }
func (d *docEmbedder) Info() ProviderInfo { return d.info }

func (d *docEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := d.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, wrapProviderError(d.info.Name+" embed", err)
	}
	return v, nil
}

func (d *docEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out, err := d.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, wrapProviderError(d.info.Name+" embed batch", err)
	}
	if len(out) != len(texts) {
		return nil, util.External(d.info.Name+" embed batch", fmt.Errorf("got %d vectors for %d inputs", len(out), len(texts)))
	}
	return out, nil
}

func envOr(k, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return fallback
}

func sanitizeEnvToken(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}

// resolveKey checks DOCQA_<PROVIDER>_KEY_<ALIAS> before the provider's
// conventional variable.
func resolveKey(provider, alias, fallbackVar string) string {
	if alias != "" {
		if v := os.Getenv("DOCQA_" + provider + "_KEY_" + sanitizeEnvToken(alias)); v != "" {
			return v
		}
	}
	return os.Getenv(fallbackVar)
}

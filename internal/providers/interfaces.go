package providers

import "context"

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

// Embedder turns text into fixed-dimension vectors. EmbedBatch preserves
// input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Info() ProviderInfo
}

type ContextChunk struct {
	Text       string  `json:"text"`
	Filename   string  `json:"filename"`
	PageNumber int     `json:"page_number"`
	Score      float64 `json:"score"`
}

type GenerateRequest struct {
	Question string         `json:"question"`
	Context  []ContextChunk `json:"context"`
}

type GenerateResponse struct {
	Text     string       `json:"text"`
	Provider ProviderInfo `json:"provider"`
}

type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

type GenerationOptions struct {
	MaxTokens   int
	Temperature float64
}

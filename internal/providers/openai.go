package providers

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIProvider serves both embeddings and chat through one OpenAI client.
type OpenAIProvider struct {
	*docEmbedder
	chatGenerator
}

func NewOpenAIProvider(alias string, dim int, gen GenerationOptions) (*OpenAIProvider, error) {
	key := resolveKey("OPENAI", alias, "OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("openai key missing for alias %q", alias)
	}
	model := envOr("DOCQA_OPENAI_MODEL", "gpt-4o-mini")
	embedModel := envOr("DOCQA_OPENAI_EMBED_MODEL", "text-embedding-3-small")
	opts := []openai.Option{
		openai.WithToken(key),
		openai.WithModel(model),
		openai.WithEmbeddingModel(embedModel),
	}
	if base := envOr("DOCQA_OPENAI_BASE_URL", ""); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	emb, err := newDocEmbedder(client, ProviderInfo{Name: "openai", Model: embedModel, Key: alias}, dim)
	if err != nil {
		return nil, err
	}
	return &OpenAIProvider{
		docEmbedder:   emb,
		chatGenerator: chatGenerator{model: client, info: ProviderInfo{Name: "openai", Model: model, Key: alias}, opts: gen},
	}, nil
}

package providers

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaProvider uses a local Ollama server for embeddings and chat. The
// alias selects the embedding model.
type OllamaProvider struct {
	*docEmbedder
	chatGenerator
}

func NewOllamaProvider(alias string, dim int, gen GenerationOptions) (*OllamaProvider, error) {
	baseURL := envOr("DOCQA_OLLAMA_BASE_URL", "http://localhost:11434")
	embedModel := resolveOllamaEmbedModel(alias)
	chatModel := envOr("DOCQA_OLLAMA_MODEL", "llama3.1")

	embedClient, err := ollama.New(ollama.WithModel(embedModel), ollama.WithServerURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("create ollama embed client: %w", err)
	}
	chatClient, err := ollama.New(ollama.WithModel(chatModel), ollama.WithServerURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("create ollama chat client: %w", err)
	}
	emb, err := newDocEmbedder(embedClient, ProviderInfo{Name: "ollama", Model: embedModel, Key: alias}, dim)
	if err != nil {
		return nil, err
	}
	return &OllamaProvider{
		docEmbedder:   emb,
		chatGenerator: chatGenerator{model: chatClient, info: ProviderInfo{Name: "ollama", Model: chatModel, Key: alias}, opts: gen},
	}, nil
}

func resolveOllamaEmbedModel(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias != "" {
		if v := envOr("DOCQA_OLLAMA_EMBED_MODEL_"+sanitizeEnvToken(alias), ""); v != "" {
			return v
		}
		switch strings.ToLower(alias) {
		case "minilm":
			return "all-minilm"
		case "nomic":
			return "nomic-embed-text"
		case "bge":
			return "bge-small-en-v1.5"
		}
		// direct model names, e.g. ollama:nomic-embed-text
		if strings.ContainsAny(alias, "-/.") {
			return alias
		}
	}
	return envOr("DOCQA_OLLAMA_EMBED_MODEL", "all-minilm")
}

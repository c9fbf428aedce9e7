package providers

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// GroqProvider talks to Groq's OpenAI-compatible endpoint. Chat only.
type GroqProvider struct {
	chatGenerator
}

func NewGroqProvider(alias string, gen GenerationOptions) (*GroqProvider, error) {
	key := resolveKey("GROQ", alias, "GROQ_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("groq key missing for alias %q", alias)
	}
	model := envOr("DOCQA_GROQ_MODEL", "llama-3.1-8b-instant")
	client, err := openai.New(
		openai.WithBaseURL(envOr("DOCQA_GROQ_BASE_URL", groqBaseURL)),
		openai.WithToken(key),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create groq client: %w", err)
	}
	return &GroqProvider{
		chatGenerator: chatGenerator{model: client, info: ProviderInfo{Name: "groq", Model: model, Key: alias}, opts: gen},
	}, nil
}

package providers

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docqa/internal/config"
)

type NamedGenerator struct {
	Ref       ProviderRef
	Generator Generator
}

// Manager resolves the configured providers once at startup.
type Manager struct {
	embedRef   ProviderRef
	embedder   Embedder
	serial     *SerialEmbedder
	generators []NamedGenerator
	logger     *slog.Logger
}

func NewManager(cfg config.Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	gen := GenerationOptions{MaxTokens: cfg.LLMMaxTokens, Temperature: cfg.LLMTemperature}
	m := &Manager{logger: logger.With("component", "providers")}

	embedRefs := ParseProviderList(cfg.EmbedProvider)
	if len(embedRefs) > 1 {
		m.logger.Warn("only the first embedding provider is used", "configured", cfg.EmbedProvider)
	}
	m.embedRef = embedRefs[0]
	p, err := buildProvider(m.embedRef, cfg.EmbedDim, gen)
	if err != nil {
		return nil, err
	}
	embedder, ok := p.(Embedder)
	if !ok {
		return nil, fmt.Errorf("provider %s does not support embeddings", m.embedRef.Raw)
	}
	m.embedder = embedder
	if cfg.SerializeEmbedder {
		s, err := NewSerialEmbedder(embedder)
		if err != nil {
			return nil, err
		}
		m.serial = s
		m.embedder = s
	}

	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim, gen)
		if err != nil {
			m.Close()
			return nil, err
		}
		g, ok := p.(Generator)
		if !ok {
			m.Close()
			return nil, fmt.Errorf("provider %s does not support generation", ref.Raw)
		}
		m.generators = append(m.generators, NamedGenerator{Ref: ref, Generator: g})
	}
	m.logger.Info("providers ready",
		"embedder", m.embedRef.Raw,
		"generators", len(m.generators),
		"serialized", cfg.SerializeEmbedder)
	return m, nil
}

func (m *Manager) Embedder() Embedder { return m.embedder }

func (m *Manager) EmbedderRef() ProviderRef { return m.embedRef }

// Generator returns the single configured generator, or a failover chain
// over several.
func (m *Manager) Generator() Generator {
	if len(m.generators) == 1 {
		return m.generators[0].Generator
	}
	return &FailoverGenerator{generators: m.generators, logger: m.logger}
}

// SetAuditor records every later generation attempt, per provider.
func (m *Manager) SetAuditor(a CallAuditor) {
	for i, g := range m.generators {
		m.generators[i].Generator = &auditedGenerator{
			ref:     g.Ref,
			next:    g.Generator,
			auditor: a,
			logger:  m.logger,
			now:     time.Now,
		}
	}
}

func (m *Manager) Close() {
	if m.serial != nil {
		m.serial.Close()
	}
}

func buildProvider(ref ProviderRef, dim int, gen GenerationOptions) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias, dim, gen)
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias, dim, gen)
	case "groq":
		return NewGroqProvider(ref.KeyAlias, gen)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}

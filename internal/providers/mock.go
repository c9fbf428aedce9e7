package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// MockProvider embeds text as a hashed bag of words, so texts that share
// vocabulary land close together, and answers with a fixed template.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 384
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Dimension() int { return m.dim }

func (m *MockProvider) Info() ProviderInfo {
	return ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", m.dim), Key: "mock"}
}

func (m *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return hashedVector(text, m.dim), nil
}

func (m *MockProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, hashedVector(t, m.dim))
	}
	return out, nil
}

func (m *MockProvider) Generate(_ context.Context, req GenerateRequest) (GenerateResponse, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on %d document fragment(s):", len(req.Context))
	for i, c := range req.Context {
		fmt.Fprintf(&b, " [Fragment %d: %s p.%d]", i+1, c.Filename, c.PageNumber)
	}
	return GenerateResponse{
		Text:     b.String(),
		Provider: ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"},
	}, nil
}

func hashedVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		tokens = []string{"\x00empty"}
	}
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[sum%uint64(dim)] += sign
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

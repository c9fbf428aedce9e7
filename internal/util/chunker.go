package util

import (
	"regexp"
	"strings"
)

// MinChunkWords is the smallest chunk, in words, that survives chunking.
const MinChunkWords = 20

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	disallowedRune = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s.,;:!?()\-]`)
)

type TextChunk struct {
	Text  string
	Index int
}

// Chunker packs whole sentences into chunks of at most Size words and carries
// trailing sentences of up to Overlap words into the next chunk.
type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size < 1 {
		return nil, Validationf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, Validationf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{Size: size, Overlap: overlap}, nil
}

// NormalizeChunkText collapses whitespace, strips characters outside the
// allowed set and trims the result.
func NormalizeChunkText(text string) string {
	text = disallowedRune.ReplaceAllString(text, "")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func (c *Chunker) Chunk(text string) []TextChunk {
	text = NormalizeChunkText(text)
	if text == "" {
		return nil
	}

	var (
		raw          []string
		current      []string
		currentWords int
	)
	for _, sentence := range splitAfterTerminators(text) {
		words := strings.Fields(sentence)
		n := len(words)
		if n == 0 {
			continue
		}
		if n > c.Size {
			if len(current) > 0 {
				raw = append(raw, strings.Join(current, " "))
				current, currentWords = nil, 0
			}
			for i := 0; i < n; i += c.Size {
				end := min(i+c.Size, n)
				raw = append(raw, strings.Join(words[i:end], " "))
			}
			continue
		}
		if currentWords+n > c.Size && len(current) > 0 {
			raw = append(raw, strings.Join(current, " "))
			current, currentWords = c.overlapSeed(current)
		}
		current = append(current, sentence)
		currentWords += n
	}
	if len(current) > 0 {
		raw = append(raw, strings.Join(current, " "))
	}

	out := make([]TextChunk, 0, len(raw))
	for _, r := range raw {
		if len(strings.Fields(r)) < MinChunkWords {
			continue
		}
		out = append(out, TextChunk{Text: r, Index: len(out)})
	}
	return out
}

// overlapSeed returns the longest suffix of whole sentences whose word count
// fits the overlap budget.
func (c *Chunker) overlapSeed(sentences []string) ([]string, int) {
	start, words := len(sentences), 0
	for i := len(sentences) - 1; i >= 0; i-- {
		n := len(strings.Fields(sentences[i]))
		if words+n > c.Overlap {
			break
		}
		words += n
		start = i
	}
	seed := make([]string, len(sentences)-start)
	copy(seed, sentences[start:])
	return seed, words
}

// splitAfterTerminators splits normalized text after '.', '!' or '?' when the
// terminator is followed by a space.
func splitAfterTerminators(text string) []string {
	out := make([]string, 0, 16)
	start := 0
	for i := 0; i+1 < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				out = append(out, text[start:i+1])
				start = i + 2
			}
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

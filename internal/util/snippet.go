package util

import (
	"sort"
	"strings"
	"unicode"
)

var snippetStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "what": {}, "how": {},
	"why": {}, "which": {}, "that": {}, "this": {}, "these": {}, "those": {}, "with": {},
	"from": {}, "does": {}, "did": {}, "about": {}, "into": {}, "their": {}, "there": {},
}

// EvidenceSnippet returns the one or two sentences of chunkText sharing the
// most terms with query, in document order and cut to maxRunes. Without a
// shared term it returns the start of the chunk.
func EvidenceSnippet(chunkText, query string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 240
	}
	text := strings.Join(strings.Fields(SanitizeText(chunkText)), " ")
	if text == "" {
		return ""
	}
	terms := queryTerms(query)
	sentences := splitAfterTerminators(text)
	if len(terms) == 0 || len(sentences) < 2 {
		return truncateRunes(text, maxRunes)
	}

	type scored struct{ idx, hits int }
	ranked := make([]scored, 0, len(sentences))
	for i, s := range sentences {
		ranked = append(ranked, scored{idx: i, hits: countTerms(s, terms)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].hits > ranked[j].hits })
	if ranked[0].hits == 0 {
		return truncateRunes(text, maxRunes)
	}
	picked := []int{ranked[0].idx}
	if ranked[1].hits > 0 {
		picked = append(picked, ranked[1].idx)
	}
	sort.Ints(picked)
	parts := make([]string, 0, len(picked))
	for _, i := range picked {
		parts = append(parts, sentences[i])
	}
	return truncateRunes(strings.Join(parts, " "), maxRunes)
}

func queryTerms(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := map[string]struct{}{}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, stop := snippetStopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func countTerms(sentence string, terms []string) int {
	low := strings.ToLower(sentence)
	n := 0
	for _, t := range terms {
		if strings.Contains(low, t) {
			n++
		}
	}
	return n
}

func truncateRunes(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string(r[:maxRunes])) + "..."
}

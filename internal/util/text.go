package util

import (
	"strings"
	"unicode"
)

var pdfGlyphs = strings.NewReplacer(
	"ﬀ", "ff",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"\u00ad", "",
)

// SanitizeText cleans extracted page text. NUL and other control characters
// are dropped since Postgres text columns reject NUL. Ligatures are expanded
// and a word hyphenated across a line break is joined back together.
// Newlines and tabs are kept.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(pdfGlyphs.Replace(s))
	var b strings.Builder
	b.Grow(len(runes))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '-' && i > 0 && unicode.IsLetter(runes[i-1]) {
			if j := skipLineBreak(runes, i+1); j > i+1 && j < len(runes) && unicode.IsLower(runes[j]) {
				i = j - 1
				continue
			}
		}
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// skipLineBreak returns the index just past a line break at i (with any
// surrounding blanks), or i itself when there is none.
func skipLineBreak(runes []rune, i int) int {
	j := i
	for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t') {
		j++
	}
	if j >= len(runes) || (runes[j] != '\n' && runes[j] != '\r') {
		return i
	}
	for j < len(runes) && unicode.IsSpace(runes[j]) {
		j++
	}
	return j
}

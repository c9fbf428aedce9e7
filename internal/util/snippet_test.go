package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvidenceSnippetKeepsDocumentOrder(t *testing.T) {
	chunk := "Edge computing moves work closer to users. The appendix lists hardware. " +
		"Latency dropped by forty percent on edge workloads."
	got := EvidenceSnippet(chunk, "What about edge workload latency?", 300)
	assert.Equal(t, "Edge computing moves work closer to users. Latency dropped by forty percent on edge workloads.", got)
}

func TestEvidenceSnippetFallsBackToChunkStart(t *testing.T) {
	chunk := "Alpha beta gamma delta. Epsilon zeta eta theta."
	assert.Equal(t, "Alpha beta gamma del...", EvidenceSnippet(chunk, "zebra", 20))
	assert.Equal(t, "Alpha beta gamma del...", EvidenceSnippet(chunk, "an of", 20))
	assert.Empty(t, EvidenceSnippet(" \x00 ", "anything", 20))
}

func TestEvidenceSnippetCountsRunes(t *testing.T) {
	assert.Equal(t, "ééé...", EvidenceSnippet("ééééé", "", 3))
}

package activities

import "docqa/internal/models"

type DocumentRef struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
}

type ListDocumentsInput struct {
	OnlyUnindexed bool `json:"only_unindexed"`
}

type ListDocumentsOutput struct {
	Documents []DocumentRef `json:"documents"`
}

type IngestDocumentInput struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
}

type IngestDocumentOutput struct {
	Result models.IngestResult `json:"result"`
}

type ReindexDocumentOutput struct {
	Result models.ReindexResult `json:"result"`
}

type WriteBulkSummaryInput struct {
	WorkflowID string         `json:"workflow_id"`
	Summary    map[string]any `json:"summary"`
}

type WriteBulkSummaryOutput struct {
	Path string `json:"path"`
}

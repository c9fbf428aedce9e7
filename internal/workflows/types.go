package workflows

import "docqa/internal/models"

// BulkIngestInput selects uploads without chunks unless IncludeIndexed or
// Reindex is set.
type BulkIngestInput struct {
	IncludeIndexed bool `json:"include_indexed"`
	Reindex        bool `json:"reindex"`
	MaxConcurrent  int  `json:"max_concurrent"`
}

type DocumentIngestInput struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Reindex    bool   `json:"reindex"`
}

// DocumentIngestStatus is the outcome of one child workflow. A document that
// fails to ingest completes the child with Status "failed" and a reason.
type DocumentIngestStatus struct {
	DocumentID       string               `json:"document_id"`
	Status           string               `json:"status"`
	FailReason       string               `json:"fail_reason,omitempty"`
	Result           *models.IngestResult `json:"result,omitempty"`
	OldChunksDeleted int                  `json:"old_chunks_deleted,omitempty"`
}

type BulkIngestProgress struct {
	Total          int               `json:"total"`
	Done           int               `json:"done"`
	Failed         int               `json:"failed"`
	ChunksInserted int               `json:"chunks_inserted"`
	PerDocument    map[string]string `json:"per_document_status"`
	ChildWorkflow  map[string]string `json:"child_workflow_ids,omitempty"`
	SummaryPath    string            `json:"summary_path,omitempty"`
}

const (
	StatusProcessing = "processing"
	StatusIngested   = "ingested"
	StatusFailed     = "failed"
)

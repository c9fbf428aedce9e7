package models

import "time"

// DocumentSummary is the per-document aggregate derived from stored chunks.
type DocumentSummary struct {
	DocumentID      string    `json:"document_id"`
	Filename        string    `json:"filename"`
	UploadTimestamp time.Time `json:"upload_timestamp"`
	ChunkCount      int       `json:"chunk_count"`
}

type StoredFile struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Path       string `json:"-"`
	SizeBytes  int64  `json:"size_bytes"`
	SHA256     string `json:"sha256,omitempty"`
}

type Page struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}

// SearchHit is one row returned by a vector store search.
type SearchHit struct {
	ID              int64     `json:"id"`
	DocumentID      string    `json:"document_id"`
	Filename        string    `json:"filename"`
	PageNumber      int       `json:"page_number"`
	ChunkIndex      int       `json:"chunk_index"`
	Text            string    `json:"text"`
	Score           float64   `json:"score"`
	UploadTimestamp time.Time `json:"upload_timestamp"`
}

type StoreStats struct {
	TotalChunks    int64  `json:"total_chunks"`
	CollectionName string `json:"collection_name"`
	Dimension      int    `json:"dimension"`
}

type ChunkMetadata struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	PageNumber int    `json:"page_number"`
	ChunkIndex int    `json:"chunk_index"`
}

type RetrievedChunk struct {
	Text     string        `json:"text"`
	Score    float64       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}

func RetrievedFromHit(h SearchHit) RetrievedChunk {
	return RetrievedChunk{
		Text:  h.Text,
		Score: h.Score,
		Metadata: ChunkMetadata{
			DocumentID: h.DocumentID,
			Filename:   h.Filename,
			PageNumber: h.PageNumber,
			ChunkIndex: h.ChunkIndex,
		},
	}
}

type IngestResult struct {
	DocumentID          string  `json:"document_id"`
	Filename            string  `json:"filename"`
	PagesProcessed      int     `json:"pages_processed"`
	ChunksCreated       int     `json:"chunks_created"`
	EmbeddingsGenerated int     `json:"embeddings_generated"`
	ChunksInserted      int     `json:"chunks_inserted"`
	ProcessingSeconds   float64 `json:"processing_time"`
}

type ReindexResult struct {
	IngestResult
	OldChunksDeleted int `json:"old_chunks_deleted"`
}

// Query outcomes.
const (
	OutcomeAnswered       = "answered"
	OutcomeNoDocuments    = "no_documents"
	OutcomeBelowThreshold = "below_threshold"
	OutcomeContentBlocked = "content_blocked"
)

type QueryResult struct {
	Question          string           `json:"question"`
	Answer            string           `json:"answer"`
	Outcome           string           `json:"outcome"`
	RetrievedChunks   []RetrievedChunk `json:"retrieved_chunks"`
	ProcessingSeconds float64          `json:"processing_time"`
}

type QueryLogRecord struct {
	Question       string    `json:"question"`
	Outcome        string    `json:"outcome"`
	TopK           int       `json:"top_k"`
	Threshold      float64   `json:"threshold"`
	RetrievedCount int       `json:"retrieved_count"`
	BestScore      float64   `json:"best_score"`
	LatencyMS      int64     `json:"latency_ms"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// LLMCallRecord is one generation attempt against one provider.
type LLMCallRecord struct {
	Operation     string    `json:"operation"`
	Provider      string    `json:"provider"`
	KeyAlias      string    `json:"key_alias,omitempty"`
	Model         string    `json:"model,omitempty"`
	Status        string    `json:"status"`
	ErrorType     string    `json:"error_type,omitempty"`
	ContextChunks int       `json:"context_chunks"`
	LatencyMS     int64     `json:"latency_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

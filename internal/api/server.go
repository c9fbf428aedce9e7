package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"docqa/internal/app"
	"docqa/internal/config"
	"docqa/internal/jobs"
	"docqa/internal/models"
	"docqa/internal/pipeline"
	"docqa/internal/util"
	"docqa/internal/vector"
	"docqa/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

const snippetRunes = 240

// WorkflowClient is the part of the Temporal client the server uses.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

type Server struct {
	cfg      config.Config
	rt       *app.Runtime
	temporal WorkflowClient
	logger   *slog.Logger
}

// NewServer serves the runtime's components over HTTP. temporal may be nil,
// in which case the bulk routes answer 503.
func NewServer(rt *app.Runtime, temporal WorkflowClient) *Server {
	return &Server{
		cfg:      rt.Config,
		rt:       rt,
		temporal: temporal,
		logger:   rt.Logger.With("component", "api"),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentsScoped)
	mux.HandleFunc("/ingest", s.handleIngest)
	mux.HandleFunc("/ingest/", s.handleIngestScoped)
	mux.HandleFunc("/query/ask", s.handleAsk)
	mux.HandleFunc("/query/search", s.handleSearch)
	return withCORS(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	healthy := s.rt.Store.HealthCheck(r.Context())
	body := map[string]any{
		"status":       "healthy",
		"vector_store": healthy,
		"embedder":     s.rt.Providers.EmbedderRef().Raw,
		"running_jobs": s.rt.Runner.Running(),
	}
	if stats, err := s.rt.Store.Stats(r.Context()); err == nil {
		body["collection"] = stats
	}
	code := http.StatusOK
	if !healthy {
		body["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	docs, err := s.rt.Store.ListDocuments(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].UploadTimestamp.After(docs[j].UploadTimestamp)
	})
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "total": len(docs)})
}

func (s *Server) handleDocumentsScoped(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/")
	switch {
	case id == "":
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	case id == "upload":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleUpload(w, r)
	case strings.Contains(id, "/"):
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	case r.Method == http.MethodGet:
		s.handleGetDocument(w, r, id)
	case r.Method == http.MethodDelete:
		s.handleDeleteDocument(w, r, id)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, util.Validationf("file exceeds the %d byte limit", s.cfg.MaxUploadBytes))
			return
		}
		writeErr(w, http.StatusBadRequest, util.Validationf("parse multipart: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	fh, ok := uploadedFile(r.MultipartForm)
	if !ok {
		writeErr(w, http.StatusBadRequest, util.Validationf("no files provided"))
		return
	}
	src, err := fh.Open()
	if err != nil {
		s.fail(w, fmt.Errorf("open upload: %w", err))
		return
	}
	defer src.Close()

	documentID := uuid.NewString()
	saved, err := s.rt.Files.Save(documentID, fh.Filename, src)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("document uploaded", "document_id", documentID, "filename", saved.Filename, "bytes", saved.SizeBytes)
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": saved.DocumentID,
		"filename":    saved.Filename,
		"size_bytes":  saved.SizeBytes,
		"sha256":      saved.SHA256,
		"status":      "uploaded",
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request, id string) {
	docs, err := s.rt.Store.ListDocuments(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	for _, d := range docs {
		if d.DocumentID == id {
			writeJSON(w, http.StatusOK, map[string]any{"document": d, "indexed": true})
			return
		}
	}
	f, err := s.rt.Files.Locate(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": models.DocumentSummary{DocumentID: f.DocumentID, Filename: f.Filename},
		"indexed":  false,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request, id string) {
	deleted, err := s.rt.Store.DeleteByDocument(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	fileDeleted, err := s.rt.Files.Delete(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.rt.Tracker.Remove(id)
	if deleted == 0 && !fileDeleted {
		writeErr(w, http.StatusNotFound, util.NotFoundf("document %s not found", id))
		return
	}
	s.logger.Info("document deleted", "document_id", id, "chunks", deleted, "file_deleted", fileDeleted)
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":    id,
		"deleted_chunks": deleted,
		"file_deleted":   fileDeleted,
	})
}

type ingestRequest struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
}

// resolve fills in the stored filename and rejects unknown documents.
func (s *Server) resolve(req ingestRequest) (ingestRequest, error) {
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	if req.DocumentID == "" {
		return req, util.Validationf("document_id is required")
	}
	f, err := s.rt.Files.Locate(req.DocumentID)
	if err != nil {
		return req, err
	}
	if strings.TrimSpace(req.Filename) == "" {
		req.Filename = f.Filename
	}
	return req, nil
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	req, err := s.resolve(req)
	if err != nil {
		s.fail(w, err)
		return
	}
	res, err := s.rt.Ingester.Ingest(context.WithoutCancel(r.Context()), req.DocumentID, req.Filename)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse(res))
}

func ingestResponse(res models.IngestResult) map[string]any {
	return map[string]any{
		"document_id":          res.DocumentID,
		"filename":             res.Filename,
		"status":               "success",
		"pages_processed":      res.PagesProcessed,
		"chunks_processed":     res.ChunksInserted,
		"embeddings_generated": res.EmbeddingsGenerated,
		"processing_time":      res.ProcessingSeconds,
	}
}

func (s *Server) handleIngestScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/ingest/"), "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "async":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleIngestAsync(w, r)
	case len(parts) == 2 && parts[0] == "status":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		job, err := s.rt.Tracker.Get(parts[1])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	case len(parts) == 2 && parts[0] == "reindex":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleReindex(w, r, parts[1])
	case len(parts) == 1 && parts[0] == "bulk":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleBulkStart(w, r)
	case len(parts) == 2 && parts[0] == "bulk":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleBulkProgress(w, r, parts[1])
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleIngestAsync(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	req, err := s.resolve(req)
	if err != nil {
		s.fail(w, err)
		return
	}
	job, err := s.rt.Runner.Submit(req.DocumentID, req.Filename)
	if err != nil {
		if errors.Is(err, util.ErrValidation) {
			writeErr(w, http.StatusConflict, err)
			return
		}
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"document_id": job.DocumentID,
		"status":      job.Status,
		"status_url":  "/ingest/status/" + job.DocumentID,
	})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request, id string) {
	req, err := s.resolve(ingestRequest{DocumentID: id})
	if err != nil {
		s.fail(w, err)
		return
	}
	res, err := s.rt.Ingester.Reindex(context.WithoutCancel(r.Context()), req.DocumentID, req.Filename)
	if err != nil {
		s.fail(w, err)
		return
	}
	body := ingestResponse(res.IngestResult)
	body["old_chunks_deleted"] = res.OldChunksDeleted
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleBulkStart(w http.ResponseWriter, r *http.Request) {
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("bulk ingestion needs a temporal connection"))
		return
	}
	var req workflows.BulkIngestInput
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.MaxConcurrent <= 0 {
		req.MaxConcurrent = s.cfg.BulkMaxConcurrent
	}
	wfID := "bulk-ingest-" + uuid.NewString()
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       wfID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.BulkIngestWorkflow, req)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleBulkProgress(w http.ResponseWriter, r *http.Request, workflowID string) {
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("bulk ingestion needs a temporal connection"))
		return
	}
	resp, err := s.temporal.QueryWorkflow(r.Context(), workflowID, "", workflows.QueryGetProgress)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	var prog workflows.BulkIngestProgress
	if err := resp.Get(&prog); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflow_id": workflowID, "progress": prog})
}

type askRequest struct {
	Question  string   `json:"question"`
	TopK      *int     `json:"top_k"`
	Threshold *float64 `json:"similarity_threshold"`
}

// topK applies the configured default and the API-level bound.
func (s *Server) topK(v *int) (int, error) {
	if v == nil {
		return s.cfg.TopK, nil
	}
	if *v < 1 || *v > s.cfg.MaxTopK {
		return 0, util.Validationf("top_k must be between 1 and %d", s.cfg.MaxTopK)
	}
	return *v, nil
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	k, err := s.topK(req.TopK)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	threshold := s.cfg.SimilarityThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	res, err := s.rt.Querier.Query(r.Context(), req.Question, k, threshold)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type searchRequest struct {
	Query       string   `json:"query"`
	TopK        *int     `json:"top_k"`
	Threshold   *float64 `json:"similarity_threshold"`
	DocumentIDs []string `json:"document_ids"`
}

type searchResult struct {
	models.RetrievedChunk
	Snippet string `json:"snippet"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	k, err := s.topK(req.TopK)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	opts := pipeline.SearchOptions{DocumentIDs: req.DocumentIDs}
	if req.Threshold != nil {
		opts.ApplyThreshold, opts.Threshold = true, *req.Threshold
	}
	start := time.Now()
	chunks, err := s.rt.Querier.Search(r.Context(), req.Query, k, opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	results := make([]searchResult, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, searchResult{
			RetrievedChunk: c,
			Snippet:        util.EvidenceSnippet(c.Text, req.Query, snippetRunes),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":           req.Query,
		"results":         results,
		"total":           len(results),
		"processing_time": math.Round(time.Since(start).Seconds()*1000) / 1000,
	})
}

// fail maps an error's kind to a status code and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= 500 {
		s.logger.Error("request failed", "status", code, "err", err)
	}
	writeErr(w, code, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, vector.ErrDimensionMismatch):
		return http.StatusInternalServerError
	case errors.Is(err, jobs.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, util.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, util.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, util.ErrExternal):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return util.Validationf("invalid json: %v", err)
	}
	return nil
}

func uploadedFile(form *multipart.Form) (*multipart.FileHeader, bool) {
	if files := form.File["file"]; len(files) > 0 {
		return files[0], true
	}
	for _, v := range form.File {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	switch {
	case status >= 500:
		raw := ""
		if err != nil {
			raw = strings.ToLower(err.Error())
		}
		switch {
		case status == http.StatusBadGateway:
			return apiError{Code: "DQ-API-5020", Message: "Upstream provider unavailable. Retry shortly."}
		case status == http.StatusServiceUnavailable:
			return apiError{Code: "DQ-API-5030", Message: "Service dependency unavailable."}
		case errors.Is(err, vector.ErrDimensionMismatch):
			return apiError{Code: "DQ-VEC-5001", Message: "Embedding dimension does not match the collection. Check DOCQA_EMBED_DIM."}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{Code: "DQ-DB-5002", Message: "Database connection is unavailable. Check local services and retry."}
		default:
			return apiError{Code: "DQ-API-5000", Message: "Internal server error. Please retry or check service logs."}
		}
	case status == http.StatusNotFound:
		return apiError{Code: "DQ-API-4004", Message: userMessage(err, "Requested resource was not found.")}
	case status == http.StatusConflict:
		return apiError{Code: "DQ-API-4009", Message: userMessage(err, "Operation conflicts with current state. Retry after checking status.")}
	case status == http.StatusMethodNotAllowed:
		return apiError{Code: "DQ-API-4005", Message: "This endpoint does not support the requested method."}
	case status == http.StatusRequestEntityTooLarge:
		return apiError{Code: "DQ-API-4013", Message: userMessage(err, "Upload is too large.")}
	default:
		return apiError{Code: "DQ-API-4001", Message: userMessage(err, "Invalid request. Check inputs and retry.")}
	}
}

// userMessage keeps validation and lookup messages, which never carry
// internal detail.
func userMessage(err error, fallback string) string {
	if err != nil && (errors.Is(err, util.ErrValidation) || errors.Is(err, util.ErrNotFound)) {
		return err.Error()
	}
	return fallback
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

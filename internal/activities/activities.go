package activities

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"docqa/internal/models"
	"docqa/internal/storage"
	"docqa/internal/util"
	"docqa/internal/vector"
)

// DocumentIngester is the ingestion surface the activities drive.
type DocumentIngester interface {
	Ingest(ctx context.Context, documentID, filename string) (models.IngestResult, error)
	Reindex(ctx context.Context, documentID, filename string) (models.ReindexResult, error)
}

type FileLister interface {
	List() ([]models.StoredFile, error)
}

type Activities struct {
	files    FileLister
	store    vector.Store
	ingester DocumentIngester
	outRoot  string
}

func New(files FileLister, store vector.Store, ingester DocumentIngester, outRoot string) *Activities {
	return &Activities{files: files, store: store, ingester: ingester, outRoot: outRoot}
}

// ListDocumentsActivity returns stored uploads in document id order,
// optionally skipping those that already have chunks.
func (a *Activities) ListDocumentsActivity(ctx context.Context, in ListDocumentsInput) (ListDocumentsOutput, error) {
	stored, err := a.files.List()
	if err != nil {
		return ListDocumentsOutput{}, fmt.Errorf("list uploads: %w", err)
	}
	indexed := map[string]bool{}
	if in.OnlyUnindexed {
		docs, err := a.store.ListDocuments(ctx)
		if err != nil {
			return ListDocumentsOutput{}, util.External("list indexed documents", err)
		}
		for _, d := range docs {
			indexed[d.DocumentID] = true
		}
	}
	out := make([]DocumentRef, 0, len(stored))
	for _, f := range stored {
		if indexed[f.DocumentID] {
			continue
		}
		out = append(out, DocumentRef{DocumentID: f.DocumentID, Filename: f.Filename})
	}
	return ListDocumentsOutput{Documents: out}, nil
}

func (a *Activities) IngestDocumentActivity(ctx context.Context, in IngestDocumentInput) (IngestDocumentOutput, error) {
	res, err := a.ingester.Ingest(ctx, in.DocumentID, in.Filename)
	if err != nil {
		return IngestDocumentOutput{}, err
	}
	return IngestDocumentOutput{Result: res}, nil
}

func (a *Activities) ReindexDocumentActivity(ctx context.Context, in IngestDocumentInput) (ReindexDocumentOutput, error) {
	res, err := a.ingester.Reindex(ctx, in.DocumentID, in.Filename)
	if err != nil {
		return ReindexDocumentOutput{}, err
	}
	return ReindexDocumentOutput{Result: res}, nil
}

func (a *Activities) WriteBulkSummaryActivity(ctx context.Context, in WriteBulkSummaryInput) (WriteBulkSummaryOutput, error) {
	_ = ctx
	if strings.TrimSpace(in.WorkflowID) == "" {
		return WriteBulkSummaryOutput{}, util.Validationf("workflow id is required")
	}
	outPath := filepath.Join(a.outRoot, "bulk", storage.SafeFilename(in.WorkflowID)+".json")
	if err := util.WriteJSONAtomic(outPath, in.Summary); err != nil {
		return WriteBulkSummaryOutput{}, err
	}
	return WriteBulkSummaryOutput{Path: outPath}, nil
}

package workflows

import (
	"errors"
	"strings"
	"time"

	"docqa/internal/activities"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetProgress = "GetProgress"

const defaultMaxConcurrent = 3

// BulkIngestWorkflow ingests every stored upload through child workflows,
// MaxConcurrent at a time, and writes a JSON summary when done.
func BulkIngestWorkflow(ctx workflow.Context, input BulkIngestInput) (BulkIngestProgress, error) {
	progress := BulkIngestProgress{
		PerDocument:   map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (BulkIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return progress, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	var listOut activities.ListDocumentsOutput
	if err := workflow.ExecuteActivity(ctx, "ListDocumentsActivity", activities.ListDocumentsInput{
		OnlyUnindexed: !input.IncludeIndexed && !input.Reindex,
	}).Get(ctx, &listOut); err != nil {
		return progress, err
	}
	docs := listOut.Documents
	progress.Total = len(docs)
	maxChildren := input.MaxConcurrent
	if maxChildren <= 0 {
		maxChildren = defaultMaxConcurrent
	}
	parentID := workflow.GetInfo(ctx).WorkflowExecution.ID

	for i := 0; i < len(docs); i += maxChildren {
		batch := docs[i:min(i+maxChildren, len(docs))]
		futures := make([]workflow.ChildWorkflowFuture, 0, len(batch))
		for _, doc := range batch {
			progress.PerDocument[doc.DocumentID] = StatusProcessing
			workflowID := parentID + "-" + sanitizeID(doc.DocumentID)
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			futures = append(futures, workflow.ExecuteChildWorkflow(childCtx, DocumentIngestWorkflow, DocumentIngestInput{
				DocumentID: doc.DocumentID,
				Filename:   doc.Filename,
				Reindex:    input.Reindex,
			}))
			progress.ChildWorkflow[doc.DocumentID] = workflowID
		}

		for idx, f := range futures {
			id := batch[idx].DocumentID
			var st DocumentIngestStatus
			if err := f.Get(ctx, &st); err != nil {
				workflow.GetLogger(ctx).Warn("child workflow failed", "document_id", id, "error", err)
				st = DocumentIngestStatus{DocumentID: id, Status: StatusFailed, FailReason: err.Error()}
			}
			if st.Status == StatusFailed {
				progress.Failed++
			} else if st.Result != nil {
				progress.ChunksInserted += st.Result.ChunksInserted
			}
			progress.Done++
			progress.PerDocument[id] = st.Status
		}
	}

	var summaryOut activities.WriteBulkSummaryOutput
	err := workflow.ExecuteActivity(ctx, "WriteBulkSummaryActivity", activities.WriteBulkSummaryInput{
		WorkflowID: parentID,
		Summary: map[string]any{
			"workflow_id":         parentID,
			"reindex":             input.Reindex,
			"total":               progress.Total,
			"done":                progress.Done,
			"failed":              progress.Failed,
			"chunks_inserted":     progress.ChunksInserted,
			"per_document_status": progress.PerDocument,
			"generated_at":        workflow.Now(ctx),
		},
	}).Get(ctx, &summaryOut)
	if err != nil {
		workflow.GetLogger(ctx).Warn("bulk summary not written", "error", err)
	}
	progress.SummaryPath = summaryOut.Path
	return progress, nil
}

// DocumentIngestWorkflow runs one ingest or reindex. The activity gets a
// single attempt; a rerun of an ingest would duplicate chunks.
func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (DocumentIngestStatus, error) {
	status := DocumentIngestStatus{DocumentID: input.DocumentID, Status: StatusProcessing}
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	in := activities.IngestDocumentInput{DocumentID: input.DocumentID, Filename: input.Filename}

	var err error
	if input.Reindex {
		var out activities.ReindexDocumentOutput
		err = workflow.ExecuteActivity(ctx, "ReindexDocumentActivity", in).Get(ctx, &out)
		if err == nil {
			status.Result = &out.Result.IngestResult
			status.OldChunksDeleted = out.Result.OldChunksDeleted
		}
	} else {
		var out activities.IngestDocumentOutput
		err = workflow.ExecuteActivity(ctx, "IngestDocumentActivity", in).Get(ctx, &out)
		if err == nil {
			status.Result = &out.Result
		}
	}
	if err != nil {
		status.Status = StatusFailed
		status.FailReason = failReason(err)
		workflow.GetLogger(ctx).Warn("document ingest failed", "document_id", input.DocumentID, "error", err)
		return status, nil
	}
	status.Status = StatusIngested
	return status, nil
}

func failReason(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Message() != "" {
		return appErr.Message()
	}
	return err.Error()
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	return s
}

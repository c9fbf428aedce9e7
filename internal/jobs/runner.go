package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docqa/internal/models"

	"github.com/panjf2000/ants/v2"
)

// IngestFunc performs one ingestion and reports advisory progress.
type IngestFunc func(ctx context.Context, documentID, filename string, progress func(int)) (models.IngestResult, error)

// Runner executes accepted ingestion requests on a bounded worker pool and
// records their lifecycle in a Tracker.
type Runner struct {
	tracker *Tracker
	ingest  IngestFunc
	pool    *ants.Pool
	logger  *slog.Logger
}

func NewRunner(tracker *Tracker, ingest IngestFunc, workers int, logger *slog.Logger) (*Runner, error) {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create ingest pool: %w", err)
	}
	return &Runner{tracker: tracker, ingest: ingest, pool: pool, logger: logger.With("component", "jobs")}, nil
}

// Submit records a queued job and returns it immediately. Failures after
// acceptance are recorded on the job, never returned.
func (r *Runner) Submit(documentID, filename string) (Job, error) {
	job, err := r.tracker.Enqueue(documentID, filename)
	if err != nil {
		return Job{}, err
	}
	go r.dispatch(documentID, filename)
	return job, nil
}

// dispatch waits for a free worker. The job stays queued until one frees up.
func (r *Runner) dispatch(documentID, filename string) {
	err := r.pool.Submit(func() { r.run(documentID, filename) })
	if err != nil {
		_ = r.tracker.Fail(documentID, fmt.Errorf("schedule ingestion: %w", err))
		r.logger.Error("schedule ingestion failed", "document_id", documentID, "err", err)
	}
}

func (r *Runner) run(documentID, filename string) {
	// accepted jobs are not cancellable
	ctx := context.Background()
	log := r.logger.With("document_id", documentID)

	defer func() {
		if p := recover(); p != nil {
			log.Error("ingestion panicked", "panic", p)
			_ = r.tracker.Fail(documentID, fmt.Errorf("ingestion panicked: %v", p))
		}
	}()

	if err := r.tracker.Start(documentID); err != nil {
		log.Error("start job", "err", err)
		return
	}
	result, err := r.ingest(ctx, documentID, filename, func(p int) {
		_ = r.tracker.SetProgress(documentID, p)
	})
	if err != nil {
		log.Warn("async ingestion failed", "err", err)
		if terr := r.tracker.Fail(documentID, err); terr != nil {
			log.Error("record failure", "err", terr)
		}
		return
	}
	log.Info("async ingestion completed", "chunks", result.ChunksInserted, "seconds", result.ProcessingSeconds)
	if terr := r.tracker.Complete(documentID, result); terr != nil {
		log.Error("record completion", "err", terr)
	}
}

func (r *Runner) Running() int { return r.pool.Running() }

// Close stops accepting work and waits up to timeout for running jobs.
func (r *Runner) Close(timeout time.Duration) error {
	return r.pool.ReleaseTimeout(timeout)
}

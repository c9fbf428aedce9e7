package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"docqa/internal/models"
	"docqa/internal/util"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

var ErrInvalidTransition = errors.New("invalid job transition")

type Job struct {
	DocumentID string               `json:"document_id"`
	Filename   string               `json:"filename"`
	Status     Status               `json:"status"`
	Progress   int                  `json:"progress"`
	Result     *models.IngestResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Tracker holds one ingestion job per document in memory. Jobs live until
// Remove is called.
type Tracker struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{jobs: map[string]*Job{}, now: time.Now}
}

// Enqueue records a queued job. A document whose job is still queued or
// processing cannot be enqueued again; a finished job is replaced.
func (t *Tracker) Enqueue(documentID, filename string) (Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.jobs[documentID]; ok && !cur.Status.Terminal() {
		return Job{}, util.Validationf("ingestion of %s is already %s", documentID, cur.Status)
	}
	now := t.now().UTC()
	j := &Job{
		DocumentID: documentID,
		Filename:   filename,
		Status:     StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.jobs[documentID] = j
	return *j, nil
}

func (t *Tracker) Start(documentID string) error {
	return t.transition(documentID, StatusProcessing, func(j *Job) {
		if j.Progress < 10 {
			j.Progress = 10
		}
	})
}

// SetProgress raises progress on a processing job. Lower values are ignored.
func (t *Tracker) SetProgress(documentID string, progress int) error {
	progress = max(0, min(progress, 99))
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[documentID]
	if !ok {
		return util.NotFoundf("no ingestion job for %s", documentID)
	}
	if j.Status != StatusProcessing {
		return fmt.Errorf("%w: progress update on %s job", ErrInvalidTransition, j.Status)
	}
	if progress > j.Progress {
		j.Progress = progress
		j.UpdatedAt = t.now().UTC()
	}
	return nil
}

func (t *Tracker) Complete(documentID string, result models.IngestResult) error {
	return t.transition(documentID, StatusCompleted, func(j *Job) {
		j.Progress = 100
		j.Result = &result
	})
}

func (t *Tracker) Fail(documentID string, cause error) error {
	return t.transition(documentID, StatusFailed, func(j *Job) {
		j.Progress = 100
		if cause != nil {
			j.Error = cause.Error()
		}
	})
}

func (t *Tracker) transition(documentID string, to Status, apply func(*Job)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[documentID]
	if !ok {
		return util.NotFoundf("no ingestion job for %s", documentID)
	}
	if j.Status.Terminal() || to.rank() <= j.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	apply(j)
	j.UpdatedAt = t.now().UTC()
	return nil
}

func (t *Tracker) Get(documentID string) (Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[documentID]
	if !ok {
		return Job{}, util.NotFoundf("no ingestion job for %s", documentID)
	}
	return copyJob(j), nil
}

// List returns all jobs, most recently created first.
func (t *Tracker) List() []Job {
	t.mu.Lock()
	out := make([]Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, copyJob(j))
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

func (t *Tracker) Remove(documentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.jobs[documentID]
	delete(t.jobs, documentID)
	return ok
}

func copyJob(j *Job) Job {
	out := *j
	if j.Result != nil {
		r := *j.Result
		out.Result = &r
	}
	return out
}

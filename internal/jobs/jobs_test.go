package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"docqa/internal/models"
	"docqa/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()
	job, err := tr.Enqueue("doc-1", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)

	require.NoError(t, tr.Start("doc-1"))
	require.NoError(t, tr.SetProgress("doc-1", 40))
	require.NoError(t, tr.SetProgress("doc-1", 20))
	got, err := tr.Get("doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.Equal(t, 40, got.Progress)

	require.NoError(t, tr.Complete("doc-1", models.IngestResult{DocumentID: "doc-1", ChunksInserted: 6}))
	got, err = tr.Get("doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.Result)
	assert.Equal(t, 6, got.Result.ChunksInserted)

	require.ErrorIs(t, tr.Fail("doc-1", errors.New("late")), ErrInvalidTransition)
	require.ErrorIs(t, tr.Start("doc-1"), ErrInvalidTransition)
	require.ErrorIs(t, tr.SetProgress("doc-1", 99), ErrInvalidTransition)
	got, _ = tr.Get("doc-1")
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Empty(t, got.Error)
}

func TestTrackerRejectsSkippedAndBackwardTransitions(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Enqueue("doc-1", "a.pdf")
	require.NoError(t, err)
	require.ErrorIs(t, tr.Complete("doc-1", models.IngestResult{}), ErrInvalidTransition)

	require.NoError(t, tr.Start("doc-1"))
	require.ErrorIs(t, tr.Start("doc-1"), ErrInvalidTransition)
	require.NoError(t, tr.Fail("doc-1", errors.New("no extractable text")))

	got, err := tr.Get("doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "no extractable text", got.Error)
	assert.Nil(t, got.Result)
}

func TestTrackerEnqueueRules(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Enqueue("doc-1", "a.pdf")
	require.NoError(t, err)
	_, err = tr.Enqueue("doc-1", "a.pdf")
	require.ErrorIs(t, err, util.ErrValidation)

	require.NoError(t, tr.Start("doc-1"))
	require.NoError(t, tr.Fail("doc-1", errors.New("boom")))
	job, err := tr.Enqueue("doc-1", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Empty(t, job.Error)
}

func TestTrackerUnknownDocument(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Get("missing")
	require.ErrorIs(t, err, util.ErrNotFound)
	require.ErrorIs(t, tr.Start("missing"), util.ErrNotFound)
	assert.False(t, tr.Remove("missing"))
}

func TestTrackerConcurrentDocuments(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("doc-%d", i)
			_, err := tr.Enqueue(id, "x.pdf")
			assert.NoError(t, err)
			assert.NoError(t, tr.Start(id))
			for p := 10; p < 90; p += 10 {
				assert.NoError(t, tr.SetProgress(id, p))
				_, _ = tr.Get(id)
			}
			assert.NoError(t, tr.Complete(id, models.IngestResult{DocumentID: id}))
		}(i)
	}
	wg.Wait()
	jobs := tr.List()
	require.Len(t, jobs, 64)
	for _, j := range jobs {
		assert.Equal(t, StatusCompleted, j.Status)
	}
}

func TestRunnerRecordsLifecycle(t *testing.T) {
	tr := NewTracker()
	release := make(chan struct{})
	ingest := func(_ context.Context, documentID, filename string, progress func(int)) (models.IngestResult, error) {
		<-release
		progress(50)
		if documentID == "bad" {
			return models.IngestResult{}, util.ErrNoExtractableText
		}
		return models.IngestResult{DocumentID: documentID, Filename: filename, ChunksInserted: 3}, nil
	}
	r, err := NewRunner(tr, ingest, 2, nil)
	require.NoError(t, err)
	defer func() { _ = r.Close(time.Second) }()

	job, err := r.Submit("good", "good.pdf")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	_, err = r.Submit("bad", "bad.pdf")
	require.NoError(t, err)

	_, err = r.Submit("good", "good.pdf")
	require.ErrorIs(t, err, util.ErrValidation)

	close(release)
	require.Eventually(t, func() bool {
		g, _ := tr.Get("good")
		b, _ := tr.Get("bad")
		return g.Status.Terminal() && b.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)

	g, _ := tr.Get("good")
	assert.Equal(t, StatusCompleted, g.Status)
	assert.Equal(t, 3, g.Result.ChunksInserted)
	b, _ := tr.Get("bad")
	assert.Equal(t, StatusFailed, b.Status)
	assert.Contains(t, b.Error, "no extractable text")
}

func TestRunnerRecoversPanics(t *testing.T) {
	tr := NewTracker()
	r, err := NewRunner(tr, func(context.Context, string, string, func(int)) (models.IngestResult, error) {
		panic("corrupt state")
	}, 1, nil)
	require.NoError(t, err)
	defer func() { _ = r.Close(time.Second) }()

	_, err = r.Submit("doc", "doc.pdf")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, _ := tr.Get("doc")
		return j.Status == StatusFailed
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRunnerSubmitDoesNotWaitForFreeWorker(t *testing.T) {
	tr := NewTracker()
	release := make(chan struct{})
	ingest := func(_ context.Context, documentID, filename string, _ func(int)) (models.IngestResult, error) {
		<-release
		return models.IngestResult{DocumentID: documentID, Filename: filename}, nil
	}
	r, err := NewRunner(tr, ingest, 1, nil)
	require.NoError(t, err)
	defer func() { _ = r.Close(time.Second) }()

	_, err = r.Submit("first", "first.pdf")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, _ := tr.Get("first")
		return j.Status == StatusProcessing
	}, 2*time.Second, 5*time.Millisecond)

	accepted := make(chan error, 2)
	go func() {
		for _, id := range []string{"second", "third"} {
			_, err := r.Submit(id, id+".pdf")
			accepted <- err
		}
	}()
	for i := 0; i < 2; i++ {
		select {
		case err := <-accepted:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Submit blocked while the only worker was busy")
		}
	}
	second, err := tr.Get("second")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, second.Status)

	close(release)
	require.Eventually(t, func() bool {
		for _, id := range []string{"first", "second", "third"} {
			if j, _ := tr.Get(id); j.Status != StatusCompleted {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRunnerFailsJobsSubmittedAfterClose(t *testing.T) {
	tr := NewTracker()
	ingest := func(_ context.Context, documentID, _ string, _ func(int)) (models.IngestResult, error) {
		return models.IngestResult{DocumentID: documentID}, nil
	}
	r, err := NewRunner(tr, ingest, 1, nil)
	require.NoError(t, err)
	require.NoError(t, r.Close(time.Second))

	job, err := r.Submit("late", "late.pdf")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	require.Eventually(t, func() bool {
		j, _ := tr.Get("late")
		return j.Status == StatusFailed
	}, 2*time.Second, 5*time.Millisecond)
	j, _ := tr.Get("late")
	assert.Contains(t, j.Error, "schedule ingestion")
}

package jobs

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/siepe-rag/internal/progress"
	"github.com/JakeFAU/siepe-rag/internal/rag"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

var page = rag.PageTarget{Year: "2022", CategoryCode: "cs", CategoryName: "Ciências da Saúde", EventCode: "cic"}

func TestRegistryCreateAndGet(t *testing.T) {
	t.Parallel()

	r := NewMemoryRegistry(nil)
	require.NoError(t, r.Create(rag.Job{ID: "a", Status: rag.JobStatusQueued}))
	require.Error(t, r.Create(rag.Job{ID: "a"}))
	require.Error(t, r.Create(rag.Job{}))

	job, err := r.Get("a")
	require.NoError(t, err)
	require.Equal(t, rag.JobStatusQueued, job.Status)
	require.NotNil(t, job.Errors)

	_, err = r.Get("missing")
	var nf *rag.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "missing", nf.ID)
}

func TestRegistryApplyEvents(t *testing.T) {
	t.Parallel()

	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewMemoryRegistry(clock)
	require.NoError(t, r.Create(rag.Job{ID: "j", Status: rag.JobStatusQueued}))

	require.NoError(t, r.Apply("j", progress.Event{Kind: progress.KindJobStart}))
	require.NoError(t, r.Apply("j", progress.Event{Kind: progress.KindPageStart, Target: page, URL: "u", Total: 2}))
	require.NoError(t, r.Apply("j", progress.Event{Kind: progress.KindItemStart, Target: page, Title: "A", Link: "la", Index: 1, Total: 2}))

	job, err := r.Get("j")
	require.NoError(t, err)
	require.Equal(t, rag.JobStatusRunning, job.Status)
	require.Equal(t, &rag.PageProgress{PageTarget: page, URL: "u", Total: 2, Started: true}, job.CurrentPage)
	require.Equal(t, ItemProcessing, job.LastItem.Status)
	require.Nil(t, job.LastOKItem)

	require.NoError(t, r.Apply("j", progress.Event{Kind: progress.KindItemDone, Target: page, Title: "A", Link: "la", Index: 1, Total: 2, Status: progress.ItemOK}))
	require.NoError(t, r.Apply("j", progress.Event{Kind: progress.KindItemDone, Target: page, Title: "B", Index: 2, Total: 2, Status: progress.ItemError, Err: "PDF vazio"}))
	require.NoError(t, r.Apply("j", progress.Event{Kind: progress.KindPageDone, Target: page}))

	job, err = r.Get("j")
	require.NoError(t, err)
	require.Equal(t, rag.JobCounters{OK: 1, Failed: 1}, job.Counters)
	require.Equal(t, 1, job.Pages.Done)
	require.Equal(t, "A", job.LastOKItem.Title)
	require.Equal(t, "B", job.LastItem.Title)
	require.Equal(t, progress.ItemError, job.LastItem.Status)
	require.Equal(t, []rag.JobError{{Year: "2022", CategoryCode: "cs", EventCode: "cic", Title: "B", Message: "PDF vazio"}}, job.Errors)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 6, 0, time.UTC), job.UpdatedAt)
}

func TestRegistrySnapshotsAreCopies(t *testing.T) {
	t.Parallel()

	r := NewMemoryRegistry(nil)
	require.NoError(t, r.Create(rag.Job{ID: "j"}))
	require.NoError(t, r.Apply("j", progress.Event{Kind: progress.KindPageStart, Total: 1}))
	require.NoError(t, r.Apply("j", progress.Event{Kind: progress.KindItemDone, Index: 1, Status: progress.ItemError, Err: "x"}))

	snap, err := r.Get("j")
	require.NoError(t, err)
	snap.CurrentPage.Total = 99
	snap.Errors[0].Message = "changed"

	again, err := r.Get("j")
	require.NoError(t, err)
	require.Equal(t, 1, again.CurrentPage.Total)
	require.Equal(t, "x", again.Errors[0].Message)
}

func TestRegistryTerminalIsFinal(t *testing.T) {
	t.Parallel()

	r := NewMemoryRegistry(nil)
	require.NoError(t, r.Create(rag.Job{ID: "done"}))
	require.NoError(t, r.Create(rag.Job{ID: "failed"}))

	summary := &rag.JobResult{Page: &rag.PageSummary{URL: "u", OK: 1}}
	require.NoError(t, r.Finish("done", summary, nil))
	require.NoError(t, r.Finish("failed", nil, errors.New("boom")))

	for _, id := range []string{"done", "failed"} {
		require.ErrorIs(t, r.Finish(id, nil, nil), ErrFinished)
		require.ErrorIs(t, r.Apply(id, progress.Event{Kind: progress.KindJobStart}), ErrFinished)
	}

	done, err := r.Get("done")
	require.NoError(t, err)
	require.Equal(t, rag.JobStatusDone, done.Status)
	require.Equal(t, summary, done.Result)
	require.Empty(t, done.Error)

	failed, err := r.Get("failed")
	require.NoError(t, err)
	require.Equal(t, rag.JobStatusError, failed.Status)
	require.Equal(t, "boom", failed.Error)
	require.Nil(t, failed.Result)

	var nf *rag.NotFoundError
	require.ErrorAs(t, r.Apply("nope", progress.Event{}), &nf)
	require.ErrorAs(t, r.Finish("nope", nil, nil), &nf)
}

func TestRegistryConcurrentJobsCountIndependently(t *testing.T) {
	t.Parallel()

	r := NewMemoryRegistry(nil)
	const jobsN, items = 8, 50
	var wg sync.WaitGroup
	for j := 0; j < jobsN; j++ {
		id := fmt.Sprintf("job-%d", j)
		require.NoError(t, r.Create(rag.Job{ID: id}))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 1; i <= items; i++ {
				status := progress.ItemOK
				if i%5 == 0 {
					status = progress.ItemError
				}
				_ = r.Apply(id, progress.Event{Kind: progress.KindItemDone, Index: i, Status: status})
			}
		}()
	}
	wg.Wait()

	for j := 0; j < jobsN; j++ {
		job, err := r.Get(fmt.Sprintf("job-%d", j))
		require.NoError(t, err)
		require.Equal(t, rag.JobCounters{OK: 40, Failed: 10}, job.Counters)
		require.Len(t, job.Errors, 10)
	}
}

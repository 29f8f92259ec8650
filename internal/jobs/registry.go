// Package jobs tracks asynchronous crawl jobs and their progress snapshots.
package jobs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/siepe-rag/internal/clock/system"
	"github.com/JakeFAU/siepe-rag/internal/progress"
	"github.com/JakeFAU/siepe-rag/internal/rag"
)

// ErrFinished is returned when a mutation targets a job in a terminal state.
var ErrFinished = errors.New("job already finished")

// ItemProcessing marks the last item while it is still being worked on.
const ItemProcessing = "processing"

// Registry stores job snapshots. Implementations serialize every mutation.
type Registry interface {
	Create(job rag.Job) error
	Get(id string) (rag.Job, error)
	Apply(id string, evt progress.Event) error
	Finish(id string, result *rag.JobResult, jobErr error) error
}

// MemoryRegistry keeps jobs in process memory behind one mutex.
type MemoryRegistry struct {
	mu    sync.Mutex
	jobs  map[string]*rag.Job
	clock rag.Clock
}

// NewMemoryRegistry creates an empty registry. A nil clock uses the wall clock.
func NewMemoryRegistry(clock rag.Clock) *MemoryRegistry {
	if clock == nil {
		clock = system.New()
	}
	return &MemoryRegistry{jobs: make(map[string]*rag.Job), clock: clock}
}

// Create stores a new job.
func (r *MemoryRegistry) Create(job rag.Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	if job.Errors == nil {
		job.Errors = []rag.JobError{}
	}
	r.jobs[job.ID] = cloneJob(&job)
	return nil
}

// Get returns a copy of the job snapshot.
func (r *MemoryRegistry) Get(id string) (rag.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return rag.Job{}, &rag.NotFoundError{ID: id}
	}
	return *cloneJob(job), nil
}

// Apply folds one progress event into the job snapshot.
func (r *MemoryRegistry) Apply(id string, evt progress.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return &rag.NotFoundError{ID: id}
	}
	if job.Status.Terminal() {
		return ErrFinished
	}

	switch evt.Kind {
	case progress.KindJobStart:
		job.Status = rag.JobStatusRunning
	case progress.KindPageStart:
		job.CurrentPage = &rag.PageProgress{
			PageTarget: evt.Target,
			URL:        evt.URL,
			Total:      evt.Total,
			Started:    true,
		}
	case progress.KindItemStart:
		item := itemFrom(evt)
		item.Status = ItemProcessing
		job.LastItem = &item
	case progress.KindItemDone:
		item := itemFrom(evt)
		if evt.Status == progress.ItemOK {
			job.Counters.OK++
			okItem := item
			job.LastOKItem = &okItem
		} else {
			job.Counters.Failed++
			job.Errors = append(job.Errors, rag.JobError{
				Year:         evt.Target.Year,
				CategoryCode: evt.Target.CategoryCode,
				EventCode:    evt.Target.EventCode,
				Title:        evt.Title,
				Message:      evt.Err,
			})
		}
		item.Status = evt.Status
		job.LastItem = &item
	case progress.KindPageDone:
		job.Pages.Done++
	default:
		return nil
	}
	job.UpdatedAt = r.clock.Now()
	return nil
}

// Finish moves the job to done, or to error when jobErr is non-nil.
func (r *MemoryRegistry) Finish(id string, result *rag.JobResult, jobErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return &rag.NotFoundError{ID: id}
	}
	if job.Status.Terminal() {
		return ErrFinished
	}
	if jobErr != nil {
		job.Status = rag.JobStatusError
		job.Error = jobErr.Error()
	} else {
		job.Status = rag.JobStatusDone
		job.Result = result
	}
	job.UpdatedAt = r.clock.Now()
	return nil
}

func itemFrom(evt progress.Event) rag.ItemProgress {
	return rag.ItemProgress{
		PageTarget: evt.Target,
		Title:      evt.Title,
		Link:       evt.Link,
		Index:      evt.Index,
		Total:      evt.Total,
	}
}

// cloneJob copies the parts of a snapshot that Apply mutates.
func cloneJob(job *rag.Job) *rag.Job {
	out := *job
	if job.CurrentPage != nil {
		page := *job.CurrentPage
		out.CurrentPage = &page
	}
	if job.LastItem != nil {
		item := *job.LastItem
		out.LastItem = &item
	}
	if job.LastOKItem != nil {
		item := *job.LastOKItem
		out.LastOKItem = &item
	}
	out.Errors = append([]rag.JobError{}, job.Errors...)
	return &out
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/clock/system"
	"github.com/JakeFAU/siepe-rag/internal/crawl"
	"github.com/JakeFAU/siepe-rag/internal/progress"
	"github.com/JakeFAU/siepe-rag/internal/rag"
)

// ErrInvalidParams reports a job request that cannot be run.
var ErrInvalidParams = errors.New("invalid job parameters")

const defaultEventBuffer = 256

// Crawler runs full or single-page crawls.
type Crawler interface {
	CrawlAll(ctx context.Context, req crawl.Request, emit progress.Emitter) (rag.CrawlSummary, error)
	CrawlOne(ctx context.Context, target rag.PageTarget, maxItems *int, emit progress.Emitter) rag.PageSummary
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithObserver forwards every job event to emitter, typically a progress.Hub.
func WithObserver(emitter progress.Emitter) ManagerOption {
	return func(m *Manager) {
		if emitter != nil {
			m.observer = emitter
		}
	}
}

// WithClock overrides the clock used for job timestamps.
func WithClock(clock rag.Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithEventBuffer sets the per-job event channel capacity.
func WithEventBuffer(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.buffer = n
		}
	}
}

// Manager starts crawl jobs and records their progress in a Registry.
type Manager struct {
	registry Registry
	crawler  Crawler
	ids      rag.IDGenerator
	clock    rag.Clock
	observer progress.Emitter
	logger   *zap.Logger
	buffer   int
	wg       sync.WaitGroup
}

// NewManager builds a Manager.
func NewManager(registry Registry, crawler Crawler, ids rag.IDGenerator, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		registry: registry,
		crawler:  crawler,
		ids:      ids,
		clock:    system.New(),
		observer: progress.Discard,
		logger:   logger,
		buffer:   defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit records a queued job and starts it in its own goroutine. The job
// keeps running after ctx is cancelled.
func (m *Manager) Submit(ctx context.Context, params rag.JobParameters) (string, error) {
	if err := validate(params); err != nil {
		return "", err
	}
	id, err := m.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("allocate job id: %w", err)
	}
	now := m.clock.Now()
	job := rag.Job{
		ID:        id,
		Status:    rag.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Params:    params,
		Errors:    []rag.JobError{},
	}
	if err := m.registry.Create(job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	m.wg.Add(1)
	go m.run(context.WithoutCancel(ctx), id, params)
	m.logger.Info("crawl job submitted", zap.String("job_id", id))
	return id, nil
}

// Get returns the snapshot of job id.
func (m *Manager) Get(id string) (rag.Job, error) {
	return m.registry.Get(id)
}

// Wait blocks until every submitted job has finished or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for jobs: %w", ctx.Err())
	}
}

func (m *Manager) run(ctx context.Context, id string, params rag.JobParameters) {
	defer m.wg.Done()
	logger := m.logger.With(zap.String("job_id", id))
	started := m.clock.Now()

	events := make(chan progress.Event, m.buffer)
	applied := make(chan struct{})
	go func() {
		defer close(applied)
		for evt := range events {
			if err := m.registry.Apply(id, evt); err != nil {
				logger.Warn("apply job event failed", zap.String("kind", string(evt.Kind)), zap.Error(err))
			}
			m.observer.Emit(evt)
		}
	}()
	emit := progress.EmitterFunc(func(evt progress.Event) {
		evt.JobID = id
		if evt.TS.IsZero() {
			evt.TS = m.clock.Now()
		}
		events <- evt
	})

	emit.Emit(progress.Event{Kind: progress.KindJobStart})
	result, err := m.execute(ctx, params, emit)
	close(events)
	<-applied

	if finishErr := m.registry.Finish(id, result, err); finishErr != nil {
		logger.Error("finish job failed", zap.Error(finishErr))
	}
	final := progress.Event{JobID: id, TS: m.clock.Now(), Kind: progress.KindJobDone, Dur: m.clock.Now().Sub(started)}
	if err != nil {
		final.Kind = progress.KindJobError
		final.Err = err.Error()
		logger.Error("crawl job failed", zap.Error(err))
	} else {
		logger.Info("crawl job done", zap.Duration("elapsed", final.Dur))
	}
	if final.Dur < 0 {
		final.Dur = 0
	}
	m.observer.Emit(final)
}

func (m *Manager) execute(ctx context.Context, params rag.JobParameters, emit progress.Emitter) (result *rag.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("crawl panic: %v", r)
		}
	}()
	if only := params.OnlyPage; only != nil {
		target := rag.PageTarget{Year: only.Year, CategoryCode: only.Category, EventCode: only.Event}
		page := m.crawler.CrawlOne(ctx, target, params.MaxItemsPerPage, emit)
		return &rag.JobResult{Page: &page}, nil
	}
	summary, err := m.crawler.CrawlAll(ctx, crawl.Request{
		Years:           params.Years,
		Categories:      params.Categories,
		Events:          params.Events,
		MaxItemsPerPage: params.MaxItemsPerPage,
	}, emit)
	if err != nil {
		return nil, err
	}
	return &rag.JobResult{Crawl: &summary}, nil
}

func validate(params rag.JobParameters) error {
	if params.MaxItemsPerPage != nil && *params.MaxItemsPerPage < 0 {
		return fmt.Errorf("%w: max_itens_por_pagina must be >= 0", ErrInvalidParams)
	}
	if only := params.OnlyPage; only != nil {
		if strings.TrimSpace(only.Year) == "" || strings.TrimSpace(only.Category) == "" || strings.TrimSpace(only.Event) == "" {
			return fmt.Errorf("%w: somente_esta_pagina needs ano, area and evento", ErrInvalidParams)
		}
	}
	return nil
}

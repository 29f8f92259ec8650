package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/siepe-rag/internal/progress"
)

// PrometheusSink exports crawl progress: jobs started, completed and running,
// pages by result and items by status.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	pagesDone   *prometheus.CounterVec
	itemsListed prometheus.Histogram
	itemsDone   *prometheus.CounterVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against reg (the default registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "siepe_crawl_jobs_started_total",
			Help: "Total crawl jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siepe_crawl_jobs_completed_total",
			Help: "Total crawl jobs completed partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siepe_crawl_jobs_running",
			Help: "Current number of running crawl jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "siepe_crawl_job_runtime_seconds",
			Help:    "Wall time per completed crawl job.",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"result"}),
		pagesDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siepe_crawl_pages_total",
			Help: "Listing pages finished partitioned by result.",
		}, []string{"result"}),
		itemsListed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "siepe_crawl_page_items_listed",
			Help:    "Items listed per listing page.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		itemsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siepe_crawl_items_total",
			Help: "Work items processed partitioned by status.",
		}, []string{"status"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.pagesDone,
		s.itemsListed,
		s.itemsDone,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Kind {
	case progress.KindJobStart:
		s.jobsStarted.Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.KindJobDone, progress.KindJobError:
		result := "success"
		if evt.Kind == progress.KindJobError {
			result = "error"
		}
		s.jobsCompleted.WithLabelValues(result).Inc()
		if evt.Dur > 0 {
			s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.JobID) {
			s.jobsRunning.Dec()
		}
	case progress.KindPageDone:
		result := "ok"
		if evt.Err != "" {
			result = "error"
		}
		s.pagesDone.WithLabelValues(result).Inc()
		if evt.Err == "" {
			s.itemsListed.Observe(float64(evt.Total))
		}
	case progress.KindItemDone:
		s.itemsDone.WithLabelValues(evt.Status).Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}

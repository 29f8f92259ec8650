package jobs

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/crawl"
	"github.com/JakeFAU/siepe-rag/internal/progress"
	"github.com/JakeFAU/siepe-rag/internal/rag"
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "job-" + strconv.Itoa(g.n), nil
}

// gatedCrawler emits items one by one, waiting on step before each.
type gatedCrawler struct {
	step     chan struct{}
	items    int
	fail     error
	panicMsg string
	gotReq   crawl.Request
	gotPage  rag.PageTarget
	gotLimit *int
}

func (c *gatedCrawler) CrawlAll(_ context.Context, req crawl.Request, emit progress.Emitter) (rag.CrawlSummary, error) {
	c.gotReq = req
	if c.panicMsg != "" {
		panic(c.panicMsg)
	}
	summary := rag.CrawlSummary{}
	page := c.scrape(rag.PageTarget{Year: "2024", CategoryCode: "en", EventCode: "cic"}, emit)
	summary.Add(page)
	if c.fail != nil {
		return summary, c.fail
	}
	return summary, nil
}

func (c *gatedCrawler) CrawlOne(_ context.Context, target rag.PageTarget, maxItems *int, emit progress.Emitter) rag.PageSummary {
	c.gotPage = target
	c.gotLimit = maxItems
	return c.scrape(target, emit)
}

func (c *gatedCrawler) scrape(target rag.PageTarget, emit progress.Emitter) rag.PageSummary {
	emit.Emit(progress.Event{Kind: progress.KindPageStart, Target: target, Total: c.items})
	s := rag.PageSummary{URL: target.URL(""), Total: c.items}
	for i := 1; i <= c.items; i++ {
		if c.step != nil {
			<-c.step
		}
		emit.Emit(progress.Event{Kind: progress.KindItemStart, Target: target, Index: i, Total: c.items})
		emit.Emit(progress.Event{Kind: progress.KindItemDone, Target: target, Index: i, Total: c.items, Status: progress.ItemOK})
		s.OK++
	}
	emit.Emit(progress.Event{Kind: progress.KindPageDone, Target: target, Total: c.items, OK: s.OK})
	return s
}

type collectingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *collectingEmitter) Emit(e progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collectingEmitter) Kinds() []progress.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]progress.Kind, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Kind)
	}
	return out
}

func newManager(crawler Crawler, observer progress.Emitter) (*Manager, *MemoryRegistry) {
	reg := NewMemoryRegistry(nil)
	return NewManager(reg, crawler, &seqIDs{}, zap.NewNop(), WithObserver(observer), WithEventBuffer(4)), reg
}

func waitTerminal(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
}

func TestManagerRunsFullCrawlToDone(t *testing.T) {
	t.Parallel()

	crawler := &gatedCrawler{items: 3}
	observer := &collectingEmitter{}
	m, _ := newManager(crawler, observer)

	limit := 2
	id, err := m.Submit(context.Background(), rag.JobParameters{Years: []string{"2024"}, Events: []string{"cic"}, MaxItemsPerPage: &limit})
	require.NoError(t, err)
	require.Equal(t, "job-1", id)
	waitTerminal(t, m)

	job, err := m.Get(id)
	require.NoError(t, err)
	require.Equal(t, rag.JobStatusDone, job.Status)
	require.Equal(t, 3, job.Counters.OK)
	require.Equal(t, 1, job.Pages.Done)
	require.NotNil(t, job.Result)
	require.NotNil(t, job.Result.Crawl)
	require.Nil(t, job.Result.Page)
	require.Equal(t, 1, job.Result.Crawl.TotalPages)
	require.Equal(t, []string{"2024"}, crawler.gotReq.Years)
	require.Equal(t, 2, *crawler.gotReq.MaxItemsPerPage)

	kinds := observer.Kinds()
	require.Equal(t, progress.KindJobStart, kinds[0])
	require.Equal(t, progress.KindJobDone, kinds[len(kinds)-1])
	require.Len(t, kinds, 1+1+3*2+1+1)
	for _, e := range observer.events {
		require.Equal(t, id, e.JobID)
		require.False(t, e.TS.IsZero())
	}
}

func TestManagerSinglePageResult(t *testing.T) {
	t.Parallel()

	crawler := &gatedCrawler{items: 1}
	m, _ := newManager(crawler, nil)
	id, err := m.Submit(context.Background(), rag.JobParameters{OnlyPage: &rag.SinglePage{Year: "2023", Category: "en", Event: "cic"}})
	require.NoError(t, err)
	waitTerminal(t, m)

	job, err := m.Get(id)
	require.NoError(t, err)
	require.Equal(t, rag.JobStatusDone, job.Status)
	require.NotNil(t, job.Result.Page)
	require.Equal(t, rag.PageTarget{Year: "2023", CategoryCode: "en", EventCode: "cic"}, crawler.gotPage)
	require.Nil(t, crawler.gotLimit)
}

func TestManagerProgressIsVisibleWhileRunning(t *testing.T) {
	t.Parallel()

	crawler := &gatedCrawler{items: 4, step: make(chan struct{})}
	m, _ := newManager(crawler, nil)
	id, err := m.Submit(context.Background(), rag.JobParameters{})
	require.NoError(t, err)

	last := -1
	for i := 0; i < 4; i++ {
		crawler.step <- struct{}{}
		require.Eventually(t, func() bool {
			job, err := m.Get(id)
			return err == nil && job.Counters.OK == i+1
		}, time.Second, 5*time.Millisecond)
		job, err := m.Get(id)
		require.NoError(t, err)
		if i < 3 {
			require.Equal(t, rag.JobStatusRunning, job.Status)
		}
		require.Greater(t, job.Counters.OK, last)
		last = job.Counters.OK
	}
	waitTerminal(t, m)
	job, err := m.Get(id)
	require.NoError(t, err)
	require.Equal(t, rag.JobStatusDone, job.Status)
	require.Equal(t, 4, job.Counters.OK)
}

func TestManagerRecordsCrawlErrors(t *testing.T) {
	t.Parallel()

	for name, crawler := range map[string]*gatedCrawler{
		"returned error": {items: 1, fail: errors.New("crawl interrupted")},
		"panic":          {panicMsg: "nil map write"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			observer := &collectingEmitter{}
			m, _ := newManager(crawler, observer)
			id, err := m.Submit(context.Background(), rag.JobParameters{})
			require.NoError(t, err)
			waitTerminal(t, m)

			job, err := m.Get(id)
			require.NoError(t, err)
			require.Equal(t, rag.JobStatusError, job.Status)
			require.NotEmpty(t, job.Error)
			require.Nil(t, job.Result)
			kinds := observer.Kinds()
			require.Equal(t, progress.KindJobError, kinds[len(kinds)-1])
		})
	}
}

func TestManagerJobOutlivesRequestContext(t *testing.T) {
	t.Parallel()

	crawler := &gatedCrawler{items: 1, step: make(chan struct{})}
	m, _ := newManager(crawler, nil)
	ctx, cancel := context.WithCancel(context.Background())
	id, err := m.Submit(ctx, rag.JobParameters{})
	require.NoError(t, err)
	cancel()
	crawler.step <- struct{}{}
	waitTerminal(t, m)

	job, err := m.Get(id)
	require.NoError(t, err)
	require.Equal(t, rag.JobStatusDone, job.Status)
}

func TestManagerValidatesParams(t *testing.T) {
	t.Parallel()

	m, _ := newManager(&gatedCrawler{}, nil)
	negative := -1
	_, err := m.Submit(context.Background(), rag.JobParameters{MaxItemsPerPage: &negative})
	require.ErrorIs(t, err, ErrInvalidParams)
	_, err = m.Submit(context.Background(), rag.JobParameters{OnlyPage: &rag.SinglePage{Year: "2024"}})
	require.ErrorIs(t, err, ErrInvalidParams)

	_, err = m.Get("job-1")
	var nf *rag.NotFoundError
	require.ErrorAs(t, err, &nf)
}

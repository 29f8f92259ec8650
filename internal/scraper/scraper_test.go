package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/ingest"
	"github.com/JakeFAU/siepe-rag/internal/progress"
	"github.com/JakeFAU/siepe-rag/internal/rag"
)

var target = rag.PageTarget{
	Year:         "2024",
	CategoryCode: "en",
	CategoryName: "Engenharias",
	EventCode:    "cic",
	EventName:    "Congresso de Iniciação Científica",
}

func listingWith(titles ...string) []byte {
	var b strings.Builder
	b.WriteString("<table><tr><th>h</th></tr>")
	for i, title := range titles {
		fmt.Fprintf(&b, `<tr><td>P%d</td><td>%s</td><td>A</td><td>O</td><td><a href="/pdf/%d.pdf">PDF</a></td></tr>`, i, title, i)
	}
	b.WriteString("</table>")
	return []byte(b.String())
}

type fakeFetcher struct {
	body []byte
	err  error
	urls []string
}

func (f *fakeFetcher) FetchListing(_ context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	return f.body, f.err
}

type fakeDownloader struct {
	failLinks map[string]bool
}

func (d *fakeDownloader) Download(_ context.Context, url, dir string) (string, error) {
	if d.failLinks[url] {
		return "", errors.New("connection reset")
	}
	f, err := os.CreateTemp(dir, "*.pdf")
	if err != nil {
		return "", err
	}
	_, _ = f.WriteString(url)
	return f.Name(), f.Close()
}

type fakePages struct {
	empty map[string]bool
}

func (p fakePages) PageCount(_ context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if p.empty[string(data)] {
		return 0, nil
	}
	return 1, nil
}

type fakeCover struct {
	mu    sync.Mutex
	lines [][]string
}

func (c *fakeCover) RenderCover(_ context.Context, lines []string, dest string) error {
	c.mu.Lock()
	c.lines = append(c.lines, lines)
	c.mu.Unlock()
	return os.WriteFile(dest, []byte(strings.Join(lines, "\n")), 0o600)
}

type fakeMerger struct {
	inputs [][]string
}

func (m *fakeMerger) Merge(_ context.Context, out string, inputs ...string) error {
	m.inputs = append(m.inputs, inputs)
	var b strings.Builder
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return os.WriteFile(out, []byte(b.String()), 0o600)
}

type fakeIngester struct {
	failTitles map[string]bool
	ingested   []string
}

func (i *fakeIngester) Ingest(_ context.Context, path string) (ingest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.Result{}, err
	}
	for title := range i.failTitles {
		if strings.Contains(string(data), "Título: "+title+"\n") {
			return ingest.Result{}, &rag.IngestError{Path: path, Op: ingest.OpUpsert, Err: errors.New("store down")}
		}
	}
	i.ingested = append(i.ingested, string(data))
	return ingest.Result{DocID: "doc", Chunks: 1}, nil
}

type recorder struct {
	events []progress.Event
}

func (r *recorder) Emit(e progress.Event) { r.events = append(r.events, e) }

func (r *recorder) kinds(kind progress.Kind) []progress.Event {
	var out []progress.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	dir      string
	fetcher  *fakeFetcher
	dl       *fakeDownloader
	pages    fakePages
	cover    *fakeCover
	merger   *fakeMerger
	ingester *fakeIngester
}

func newFixture(t *testing.T, body []byte) *fixture {
	t.Helper()
	return &fixture{
		dir:      t.TempDir(),
		fetcher:  &fakeFetcher{body: body},
		dl:       &fakeDownloader{failLinks: map[string]bool{}},
		pages:    fakePages{empty: map[string]bool{}},
		cover:    &fakeCover{},
		merger:   &fakeMerger{},
		ingester: &fakeIngester{failTitles: map[string]bool{}},
	}
}

func (f *fixture) scraper() *Scraper {
	return New(Config{BaseURL: "https://siepe.test/anais", TempDir: f.dir}, Deps{
		Fetcher:    f.fetcher,
		Downloader: f.dl,
		Pages:      f.pages,
		Cover:      f.cover,
		Merger:     f.merger,
		Ingester:   f.ingester,
		Logger:     zap.NewNop(),
	})
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestScrapeAccountsForEveryItem(t *testing.T) {
	t.Parallel()

	f := newFixture(t, listingWith("Um", "Dois", "Tres", "Quatro", "Cinco"))
	f.dl.failLinks["https://siepe.test/pdf/1.pdf"] = true
	f.pages.empty["https://siepe.test/pdf/2.pdf"] = true
	f.ingester.failTitles["Quatro"] = true
	rec := &recorder{}

	summary, err := f.scraper().Scrape(context.Background(), target, nil, rec)
	require.NoError(t, err)
	require.Equal(t, "https://siepe.test/anais/2024/en/cic", summary.URL)
	require.Equal(t, 5, summary.Total)
	require.Equal(t, 2, summary.OK)
	require.Equal(t, 3, summary.Failed)
	require.Len(t, summary.Errors, 3)
	require.Equal(t, "Dois: connection reset", summary.Errors[0])
	require.True(t, strings.HasPrefix(summary.Errors[1], "Tres: corrupt source"))
	require.True(t, strings.HasPrefix(summary.Errors[2], "Quatro: ingest"))

	require.Len(t, rec.kinds(progress.KindPageStart), 1)
	require.Len(t, rec.kinds(progress.KindItemStart), 5)
	done := rec.kinds(progress.KindItemDone)
	require.Len(t, done, 5)
	for i, e := range done {
		require.Equal(t, i+1, e.Index)
		require.Equal(t, 5, e.Total)
	}
	require.Equal(t, progress.ItemOK, done[0].Status)
	require.Equal(t, progress.ItemError, done[1].Status)

	pageDone := rec.kinds(progress.KindPageDone)
	require.Len(t, pageDone, 1)
	require.Equal(t, 2, pageDone[0].OK)
	require.Equal(t, 3, pageDone[0].Failed)
	require.Equal(t, progress.KindPageDone, rec.events[len(rec.events)-1].Kind)

	requireEmptyDir(t, f.dir)
}

func TestScrapeCoverPrecedesSource(t *testing.T) {
	t.Parallel()

	f := newFixture(t, listingWith("Solos"))
	_, err := f.scraper().Scrape(context.Background(), target, nil, nil)
	require.NoError(t, err)

	require.Len(t, f.cover.lines, 1)
	require.Equal(t, []string{
		"Apresentador(a): P0",
		"Título: Solos",
		"Autores: A",
		"Orientador(a): O",
		"Evento: Congresso de Iniciação Científica",
		"Área: Engenharias",
		"Ano: 2024",
		"Link para PDF: https://siepe.test/pdf/0.pdf",
	}, f.cover.lines[0])

	require.Len(t, f.ingester.ingested, 1)
	require.True(t, strings.HasPrefix(f.ingester.ingested[0], "Apresentador(a): P0"))
	require.Contains(t, f.ingester.ingested[0], "https://siepe.test/pdf/0.pdf\n")
	requireEmptyDir(t, f.dir)
}

func TestScrapeTruncatesButReportsListedTotal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, listingWith("a", "b", "c"))
	rec := &recorder{}
	limit := 1
	summary, err := f.scraper().Scrape(context.Background(), target, &limit, rec)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Total)
	require.Equal(t, 1, summary.OK)
	require.Len(t, rec.kinds(progress.KindItemDone), 1)
	require.Equal(t, 3, rec.kinds(progress.KindPageStart)[0].Total)
}

func TestScrapeListingFailureIsIsolated(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.fetcher.err = errors.New("status 503")
	rec := &recorder{}

	summary, err := f.scraper().Scrape(context.Background(), target, nil, rec)
	require.NoError(t, err)
	require.Zero(t, summary.Total)
	require.Zero(t, summary.OK)
	require.Zero(t, summary.Failed)
	require.Contains(t, summary.Error, "status 503")
	require.Len(t, summary.Errors, 1)

	require.Len(t, rec.events, 1)
	require.Equal(t, progress.KindPageDone, rec.events[0].Kind)
	require.Contains(t, rec.events[0].Err, "status 503")
	require.Zero(t, rec.events[0].Total)
}

func TestScrapeEmptyListing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []byte("<html><p>Nenhum trabalho</p></html>"))
	rec := &recorder{}
	summary, err := f.scraper().Scrape(context.Background(), target, nil, rec)
	require.NoError(t, err)
	require.Zero(t, summary.Total)
	require.Len(t, rec.events, 2)
}

func TestScrapeStopsWhenContextEnds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, listingWith("a", "b"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.scraper().Scrape(ctx, target, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
	requireEmptyDir(t, f.dir)
}

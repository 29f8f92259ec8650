// Package scraper processes one listing page: every listed work is downloaded,
// given a metadata cover page and ingested.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/ingest"
	"github.com/JakeFAU/siepe-rag/internal/listing"
	"github.com/JakeFAU/siepe-rag/internal/metadata"
	"github.com/JakeFAU/siepe-rag/internal/progress"
	"github.com/JakeFAU/siepe-rag/internal/rag"
)

// Ingester stores a prepared document.
type Ingester interface {
	Ingest(ctx context.Context, path string) (ingest.Result, error)
}

// Config customizes where pages live and where temporary files go.
type Config struct {
	BaseURL string
	TempDir string
}

// Deps are the collaborators of a Scraper.
type Deps struct {
	Fetcher    rag.ListingFetcher
	Downloader rag.Downloader
	Pages      rag.PageCounter
	Cover      rag.CoverRenderer
	Merger     rag.Merger
	Ingester   Ingester
	Logger     *zap.Logger
}

// Scraper implements the per-page pipeline.
type Scraper struct {
	cfg  Config
	deps Deps
}

// New builds a Scraper.
func New(cfg Config, deps Deps) *Scraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = rag.DefaultListingBase
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Scraper{cfg: cfg, deps: deps}
}

// Scrape processes every item listed on target, up to maxItems when non-nil.
// Listing failures and per-item failures are recorded in the summary; the
// returned error is non-nil only when ctx ends mid-page.
func (s *Scraper) Scrape(ctx context.Context, target rag.PageTarget, maxItems *int, emit progress.Emitter) (rag.PageSummary, error) {
	if emit == nil {
		emit = progress.Discard
	}
	pageURL := target.URL(s.cfg.BaseURL)
	summary := rag.PageSummary{URL: pageURL, Errors: []string{}}

	items, err := s.list(ctx, pageURL)
	if err != nil {
		s.deps.Logger.Error("listing page failed", zap.String("url", pageURL), zap.Error(err))
		summary.Error = err.Error()
		summary.Errors = append(summary.Errors, err.Error())
		emit.Emit(progress.Event{Kind: progress.KindPageDone, Target: target, URL: pageURL, Err: err.Error()})
		return summary, nil
	}

	summary.Total = len(items)
	if maxItems != nil && *maxItems >= 0 && *maxItems < len(items) {
		items = items[:*maxItems]
	}
	emit.Emit(progress.Event{Kind: progress.KindPageStart, Target: target, URL: pageURL, Total: summary.Total})

	for idx, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("scrape %s: %w", pageURL, err)
		}
		evt := progress.Event{
			Target: target,
			URL:    pageURL,
			Title:  item.Title,
			Link:   item.Link,
			Index:  idx + 1,
			Total:  summary.Total,
		}
		evt.Kind = progress.KindItemStart
		emit.Emit(evt)

		evt.Kind = progress.KindItemDone
		if err := s.processItem(ctx, item, target); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", item.Title, err))
			evt.Status = progress.ItemError
			evt.Err = err.Error()
		} else {
			summary.OK++
			evt.Status = progress.ItemOK
		}
		emit.Emit(evt)
	}

	emit.Emit(progress.Event{
		Kind:   progress.KindPageDone,
		Target: target,
		URL:    pageURL,
		Total:  summary.Total,
		OK:     summary.OK,
		Failed: summary.Failed,
	})
	return summary, nil
}

func (s *Scraper) list(ctx context.Context, pageURL string) ([]rag.WorkItem, error) {
	body, err := s.deps.Fetcher.FetchListing(ctx, pageURL)
	if err != nil {
		return nil, &rag.FetchError{URL: pageURL, Err: err}
	}
	items, err := listing.Parse(body, pageURL)
	if err != nil {
		return nil, &rag.FetchError{URL: pageURL, Err: err}
	}
	return items, nil
}

// processItem downloads, verifies, covers, merges and ingests one work. Every
// temporary file it creates is removed before it returns.
func (s *Scraper) processItem(ctx context.Context, item rag.WorkItem, target rag.PageTarget) error {
	var temps []string
	defer func() {
		for _, p := range temps {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.deps.Logger.Warn("temp cleanup failed", zap.String("path", p), zap.Error(err))
			}
		}
	}()

	source, err := s.deps.Downloader.Download(ctx, item.Link, s.cfg.TempDir)
	if source != "" {
		temps = append(temps, source)
	}
	if err != nil {
		return err
	}
	if err := s.verify(ctx, source); err != nil {
		return err
	}

	cover, err := s.tempPath("cover-*.pdf")
	if err != nil {
		return err
	}
	temps = append(temps, cover)
	lines := metadata.CoverLines(metadata.ForItem(item, target))
	if err := s.deps.Cover.RenderCover(ctx, lines, cover); err != nil {
		return fmt.Errorf("render cover: %w", err)
	}

	merged, err := s.tempPath("merged-*.pdf")
	if err != nil {
		return err
	}
	temps = append(temps, merged)
	if err := s.deps.Merger.Merge(ctx, merged, cover, source); err != nil {
		return err
	}

	res, err := s.deps.Ingester.Ingest(ctx, merged)
	if err != nil {
		return err
	}
	s.deps.Logger.Debug("work ingested",
		zap.String("titulo", item.Title),
		zap.String("doc_id", res.DocID),
		zap.Int("chunks", res.Chunks),
	)
	return nil
}

func (s *Scraper) verify(ctx context.Context, path string) error {
	n, err := s.deps.Pages.PageCount(ctx, path)
	if err != nil {
		return &rag.CorruptSourceError{Path: path, Err: err}
	}
	if n < 1 {
		return &rag.CorruptSourceError{Path: path, Err: errors.New("document has no pages")}
	}
	return nil
}

// tempPath reserves a unique file name under the temp dir.
func (s *Scraper) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.cfg.TempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return filepath.Clean(name), nil
}

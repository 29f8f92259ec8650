// Package crawl walks the year, category and event grid of listing pages.
package crawl

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/progress"
	"github.com/JakeFAU/siepe-rag/internal/rag"
)

// PageScraper processes one listing page.
type PageScraper interface {
	Scrape(ctx context.Context, target rag.PageTarget, maxItems *int, emit progress.Emitter) (rag.PageSummary, error)
}

// Request narrows a full crawl. Empty slices select the whole catalog.
type Request struct {
	Years           []string
	Categories      []string
	Events          []string
	MaxItemsPerPage *int
}

// Orchestrator runs the scraper over every requested page.
type Orchestrator struct {
	scraper PageScraper
	baseURL string
	years   []string
	logger  *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithDefaultYears replaces DefaultYears for requests that name no years.
func WithDefaultYears(years []string) Option {
	return func(o *Orchestrator) {
		if len(years) > 0 {
			o.years = append([]string(nil), years...)
		}
	}
}

// WithBaseURL sets the listing root used to render page URLs in synthesized summaries.
func WithBaseURL(base string) Option {
	return func(o *Orchestrator) {
		o.baseURL = base
	}
}

// New builds an Orchestrator.
func New(scraper PageScraper, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{scraper: scraper, years: DefaultYears, logger: logger}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Targets expands req into page targets in year, category, event order.
func (o *Orchestrator) Targets(req Request) []rag.PageTarget {
	years := req.Years
	if len(years) == 0 {
		years = o.years
	}
	categories := resolve(Categories, req.Categories)
	events := resolve(Events, req.Events)

	targets := make([]rag.PageTarget, 0, len(years)*len(categories)*len(events))
	for _, year := range years {
		for _, c := range categories {
			for _, e := range events {
				targets = append(targets, rag.PageTarget{
					Year:         year,
					CategoryCode: c.Code,
					CategoryName: c.Name,
					EventCode:    e.Code,
					EventName:    e.Name,
				})
			}
		}
	}
	return targets
}

// CrawlAll scrapes every target of req. A page that fails outright is
// recorded and the crawl moves on. Only a finished ctx stops it early.
func (o *Orchestrator) CrawlAll(ctx context.Context, req Request, emit progress.Emitter) (rag.CrawlSummary, error) {
	summary := rag.CrawlSummary{Details: []rag.PageSummary{}}
	for _, target := range o.Targets(req) {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("crawl interrupted: %w", err)
		}
		summary.Add(o.CrawlOne(ctx, target, req.MaxItemsPerPage, emit))
	}
	o.logger.Info("crawl finished",
		zap.Int("total_paginas", summary.TotalPages),
		zap.Int("ok", summary.OK),
		zap.Int("falha", summary.Failed),
	)
	return summary, nil
}

// CrawlOne scrapes a single page. Catalog names are filled in for known codes.
func (o *Orchestrator) CrawlOne(ctx context.Context, target rag.PageTarget, maxItems *int, emit progress.Emitter) rag.PageSummary {
	if emit == nil {
		emit = progress.Discard
	}
	target = o.named(target)
	page, err := o.scrapeSafely(ctx, target, maxItems, emit)
	if err == nil {
		return page
	}
	o.logger.Error("page failed", zap.String("url", target.URL(o.baseURL)), zap.Error(err))
	emit.Emit(progress.Event{Kind: progress.KindPageDone, Target: target, URL: target.URL(o.baseURL), Err: err.Error()})
	return rag.PageSummary{
		URL:    target.URL(o.baseURL),
		Errors: []string{err.Error()},
		Error:  err.Error(),
	}
}

func (o *Orchestrator) scrapeSafely(ctx context.Context, target rag.PageTarget, maxItems *int, emit progress.Emitter) (page rag.PageSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page panic: %v", r)
		}
	}()
	return o.scraper.Scrape(ctx, target, maxItems, emit)
}

func (o *Orchestrator) named(t rag.PageTarget) rag.PageTarget {
	if t.CategoryName == "" {
		t.CategoryName = lookup(Categories, t.CategoryCode).Name
	}
	if t.EventName == "" {
		t.EventName = lookup(Events, t.EventCode).Name
	}
	return t
}

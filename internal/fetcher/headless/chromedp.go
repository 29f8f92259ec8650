// Package headless renders SIEPE listing pages in headless Chrome when the
// static HTML carries no data rows.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	defaultNavTimeout   = 45 * time.Second
	defaultWaitSelector = "table"
)

// ErrClosed is returned by FetchListing after Close.
var ErrClosed = errors.New("headless fetcher closed")

// StatusError reports a listing document answered with an HTTP error status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("headless fetch %s: status %d", e.URL, e.Status)
}

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel caps concurrent browser tabs. Zero means unbounded.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// WaitSelector must be present before the DOM is captured. Defaults to
	// the proceedings table.
	WaitSelector string
	// Settle is an extra pause after WaitSelector appears.
	Settle time.Duration
}

// Fetcher renders listings with chromedp. It satisfies rag.ListingFetcher.
type Fetcher struct {
	cfg     Config
	tabs    chan struct{}
	browser context.Context
	release context.CancelFunc
	closed  atomic.Bool
	logger  *zap.Logger
}

// NewChromedp starts a browser allocator. Chrome itself is launched lazily on
// the first fetch.
func NewChromedp(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.WaitSelector == "" {
		cfg.WaitSelector = defaultWaitSelector
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Fetcher{cfg: cfg, logger: logger}
	if cfg.MaxParallel > 0 {
		f.tabs = make(chan struct{}, cfg.MaxParallel)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
	)
	f.browser, f.release = chromedp.NewExecAllocator(context.Background(), opts...)
	return f, nil
}

// Close shuts the browser down. Fetches in flight are canceled.
func (f *Fetcher) Close() {
	if f.closed.CompareAndSwap(false, true) {
		f.release()
	}
}

// FetchListing navigates to url and returns the rendered DOM.
func (f *Fetcher) FetchListing(ctx context.Context, url string) ([]byte, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	done, err := f.openTab(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	tab, closeTab := chromedp.NewContext(f.browser)
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()
	tab, cancel := context.WithTimeout(tab, f.cfg.NavigationTimeout)
	defer cancel()

	var status atomic.Int64
	chromedp.ListenTarget(tab, func(ev any) {
		if code, ok := documentStatus(ev); ok {
			status.Store(code)
		}
	})

	start := time.Now()
	var html string
	if err := chromedp.Run(tab, f.tasks(url, &html)); err != nil {
		return nil, fmt.Errorf("render listing %s: %w", url, err)
	}
	if code := status.Load(); code >= 400 {
		return nil, &StatusError{URL: url, Status: int(code)}
	}
	f.logger.Debug("listing rendered",
		zap.String("url", url),
		zap.Int("bytes", len(html)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return []byte(html), nil
}

func (f *Fetcher) tasks(url string, html *string) chromedp.Tasks {
	tasks := chromedp.Tasks{
		chromedp.ActionFunc(f.prepareTab),
		chromedp.Navigate(url),
		chromedp.WaitReady(f.cfg.WaitSelector, chromedp.ByQuery),
	}
	if f.cfg.Settle > 0 {
		tasks = append(tasks, chromedp.Sleep(f.cfg.Settle))
	}
	return append(tasks, chromedp.OuterHTML("html", html, chromedp.ByQuery))
}

func (f *Fetcher) prepareTab(ctx context.Context) error {
	if err := network.Enable().Do(ctx); err != nil {
		return fmt.Errorf("enable network domain: %w", err)
	}
	if f.cfg.UserAgent == "" {
		return nil
	}
	if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
		return fmt.Errorf("set user-agent: %w", err)
	}
	return nil
}

// openTab reserves a tab slot and returns the func that frees it.
func (f *Fetcher) openTab(ctx context.Context) (func(), error) {
	if f.tabs == nil {
		return func() {}, nil
	}
	select {
	case f.tabs <- struct{}{}:
		return func() { <-f.tabs }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for browser tab: %w", ctx.Err())
	}
}

// documentStatus extracts the HTTP status of the main document response.
func documentStatus(ev any) (int64, bool) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return 0, false
	}
	return resp.Response.Status, true
}

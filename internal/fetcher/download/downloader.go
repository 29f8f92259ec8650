// Package download streams source PDFs to temporary files.
package download

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/metrics"
)

// Waiter gates outbound requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls timeouts for source downloads.
type Config struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Downloader implements rag.Downloader over net/http.
type Downloader struct {
	cfg    Config
	client *http.Client
	waiter Waiter
	logger *zap.Logger
}

// New builds a Downloader. waiter may be nil.
func New(cfg Config, waiter Waiter, logger *zap.Logger) *Downloader {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          20,
	}
	return &Downloader{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
		waiter: waiter,
		logger: logger,
	}
}

// Download fetches rawURL into a new *.pdf file under dir and returns its path.
// The file is removed when any step fails.
func (d *Downloader) Download(ctx context.Context, rawURL, dir string) (path string, err error) {
	if d.waiter != nil {
		if err := d.waiter.Wait(ctx, rawURL); err != nil {
			return "", err
		}
	}
	var written int64
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.ObserveDownload(rawURL, status, written)
	}()

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchdog := time.AfterFunc(d.cfg.ReadTimeout, cancel)
	defer watchdog.Stop()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, "*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	written, err = io.Copy(tmp, &idleReader{r: resp.Body, watchdog: watchdog, timeout: d.cfg.ReadTimeout})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	d.logger.Debug("source downloaded",
		zap.String("url", rawURL),
		zap.String("path", tmp.Name()),
		zap.Int64("bytes", written),
	)
	return tmp.Name(), nil
}

// idleReader resets the watchdog after every read that makes progress.
type idleReader struct {
	r        io.Reader
	watchdog *time.Timer
	timeout  time.Duration
}

func (i *idleReader) Read(p []byte) (int, error) {
	n, err := i.r.Read(p)
	if n > 0 {
		i.watchdog.Reset(i.timeout)
	}
	return n, err
}

// Package fetcher combines listing fetchers.
package fetcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/headless/detector"
	"github.com/JakeFAU/siepe-rag/internal/rag"
)

// Detector decides whether a statically fetched body needs a browser render.
type Detector interface {
	ShouldPromote(body []byte) bool
}

// reasoner is implemented by detectors that can name why they flagged a body.
type reasoner interface {
	Diagnose(body []byte) detector.Reason
}

// Promoting fetches with a primary fetcher and re-fetches with a headless one
// when the detector flags the body.
type Promoting struct {
	primary  rag.ListingFetcher
	headless rag.ListingFetcher
	detector Detector
	logger   *zap.Logger
}

// NewPromoting builds a Promoting fetcher. A nil headless fetcher disables promotion.
func NewPromoting(primary, headless rag.ListingFetcher, detector Detector, logger *zap.Logger) *Promoting {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{primary: primary, headless: headless, detector: detector, logger: logger}
}

// FetchListing implements rag.ListingFetcher.
func (p *Promoting) FetchListing(ctx context.Context, url string) ([]byte, error) {
	body, err := p.primary.FetchListing(ctx, url)
	if err != nil {
		return nil, err
	}
	if p.headless == nil || p.detector == nil || !p.detector.ShouldPromote(body) {
		return body, nil
	}
	p.logger.Debug("promoting listing to headless",
		zap.String("url", url),
		zap.String("reason", p.reason(body)),
	)
	rendered, err := p.headless.FetchListing(ctx, url)
	if err != nil {
		p.logger.Warn("headless fetch failed; using static body", zap.String("url", url), zap.Error(err))
		return body, nil
	}
	return rendered, nil
}

func (p *Promoting) reason(body []byte) string {
	if r, ok := p.detector.(reasoner); ok {
		return string(r.Diagnose(body))
	}
	return "detector"
}

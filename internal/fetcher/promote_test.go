package fetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/siepe-rag/internal/headless/detector"
)

type stubFetcher struct {
	body  []byte
	err   error
	calls int
}

func (s *stubFetcher) FetchListing(context.Context, string) ([]byte, error) {
	s.calls++
	return s.body, s.err
}

type stubDetector bool

func (d stubDetector) ShouldPromote([]byte) bool { return bool(d) }

func TestPromotingUsesPrimaryWhenStatic(t *testing.T) {
	t.Parallel()

	primary := &stubFetcher{body: []byte("static")}
	headless := &stubFetcher{body: []byte("rendered")}
	p := NewPromoting(primary, headless, stubDetector(false), nil)

	body, err := p.FetchListing(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, "static", string(body))
	require.Zero(t, headless.calls)
}

func TestPromotingRendersWhenFlagged(t *testing.T) {
	t.Parallel()

	primary := &stubFetcher{body: []byte("<div id=\"app\"></div>")}
	headless := &stubFetcher{body: []byte("rendered")}
	p := NewPromoting(primary, headless, stubDetector(true), nil)

	body, err := p.FetchListing(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, "rendered", string(body))
}

func TestPromotingFallsBackWhenHeadlessFails(t *testing.T) {
	t.Parallel()

	primary := &stubFetcher{body: []byte("static")}
	headless := &stubFetcher{err: errors.New("chrome not found")}
	p := NewPromoting(primary, headless, stubDetector(true), nil)

	body, err := p.FetchListing(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, "static", string(body))
}

func TestPromotingPropagatesPrimaryError(t *testing.T) {
	t.Parallel()

	primary := &stubFetcher{err: errors.New("dial tcp")}
	p := NewPromoting(primary, nil, stubDetector(true), nil)

	_, err := p.FetchListing(context.Background(), "https://example.com")
	require.EqualError(t, err, "dial tcp")
}

func TestPromotingLogsDetectorReason(t *testing.T) {
	t.Parallel()

	p := NewPromoting(&stubFetcher{}, &stubFetcher{}, detector.NewHeuristic(10, nil), nil)
	require.Equal(t, string(detector.ReasonEmpty), p.reason(nil))

	p = NewPromoting(&stubFetcher{}, &stubFetcher{}, stubDetector(true), nil)
	require.Equal(t, "detector", p.reason(nil))
}

package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const listingHTML = `<html><body><table><tr><th>Apresentador</th></tr></table></body></html>`

func TestFetchListingReturnsBody(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "siepe-rag-test", Timeout: 5 * time.Second}, zap.NewNop())
	body, err := f.FetchListing(context.Background(), srv.URL+"/siepe/anais/2024/en/cic")
	require.NoError(t, err)
	require.Equal(t, listingHTML, string(body))
	require.Equal(t, "siepe-rag-test", gotUA)

	// The same page can be fetched again by a later job.
	body, err = f.FetchListing(context.Background(), srv.URL+"/siepe/anais/2024/en/cic")
	require.NoError(t, err)
	require.NotEmpty(t, body)
}

func TestFetchListingFailsOnHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second}, nil)
	_, err := f.FetchListing(context.Background(), srv.URL)
	require.ErrorContains(t, err, "404")
}

func TestFetchListingHonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{Timeout: 5 * time.Second}, nil)
	_, err := f.FetchListing(ctx, srv.URL)
	require.ErrorIs(t, err, context.Canceled)
}

func TestConfigureHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	hooks := &stubHooks{}
	var (
		body     []byte
		fetchErr error
	)
	f.configureHooks(hooks, &body, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{Body: []byte("<table></table>")})
	require.Equal(t, "<table></table>", string(body))

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("Bad Gateway"))
	require.EqualError(t, fetchErr, "status 502: Bad Gateway")

	hooks.onError(nil, errors.New("dial tcp: refused"))
	require.EqualError(t, fetchErr, "dial tcp: refused")
}

func TestBuildCollectorAppliesConfig(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "ua", RespectRobots: true}, nil)
	c := f.buildCollector()
	require.Equal(t, "ua", c.UserAgent)
	require.False(t, c.IgnoreRobotsTxt)
	require.True(t, c.AllowURLRevisit)
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }

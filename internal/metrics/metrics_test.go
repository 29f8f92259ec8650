package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://cti.ufpel.edu.br/siepe", "cti.ufpel.edu.br"},
		{"standard https", "https://CTI.ufpel.edu.br/path", "cti.ufpel.edu.br"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if documentsIngestedTotal == nil || chunksStoredTotal == nil || downloadsTotal == nil ||
		queriesTotal == nil || httpRequestsTotal == nil || rateLimitDelaysSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveIngest(t *testing.T) {
	Init()
	before := testutil.ToFloat64(documentsIngestedTotal.WithLabelValues("ok"))
	chunksBefore := testutil.ToFloat64(chunksStoredTotal)

	ObserveIngest("ok", 3)
	ObserveIngest("ok", 0)

	if got := testutil.ToFloat64(documentsIngestedTotal.WithLabelValues("ok")) - before; got != 2 {
		t.Errorf("expected 2 ingested documents, got %f", got)
	}
	if got := testutil.ToFloat64(chunksStoredTotal) - chunksBefore; got != 3 {
		t.Errorf("expected 3 stored chunks, got %f", got)
	}
}

func TestObserveDownloadAndQuery(t *testing.T) {
	Init()
	ObserveDownload("https://cti.ufpel.edu.br/a.pdf", "ok", 1024)
	ObserveQuery("no_hits")
	ObserveRateLimitDelay("cti.ufpel.edu.br", 250*time.Millisecond)

	if got := testutil.ToFloat64(downloadBytesTotal.WithLabelValues("cti.ufpel.edu.br")); got < 1024 {
		t.Errorf("expected download bytes to be recorded, got %f", got)
	}
	if got := testutil.ToFloat64(queriesTotal.WithLabelValues("no_hits")); got < 1 {
		t.Errorf("expected query outcome to be recorded, got %f", got)
	}
	if got := testutil.CollectAndCount(rateLimitDelaysSeconds); got <= 0 {
		t.Errorf("expected rate limit histogram to be observed, got %d", got)
	}
}

// Package detector decides when a listing page must be re-fetched with a browser.
package detector

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
)

// Reason names why a listing was flagged for a browser render.
type Reason string

// Promotion reasons. ReasonNone means the static body is usable.
const (
	ReasonNone        Reason = ""
	ReasonEmpty       Reason = "empty_body"
	ReasonUnparseable Reason = "unparseable"
	ReasonSPAShell    Reason = "spa_shell"
	ReasonScriptHeavy Reason = "script_heavy"
	ReasonNoRows      Reason = "no_rows"
)

// DefaultSelectors must all match in a statically served listing.
var DefaultSelectors = []string{"table tr td a[href]"}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// scriptSharePercent is the share of a short body taken by inline script
// above which the page is treated as client rendered.
const scriptSharePercent = 25

// Heuristic flags listings that arrive without their table rows.
type Heuristic struct {
	// MinBodyBytes is the size below which script-heavy bodies are suspect.
	MinBodyBytes int
	Selectors    []string
}

// NewHeuristic creates a detector. A zero minBody defaults to 2 KiB and nil
// selectors use DefaultSelectors.
func NewHeuristic(minBody int, selectors []string) *Heuristic {
	if minBody == 0 {
		minBody = 2048
	}
	if selectors == nil {
		selectors = DefaultSelectors
	}
	return &Heuristic{MinBodyBytes: minBody, Selectors: selectors}
}

// Diagnose returns why body needs a browser render, or ReasonNone.
func (h *Heuristic) Diagnose(body []byte) Reason {
	if h == nil {
		return ReasonNone
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return ReasonEmpty
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return ReasonSPAShell
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ReasonUnparseable
	}
	if len(body) < h.MinBodyBytes && scriptShare(doc, len(body)) >= scriptSharePercent {
		return ReasonScriptHeavy
	}
	for _, sel := range h.Selectors {
		if sel != "" && doc.Find(sel).Length() == 0 {
			return ReasonNoRows
		}
	}
	return ReasonNone
}

// ShouldPromote reports whether Diagnose flags body.
func (h *Heuristic) ShouldPromote(body []byte) bool {
	return h.Diagnose(body) != ReasonNone
}

// scriptShare is the percentage of total bytes held by inline scripts.
// External scripts count their src attribute only.
func scriptShare(doc *goquery.Document, total int) int {
	if total == 0 {
		return 0
	}
	size := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		size += len(s.Text())
		if src, ok := s.Attr("src"); ok {
			size += len(src)
		}
	})
	return size * 100 / total
}

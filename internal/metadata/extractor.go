// Package metadata extracts labeled fields from a document's first page and
// renders the cover-page text those fields are read back from.
package metadata

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/siepe-rag/internal/rag"
)

type field struct {
	key     string
	label   string
	pattern *regexp.Regexp
}

// fields is ordered as the lines of a cover page.
var fields = []field{
	{rag.FieldPresenter, "Apresentador(a)", regexp.MustCompile(`(?i)Apresentador\(a\):[ \t]*(.+)`)},
	{rag.FieldTitle, "Título", regexp.MustCompile(`(?i)T[íi]tulo:[ \t]*(.+)`)},
	{rag.FieldAuthors, "Autores", regexp.MustCompile(`(?i)Autores?:[ \t]*(.+)`)},
	{rag.FieldAdvisor, "Orientador(a)", regexp.MustCompile(`(?i)Orientador\(a\):[ \t]*(.+)`)},
	{rag.FieldEvent, "Evento", regexp.MustCompile(`(?i)Evento:[ \t]*(.+)`)},
	// RE2's \b is ASCII only and never fires before "Á".
	{rag.FieldArea, "Área", regexp.MustCompile(`(?im)(?:^|[^\p{L}\p{N}_])[ÁA]rea:[ \t]*(.+)`)},
	{rag.FieldYear, "Ano", regexp.MustCompile(`(?i)Ano:[ \t]*(\d{4})`)},
	{rag.FieldLink, "Link para PDF", regexp.MustCompile(`(?i)Link[ \t]*para[ \t]*PDF:[ \t]*(https?://\S+)`)},
}

// Extract pulls every recognised "Label: value" field out of text. Fields
// without a match are left out of the result.
func Extract(text string) rag.Metadata {
	var m rag.Metadata
	for _, f := range fields {
		match := f.pattern.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}
		m.Set(f.key, match[1])
	}
	return m
}

// CoverLines renders m as one "Label: value" line per field, in cover order.
// Missing fields keep their label with an empty value.
func CoverLines(m rag.Metadata) []string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		v, _ := m.Get(f.key)
		lines = append(lines, f.label+": "+v)
	}
	return lines
}

// CoverText joins CoverLines with newlines.
func CoverText(m rag.Metadata) string {
	return strings.Join(CoverLines(m), "\n")
}

// ForItem builds the cover metadata for one listing row on target.
func ForItem(item rag.WorkItem, target rag.PageTarget) rag.Metadata {
	var m rag.Metadata
	m.Set(rag.FieldPresenter, item.Presenter)
	m.Set(rag.FieldTitle, item.Title)
	m.Set(rag.FieldAuthors, item.Authors)
	m.Set(rag.FieldAdvisor, item.Advisor)
	m.Set(rag.FieldEvent, target.EventName)
	m.Set(rag.FieldArea, target.CategoryName)
	m.Set(rag.FieldYear, target.Year)
	m.Set(rag.FieldLink, item.Link)
	return m
}

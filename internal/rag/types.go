package rag

import (
	"fmt"
	"strings"
	"time"
)

// Payload keys written alongside every stored chunk.
const (
	FieldPresenter  = "apresentador"
	FieldTitle      = "titulo"
	FieldAuthors    = "autores"
	FieldAdvisor    = "orientador"
	FieldEvent      = "evento"
	FieldArea       = "area"
	FieldYear       = "ano"
	FieldLink       = "link"
	FieldDocID      = "doc_id"
	FieldChunkIndex = "chunk_index"
	FieldContent    = "content"
	FieldArchiveURI = "archive_uri"
)

// DefaultListingBase is the root of the proceedings listing pages.
const DefaultListingBase = "https://cti.ufpel.edu.br/siepe/anais"

// Metadata holds the optional labeled fields of one source document. Absent
// fields are never stored, so an empty value is indistinguishable from a
// missing one.
type Metadata struct {
	fields map[string]string
}

// NewMetadata copies the non-empty entries of fields into a Metadata.
func NewMetadata(fields map[string]string) Metadata {
	var m Metadata
	for k, v := range fields {
		m.Set(k, v)
	}
	return m
}

// Set stores value under key. Blank values are ignored.
func (m *Metadata) Set(key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if m.fields == nil {
		m.fields = make(map[string]string)
	}
	m.fields[key] = value
}

// Get returns the value for key and whether it was present.
func (m Metadata) Get(key string) (string, bool) {
	v, ok := m.fields[key]
	return v, ok
}

// Len reports how many fields are present.
func (m Metadata) Len() int {
	return len(m.fields)
}

// Map returns a copy of the present fields.
func (m Metadata) Map() map[string]string {
	out := make(map[string]string, len(m.fields))
	for k, v := range m.fields {
		out[k] = v
	}
	return out
}

// WorkItem is one row of a listing page.
type WorkItem struct {
	Presenter string `json:"apresentador"`
	Title     string `json:"titulo"`
	Authors   string `json:"autores"`
	Advisor   string `json:"orientador"`
	Link      string `json:"link_pdf"`
}

// PageTarget identifies one listing page.
type PageTarget struct {
	Year         string `json:"ano"`
	CategoryCode string `json:"area_code"`
	CategoryName string `json:"area_nome"`
	EventCode    string `json:"evento_code"`
	EventName    string `json:"evento_nome"`
}

// URL renders the listing page address below base.
func (t PageTarget) URL(base string) string {
	if base == "" {
		base = DefaultListingBase
	}
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(base, "/"), t.Year, t.CategoryCode, t.EventCode)
}

// Chunk is a bounded slice of a document's text.
type Chunk struct {
	Index    int
	Text     string
	Metadata Metadata
}

// Point is the stored retrieval unit: one embedded chunk plus its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// Hit is one ranked search result.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// Filter is an equality-AND condition set over payload fields.
type Filter map[string]string

// Matches reports whether payload satisfies every condition.
func (f Filter) Matches(payload map[string]string) bool {
	for k, v := range f {
		if payload[k] != v {
			return false
		}
	}
	return true
}

// PageSummary reports the outcome of scraping one listing page.
type PageSummary struct {
	URL    string   `json:"url"`
	Total  int      `json:"total_listados"`
	OK     int      `json:"ok"`
	Failed int      `json:"falha"`
	Errors []string `json:"erros"`
	// Error is set when the page itself could not be processed.
	Error string `json:"error,omitempty"`
}

// CrawlSummary aggregates the page summaries of a multi-page crawl.
type CrawlSummary struct {
	TotalPages int           `json:"total_paginas"`
	OK         int           `json:"ok"`
	Failed     int           `json:"falha"`
	Details    []PageSummary `json:"detalhes"`
}

// Add folds one page into the aggregate.
func (s *CrawlSummary) Add(page PageSummary) {
	s.TotalPages++
	s.OK += page.OK
	s.Failed += page.Failed
	s.Details = append(s.Details, page)
}

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values.
const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// SinglePage narrows a crawl to one listing page.
type SinglePage struct {
	Year     string `json:"ano"`
	Category string `json:"area"`
	Event    string `json:"evento"`
}

// JobParameters captures what a client asked the crawl to cover.
type JobParameters struct {
	Years           []string    `json:"anos,omitempty"`
	Categories      []string    `json:"areas,omitempty"`
	Events          []string    `json:"eventos,omitempty"`
	MaxItemsPerPage *int        `json:"max_itens_por_pagina,omitempty"`
	OnlyPage        *SinglePage `json:"somente_esta_pagina,omitempty"`
}

// JobCounters tracks item outcomes.
type JobCounters struct {
	OK     int `json:"ok"`
	Failed int `json:"falha"`
}

// JobPages tracks finished listing pages.
type JobPages struct {
	Done int `json:"done"`
}

// PageProgress describes the page currently being scraped.
type PageProgress struct {
	PageTarget
	URL     string `json:"url"`
	Total   int    `json:"total"`
	Started bool   `json:"started"`
}

// ItemProgress describes the most recent item touched by a job.
type ItemProgress struct {
	PageTarget
	Status string `json:"status,omitempty"`
	Title  string `json:"titulo"`
	Link   string `json:"link_pdf"`
	Index  int    `json:"idx"`
	Total  int    `json:"total"`
}

// JobError records one failed item.
type JobError struct {
	Year         string `json:"ano"`
	CategoryCode string `json:"area_code"`
	EventCode    string `json:"evento_code"`
	Title        string `json:"titulo"`
	Message      string `json:"msg"`
}

// JobResult is the final summary attached to a finished job. Exactly one
// field is set, depending on whether the job covered one page or many.
type JobResult struct {
	Page  *PageSummary  `json:"page,omitempty"`
	Crawl *CrawlSummary `json:"crawl,omitempty"`
}

// Job is the pollable snapshot of one asynchronous crawl.
type Job struct {
	ID          string        `json:"job_id"`
	Status      JobStatus     `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Params      JobParameters `json:"params"`
	Counters    JobCounters   `json:"counters"`
	Pages       JobPages      `json:"pages"`
	CurrentPage *PageProgress `json:"current_page,omitempty"`
	LastItem    *ItemProgress `json:"last_item,omitempty"`
	LastOKItem  *ItemProgress `json:"last_ok_item,omitempty"`
	Errors      []JobError    `json:"errors"`
	Error       string        `json:"error,omitempty"`
	Result      *JobResult    `json:"result,omitempty"`
}

// CompletionRequest is the input to a text-completion call.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Stop        []string
}

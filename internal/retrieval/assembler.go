package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/metrics"
	"github.com/JakeFAU/siepe-rag/internal/rag"
)

// Fixed answer texts.
const (
	NoContentAnswer = "Desculpe, não encontrei conteúdo relevante."
	RefusalSentence = "Não encontrei essa informação nos documentos fornecidos."
)

// Query outcomes reported to metrics.
const (
	outcomeOK         = "ok"
	outcomeEmpty      = "empty"
	outcomeNoHits     = "no_hits"
	outcomeGeneration = "generation_error"
	outcomeError      = "error"
)

// Extractor turns a question into a refined query and filters.
type Extractor interface {
	Extract(ctx context.Context, question string) Extraction
}

// Question is one retrieval request.
type Question struct {
	Text    string
	Filters rag.Filter
	TopK    int
}

// Source describes one retrieved chunk for display.
type Source struct {
	Title   string `json:"titulo"`
	Authors string `json:"autores"`
	Year    string `json:"ano"`
	Event   string `json:"evento"`
	Area    string `json:"area"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Answer is the generated reply and the sources it drew on.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Config tunes context assembly and generation.
type Config struct {
	MinResults   int
	ContextChars int
	SnippetChars int
	MaxTokens    int
	Temperature  float64
}

// DefaultConfig holds the production settings.
func DefaultConfig() Config {
	return Config{
		MinResults:   3,
		ContextChars: 1200,
		SnippetChars: 200,
		MaxTokens:    512,
		Temperature:  0.2,
	}
}

// Assembler runs extract, embed, search, assemble and generate.
type Assembler struct {
	cfg       Config
	extractor Extractor
	embedder  rag.Embedder
	store     rag.VectorStore
	completer rag.Completer
	logger    *zap.Logger
}

// NewAssembler builds an Assembler. Zero Config fields take DefaultConfig
// values, except Temperature: zero is kept and only a negative value takes
// the default.
func NewAssembler(
	cfg Config,
	extractor Extractor,
	embedder rag.Embedder,
	store rag.VectorStore,
	completer rag.Completer,
	logger *zap.Logger,
) *Assembler {
	def := DefaultConfig()
	if cfg.MinResults <= 0 {
		cfg.MinResults = def.MinResults
	}
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = def.ContextChars
	}
	if cfg.SnippetChars <= 0 {
		cfg.SnippetChars = def.SnippetChars
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = def.Temperature
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		cfg:       cfg,
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		completer: completer,
		logger:    logger,
	}
}

// Answer produces a grounded answer for q.
func (a *Assembler) Answer(ctx context.Context, q Question) (Answer, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		metrics.ObserveQuery(outcomeEmpty)
		return Answer{}, rag.ErrEmptyQuery
	}

	ext := a.extractor.Extract(ctx, text)
	query := strings.TrimSpace(ext.Query)
	if query == "" {
		query = text
	}
	vec, err := a.embedder.Embed(ctx, query, true)
	if err != nil {
		metrics.ObserveQuery(outcomeError)
		return Answer{}, fmt.Errorf("embed query: %w", err)
	}

	filter := mergeFilters(q.Filters, ext.Filters)
	limit := max(a.cfg.MinResults, q.TopK)
	hits, err := a.store.Search(ctx, vec, filter, limit)
	if err != nil {
		metrics.ObserveQuery(outcomeError)
		return Answer{}, fmt.Errorf("search: %w", err)
	}
	a.logger.Debug("retrieved",
		zap.String("query", query),
		zap.Int("filters", len(filter)),
		zap.Bool("degraded", ext.Degraded),
		zap.Int("hits", len(hits)),
	)
	if len(hits) == 0 {
		metrics.ObserveQuery(outcomeNoHits)
		return Answer{Text: NoContentAnswer, Sources: []Source{}}, nil
	}

	blocks := make([]string, 0, len(hits))
	sources := make([]Source, 0, len(hits))
	for i, hit := range hits {
		src, block := a.describe(i+1, hit.Payload)
		blocks = append(blocks, block)
		sources = append(sources, src)
	}

	reply, err := a.completer.Complete(ctx, rag.CompletionRequest{
		Prompt:      buildPrompt(blocks, text),
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		Stop:        []string{"Pergunta:"},
	})
	if err != nil {
		metrics.ObserveQuery(outcomeGeneration)
		return Answer{}, &rag.GenerationError{Err: err}
	}
	metrics.ObserveQuery(outcomeOK)
	return Answer{Text: strings.TrimSpace(reply), Sources: sources}, nil
}

// mergeFilters starts from manual and lets extracted values override.
func mergeFilters(manual, extracted rag.Filter) rag.Filter {
	if len(manual) == 0 && len(extracted) == 0 {
		return nil
	}
	out := make(rag.Filter, len(manual)+len(extracted))
	for k, v := range manual {
		out[k] = v
	}
	for k, v := range extracted {
		out[k] = v
	}
	return out
}

func (a *Assembler) describe(n int, payload map[string]string) (Source, string) {
	field := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(payload[k]); v != "" {
				return v
			}
		}
		return ""
	}
	content := strings.TrimSpace(payload[rag.FieldContent])
	src := Source{
		Title:   field(rag.FieldTitle, "title"),
		Authors: field(rag.FieldAuthors),
		Year:    field(rag.FieldYear, "year"),
		Event:   field(rag.FieldEvent),
		Area:    field(rag.FieldArea),
		Link:    field(rag.FieldLink, "link_pdf"),
		Snippet: truncate(content, a.cfg.SnippetChars, "..."),
	}
	if src.Title == "" {
		src.Title = "Documento"
	}
	if src.Authors == "" {
		src.Authors = "Desconhecido"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[DOC %d]\n", n)
	fmt.Fprintf(&b, "Título: %s\n", src.Title)
	fmt.Fprintf(&b, "Autores: %s\n", src.Authors)
	if advisor := field(rag.FieldAdvisor); advisor != "" {
		fmt.Fprintf(&b, "Orientador(a): %s\n", advisor)
	}
	fmt.Fprintf(&b, "Ano: %s\n", src.Year)
	fmt.Fprintf(&b, "Evento: %s\n", src.Event)
	if src.Area != "" {
		fmt.Fprintf(&b, "Área: %s\n", src.Area)
	}
	fmt.Fprintf(&b, "Link: %s\n", src.Link)
	fmt.Fprintf(&b, "Trecho:\n%s\n", truncate(content, a.cfg.ContextChars, ""))
	fmt.Fprintf(&b, "[/DOC %d]", n)
	return src, b.String()
}

func buildPrompt(blocks []string, question string) string {
	var b strings.Builder
	b.WriteString("Você é um assistente que responde perguntas sobre trabalhos acadêmicos do SIEPE.\n")
	b.WriteString("Use APENAS as informações dos documentos entre [DOC n] e [/DOC n] abaixo. Não invente informações.\n")
	b.WriteString("Responda em HTML válido usando somente as tags <p>, <ul>, <li>, <a>, <strong>, <em> e <br>.\n")
	b.WriteString("Se a resposta não puder ser obtida dos documentos, responda exatamente: ")
	b.WriteString(RefusalSentence)
	b.WriteString("\n\nDocumentos:\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString("\n\nPergunta: ")
	b.WriteString(question)
	b.WriteString("\nResposta (HTML):")
	return b.String()
}

// truncate cuts s to at most n runes. When it cuts, suffix is appended and
// counts toward n.
func truncate(s string, n int, suffix string) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	keep := n - len([]rune(suffix))
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + suffix
}

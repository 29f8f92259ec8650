// Package retrieval answers questions from the stored corpus: it extracts
// structured filters from the question, searches the vector store and asks
// the completion model for a grounded answer.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/rag"
)

// FilterKeys are the payload fields a question may be filtered on.
var FilterKeys = []string{
	rag.FieldTitle,
	rag.FieldAuthors,
	rag.FieldAdvisor,
	rag.FieldYear,
	rag.FieldEvent,
	rag.FieldArea,
}

var yearPattern = regexp.MustCompile(`^\d{4}$`)

const extractionPrompt = `Você extrai filtros de busca de perguntas sobre trabalhos acadêmicos do SIEPE.
Responda SOMENTE com um objeto JSON no formato:
{"filters": {...}, "query_refinada": "..."}
Campos permitidos em "filters": titulo, autores, orientador, ano, evento, area.
"ano" deve ter exatamente quatro dígitos. Omita campos que a pergunta não menciona.
"query_refinada" é a pergunta reescrita sem os filtros, pronta para busca semântica.

Pergunta: Quais trabalhos sobre irrigação foram apresentados em 2019?
JSON: {"filters": {"ano": "2019"}, "query_refinada": "trabalhos sobre irrigação"}

Pergunta: O que a professora Maria Silva orientou na área de Engenharias?
JSON: {"filters": {"orientador": "Maria Silva", "area": "Engenharias"}, "query_refinada": "trabalhos orientados"}

Pergunta: Explique o uso de aprendizado de máquina em diagnósticos médicos.
JSON: {"filters": {}, "query_refinada": "aprendizado de máquina em diagnósticos médicos"}

Pergunta: %s
JSON:`

// Extraction is the outcome of filter extraction. Degraded marks the fallback
// where the question is used verbatim with no filters.
type Extraction struct {
	Query    string
	Filters  rag.Filter
	Degraded bool
	Reason   string
}

// FilterExtractor asks the completion model to split a question into a
// refined query and equality filters.
type FilterExtractor struct {
	completer rag.Completer
	logger    *zap.Logger
	maxTokens int
}

// NewFilterExtractor builds a FilterExtractor.
func NewFilterExtractor(completer rag.Completer, logger *zap.Logger) *FilterExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterExtractor{completer: completer, logger: logger, maxTokens: 256}
}

// Extract never fails; any problem yields a degraded Extraction.
func (e *FilterExtractor) Extract(ctx context.Context, question string) Extraction {
	reply, err := e.completer.Complete(ctx, rag.CompletionRequest{
		Prompt:      fmt.Sprintf(extractionPrompt, question),
		MaxTokens:   e.maxTokens,
		Temperature: 0,
		Stop:        []string{"\nPergunta:"},
	})
	if err != nil {
		return e.degrade(question, fmt.Sprintf("completion failed: %v", err))
	}
	ext, err := parseExtraction(reply, question)
	if err != nil {
		return e.degrade(question, err.Error())
	}
	return ext
}

func (e *FilterExtractor) degrade(question, reason string) Extraction {
	e.logger.Debug("filter extraction degraded", zap.String("reason", reason))
	return Extraction{Query: question, Filters: rag.Filter{}, Degraded: true, Reason: reason}
}

type extractionReply struct {
	Filters map[string]json.RawMessage `json:"filters"`
	Query   *string                    `json:"query_refinada"`
}

func parseExtraction(reply, question string) (Extraction, error) {
	raw, ok := firstJSONObject(stripFences(reply))
	if !ok {
		return Extraction{}, fmt.Errorf("no JSON object in reply")
	}
	var parsed extractionReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Extraction{}, fmt.Errorf("decode reply: %w", err)
	}
	if parsed.Filters == nil || parsed.Query == nil {
		return Extraction{}, fmt.Errorf("reply lacks filters or query_refinada")
	}

	filters := rag.Filter{}
	for _, key := range FilterKeys {
		rawValue, ok := parsed.Filters[key]
		if !ok {
			continue
		}
		value, ok := scalar(rawValue)
		if !ok {
			continue
		}
		if key == rag.FieldYear && !yearPattern.MatchString(value) {
			continue
		}
		filters[key] = value
	}

	query := strings.TrimSpace(*parsed.Query)
	if query == "" {
		query = question
	}
	return Extraction{Query: query, Filters: filters}, nil
}

// scalar accepts JSON strings and numbers, trimmed and non-empty.
func scalar(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	return strings.ReplaceAll(s, "```", "")
}

// firstJSONObject returns the first balanced {...} span that decodes as JSON.
func firstJSONObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end, ok := matchBrace(s, start); ok {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

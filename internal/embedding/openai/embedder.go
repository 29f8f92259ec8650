// Package openai embeds text through an OpenAI-compatible embeddings API
// (text-embeddings-inference, llama.cpp, vLLM or OpenAI itself) using
// langchaingo.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Config selects the embedding endpoint and model.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	// Dimension is the expected vector length. Zero adopts the length of the
	// first embedding returned; either way it is fixed for the Embedder's
	// lifetime.
	Dimension int
}

// ErrDimensionMismatch reports a vector whose length differs from the fixed
// dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder implements rag.Embedder.
type Embedder struct {
	embedder embeddings.Embedder
	e5       bool
	dim      atomic.Int64
	logger   *zap.Logger
}

// New builds an Embedder. Local servers that ignore authentication may
// leave APIKey empty.
func New(cfg Config, logger *zap.Logger) (*Embedder, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("embedding.base_url is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("embedding.model is required")
	}
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	if cfg.Dimension < 0 {
		return nil, errors.New("embedding.dimension must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Embedder{
		embedder: embedder,
		e5:       usesE5Prefixes(cfg.Model),
		logger:   logger,
	}
	e.dim.Store(int64(cfg.Dimension))
	return e, nil
}

// Dimension reports the fixed vector length, or zero before the first
// embedding when none was configured.
func (e *Embedder) Dimension() int {
	return int(e.dim.Load())
}

func (e *Embedder) checkDimension(n int) error {
	if e.dim.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := e.dim.Load(); int64(n) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, n, want)
	}
	return nil
}

// usesE5Prefixes reports whether model expects "query: "/"passage: " markers.
func usesE5Prefixes(model string) bool {
	return strings.Contains(strings.ToLower(model), "multilingual-e5")
}

// Embed returns the vector for text. Queries and passages are marked
// differently for models trained with asymmetric prefixes.
func (e *Embedder) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	if e.e5 {
		if isQuery {
			text = "query: " + text
		} else {
			text = "passage: " + text
		}
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errors.New("embed text: empty embedding returned")
	}
	if err := e.checkDimension(len(vectors[0])); err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	e.logger.Debug("embedded text", zap.Int("chars", len(text)), zap.Int("dims", len(vectors[0])), zap.Bool("query", isQuery))
	return vectors[0], nil
}

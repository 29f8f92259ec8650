// Package qdrant implements rag.VectorStore against the Qdrant REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/siepe-rag/internal/rag"
)

const defaultCollection = "articles"

// Config holds the connection parameters.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// Store talks to one Qdrant collection.
type Store struct {
	baseURL    string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

// New validates cfg and returns a Store.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("vectorstore.qdrant.url is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("parse qdrant url: %w", err)
	}
	collection := cfg.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type point struct {
	ID      string            `json:"id"`
	Vector  []float32         `json:"vector"`
	Payload map[string]string `json:"payload"`
}

type matchValue struct {
	Value string `json:"value"`
}

type condition struct {
	Key   string     `json:"key"`
	Match matchValue `json:"match"`
}

type filter struct {
	Must []condition `json:"must"`
}

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
	Filter      *filter   `json:"filter,omitempty"`
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float32         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

type searchResponse struct {
	Result []scoredPoint `json:"result"`
}

// EnsureCollection creates the collection with cosine distance when missing.
func (s *Store) EnsureCollection(ctx context.Context) error {
	status, _, err := s.do(ctx, http.MethodGet, s.collectionPath(), nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if s.dimension <= 0 {
		return fmt.Errorf("vector dimension must be > 0 to create collection %s", s.collection)
	}
	body := map[string]any{
		"vectors": map[string]any{"size": s.dimension, "distance": "Cosine"},
	}
	if _, _, err := s.do(ctx, http.MethodPut, s.collectionPath(), body); err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert implements rag.VectorStore.
func (s *Store) Upsert(ctx context.Context, points []rag.Point) error {
	if len(points) == 0 {
		return nil
	}
	body := struct {
		Points []point `json:"points"`
	}{Points: make([]point, 0, len(points))}
	for _, p := range points {
		body.Points = append(body.Points, point{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
	}
	if _, _, err := s.do(ctx, http.MethodPut, s.collectionPath()+"/points?wait=true", body); err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search implements rag.VectorStore.
func (s *Store) Search(ctx context.Context, vector []float32, f rag.Filter, limit int) ([]rag.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	req := searchRequest{Vector: vector, Limit: limit, WithPayload: true}
	if len(f) > 0 {
		req.Filter = &filter{}
		for k, v := range f {
			req.Filter.Must = append(req.Filter.Must, condition{Key: k, Match: matchValue{Value: v}})
		}
	}
	_, raw, err := s.do(ctx, http.MethodPost, s.collectionPath()+"/points/search", req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	hits := make([]rag.Hit, 0, len(resp.Result))
	for _, sp := range resp.Result {
		hits = append(hits, rag.Hit{
			ID:      strings.Trim(string(sp.ID), `"`),
			Score:   sp.Score,
			Payload: stringify(sp.Payload),
		})
	}
	return hits, nil
}

func (s *Store) collectionPath() string {
	return "/collections/" + url.PathEscape(s.collection)
}

func (s *Store) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, raw, fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return resp.StatusCode, raw, nil
}

// stringify flattens payload values written by other clients, which may
// store numbers (e.g. chunk_index) natively.
func stringify(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			if b, err := json.Marshal(val); err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}

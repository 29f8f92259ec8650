// Package memory implements an in-process vector store using brute-force
// cosine similarity.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/JakeFAU/siepe-rag/internal/rag"
)

// Store keeps points in a map keyed by id.
type Store struct {
	mu     sync.RWMutex
	points map[string]rag.Point
	dim    int
}

// New returns an empty Store.
func New() *Store {
	return &Store{points: make(map[string]rag.Point)}
}

// Upsert implements rag.VectorStore. The first point fixes the dimension.
func (s *Store) Upsert(_ context.Context, points []rag.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point id is required")
		}
		if s.dim == 0 {
			s.dim = len(p.Vector)
		}
		if len(p.Vector) != s.dim {
			return fmt.Errorf("point %s: vector dimension %d, want %d", p.ID, len(p.Vector), s.dim)
		}
	}
	for _, p := range points {
		stored := rag.Point{
			ID:      p.ID,
			Vector:  append([]float32(nil), p.Vector...),
			Payload: copyPayload(p.Payload),
		}
		s.points[p.ID] = stored
	}
	return nil
}

// Search implements rag.VectorStore.
func (s *Store) Search(_ context.Context, vector []float32, filter rag.Filter, limit int) ([]rag.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dim != 0 && len(vector) != s.dim {
		return nil, fmt.Errorf("query dimension %d, want %d", len(vector), s.dim)
	}

	hits := make([]rag.Hit, 0, len(s.points))
	for _, p := range s.points {
		if !filter.Matches(p.Payload) {
			continue
		}
		hits = append(hits, rag.Hit{ID: p.ID, Score: cosine(vector, p.Vector), Payload: copyPayload(p.Payload)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len reports the number of stored points.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func copyPayload(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/rag"
	"github.com/JakeFAU/siepe-rag/internal/retrieval"
)

type queryRequest struct {
	Question string            `json:"q"`
	TopK     *int              `json:"top_k"`
	Filters  map[string]string `json:"filters"`
}

// query handles POST /v1/query. It returns {answer, sources}; 422 for a blank
// question and 502 when the completion model fails.
func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	if s.answerer == nil {
		writeError(w, http.StatusServiceUnavailable, "retrieval unavailable")
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	topK := s.cfg.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	ans, err := s.answerer.Answer(r.Context(), retrieval.Question{
		Text:    req.Question,
		Filters: rag.Filter(req.Filters),
		TopK:    topK,
	})
	if err != nil {
		var genErr *rag.GenerationError
		switch {
		case errors.Is(err, rag.ErrEmptyQuery):
			writeError(w, http.StatusUnprocessableEntity, "empty query")
		case errors.As(err, &genErr):
			s.logger.Error("answer generation failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "answer generation failed")
		default:
			s.logger.Error("query failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "query failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

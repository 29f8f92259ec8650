package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/jobs"
	"github.com/JakeFAU/siepe-rag/internal/rag"
)

// submitCrawlJob handles POST /v1/crawl/jobs. It returns 202 {"job_id"} once
// the job is queued, 400 for malformed JSON and 422 for invalid parameters.
func (s *Server) submitCrawlJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "crawl jobs unavailable")
		return
	}
	var params rag.JobParameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	normalizeParams(&params)

	jobID, err := s.jobs.Submit(r.Context(), params)
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidParams) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("submit crawl job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start job")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// getCrawlJob handles GET /v1/crawl/jobs/{job_id}. It returns the job
// snapshot, or 404 when the id is unknown.
func (s *Server) getCrawlJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "crawl jobs unavailable")
		return
	}
	jobID := strings.TrimSpace(chi.URLParam(r, "job_id"))
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job_id required")
		return
	}
	job, err := s.jobs.Get(jobID)
	if err != nil {
		var notFound *rag.NotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get crawl job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// normalizeParams trims codes and drops blanks so "" never selects a page.
func normalizeParams(p *rag.JobParameters) {
	p.Years = compact(p.Years)
	p.Categories = compact(p.Categories)
	p.Events = compact(p.Events)
	if p.OnlyPage != nil {
		p.OnlyPage.Year = strings.TrimSpace(p.OnlyPage.Year)
		p.OnlyPage.Category = strings.TrimSpace(p.OnlyPage.Category)
		p.OnlyPage.Event = strings.TrimSpace(p.OnlyPage.Event)
	}
}

func compact(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"go.uber.org/zap"
)

var pdfContentTypes = map[string]bool{
	"application/pdf":          true,
	"application/octet-stream": true,
}

type ingestedFile struct {
	Filename string `json:"filename"`
	DocID    string `json:"doc_id,omitempty"`
	Chunks   int    `json:"chunks,omitempty"`
	Status   string `json:"status"`
}

// uploadDocuments handles POST /v1/documents with a multipart "files" field.
// Every part must be a PDF or the whole request is rejected with 400. Each
// file is ingested independently; failures are reported per file.
func (s *Server) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion unavailable")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Warn("remove multipart temp files failed", zap.Error(err))
		}
	}()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	for _, fh := range files {
		if !pdfContentTypes[fh.Header.Get("Content-Type")] {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("file %s is not a PDF", fh.Filename))
			return
		}
	}

	results := make([]ingestedFile, 0, len(files))
	for _, fh := range files {
		results = append(results, s.ingestUpload(r, fh))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingested": results})
}

func (s *Server) ingestUpload(r *http.Request, fh *multipart.FileHeader) ingestedFile {
	entry := ingestedFile{Filename: fh.Filename}
	path, err := s.spool(fh)
	if err != nil {
		s.logger.Error("spool upload failed", zap.String("filename", fh.Filename), zap.Error(err))
		entry.Status = "error: " + err.Error()
		return entry
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove upload failed", zap.String("path", path), zap.Error(err))
		}
	}()

	res, err := s.ingester.Ingest(r.Context(), path)
	if err != nil {
		s.logger.Error("ingest upload failed", zap.String("filename", fh.Filename), zap.Error(err))
		entry.Status = "error: " + err.Error()
		return entry
	}
	entry.DocID = res.DocID
	entry.Chunks = res.Chunks
	entry.Status = "success"
	return entry
}

// spool copies an uploaded part into a private temp file. The client's file
// name never becomes part of the path.
func (s *Server) spool(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close() //nolint:errcheck // read-only

	dst, err := os.CreateTemp(s.cfg.TempDir, "upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return dst.Name(), nil
}

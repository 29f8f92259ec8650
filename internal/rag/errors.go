package rag

import (
	"errors"
	"fmt"
)

// ErrEmptyQuery is returned when a question is blank after trimming.
var ErrEmptyQuery = errors.New("empty query")

// FetchError reports a listing page that could not be fetched or parsed.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// CorruptSourceError reports a downloaded file that cannot be used.
type CorruptSourceError struct {
	Path string
	Err  error
}

func (e *CorruptSourceError) Error() string {
	return fmt.Sprintf("corrupt source %s: %v", e.Path, e.Err)
}

func (e *CorruptSourceError) Unwrap() error { return e.Err }

// IngestError reports a failure while turning a document into stored points.
type IngestError struct {
	Path string
	Op   string
	Err  error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// GenerationError reports a failed completion call at query time.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate answer: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown job id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.ID)
}

package rag

import (
	"context"
	"io"
	"time"
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string, isQuery bool) ([]float32, error)
}

// VectorStore persists points and runs filtered nearest-neighbour search.
// Search returns hits ordered by decreasing score.
type VectorStore interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]Hit, error)
}

// Completer runs a prompt through a text-completion model.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Document is an opened paginated source file. Pages are zero-indexed.
type Document interface {
	NumPages() int
	PageText(index int) (string, error)
	Close() error
}

// DocumentReader opens documents from disk.
type DocumentReader interface {
	Open(path string) (Document, error)
}

// CoverRenderer writes a one-page document with the given text lines.
type CoverRenderer interface {
	RenderCover(ctx context.Context, lines []string, dest string) error
}

// Merger concatenates documents, in order, into out.
type Merger interface {
	Merge(ctx context.Context, out string, inputs ...string) error
}

// PageCounter validates a document and reports its page count.
type PageCounter interface {
	PageCount(ctx context.Context, path string) (int, error)
}

// ListingFetcher retrieves the raw HTML of a listing page.
type ListingFetcher interface {
	FetchListing(ctx context.Context, url string) ([]byte, error)
}

// Downloader saves a remote file under dir and returns the local path.
type Downloader interface {
	Download(ctx context.Context, url string, dir string) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Package ingest turns a PDF on disk into embedded, stored chunks.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/clock/system"
	"github.com/JakeFAU/siepe-rag/internal/metadata"
	"github.com/JakeFAU/siepe-rag/internal/metrics"
	"github.com/JakeFAU/siepe-rag/internal/rag"
)

// Ingestion steps reported in rag.IngestError.Op.
const (
	OpOpen   = "open"
	OpRead   = "read"
	OpID     = "id"
	OpEmbed  = "embed"
	OpUpsert = "upsert"
)

// Checksummer digests a source file's bytes.
type Checksummer interface {
	Sum(r io.Reader) (string, error)
}

// Splitter breaks document text into chunk texts.
type Splitter interface {
	Split(text string) []string
}

// Result describes one ingested document.
type Result struct {
	DocID      string
	Chunks     int
	Metadata   rag.Metadata
	ArchiveURI string
	SHA256     string
}

// IngestedDocument is the notification published after a successful upsert.
type IngestedDocument struct {
	DocID      string            `json:"doc_id"`
	Source     string            `json:"source"`
	Chunks     int               `json:"chunks"`
	Metadata   map[string]string `json:"metadata"`
	ArchiveURI string            `json:"archive_uri,omitempty"`
	SHA256     string            `json:"sha256,omitempty"`
	IngestedAt time.Time         `json:"ingested_at"`
}

// Option customizes an Ingestor.
type Option func(*Ingestor)

// WithArchive copies every source file to blob under prefix before chunking.
func WithArchive(blob rag.BlobStore, prefix string) Option {
	return func(i *Ingestor) {
		i.blob = blob
		i.archivePrefix = strings.Trim(prefix, "/")
	}
}

// WithPublisher announces each ingested document on topic.
func WithPublisher(pub rag.Publisher, topic string) Option {
	return func(i *Ingestor) {
		i.publisher = pub
		i.topic = topic
	}
}

// WithChecksum records a digest of each source file in the published
// notification.
func WithChecksum(c Checksummer) Option {
	return func(i *Ingestor) {
		i.checksum = c
	}
}

// WithClock overrides the clock used for notification timestamps.
func WithClock(clock rag.Clock) Option {
	return func(i *Ingestor) {
		i.clock = clock
	}
}

// Ingestor runs the open, extract, chunk, embed and upsert pipeline.
type Ingestor struct {
	reader   rag.DocumentReader
	splitter Splitter
	embedder rag.Embedder
	store    rag.VectorStore
	ids      rag.IDGenerator
	logger   *zap.Logger

	clock         rag.Clock
	blob          rag.BlobStore
	archivePrefix string
	publisher     rag.Publisher
	topic         string
	checksum      Checksummer
}

// New constructs an Ingestor.
func New(
	reader rag.DocumentReader,
	splitter Splitter,
	embedder rag.Embedder,
	store rag.VectorStore,
	ids rag.IDGenerator,
	logger *zap.Logger,
	opts ...Option,
) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Ingestor{
		reader:   reader,
		splitter: splitter,
		embedder: embedder,
		store:    store,
		ids:      ids,
		logger:   logger,
		clock:    system.New(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest stores every chunk of the document at path as one batch.
func (i *Ingestor) Ingest(ctx context.Context, path string) (Result, error) {
	res, err := i.ingest(ctx, path)
	if err != nil {
		metrics.ObserveIngest("error", 0)
		i.logger.Warn("ingest failed", zap.String("path", path), zap.Error(err))
		return Result{}, err
	}
	metrics.ObserveIngest("ok", res.Chunks)
	i.logger.Info("document ingested",
		zap.String("path", path),
		zap.String("doc_id", res.DocID),
		zap.Int("chunks", res.Chunks),
	)
	return res, nil
}

func (i *Ingestor) ingest(ctx context.Context, srcPath string) (Result, error) {
	meta, text, err := i.read(srcPath)
	if err != nil {
		return Result{}, err
	}

	docID, err := i.ids.NewID()
	if err != nil {
		return Result{}, &rag.IngestError{Path: srcPath, Op: OpID, Err: err}
	}
	meta.Set(rag.FieldDocID, docID)

	archiveURI := i.archive(ctx, srcPath, docID)
	base := meta.Map()
	if archiveURI != "" {
		base[rag.FieldArchiveURI] = archiveURI
	}

	chunks := i.splitter.Split(text)
	points := make([]rag.Point, 0, len(chunks))
	for idx, chunk := range chunks {
		vec, err := i.embedder.Embed(ctx, chunk, false)
		if err != nil {
			return Result{}, &rag.IngestError{Path: srcPath, Op: OpEmbed, Err: fmt.Errorf("chunk %d: %w", idx, err)}
		}
		pointID, err := i.ids.NewID()
		if err != nil {
			return Result{}, &rag.IngestError{Path: srcPath, Op: OpID, Err: err}
		}
		payload := make(map[string]string, len(base)+2)
		for k, v := range base {
			payload[k] = v
		}
		payload[rag.FieldChunkIndex] = strconv.Itoa(idx)
		payload[rag.FieldContent] = chunk
		points = append(points, rag.Point{ID: pointID, Vector: vec, Payload: payload})
	}

	if len(points) > 0 {
		if err := i.store.Upsert(ctx, points); err != nil {
			return Result{}, &rag.IngestError{Path: srcPath, Op: OpUpsert, Err: err}
		}
	}

	res := Result{
		DocID:      docID,
		Chunks:     len(points),
		Metadata:   meta,
		ArchiveURI: archiveURI,
		SHA256:     i.digest(srcPath),
	}
	i.publish(ctx, srcPath, res)
	return res, nil
}

// read extracts metadata from the first page and the text of every page.
func (i *Ingestor) read(srcPath string) (rag.Metadata, string, error) {
	doc, err := i.reader.Open(srcPath)
	if err != nil {
		return rag.Metadata{}, "", &rag.IngestError{Path: srcPath, Op: OpOpen, Err: err}
	}
	defer func() {
		_ = doc.Close()
	}()

	var (
		meta rag.Metadata
		full strings.Builder
	)
	for p := 0; p < doc.NumPages(); p++ {
		text, err := doc.PageText(p)
		if err != nil {
			return rag.Metadata{}, "", &rag.IngestError{Path: srcPath, Op: OpRead, Err: fmt.Errorf("page %d: %w", p+1, err)}
		}
		if p == 0 {
			meta = metadata.Extract(text)
		}
		full.WriteString(text)
		full.WriteString("\n")
	}
	return meta, full.String(), nil
}

func (i *Ingestor) archive(ctx context.Context, srcPath, docID string) string {
	if i.blob == nil {
		return ""
	}
	f, err := os.Open(srcPath)
	if err != nil {
		i.logger.Warn("archive open failed", zap.String("path", srcPath), zap.Error(err))
		return ""
	}
	defer func() {
		_ = f.Close()
	}()
	uri, err := i.blob.PutObject(ctx, path.Join(i.archivePrefix, docID+".pdf"), "application/pdf", f)
	if err != nil {
		i.logger.Warn("archive upload failed", zap.String("doc_id", docID), zap.Error(err))
		return ""
	}
	return uri
}

func (i *Ingestor) publish(ctx context.Context, srcPath string, res Result) {
	if i.publisher == nil {
		return
	}
	msg := IngestedDocument{
		DocID:      res.DocID,
		Source:     srcPath,
		Chunks:     res.Chunks,
		Metadata:   res.Metadata.Map(),
		ArchiveURI: res.ArchiveURI,
		SHA256:     res.SHA256,
		IngestedAt: i.clock.Now().UTC(),
	}
	if _, err := i.publisher.Publish(ctx, i.topic, msg); err != nil {
		i.logger.Warn("publish ingested document failed", zap.String("doc_id", res.DocID), zap.Error(err))
	}
}

func (i *Ingestor) digest(srcPath string) string {
	if i.checksum == nil {
		return ""
	}
	f, err := os.Open(srcPath)
	if err != nil {
		i.logger.Warn("checksum open failed", zap.String("path", srcPath), zap.Error(err))
		return ""
	}
	defer func() {
		_ = f.Close()
	}()
	sum, err := i.checksum.Sum(f)
	if err != nil {
		i.logger.Warn("checksum failed", zap.String("path", srcPath), zap.Error(err))
		return ""
	}
	return sum
}

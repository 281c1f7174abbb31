package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bull/worldview-rag/internal/chunker"
	"github.com/bull/worldview-rag/internal/vectorstore"
)

// Embedder turns a list of texts into one vector per text, in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index receives the finished vector records.
type Index interface {
	Upsert(ctx context.Context, records []vectorstore.Record, namespace string) (vectorstore.UpsertResult, error)
}

// CategoryStats aggregates one category's ingestion outcome.
type CategoryStats struct {
	Category       string
	TotalDocuments int
	Successful     int
	Failed         int
	DocumentIDs    []string
}

// Result contains statistics about a full ingestion run.
type Result struct {
	Categories  []CategoryStats
	TotalChunks int
	Duration    time.Duration
}

// Pipeline orchestrates scan -> chunk -> embed -> upsert per category.
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder Embedder
	index    Index
	logger   *slog.Logger
	workers  int
}

// NewPipeline creates an ingestion pipeline. workers bounds how many
// categories are processed concurrently; values below 1 mean serial.
// Work within a single document is always sequential, because a
// concurrent partial upsert could race a delete-by-document for the
// same document id.
func NewPipeline(c *chunker.Chunker, embedder Embedder, index Index, logger *slog.Logger, workers int) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		chunker:  c,
		embedder: embedder,
		index:    index,
		logger:   logger,
		workers:  workers,
	}
}

// IngestRoot scans root and ingests every category found, returning
// per-category statistics in category order. Individual document
// failures are counted, never propagated; the returned error covers
// scan failures and cancellation only.
func (p *Pipeline) IngestRoot(ctx context.Context, root string) (*Result, error) {
	start := time.Now()

	byCategory, err := ScanRoot(root)
	if err != nil {
		return nil, err
	}

	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	p.logger.Info("Starting ingestion", "root", root, "categories", len(categories))

	stats := make([]CategoryStats, len(categories))
	chunkCounts := make([]int, len(categories))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.workers)
	for i, category := range categories {
		eg.Go(func() error {
			s, chunks := p.ingestCategory(egCtx, category, byCategory[category])
			stats[i] = s
			chunkCounts[i] = chunks
			return egCtx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("ingestion cancelled: %w", err)
	}

	result := &Result{Categories: stats, Duration: time.Since(start)}
	for _, n := range chunkCounts {
		result.TotalChunks += n
	}

	for _, s := range stats {
		p.logger.Info("Category ingested",
			"category", s.Category,
			"documents", s.TotalDocuments,
			"successful", s.Successful,
			"failed", s.Failed,
		)
	}
	return result, nil
}

// IngestCategory ingests a single category directory's files.
func (p *Pipeline) IngestCategory(ctx context.Context, category string, files []FileInfo) CategoryStats {
	stats, _ := p.ingestCategory(ctx, category, files)
	return stats
}

func (p *Pipeline) ingestCategory(ctx context.Context, category string, files []FileInfo) (CategoryStats, int) {
	stats := CategoryStats{Category: category}
	totalChunks := 0

	related := GroupRelated(files)
	bases := make([]string, 0, len(related))
	for base := range related {
		if _, ok := related[base][".txt"]; ok {
			bases = append(bases, base)
		}
	}
	sort.Strings(bases)
	stats.TotalDocuments = len(bases)

	for _, base := range bases {
		// Documents are the cancellation checkpoint: already-upserted
		// documents stay in the index, the rest are skipped.
		if ctx.Err() != nil {
			stats.Failed += stats.TotalDocuments - stats.Successful - stats.Failed
			return stats, totalChunks
		}

		companions := related[base]
		docID, chunks, err := p.ingestDocument(ctx, companions[".txt"], companions)
		if err != nil {
			p.logger.Warn("Failed to ingest document",
				"category", category, "file", companions[".txt"].Filename, "error", err)
			stats.Failed++
			continue
		}
		stats.Successful++
		stats.DocumentIDs = append(stats.DocumentIDs, docID)
		totalChunks += chunks
	}

	return stats, totalChunks
}

// ingestDocument handles the full pipeline for a single document.
// Returns the new document id and the number of chunks upserted.
func (p *Pipeline) ingestDocument(ctx context.Context, file FileInfo, companions map[string]FileInfo) (string, int, error) {
	text, err := readTextFile(file.Path)
	if err != nil {
		return "", 0, fmt.Errorf("read: %w", err)
	}

	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return "", 0, fmt.Errorf("document has no content")
	}
	p.logger.Debug("Chunked document", "file", file.Filename, "chunks", len(chunks))

	var topWords []string
	if sidecar, ok := companions[".csv"]; ok {
		topWords, err = readTopWords(sidecar.Path)
		if err != nil {
			p.logger.Warn("Ignoring unreadable sidecar",
				"file", sidecar.Filename, "error", err)
		}
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return "", 0, fmt.Errorf("embeddings: %w", err)
	}

	docID := uuid.New().String()
	records := make([]vectorstore.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectorstore.Record{
			ChunkID: fmt.Sprintf("%s_%d", docID, i),
			Values:  embeddings[i],
			Meta: vectorstore.ChunkMetadata{
				Text:       chunk,
				DocumentID: docID,
				Filename:   file.Filename,
				Category:   file.Category,
				Author:     file.Author,
				Title:      file.Title,
				ChunkIndex: i,
				TopWords:   topWords,
			},
		}
	}

	result, err := p.index.Upsert(ctx, records, file.Category)
	if err != nil {
		return "", 0, fmt.Errorf("upsert: %w", err)
	}
	if result.Failed > 0 {
		p.logger.Warn("Partial upsert",
			"file", file.Filename,
			"attempted", result.Attempted,
			"successful", result.Successful,
			"failed", result.Failed,
		)
	}
	if result.Successful == 0 {
		return "", 0, fmt.Errorf("upsert: all %d sub-batches failed", result.Attempted)
	}

	p.logger.Info("Ingested document",
		"file", file.Filename, "category", file.Category, "chunks", result.Successful)
	return docID, result.Successful, nil
}

// readTextFile reads a source file as UTF-8, decoding as Latin-1 when
// the bytes are not valid UTF-8 (older corpus files).
func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if utf8.Valid(data) {
		return string(data), nil
	}

	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes), nil
}

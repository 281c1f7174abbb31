// Package retrieval answers semantic queries against the vector index:
// embed the query text once, search, and shape the matches for callers.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bull/worldview-rag/internal/vectorstore"
)

// DefaultTopK is the number of matches returned when the caller does not
// ask for a specific count.
const DefaultTopK = 5

// Embedder embeds a single query text.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a similarity search over the index.
type Searcher interface {
	Query(ctx context.Context, vector []float32, limit int, filter *vectorstore.Filter, namespace string) ([]vectorstore.Match, error)
}

// Result is one retrieved chunk. Text is pulled out of the metadata so
// prompt assembly never has to know the payload layout.
type Result struct {
	ID       string
	Score    float32
	Text     string
	Metadata vectorstore.ChunkMetadata
}

// Service ties the query embedder to the index.
type Service struct {
	embedder Embedder
	searcher Searcher
	logger   *slog.Logger
}

func NewService(embedder Embedder, searcher Searcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embedder: embedder, searcher: searcher, logger: logger}
}

// Search embeds query and returns up to topK matches, best first. A
// topK below 1 falls back to DefaultTopK. filter and namespace are
// passed through to the index unchanged.
func (s *Service) Search(ctx context.Context, query string, topK int, filter *vectorstore.Filter, namespace string) ([]Result, error) {
	if topK < 1 {
		topK = DefaultTopK
	}

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.searcher.Query(ctx, vector, topK, filter, namespace)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		meta := m.Meta
		text := meta.Text
		meta.Text = ""
		results[i] = Result{
			ID:       m.ChunkID,
			Score:    m.Score,
			Text:     text,
			Metadata: meta,
		}
	}

	s.logger.Debug("Retrieved chunks", "query_len", len(query), "top_k", topK, "matches", len(results))
	return results, nil
}

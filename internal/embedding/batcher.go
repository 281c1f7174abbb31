// Package embedding turns text into fixed-dimension vectors through the
// OpenAI embeddings API, batching large inputs and caching single-text
// results.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openai/openai-go"
)

const (
	// EmbeddingModel is the default OpenAI model used for generating embeddings.
	EmbeddingModel = "text-embedding-3-small"

	// Dimension is the vector size for text-embedding-3-small. Must match
	// the vector index's configured dimension.
	Dimension = 1536

	// DefaultBatchSize bounds the number of texts per API call. Kept small
	// to stay under tokens-per-minute limits for book-length chunk lists.
	DefaultBatchSize = 32

	// DefaultCacheSize bounds the single-text LRU cache.
	DefaultCacheSize = 1024
)

// ErrBackendUnavailable indicates the embedding backend failed
// irrecoverably for at least one sub-batch.
var ErrBackendUnavailable = errors.New("embedding backend unavailable")

// backend issues one embeddings API call for a single sub-batch.
type backend interface {
	embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Batcher generates embeddings in order-preserving sub-batches and keeps
// a bounded LRU cache for repeated single-text lookups (query texts hit
// this path on every retrieval).
type Batcher struct {
	backend   backend
	batchSize int
	cache     *lru.Cache[string, []float32]
}

// NewBatcher creates a Batcher backed by the OpenAI embeddings API. It
// reads OPENAI_API_KEY from the environment and returns an error if not
// set; the model can be overridden with EMBEDDINGS_MODEL. If batchSize
// is 0, DefaultBatchSize is used.
func NewBatcher(batchSize int) (*Batcher, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	model := os.Getenv("EMBEDDINGS_MODEL")
	if model == "" {
		model = EmbeddingModel
	}

	// openai-go reads OPENAI_API_KEY from the environment itself.
	client := openai.NewClient()
	return newBatcher(&openaiBackend{client: &client, model: model}, batchSize), nil
}

func newBatcher(be backend, batchSize int) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	cache, _ := lru.New[string, []float32](DefaultCacheSize)
	return &Batcher{
		backend:   be,
		batchSize: batchSize,
		cache:     cache,
	}
}

// EmbedText embeds a single text, consulting the cache first. The cache
// key is the exact text.
func (b *Batcher) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := b.cache.Get(text); ok {
		return vec, nil
	}

	vecs, err := b.embedBatchWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	b.cache.Add(text, vecs[0])
	return vecs[0], nil
}

// EmbedBatch embeds a list of texts, splitting into consecutive
// sub-batches of at most batchSize. The result at index i corresponds to
// texts[i]; any sub-batch failure fails the whole call.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += b.batchSize {
		end := min(i+b.batchSize, len(texts))

		vecs, err := b.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, vecs...)
	}

	return all, nil
}

// embedBatchWithRetry generates embeddings for a single sub-batch,
// retrying with exponential backoff on rate limit errors (HTTP 429).
// Other errors are treated as permanent and fail immediately.
func (b *Batcher) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		vecs, err := b.backend.embed(ctx, texts)
		if err != nil {
			if isRateLimitError(err) {
				return err // Will retry with backoff
			}
			return backoff.Permanent(err)
		}

		// The backend must return exactly one vector per input text;
		// a silent skip would misalign chunk ids and embeddings.
		if len(vecs) != len(texts) {
			return backoff.Permanent(fmt.Errorf("got %d embeddings for %d texts",
				len(vecs), len(texts)))
		}

		embeddings = vecs
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return embeddings, nil
}

// openaiBackend adapts the OpenAI embeddings endpoint to the backend
// interface.
type openaiBackend struct {
	client *openai.Client
	model  string
}

func (o *openaiBackend) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: o.model,
	})
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vecs[i] = toFloat32(data.Embedding)
	}
	return vecs, nil
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but the index stores float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}

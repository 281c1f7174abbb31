// Package vectorstore wraps the Qdrant vector index behind the
// upsert/query/delete operations the RAG pipeline needs, enforcing
// payload and rate limits through sub-batching.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/time/rate"
)

// UpsertBatchSize bounds vectors per upsert call to stay well under the
// provider's ~4MB payload ceiling.
const UpsertBatchSize = 50

// upsertInterval paces consecutive sub-batches to respect rate limits.
const upsertInterval = 500 * time.Millisecond

// chunkIDNamespace derives deterministic point UUIDs from chunk ids, so
// re-upserting a chunk replaces its previous vector. Qdrant point ids
// must be UUIDs; the raw chunk id lives in the payload.
var chunkIDNamespace = uuid.MustParse("3f1c7a52-8f4b-4b86-9be4-5c1d3a0f6e21")

// Store wraps the Qdrant client with connection management and health checks.
type Store struct {
	client  *qdrant.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	host    string
	port    int
}

// New creates a Qdrant client with health validation. It performs a
// health check with retry on startup and fails fast if Qdrant is
// unreachable.
func New(host string, port int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	store := &Store{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(upsertInterval), 1),
		logger:  logger,
		host:    host,
		port:    port,
	}

	if err := store.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return store, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *Store) healthCheckWithRetry(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, bo)
}

// Health performs a single health check against Qdrant.
func (s *Store) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection ensures the chunk collection exists with cosine
// distance and payload indexes on the filterable fields. Idempotent.
func (s *Store) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name == CollectionName {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     VectorDimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return s.createPayloadIndexes(ctx)
}

// createPayloadIndexes creates indexes for all filterable fields.
// Without these, metadata filtering degrades badly at scale.
func (s *Store) createPayloadIndexes(ctx context.Context) error {
	fields := []string{
		"chunk_id",    // Delete-by-id lookups
		"document_id", // Delete/re-ingest by document
		"category",    // Worldview partition
		"namespace",   // Index partition, defaults to category
		"filename",    // Operator diagnostics
	}

	for _, field := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: CollectionName,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	return nil
}

// Close closes the Qdrant client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// pointID derives the deterministic Qdrant point id for a chunk id.
func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(chunkIDNamespace, []byte(chunkID)).String())
}

// Upsert writes records in sub-batches of UpsertBatchSize, pacing calls
// with the rate limiter. A failed sub-batch is logged and counted but
// does not abort the remaining batches; the caller decides what to do
// with a partial result. Namespace defaults to each record's category.
func (s *Store) Upsert(ctx context.Context, records []Record, namespace string) (UpsertResult, error) {
	result := UpsertResult{Attempted: len(records)}
	if len(records) == 0 {
		return result, nil
	}

	for i, rec := range records {
		if len(rec.Values) != VectorDimension {
			return result, fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(rec.Values), VectorDimension)
		}
	}

	for i := 0; i < len(records); i += UpsertBatchSize {
		end := min(i+UpsertBatchSize, len(records))
		batch := records[i:end]

		if err := s.limiter.Wait(ctx); err != nil {
			result.Failed += len(records) - i
			return result, fmt.Errorf("upsert cancelled: %w", err)
		}

		points := make([]*qdrant.PointStruct, len(batch))
		for j, rec := range batch {
			ns := namespace
			if ns == "" {
				ns = rec.Meta.Category
			}
			points[j] = &qdrant.PointStruct{
				Id:      pointID(rec.ChunkID),
				Vectors: qdrant.NewVectors(rec.Values...),
				Payload: qdrant.NewValueMap(payloadMap(rec, ns)),
			}
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: CollectionName,
			Points:         points,
		})
		if err != nil {
			s.logger.Warn("Upsert sub-batch failed",
				"from", i, "to", end, "error", err)
			result.Failed += len(batch)
			continue
		}
		result.Successful += len(batch)
	}

	return result, nil
}

// payloadMap flattens record metadata into a Qdrant payload. Optional
// fields are omitted when empty so filters stay predictable.
func payloadMap(rec Record, namespace string) map[string]any {
	payload := map[string]any{
		"chunk_id":    rec.ChunkID,
		"text":        truncate(rec.Meta.Text, MaxMetadataText),
		"document_id": rec.Meta.DocumentID,
		"filename":    rec.Meta.Filename,
		"category":    rec.Meta.Category,
		"namespace":   namespace,
		"chunk_index": rec.Meta.ChunkIndex,
	}
	if rec.Meta.Author != "" {
		payload["author"] = rec.Meta.Author
	}
	if rec.Meta.Title != "" {
		payload["title"] = rec.Meta.Title
	}
	if len(rec.Meta.TopWords) > 0 {
		words := make([]any, len(rec.Meta.TopWords))
		for i, w := range rec.Meta.TopWords {
			words[i] = w
		}
		payload["top_words"] = words
	}
	return payload
}

// truncate caps s at n characters, never cutting inside a rune.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// buildFilter converts a Filter plus namespace into Qdrant conditions.
func buildFilter(filter *Filter, namespace string) *qdrant.Filter {
	var must []*qdrant.Condition
	if filter != nil {
		if filter.DocumentID != "" {
			must = append(must, qdrant.NewMatch("document_id", filter.DocumentID))
		}
		if filter.Category != "" {
			must = append(must, qdrant.NewMatch("category", filter.Category))
		}
	}
	if namespace != "" {
		must = append(must, qdrant.NewMatch("namespace", namespace))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Query performs a similarity search and returns matches ordered by
// descending score, with ascending chunk id as the tie-break so result
// ordering is reproducible.
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter *Filter, namespace string) ([]Match, error) {
	if len(vector) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), VectorDimension)
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Filter:         buildFilter(filter, namespace),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query failed: %v", ErrUnavailable, err)
	}

	matches := make([]Match, 0, len(results))
	for _, result := range results {
		matches = append(matches, Match{
			ChunkID: result.Payload["chunk_id"].GetStringValue(),
			Score:   result.Score,
			Meta:    metadataFromPayload(result.Payload),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})

	return matches, nil
}

// metadataFromPayload reverses payloadMap.
func metadataFromPayload(payload map[string]*qdrant.Value) ChunkMetadata {
	meta := ChunkMetadata{
		Text:       payload["text"].GetStringValue(),
		DocumentID: payload["document_id"].GetStringValue(),
		Filename:   payload["filename"].GetStringValue(),
		Category:   payload["category"].GetStringValue(),
		ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
	}
	if v, ok := payload["author"]; ok {
		meta.Author = v.GetStringValue()
	}
	if v, ok := payload["title"]; ok {
		meta.Title = v.GetStringValue()
	}
	if v, ok := payload["top_words"]; ok && v.GetListValue() != nil {
		for _, w := range v.GetListValue().Values {
			meta.TopWords = append(meta.TopWords, w.GetStringValue())
		}
	}
	return meta
}

// Delete removes chunks by chunk id.
func (s *Store) Delete(ctx context.Context, chunkIDs []string, namespace string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	ids := make([]*qdrant.PointId, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = pointID(id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points:         qdrant.NewPointsSelector(ids...),
	})
	if err != nil {
		return fmt.Errorf("%w: delete failed: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteByDocument removes every chunk belonging to a document. Qdrant
// supports delete-by-filter natively, so no probe-query scan is needed;
// an exact count is taken first so the caller learns how many chunks
// were found even if the delete itself fails. The count is
// eventually-consistent with writes made moments earlier.
func (s *Store) DeleteByDocument(ctx context.Context, documentID, category string) (int, error) {
	return s.deleteByFilter(ctx, &Filter{DocumentID: documentID, Category: category})
}

// PurgeCategory removes every chunk whose category matches.
func (s *Store) PurgeCategory(ctx context.Context, category string) (int, error) {
	return s.deleteByFilter(ctx, &Filter{Category: category})
}

func (s *Store) deleteByFilter(ctx context.Context, filter *Filter) (int, error) {
	qf := buildFilter(filter, "")

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: CollectionName,
		Filter:         qf,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count failed: %v", ErrUnavailable, err)
	}
	if count == 0 {
		return 0, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points:         qdrant.NewPointsSelectorFilter(qf),
	})
	if err != nil {
		// Report how many chunks were discovered before the failure so
		// callers can assess partial cleanup state.
		return int(count), fmt.Errorf("%w: delete failed after finding %d chunks: %v",
			ErrUnavailable, count, err)
	}

	s.logger.Info("Deleted chunks by filter",
		"document_id", filter.DocumentID, "category", filter.Category, "count", count)
	return int(count), nil
}

// Stats aggregates per-category statistics by scrolling the category's
// chunks. Only the fields needed for counting are fetched.
func (s *Store) Stats(ctx context.Context, category string) (*CategoryStats, error) {
	stats := &CategoryStats{Category: category}
	docs := map[string]struct{}{}
	authors := map[string]struct{}{}
	titles := map[string]struct{}{}

	var offset *qdrant.PointId
	batchSize := uint32(256)

	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: CollectionName,
			Filter:         buildFilter(&Filter{Category: category}, ""),
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude("document_id", "author", "title"),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scroll failed: %v", ErrUnavailable, err)
		}

		for _, result := range results {
			stats.ChunkCount++
			if id := result.Payload["document_id"].GetStringValue(); id != "" {
				docs[id] = struct{}{}
			}
			if a := result.Payload["author"].GetStringValue(); a != "" {
				authors[a] = struct{}{}
			}
			if t := result.Payload["title"].GetStringValue(); t != "" {
				titles[t] = struct{}{}
			}
		}

		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	stats.DocumentCount = len(docs)
	stats.AuthorCount = len(authors)
	stats.TitleCount = len(titles)
	return stats, nil
}

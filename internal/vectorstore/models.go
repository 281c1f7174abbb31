package vectorstore

// CollectionName is the single Qdrant collection holding all worldview chunks.
const CollectionName = "worldview_chunks"

// VectorDimension is the embedding size agreed with the embedding service.
const VectorDimension = 1536

// ChunkMetadata is the payload stored with every chunk vector.
// Text is truncated to MaxMetadataText characters before upsert.
type ChunkMetadata struct {
	Text       string   // Chunk text, truncated
	DocumentID string   // Owning document
	Filename   string   // Source file name
	Category   string   // Worldview category, immutable after creation
	Author     string   // Optional, from filename pattern
	Title      string   // Optional, from filename pattern
	ChunkIndex int      // 0-based, contiguous per document
	TopWords   []string // Optional, from the word-frequency sidecar
}

// MaxMetadataText bounds the text field persisted in the index payload.
const MaxMetadataText = 2000

// Record is a vector ready for upsert. The chunk id
// ("{document_id}_{chunk_index}") is the logical primary key.
type Record struct {
	ChunkID string
	Values  []float32
	Meta    ChunkMetadata
}

// Match is a single similarity-search result.
type Match struct {
	ChunkID string
	Score   float32
	Meta    ChunkMetadata
}

// Filter restricts queries and deletes by metadata. Zero-value fields
// are not applied.
type Filter struct {
	DocumentID string
	Category   string
}

// UpsertResult reports per-sub-batch bookkeeping for a batched upsert.
// Failed > 0 is a partial failure, not a hard error.
type UpsertResult struct {
	Attempted  int
	Successful int
	Failed     int
}

// CategoryStats summarizes the indexed content of one category.
type CategoryStats struct {
	Category      string
	DocumentCount int
	ChunkCount    int
	AuthorCount   int
	TitleCount    int
}

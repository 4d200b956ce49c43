package driven

import (
	"context"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

// VectorIndex stores chunk embeddings and performs cosine similarity search.
// Backed by SQLite, Postgres/pgvector, or an in-memory index for experiments.
//
// Entries are denormalised: each carries the chunk plus the owning document's
// filename and type, so that metadata filters apply inside the index before
// result truncation and so hits can be turned into citations without a
// second lookup.
type VectorIndex interface {
	// ReplaceDocument atomically replaces all entries for a document.
	// Existing entries for documentID are removed and the given entries
	// inserted in a single transaction. Passing no entries is equivalent
	// to DeleteDocument.
	ReplaceDocument(ctx context.Context, documentID string, entries []IndexEntry) error

	// DeleteDocument removes all entries for a document.
	// Deleting an unknown document is not an error.
	DeleteDocument(ctx context.Context, documentID string) error

	// Search finds the k most similar entries to the query vector.
	// A non-empty filter is applied before truncation, so a filtered search
	// considers every matching entry, not just the global top k.
	// Hits are ordered by similarity descending; ties preserve insertion order.
	Search(ctx context.Context, query []float32, k int, filter *domain.MetadataFilter) ([]IndexHit, error)

	// Stats reports corpus-level counters for the stats command.
	Stats(ctx context.Context) (*domain.IndexStats, error)

	// EmbeddingModel returns the embedding model the index was built with,
	// or empty string for a fresh index.
	EmbeddingModel(ctx context.Context) (string, error)

	// SetEmbeddingModel records the embedding model used to build the index.
	// The indexer calls this on first ingest and refuses to mix models.
	SetEmbeddingModel(ctx context.Context, model string) error

	// Close releases resources.
	Close() error
}

// IndexEntry is a chunk plus its embedding, ready for insertion.
type IndexEntry struct {
	// Chunk is the segmented piece of document text.
	Chunk domain.Chunk

	// Embedding is the chunk's vector, produced by the configured EmbeddingService.
	Embedding []float32

	// Filename is the owning document's filename, denormalised for filtering.
	Filename string

	// Type is the owning document's type, denormalised for filtering.
	Type domain.DocumentType
}

// IndexHit represents a similarity search result.
type IndexHit struct {
	// Chunk is the matched chunk.
	Chunk domain.Chunk

	// Filename is the owning document's filename.
	Filename string

	// Type is the owning document's type.
	Type domain.DocumentType

	// Similarity is the cosine similarity score (0-1).
	Similarity float64
}

package driven

import "github.com/ancora-labs/ancora/internal/core/domain"

// Segmenter splits document text into overlapping chunks for embedding.
// Implementations preserve markdown structure where possible and must
// guarantee that every chunk's text equals the document span given by
// its offsets, so adjacent chunks can reconstruct the original text.
type Segmenter interface {
	// Split returns the document's chunks in order. An empty document
	// yields no chunks; a document shorter than the chunk size yields
	// exactly one.
	Split(doc *domain.Document) []domain.Chunk
}

// SegmenterFactory builds a Segmenter for the given parameters.
// The ablation engine uses it to construct per-experiment segmenters
// without touching the configured one.
type SegmenterFactory func(chunkSize, chunkOverlap int) Segmenter

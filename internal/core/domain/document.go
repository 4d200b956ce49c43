package domain

import (
	"strings"
	"time"
)

// DocumentType identifies the source format of an ingested document.
type DocumentType string

// Recognised document types.
const (
	// DocumentTypeMarkdown is a markdown policy document.
	DocumentTypeMarkdown DocumentType = "markdown"

	// DocumentTypePDF is text extracted from a PDF by an external parser.
	DocumentTypePDF DocumentType = "pdf"

	// DocumentTypeText is plain text.
	DocumentTypeText DocumentType = "text"
)

// IsValid returns true if the document type is recognised.
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeMarkdown, DocumentTypePDF, DocumentTypeText:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t DocumentType) String() string {
	return string(t)
}

// DocumentTypeForFilename derives the document type from a file extension.
func DocumentTypeForFilename(name string) DocumentType {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".md"),
		strings.HasSuffix(strings.ToLower(name), ".markdown"):
		return DocumentTypeMarkdown
	case strings.HasSuffix(strings.ToLower(name), ".pdf"):
		return DocumentTypePDF
	default:
		return DocumentTypeText
	}
}

// Document represents an ingested policy document.
// Immutable once ingested, except for deletion.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Filename is the original file name (e.g. "credit_scoring_manual.md").
	Filename string

	// Type is the source format.
	Type DocumentType

	// Text is the full plain text content.
	Text string

	// Fingerprint is a content hash used to detect unchanged re-ingests.
	Fingerprint string

	// Title is the document title, extracted from the first "# " heading.
	Title string

	// Version is the policy version, from a "**Version:**" line if present.
	Version string

	// EffectiveDate is taken from an "**Effective Date:**" line if present.
	EffectiveDate string

	// Department is taken from a "**Department:**" line if present.
	Department string

	// IngestedAt is when the document entered the index.
	IngestedAt time.Time
}

// ChunkTag classifies the dominant structural content of a chunk.
type ChunkTag string

// Recognised chunk tags.
const (
	// ChunkTagHeading marks a chunk dominated by a section heading.
	ChunkTagHeading ChunkTag = "heading"

	// ChunkTagTable marks a chunk dominated by table rows.
	ChunkTagTable ChunkTag = "table"

	// ChunkTagParagraph marks ordinary prose.
	ChunkTagParagraph ChunkTag = "paragraph"
)

// IsValid returns true if the chunk tag is recognised.
func (t ChunkTag) IsValid() bool {
	switch t {
	case ChunkTagHeading, ChunkTagTable, ChunkTagParagraph:
		return true
	default:
		return false
	}
}

// Chunk represents the minimum retrievable unit of a document.
// Chunks are created by the segmenter and never mutated; they are
// deleted when the parent document is deleted.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Ordinal is the position within the document (0-based).
	Ordinal int

	// Text is the chunk content, including any overlap with neighbours.
	Text string

	// StartOffset is the character offset of this chunk's text in the document.
	StartOffset int

	// EndOffset is the character offset one past the end of this chunk's text.
	EndOffset int

	// Tag classifies the dominant structural content.
	Tag ChunkTag

	// Section is the nearest markdown heading governing this chunk.
	Section string
}

// Size returns the chunk length in characters.
func (c Chunk) Size() int {
	return len(c.Text)
}

// IndexStats summarises the state of the index.
type IndexStats struct {
	// DocumentCount is the number of ingested documents.
	DocumentCount int

	// ChunkCount is the number of indexed chunks.
	ChunkCount int

	// TotalCharacters is the sum of chunk sizes.
	TotalCharacters int

	// EmbeddingModel is the model the index was built with.
	EmbeddingModel string

	// Sources lists distinct ingested filenames.
	Sources []string
}

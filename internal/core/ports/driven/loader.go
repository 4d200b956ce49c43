package driven

import (
	"context"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

// DocumentLoader reads policy files from disk for ingestion.
// Implementations handle glob expansion and per-format text extraction.
type DocumentLoader interface {
	// Glob expands a file pattern into matching paths, sorted.
	// Supports doublestar patterns such as "policies/**/*.md".
	// A path with no glob metacharacters is returned as-is when it exists.
	Glob(pattern string) ([]string, error)

	// Load reads a single file and extracts its text.
	// Returns domain.ErrUnsupportedFormat for file types the loader
	// does not recognise.
	Load(ctx context.Context, path string) (*LoadedFile, error)
}

// LoadedFile is the raw material for ingestion: one file's text plus
// enough identity to build a Document from it.
type LoadedFile struct {
	// Path is the absolute or caller-relative path the file was read from.
	Path string

	// Filename is the base name of the file, used as the document identity.
	Filename string

	// Type is the detected document type.
	Type domain.DocumentType

	// Text is the extracted text content.
	Text string

	// Title is the document title from the first level-one heading,
	// when the format carries one.
	Title string

	// Version is the policy version from the document header, if present.
	Version string

	// EffectiveDate is the policy effective date from the document
	// header, if present. Kept as written; not parsed.
	EffectiveDate string

	// Department is the owning department from the document header,
	// if present.
	Department string
}

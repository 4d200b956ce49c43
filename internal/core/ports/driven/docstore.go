package driven

import (
	"context"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

// DocumentStore persists document metadata.
// Backed by SQLite alongside the vector index.
//
// Filenames are unique within the store: re-ingesting a file updates the
// existing record rather than creating a duplicate.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	// Returns domain.ErrNotFound if no document has that ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetDocumentByFilename retrieves a document by its filename.
	// The indexer uses this to detect unchanged files via fingerprint comparison.
	// Returns domain.ErrNotFound if no document has that filename.
	GetDocumentByFilename(ctx context.Context, filename string) (*domain.Document, error)

	// ListDocuments returns all documents ordered by filename.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// DeleteDocument removes a document.
	// Returns domain.ErrNotFound if no document has that ID.
	DeleteDocument(ctx context.Context, id string) error
}

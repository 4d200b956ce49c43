package driving

import (
	"context"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

// DocumentService provides read access to the indexed corpus.
type DocumentService interface {
	// List returns all indexed documents ordered by filename.
	List(ctx context.Context) ([]domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// Stats reports corpus-level counters: documents, chunks, characters,
	// embedding model, and source filenames.
	Stats(ctx context.Context) (*domain.IndexStats, error)
}

package services

import (
	"context"
	"fmt"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService provides read access to the indexed corpus.
type DocumentService struct {
	docStore driven.DocumentStore
	index    driven.VectorIndex
}

// NewDocumentService creates a document service.
func NewDocumentService(docStore driven.DocumentStore, index driven.VectorIndex) *DocumentService {
	return &DocumentService{
		docStore: docStore,
		index:    index,
	}
}

// List returns all indexed documents.
func (s *DocumentService) List(ctx context.Context) ([]domain.Document, error) {
	docs, err := s.docStore.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", documentID, err)
	}
	return doc, nil
}

// Stats reports corpus-level counters.
func (s *DocumentService) Stats(ctx context.Context) (*domain.IndexStats, error) {
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading index stats: %w", err)
	}
	return stats, nil
}

package mcp

import (
	"context"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	askResult *driving.AskResult
	items     []domain.RetrievedItem
	queries   []domain.QueryResult
	err       error

	gotQuestion   string
	gotAskOpts    driving.AskOptions
	gotSearchOpts domain.RetrieveOptions
}

func (m *mockQueryService) Ask(
	_ context.Context,
	question string,
	opts driving.AskOptions,
) (*driving.AskResult, error) {
	m.gotQuestion = question
	m.gotAskOpts = opts
	return m.askResult, m.err
}

func (m *mockQueryService) AskBatch(
	ctx context.Context,
	questions []string,
	opts driving.AskOptions,
) ([]driving.BatchItem, error) {
	items := make([]driving.BatchItem, len(questions))
	for i, q := range questions {
		result, err := m.Ask(ctx, q, opts)
		items[i] = driving.BatchItem{Question: q, Result: result, Err: err}
	}
	return items, nil
}

func (m *mockQueryService) Search(
	_ context.Context,
	question string,
	opts domain.RetrieveOptions,
) ([]domain.RetrievedItem, error) {
	m.gotQuestion = question
	m.gotSearchOpts = opts
	return m.items, m.err
}

func (m *mockQueryService) History(_ context.Context, _ int) ([]domain.QueryResult, error) {
	return m.queries, m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents []domain.Document
	document  *domain.Document
	stats     *domain.IndexStats
	err       error
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, _ string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.document, nil
}

func (m *mockDocumentService) Stats(_ context.Context) (*domain.IndexStats, error) {
	return m.stats, m.err
}

package cli

import (
	"context"

	"github.com/ancora-labs/ancora/internal/adapters/driven/storage/memory"
	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
	"github.com/ancora-labs/ancora/internal/core/services"
)

// setupTestServices replaces the package service variables with mocks
// and returns a cleanup that restores them. Tests needing specific
// behaviour overwrite individual variables after calling it.
func setupTestServices() func() {
	oldSettings := settingsService
	oldQuery := queryService
	oldIngest := ingestService
	oldDocument := documentService
	oldEvaluation := evaluationService
	oldExperiment := experimentService

	settingsService = services.NewSettingsService(memory.NewConfigStore(), nil)
	queryService = &mockQueryService{}
	ingestService = &mockIngestService{}
	documentService = &mockDocumentService{}
	evaluationService = &mockEvaluationService{}
	experimentService = &mockExperimentService{}

	return func() {
		settingsService = oldSettings
		queryService = oldQuery
		ingestService = oldIngest
		documentService = oldDocument
		evaluationService = oldEvaluation
		experimentService = oldExperiment
	}
}

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	askResult *driving.AskResult
	items     []domain.RetrievedItem
	queries   []domain.QueryResult
	err       error

	gotQuestion  string
	gotQuestions []string
	gotAskOpts   driving.AskOptions
	gotOpts      domain.RetrieveOptions
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
	_ context.Context,
	questions []string,
	opts driving.AskOptions,
) ([]driving.BatchItem, error) {
	m.gotQuestions = questions
	m.gotAskOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	items := make([]driving.BatchItem, len(questions))
	for i, q := range questions {
		items[i] = driving.BatchItem{Question: q, Result: m.askResult}
	}
	return items, nil
}

func (m *mockQueryService) Search(
	_ context.Context,
	question string,
	opts domain.RetrieveOptions,
) ([]domain.RetrievedItem, error) {
	m.gotQuestion = question
	m.gotOpts = opts
	return m.items, m.err
}

func (m *mockQueryService) History(_ context.Context, _ int) ([]domain.QueryResult, error) {
	return m.queries, m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	report *driving.IngestReport
	err    error

	gotPattern string
	gotOpts    driving.IngestOptions
	deletedID  string
}

func (m *mockIngestService) IngestPath(
	_ context.Context,
	pattern string,
	opts driving.IngestOptions,
) (*driving.IngestReport, error) {
	m.gotPattern = pattern
	m.gotOpts = opts
	return m.report, m.err
}

func (m *mockIngestService) Delete(_ context.Context, documentID string) error {
	m.deletedID = documentID
	return m.err
}

func (m *mockIngestService) DeleteByFilename(_ context.Context, _ string) error {
	return m.err
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
	return m.document, m.err
}

func (m *mockDocumentService) Stats(_ context.Context) (*domain.IndexStats, error) {
	return m.stats, m.err
}

// mockEvaluationService is a mock implementation of driving.EvaluationService.
type mockEvaluationService struct {
	run  *domain.EvaluationRun
	sets []string
	runs []domain.EvaluationRun
	err  error

	gotSetName  string
	gotEvalOpts driving.EvaluationOptions
}

func (m *mockEvaluationService) RunSet(
	_ context.Context,
	setName string,
	opts driving.EvaluationOptions,
) (*domain.EvaluationRun, error) {
	m.gotSetName = setName
	m.gotEvalOpts = opts
	if opts.Progress != nil && m.run != nil && len(m.run.Results) > 0 {
		opts.Progress(len(m.run.Results), len(m.run.Results))
	}
	return m.run, m.err
}

func (m *mockEvaluationService) ListSets(_ context.Context) ([]string, error) {
	return m.sets, m.err
}

func (m *mockEvaluationService) ListRuns(_ context.Context, _ int) ([]domain.EvaluationRun, error) {
	return m.runs, m.err
}

// mockExperimentService is a mock implementation of driving.ExperimentService.
type mockExperimentService struct {
	report      *domain.SweepReport
	experiments []domain.ExperimentResult
	comparison  *domain.ExperimentComparison
	err         error

	gotSetName string
	gotParam   domain.SweepParameter
	gotValues  []int
	gotOpts    driving.SweepOptions
	gotIDs     []string
}

func (m *mockExperimentService) Sweep(
	_ context.Context,
	setName string,
	param domain.SweepParameter,
	values []int,
	opts driving.SweepOptions,
) (*domain.SweepReport, error) {
	m.gotSetName = setName
	m.gotParam = param
	m.gotValues = values
	m.gotOpts = opts
	return m.report, m.err
}

func (m *mockExperimentService) ListExperiments(_ context.Context, _ int) ([]domain.ExperimentResult, error) {
	return m.experiments, m.err
}

func (m *mockExperimentService) Compare(_ context.Context, ids []string) (*domain.ExperimentComparison, error) {
	m.gotIDs = ids
	return m.comparison, m.err
}

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
)

// --- Mock implementations ---

// mockCaseStore implements driven.CaseStore for testing.
type mockCaseStore struct {
	sets map[string][]domain.EvaluationCase
}

func (m *mockCaseStore) LoadSet(_ context.Context, name string) ([]domain.EvaluationCase, error) {
	cases, ok := m.sets[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cases, nil
}

func (m *mockCaseStore) ListSets(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(m.sets))
	for name := range m.sets {
		names = append(names, name)
	}
	return names, nil
}

// mockQueryService implements driving.QueryService with canned results
// keyed by question.
type mockQueryService struct {
	mu      sync.Mutex
	results map[string]*driving.AskResult
	errs    map[string]error
	asked   []string
}

func (m *mockQueryService) Ask(_ context.Context, question string, _ driving.AskOptions) (*driving.AskResult, error) {
	m.mu.Lock()
	m.asked = append(m.asked, question)
	m.mu.Unlock()
	if err, ok := m.errs[question]; ok {
		return nil, err
	}
	if res, ok := m.results[question]; ok {
		return res, nil
	}
	return &driving.AskResult{Query: domain.QueryResult{
		Question: question,
		Answer:   domain.RefusalText,
		Outcome:  domain.OutcomeRefused,
	}}, nil
}

func (m *mockQueryService) AskBatch(ctx context.Context, questions []string, opts driving.AskOptions) ([]driving.BatchItem, error) {
	items := make([]driving.BatchItem, len(questions))
	for i, question := range questions {
		res, err := m.Ask(ctx, question, opts)
		items[i] = driving.BatchItem{Question: question, Result: res, Err: err}
	}
	return items, nil
}

func (m *mockQueryService) Search(_ context.Context, _ string, _ domain.RetrieveOptions) ([]domain.RetrievedItem, error) {
	return nil, nil
}

func (m *mockQueryService) History(_ context.Context, _ int) ([]domain.QueryResult, error) {
	return nil, nil
}

// mockEvaluationStore implements driven.EvaluationStore for testing.
type mockEvaluationStore struct {
	mu      sync.Mutex
	saved   []domain.EvaluationRun
	saveErr error
}

func (m *mockEvaluationStore) SaveRun(_ context.Context, run *domain.EvaluationRun) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, *run)
	return nil
}

func (m *mockEvaluationStore) ListRuns(_ context.Context, _ int) ([]domain.EvaluationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved, nil
}

func (m *mockEvaluationStore) GetRun(_ context.Context, id string) (*domain.EvaluationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.saved {
		if m.saved[i].ID == id {
			return &m.saved[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

// --- Test helpers ---

func answeredResult(answer string, retrieved []domain.RetrievedItem, citations ...string) *driving.AskResult {
	result := &driving.AskResult{
		Query: domain.QueryResult{
			Answer:         answer,
			Outcome:        domain.OutcomeAnswered,
			Confidence:     90,
			RetrievedCount: len(retrieved),
			Elapsed:        25 * time.Millisecond,
		},
		Retrieved: retrieved,
	}
	for _, doc := range citations {
		result.Query.Citations = append(result.Query.Citations, domain.Citation{Document: doc})
	}
	return result
}

func fhaRetrieved() []domain.RetrievedItem {
	return []domain.RetrievedItem{
		{
			Chunk:    domain.Chunk{ID: "chunk-fha-1", Text: "FHA requires a minimum credit score of 580."},
			Document: "fha_guidelines.md",
			Score:    0.9,
			Rank:     1,
		},
	}
}

func creditCases() []domain.EvaluationCase {
	return []domain.EvaluationCase{
		{
			ID:              "tc_001",
			Question:        "What is the FHA minimum credit score?",
			ExpectedAnswer:  "FHA requires a minimum credit score of 580",
			ExpectedSources: []string{"fha_guidelines"},
			Category:        domain.CaseCategoryThreshold,
			Difficulty:      domain.CaseDifficultyEasy,
		},
		{
			ID:              "tc_002",
			Question:        "What is the maximum DTI?",
			Keywords:        []string{"43%"},
			ExpectedSources: []string{"underwriting"},
			Category:        domain.CaseCategoryThreshold,
			Difficulty:      domain.CaseDifficultyEasy,
		},
	}
}

func setupEvaluation(query driving.QueryService, store *mockEvaluationStore) *EvaluationService {
	cases := &mockCaseStore{sets: map[string][]domain.EvaluationCase{
		"credit-policy": creditCases(),
		"empty-set":     {},
	}}
	if store == nil {
		return NewEvaluationService(cases, query, nil, testSettings())
	}
	return NewEvaluationService(cases, query, store, testSettings())
}

// --- Tests ---

func TestEvaluationService_RunSet_AllPass(t *testing.T) {
	query := &mockQueryService{results: map[string]*driving.AskResult{
		"What is the FHA minimum credit score?": answeredResult(
			"FHA requires a minimum credit score of 580. (Source: fha_guidelines.md)",
			fhaRetrieved(), "fha_guidelines.md"),
		"What is the maximum DTI?": answeredResult(
			"The maximum DTI is 43%. (Source: underwriting.md)",
			[]domain.RetrievedItem{{
				Chunk:    domain.Chunk{ID: "chunk-dti-1", Text: "The maximum debt-to-income ratio is 43%."},
				Document: "underwriting.md",
				Score:    0.85,
				Rank:     1,
			}}, "underwriting.md"),
	}}
	store := &mockEvaluationStore{}
	service := setupEvaluation(query, store)

	run, err := service.RunSet(context.Background(), "credit-policy", driving.EvaluationOptions{})

	require.NoError(t, err)
	assert.Equal(t, "credit-policy", run.SetName)
	assert.NotEmpty(t, run.ID)
	require.Len(t, run.Results, 2)
	assert.Empty(t, run.FailedCases)
	assert.Equal(t, 1.0, run.Metrics.AnswerAccuracy)
	assert.Equal(t, 1.0, run.Metrics.SourceAccuracy)
	assert.Equal(t, 1.0, run.Metrics.CitationCoverage)
	assert.Equal(t, 0.0, run.Metrics.HallucinationRate)
	assert.Equal(t, 1.0, run.Metrics.PrecisionAtK)
	assert.Equal(t, 1.0, run.Metrics.RecallAtK)
	assert.Equal(t, 1.0, run.Metrics.MRR)
	assert.Equal(t, 90.0, run.Metrics.AvgConfidence)
	assert.InDelta(t, 25.0, run.Metrics.AvgResponseTimeMS, 0.001)

	require.Len(t, store.saved, 1, "run persisted")
	assert.Equal(t, run.ID, store.saved[0].ID)
}

func TestEvaluationService_RunSet_AnswerMismatch(t *testing.T) {
	query := &mockQueryService{results: map[string]*driving.AskResult{
		"What is the FHA minimum credit score?": answeredResult(
			"FHA requires a minimum credit score of 580. (Source: fha_guidelines.md)",
			fhaRetrieved(), "fha_guidelines.md"),
		// Missing the 43% keyword the case expects.
		"What is the maximum DTI?": answeredResult(
			"Debt ratios vary by program.",
			[]domain.RetrievedItem{{
				Chunk:    domain.Chunk{ID: "chunk-dti-1", Text: "ratio details"},
				Document: "underwriting.md",
				Score:    0.8,
			}}, "underwriting.md"),
	}}
	service := setupEvaluation(query, &mockEvaluationStore{})

	run, err := service.RunSet(context.Background(), "credit-policy", driving.EvaluationOptions{})

	require.NoError(t, err)
	assert.Equal(t, 0.5, run.Metrics.AnswerAccuracy)
	require.Len(t, run.FailedCases, 1)
	assert.Equal(t, "tc_002", run.FailedCases[0])
	assert.Equal(t, 1, run.ErrorCategories[domain.ErrorMismatch])

	var failed domain.CaseResult
	for _, r := range run.Results {
		if r.CaseID == "tc_002" {
			failed = r
		}
	}
	assert.True(t, failed.Failed)
	assert.Equal(t, domain.ErrorMismatch, failed.Category)
	require.NotNil(t, failed.AnswerCorrect)
	assert.False(t, *failed.AnswerCorrect)
}

func TestEvaluationService_RunSet_RefusalCategorised(t *testing.T) {
	refusedEmpty := &driving.AskResult{Query: domain.QueryResult{
		Answer:  domain.RefusalText,
		Outcome: domain.OutcomeRefused,
	}}
	refusedValidation := &driving.AskResult{
		Query: domain.QueryResult{
			Answer:         domain.RefusalText,
			Outcome:        domain.OutcomeRefused,
			RetrievedCount: 3,
		},
		Retrieved: fhaRetrieved(),
	}
	query := &mockQueryService{results: map[string]*driving.AskResult{
		"What is the FHA minimum credit score?": refusedEmpty,
		"What is the maximum DTI?":              refusedValidation,
	}}
	service := setupEvaluation(query, nil)

	run, err := service.RunSet(context.Background(), "credit-policy", driving.EvaluationOptions{})

	require.NoError(t, err)
	assert.Len(t, run.FailedCases, 2)
	assert.Equal(t, 1, run.ErrorCategories[domain.ErrorRetrievalEmpty])
	assert.Equal(t, 1, run.ErrorCategories[domain.ErrorValidationRefused])
	assert.Equal(t, 0.0, run.Metrics.AnswerAccuracy)
}

func TestEvaluationService_RunSet_QueryErrorCategorised(t *testing.T) {
	query := &mockQueryService{
		results: map[string]*driving.AskResult{
			"What is the FHA minimum credit score?": answeredResult(
				"FHA requires a minimum credit score of 580.",
				fhaRetrieved(), "fha_guidelines.md"),
		},
		errs: map[string]error{
			"What is the maximum DTI?": errors.New("model overloaded"),
		},
	}
	service := setupEvaluation(query, nil)

	run, err := service.RunSet(context.Background(), "credit-policy", driving.EvaluationOptions{})

	require.NoError(t, err, "case failures never fail the run")
	assert.Equal(t, 1, run.ErrorCategories[domain.ErrorGeneration])
	require.Len(t, run.FailedCases, 1)
	assert.Equal(t, "tc_002", run.FailedCases[0])
}

func TestEvaluationService_RunSet_HallucinationDetected(t *testing.T) {
	query := &mockQueryService{results: map[string]*driving.AskResult{
		// 999 appears nowhere in the retrieved text.
		"What is the FHA minimum credit score?": answeredResult(
			"FHA requires a minimum credit score of 999. 580",
			fhaRetrieved(), "fha_guidelines.md"),
		"What is the maximum DTI?": answeredResult(
			"The maximum DTI is 43%.",
			[]domain.RetrievedItem{{
				Chunk:    domain.Chunk{ID: "chunk-dti-1", Text: "The maximum debt-to-income ratio is 43%."},
				Document: "underwriting.md",
				Score:    0.85,
			}}, "underwriting.md"),
	}}
	service := setupEvaluation(query, nil)

	run, err := service.RunSet(context.Background(), "credit-policy", driving.EvaluationOptions{})

	require.NoError(t, err)
	assert.Equal(t, 0.5, run.Metrics.HallucinationRate)
}

func TestEvaluationService_RunSet_UnknownSet(t *testing.T) {
	service := setupEvaluation(&mockQueryService{}, nil)

	_, err := service.RunSet(context.Background(), "no-such-set", driving.EvaluationOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEvaluationService_RunSet_EmptySet(t *testing.T) {
	service := setupEvaluation(&mockQueryService{}, nil)

	_, err := service.RunSet(context.Background(), "empty-set", driving.EvaluationOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestEvaluationService_RunSet_ProgressReported(t *testing.T) {
	query := &mockQueryService{results: map[string]*driving.AskResult{
		"What is the FHA minimum credit score?": answeredResult(
			"FHA requires a minimum credit score of 580.", fhaRetrieved(), "fha_guidelines.md"),
		"What is the maximum DTI?": answeredResult(
			"The maximum DTI is 43%.",
			[]domain.RetrievedItem{{
				Chunk:    domain.Chunk{ID: "chunk-dti-1", Text: "43% cap"},
				Document: "underwriting.md",
				Score:    0.85,
			}}, "underwriting.md"),
	}}
	service := setupEvaluation(query, nil)

	var mu sync.Mutex
	var calls []int
	_, err := service.RunSet(context.Background(), "credit-policy", driving.EvaluationOptions{
		Concurrency: 1,
		Progress: func(done, total int) {
			mu.Lock()
			calls = append(calls, done)
			mu.Unlock()
			assert.Equal(t, 2, total)
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, calls)
}

func TestEvaluationService_RunSet_SaveFailureNotFatal(t *testing.T) {
	query := &mockQueryService{results: map[string]*driving.AskResult{
		"What is the FHA minimum credit score?": answeredResult(
			"FHA requires a minimum credit score of 580.", fhaRetrieved(), "fha_guidelines.md"),
		"What is the maximum DTI?": answeredResult(
			"The maximum DTI is 43%.",
			[]domain.RetrievedItem{{
				Chunk:    domain.Chunk{ID: "chunk-dti-1", Text: "43% cap"},
				Document: "underwriting.md",
				Score:    0.85,
			}}, "underwriting.md"),
	}}
	store := &mockEvaluationStore{saveErr: errors.New("disk full")}
	service := setupEvaluation(query, store)

	run, err := service.RunSet(context.Background(), "credit-policy", driving.EvaluationOptions{})

	require.NoError(t, err)
	assert.NotNil(t, run)
}

func TestEvaluationService_RunSet_ExactStrategy(t *testing.T) {
	// A paraphrase the semantic strategy accepts but exact matching must
	// not: same figure, different wording.
	query := &mockQueryService{results: map[string]*driving.AskResult{
		"What is the FHA minimum credit score?": answeredResult(
			"FHA asks for a minimum credit score of 580 at most tiers.",
			fhaRetrieved(), "fha_guidelines.md"),
		"What is the maximum DTI?": answeredResult(
			"The maximum DTI is 43%.",
			[]domain.RetrievedItem{{
				Chunk:    domain.Chunk{ID: "chunk-dti-1", Text: "The maximum debt-to-income ratio is 43%."},
				Document: "underwriting.md",
				Score:    0.85,
			}}, "underwriting.md"),
	}}
	service := setupEvaluation(query, nil)

	semantic, err := service.RunSet(context.Background(), "credit-policy",
		driving.EvaluationOptions{Strategy: domain.MatchSemantic})
	require.NoError(t, err)
	exact, err := service.RunSet(context.Background(), "credit-policy",
		driving.EvaluationOptions{Strategy: domain.MatchExact})
	require.NoError(t, err)

	// tc_002's keywords rescue it under both strategies; tc_001's
	// paraphrase only survives semantic matching.
	assert.Equal(t, 1.0, semantic.Metrics.AnswerAccuracy)
	assert.Equal(t, 0.5, exact.Metrics.AnswerAccuracy)
	assert.Contains(t, exact.FailedCases, "tc_001")
}

func TestEvaluationService_RunSet_NumericStrategy(t *testing.T) {
	// Reworded answer keeps the expected figure; numeric matching accepts
	// it while exact would not.
	query := &mockQueryService{results: map[string]*driving.AskResult{
		"What is the FHA minimum credit score?": answeredResult(
			"Lending starts at a 580 score.",
			fhaRetrieved(), "fha_guidelines.md"),
		"What is the maximum DTI?": answeredResult(
			"The maximum DTI is 43%.",
			[]domain.RetrievedItem{{
				Chunk:    domain.Chunk{ID: "chunk-dti-1", Text: "The maximum debt-to-income ratio is 43%."},
				Document: "underwriting.md",
				Score:    0.85,
			}}, "underwriting.md"),
	}}
	service := setupEvaluation(query, nil)

	run, err := service.RunSet(context.Background(), "credit-policy",
		driving.EvaluationOptions{Strategy: domain.MatchNumeric})

	require.NoError(t, err)
	assert.Equal(t, 1.0, run.Metrics.AnswerAccuracy)
}

func TestEvaluationService_RunSet_InvalidStrategy(t *testing.T) {
	service := setupEvaluation(&mockQueryService{}, nil)

	_, err := service.RunSet(context.Background(), "credit-policy",
		driving.EvaluationOptions{Strategy: domain.MatchStrategy("vibes")})

	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestEvaluationService_RunSet_SampleSize(t *testing.T) {
	query := &mockQueryService{results: map[string]*driving.AskResult{
		"What is the FHA minimum credit score?": answeredResult(
			"FHA requires a minimum credit score of 580.", fhaRetrieved(), "fha_guidelines.md"),
	}}
	service := setupEvaluation(query, nil)

	run, err := service.RunSet(context.Background(), "credit-policy",
		driving.EvaluationOptions{SampleSize: 1})

	require.NoError(t, err)
	require.Len(t, run.Results, 1, "only the first case runs")
	assert.Equal(t, "tc_001", run.Results[0].CaseID)
	require.Len(t, query.asked, 1)

	// A cap beyond the set size runs everything.
	full, err := service.RunSet(context.Background(), "credit-policy",
		driving.EvaluationOptions{SampleSize: 50})
	require.NoError(t, err)
	assert.Len(t, full.Results, 2)
}

// TestEvaluationService_RunSet_Repeatable runs the same set twice
// against a frozen pipeline: every non-timing metric must come out
// identical.
func TestEvaluationService_RunSet_Repeatable(t *testing.T) {
	makeQuery := func() *mockQueryService {
		return &mockQueryService{results: map[string]*driving.AskResult{
			"What is the FHA minimum credit score?": answeredResult(
				"FHA requires a minimum credit score of 580. (Source: fha_guidelines.md)",
				fhaRetrieved(), "fha_guidelines.md"),
			// tc_002 refuses both times.
		}}
	}
	service := setupEvaluation(makeQuery(), nil)

	first, err := service.RunSet(context.Background(), "credit-policy", driving.EvaluationOptions{})
	require.NoError(t, err)
	second, err := service.RunSet(context.Background(), "credit-policy", driving.EvaluationOptions{})
	require.NoError(t, err)

	// Timing is the only metric allowed to differ between passes.
	firstMetrics, secondMetrics := first.Metrics, second.Metrics
	firstMetrics.AvgResponseTimeMS = 0
	secondMetrics.AvgResponseTimeMS = 0
	assert.Equal(t, firstMetrics, secondMetrics)
	assert.Equal(t, first.FailedCases, second.FailedCases)
	assert.Equal(t, first.ErrorCategories, second.ErrorCategories)
	assert.NotEqual(t, first.ID, second.ID, "each invocation is its own run")
}

func TestEvaluationService_RunSet_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	service := setupEvaluation(&mockQueryService{}, nil)

	_, err := service.RunSet(ctx, "credit-policy", driving.EvaluationOptions{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluationService_ListSets(t *testing.T) {
	service := setupEvaluation(&mockQueryService{}, nil)

	sets, err := service.ListSets(context.Background())

	require.NoError(t, err)
	assert.Len(t, sets, 2)
	assert.Contains(t, sets, "credit-policy")
}

func TestEvaluationService_ListRuns_NotConfigured(t *testing.T) {
	service := setupEvaluation(&mockQueryService{}, nil)

	_, err := service.ListRuns(context.Background(), 0)

	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestRetrievalScores(t *testing.T) {
	retrieved := []domain.RetrievedItem{
		{Document: "other.md"},
		{Document: "fha_guidelines.md"},
		{Document: "other.md"},
		{Document: "underwriting.md"},
	}

	precision, recall, rr := retrievalScores(retrieved, []string{"fha_guidelines", "underwriting", "missing_doc"})

	// Distinct documents in rank order: other.md, fha_guidelines.md,
	// underwriting.md. Two of three are expected; the first hit is at
	// rank 2.
	assert.InDelta(t, 2.0/3.0, precision, 0.001)
	assert.InDelta(t, 2.0/3.0, recall, 0.001)
	assert.InDelta(t, 0.5, rr, 0.001)
}

func TestAnswerMatches(t *testing.T) {
	tests := []struct {
		name     string
		strategy domain.MatchStrategy
		answer   string
		expected string
		keywords []string
		want     bool
	}{
		{
			name:     "semantic high word overlap",
			strategy: domain.MatchSemantic,
			answer:   "FHA requires a minimum credit score of 580 for maximum financing",
			expected: "FHA requires a minimum credit score of 580",
			want:     true,
		},
		{
			name:     "semantic no overlap",
			strategy: domain.MatchSemantic,
			answer:   "Collateral must be appraised annually.",
			expected: "FHA requires a minimum credit score of 580",
			want:     false,
		},
		{
			name:     "empty strategy falls back to semantic",
			answer:   "FHA requires a minimum credit score of 580 for maximum financing",
			expected: "FHA requires a minimum credit score of 580",
			want:     true,
		},
		{
			name:     "all keywords present",
			strategy: domain.MatchSemantic,
			answer:   "The maximum DTI is 43% for qualified mortgages.",
			keywords: []string{"43%", "qualified"},
			want:     true,
		},
		{
			name:     "keyword missing",
			strategy: domain.MatchSemantic,
			answer:   "The maximum DTI is 43%.",
			keywords: []string{"43%", "qualified"},
			want:     false,
		},
		{
			name:     "keywords rescue low overlap",
			strategy: domain.MatchSemantic,
			answer:   "Cap: 43% per current rules.",
			expected: "The maximum debt-to-income ratio for qualified mortgages is 43% of gross monthly income",
			keywords: []string{"43%"},
			want:     true,
		},
		{
			name:     "exact substring case-insensitive",
			strategy: domain.MatchExact,
			answer:   "Per the guidelines, FHA REQUIRES A MINIMUM CREDIT SCORE OF 580 for maximum financing.",
			expected: "FHA requires a minimum credit score of 580",
			want:     true,
		},
		{
			name:     "exact rejects paraphrase semantic would accept",
			strategy: domain.MatchExact,
			answer:   "FHA sets the minimum credit score at 580.",
			expected: "FHA requires a minimum credit score of 580",
			want:     false,
		},
		{
			name:     "numeric tolerates reworded answer",
			strategy: domain.MatchNumeric,
			answer:   "Borrowers need at least a 580 along with 3.50% down.",
			expected: "A credit score of 580 and a 3.5% down payment are required",
			want:     true,
		},
		{
			name:     "numeric tolerates thousands separators",
			strategy: domain.MatchNumeric,
			answer:   "The cap is 1250.50 per borrower.",
			expected: "The cap is $1,250.50",
			want:     true,
		},
		{
			name:     "numeric missing threshold fails",
			strategy: domain.MatchNumeric,
			answer:   "Borrowers need at least a 580.",
			expected: "A credit score of 580 and a 3.5% down payment are required",
			want:     false,
		},
		{
			name:     "numeric without expected figures fails",
			strategy: domain.MatchNumeric,
			answer:   "Policies favour reliable borrowers.",
			expected: "Policies favour reliable borrowers.",
			want:     false,
		},
		{
			name:     "keywords rescue under exact",
			strategy: domain.MatchExact,
			answer:   "Cap: 43% per current rules.",
			expected: "The maximum debt-to-income ratio is 43%",
			keywords: []string{"43%"},
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, answerMatches(tt.strategy, tt.answer, tt.expected, tt.keywords))
		})
	}
}

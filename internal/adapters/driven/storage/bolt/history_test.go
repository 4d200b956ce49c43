package bolt

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

// --- Test helpers ---

// setupTestStore creates a temporary bolt store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	return store
}

func testQueryResult(id, question string) *domain.QueryResult {
	return &domain.QueryResult{
		ID:       id,
		Question: question,
		Answer:   "Loans above $50,000 require senior approval.",
		Citations: []domain.Citation{
			{
				Document: "lending_limits.md",
				ChunkID:  "chunk-1",
				Section:  "Approval Limits",
				Excerpt:  "Loans above $50,000 require senior credit officer approval.",
				Score:    0.91,
			},
		},
		Confidence:     87,
		Outcome:        domain.OutcomeAnswered,
		RetrievedCount: 3,
		TokensUsed:     412,
		Elapsed:        850 * time.Millisecond,
		Timestamp:      time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func testRun(id string, runAt time.Time) *domain.EvaluationRun {
	return &domain.EvaluationRun{
		ID:      id,
		SetName: "builtin",
		RunAt:   runAt,
		Results: []domain.CaseResult{
			{CaseID: "tc_001", Question: "What is the minimum credit score?", SourceMatch: true},
		},
		Metrics:     domain.EvaluationMetrics{AnswerAccuracy: 0.8, MRR: 0.75},
		FailedCases: []string{"tc_004"},
		ErrorCategories: map[domain.ErrorCategory]int{
			domain.ErrorMismatch: 1,
		},
	}
}

// --- Query history tests ---

func TestQueryHistory_AppendAndList(t *testing.T) {
	store := setupTestStore(t)
	history := store.QueryHistoryStore()
	ctx := context.Background()

	require.NoError(t, history.AppendQuery(ctx, testQueryResult("q-1", "first question")))
	require.NoError(t, history.AppendQuery(ctx, testQueryResult("q-2", "second question")))
	require.NoError(t, history.AppendQuery(ctx, testQueryResult("q-3", "third question")))

	results, err := history.ListQueries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Newest first.
	assert.Equal(t, "q-3", results[0].ID)
	assert.Equal(t, "q-2", results[1].ID)
	assert.Equal(t, "q-1", results[2].ID)
}

func TestQueryHistory_ListLimit(t *testing.T) {
	store := setupTestStore(t)
	history := store.QueryHistoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, history.AppendQuery(ctx, testQueryResult(fmt.Sprintf("q-%d", i), "question")))
	}

	results, err := history.ListQueries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "q-4", results[0].ID)
	assert.Equal(t, "q-3", results[1].ID)
}

func TestQueryHistory_ListEmpty(t *testing.T) {
	store := setupTestStore(t)

	results, err := store.QueryHistoryStore().ListQueries(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryHistory_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	history := store.QueryHistoryStore()
	ctx := context.Background()

	saved := testQueryResult("q-1", "What is the approval limit?")
	require.NoError(t, history.AppendQuery(ctx, saved))

	results, err := history.ListQueries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, saved.Question, got.Question)
	assert.Equal(t, saved.Answer, got.Answer)
	assert.Equal(t, saved.Citations, got.Citations)
	assert.Equal(t, saved.Confidence, got.Confidence)
	assert.Equal(t, saved.Outcome, got.Outcome)
	assert.Equal(t, saved.RetrievedCount, got.RetrievedCount)
	assert.Equal(t, saved.TokensUsed, got.TokensUsed)
	assert.Equal(t, saved.Elapsed, got.Elapsed)
	assert.True(t, saved.Timestamp.Equal(got.Timestamp))
}

func TestQueryHistory_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := NewStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.QueryHistoryStore().AppendQuery(ctx, testQueryResult("q-1", "question")))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.QueryHistoryStore().ListQueries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "q-1", results[0].ID)
}

// --- Evaluation store tests ---

func TestEvaluationStore_SaveAndGet(t *testing.T) {
	store := setupTestStore(t)
	evals := store.EvaluationStore()
	ctx := context.Background()

	saved := testRun("run-1", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	require.NoError(t, evals.SaveRun(ctx, saved))

	got, err := evals.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, saved.SetName, got.SetName)
	assert.Equal(t, saved.Results, got.Results)
	assert.Equal(t, saved.Metrics, got.Metrics)
	assert.Equal(t, saved.FailedCases, got.FailedCases)
	assert.Equal(t, saved.ErrorCategories, got.ErrorCategories)
	assert.True(t, saved.RunAt.Equal(got.RunAt))
}

func TestEvaluationStore_GetNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.EvaluationStore().GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEvaluationStore_ListNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	evals := store.EvaluationStore()
	ctx := context.Background()

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, evals.SaveRun(ctx, testRun("run-old", base)))
	require.NoError(t, evals.SaveRun(ctx, testRun("run-new", base.Add(2*time.Hour))))
	require.NoError(t, evals.SaveRun(ctx, testRun("run-mid", base.Add(time.Hour))))

	runs, err := evals.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-new", runs[0].ID)
	assert.Equal(t, "run-mid", runs[1].ID)
	assert.Equal(t, "run-old", runs[2].ID)

	limited, err := evals.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-new", limited[0].ID)
}

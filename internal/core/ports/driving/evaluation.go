package driving

import (
	"context"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

// EvaluationService runs case sets against the engine and scores the results.
type EvaluationService interface {
	// RunSet executes every case in the named set and computes aggregate
	// metrics. Individual case failures are recorded and categorised, not
	// fatal; only context cancellation aborts the run.
	RunSet(ctx context.Context, setName string, opts EvaluationOptions) (*domain.EvaluationRun, error)

	// ListSets returns the names of all available case sets, sorted.
	ListSets(ctx context.Context) ([]string, error)

	// ListRuns returns the most recent persisted runs, newest first.
	// A limit of 0 returns all recorded runs.
	ListRuns(ctx context.Context, limit int) ([]domain.EvaluationRun, error)
}

// EvaluationOptions configures an evaluation run.
type EvaluationOptions struct {
	// Concurrency caps parallel case execution.
	// Zero or negative means the configured default.
	Concurrency int

	// Strategy selects how produced answers are compared to expected
	// answers. Empty means domain.MatchSemantic.
	Strategy domain.MatchStrategy

	// SampleSize caps how many cases run, taking the first N in set
	// order. Zero or negative runs the whole set.
	SampleSize int

	// Progress, when non-nil, is called after each case completes.
	Progress func(done, total int)
}

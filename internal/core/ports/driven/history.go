package driven

import (
	"context"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

// QueryHistoryStore records answered queries for audit and the history command.
// This is an optional store - when nil, queries are not recorded.
//
// Cancelled queries are never recorded; the query service only appends
// results that completed.
type QueryHistoryStore interface {
	// AppendQuery records a completed query.
	AppendQuery(ctx context.Context, result *domain.QueryResult) error

	// ListQueries returns the most recent queries, newest first.
	// A limit of 0 returns all recorded queries.
	ListQueries(ctx context.Context, limit int) ([]domain.QueryResult, error)

	// Close releases resources.
	Close() error
}

// EvaluationStore persists evaluation runs so reports can be compared over time.
// This is an optional store - when nil, evaluation reports are print-only.
type EvaluationStore interface {
	// SaveRun stores a completed evaluation run with its per-case results.
	SaveRun(ctx context.Context, run *domain.EvaluationRun) error

	// ListRuns returns the most recent runs, newest first.
	// A limit of 0 returns all recorded runs.
	ListRuns(ctx context.Context, limit int) ([]domain.EvaluationRun, error)

	// GetRun retrieves a run by ID.
	// Returns domain.ErrNotFound if no run has that ID.
	GetRun(ctx context.Context, id string) (*domain.EvaluationRun, error)
}

// ExperimentStore persists parameter sweep results.
// This is an optional store - when nil, sweep reports are print-only.
type ExperimentStore interface {
	// SaveExperiment stores a single experiment result from a sweep.
	SaveExperiment(ctx context.Context, result *domain.ExperimentResult) error

	// ListExperiments returns the most recent experiments, newest first.
	// A limit of 0 returns all recorded experiments.
	ListExperiments(ctx context.Context, limit int) ([]domain.ExperimentResult, error)

	// GetExperiment retrieves an experiment by ID.
	// Returns domain.ErrNotFound if no experiment has that ID.
	GetExperiment(ctx context.Context, id string) (*domain.ExperimentResult, error)
}

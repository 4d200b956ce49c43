package driving

import (
	"context"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

// ExperimentService sweeps retrieval parameters and compares evaluation
// metrics across the values.
type ExperimentService interface {
	// Sweep evaluates the named case set once per parameter value and
	// reports which value scored best. Chunk-size sweeps build a scratch
	// index per value; the live index is never touched. Passing no values
	// uses the standard grid for the parameter.
	Sweep(ctx context.Context, setName string, param domain.SweepParameter, values []int, opts SweepOptions) (*domain.SweepReport, error)

	// ListExperiments returns the most recent persisted experiments,
	// newest first. A limit of 0 returns all recorded experiments.
	ListExperiments(ctx context.Context, limit int) ([]domain.ExperimentResult, error)

	// Compare loads the named experiments and ranks them against the
	// first, the baseline: best config, accuracy improvement, and
	// response-time delta. Requires at least two IDs.
	Compare(ctx context.Context, ids []string) (*domain.ExperimentComparison, error)
}

// SweepOptions configures a parameter sweep.
type SweepOptions struct {
	// Overlap pins the chunk overlap for chunk-size experiments.
	// Zero scales the overlap to 20% of each candidate size.
	Overlap int

	// SampleSize caps how many cases each experiment evaluates, taking
	// the first N in set order. Zero or negative runs the whole set.
	SampleSize int

	// Progress, when non-nil, is called after each experiment completes.
	Progress func(done, total int)
}

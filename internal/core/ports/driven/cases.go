package driven

import (
	"context"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

// CaseStore loads evaluation case sets.
// Implementations may read YAML files from a cases directory or serve
// a set embedded in the binary.
type CaseStore interface {
	// LoadSet returns the cases in the named set.
	// Returns domain.ErrNotFound if no set has that name.
	LoadSet(ctx context.Context, name string) ([]domain.EvaluationCase, error)

	// ListSets returns the names of all available sets, sorted.
	ListSets(ctx context.Context) ([]string, error)
}

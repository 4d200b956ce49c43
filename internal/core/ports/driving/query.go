package driving

import (
	"context"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

// QueryService answers questions over the indexed policy corpus.
type QueryService interface {
	// Ask runs the full online path: retrieve, generate, validate grounding.
	// It never fabricates: when retrieval comes back empty or validation
	// fails twice, the result carries the fixed refusal text.
	Ask(ctx context.Context, question string, opts AskOptions) (*AskResult, error)

	// AskBatch answers every question through a bounded worker pool,
	// returning one item per question in input order. A question failing
	// does not abort the others; only context cancellation does.
	AskBatch(ctx context.Context, questions []string, opts AskOptions) ([]BatchItem, error)

	// Search runs retrieval only, returning scored chunks without
	// generating an answer.
	Search(ctx context.Context, question string, opts domain.RetrieveOptions) ([]domain.RetrievedItem, error)

	// History returns the most recent recorded queries, newest first.
	// A limit of 0 returns all recorded queries.
	History(ctx context.Context, limit int) ([]domain.QueryResult, error)
}

// AskOptions overrides retrieval defaults for a single question.
type AskOptions struct {
	// K is the maximum number of chunks to retrieve.
	// Zero or negative means the configured default.
	K int

	// Threshold is the minimum similarity score. Negative means the
	// configured default; zero disables the cutoff entirely.
	Threshold float64

	// Filter restricts retrieval by document or section metadata.
	// Nil means no filtering.
	Filter *domain.MetadataFilter

	// Diversify applies maximal-marginal-relevance selection so
	// near-duplicate chunks don't crowd out coverage.
	Diversify bool
}

// BatchItem is one question's outcome within a batch ask.
type BatchItem struct {
	// Question is the question as submitted.
	Question string

	// Result is the completed query; nil when Err is set.
	Result *AskResult

	// Err is the per-question failure; nil when the question answered.
	Err error
}

// AskResult is a completed query plus the context it was answered from.
type AskResult struct {
	// Query is the recorded result: answer, citations, confidence, timing.
	Query domain.QueryResult

	// Retrieved is the full retrieval context the answer was grounded in,
	// ordered by rank. Exposed for the --show-context flag and the MCP
	// search tool.
	Retrieved []domain.RetrievedItem
}

package domain

import "time"

// RefusalText is the fixed answer returned whenever the engine cannot
// ground a response in retrieved policy text. Callers and tests rely on
// this exact wording.
const RefusalText = "I don't have information about that in the policy documents."

// RetrieveOptions configures a retrieval pass.
type RetrieveOptions struct {
	// K is the maximum number of items to return.
	K int

	// Threshold is the minimum similarity score; items below it are dropped.
	Threshold float64

	// Filter restricts results by metadata before truncation to K.
	// Nil means no filtering.
	Filter *MetadataFilter

	// Rerank applies the heuristic reranking pass over 2*K candidates.
	Rerank bool

	// Diversify applies maximal-marginal-relevance selection over 3*K
	// candidates so near-duplicate chunks don't crowd out coverage.
	Diversify bool
}

// MetadataFilter restricts retrieval by chunk/document metadata.
// Zero-value fields are ignored.
type MetadataFilter struct {
	// Filename matches the parent document's filename exactly.
	Filename string

	// Type matches the parent document's type.
	Type DocumentType

	// Section matches the chunk's section heading (case-insensitive).
	Section string
}

// Empty returns true if no criteria are set.
func (f *MetadataFilter) Empty() bool {
	return f == nil || (f.Filename == "" && f.Type == "" && f.Section == "")
}

// RetrievedItem is a chunk scored against a query. Transient, produced
// per retrieval pass.
type RetrievedItem struct {
	// Chunk is the matched chunk.
	Chunk Chunk

	// Document is the parent document's filename.
	Document string

	// Type is the parent document's type.
	Type DocumentType

	// Score is the normalised similarity in [0,1].
	Score float64

	// RerankScore is the adjusted score when reranking ran; 0 otherwise.
	RerankScore float64

	// Rank is the 1-based position after ordering.
	Rank int
}

// EffectiveScore returns the rerank score when present, else the raw score.
func (r RetrievedItem) EffectiveScore() float64 {
	if r.RerankScore > 0 {
		return r.RerankScore
	}
	return r.Score
}

// Citation records a retrieved excerpt actually used by an answer.
type Citation struct {
	// Document is the source document's filename.
	Document string

	// ChunkID identifies the cited chunk.
	ChunkID string

	// Section is the chunk's section heading.
	Section string

	// Excerpt is the cited chunk text.
	Excerpt string

	// Score is the retrieval similarity of the cited chunk.
	Score float64
}

// Answer is the raw output of the answer generator, before grounding
// validation.
type Answer struct {
	// Text is the generated answer.
	Text string

	// Citations are the excerpts the answer actually referenced.
	Citations []Citation

	// Confidence is the conservative confidence estimate (0-100).
	Confidence int

	// TokensUsed is the completion service's reported token count.
	TokensUsed int
}

// Refused returns true if this is the fixed refusal answer.
func (a Answer) Refused() bool {
	return a.Text == RefusalText
}

// QueryOutcome describes how a query resolved.
type QueryOutcome string

// Recognised query outcomes.
const (
	// OutcomeAnswered means a validated, grounded answer was produced.
	OutcomeAnswered QueryOutcome = "answered"

	// OutcomeRefused means grounding failed and the refusal was returned.
	OutcomeRefused QueryOutcome = "refused"
)

// QueryResult is the immutable record of one answered question.
type QueryResult struct {
	// ID is the unique identifier for the query.
	ID string

	// Question is the question as asked.
	Question string

	// Answer is the final answer text (possibly the refusal).
	Answer string

	// Citations are ordered by retrieval rank.
	Citations []Citation

	// Confidence is 0-100; 0 for refusals.
	Confidence int

	// Outcome records whether the query was answered or refused.
	Outcome QueryOutcome

	// RetrievedCount is how many items survived retrieval.
	RetrievedCount int

	// TokensUsed is the completion token count, when reported.
	TokensUsed int

	// Elapsed is the wall time for the full online path.
	Elapsed time.Duration

	// Timestamp is when the query completed.
	Timestamp time.Time
}

package domain

import "time"

// CaseCategory groups evaluation cases by the kind of question asked.
type CaseCategory string

// Recognised case categories.
const (
	CaseCategoryThreshold  CaseCategory = "threshold"
	CaseCategoryPolicy     CaseCategory = "policy"
	CaseCategoryDefinition CaseCategory = "definition"
	CaseCategoryEdgeCase   CaseCategory = "edge_case"
	CaseCategoryMultiHop   CaseCategory = "multi_hop"
)

// CaseDifficulty grades evaluation cases.
type CaseDifficulty string

// Recognised difficulties.
const (
	CaseDifficultyEasy   CaseDifficulty = "easy"
	CaseDifficultyMedium CaseDifficulty = "medium"
	CaseDifficultyHard   CaseDifficulty = "hard"
)

// EvaluationCase is a single golden question with expectations.
// Static; loaded from a case set.
type EvaluationCase struct {
	// ID is the unique case identifier (e.g. "tc_001").
	ID string

	// Question is the question to ask.
	Question string

	// ExpectedAnswer is the ground-truth answer, when known.
	ExpectedAnswer string

	// ExpectedSources are document filenames that should be cited.
	ExpectedSources []string

	// Keywords are terms the answer should contain.
	Keywords []string

	// Category groups the case.
	Category CaseCategory

	// Difficulty grades the case.
	Difficulty CaseDifficulty
}

// MatchStrategy selects how produced answers are compared to expectations.
type MatchStrategy string

// Recognised match strategies.
const (
	// MatchExact requires the expected answer as an exact substring.
	MatchExact MatchStrategy = "exact"

	// MatchNumeric requires every numeric token of the expected answer
	// to appear in the produced answer.
	MatchNumeric MatchStrategy = "numeric"

	// MatchSemantic accepts word-overlap similarity above a fixed cutoff,
	// or all expected keywords present.
	MatchSemantic MatchStrategy = "semantic"
)

// IsValid returns true if the strategy is recognised.
func (s MatchStrategy) IsValid() bool {
	switch s {
	case MatchExact, MatchNumeric, MatchSemantic:
		return true
	default:
		return false
	}
}

// ErrorCategory classifies why an evaluation case failed.
type ErrorCategory string

// Recognised error categories.
const (
	// ErrorRetrievalEmpty means no chunks survived thresholding.
	ErrorRetrievalEmpty ErrorCategory = "retrieval_empty"

	// ErrorGeneration means the completion service failed after retries.
	ErrorGeneration ErrorCategory = "generation_error"

	// ErrorValidationRefused means the grounding validator rejected the answer.
	ErrorValidationRefused ErrorCategory = "validation_refused"

	// ErrorMismatch means the answer did not match the expectation.
	ErrorMismatch ErrorCategory = "mismatch"
)

// CaseResult records the outcome of one evaluation case.
type CaseResult struct {
	// CaseID links back to the evaluation case.
	CaseID string

	// Question is the case question.
	Question string

	// Answer is the produced answer text.
	Answer string

	// CitedSources are the document filenames cited, in rank order.
	CitedSources []string

	// AnswerCorrect reports whether the answer matched the expectation.
	// Nil when the case carries no expected answer.
	AnswerCorrect *bool

	// SourceMatch reports whether any expected source was cited.
	SourceMatch bool

	// Hallucinated reports an unsupported numeric token in the answer.
	Hallucinated bool

	// Confidence is the query confidence (0-100).
	Confidence int

	// Precision is the fraction of retrieved documents that were expected.
	Precision float64

	// Recall is the fraction of expected documents that were retrieved.
	Recall float64

	// ReciprocalRank is 1/rank of the first expected document retrieved;
	// 0 when none was.
	ReciprocalRank float64

	// ResponseTimeMS is the case's online-path latency.
	ResponseTimeMS float64

	// Failed marks the case as a failure.
	Failed bool

	// Category classifies the failure; empty when the case passed.
	Category ErrorCategory

	// Err carries the failure detail; empty when the case passed.
	Err string
}

// EvaluationMetrics aggregates case results. All ratios are in [0,1];
// AvgConfidence is 0-100 and AvgResponseTimeMS is milliseconds.
type EvaluationMetrics struct {
	AnswerAccuracy    float64
	SourceAccuracy    float64
	HallucinationRate float64
	CitationCoverage  float64
	PrecisionAtK      float64
	RecallAtK         float64
	MRR               float64
	AvgResponseTimeMS float64
	AvgConfidence     float64
}

// EvaluationRun is the immutable record of one evaluator invocation.
// Each case runs exactly once per invocation; metrics describe that
// single pass.
type EvaluationRun struct {
	// ID is the unique run identifier.
	ID string

	// SetName names the case set evaluated.
	SetName string

	// RunAt is when the run started.
	RunAt time.Time

	// Results holds one entry per case, in case order.
	Results []CaseResult

	// Metrics aggregates the results.
	Metrics EvaluationMetrics

	// FailedCases lists the IDs of failed cases.
	FailedCases []string

	// ErrorCategories counts failures by category.
	ErrorCategories map[ErrorCategory]int
}

package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
	"github.com/ancora-labs/ancora/internal/logger"
)

// answerMatchCutoff is the word-overlap similarity above which a
// produced answer counts as matching the expected one under the
// semantic strategy.
const answerMatchCutoff = 0.3

// numericMatchTolerance is the relative tolerance for the numeric
// strategy's float comparison.
const numericMatchTolerance = 1e-9

// Ensure EvaluationService implements the interface.
var _ driving.EvaluationService = (*EvaluationService)(nil)

// EvaluationService runs golden case sets against the engine and scores
// answers, citations, and retrieval quality.
type EvaluationService struct {
	cases       driven.CaseStore
	query       driving.QueryService
	store       driven.EvaluationStore
	validator   *Validator
	concurrency int
}

// NewEvaluationService creates an evaluation service. The run store is
// optional (can be nil); runs still execute, they just aren't persisted.
func NewEvaluationService(cases driven.CaseStore, query driving.QueryService, store driven.EvaluationStore, settings domain.Settings) *EvaluationService {
	return &EvaluationService{
		cases:       cases,
		query:       query,
		store:       store,
		validator:   NewValidator(),
		concurrency: settings.MaxConcurrentQueries,
	}
}

// RunSet executes every case in the named set and computes aggregate
// metrics. Case failures are recorded and categorised, not fatal; only
// context cancellation aborts the run.
func (s *EvaluationService) RunSet(ctx context.Context, setName string, opts driving.EvaluationOptions) (*domain.EvaluationRun, error) {
	if opts.Strategy != "" && !opts.Strategy.IsValid() {
		return nil, fmt.Errorf("%w: unknown match strategy %q", domain.ErrInvalidConfig, opts.Strategy)
	}

	cases, err := s.cases.LoadSet(ctx, setName)
	if err != nil {
		return nil, fmt.Errorf("loading case set %q: %w", setName, err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("case set %q is empty", setName)
	}
	cases = sampleCases(cases, opts.SampleSize)

	run, err := s.runCases(ctx, setName, cases, opts)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.SaveRun(ctx, run); err != nil {
			logger.Warn("Failed to persist evaluation run: %v", err)
		}
	}
	return run, nil
}

// runCases executes the given cases. Sweeps call this directly with a
// per-experiment pipeline; RunSet wraps it with set loading and
// persistence.
func (s *EvaluationService) runCases(ctx context.Context, setName string, cases []domain.EvaluationCase, opts driving.EvaluationOptions) (*domain.EvaluationRun, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = s.concurrency
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = domain.MatchSemantic
	}

	logger.Section("Evaluation")
	logger.Info("Running %d cases from %q with concurrency %d", len(cases), setName, concurrency)

	run := &domain.EvaluationRun{
		ID:      shortID(),
		SetName: setName,
		RunAt:   time.Now().UTC(),
		Results: make([]domain.CaseResult, len(cases)),
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	sem := make(chan struct{}, concurrency)

	for i, c := range cases {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, c domain.EvaluationCase) {
			defer wg.Done()
			defer func() { <-sem }()

			result := s.runCase(ctx, c, strategy)

			mu.Lock()
			run.Results[i] = result
			done++
			if opts.Progress != nil {
				opts.Progress(done, len(cases))
			}
			mu.Unlock()
		}(i, c)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run.Metrics, run.FailedCases, run.ErrorCategories = computeMetrics(cases, run.Results)
	logger.Info("Answer accuracy %.0f%%, source accuracy %.0f%%, %d/%d failed",
		run.Metrics.AnswerAccuracy*100, run.Metrics.SourceAccuracy*100, len(run.FailedCases), len(cases))
	return run, nil
}

// ListSets returns the names of all available case sets.
func (s *EvaluationService) ListSets(ctx context.Context) ([]string, error) {
	return s.cases.ListSets(ctx)
}

// ListRuns returns persisted runs, newest first.
func (s *EvaluationService) ListRuns(ctx context.Context, limit int) ([]domain.EvaluationRun, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: evaluation history is not configured", domain.ErrInvalidConfig)
	}
	return s.store.ListRuns(ctx, limit)
}

// runCase asks one case's question and scores the outcome.
func (s *EvaluationService) runCase(ctx context.Context, c domain.EvaluationCase, strategy domain.MatchStrategy) domain.CaseResult {
	result := domain.CaseResult{
		CaseID:   c.ID,
		Question: c.Question,
	}

	start := time.Now()
	res, err := s.query.Ask(ctx, c.Question, driving.AskOptions{Threshold: -1})
	result.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		result.Failed = true
		result.Category = domain.ErrorGeneration
		result.Err = err.Error()
		return result
	}

	q := res.Query
	result.Answer = q.Answer
	result.Confidence = q.Confidence
	result.ResponseTimeMS = float64(q.Elapsed.Microseconds()) / 1000.0
	for _, citation := range q.Citations {
		result.CitedSources = append(result.CitedSources, citation.Document)
	}
	result.CitedSources = dedupeStrings(result.CitedSources)
	result.Precision, result.Recall, result.ReciprocalRank = retrievalScores(res.Retrieved, c.ExpectedSources)

	if q.Outcome == domain.OutcomeRefused {
		result.Failed = true
		if q.RetrievedCount == 0 {
			result.Category = domain.ErrorRetrievalEmpty
			result.Err = "no chunks retrieved above threshold"
		} else {
			result.Category = domain.ErrorValidationRefused
			result.Err = "engine refused to answer from the retrieved context"
		}
		return result
	}

	result.Hallucinated = len(s.validator.Unsupported(q.Answer, res.Retrieved)) > 0
	result.SourceMatch = sourceMatches(result.CitedSources, c.ExpectedSources)

	if c.ExpectedAnswer != "" || len(c.Keywords) > 0 {
		correct := answerMatches(strategy, q.Answer, c.ExpectedAnswer, c.Keywords)
		result.AnswerCorrect = &correct
		if !correct {
			result.Failed = true
			result.Category = domain.ErrorMismatch
			result.Err = "answer did not match the expectation"
		}
	}
	return result
}

// answerMatches scores the produced answer against the expectation
// under the given strategy. A case carrying only keywords is scored by
// keyword containment regardless of strategy.
func answerMatches(strategy domain.MatchStrategy, answer, expected string, keywords []string) bool {
	if expected != "" {
		switch strategy {
		case domain.MatchExact:
			if strings.Contains(strings.ToLower(answer), strings.ToLower(expected)) {
				return true
			}
		case domain.MatchNumeric:
			if numeralsMatch(answer, expected) {
				return true
			}
		default:
			if jaccard(tokenSet(answer), tokenSet(expected)) > answerMatchCutoff {
				return true
			}
		}
	}
	if len(keywords) == 0 {
		return false
	}
	lower := strings.ToLower(answer)
	for _, kw := range keywords {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

// numeralsMatch reports whether every numeric token of the expected
// answer appears in the produced answer. Values are compared as parsed
// floats so formatting differences ("1,250.50" vs "1250.5") don't
// matter; an expected answer with no numeric tokens never matches.
func numeralsMatch(answer, expected string) bool {
	want := significantFigures(expected)
	if len(want) == 0 {
		return false
	}

	var got []float64
	for _, figure := range significantFigures(answer) {
		if v, err := strconv.ParseFloat(bareNumeral(figure), 64); err == nil {
			got = append(got, v)
		}
	}

	for _, figure := range want {
		w, err := strconv.ParseFloat(bareNumeral(figure), 64)
		if err != nil {
			continue
		}
		found := false
		for _, g := range got {
			if math.Abs(g-w) <= numericMatchTolerance*math.Max(1, math.Abs(w)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// sampleCases caps a case set at its first n entries. The prefix is
// deterministic, so repeated sampled runs score the same cases.
func sampleCases(cases []domain.EvaluationCase, n int) []domain.EvaluationCase {
	if n <= 0 || n >= len(cases) {
		return cases
	}
	return cases[:n]
}

// sourceMatches reports whether any expected source document was cited.
func sourceMatches(cited, expected []string) bool {
	if len(expected) == 0 {
		return false
	}
	joined := strings.ToLower(strings.Join(cited, " "))
	for _, want := range expected {
		if want != "" && strings.Contains(joined, strings.ToLower(want)) {
			return true
		}
	}
	return false
}

// retrievalScores computes precision, recall, and reciprocal rank of
// the retrieved documents against the expected sources. Documents are
// compared by name containment in either direction, so "fha_guidelines"
// matches "fha_guidelines.md".
func retrievalScores(retrieved []domain.RetrievedItem, expected []string) (precision, recall, rr float64) {
	if len(retrieved) == 0 || len(expected) == 0 {
		return 0, 0, 0
	}

	var docs []string
	seen := make(map[string]bool)
	for _, item := range retrieved {
		d := strings.ToLower(item.Document)
		if d != "" && !seen[d] {
			seen[d] = true
			docs = append(docs, d)
		}
	}
	if len(docs) == 0 {
		return 0, 0, 0
	}

	nameMatch := func(doc, want string) bool {
		return strings.Contains(doc, want) || strings.Contains(want, doc)
	}

	relevant := 0
	for rank, d := range docs {
		for _, e := range expected {
			if nameMatch(d, strings.ToLower(e)) {
				relevant++
				if rr == 0 {
					rr = 1.0 / float64(rank+1)
				}
				break
			}
		}
	}
	precision = float64(relevant) / float64(len(docs))

	matched := 0
	for _, e := range expected {
		for _, d := range docs {
			if nameMatch(d, strings.ToLower(e)) {
				matched++
				break
			}
		}
	}
	recall = float64(matched) / float64(len(expected))
	return precision, recall, rr
}

// computeMetrics aggregates case results. Accuracy ratios divide by the
// cases carrying the relevant expectation, not the whole set; coverage
// and rates divide by the whole set.
func computeMetrics(cases []domain.EvaluationCase, results []domain.CaseResult) (domain.EvaluationMetrics, []string, map[domain.ErrorCategory]int) {
	var m domain.EvaluationMetrics
	var failed []string
	categories := make(map[domain.ErrorCategory]int)
	n := len(results)
	if n == 0 {
		return m, failed, categories
	}

	withExpected, correct := 0, 0
	withExpectedSources, sourceMatched := 0, 0
	citing, hallucinated := 0, 0

	for i, r := range results {
		if r.AnswerCorrect != nil {
			withExpected++
			if *r.AnswerCorrect {
				correct++
			}
		}
		if len(cases[i].ExpectedSources) > 0 {
			withExpectedSources++
			if r.SourceMatch {
				sourceMatched++
			}
			m.PrecisionAtK += r.Precision
			m.RecallAtK += r.Recall
			m.MRR += r.ReciprocalRank
		}
		if len(r.CitedSources) > 0 {
			citing++
		}
		if r.Hallucinated {
			hallucinated++
		}
		m.AvgConfidence += float64(r.Confidence)
		m.AvgResponseTimeMS += r.ResponseTimeMS
		if r.Failed {
			failed = append(failed, r.CaseID)
			categories[r.Category]++
		}
	}

	if withExpected > 0 {
		m.AnswerAccuracy = float64(correct) / float64(withExpected)
	}
	if withExpectedSources > 0 {
		m.SourceAccuracy = float64(sourceMatched) / float64(withExpectedSources)
		m.PrecisionAtK /= float64(withExpectedSources)
		m.RecallAtK /= float64(withExpectedSources)
		m.MRR /= float64(withExpectedSources)
	}
	m.CitationCoverage = float64(citing) / float64(n)
	m.HallucinationRate = float64(hallucinated) / float64(n)
	m.AvgConfidence /= float64(n)
	m.AvgResponseTimeMS /= float64(n)
	return m, failed, categories
}

// dedupeStrings removes duplicates preserving first-seen order.
func dedupeStrings(values []string) []string {
	if len(values) < 2 {
		return values
	}
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// shortID returns a compact identifier for runs and experiments.
func shortID() string {
	return uuid.NewString()[:8]
}

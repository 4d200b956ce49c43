package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
	"github.com/ancora-labs/ancora/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// QueryService runs the online path: retrieve, generate, validate
// grounding, record. Every result is either grounded in retrieved
// policy text or the fixed refusal.
type QueryService struct {
	retriever   *Retriever
	answerer    *Answerer
	validator   *Validator
	history     driven.QueryHistoryStore
	rerank      bool
	concurrency int
}

// NewQueryService creates a query service. The history store is
// optional (can be nil); queries still answer, they just aren't
// recorded.
func NewQueryService(retriever *Retriever, answerer *Answerer, validator *Validator, history driven.QueryHistoryStore, settings domain.Settings) *QueryService {
	return &QueryService{
		retriever:   retriever,
		answerer:    answerer,
		validator:   validator,
		history:     history,
		rerank:      settings.RerankingEnabled,
		concurrency: settings.MaxConcurrentQueries,
	}
}

// Ask runs the full online path for one question.
func (s *QueryService) Ask(ctx context.Context, question string, opts driving.AskOptions) (*driving.AskResult, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuery
	}

	items, err := s.retriever.Retrieve(ctx, question, domain.RetrieveOptions{
		K:         opts.K,
		Threshold: opts.Threshold,
		Filter:    opts.Filter,
		Rerank:    s.rerank,
		Diversify: opts.Diversify,
	})
	if err != nil {
		return nil, err
	}

	answer, err := s.answerer.Generate(ctx, question, items)
	if err != nil {
		return nil, err
	}

	answer, err = s.ground(ctx, question, items, answer)
	if err != nil {
		return nil, err
	}

	result := domain.QueryResult{
		ID:             uuid.NewString(),
		Question:       question,
		Answer:         answer.Text,
		Citations:      answer.Citations,
		Confidence:     answer.Confidence,
		Outcome:        domain.OutcomeAnswered,
		RetrievedCount: len(items),
		TokensUsed:     answer.TokensUsed,
		Elapsed:        time.Since(start),
		Timestamp:      time.Now().UTC(),
	}
	if answer.Refused() {
		result.Outcome = domain.OutcomeRefused
	}

	s.record(ctx, &result)

	return &driving.AskResult{Query: result, Retrieved: items}, nil
}

// AskBatch answers every question through a bounded worker pool. Items
// come back in input order; a failed question carries its error and
// leaves the rest untouched.
func (s *QueryService) AskBatch(ctx context.Context, questions []string, opts driving.AskOptions) ([]driving.BatchItem, error) {
	if len(questions) == 0 {
		return nil, nil
	}

	concurrency := s.concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	items := make([]driving.BatchItem, len(questions))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, question := range questions {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, question string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := s.Ask(ctx, question, opts)
			items[i] = driving.BatchItem{Question: question, Result: result, Err: err}
		}(i, question)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Search runs retrieval only.
func (s *QueryService) Search(ctx context.Context, question string, opts domain.RetrieveOptions) ([]domain.RetrievedItem, error) {
	return s.retriever.Retrieve(ctx, question, opts)
}

// History returns recorded queries, newest first.
func (s *QueryService) History(ctx context.Context, limit int) ([]domain.QueryResult, error) {
	if s.history == nil {
		return nil, fmt.Errorf("%w: query history is not configured", domain.ErrInvalidConfig)
	}
	return s.history.ListQueries(ctx, limit)
}

// ground enforces the no-fabrication contract: numeric claims must
// appear in the retrieved text, and an answer asserting no figures must
// cite at least one source. One strict retry is allowed before the
// answer is replaced with the refusal.
func (s *QueryService) ground(ctx context.Context, question string, items []domain.RetrievedItem, answer *domain.Answer) (*domain.Answer, error) {
	if answer.Refused() {
		return answer, nil
	}

	claims := s.validator.NumericClaims(answer.Text)
	if len(claims) == 0 {
		if len(answer.Citations) == 0 {
			logger.Debug("Answer asserts no figures and cites no sources; refusing")
			return refusalAnswer(answer.TokensUsed), nil
		}
		return answer, nil
	}

	unsupported := s.validator.Unsupported(answer.Text, items)
	if len(unsupported) == 0 {
		return answer, nil
	}

	logger.Debug("Figures not found in sources: %s; retrying with strict grounding",
		strings.Join(unsupported, ", "))
	retry, err := s.answerer.GenerateStrict(ctx, question, items, answer.Text)
	if err != nil {
		return nil, err
	}
	tokens := answer.TokensUsed + retry.TokensUsed

	if retry.Refused() {
		return refusalAnswer(tokens), nil
	}
	if still := s.validator.Unsupported(retry.Text, items); len(still) > 0 {
		logger.Debug("Strict retry still asserts unsupported figures: %s; refusing",
			strings.Join(still, ", "))
		return refusalAnswer(tokens), nil
	}
	retry.TokensUsed = tokens
	return retry, nil
}

// record appends the query to history. Cancelled queries are never
// recorded; history write failures are logged, not surfaced.
func (s *QueryService) record(ctx context.Context, result *domain.QueryResult) {
	if s.history == nil || ctx.Err() != nil {
		return
	}
	if err := s.history.AppendQuery(ctx, result); err != nil {
		logger.Warn("Failed to record query history: %v", err)
	}
}

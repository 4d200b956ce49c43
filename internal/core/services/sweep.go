package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
	"github.com/ancora-labs/ancora/internal/logger"
)

// Standard grids swept when the caller names no values.
var defaultGrids = map[domain.SweepParameter][]int{
	domain.SweepChunkSize: {500, 1000, 2000},
	domain.SweepTopK:      {3, 5, 10},
}

// IngestGate coordinates per-document ingestion with corpus-wide
// reindexing. Ingest operations hold it shared; a chunk-size sweep
// holds it exclusively while it re-segments and re-embeds the corpus,
// so the document set it reads is a consistent snapshot.
//
// A nil gate is valid and never blocks.
type IngestGate struct {
	mu sync.RWMutex
}

// NewIngestGate creates a gate shared between the ingest and experiment
// services.
func NewIngestGate() *IngestGate {
	return &IngestGate{}
}

func (g *IngestGate) enter() func() {
	if g == nil {
		return func() {}
	}
	g.mu.RLock()
	return g.mu.RUnlock
}

func (g *IngestGate) exclusive() func() {
	if g == nil {
		return func() {}
	}
	g.mu.Lock()
	return g.mu.Unlock
}

// Ensure ExperimentService implements the interface.
var _ driving.ExperimentService = (*ExperimentService)(nil)

// ExperimentService sweeps one configuration parameter across candidate
// values and scores each value with the evaluator. Chunk-size sweeps
// rebuild the corpus into a throwaway index; the live index is never
// touched. Top-K sweeps re-query the live index with the candidate K.
type ExperimentService struct {
	cases      driven.CaseStore
	docStore   driven.DocumentStore
	index      driven.VectorIndex
	embedder   driven.EmbeddingService
	answerer   *Answerer
	store      driven.ExperimentStore
	segmenters driven.SegmenterFactory
	scratch    driven.VectorIndexFactory
	gate       *IngestGate
	settings   domain.Settings
}

// NewExperimentService creates an experiment service. The experiment
// store is optional (can be nil); sweeps still run, their results just
// aren't persisted. The gate must be the one the ingest service holds.
func NewExperimentService(
	cases driven.CaseStore,
	docStore driven.DocumentStore,
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	answerer *Answerer,
	store driven.ExperimentStore,
	segmenters driven.SegmenterFactory,
	scratch driven.VectorIndexFactory,
	gate *IngestGate,
	settings domain.Settings,
) *ExperimentService {
	return &ExperimentService{
		cases:      cases,
		docStore:   docStore,
		index:      index,
		embedder:   embedder,
		answerer:   answerer,
		store:      store,
		segmenters: segmenters,
		scratch:    scratch,
		gate:       gate,
		settings:   settings,
	}
}

// Sweep evaluates the named case set once per candidate value and
// reports which value scored best: highest answer accuracy, ties broken
// by lower average response time, then by order tried. Each experiment
// is persisted as it completes, so a failed candidate doesn't lose the
// ones before it.
func (s *ExperimentService) Sweep(ctx context.Context, setName string, param domain.SweepParameter, values []int, opts driving.SweepOptions) (*domain.SweepReport, error) {
	if !param.IsValid() {
		return nil, fmt.Errorf("%w: unknown sweep parameter %q", domain.ErrInvalidConfig, param)
	}
	if len(values) == 0 {
		values = defaultGrids[param]
	}
	for _, v := range values {
		if v <= 0 {
			return nil, fmt.Errorf("%w: %s candidates must be positive, got %d", domain.ErrInvalidConfig, param, v)
		}
	}

	cases, err := s.cases.LoadSet(ctx, setName)
	if err != nil {
		return nil, fmt.Errorf("loading case set %q: %w", setName, err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("case set %q is empty", setName)
	}
	cases = sampleCases(cases, opts.SampleSize)

	logger.Section("Sweep")
	logger.Info("Sweeping %s over %v against %d cases", param, values, len(cases))

	report := &domain.SweepReport{
		Parameter: param,
		Values:    values,
	}
	for i, value := range values {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := s.runExperiment(ctx, setName, cases, param, value, opts.Overlap)
		if err != nil {
			return nil, fmt.Errorf("experiment %s=%d: %w", param, value, err)
		}
		report.Results = append(report.Results, *result)

		if s.store != nil {
			if err := s.store.SaveExperiment(ctx, result); err != nil {
				logger.Warn("Failed to persist experiment %s: %v", result.Config.Name, err)
			}
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(values))
		}
		logger.Info("%s=%d: answer accuracy %.0f%%, avg response %.0fms",
			param, value, result.Metrics.AnswerAccuracy*100, result.Metrics.AvgResponseTimeMS)
	}

	best := 0
	for i := 1; i < len(report.Results); i++ {
		if betterExperiment(report.Results[i], report.Results[best]) {
			best = i
		}
	}
	report.BestValue = values[best]
	report.BestAccuracy = report.Results[best].Metrics.AnswerAccuracy
	logger.Info("Best %s: %d (answer accuracy %.0f%%)", param, report.BestValue, report.BestAccuracy*100)
	return report, nil
}

// ListExperiments returns persisted experiments, newest first.
func (s *ExperimentService) ListExperiments(ctx context.Context, limit int) ([]domain.ExperimentResult, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: experiment history is not configured", domain.ErrInvalidConfig)
	}
	return s.store.ListExperiments(ctx, limit)
}

// Compare loads the named experiments and ranks them against the
// first. The baseline is whatever the caller puts first, typically the
// configuration currently in production.
func (s *ExperimentService) Compare(ctx context.Context, ids []string) (*domain.ExperimentComparison, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: experiment history is not configured", domain.ErrInvalidConfig)
	}
	if len(ids) < 2 {
		return nil, fmt.Errorf("%w: comparing needs at least two experiment IDs", domain.ErrInvalidConfig)
	}

	results := make([]domain.ExperimentResult, 0, len(ids))
	for _, id := range ids {
		result, err := s.store.GetExperiment(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading experiment %s: %w", id, err)
		}
		results = append(results, *result)
	}

	best := 0
	for i := 1; i < len(results); i++ {
		if betterExperiment(results[i], results[best]) {
			best = i
		}
	}

	baseline := results[0]
	comparison := &domain.ExperimentComparison{
		Baseline:            baseline,
		Best:                results[best],
		Results:             results,
		AccuracyImprovement: results[best].Metrics.AnswerAccuracy - baseline.Metrics.AnswerAccuracy,
		ResponseTimeDeltaMS: results[best].Metrics.AvgResponseTimeMS - baseline.Metrics.AvgResponseTimeMS,
	}
	logger.Info("Best of %d experiments: %s (%+.1f%% accuracy over %s)",
		len(results), comparison.Best.Config.Name,
		comparison.AccuracyImprovement*100, baseline.Config.Name)
	return comparison, nil
}

// runExperiment evaluates the case set under one candidate value. The
// pipeline it queries shares the live answerer but never writes query
// or evaluation history.
func (s *ExperimentService) runExperiment(ctx context.Context, setName string, cases []domain.EvaluationCase, param domain.SweepParameter, value, overlap int) (*domain.ExperimentResult, error) {
	config := domain.ExperimentConfigFromSettings(s.settings)
	config.Name = fmt.Sprintf("%s_%d", param, value)
	config.Description = fmt.Sprintf("Sweep %s=%d against %q", param, value, setName)

	var query driving.QueryService
	switch param {
	case domain.SweepTopK:
		config.TopK = value
		live := NewRetriever(s.index, s.embedder, s.settings)
		query = fixedKQuery{
			QueryService: NewQueryService(live, s.answerer, NewValidator(), nil, s.settings),
			k:            value,
		}

	case domain.SweepChunkSize:
		if overlap <= 0 {
			overlap = value / 5
		}
		if overlap >= value {
			return nil, fmt.Errorf("%w: chunk_overlap (%d) must be less than chunk_size (%d)",
				domain.ErrInvalidConfig, overlap, value)
		}
		config.ChunkSize = value
		config.ChunkOverlap = overlap

		index, err := s.buildScratchIndex(ctx, value, overlap)
		if err != nil {
			return nil, err
		}
		defer index.Close()
		scratch := NewRetriever(index, s.embedder, s.settings)
		query = NewQueryService(scratch, s.answerer, NewValidator(), nil, s.settings)
	}

	eval := NewEvaluationService(s.cases, query, nil, s.settings)
	start := time.Now()
	run, err := eval.runCases(ctx, setName, cases, driving.EvaluationOptions{})
	if err != nil {
		return nil, err
	}

	return &domain.ExperimentResult{
		ID:              shortID(),
		Config:          config,
		Metrics:         run.Metrics,
		RunAt:           time.Now().UTC(),
		DurationSeconds: time.Since(start).Seconds(),
	}, nil
}

// buildScratchIndex re-segments and re-embeds every registered document
// into a throwaway index. It holds the ingest gate exclusively so the
// corpus it reads is a consistent snapshot.
func (s *ExperimentService) buildScratchIndex(ctx context.Context, chunkSize, chunkOverlap int) (driven.VectorIndex, error) {
	release := s.gate.exclusive()
	defer release()

	docs, err := s.docStore.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents ingested", domain.ErrIngestion)
	}

	index, err := s.scratch()
	if err != nil {
		return nil, fmt.Errorf("creating scratch index: %w", err)
	}
	if err := index.SetEmbeddingModel(ctx, s.embedder.ModelName()); err != nil {
		index.Close()
		return nil, fmt.Errorf("recording embedding model: %w", err)
	}

	seg := s.segmenters(chunkSize, chunkOverlap)
	indexed := 0
	for i := range docs {
		doc := &docs[i]
		if err := ctx.Err(); err != nil {
			index.Close()
			return nil, err
		}
		if doc.Text == "" {
			logger.Warn("Skipping %s: no stored text to re-segment", doc.Filename)
			continue
		}

		chunks := seg.Split(doc)
		if len(chunks) == 0 {
			continue
		}
		texts := make([]string, len(chunks))
		for j, c := range chunks {
			texts[j] = c.Text
		}
		embeddings, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			index.Close()
			return nil, fmt.Errorf("embedding %s at chunk size %d: %w", doc.Filename, chunkSize, err)
		}
		if len(embeddings) != len(chunks) {
			index.Close()
			return nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks",
				domain.ErrIngestion, len(embeddings), len(chunks))
		}

		entries := make([]driven.IndexEntry, len(chunks))
		for j, c := range chunks {
			entries[j] = driven.IndexEntry{
				Chunk:     c,
				Embedding: embeddings[j],
				Filename:  doc.Filename,
				Type:      doc.Type,
			}
		}
		if err := index.ReplaceDocument(ctx, doc.ID, entries); err != nil {
			index.Close()
			return nil, fmt.Errorf("indexing %s: %w", doc.Filename, err)
		}
		indexed++
	}
	if indexed == 0 {
		index.Close()
		return nil, fmt.Errorf("%w: no document could be re-segmented", domain.ErrIngestion)
	}

	logger.Debug("Scratch index built: %d documents at chunk size %d, overlap %d",
		indexed, chunkSize, chunkOverlap)
	return index, nil
}

// betterExperiment reports whether a beats b: higher answer accuracy,
// ties broken by lower average response time. Exact ties keep the
// earlier candidate.
func betterExperiment(a, b domain.ExperimentResult) bool {
	if a.Metrics.AnswerAccuracy != b.Metrics.AnswerAccuracy {
		return a.Metrics.AnswerAccuracy > b.Metrics.AnswerAccuracy
	}
	return a.Metrics.AvgResponseTimeMS < b.Metrics.AvgResponseTimeMS
}

// fixedKQuery pins retrieval K for top-K experiments.
type fixedKQuery struct {
	driving.QueryService
	k int
}

func (q fixedKQuery) Ask(ctx context.Context, question string, opts driving.AskOptions) (*driving.AskResult, error) {
	opts.K = q.k
	return q.QueryService.Ask(ctx, question, opts)
}

func (q fixedKQuery) AskBatch(ctx context.Context, questions []string, opts driving.AskOptions) ([]driving.BatchItem, error) {
	opts.K = q.k
	return q.QueryService.AskBatch(ctx, questions, opts)
}

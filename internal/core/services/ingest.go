package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
	"github.com/ancora-labs/ancora/internal/fingerprint"
	"github.com/ancora-labs/ancora/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestService loads files, segments them, embeds the chunks, and
// writes index entries plus document metadata. Operations on the same
// filename serialise on a per-document lock; distinct files process
// concurrently.
type IngestService struct {
	loader     driven.DocumentLoader
	docStore   driven.DocumentStore
	index      driven.VectorIndex
	embedder   driven.EmbeddingService
	segmenters driven.SegmenterFactory
	gate       *IngestGate

	chunkSize    int
	chunkOverlap int
	concurrency  int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIngestService creates an ingest service with chunk geometry and
// concurrency taken from settings. The gate must be the one the
// experiment service holds; a nil gate disables reindex coordination.
func NewIngestService(
	loader driven.DocumentLoader,
	docStore driven.DocumentStore,
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	segmenters driven.SegmenterFactory,
	gate *IngestGate,
	settings domain.Settings,
) *IngestService {
	return &IngestService{
		loader:       loader,
		docStore:     docStore,
		index:        index,
		embedder:     embedder,
		segmenters:   segmenters,
		gate:         gate,
		chunkSize:    settings.ChunkSize,
		chunkOverlap: settings.ChunkOverlap,
		concurrency:  settings.MaxConcurrentQueries,
		locks:        make(map[string]*sync.Mutex),
	}
}

// IngestPath ingests every file matching the pattern. One file failing
// does not abort the others; cancellation stops new files from starting
// and marks the rest as failed.
func (s *IngestService) IngestPath(ctx context.Context, pattern string, opts driving.IngestOptions) (*driving.IngestReport, error) {
	start := time.Now()

	paths, err := s.loader.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("expanding pattern %q: %w", pattern, err)
	}
	report := &driving.IngestReport{}
	if len(paths) == 0 {
		logger.Info("No files match %q", pattern)
		report.Elapsed = time.Since(start)
		return report, nil
	}

	chunkSize := s.chunkSize
	if opts.ChunkSize > 0 {
		chunkSize = opts.ChunkSize
	}
	overlap := s.chunkOverlap
	if opts.ChunkOverlap > 0 {
		overlap = opts.ChunkOverlap
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk_overlap (%d) must be less than chunk_size (%d)",
			domain.ErrInvalidConfig, overlap, chunkSize)
	}

	if err := s.claimEmbeddingModel(ctx); err != nil {
		return nil, err
	}

	seg := s.segmenters(chunkSize, overlap)

	logger.Section("Ingest")
	logger.Info("Ingesting %d files (chunk size %d, overlap %d)", len(paths), chunkSize, overlap)

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		done int
	)
	sem := make(chan struct{}, s.concurrency)

	for _, path := range paths {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			mu.Lock()
			report.Failed++
			report.Failures = append(report.Failures, driving.IngestFailure{Path: path, Reason: ctx.Err().Error()})
			done++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			doc, chunks, err := s.ingestOne(ctx, path, seg, opts.Force)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, domain.ErrDocumentExists):
				report.Skipped++
				logger.Debug("Unchanged, skipping: %s", path)
			case err != nil:
				report.Failed++
				report.Failures = append(report.Failures, driving.IngestFailure{Path: path, Reason: err.Error()})
				logger.Warn("Failed to ingest %s: %v", path, err)
			default:
				report.Ingested++
				report.Chunks += chunks
				report.Documents = append(report.Documents, *doc)
			}
			done++
			if opts.Progress != nil {
				opts.Progress(done, len(paths))
			}
		}(path)
	}
	wg.Wait()

	sort.Slice(report.Documents, func(i, j int) bool {
		return report.Documents[i].Filename < report.Documents[j].Filename
	})
	report.Elapsed = time.Since(start)
	logger.Info("Ingested %d, skipped %d, failed %d in %s",
		report.Ingested, report.Skipped, report.Failed, report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// Delete removes a document and its index entries by document ID.
func (s *IngestService) Delete(ctx context.Context, documentID string) error {
	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("getting document %s: %w", documentID, err)
	}
	return s.delete(ctx, doc)
}

// DeleteByFilename removes a document and its index entries by filename.
func (s *IngestService) DeleteByFilename(ctx context.Context, filename string) error {
	doc, err := s.docStore.GetDocumentByFilename(ctx, filename)
	if err != nil {
		return fmt.Errorf("getting document %q: %w", filename, err)
	}
	return s.delete(ctx, doc)
}

// ingestOne runs the load, fingerprint, segment, embed, index, save
// pipeline for one file. The index write happens before the metadata
// save; a failed save rolls the index entries back so the two stores
// never disagree.
func (s *IngestService) ingestOne(ctx context.Context, path string, seg driven.Segmenter, force bool) (*domain.Document, int, error) {
	loaded, err := s.loader.Load(ctx, path)
	if err != nil {
		return nil, 0, err
	}

	print, err := fingerprint.Text(loaded.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("fingerprinting %s: %w", path, err)
	}

	leave := s.gate.enter()
	defer leave()
	unlock := s.lock(loaded.Filename)
	defer unlock()

	doc := &domain.Document{
		ID:            uuid.NewString(),
		Filename:      loaded.Filename,
		Type:          loaded.Type,
		Text:          loaded.Text,
		Fingerprint:   print,
		Title:         loaded.Title,
		Version:       loaded.Version,
		EffectiveDate: loaded.EffectiveDate,
		Department:    loaded.Department,
		IngestedAt:    time.Now().UTC(),
	}

	existing, err := s.docStore.GetDocumentByFilename(ctx, loaded.Filename)
	switch {
	case err == nil:
		if existing.Fingerprint == print && !force {
			return nil, 0, fmt.Errorf("%w: %s", domain.ErrDocumentExists, loaded.Filename)
		}
		// Re-ingest replaces in place; the document keeps its ID.
		doc.ID = existing.ID
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, 0, fmt.Errorf("checking for existing document: %w", err)
	}

	chunks := seg.Split(doc)
	if len(chunks) == 0 {
		return nil, 0, fmt.Errorf("%w: %s produced no chunks", domain.ErrIngestion, loaded.Filename)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, 0, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(embeddings) != len(chunks) {
		return nil, 0, fmt.Errorf("%w: embedder returned %d vectors for %d chunks",
			domain.ErrIngestion, len(embeddings), len(chunks))
	}

	entries := make([]driven.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = driven.IndexEntry{
			Chunk:     c,
			Embedding: embeddings[i],
			Filename:  doc.Filename,
			Type:      doc.Type,
		}
	}
	if err := s.index.ReplaceDocument(ctx, doc.ID, entries); err != nil {
		return nil, 0, fmt.Errorf("indexing %s: %w", loaded.Filename, err)
	}

	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		if delErr := s.index.DeleteDocument(context.WithoutCancel(ctx), doc.ID); delErr != nil {
			logger.Warn("Rollback failed for %s: %v", doc.Filename, delErr)
		}
		return nil, 0, fmt.Errorf("saving document %s: %w", loaded.Filename, err)
	}

	logger.Debug("Indexed %s: %d chunks", doc.Filename, len(chunks))
	return doc, len(chunks), nil
}

// delete removes index entries before metadata, so a partial failure
// leaves the document visible and re-deletable rather than orphaning
// live vectors.
func (s *IngestService) delete(ctx context.Context, doc *domain.Document) error {
	leave := s.gate.enter()
	defer leave()
	unlock := s.lock(doc.Filename)
	defer unlock()

	if err := s.index.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("removing %s from index: %w", doc.Filename, err)
	}
	if err := s.docStore.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("removing %s metadata: %w", doc.Filename, err)
	}
	logger.Info("Deleted %s", doc.Filename)
	return nil
}

// claimEmbeddingModel pins the index to the configured embedding model
// on first write and refuses mixed-model writes afterwards.
func (s *IngestService) claimEmbeddingModel(ctx context.Context) error {
	stored, err := s.index.EmbeddingModel(ctx)
	if err != nil {
		return fmt.Errorf("reading index embedding model: %w", err)
	}
	current := s.embedder.ModelName()
	if stored == "" {
		if err := s.index.SetEmbeddingModel(ctx, current); err != nil {
			return fmt.Errorf("recording embedding model: %w", err)
		}
		return nil
	}
	if stored != current {
		return fmt.Errorf("%w: index built with %q, configured model is %q",
			domain.ErrEmbeddingMismatch, stored, current)
	}
	return nil
}

// lock serialises operations on one filename.
func (s *IngestService) lock(filename string) func() {
	s.mu.Lock()
	l, ok := s.locks[filename]
	if !ok {
		l = &sync.Mutex{}
		s.locks[filename] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

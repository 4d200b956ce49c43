package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancora-labs/ancora/internal/adapters/driven/storage/memory"
	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
	"github.com/ancora-labs/ancora/internal/segmenter"
)

// --- Mock implementations ---

// mockLoader implements driven.DocumentLoader over an in-memory file map.
type mockLoader struct {
	mu      sync.Mutex
	files   map[string]*driven.LoadedFile
	globErr error
	loadErr map[string]error
}

func newMockLoader() *mockLoader {
	return &mockLoader{
		files:   make(map[string]*driven.LoadedFile),
		loadErr: make(map[string]error),
	}
}

func (m *mockLoader) add(path, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &driven.LoadedFile{
		Path:     path,
		Filename: path,
		Type:     domain.DocumentTypeMarkdown,
		Text:     text,
	}
}

func (m *mockLoader) Glob(_ string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.globErr != nil {
		return nil, m.globErr
	}
	paths := make([]string, 0, len(m.files))
	for path := range m.files {
		paths = append(paths, path)
	}
	return paths, nil
}

func (m *mockLoader) Load(_ context.Context, path string) (*driven.LoadedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.loadErr[path]; ok {
		return nil, err
	}
	file, ok := m.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *file
	return &copied, nil
}

// failingDocStore wraps the in-memory store and fails writes on demand.
type failingDocStore struct {
	*memory.DocumentStore
	saveErr error
}

func (f *failingDocStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.DocumentStore.SaveDocument(ctx, doc)
}

// --- Test helpers ---

const policyText = `# FHA Guidelines

**Version:** 3.2

## Eligibility

FHA loans require a minimum credit score of 580 for maximum financing.
Borrowers with scores between 500 and 579 must put 10% down.

## Ratios

The maximum debt-to-income ratio is 43% for qualified mortgages.`

type ingestFixture struct {
	service  *IngestService
	loader   *mockLoader
	docStore driven.DocumentStore
	index    *memory.VectorIndex
}

func segmenterFactory(chunkSize, chunkOverlap int) driven.Segmenter {
	return segmenter.New(segmenter.WithChunkSize(chunkSize), segmenter.WithOverlap(chunkOverlap))
}

func setupIngest(t *testing.T) *ingestFixture {
	t.Helper()
	loader := newMockLoader()
	docStore := memory.NewDocumentStore()
	index := memory.NewVectorIndex()
	service := NewIngestService(
		loader,
		docStore,
		index,
		&mockEmbeddingService{embedding: queryVector},
		segmenterFactory,
		NewIngestGate(),
		testSettings(),
	)
	return &ingestFixture{service: service, loader: loader, docStore: docStore, index: index}
}

// --- Tests ---

func TestIngestService_IngestPath_NewDocument(t *testing.T) {
	f := setupIngest(t)
	f.loader.add("fha_guidelines.md", policyText)
	ctx := context.Background()

	report, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.Greater(t, report.Chunks, 0)
	require.Len(t, report.Documents, 1)

	doc, err := f.docStore.GetDocumentByFilename(ctx, "fha_guidelines.md")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.NotEmpty(t, doc.Fingerprint)
	assert.Equal(t, policyText, doc.Text)
	assert.False(t, doc.IngestedAt.IsZero())

	stats, err := f.index.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, report.Chunks, stats.ChunkCount)

	model, err := f.index.EmbeddingModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mock-embed", model, "first ingest claims the embedding model")
}

func TestIngestService_IngestPath_SkipsUnchanged(t *testing.T) {
	f := setupIngest(t)
	f.loader.add("fha_guidelines.md", policyText)
	ctx := context.Background()

	first, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Ingested)

	second, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{})
	require.NoError(t, err)
	assert.Zero(t, second.Ingested)
	assert.Equal(t, 1, second.Skipped)
	assert.Zero(t, second.Failed)
}

func TestIngestService_IngestPath_ForceKeepsDocumentID(t *testing.T) {
	f := setupIngest(t)
	f.loader.add("fha_guidelines.md", policyText)
	ctx := context.Background()

	_, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{})
	require.NoError(t, err)
	before, err := f.docStore.GetDocumentByFilename(ctx, "fha_guidelines.md")
	require.NoError(t, err)

	report, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)

	after, err := f.docStore.GetDocumentByFilename(ctx, "fha_guidelines.md")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID, "re-ingest replaces in place")
}

func TestIngestService_IngestPath_ChangedContentReingests(t *testing.T) {
	f := setupIngest(t)
	f.loader.add("fha_guidelines.md", policyText)
	ctx := context.Background()

	_, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{})
	require.NoError(t, err)
	before, err := f.docStore.GetDocumentByFilename(ctx, "fha_guidelines.md")
	require.NoError(t, err)

	f.loader.add("fha_guidelines.md", policyText+"\n\nAmended.")
	report, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)

	after, err := f.docStore.GetDocumentByFilename(ctx, "fha_guidelines.md")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
}

func TestIngestService_IngestPath_EmbeddingModelMismatch(t *testing.T) {
	f := setupIngest(t)
	f.loader.add("fha_guidelines.md", policyText)
	ctx := context.Background()
	require.NoError(t, f.index.SetEmbeddingModel(ctx, "some-other-model"))

	_, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{})

	assert.ErrorIs(t, err, domain.ErrEmbeddingMismatch)
}

func TestIngestService_IngestPath_SaveFailureRollsBackIndex(t *testing.T) {
	loader := newMockLoader()
	loader.add("fha_guidelines.md", policyText)
	index := memory.NewVectorIndex()
	docStore := &failingDocStore{DocumentStore: memory.NewDocumentStore(), saveErr: errors.New("disk full")}
	service := NewIngestService(
		loader,
		docStore,
		index,
		&mockEmbeddingService{embedding: queryVector},
		segmenterFactory,
		NewIngestGate(),
		testSettings(),
	)
	ctx := context.Background()

	report, err := service.IngestPath(ctx, "*.md", driving.IngestOptions{})

	require.NoError(t, err, "per-file failures do not fail the pass")
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Reason, "disk full")

	stats, err := index.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ChunkCount, "index entries rolled back after the failed save")
}

func TestIngestService_IngestPath_NoMatches(t *testing.T) {
	f := setupIngest(t)

	report, err := f.service.IngestPath(context.Background(), "*.md", driving.IngestOptions{})

	require.NoError(t, err)
	assert.Zero(t, report.Ingested)
	assert.Zero(t, report.Failed)
}

func TestIngestService_IngestPath_GlobError(t *testing.T) {
	f := setupIngest(t)
	f.loader.globErr = errors.New("bad pattern")

	_, err := f.service.IngestPath(context.Background(), "[", driving.IngestOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expanding pattern")
}

func TestIngestService_IngestPath_OneFailureDoesNotAbortOthers(t *testing.T) {
	f := setupIngest(t)
	f.loader.add("good.md", policyText)
	f.loader.add("bad.md", "never loaded")
	f.loader.loadErr["bad.md"] = errors.New("permission denied")
	ctx := context.Background()

	report, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "bad.md", report.Failures[0].Path)

	_, err = f.docStore.GetDocumentByFilename(ctx, "good.md")
	assert.NoError(t, err)
}

func TestIngestService_IngestPath_EmptyFileFails(t *testing.T) {
	f := setupIngest(t)
	f.loader.add("empty.md", "")

	report, err := f.service.IngestPath(context.Background(), "*.md", driving.IngestOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Reason, "no chunks")
}

func TestIngestService_IngestPath_ChunkSizeOverride(t *testing.T) {
	f := setupIngest(t)
	f.loader.add("fha_guidelines.md", policyText)
	ctx := context.Background()

	small, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{ChunkSize: 120, ChunkOverlap: 20})
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, small.Documents[0].ID))
	big, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{ChunkSize: 2000, ChunkOverlap: 200})
	require.NoError(t, err)

	assert.Greater(t, small.Chunks, big.Chunks)
}

func TestIngestService_IngestPath_RejectsOverlapNotBelowChunkSize(t *testing.T) {
	f := setupIngest(t)
	f.loader.add("fha_guidelines.md", policyText)
	ctx := context.Background()

	_, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{ChunkSize: 100, ChunkOverlap: 200})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	stats, statErr := f.index.Stats(ctx)
	require.NoError(t, statErr)
	assert.Zero(t, stats.DocumentCount, "nothing indexed under rejected geometry")
}

func TestIngestService_IngestPath_ProgressReported(t *testing.T) {
	f := setupIngest(t)
	f.loader.add("a.md", policyText)
	f.loader.add("b.md", policyText+" extra")

	var mu sync.Mutex
	var last int
	report, err := f.service.IngestPath(context.Background(), "*.md", driving.IngestOptions{
		Progress: func(done, total int) {
			mu.Lock()
			last = done
			mu.Unlock()
			assert.Equal(t, 2, total)
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, report.Ingested)
	assert.Equal(t, 2, last)
}

func TestIngestService_Delete(t *testing.T) {
	f := setupIngest(t)
	f.loader.add("fha_guidelines.md", policyText)
	ctx := context.Background()

	report, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{})
	require.NoError(t, err)
	docID := report.Documents[0].ID

	require.NoError(t, f.service.Delete(ctx, docID))

	_, err = f.docStore.GetDocument(ctx, docID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	stats, err := f.index.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ChunkCount)
}

func TestIngestService_Delete_UnknownID(t *testing.T) {
	f := setupIngest(t)

	err := f.service.Delete(context.Background(), "no-such-id")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestService_DeleteByFilename(t *testing.T) {
	f := setupIngest(t)
	f.loader.add("fha_guidelines.md", policyText)
	ctx := context.Background()

	_, err := f.service.IngestPath(ctx, "*.md", driving.IngestOptions{})
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteByFilename(ctx, "fha_guidelines.md"))

	_, err = f.docStore.GetDocumentByFilename(ctx, "fha_guidelines.md")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestService_IngestPath_ReportDocumentsSorted(t *testing.T) {
	f := setupIngest(t)
	f.loader.add("zebra.md", policyText)
	f.loader.add("alpha.md", policyText+" different")

	report, err := f.service.IngestPath(context.Background(), "*.md", driving.IngestOptions{})

	require.NoError(t, err)
	require.Len(t, report.Documents, 2)
	assert.Equal(t, "alpha.md", report.Documents[0].Filename)
	assert.Equal(t, "zebra.md", report.Documents[1].Filename)
}

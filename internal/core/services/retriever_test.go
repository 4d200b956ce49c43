package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancora-labs/ancora/internal/adapters/driven/storage/memory"
	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
)

// --- Test helpers ---

func setupRetriever(t *testing.T, index driven.VectorIndex) *Retriever {
	t.Helper()
	return NewRetriever(index, &mockEmbeddingService{embedding: queryVector}, testSettings())
}

// --- Tests ---

func TestRetriever_Retrieve_OrdersBySimilarity(t *testing.T) {
	retriever := setupRetriever(t, setupTestIndex(t))

	items, err := retriever.Retrieve(context.Background(), "minimum credit score", domain.RetrieveOptions{Threshold: -1})

	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "chunk-fha-1", items[0].Chunk.ID)
	assert.Equal(t, "chunk-fha-2", items[1].Chunk.ID)
	assert.Equal(t, "chunk-dti-1", items[2].Chunk.ID)
	for i, item := range items {
		assert.Equal(t, i+1, item.Rank)
	}
	assert.InDelta(t, 0.95, items[0].Score, 0.001)
	assert.Equal(t, "fha_guidelines.md", items[0].Document)
}

func TestRetriever_Retrieve_EmptyQuestion(t *testing.T) {
	retriever := setupRetriever(t, setupTestIndex(t))

	_, err := retriever.Retrieve(context.Background(), "  ", domain.RetrieveOptions{})

	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestRetriever_Retrieve_ThresholdFiltersLowScores(t *testing.T) {
	retriever := setupRetriever(t, setupTestIndex(t))

	items, err := retriever.Retrieve(context.Background(), "credit score", domain.RetrieveOptions{Threshold: 0.85})

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "chunk-fha-1", items[0].Chunk.ID)
	assert.Equal(t, "chunk-fha-2", items[1].Chunk.ID)
}

func TestRetriever_Retrieve_NegativeThresholdUsesDefault(t *testing.T) {
	// Settings default is 0.7; only the 0.80+ chunks pass when the
	// index also holds a weak match.
	index := setupTestIndex(t)
	require.NoError(t, index.ReplaceDocument(context.Background(), "doc-weak", []driven.IndexEntry{{
		Chunk:     domain.Chunk{ID: "chunk-weak", Text: "Unrelated appendix."},
		Embedding: vectorAt(0.2),
		Filename:  "appendix.md",
		Type:      domain.DocumentTypeMarkdown,
	}}))
	retriever := setupRetriever(t, index)

	items, err := retriever.Retrieve(context.Background(), "credit score", domain.RetrieveOptions{Threshold: -1})

	require.NoError(t, err)
	assert.Len(t, items, 3, "weak chunk filtered by the configured default threshold")
}

func TestRetriever_Retrieve_ZeroThresholdDisablesCutoff(t *testing.T) {
	index := setupTestIndex(t)
	require.NoError(t, index.ReplaceDocument(context.Background(), "doc-weak", []driven.IndexEntry{{
		Chunk:     domain.Chunk{ID: "chunk-weak", Text: "Unrelated appendix."},
		Embedding: vectorAt(0.2),
		Filename:  "appendix.md",
		Type:      domain.DocumentTypeMarkdown,
	}}))
	retriever := setupRetriever(t, index)

	items, err := retriever.Retrieve(context.Background(), "credit score", domain.RetrieveOptions{Threshold: 0})

	require.NoError(t, err)
	assert.Len(t, items, 4)
}

func TestRetriever_Retrieve_ZeroKUsesDefault(t *testing.T) {
	retriever := setupRetriever(t, setupTestIndex(t))

	items, err := retriever.Retrieve(context.Background(), "credit score", domain.RetrieveOptions{K: 0, Threshold: 0})

	require.NoError(t, err)
	assert.Len(t, items, 3, "default K of 5 returns everything in the index")
}

func TestRetriever_Retrieve_TruncatesToK(t *testing.T) {
	retriever := setupRetriever(t, setupTestIndex(t))

	items, err := retriever.Retrieve(context.Background(), "credit score", domain.RetrieveOptions{K: 1, Threshold: 0})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "chunk-fha-1", items[0].Chunk.ID)
}

func TestRetriever_Retrieve_MetadataFilter(t *testing.T) {
	retriever := setupRetriever(t, setupTestIndex(t))

	items, err := retriever.Retrieve(context.Background(), "ratios", domain.RetrieveOptions{
		Threshold: 0,
		Filter:    &domain.MetadataFilter{Filename: "underwriting.md"},
	})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "chunk-dti-1", items[0].Chunk.ID)
}

func TestRetriever_Retrieve_EmbeddingModelMismatch(t *testing.T) {
	index := setupTestIndex(t)
	require.NoError(t, index.SetEmbeddingModel(context.Background(), "some-other-model"))
	retriever := setupRetriever(t, index)

	_, err := retriever.Retrieve(context.Background(), "credit score", domain.RetrieveOptions{})

	assert.ErrorIs(t, err, domain.ErrEmbeddingMismatch)
}

func TestRetriever_Retrieve_MatchingEmbeddingModel(t *testing.T) {
	index := setupTestIndex(t)
	require.NoError(t, index.SetEmbeddingModel(context.Background(), "mock-embed"))
	retriever := setupRetriever(t, index)

	_, err := retriever.Retrieve(context.Background(), "credit score", domain.RetrieveOptions{})

	assert.NoError(t, err)
}

func TestRetriever_Retrieve_EmbedErrorSurfaced(t *testing.T) {
	embedder := &mockEmbeddingService{embedErr: errors.New("connection refused")}
	retriever := NewRetriever(setupTestIndex(t), embedder, testSettings())

	_, err := retriever.Retrieve(context.Background(), "credit score", domain.RetrieveOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding question")
}

func TestRetriever_Retrieve_RerankBoostsSectionMatch(t *testing.T) {
	// Two chunks close in similarity; the lower-scored one's section
	// heading matches a question term and overtakes after the boost.
	index := memory.NewVectorIndex()
	ctx := context.Background()
	require.NoError(t, index.ReplaceDocument(ctx, "doc-1", []driven.IndexEntry{
		{
			Chunk:     domain.Chunk{ID: "chunk-general", Text: "General lending overview.", Section: "Overview"},
			Embedding: vectorAt(0.84),
			Filename:  "policies.md",
			Type:      domain.DocumentTypeMarkdown,
		},
		{
			Chunk:     domain.Chunk{ID: "chunk-collateral", Text: "Collateral valuation rules.", Section: "collateral requirements"},
			Embedding: vectorAt(0.82),
			Filename:  "policies.md",
			Type:      domain.DocumentTypeMarkdown,
		},
	}))
	retriever := setupRetriever(t, index)

	items, err := retriever.Retrieve(context.Background(), "what are the collateral requirements", domain.RetrieveOptions{
		Threshold: 0,
		Rerank:    true,
	})

	require.NoError(t, err)
	require.Len(t, items, 2)
	// 0.82 + 0.05 (collateral) + 0.05 (requirements) beats 0.84.
	assert.Equal(t, "chunk-collateral", items[0].Chunk.ID)
	assert.Greater(t, items[0].RerankScore, items[1].EffectiveScore())
}

func TestRetriever_Retrieve_RerankBoostsSharedNumerals(t *testing.T) {
	index := memory.NewVectorIndex()
	ctx := context.Background()
	require.NoError(t, index.ReplaceDocument(ctx, "doc-1", []driven.IndexEntry{
		{
			Chunk:     domain.Chunk{ID: "chunk-other", Text: "Scores influence pricing tiers.", Section: "Pricing"},
			Embedding: vectorAt(0.84),
			Filename:  "policies.md",
			Type:      domain.DocumentTypeMarkdown,
		},
		{
			Chunk:     domain.Chunk{ID: "chunk-620", Text: "Conventional loans require a 620 minimum score.", Section: "Scores"},
			Embedding: vectorAt(0.83),
			Filename:  "policies.md",
			Type:      domain.DocumentTypeMarkdown,
		},
	}))
	retriever := setupRetriever(t, index)

	items, err := retriever.Retrieve(context.Background(), "is 620 enough to qualify", domain.RetrieveOptions{
		Threshold: 0,
		Rerank:    true,
	})

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "chunk-620", items[0].Chunk.ID)
}

func TestRetriever_Retrieve_RerankScoreCappedAtOne(t *testing.T) {
	index := memory.NewVectorIndex()
	require.NoError(t, index.ReplaceDocument(context.Background(), "doc-1", []driven.IndexEntry{{
		Chunk:     domain.Chunk{ID: "chunk-1", Text: "Limits: 80 of 100 at 43 over 620.", Section: "credit score limits ratios"},
		Embedding: vectorAt(0.99),
		Filename:  "policies.md",
		Type:      domain.DocumentTypeMarkdown,
	}}))
	retriever := setupRetriever(t, index)

	items, err := retriever.Retrieve(context.Background(), "credit score limits ratios 80 100 43 620", domain.RetrieveOptions{
		Threshold: 0,
		Rerank:    true,
	})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.LessOrEqual(t, items[0].RerankScore, 1.0)
	assert.InDelta(t, 1.0, items[0].RerankScore, 0.0001)
}

func TestRetriever_Retrieve_DiversifyAvoidsNearDuplicates(t *testing.T) {
	// Two nearly identical top chunks and one distinct lower-scored
	// chunk; MMR should pick the distinct one second.
	index := memory.NewVectorIndex()
	ctx := context.Background()
	require.NoError(t, index.ReplaceDocument(ctx, "doc-1", []driven.IndexEntry{
		{
			Chunk:     domain.Chunk{ID: "chunk-a", Text: "the minimum credit score for approval is 580", Section: "Scores"},
			Embedding: vectorAt(0.95),
			Filename:  "policies.md",
			Type:      domain.DocumentTypeMarkdown,
		},
		{
			Chunk:     domain.Chunk{ID: "chunk-b", Text: "the minimum credit score for approval is 580 today", Section: "Scores"},
			Embedding: vectorAt(0.94),
			Filename:  "policies.md",
			Type:      domain.DocumentTypeMarkdown,
		},
		{
			Chunk:     domain.Chunk{ID: "chunk-c", Text: "collateral appraisals expire after twelve months", Section: "Collateral"},
			Embedding: vectorAt(0.85),
			Filename:  "policies.md",
			Type:      domain.DocumentTypeMarkdown,
		},
	}))
	retriever := setupRetriever(t, index)

	items, err := retriever.Retrieve(context.Background(), "approval rules", domain.RetrieveOptions{
		K:         2,
		Threshold: 0,
		Diversify: true,
	})

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "chunk-a", items[0].Chunk.ID, "top item always seeds the selection")
	assert.Equal(t, "chunk-c", items[1].Chunk.ID, "near-duplicate passed over for distinct content")
}

func TestRetriever_Retrieve_EmptyIndex(t *testing.T) {
	retriever := setupRetriever(t, memory.NewVectorIndex())

	items, err := retriever.Retrieve(context.Background(), "anything", domain.RetrieveOptions{})

	require.NoError(t, err)
	assert.Empty(t, items)
}

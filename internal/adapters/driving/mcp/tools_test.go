package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
)

func TestServer_handleAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("returns answer with citations", func(t *testing.T) {
		mockQuery := &mockQueryService{
			askResult: &driving.AskResult{
				Query: domain.QueryResult{
					Answer:     "The minimum credit score for conventional loans is 620.",
					Confidence: 85,
					Outcome:    domain.OutcomeAnswered,
					Citations: []domain.Citation{
						{
							Document: "credit_scoring_manual.md",
							Section:  "Minimum Scores",
							Excerpt:  "Conventional loans require a score of at least 620.",
							Score:    0.91,
						},
					},
					RetrievedCount: 3,
				},
			},
		}

		ports := &Ports{Query: mockQuery}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := AskInput{Question: "What is the minimum credit score?"}
		_, output, err := server.handleAsk(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, "The minimum credit score for conventional loans is 620.", output.Answer)
		assert.False(t, output.Refused)
		assert.Equal(t, 85, output.Confidence)
		assert.Equal(t, 3, output.Retrieved)
		require.Len(t, output.Citations, 1)
		assert.Equal(t, "credit_scoring_manual.md", output.Citations[0].Document)
		assert.Equal(t, "Minimum Scores", output.Citations[0].Section)
		assert.Equal(t, 0.91, output.Citations[0].Score)
	})

	t.Run("marks refused answers", func(t *testing.T) {
		mockQuery := &mockQueryService{
			askResult: &driving.AskResult{
				Query: domain.QueryResult{
					Answer:  domain.RefusalText,
					Outcome: domain.OutcomeRefused,
				},
			},
		}

		ports := &Ports{Query: mockQuery}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := AskInput{Question: "What is the lunar lending policy?"}
		_, output, err := server.handleAsk(ctx, nil, input)

		require.NoError(t, err)
		assert.True(t, output.Refused)
		assert.Equal(t, domain.RefusalText, output.Answer)
		assert.Empty(t, output.Citations)
	})

	t.Run("passes retrieval options through", func(t *testing.T) {
		mockQuery := &mockQueryService{
			askResult: &driving.AskResult{},
		}

		ports := &Ports{Query: mockQuery}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := AskInput{
			Question: "What is the maximum DTI?",
			K:        8,
			Document: "underwriting_guidelines.md",
		}
		_, _, err = server.handleAsk(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, "What is the maximum DTI?", mockQuery.gotQuestion)
		assert.Equal(t, 8, mockQuery.gotAskOpts.K)
		require.NotNil(t, mockQuery.gotAskOpts.Filter)
		assert.Equal(t, "underwriting_guidelines.md", mockQuery.gotAskOpts.Filter.Filename)
	})

	t.Run("returns error on ask failure", func(t *testing.T) {
		mockQuery := &mockQueryService{
			err: errors.New("completion service unavailable"),
		}

		ports := &Ports{Query: mockQuery}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := AskInput{Question: "What is the minimum credit score?"}
		_, _, err = server.handleAsk(ctx, nil, input)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "completion service unavailable")
	})
}

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns retrieved passages", func(t *testing.T) {
		mockQuery := &mockQueryService{
			items: []domain.RetrievedItem{
				{
					Chunk: domain.Chunk{
						Text:    "Conventional loans require a score of at least 620.",
						Section: "Minimum Scores",
					},
					Document: "credit_scoring_manual.md",
					Score:    0.91,
					Rank:     1,
				},
				{
					Chunk: domain.Chunk{
						Text:    "FHA loans accept scores down to 580.",
						Section: "FHA Requirements",
					},
					Document:    "fha_guidelines.md",
					Score:       0.84,
					RerankScore: 0.87,
					Rank:        2,
				},
			},
		}

		ports := &Ports{Query: mockQuery}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := SearchInput{Query: "minimum credit score"}
		_, output, err := server.handleSearch(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, 2, output.Count)
		require.Len(t, output.Results, 2)
		assert.Equal(t, "credit_scoring_manual.md", output.Results[0].Document)
		assert.Equal(t, "Minimum Scores", output.Results[0].Section)
		assert.Equal(t, 0.91, output.Results[0].Score)
		assert.Equal(t, "Conventional loans require a score of at least 620.", output.Results[0].Text)
		// The reranked score wins when present.
		assert.Equal(t, 0.87, output.Results[1].Score)
	})

	t.Run("passes retrieval options through", func(t *testing.T) {
		mockQuery := &mockQueryService{}

		ports := &Ports{Query: mockQuery}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := SearchInput{Query: "escrow", K: 3, Document: "servicing_policy.md"}
		_, output, err := server.handleSearch(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.Equal(t, 3, mockQuery.gotSearchOpts.K)
		require.NotNil(t, mockQuery.gotSearchOpts.Filter)
		assert.Equal(t, "servicing_policy.md", mockQuery.gotSearchOpts.Filter.Filename)
	})

	t.Run("returns error on search failure", func(t *testing.T) {
		mockQuery := &mockQueryService{
			err: errors.New("embedding service unavailable"),
		}

		ports := &Ports{Query: mockQuery}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := SearchInput{Query: "minimum credit score"}
		_, _, err = server.handleSearch(ctx, nil, input)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedding service unavailable")
	})
}

func TestServer_handleIndexStats(t *testing.T) {
	ctx := context.Background()

	t.Run("returns index statistics", func(t *testing.T) {
		mockDoc := &mockDocumentService{
			stats: &domain.IndexStats{
				DocumentCount:   3,
				ChunkCount:      42,
				TotalCharacters: 38000,
				EmbeddingModel:  "nomic-embed-text",
				Sources:         []string{"credit_scoring_manual.md", "fha_guidelines.md"},
			},
		}

		ports := &Ports{Query: &mockQueryService{}, Document: mockDoc}
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, output, err := server.handleIndexStats(ctx, nil, struct{}{})

		require.NoError(t, err)
		assert.Equal(t, 3, output.Documents)
		assert.Equal(t, 42, output.Chunks)
		assert.Equal(t, 38000, output.TotalCharacters)
		assert.Equal(t, "nomic-embed-text", output.EmbeddingModel)
		assert.Len(t, output.Sources, 2)
	})

	t.Run("nil document service returns error", func(t *testing.T) {
		ports := &Ports{Query: &mockQueryService{}}
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, _, err = server.handleIndexStats(ctx, nil, struct{}{})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingDocumentService)
	})

	t.Run("returns error on stats failure", func(t *testing.T) {
		mockDoc := &mockDocumentService{
			err: errors.New("index unavailable"),
		}

		ports := &Ports{Query: &mockQueryService{}, Document: mockDoc}
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, _, err = server.handleIndexStats(ctx, nil, struct{}{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "index unavailable")
	})
}

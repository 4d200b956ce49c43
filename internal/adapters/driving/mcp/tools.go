package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
)

// AskInput is the input schema for the ask_policy tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the policy question to answer"`
	K        int    `json:"k,omitempty" jsonschema:"maximum number of passages to retrieve (0 = configured default)"`
	Document string `json:"document,omitempty" jsonschema:"restrict retrieval to a single document filename"`
}

// AskOutput is the output schema for the ask_policy tool.
type AskOutput struct {
	Answer     string           `json:"answer"`
	Refused    bool             `json:"refused"`
	Confidence int              `json:"confidence"`
	Retrieved  int              `json:"retrieved"`
	Citations  []CitationOutput `json:"citations,omitempty"`
}

// CitationOutput is one source excerpt backing an answer.
type CitationOutput struct {
	Document string  `json:"document"`
	Section  string  `json:"section,omitempty"`
	Excerpt  string  `json:"excerpt"`
	Score    float64 `json:"score"`
}

// SearchInput is the input schema for the search_policies tool.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"the text to match policy passages against"`
	K        int    `json:"k,omitempty" jsonschema:"maximum number of passages to return (0 = configured default)"`
	Document string `json:"document,omitempty" jsonschema:"restrict retrieval to a single document filename"`
}

// SearchOutput is the output schema for the search_policies tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single retrieved passage.
type SearchResultOutput struct {
	Document string  `json:"document"`
	Section  string  `json:"section,omitempty"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

// IndexStatsOutput is the output schema for the index_stats tool.
type IndexStatsOutput struct {
	Documents       int      `json:"documents"`
	Chunks          int      `json:"chunks"`
	TotalCharacters int      `json:"total_characters"`
	EmbeddingModel  string   `json:"embedding_model,omitempty"`
	Sources         []string `json:"sources,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask_policy",
		Description: "Answer a question from the indexed policy documents with citations; refuses rather than guessing when the corpus has no answer",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_policies",
		Description: "Retrieve the policy passages most similar to a query, without generating an answer",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_stats",
		Description: "Report how many documents and chunks are indexed and which embedding model built the index",
	}, s.handleIndexStats)
}

// handleAsk handles the ask_policy tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	opts := driving.AskOptions{K: input.K, Threshold: -1}
	if input.Document != "" {
		opts.Filter = &domain.MetadataFilter{Filename: input.Document}
	}

	result, err := s.ports.Query.Ask(ctx, input.Question, opts)
	if err != nil {
		return nil, AskOutput{}, err
	}

	output := AskOutput{
		Answer:     result.Query.Answer,
		Refused:    result.Query.Outcome == domain.OutcomeRefused,
		Confidence: result.Query.Confidence,
		Retrieved:  result.Query.RetrievedCount,
		Citations:  make([]CitationOutput, len(result.Query.Citations)),
	}

	for i, c := range result.Query.Citations {
		output.Citations[i] = CitationOutput{
			Document: c.Document,
			Section:  c.Section,
			Excerpt:  c.Excerpt,
			Score:    c.Score,
		}
	}

	return nil, output, nil
}

// handleSearch handles the search_policies tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	opts := domain.RetrieveOptions{K: input.K, Threshold: -1}
	if input.Document != "" {
		opts.Filter = &domain.MetadataFilter{Filename: input.Document}
	}

	items, err := s.ports.Query.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(items)),
		Count:   len(items),
	}

	for i := range items {
		output.Results[i] = SearchResultOutput{
			Document: items[i].Document,
			Section:  items[i].Chunk.Section,
			Score:    items[i].EffectiveScore(),
			Text:     items[i].Chunk.Text,
		}
	}

	return nil, output, nil
}

// handleIndexStats handles the index_stats tool invocation.
func (s *Server) handleIndexStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ struct{},
) (*mcp.CallToolResult, IndexStatsOutput, error) {
	if s.ports.Document == nil {
		return nil, IndexStatsOutput{}, ErrMissingDocumentService
	}

	stats, err := s.ports.Document.Stats(ctx)
	if err != nil {
		return nil, IndexStatsOutput{}, err
	}

	output := IndexStatsOutput{
		Documents:       stats.DocumentCount,
		Chunks:          stats.ChunkCount,
		TotalCharacters: stats.TotalCharacters,
		EmbeddingModel:  stats.EmbeddingModel,
		Sources:         stats.Sources,
	}

	return nil, output, nil
}

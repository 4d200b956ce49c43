package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or completions.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI API, or any OpenAI-compatible
	// endpoint (Groq, LM Studio) selected via base URL.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is the Anthropic API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI-compatible (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// IndexBackend selects the vector index implementation.
type IndexBackend string

// Available index backends.
const (
	// IndexBackendSQLite persists vectors in the local SQLite store.
	IndexBackendSQLite IndexBackend = "sqlite"

	// IndexBackendPgvector uses a PostgreSQL server with the pgvector
	// extension.
	IndexBackendPgvector IndexBackend = "pgvector"

	// IndexBackendMemory keeps everything in process memory. Used by
	// tests and chunk-size sweeps.
	IndexBackendMemory IndexBackend = "memory"
)

// IsValid returns true if the backend is recognised.
func (b IndexBackend) IsValid() bool {
	switch b {
	case IndexBackendSQLite, IndexBackendPgvector, IndexBackendMemory:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (b IndexBackend) String() string {
	return string(b)
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model identifier. Must match the model the
	// index was built with.
	Model string

	// BaseURL is the API endpoint (for Ollama or OpenAI-compatible hosts).
	BaseURL string

	// APIKey is the API key (for cloud providers).
	APIKey string
}

// CompletionSettings holds completion provider configuration.
type CompletionSettings struct {
	// Provider is the completion service provider.
	Provider AIProvider

	// Model is the completion model identifier.
	Model string

	// BaseURL is the API endpoint (for Ollama or OpenAI-compatible hosts).
	BaseURL string

	// APIKey is the API key (for cloud providers).
	APIKey string

	// Temperature controls sampling randomness (0-2).
	Temperature float64

	// MaxTokens bounds the completion length.
	MaxTokens int
}

// Settings holds the full engine configuration. All numeric fields are
// validated once at startup; invalid combinations fail fast.
type Settings struct {
	// ChunkSize is the segmenter chunk size in characters.
	ChunkSize int

	// ChunkOverlap is the segmenter overlap in characters.
	// Must be non-negative and strictly less than ChunkSize.
	ChunkOverlap int

	// TopK is the default retrieval K.
	TopK int

	// SimilarityThreshold is the minimum retrieval score in [0,1].
	SimilarityThreshold float64

	// RerankingEnabled applies the heuristic rerank pass on retrieval.
	RerankingEnabled bool

	// Embedding configures the embedding provider.
	Embedding EmbeddingSettings

	// Completion configures the completion provider.
	Completion CompletionSettings

	// Backend selects the vector index implementation.
	Backend IndexBackend

	// IndexPath is the SQLite database path (sqlite backend).
	IndexPath string

	// PostgresDSN is the connection string (pgvector backend).
	PostgresDSN string

	// HistoryPath is the bbolt database for query/evaluation history.
	HistoryPath string

	// CasesDir is where golden evaluation case sets live.
	CasesDir string

	// RequestTimeout bounds each embedding/completion call.
	RequestTimeout time.Duration

	// MaxConcurrentQueries bounds batch/evaluation fan-out, reflecting
	// the completion service's rate limits.
	MaxConcurrentQueries int

	// RequestsPerSecond paces provider calls; 0 disables pacing.
	RequestsPerSecond float64
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		ChunkSize:           1000,
		ChunkOverlap:        200,
		TopK:                5,
		SimilarityThreshold: 0.7,
		RerankingEnabled:    true,
		Embedding: EmbeddingSettings{
			Provider: AIProviderOllama,
			Model:    "nomic-embed-text",
		},
		Completion: CompletionSettings{
			Provider:    AIProviderOpenAI,
			Model:       "llama-3.1-70b-versatile",
			Temperature: 0.1,
			MaxTokens:   1024,
		},
		Backend:              IndexBackendSQLite,
		IndexPath:            "ancora.db",
		HistoryPath:          "ancora_history.db",
		CasesDir:             "cases",
		RequestTimeout:       120 * time.Second,
		MaxConcurrentQueries: 4,
		RequestsPerSecond:    2,
	}
}

// Validate checks the configuration. It returns ErrInvalidConfig (wrapped
// with detail) on the first violation; values are never silently clamped.
func (s Settings) Validate() error {
	if s.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidConfig, s.ChunkSize)
	}
	if s.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk_overlap cannot be negative, got %d", ErrInvalidConfig, s.ChunkOverlap)
	}
	if s.ChunkOverlap >= s.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap (%d) must be less than chunk_size (%d)",
			ErrInvalidConfig, s.ChunkOverlap, s.ChunkSize)
	}
	if s.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, s.TopK)
	}
	if s.SimilarityThreshold < 0 || s.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold must be in [0,1], got %g",
			ErrInvalidConfig, s.SimilarityThreshold)
	}
	if s.Completion.Temperature < 0 || s.Completion.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be in [0,2], got %g",
			ErrInvalidConfig, s.Completion.Temperature)
	}
	if s.Completion.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d",
			ErrInvalidConfig, s.Completion.MaxTokens)
	}
	if !s.Embedding.Provider.IsValid() {
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, s.Embedding.Provider)
	}
	if !s.Completion.Provider.IsValid() {
		return fmt.Errorf("%w: unknown completion provider %q", ErrInvalidConfig, s.Completion.Provider)
	}
	if s.Embedding.Model == "" {
		return fmt.Errorf("%w: embedding model is required", ErrInvalidConfig)
	}
	if s.Completion.Model == "" {
		return fmt.Errorf("%w: completion model is required", ErrInvalidConfig)
	}
	if !s.Backend.IsValid() {
		return fmt.Errorf("%w: unknown index backend %q", ErrInvalidConfig, s.Backend)
	}
	if s.Backend == IndexBackendPgvector && s.PostgresDSN == "" {
		return fmt.Errorf("%w: pgvector backend requires postgres_dsn", ErrInvalidConfig)
	}
	if s.MaxConcurrentQueries <= 0 {
		return fmt.Errorf("%w: max_concurrent_queries must be positive, got %d",
			ErrInvalidConfig, s.MaxConcurrentQueries)
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout must be positive, got %s",
			ErrInvalidConfig, s.RequestTimeout)
	}
	return nil
}

// ExperimentConfigFromSettings builds the baseline experiment config.
func ExperimentConfigFromSettings(s Settings) ExperimentConfig {
	return ExperimentConfig{
		Name:                "baseline",
		Description:         "Current configuration",
		ChunkSize:           s.ChunkSize,
		ChunkOverlap:        s.ChunkOverlap,
		TopK:                s.TopK,
		SimilarityThreshold: s.SimilarityThreshold,
		EmbeddingModel:      s.Embedding.Model,
		CompletionModel:     s.Completion.Model,
		Temperature:         s.Completion.Temperature,
		RerankingEnabled:    s.RerankingEnabled,
	}
}

// AllEmbeddingProviders returns providers that support embedding operations.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllCompletionProviders returns providers that support completion operations.
func AllCompletionProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultCompletionModels returns default models for each completion provider.
func DefaultCompletionModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "llama-3.1-70b-versatile",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}

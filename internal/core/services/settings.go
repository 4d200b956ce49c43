package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyChunkSize        = "chunk_size"
	keyChunkOverlap     = "chunk_overlap"
	keyTopK             = "top_k"
	keyThreshold        = "similarity_threshold"
	keyReranking        = "reranking_enabled"
	keyRequestTimeout   = "request_timeout"
	keyMaxConcurrent    = "max_concurrent_queries"
	keyRequestsPerSec   = "requests_per_second"
	keyEmbedProvider    = "embedding.provider"
	keyEmbedModel       = "embedding.model"
	keyEmbedBaseURL     = "embedding.base_url"
	keyEmbedAPIKey      = "embedding.api_key"
	keyCompProvider     = "completion.provider"
	keyCompModel        = "completion.model"
	keyCompBaseURL      = "completion.base_url"
	keyCompAPIKey       = "completion.api_key"
	keyCompTemperature  = "completion.temperature"
	keyCompMaxTokens    = "completion.max_tokens"
	keyIndexBackend     = "index.backend"
	keyIndexPath        = "index.path"
	keyIndexPostgresDSN = "index.postgres_dsn"
	keyHistoryPath      = "history.path"
	keyCasesDir         = "evaluation.cases_dir"
)

// Environment overrides. Values in the environment win over the config
// file so deployments never need secrets on disk.
//
//nolint:gosec // G101: These are env var names, not actual credentials.
const (
	envOpenAIKey         = "ANCORA_OPENAI_API_KEY"
	envAnthropicKey      = "ANCORA_ANTHROPIC_API_KEY"
	envEmbeddingBaseURL  = "ANCORA_EMBEDDING_BASE_URL"
	envCompletionBaseURL = "ANCORA_COMPLETION_BASE_URL"
	envPostgresDSN       = "ANCORA_POSTGRES_DSN"
)

// SettingsService manages engine configuration.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get retrieves current settings: file values over defaults, environment
// overrides over both.
func (s *SettingsService) Get() (*domain.Settings, error) {
	defaults := domain.DefaultSettings()

	settings := &domain.Settings{
		ChunkSize:           s.getInt(keyChunkSize, defaults.ChunkSize),
		ChunkOverlap:        s.getIntAllowZero(keyChunkOverlap, defaults.ChunkOverlap),
		TopK:                s.getInt(keyTopK, defaults.TopK),
		SimilarityThreshold: s.getFloat(keyThreshold, defaults.SimilarityThreshold),
		RerankingEnabled:    s.getBool(keyReranking, defaults.RerankingEnabled),
		Embedding: domain.EmbeddingSettings{
			Provider: s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
			Model:    s.getString(keyEmbedModel, defaults.Embedding.Model),
			BaseURL:  s.configStore.GetString(keyEmbedBaseURL), // No default - empty is valid for cloud providers
			APIKey:   s.configStore.GetString(keyEmbedAPIKey),
		},
		Completion: domain.CompletionSettings{
			Provider:    s.getProvider(keyCompProvider, defaults.Completion.Provider),
			Model:       s.getString(keyCompModel, defaults.Completion.Model),
			BaseURL:     s.configStore.GetString(keyCompBaseURL), // No default - empty is valid for cloud providers
			APIKey:      s.configStore.GetString(keyCompAPIKey),
			Temperature: s.getFloatAllowZero(keyCompTemperature, defaults.Completion.Temperature),
			MaxTokens:   s.getInt(keyCompMaxTokens, defaults.Completion.MaxTokens),
		},
		Backend:              s.getBackend(keyIndexBackend, defaults.Backend),
		IndexPath:            s.getString(keyIndexPath, defaults.IndexPath),
		PostgresDSN:          s.configStore.GetString(keyIndexPostgresDSN),
		HistoryPath:          s.getString(keyHistoryPath, defaults.HistoryPath),
		CasesDir:             s.getString(keyCasesDir, defaults.CasesDir),
		RequestTimeout:       s.getDuration(keyRequestTimeout, defaults.RequestTimeout),
		MaxConcurrentQueries: s.getInt(keyMaxConcurrent, defaults.MaxConcurrentQueries),
		RequestsPerSecond:    s.getFloatAllowZero(keyRequestsPerSec, defaults.RequestsPerSecond),
	}

	s.applyEnvOverrides(settings)
	return settings, nil
}

// Save validates and persists settings. Empty API keys are not written,
// so saving never clobbers a key already on disk.
func (s *SettingsService) Save(settings *domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	values := map[string]any{
		keyChunkSize:       settings.ChunkSize,
		keyChunkOverlap:    settings.ChunkOverlap,
		keyTopK:            settings.TopK,
		keyThreshold:       settings.SimilarityThreshold,
		keyReranking:       settings.RerankingEnabled,
		keyRequestTimeout:  settings.RequestTimeout.String(),
		keyMaxConcurrent:   settings.MaxConcurrentQueries,
		keyRequestsPerSec:  settings.RequestsPerSecond,
		keyEmbedProvider:   settings.Embedding.Provider.String(),
		keyEmbedModel:      settings.Embedding.Model,
		keyEmbedBaseURL:    settings.Embedding.BaseURL,
		keyCompProvider:    settings.Completion.Provider.String(),
		keyCompModel:       settings.Completion.Model,
		keyCompBaseURL:     settings.Completion.BaseURL,
		keyCompTemperature: settings.Completion.Temperature,
		keyCompMaxTokens:   settings.Completion.MaxTokens,
		keyIndexBackend:    settings.Backend.String(),
		keyIndexPath:       settings.IndexPath,
		keyHistoryPath:     settings.HistoryPath,
		keyCasesDir:        settings.CasesDir,
	}
	if settings.Embedding.APIKey != "" {
		values[keyEmbedAPIKey] = settings.Embedding.APIKey
	}
	if settings.Completion.APIKey != "" {
		values[keyCompAPIKey] = settings.Completion.APIKey
	}
	if settings.PostgresDSN != "" {
		values[keyIndexPostgresDSN] = settings.PostgresDSN
	}

	for key, value := range values {
		if err := s.configStore.Set(key, value); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	return nil
}

// Set parses and stores a single value by its dotted key. The candidate
// settings are validated before anything is written, so a bad value
// never lands on disk.
func (s *SettingsService) Set(key, value string) error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := applySetting(settings, key, value); err != nil {
		return err
	}
	return s.Save(settings)
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: invalid embedding provider %q", domain.ErrInvalidConfig, provider)
	}

	supported := false
	for _, p := range domain.AllEmbeddingProviders() {
		if p == provider {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("%w: provider %s does not support embeddings", domain.ErrInvalidConfig, provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" && apiKeyFromEnv(provider) == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidConfig, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider
	if model != "" {
		settings.Embedding.Model = model
	} else if defaultModel, ok := domain.DefaultEmbeddingModels()[provider]; ok {
		settings.Embedding.Model = defaultModel
	}
	settings.Embedding.BaseURL = defaultBaseURL(provider, settings.Embedding.BaseURL)
	settings.Embedding.APIKey = apiKey

	return s.Save(settings)
}

// SetCompletionProvider configures the completion provider.
func (s *SettingsService) SetCompletionProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: invalid completion provider %q", domain.ErrInvalidConfig, provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" && apiKeyFromEnv(provider) == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidConfig, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Completion.Provider = provider
	if model != "" {
		settings.Completion.Model = model
	} else if defaultModel, ok := domain.DefaultCompletionModels()[provider]; ok {
		settings.Completion.Model = defaultModel
	}
	settings.Completion.BaseURL = defaultBaseURL(provider, settings.Completion.BaseURL)
	settings.Completion.APIKey = apiKey

	return s.Save(settings)
}

// Validate checks the current settings against the domain rules.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return settings.Validate()
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateCompletionConfig validates the current completion configuration by pinging the provider.
func (s *SettingsService) ValidateCompletionConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateCompletion(&settings.Completion)
}

// Path returns the configuration file path for display.
func (s *SettingsService) Path() string {
	return s.configStore.Path()
}

// applyEnvOverrides folds environment values into the settings.
func (s *SettingsService) applyEnvOverrides(settings *domain.Settings) {
	if key := apiKeyFromEnv(settings.Embedding.Provider); key != "" {
		settings.Embedding.APIKey = key
	}
	if key := apiKeyFromEnv(settings.Completion.Provider); key != "" {
		settings.Completion.APIKey = key
	}
	if url := os.Getenv(envEmbeddingBaseURL); url != "" {
		settings.Embedding.BaseURL = url
	}
	if url := os.Getenv(envCompletionBaseURL); url != "" {
		settings.Completion.BaseURL = url
	}
	if dsn := os.Getenv(envPostgresDSN); dsn != "" {
		settings.PostgresDSN = dsn
	}
}

// apiKeyFromEnv returns the environment API key for cloud providers.
func apiKeyFromEnv(provider domain.AIProvider) string {
	switch provider {
	case domain.AIProviderOpenAI:
		return os.Getenv(envOpenAIKey)
	case domain.AIProviderAnthropic:
		return os.Getenv(envAnthropicKey)
	default:
		return ""
	}
}

// defaultBaseURL keeps a local provider's base URL populated and clears
// it for cloud providers, whose SDK default endpoints apply.
func defaultBaseURL(provider domain.AIProvider, current string) string {
	if provider.IsLocal() {
		if current == "" {
			return "http://localhost:11434"
		}
		return current
	}
	return ""
}

// applySetting parses value and assigns it to the field named by key.
func applySetting(settings *domain.Settings, key, value string) error {
	badValue := func(err error) error {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, key, err)
	}

	switch key {
	case keyChunkSize:
		return parseInt(value, &settings.ChunkSize, badValue)
	case keyChunkOverlap:
		return parseInt(value, &settings.ChunkOverlap, badValue)
	case keyTopK:
		return parseInt(value, &settings.TopK, badValue)
	case keyCompMaxTokens:
		return parseInt(value, &settings.Completion.MaxTokens, badValue)
	case keyMaxConcurrent:
		return parseInt(value, &settings.MaxConcurrentQueries, badValue)
	case keyThreshold:
		return parseFloat(value, &settings.SimilarityThreshold, badValue)
	case keyCompTemperature:
		return parseFloat(value, &settings.Completion.Temperature, badValue)
	case keyRequestsPerSec:
		return parseFloat(value, &settings.RequestsPerSecond, badValue)
	case keyReranking:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return badValue(err)
		}
		settings.RerankingEnabled = b
	case keyRequestTimeout:
		d, err := time.ParseDuration(value)
		if err != nil {
			return badValue(err)
		}
		settings.RequestTimeout = d
	case keyEmbedProvider:
		settings.Embedding.Provider = domain.AIProvider(value)
	case keyEmbedModel:
		settings.Embedding.Model = value
	case keyEmbedBaseURL:
		settings.Embedding.BaseURL = value
	case keyEmbedAPIKey:
		settings.Embedding.APIKey = value
	case keyCompProvider:
		settings.Completion.Provider = domain.AIProvider(value)
	case keyCompModel:
		settings.Completion.Model = value
	case keyCompBaseURL:
		settings.Completion.BaseURL = value
	case keyCompAPIKey:
		settings.Completion.APIKey = value
	case keyIndexBackend:
		settings.Backend = domain.IndexBackend(value)
	case keyIndexPath:
		settings.IndexPath = value
	case keyIndexPostgresDSN:
		settings.PostgresDSN = value
	case keyHistoryPath:
		settings.HistoryPath = value
	case keyCasesDir:
		settings.CasesDir = value
	default:
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidConfig, key)
	}
	return nil
}

func parseInt(value string, dst *int, badValue func(error) error) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return badValue(err)
	}
	*dst = n
	return nil
}

func parseFloat(value string, dst *float64, badValue func(error) error) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return badValue(err)
	}
	*dst = f
	return nil
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

// getIntAllowZero treats an explicit zero as a value, not an absence.
func (s *SettingsService) getIntAllowZero(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val := s.configStore.GetFloat(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

// getFloatAllowZero treats an explicit zero as a value, not an absence.
func (s *SettingsService) getFloatAllowZero(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getBackend(key string, defaultVal domain.IndexBackend) domain.IndexBackend {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	backend := domain.IndexBackend(val)
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}

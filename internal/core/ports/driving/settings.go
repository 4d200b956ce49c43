package driving

import "github.com/ancora-labs/ancora/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings.
	Get() (*domain.Settings, error)

	// Save validates and persists application settings.
	Save(settings *domain.Settings) error

	// Set parses and stores a single configuration value by key.
	// The key uses dotted TOML form, e.g. "completion.max_tokens".
	Set(key, value string) error

	// SetEmbeddingProvider configures the embedding provider.
	SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error

	// SetCompletionProvider configures the completion provider.
	SetCompletionProvider(provider domain.AIProvider, model, apiKey string) error

	// Validate checks the current settings against the domain rules.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings

	// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
	ValidateEmbeddingConfig() error

	// ValidateCompletionConfig validates the current completion configuration by pinging the provider.
	ValidateCompletionConfig() error

	// Path returns the configuration file path for display.
	Path() string
}

package ai

import (
	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
)

// Ensure ConfigValidator implements the interface.
var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// ConfigValidator validates AI provider configurations by building the
// configured service and pinging its endpoint.
type ConfigValidator struct{}

// NewConfigValidator creates a new AI config validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// ValidateEmbedding validates an embedding configuration by pinging the provider.
func (v *ConfigValidator) ValidateEmbedding(config *domain.EmbeddingSettings) error {
	return ValidateEmbeddingConfig(config)
}

// ValidateCompletion validates a completion configuration by pinging the provider.
func (v *ConfigValidator) ValidateCompletion(config *domain.CompletionSettings) error {
	return ValidateCompletionConfig(config)
}

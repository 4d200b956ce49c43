// Package ai builds embedding and completion services from provider
// settings and wraps them with request pacing and bounded retries.
package ai

import (
	"context"
	"fmt"
	"time"

	anthropiccmpl "github.com/ancora-labs/ancora/internal/adapters/driven/completion/anthropic"
	ollamacmpl "github.com/ancora-labs/ancora/internal/adapters/driven/completion/ollama"
	openaicmpl "github.com/ancora-labs/ancora/internal/adapters/driven/completion/openai"
	ollamaembed "github.com/ancora-labs/ancora/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/ancora-labs/ancora/internal/adapters/driven/embedding/openai"
	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for connectivity validation.
const pingTimeout = 5 * time.Second

// Options carries cross-provider settings applied to every AI service.
type Options struct {
	// Timeout bounds each provider request. Zero keeps the adapter default.
	Timeout time.Duration

	// RequestsPerSecond paces provider calls. Zero disables pacing.
	RequestsPerSecond float64
}

// OptionsFromSettings extracts the cross-provider knobs from settings.
func OptionsFromSettings(s domain.Settings) Options {
	return Options{
		Timeout:           s.RequestTimeout,
		RequestsPerSecond: s.RequestsPerSecond,
	}
}

// CreateEmbeddingService builds the configured embedding service, wrapped
// with pacing and bounded retries for transient provider failures.
func CreateEmbeddingService(settings *domain.EmbeddingSettings, opts Options) (driven.EmbeddingService, error) {
	svc, err := createEmbedding(settings, opts)
	if err != nil {
		return nil, err
	}
	return newPacedEmbedding(svc, opts.RequestsPerSecond), nil
}

// CreateCompletionService builds the configured completion service,
// wrapped with pacing and bounded retries for transient provider failures.
func CreateCompletionService(settings *domain.CompletionSettings, opts Options) (driven.CompletionService, error) {
	svc, err := createCompletion(settings, opts)
	if err != nil {
		return nil, err
	}
	return newPacedCompletion(svc, opts.RequestsPerSecond), nil
}

// CreateAndValidateEmbeddingService builds the embedding service and
// verifies the provider is reachable before returning it.
func CreateAndValidateEmbeddingService(settings *domain.EmbeddingSettings, opts Options) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings, opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%v); run 'ancora config validate' to diagnose",
			domain.ErrEmbeddingUnavailable, err)
	}
	return svc, nil
}

// CreateAndValidateCompletionService builds the completion service and
// verifies the provider is reachable before returning it.
func CreateAndValidateCompletionService(settings *domain.CompletionSettings, opts Options) (driven.CompletionService, error) {
	svc, err := CreateCompletionService(settings, opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%v); run 'ancora config validate' to diagnose",
			domain.ErrCompletionUnavailable, err)
	}
	return svc, nil
}

// ValidateEmbeddingConfig builds the configured embedding service and
// pings it. Used when a provider is configured interactively so bad
// endpoints or credentials surface immediately.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	svc, err := createEmbedding(settings, Options{})
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}

// ValidateCompletionConfig builds the configured completion service and
// pings it.
func ValidateCompletionConfig(settings *domain.CompletionSettings) error {
	svc, err := createCompletion(settings, Options{})
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}

// createEmbedding dispatches on the provider without wrapping.
func createEmbedding(settings *domain.EmbeddingSettings, opts Options) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: embedding settings are required", domain.ErrInvalidConfig)
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaEmbedding(settings, opts), nil

	case domain.AIProviderOpenAI:
		return createOpenAIEmbedding(settings, opts)

	case domain.AIProviderAnthropic:
		return nil, fmt.Errorf("%w: anthropic does not support embeddings, use ollama or openai",
			domain.ErrInvalidConfig)

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q",
			domain.ErrInvalidConfig, settings.Provider)
	}
}

// createCompletion dispatches on the provider without wrapping.
func createCompletion(settings *domain.CompletionSettings, opts Options) (driven.CompletionService, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: completion settings are required", domain.ErrInvalidConfig)
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaCompletion(settings, opts), nil

	case domain.AIProviderOpenAI:
		return createOpenAICompletion(settings, opts)

	case domain.AIProviderAnthropic:
		return createAnthropicCompletion(settings, opts)

	default:
		return nil, fmt.Errorf("%w: unsupported completion provider %q",
			domain.ErrInvalidConfig, settings.Provider)
	}
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings *domain.EmbeddingSettings, opts Options) *ollamaembed.EmbeddingService {
	dimensions := domain.EmbeddingDimensions()[settings.Model]
	if dimensions == 0 {
		dimensions = ollamaembed.DefaultDimensions
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Timeout:    opts.Timeout,
		Dimensions: dimensions,
	})
}

// createOpenAIEmbedding creates an OpenAI embedding service.
func createOpenAIEmbedding(settings *domain.EmbeddingSettings, opts Options) (*openaiembed.EmbeddingService, error) {
	dimensions := domain.EmbeddingDimensions()[settings.Model]

	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Timeout:    opts.Timeout,
		Dimensions: dimensions,
	})
}

// createOllamaCompletion creates an Ollama completion service.
func createOllamaCompletion(settings *domain.CompletionSettings, opts Options) *ollamacmpl.CompletionService {
	return ollamacmpl.NewCompletionService(ollamacmpl.Config{
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
		Timeout: opts.Timeout,
	})
}

// createOpenAICompletion creates an OpenAI-compatible completion service.
func createOpenAICompletion(settings *domain.CompletionSettings, opts Options) (*openaicmpl.CompletionService, error) {
	return openaicmpl.NewCompletionService(openaicmpl.Config{
		APIKey:  settings.APIKey,
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
		Timeout: opts.Timeout,
	})
}

// createAnthropicCompletion creates an Anthropic completion service.
func createAnthropicCompletion(settings *domain.CompletionSettings, opts Options) (*anthropiccmpl.CompletionService, error) {
	return anthropiccmpl.NewCompletionService(anthropiccmpl.Config{
		APIKey:  settings.APIKey,
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
		Timeout: opts.Timeout,
	})
}

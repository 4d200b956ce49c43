package ai

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

// --- Test helpers ---

// ollamaServer fakes the Ollama /api/tags endpoint used by Ping.
func ollamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// openaiServer fakes the OpenAI /models endpoint used by Ping, rejecting
// requests without the expected bearer token.
func openaiServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// brokenServer fakes a provider that is up but failing.
func brokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// --- Tests ---

func TestOptionsFromSettings(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.RequestTimeout = 45 * time.Second
	settings.RequestsPerSecond = 3.5

	opts := OptionsFromSettings(settings)

	assert.Equal(t, 45*time.Second, opts.Timeout)
	assert.Equal(t, 3.5, opts.RequestsPerSecond)
}

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		settings    *domain.EmbeddingSettings
		wantErr     bool
		errContains string
	}{
		{
			name: "ollama provider",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOllama,
				Model:    "nomic-embed-text",
			},
		},
		{
			name: "openai provider with key",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
				Model:    "text-embedding-3-small",
				APIKey:   "sk-test",
			},
		},
		{
			name: "openai provider without key",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
				Model:    "text-embedding-3-small",
			},
			wantErr:     true,
			errContains: "API key",
		},
		{
			name: "anthropic has no embeddings",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderAnthropic,
				APIKey:   "sk-ant",
			},
			wantErr:     true,
			errContains: "does not support embeddings",
		},
		{
			name: "unknown provider",
			settings: &domain.EmbeddingSettings{
				Provider: "watson",
				Model:    "some-model",
			},
			wantErr:     true,
			errContains: "unsupported embedding provider",
		},
		{
			name:        "nil settings",
			settings:    nil,
			wantErr:     true,
			errContains: "embedding settings are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings, Options{})

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.errContains)
				assert.Nil(t, svc)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, svc)
			assert.Equal(t, tt.settings.Model, svc.ModelName())
			assert.NoError(t, svc.Close())
		})
	}
}

func TestCreateCompletionService(t *testing.T) {
	tests := []struct {
		name        string
		settings    *domain.CompletionSettings
		wantErr     bool
		errContains string
	}{
		{
			name: "ollama provider",
			settings: &domain.CompletionSettings{
				Provider: domain.AIProviderOllama,
				Model:    "llama3.2",
			},
		},
		{
			name: "openai provider with key",
			settings: &domain.CompletionSettings{
				Provider: domain.AIProviderOpenAI,
				Model:    "gpt-4o-mini",
				APIKey:   "sk-test",
			},
		},
		{
			name: "anthropic provider with key",
			settings: &domain.CompletionSettings{
				Provider: domain.AIProviderAnthropic,
				Model:    "claude-3-5-sonnet-latest",
				APIKey:   "sk-ant",
			},
		},
		{
			name: "openai provider without key",
			settings: &domain.CompletionSettings{
				Provider: domain.AIProviderOpenAI,
				Model:    "gpt-4o-mini",
			},
			wantErr:     true,
			errContains: "API key",
		},
		{
			name: "anthropic provider without key",
			settings: &domain.CompletionSettings{
				Provider: domain.AIProviderAnthropic,
				Model:    "claude-3-5-sonnet-latest",
			},
			wantErr:     true,
			errContains: "API key",
		},
		{
			name: "unknown provider",
			settings: &domain.CompletionSettings{
				Provider: "watson",
				Model:    "some-model",
			},
			wantErr:     true,
			errContains: "unsupported completion provider",
		},
		{
			name:        "nil settings",
			settings:    nil,
			wantErr:     true,
			errContains: "completion settings are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateCompletionService(tt.settings, Options{})

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.errContains)
				assert.Nil(t, svc)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, svc)
			assert.Equal(t, tt.settings.Model, svc.ModelName())
			assert.NoError(t, svc.Close())
		})
	}
}

func TestCreateEmbeddingService_KnownModelDimensions(t *testing.T) {
	svc, err := CreateEmbeddingService(&domain.EmbeddingSettings{
		Provider: domain.AIProviderOpenAI,
		Model:    "text-embedding-3-large",
		APIKey:   "sk-test",
	}, Options{})
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, 3072, svc.Dimensions())
}

func TestCreateEmbeddingService_PacingFollowsSettings(t *testing.T) {
	settings := &domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama,
		Model:    "nomic-embed-text",
	}

	unpaced, err := CreateEmbeddingService(settings, Options{})
	require.NoError(t, err)
	defer unpaced.Close()

	paced, err := CreateEmbeddingService(settings, Options{RequestsPerSecond: 2})
	require.NoError(t, err)
	defer paced.Close()

	require.IsType(t, (*pacedEmbedding)(nil), unpaced)
	assert.Nil(t, unpaced.(*pacedEmbedding).limiter)

	require.IsType(t, (*pacedEmbedding)(nil), paced)
	limiter := paced.(*pacedEmbedding).limiter
	require.NotNil(t, limiter)
	assert.Equal(t, rate.Limit(2), limiter.Limit())
}

func TestCreateAndValidateEmbeddingService(t *testing.T) {
	t.Run("reachable provider", func(t *testing.T) {
		srv := ollamaServer(t)

		svc, err := CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{
			Provider: domain.AIProviderOllama,
			Model:    "nomic-embed-text",
			BaseURL:  srv.URL,
		}, Options{})

		require.NoError(t, err)
		require.NotNil(t, svc)
		assert.NoError(t, svc.Close())
	})

	t.Run("failing provider", func(t *testing.T) {
		srv := brokenServer(t)

		svc, err := CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{
			Provider: domain.AIProviderOllama,
			Model:    "nomic-embed-text",
			BaseURL:  srv.URL,
		}, Options{})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
		assert.Contains(t, err.Error(), "ancora config validate")
		assert.Nil(t, svc)
	})

	t.Run("invalid settings fail before ping", func(t *testing.T) {
		svc, err := CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{
			Provider: domain.AIProviderAnthropic,
		}, Options{})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		assert.Nil(t, svc)
	})
}

func TestCreateAndValidateCompletionService(t *testing.T) {
	t.Run("reachable provider", func(t *testing.T) {
		srv := openaiServer(t, "sk-test")

		svc, err := CreateAndValidateCompletionService(&domain.CompletionSettings{
			Provider: domain.AIProviderOpenAI,
			Model:    "gpt-4o-mini",
			APIKey:   "sk-test",
			BaseURL:  srv.URL,
		}, Options{})

		require.NoError(t, err)
		require.NotNil(t, svc)
		assert.NoError(t, svc.Close())
	})

	t.Run("bad credentials", func(t *testing.T) {
		srv := openaiServer(t, "sk-test")

		svc, err := CreateAndValidateCompletionService(&domain.CompletionSettings{
			Provider: domain.AIProviderOpenAI,
			Model:    "gpt-4o-mini",
			APIKey:   "sk-wrong",
			BaseURL:  srv.URL,
		}, Options{})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrCompletionUnavailable)
		assert.Contains(t, err.Error(), "invalid api key")
		assert.Nil(t, svc)
	})
}

func TestValidateEmbeddingConfig(t *testing.T) {
	t.Run("reachable provider passes", func(t *testing.T) {
		srv := ollamaServer(t)

		err := ValidateEmbeddingConfig(&domain.EmbeddingSettings{
			Provider: domain.AIProviderOllama,
			Model:    "nomic-embed-text",
			BaseURL:  srv.URL,
		})

		assert.NoError(t, err)
	})

	t.Run("unreachable provider fails", func(t *testing.T) {
		srv := ollamaServer(t)
		srv.Close()

		err := ValidateEmbeddingConfig(&domain.EmbeddingSettings{
			Provider: domain.AIProviderOllama,
			Model:    "nomic-embed-text",
			BaseURL:  srv.URL,
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("anthropic rejected without network", func(t *testing.T) {
		err := ValidateEmbeddingConfig(&domain.EmbeddingSettings{
			Provider: domain.AIProviderAnthropic,
			APIKey:   "sk-ant",
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not support embeddings")
	})
}

func TestValidateCompletionConfig(t *testing.T) {
	t.Run("valid credentials pass", func(t *testing.T) {
		srv := openaiServer(t, "sk-test")

		err := ValidateCompletionConfig(&domain.CompletionSettings{
			Provider: domain.AIProviderOpenAI,
			Model:    "gpt-4o-mini",
			APIKey:   "sk-test",
			BaseURL:  srv.URL,
		})

		assert.NoError(t, err)
	})

	t.Run("bad credentials fail without being transient", func(t *testing.T) {
		srv := openaiServer(t, "sk-test")

		err := ValidateCompletionConfig(&domain.CompletionSettings{
			Provider: domain.AIProviderOpenAI,
			Model:    "gpt-4o-mini",
			APIKey:   "sk-wrong",
			BaseURL:  srv.URL,
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid api key")
		assert.NotErrorIs(t, err, domain.ErrCompletionUnavailable)
		assert.NotErrorIs(t, err, domain.ErrRateLimited)
	})

	t.Run("missing key rejected", func(t *testing.T) {
		err := ValidateCompletionConfig(&domain.CompletionSettings{
			Provider: domain.AIProviderOpenAI,
			Model:    "gpt-4o-mini",
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	})
}

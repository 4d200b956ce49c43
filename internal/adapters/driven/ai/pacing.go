package ai

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
)

// Retry policy for transient provider failures.
const (
	retryAttempts    = 3
	retryBackoffBase = 500 * time.Millisecond
)

// retryable reports whether a provider error is worth retrying. Rate
// limits and unreachable services are transient; auth and validation
// failures are not.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrRateLimited) ||
		errors.Is(err, domain.ErrEmbeddingUnavailable) ||
		errors.Is(err, domain.ErrCompletionUnavailable)
}

// withRetry runs fn up to retryAttempts times with doubling backoff and
// jitter. It stops early when the error is not transient or the context
// is done, and always returns the last provider error.
func withRetry(ctx context.Context, base time.Duration, fn func() error) error {
	var err error
	backoff := base
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(rand.Int63n(int64(backoff/2) + 1))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return err
			}
			backoff *= 2
		}

		err = fn()
		if err == nil || !retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

// pacedEmbedding decorates an embedding service with client-side pacing
// and bounded retries. A nil limiter disables pacing; retries always
// apply.
type pacedEmbedding struct {
	inner     driven.EmbeddingService
	limiter   *rate.Limiter
	retryBase time.Duration
}

// newPacedEmbedding wraps svc. rps <= 0 disables pacing.
func newPacedEmbedding(svc driven.EmbeddingService, rps float64) driven.EmbeddingService {
	p := &pacedEmbedding{inner: svc, retryBase: retryBackoffBase}
	if rps > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return p
}

func (p *pacedEmbedding) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// Embed generates a vector embedding for the given text.
func (p *pacedEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := withRetry(ctx, p.retryBase, func() error {
		if err := p.wait(ctx); err != nil {
			return err
		}
		var callErr error
		result, callErr = p.inner.Embed(ctx, text)
		return callErr
	})
	return result, err
}

// EmbedBatch generates embeddings for multiple texts. The whole batch
// counts as one paced request.
func (p *pacedEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := withRetry(ctx, p.retryBase, func() error {
		if err := p.wait(ctx); err != nil {
			return err
		}
		var callErr error
		result, callErr = p.inner.EmbedBatch(ctx, texts)
		return callErr
	})
	return result, err
}

// Dimensions returns the embedding vector size.
func (p *pacedEmbedding) Dimensions() int {
	return p.inner.Dimensions()
}

// ModelName returns the name of the embedding model being used.
func (p *pacedEmbedding) ModelName() string {
	return p.inner.ModelName()
}

// Ping delegates directly; connectivity checks should fail fast rather
// than queue behind paced traffic.
func (p *pacedEmbedding) Ping(ctx context.Context) error {
	return p.inner.Ping(ctx)
}

// Close releases resources.
func (p *pacedEmbedding) Close() error {
	return p.inner.Close()
}

// pacedCompletion decorates a completion service with client-side pacing
// and bounded retries.
type pacedCompletion struct {
	inner     driven.CompletionService
	limiter   *rate.Limiter
	retryBase time.Duration
}

// newPacedCompletion wraps svc. rps <= 0 disables pacing.
func newPacedCompletion(svc driven.CompletionService, rps float64) driven.CompletionService {
	p := &pacedCompletion{inner: svc, retryBase: retryBackoffBase}
	if rps > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return p
}

func (p *pacedCompletion) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// Complete produces a text completion from a single prompt.
func (p *pacedCompletion) Complete(ctx context.Context, prompt string, opts driven.CompleteOptions) (*driven.Completion, error) {
	var result *driven.Completion
	err := withRetry(ctx, p.retryBase, func() error {
		if err := p.wait(ctx); err != nil {
			return err
		}
		var callErr error
		result, callErr = p.inner.Complete(ctx, prompt, opts)
		return callErr
	})
	return result, err
}

// Chat conducts a multi-turn conversation.
func (p *pacedCompletion) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (*driven.Completion, error) {
	var result *driven.Completion
	err := withRetry(ctx, p.retryBase, func() error {
		if err := p.wait(ctx); err != nil {
			return err
		}
		var callErr error
		result, callErr = p.inner.Chat(ctx, messages, opts)
		return callErr
	})
	return result, err
}

// ModelName returns the name of the completion model being used.
func (p *pacedCompletion) ModelName() string {
	return p.inner.ModelName()
}

// Ping delegates directly; connectivity checks should fail fast rather
// than queue behind paced traffic.
func (p *pacedCompletion) Ping(ctx context.Context) error {
	return p.inner.Ping(ctx)
}

// Close releases resources.
func (p *pacedCompletion) Close() error {
	return p.inner.Close()
}

// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// CompletionService generates text from a language model.
// The answer generator uses it to produce grounded answers from retrieved context.
//
// Implementations may include:
//   - OpenAI-compatible APIs (OpenAI, Groq, LM Studio)
//   - Anthropic (Claude)
//   - Ollama (local models)
type CompletionService interface {
	// Complete produces a text completion from a single prompt.
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (*Completion, error)

	// Chat conducts a multi-turn conversation. The answer generator sends a
	// system message carrying the grounding rules and a user message carrying
	// the question plus retrieved context.
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (*Completion, error)

	// ModelName returns the name of the completion model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Completion is the result of a completion or chat call.
type Completion struct {
	// Text is the generated text.
	Text string

	// TokensUsed is the total token count reported by the provider,
	// or 0 if the provider does not report usage.
	TokensUsed int
}

// CompleteOptions configures text generation behaviour.
type CompleteOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// StopWords are sequences that stop generation when encountered.
	StopWords []string
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// ChatOptions configures chat behaviour.
type ChatOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}

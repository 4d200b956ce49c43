package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrInvalidConfig indicates an invalid parameter combination.
	// Fatal at startup; never silently degraded.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrIngestion indicates a document failed to ingest. The partial
	// write is rolled back and the document is left unindexed.
	ErrIngestion = errors.New("ingestion failed")

	// ErrGeneration indicates the completion service failed after
	// retries. Surfaced to the caller as a query failure, never
	// silently answered.
	ErrGeneration = errors.New("answer generation failed")

	// ErrGroundingRefused indicates the validator rejected the answer.
	// Resolves to the fixed refusal response.
	ErrGroundingRefused = errors.New("grounding validation refused")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDocumentExists indicates an unchanged document was re-ingested
	// without force.
	ErrDocumentExists = errors.New("document already ingested")

	// ErrEmbeddingMismatch indicates the configured embedding model does
	// not match the model the index was built with.
	ErrEmbeddingMismatch = errors.New("embedding model mismatch")

	// ErrIngestInProgress indicates an upsert or delete is already
	// running for the same document, or a reindexing sweep holds the
	// index.
	ErrIngestInProgress = errors.New("ingestion in progress")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured or unreachable.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrCompletionUnavailable indicates the completion service is not
	// configured or unreachable.
	ErrCompletionUnavailable = errors.New("completion service unavailable")

	// ErrRateLimited indicates the provider rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnsupportedFormat indicates a file type the loader cannot
	// extract text from. Ingest skips the file with a warning.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmptyQuery indicates a blank question.
	ErrEmptyQuery = errors.New("empty question")
)

// FailureCode is a stable, machine-readable reason code attached to
// user-visible failures.
type FailureCode string

// Recognised failure codes.
const (
	FailureConfiguration FailureCode = "configuration_error"
	FailureValidation    FailureCode = "validation_error"
	FailureIngestion     FailureCode = "ingestion_error"
	FailureGeneration    FailureCode = "generation_error"
	FailureGrounding     FailureCode = "grounding_refused"
	FailureNotFound      FailureCode = "not_found"
	FailureInternal      FailureCode = "internal_error"
)

// Failure is a structured, user-visible error. Callers receive a reason
// code and message, never a raw stack trace.
type Failure struct {
	// Code is the stable reason code.
	Code FailureCode

	// Message is the human-readable detail.
	Message string
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// NewFailure builds a Failure with a formatted message.
func NewFailure(code FailureCode, format string, args ...any) *Failure {
	return &Failure{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FailureFrom maps a domain error to its structured failure, defaulting
// to FailureInternal for unrecognised errors.
func FailureFrom(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	code := FailureInternal
	switch {
	case errors.Is(err, ErrInvalidConfig):
		code = FailureConfiguration
	case errors.Is(err, ErrEmptyQuery):
		code = FailureValidation
	case errors.Is(err, ErrIngestion), errors.Is(err, ErrDocumentExists),
		errors.Is(err, ErrIngestInProgress), errors.Is(err, ErrUnsupportedFormat):
		code = FailureIngestion
	case errors.Is(err, ErrGeneration), errors.Is(err, ErrCompletionUnavailable):
		code = FailureGeneration
	case errors.Is(err, ErrGroundingRefused):
		code = FailureGrounding
	case errors.Is(err, ErrNotFound):
		code = FailureNotFound
	}
	return &Failure{Code: code, Message: err.Error()}
}

// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - EmbeddingService: Generates vector embeddings for chunks and questions
//   - CompletionService: Generates grounded answers from retrieved context
//   - VectorIndex: Chunk embedding storage and cosine similarity search
//   - DocumentStore: Document metadata and fingerprint persistence
//   - DocumentLoader: Reads policy files from disk
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - QueryHistoryStore: Query audit log. Without it, the history command is empty.
//   - EvaluationStore: Persisted evaluation runs. Without it, reports are print-only.
//   - ExperimentStore: Persisted sweep results. Without it, sweeps are print-only.
//   - CaseStore: Evaluation case sets. Without it, only the embedded set is available.
//   - PromptStore: User-editable prompt templates. Without it, embedded defaults apply.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or service package
package driven

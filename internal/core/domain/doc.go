// Package domain defines the core business entities for Ancora.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: an ingested policy document with extracted metadata
//   - Chunk: the minimum retrievable unit of a document
//   - RetrievedItem: a chunk scored against a query
//   - QueryResult: a grounded answer with citations and confidence
//   - EvaluationRun / ExperimentResult: measurement artefacts
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain

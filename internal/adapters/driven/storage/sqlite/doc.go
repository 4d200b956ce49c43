// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - DocumentStore: Document metadata and full-text persistence
//   - VectorIndex: Chunk embeddings with brute-force cosine search
//   - ExperimentStore: Parameter sweep result persistence
//
// Embeddings are stored as little-endian float32 blobs and scored in Go;
// at policy-corpus scale (thousands of chunks) a full scan beats
// maintaining an approximate index.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.ancora/ancora.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite

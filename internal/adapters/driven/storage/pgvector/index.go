// Package pgvector provides a Postgres-backed implementation of the
// vector index using the pgvector extension.
//
// Unlike the SQLite backend, similarity is computed in the database via
// the cosine distance operator (<=>), so search never transfers
// candidate embeddings to the client. The schema is created on startup;
// the vector extension must be installable by the connecting role.
//
// Tables are prefixed ancora_ so the index can share a database with
// other applications.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
)

// metaEmbeddingModel is the ancora_index_meta key recording the
// embedding model the index was built with.
const metaEmbeddingModel = "embedding_model"

// VectorIndex implements driven.VectorIndex on Postgres with pgvector.
type VectorIndex struct {
	db         *sql.DB
	dimensions int
}

var _ driven.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex connects to Postgres at dsn and ensures the schema
// exists. dimensions fixes the vector column width; it must match the
// configured embedding model.
func NewVectorIndex(ctx context.Context, dsn string, dimensions int) (*VectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: pgvector requires positive embedding dimensions, got %d", domain.ErrInvalidConfig, dimensions)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	x := &VectorIndex{db: db, dimensions: dimensions}
	if err := x.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return x, nil
}

// ensureSchema creates the extension, tables and indexes if missing.
func (x *VectorIndex) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		// seq records insertion order for deterministic tie-breaks.
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ancora_chunks (
			seq BIGSERIAL,
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			text TEXT NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			tag TEXT NOT NULL,
			section TEXT NOT NULL DEFAULT '',
			filename TEXT NOT NULL,
			type TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, x.dimensions),
		`CREATE INDEX IF NOT EXISTS idx_ancora_chunks_document_id ON ancora_chunks(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ancora_chunks_filename ON ancora_chunks(filename)`,
		`CREATE TABLE IF NOT EXISTS ancora_index_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := x.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

// ReplaceDocument atomically replaces all entries for a document.
func (x *VectorIndex) ReplaceDocument(ctx context.Context, documentID string, entries []driven.IndexEntry) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM ancora_chunks WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("clearing existing chunks: %w", err)
	}

	if len(entries) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO ancora_chunks (id, document_id, ordinal, text, start_offset, end_offset, tag, section, filename, type, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::vector)
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		for _, entry := range entries {
			c := entry.Chunk
			if _, err := stmt.ExecContext(ctx, c.ID, documentID, c.Ordinal, c.Text,
				c.StartOffset, c.EndOffset, string(c.Tag), c.Section,
				entry.Filename, string(entry.Type), vectorToString(entry.Embedding)); err != nil {
				return fmt.Errorf("saving chunk %d: %w", c.Ordinal, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteDocument removes all entries for a document. Deleting an
// unknown document is not an error.
func (x *VectorIndex) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := x.db.ExecContext(ctx, "DELETE FROM ancora_chunks WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// Search finds the k most similar entries to the query vector. The
// filter applies in the WHERE clause, before the LIMIT truncates; ties
// break by insertion order via seq.
func (x *VectorIndex) Search(ctx context.Context, query []float32, k int, filter *domain.MetadataFilter) ([]driven.IndexHit, error) {
	if k <= 0 {
		return nil, nil
	}

	args := []any{vectorToString(query)}
	var conds []string
	if !filter.Empty() {
		if filter.Filename != "" {
			args = append(args, filter.Filename)
			conds = append(conds, fmt.Sprintf("filename = $%d", len(args)))
		}
		if filter.Type != "" {
			args = append(args, string(filter.Type))
			conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
		}
		if filter.Section != "" {
			args = append(args, filter.Section)
			conds = append(conds, fmt.Sprintf("LOWER(section) = LOWER($%d)", len(args)))
		}
	}

	q := `
		SELECT id, document_id, ordinal, text, start_offset, end_offset, tag, section, filename, type,
		       1 - (embedding <=> $1::vector) AS similarity
		FROM ancora_chunks
	`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, k)
	q += fmt.Sprintf(" ORDER BY embedding <=> $1::vector, seq LIMIT $%d", len(args))

	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []driven.IndexHit
	for rows.Next() {
		var hit driven.IndexHit
		var tag, docType string
		if err := rows.Scan(&hit.Chunk.ID, &hit.Chunk.DocumentID, &hit.Chunk.Ordinal,
			&hit.Chunk.Text, &hit.Chunk.StartOffset, &hit.Chunk.EndOffset,
			&tag, &hit.Chunk.Section, &hit.Filename, &docType, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		hit.Chunk.Tag = domain.ChunkTag(tag)
		hit.Type = domain.DocumentType(docType)
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return hits, nil
}

// Stats reports corpus-level counters.
func (x *VectorIndex) Stats(ctx context.Context) (*domain.IndexStats, error) {
	stats := &domain.IndexStats{}

	// OCTET_LENGTH counts bytes, matching Chunk.Size.
	row := x.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT document_id), COALESCE(SUM(OCTET_LENGTH(text)), 0)
		FROM ancora_chunks
	`)
	if err := row.Scan(&stats.ChunkCount, &stats.DocumentCount, &stats.TotalCharacters); err != nil {
		return nil, fmt.Errorf("scanning index stats: %w", err)
	}

	rows, err := x.db.QueryContext(ctx, "SELECT DISTINCT filename FROM ancora_chunks ORDER BY filename")
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		stats.Sources = append(stats.Sources, filename)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}

	model, err := x.EmbeddingModel(ctx)
	if err != nil {
		return nil, err
	}
	stats.EmbeddingModel = model

	return stats, nil
}

// EmbeddingModel returns the embedding model the index was built with,
// or empty string for a fresh index.
func (x *VectorIndex) EmbeddingModel(ctx context.Context) (string, error) {
	var model string
	row := x.db.QueryRowContext(ctx, "SELECT value FROM ancora_index_meta WHERE key = $1", metaEmbeddingModel)
	if err := row.Scan(&model); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("scanning embedding model: %w", err)
	}
	return model, nil
}

// SetEmbeddingModel records the embedding model used to build the index.
func (x *VectorIndex) SetEmbeddingModel(ctx context.Context, model string) error {
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO ancora_index_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, metaEmbeddingModel, model)
	if err != nil {
		return fmt.Errorf("saving embedding model: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (x *VectorIndex) Close() error {
	return x.db.Close()
}

// vectorToString converts a float32 slice to pgvector string format: [0.1,0.2,0.3].
func vectorToString(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = fmt.Sprintf("%g", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

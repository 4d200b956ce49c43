package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ancora-labs/ancora/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driven"
)

// metaEmbeddingModel is the index_meta key recording the embedding model
// the index was built with.
const metaEmbeddingModel = "embedding_model"

// Store is a unified SQLite-based storage that provides the document
// store, vector index and experiment store through wrapper types
// sharing one database connection.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the SQLite database at path and applies
// any pending migrations. If path is empty, defaults to
// ~/.ancora/ancora.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".ancora", "ancora.db")
	}

	// Ensure directory exists
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: path,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// VectorIndex returns a VectorIndex interface backed by this store.
func (s *Store) VectorIndex() driven.VectorIndex {
	return &vectorIndex{store: s}
}

// ExperimentStore returns an ExperimentStore interface backed by this store.
func (s *Store) ExperimentStore() driven.ExperimentStore {
	return &experimentStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// SaveDocument stores or updates a document. Filenames are unique: a
// save under an existing filename replaces that record wholesale, while
// re-ingests arriving under the same ID update in place.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, type, text, fingerprint, title, version, effective_date, department, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			type = excluded.type,
			text = excluded.text,
			fingerprint = excluded.fingerprint,
			title = excluded.title,
			version = excluded.version,
			effective_date = excluded.effective_date,
			department = excluded.department,
			ingested_at = excluded.ingested_at
		ON CONFLICT(filename) DO UPDATE SET
			id = excluded.id,
			type = excluded.type,
			text = excluded.text,
			fingerprint = excluded.fingerprint,
			title = excluded.title,
			version = excluded.version,
			effective_date = excluded.effective_date,
			department = excluded.department,
			ingested_at = excluded.ingested_at
	`, doc.ID, doc.Filename, string(doc.Type), doc.Text, doc.Fingerprint,
		doc.Title, doc.Version, doc.EffectiveDate, doc.Department, doc.IngestedAt)

	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, filename, type, text, fingerprint, title, version, effective_date, department, ingested_at
		FROM documents WHERE id = ?
	`, id)

	return scanDocument(row)
}

// GetDocumentByFilename retrieves a document by its filename.
func (s *documentStore) GetDocumentByFilename(ctx context.Context, filename string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, filename, type, text, fingerprint, title, version, effective_date, department, ingested_at
		FROM documents WHERE filename = ?
	`, filename)

	return scanDocument(row)
}

// ListDocuments returns all documents ordered by filename.
func (s *documentStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, filename, type, text, fingerprint, title, version, effective_date, department, ingested_at
		FROM documents ORDER BY filename
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

// DeleteDocument removes a document.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deleted rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ==================== Vector Index ====================

// vectorIndex implements driven.VectorIndex with brute-force cosine
// search over embeddings stored as little-endian float32 blobs.
type vectorIndex struct {
	store *Store
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// ReplaceDocument atomically replaces all entries for a document.
func (x *vectorIndex) ReplaceDocument(ctx context.Context, documentID string, entries []driven.IndexEntry) error {
	tx, err := x.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("clearing existing chunks: %w", err)
	}

	if len(entries) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, document_id, ordinal, text, start_offset, end_offset, tag, section, filename, type, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		for _, entry := range entries {
			c := entry.Chunk
			if _, err := stmt.ExecContext(ctx, c.ID, documentID, c.Ordinal, c.Text,
				c.StartOffset, c.EndOffset, string(c.Tag), c.Section,
				entry.Filename, string(entry.Type), float32SliceToBytes(entry.Embedding)); err != nil {
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
func (x *vectorIndex) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := x.store.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// Search finds the k most similar entries to the query vector. The
// filter applies before truncation; ties preserve insertion order.
func (x *vectorIndex) Search(ctx context.Context, query []float32, k int, filter *domain.MetadataFilter) ([]driven.IndexHit, error) {
	if k <= 0 {
		return nil, nil
	}

	q := `
		SELECT id, document_id, ordinal, text, start_offset, end_offset, tag, section, filename, type, embedding
		FROM chunks
	`
	var conds []string
	var args []any
	if !filter.Empty() {
		if filter.Filename != "" {
			conds = append(conds, "filename = ?")
			args = append(args, filter.Filename)
		}
		if filter.Type != "" {
			conds = append(conds, "type = ?")
			args = append(args, string(filter.Type))
		}
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	// Scanning in rowid order keeps equal scores in insertion order
	// after the stable sort.
	q += " ORDER BY rowid"

	rows, err := x.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []driven.IndexHit
	for rows.Next() {
		var hit driven.IndexHit
		var tag, docType string
		var embedding []byte
		if err := rows.Scan(&hit.Chunk.ID, &hit.Chunk.DocumentID, &hit.Chunk.Ordinal,
			&hit.Chunk.Text, &hit.Chunk.StartOffset, &hit.Chunk.EndOffset,
			&tag, &hit.Chunk.Section, &hit.Filename, &docType, &embedding); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		hit.Chunk.Tag = domain.ChunkTag(tag)
		hit.Type = domain.DocumentType(docType)

		// Section matching folds case in Go; SQLite's LOWER only
		// handles ASCII.
		if filter != nil && filter.Section != "" && !strings.EqualFold(hit.Chunk.Section, filter.Section) {
			continue
		}

		hit.Similarity = cosineSimilarity(query, bytesToFloat32Slice(embedding))
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Stats reports corpus-level counters. All counters come from the
// chunks table so that backends without a documents table agree.
func (x *vectorIndex) Stats(ctx context.Context) (*domain.IndexStats, error) {
	stats := &domain.IndexStats{}

	// LENGTH on a blob counts bytes, matching Chunk.Size.
	row := x.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT document_id), COALESCE(SUM(LENGTH(CAST(text AS BLOB))), 0)
		FROM chunks
	`)
	if err := row.Scan(&stats.ChunkCount, &stats.DocumentCount, &stats.TotalCharacters); err != nil {
		return nil, fmt.Errorf("scanning index stats: %w", err)
	}

	rows, err := x.store.db.QueryContext(ctx, "SELECT DISTINCT filename FROM chunks ORDER BY filename")
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
func (x *vectorIndex) EmbeddingModel(ctx context.Context) (string, error) {
	var model string
	row := x.store.db.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", metaEmbeddingModel)
	if err := row.Scan(&model); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("scanning embedding model: %w", err)
	}
	return model, nil
}

// SetEmbeddingModel records the embedding model used to build the index.
func (x *vectorIndex) SetEmbeddingModel(ctx context.Context, model string) error {
	_, err := x.store.db.ExecContext(ctx, `
		INSERT INTO index_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaEmbeddingModel, model)
	if err != nil {
		return fmt.Errorf("saving embedding model: %w", err)
	}
	return nil
}

// Close is a no-op; the owning Store closes the shared connection.
func (x *vectorIndex) Close() error {
	return nil
}

// ==================== Experiment Store ====================

// experimentStore implements driven.ExperimentStore.
type experimentStore struct {
	store *Store
}

var _ driven.ExperimentStore = (*experimentStore)(nil)

// SaveExperiment stores a single experiment result from a sweep.
func (s *experimentStore) SaveExperiment(ctx context.Context, result *domain.ExperimentResult) error {
	configJSON, err := json.Marshal(result.Config)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("marshalling metrics: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO experiments (id, config, metrics, run_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			config = excluded.config,
			metrics = excluded.metrics,
			run_at = excluded.run_at,
			duration_seconds = excluded.duration_seconds
	`, result.ID, string(configJSON), string(metricsJSON), result.RunAt, result.DurationSeconds)

	if err != nil {
		return fmt.Errorf("saving experiment: %w", err)
	}
	return nil
}

// ListExperiments returns the most recent experiments, newest first.
// A limit of 0 returns all recorded experiments.
func (s *experimentStore) ListExperiments(ctx context.Context, limit int) ([]domain.ExperimentResult, error) {
	q := `
		SELECT id, config, metrics, run_at, duration_seconds
		FROM experiments ORDER BY run_at DESC, rowid DESC
	`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying experiments: %w", err)
	}
	defer rows.Close()

	var results []domain.ExperimentResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		var result domain.ExperimentResult
		var configJSON, metricsJSON string
		if err := rows.Scan(&result.ID, &configJSON, &metricsJSON, &result.RunAt, &result.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scanning experiment: %w", err)
		}

		if err := json.Unmarshal([]byte(configJSON), &result.Config); err != nil {
			return nil, fmt.Errorf("unmarshalling config: %w", err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &result.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshalling metrics: %w", err)
		}

		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating experiments: %w", err)
	}

	return results, nil
}

// GetExperiment retrieves an experiment by ID.
func (s *experimentStore) GetExperiment(ctx context.Context, id string) (*domain.ExperimentResult, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, config, metrics, run_at, duration_seconds
		FROM experiments WHERE id = ?
	`, id)

	var result domain.ExperimentResult
	var configJSON, metricsJSON string
	err := row.Scan(&result.ID, &configJSON, &metricsJSON, &result.RunAt, &result.DurationSeconds)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: experiment %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying experiment %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(configJSON), &result.Config); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &result.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshalling metrics: %w", err)
	}
	return &result, nil
}

// ==================== Helpers ====================

// scanDocument scans a single document row.
func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	var docType string

	if err := row.Scan(&doc.ID, &doc.Filename, &docType, &doc.Text, &doc.Fingerprint,
		&doc.Title, &doc.Version, &doc.EffectiveDate, &doc.Department, &doc.IngestedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Type = domain.DocumentType(docType)
	return &doc, nil
}

// scanDocumentRows scans a document from *sql.Rows.
func scanDocumentRows(rows *sql.Rows) (*domain.Document, error) {
	var doc domain.Document
	var docType string

	if err := rows.Scan(&doc.ID, &doc.Filename, &docType, &doc.Text, &doc.Fingerprint,
		&doc.Title, &doc.Version, &doc.EffectiveDate, &doc.Department, &doc.IngestedAt); err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Type = domain.DocumentType(docType)
	return &doc, nil
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

package driving

import (
	"context"
	"time"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

// IngestService loads, segments, embeds, and indexes policy documents.
type IngestService interface {
	// IngestPath ingests every file matching the pattern. Files are
	// processed concurrently; one file failing does not abort the others.
	// Unchanged files (same fingerprint) are skipped unless opts.Force.
	IngestPath(ctx context.Context, pattern string, opts IngestOptions) (*IngestReport, error)

	// Delete removes a document and its index entries by document ID.
	Delete(ctx context.Context, documentID string) error

	// DeleteByFilename removes a document and its index entries by filename.
	// The file watcher uses this when a watched file disappears.
	DeleteByFilename(ctx context.Context, filename string) error
}

// IngestOptions configures an ingest pass.
type IngestOptions struct {
	// Force re-ingests files even when their fingerprint is unchanged.
	Force bool

	// ChunkSize overrides the configured segment size when > 0.
	ChunkSize int

	// ChunkOverlap overrides the configured segment overlap when > 0.
	ChunkOverlap int

	// Progress, when non-nil, is called after each file completes.
	Progress func(done, total int)
}

// IngestReport summarises an ingest pass over one or more files.
type IngestReport struct {
	// Ingested is the number of files newly indexed or re-indexed.
	Ingested int

	// Skipped is the number of unchanged files left alone.
	Skipped int

	// Failed is the number of files that errored.
	Failed int

	// Chunks is the total number of chunks written.
	Chunks int

	// Documents are the successfully ingested documents.
	Documents []domain.Document

	// Failures describe each file that could not be ingested.
	Failures []IngestFailure

	// Elapsed is the wall time for the whole pass.
	Elapsed time.Duration
}

// IngestFailure records one file that failed to ingest.
type IngestFailure struct {
	// Path is the file that failed.
	Path string

	// Reason is the human-readable cause.
	Reason string
}

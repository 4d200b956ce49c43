package cli

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ancora-labs/ancora/internal/adapters/driven/watch"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
)

var (
	ingestForce        bool
	ingestWatch        bool
	ingestChunkSize    int
	ingestChunkOverlap int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path|pattern]",
	Short: "Index policy documents",
	Long: `Loads, segments, embeds, and indexes the matching documents.
Accepts a file, a directory, or a glob pattern ("policies/**/*.md").
Unchanged files are skipped unless --force is given.

With --watch, ancora keeps running after the initial pass and re-indexes
files as they change on disk; deleting a watched file removes it from
the index.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "re-index files even when their content is unchanged")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep watching the path and re-index on changes")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "segment size in characters (0 = configured default)")
	ingestCmd.Flags().IntVar(&ingestChunkOverlap, "chunk-overlap", 0, "segment overlap in characters (0 = configured default)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	pattern := args[0]

	if ingestService == nil {
		return errors.New("ingest service not configured; run 'ancora config validate' to diagnose")
	}

	opts := driving.IngestOptions{
		Force:        ingestForce,
		ChunkSize:    ingestChunkSize,
		ChunkOverlap: ingestChunkOverlap,
		Progress:     newProgress("Indexing", cmd.ErrOrStderr()),
	}

	report, err := ingestService.IngestPath(cmd.Context(), pattern, opts)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	outputIngestReport(cmd, report)

	if !ingestWatch {
		return nil
	}

	watcher, err := watch.New(ingestService, pattern)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck // shutting down

	cmd.Printf("\nWatching %s for changes. Press Ctrl-C to stop.\n", watcher.Root())
	return watcher.Run(cmd.Context())
}

func outputIngestReport(cmd *cobra.Command, report *driving.IngestReport) {
	cmd.Printf("Ingested %d documents (%d chunks) in %.1fs\n",
		report.Ingested, report.Chunks, report.Elapsed.Seconds())
	if report.Skipped > 0 {
		cmd.Printf("Skipped %d unchanged\n", report.Skipped)
	}
	if report.Failed > 0 {
		cmd.Printf("Failed %d:\n", report.Failed)
		for _, f := range report.Failures {
			cmd.Printf("  %s: %s\n", f.Path, f.Reason)
		}
	}
}

// newProgress returns a progress callback rendering a terminal bar on w.
// The bar is created on the first call, once the total is known.
func newProgress(description string, w io.Writer) func(done, total int) {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription(description),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(w)
				}),
			)
		}
		bar.Set(done) //nolint:errcheck // terminal rendering only
	}
}

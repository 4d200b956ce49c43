package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

var (
	searchLimit     int
	searchThreshold float64
	searchDocument  string
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Retrieve matching policy passages",
	Long: `Runs retrieval only: embeds the query and prints the most similar
indexed passages with their scores. Shows what 'ask' would ground an
answer in, without calling the completion service.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of passages (0 = configured default)")
	searchCmd.Flags().Float64VarP(&searchThreshold, "threshold", "t", -1, "minimum similarity score (-1 = configured default, 0 = no cutoff)")
	searchCmd.Flags().StringVar(&searchDocument, "document", "", "restrict to a single document filename")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if queryService == nil {
		return errors.New("query service not configured; run 'ancora config validate' to diagnose")
	}

	opts := domain.RetrieveOptions{
		K:         searchLimit,
		Threshold: searchThreshold,
	}
	if searchDocument != "" {
		opts.Filter = &domain.MetadataFilter{Filename: searchDocument}
	}

	items, err := queryService.Search(cmd.Context(), query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, items)
	}
	return outputSearchTable(cmd, items)
}

func outputSearchJSON(cmd *cobra.Command, items []domain.RetrievedItem) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, items []domain.RetrievedItem) error {
	if len(items) == 0 {
		cmd.Println("No passages found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for _, item := range items {
		// Format: [rank] document - section (score)
		cmd.Printf("  [%d] %s", item.Rank, item.Document)
		if item.Chunk.Section != "" {
			cmd.Printf(" - %s", item.Chunk.Section)
		}
		cmd.Printf(" (%.2f)\n", item.EffectiveScore())
		cmd.Printf("      %s\n", excerpt(item.Chunk.Text, 120))
		cmd.Println()
	}

	return nil
}

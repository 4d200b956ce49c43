package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Long:  `Shows document, chunk, and character counts for the current index.`,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	stats, err := documentService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get index statistics: %w", err)
	}

	if statsJSON {
		output, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal statistics: %w", err)
		}
		cmd.Println(string(output))
		return nil
	}

	cmd.Println("Index statistics:")
	cmd.Println()
	cmd.Printf("  Documents:       %d\n", stats.DocumentCount)
	cmd.Printf("  Chunks:          %d\n", stats.ChunkCount)
	cmd.Printf("  Characters:      %d\n", stats.TotalCharacters)
	if stats.EmbeddingModel != "" {
		cmd.Printf("  Embedding model: %s\n", stats.EmbeddingModel)
	}

	if len(stats.Sources) > 0 {
		cmd.Println()
		cmd.Println("  Sources:")
		for _, source := range stats.Sources {
			cmd.Printf("    %s\n", source)
		}
	}

	return nil
}

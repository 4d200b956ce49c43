package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
)

var (
	askTopK        int
	askThreshold   float64
	askDocument    string
	askJSON        bool
	askShowContext bool
	askDiversify   bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]...",
	Short: "Ask a question about the indexed policies",
	Long: `Answers a question using only the indexed policy documents.
Every answer carries citations and a confidence score; figures that do
not appear in the retrieved passages are rejected. When the corpus has
no relevant passages, ancora answers with a fixed refusal instead of
guessing.

With several questions, they are answered concurrently and printed in
the order given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of passages to retrieve (0 = configured default)")
	askCmd.Flags().Float64VarP(&askThreshold, "threshold", "t", -1, "minimum similarity score (-1 = configured default, 0 = no cutoff)")
	askCmd.Flags().StringVar(&askDocument, "document", "", "restrict retrieval to a single document filename")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the result as JSON")
	askCmd.Flags().BoolVar(&askShowContext, "show-context", false, "print the retrieved passages after the answer")
	askCmd.Flags().BoolVar(&askDiversify, "diversify", false, "spread retrieval across documents instead of taking the top matches")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured; run 'ancora config validate' to diagnose")
	}

	opts := driving.AskOptions{
		K:         askTopK,
		Threshold: askThreshold,
		Diversify: askDiversify,
	}
	if askDocument != "" {
		opts.Filter = &domain.MetadataFilter{Filename: askDocument}
	}

	if len(args) == 1 {
		result, err := queryService.Ask(cmd.Context(), args[0], opts)
		if err != nil {
			return fmt.Errorf("ask failed: %w", err)
		}
		if askJSON {
			return outputAskJSON(cmd, result)
		}
		return outputAskText(cmd, result)
	}

	items, err := queryService.AskBatch(cmd.Context(), args, opts)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	var failed int
	for i, item := range items {
		if i > 0 {
			cmd.Println(strings.Repeat("-", 60))
		}
		cmd.Printf("Q: %s\n", item.Question)
		if item.Err != nil {
			failed++
			cmd.Printf("Error: %v\n", item.Err)
			continue
		}
		if askJSON {
			if err := outputAskJSON(cmd, item.Result); err != nil {
				return err
			}
			continue
		}
		if err := outputAskText(cmd, item.Result); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d questions failed", failed, len(items))
	}
	return nil
}

func outputAskJSON(cmd *cobra.Command, result *driving.AskResult) error {
	data, err := json.MarshalIndent(result.Query, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputAskText(cmd *cobra.Command, result *driving.AskResult) error {
	q := result.Query

	cmd.Println(q.Answer)
	cmd.Println()

	if q.Outcome == domain.OutcomeRefused {
		cmd.Printf("Retrieved %d passages, none supported an answer.\n", q.RetrievedCount)
		return nil
	}

	cmd.Printf("Confidence: %d%%  (answered in %.1fs from %d passages)\n",
		q.Confidence, q.Elapsed.Seconds(), q.RetrievedCount)

	if len(q.Citations) > 0 {
		cmd.Println("\nSources:")
		for i, c := range q.Citations {
			line := fmt.Sprintf("  [%d] %s", i+1, c.Document)
			if c.Section != "" {
				line += " - " + c.Section
			}
			cmd.Printf("%s (%.2f)\n", line, c.Score)
		}
	}

	if askShowContext {
		outputRetrievedContext(cmd, result.Retrieved)
	}
	return nil
}

// outputRetrievedContext prints the passages the answer was grounded in,
// in rank order, with a one-line excerpt each.
func outputRetrievedContext(cmd *cobra.Command, items []domain.RetrievedItem) {
	if len(items) == 0 {
		return
	}

	cmd.Println("\nRetrieved context:")
	for _, item := range items {
		cmd.Printf("  %d. %s", item.Rank, item.Document)
		if item.Chunk.Section != "" {
			cmd.Printf(" - %s", item.Chunk.Section)
		}
		cmd.Printf(" (%.2f)\n", item.EffectiveScore())
		cmd.Printf("     %s\n", excerpt(item.Chunk.Text, 120))
	}
}

// excerpt collapses whitespace and truncates to at most n characters.
func excerpt(text string, n int) string {
	flat := strings.Join(strings.Fields(text), " ")
	if len(flat) <= n {
		return flat
	}
	return flat[:n] + "..."
}

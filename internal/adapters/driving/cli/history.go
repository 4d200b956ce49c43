package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

var (
	historyQueryLimit int
	historyEvalLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded queries and evaluation runs",
	RunE:  runHistoryQuery,
}

var historyQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Show recent queries",
	RunE:  runHistoryQuery,
}

var historyEvalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Show recent evaluation runs",
	RunE:  runHistoryEval,
}

func init() {
	historyQueryCmd.Flags().IntVarP(&historyQueryLimit, "limit", "n", 10, "Maximum queries to show (0 = all)")
	historyEvalCmd.Flags().IntVarP(&historyEvalLimit, "limit", "n", 10, "Maximum runs to show (0 = all)")
	historyCmd.AddCommand(historyQueryCmd)
	historyCmd.AddCommand(historyEvalCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryQuery(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errors.New("query service not configured; run 'ancora config validate' to diagnose")
	}

	queries, err := queryService.History(cmd.Context(), historyQueryLimit)
	if err != nil {
		return fmt.Errorf("failed to load query history: %w", err)
	}

	if len(queries) == 0 {
		cmd.Println("No queries recorded.")
		return nil
	}

	cmd.Println("Recent queries:")
	cmd.Println()
	for i := range queries {
		q := &queries[i]
		cmd.Printf("  %s  %s\n", q.Timestamp.Format("2006-01-02 15:04"), q.Question)
		if q.Outcome == domain.OutcomeRefused {
			cmd.Printf("    refused (%d retrieved)\n", q.RetrievedCount)
			continue
		}
		cmd.Printf("    %s\n", excerpt(q.Answer, 100))
		cmd.Printf("    confidence %d%%, %d citations, %.1fs\n",
			q.Confidence, len(q.Citations), q.Elapsed.Seconds())
	}
	return nil
}

func runHistoryEval(cmd *cobra.Command, _ []string) error {
	if evaluationService == nil {
		return errors.New("evaluation service not configured; run 'ancora config validate' to diagnose")
	}

	runs, err := evaluationService.ListRuns(cmd.Context(), historyEvalLimit)
	if err != nil {
		return fmt.Errorf("failed to load evaluation history: %w", err)
	}

	if len(runs) == 0 {
		cmd.Println("No evaluation runs recorded.")
		return nil
	}

	cmd.Println("Recent evaluation runs:")
	cmd.Println()
	for i := range runs {
		r := &runs[i]
		cmd.Printf("  %s  %s (%d cases, %d failed)\n",
			r.RunAt.Format("2006-01-02 15:04"), r.SetName, len(r.Results), len(r.FailedCases))
		cmd.Printf("    accuracy %.1f%%  sources %.1f%%  mrr %.2f\n",
			r.Metrics.AnswerAccuracy*100, r.Metrics.SourceAccuracy*100, r.Metrics.MRR)
	}
	return nil
}

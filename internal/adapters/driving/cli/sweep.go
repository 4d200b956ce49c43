package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
)

var (
	sweepValues  []int
	sweepSet     string
	sweepOverlap int
	sweepLimit   int
	sweepSample  int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sweep retrieval parameters",
	Long: `Evaluates a case set once per candidate parameter value and reports
which value scores best.

Chunk-size sweeps re-segment and re-embed the corpus into a scratch
index per value; the live index is never touched. Top-K sweeps only
re-query.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var sweepChunkSizeCmd = &cobra.Command{
	Use:   "chunk-size",
	Short: "Sweep the segmenter chunk size",
	RunE:  runSweepChunkSize,
}

var sweepTopKCmd = &cobra.Command{
	Use:   "top-k",
	Short: "Sweep the retrieval K",
	RunE:  runSweepTopK,
}

var sweepListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded experiments",
	RunE:  runSweepList,
}

var sweepCompareCmd = &cobra.Command{
	Use:   "compare [experiment-id]...",
	Short: "Compare recorded experiments",
	Long: `Loads the named experiments and ranks them. The first ID is the
baseline; the improvement figures are the best experiment relative to
it. Use 'ancora sweep list' to find experiment IDs.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSweepCompare,
}

func init() {
	sweepCmd.PersistentFlags().IntSliceVar(&sweepValues, "values", nil, "Candidate values (default: the standard grid)")
	sweepCmd.PersistentFlags().StringVar(&sweepSet, "set", "builtin", "Case set to evaluate per value")
	sweepCmd.PersistentFlags().IntVar(&sweepSample, "sample", 0, "Evaluate only the first N cases per value (0 = all)")
	sweepChunkSizeCmd.Flags().IntVar(&sweepOverlap, "overlap", 0, "Pin the chunk overlap (0 = 20% of each size)")
	sweepListCmd.Flags().IntVarP(&sweepLimit, "limit", "n", 10, "Maximum experiments to show (0 = all)")
	sweepCmd.AddCommand(sweepChunkSizeCmd)
	sweepCmd.AddCommand(sweepTopKCmd)
	sweepCmd.AddCommand(sweepListCmd)
	sweepCmd.AddCommand(sweepCompareCmd)
	rootCmd.AddCommand(sweepCmd)
}

func runSweepChunkSize(cmd *cobra.Command, _ []string) error {
	return runSweep(cmd, domain.SweepChunkSize)
}

func runSweepTopK(cmd *cobra.Command, _ []string) error {
	return runSweep(cmd, domain.SweepTopK)
}

func runSweep(cmd *cobra.Command, param domain.SweepParameter) error {
	if experimentService == nil {
		return errors.New("experiment service not configured; run 'ancora config validate' to diagnose")
	}

	opts := driving.SweepOptions{
		Overlap:    sweepOverlap,
		SampleSize: sweepSample,
		Progress:   newProgress("Sweeping", cmd.ErrOrStderr()),
	}

	report, err := experimentService.Sweep(cmd.Context(), sweepSet, param, sweepValues, opts)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	outputSweepReport(cmd, report)
	return nil
}

func runSweepList(cmd *cobra.Command, _ []string) error {
	if experimentService == nil {
		return errors.New("experiment service not configured; run 'ancora config validate' to diagnose")
	}

	experiments, err := experimentService.ListExperiments(cmd.Context(), sweepLimit)
	if err != nil {
		return fmt.Errorf("failed to list experiments: %w", err)
	}

	if len(experiments) == 0 {
		cmd.Println("No experiments recorded. Run 'ancora sweep chunk-size' or 'ancora sweep top-k' first.")
		return nil
	}

	cmd.Println("Recorded experiments:")
	cmd.Println()
	for i := range experiments {
		e := &experiments[i]
		cmd.Printf("  %s  %s  %s\n", e.ID, e.RunAt.Format("2006-01-02 15:04"), e.Config.Name)
		cmd.Printf("    accuracy %.1f%%  mrr %.2f  avg %.0f ms  (%.0fs)\n",
			e.Metrics.AnswerAccuracy*100, e.Metrics.MRR, e.Metrics.AvgResponseTimeMS, e.DurationSeconds)
	}
	return nil
}

func runSweepCompare(cmd *cobra.Command, args []string) error {
	if experimentService == nil {
		return errors.New("experiment service not configured; run 'ancora config validate' to diagnose")
	}

	comparison, err := experimentService.Compare(cmd.Context(), args)
	if err != nil {
		return fmt.Errorf("compare failed: %w", err)
	}

	cmd.Printf("Comparing %d experiments (baseline: %s)\n\n", len(comparison.Results), comparison.Baseline.Config.Name)

	cmd.Printf("  %-10s  %-16s  %9s  %5s  %8s\n", "id", "name", "accuracy", "mrr", "latency")
	for i := range comparison.Results {
		r := &comparison.Results[i]
		marker := " "
		if r.ID == comparison.Best.ID {
			marker = "*"
		}
		cmd.Printf("%s %-10s  %-16s  %8.1f%%  %5.2f  %5.0f ms\n",
			marker, r.ID, r.Config.Name,
			r.Metrics.AnswerAccuracy*100, r.Metrics.MRR, r.Metrics.AvgResponseTimeMS)
	}

	cmd.Println()
	cmd.Printf("Best: %s  (%+.1f%% accuracy, %+.0f ms vs baseline)\n",
		comparison.Best.Config.Name,
		comparison.AccuracyImprovement*100, comparison.ResponseTimeDeltaMS)
	return nil
}

func outputSweepReport(cmd *cobra.Command, report *domain.SweepReport) {
	cmd.Printf("Sweep: %s over %v\n\n", report.Parameter, report.Values)

	// Format: value, answer accuracy, source accuracy, MRR, avg latency.
	cmd.Printf("  %8s  %9s  %8s  %5s  %8s\n", "value", "accuracy", "sources", "mrr", "latency")
	for i := range report.Results {
		r := &report.Results[i]
		value := valueFor(report.Parameter, &r.Config)
		marker := " "
		if value == report.BestValue {
			marker = "*"
		}
		cmd.Printf("%s %8d  %8.1f%%  %7.1f%%  %5.2f  %5.0f ms\n",
			marker, value,
			r.Metrics.AnswerAccuracy*100, r.Metrics.SourceAccuracy*100,
			r.Metrics.MRR, r.Metrics.AvgResponseTimeMS)
	}

	cmd.Println()
	cmd.Printf("Best %s: %d (%.1f%% answer accuracy)\n", report.Parameter, report.BestValue, report.BestAccuracy*100)
}

func valueFor(param domain.SweepParameter, config *domain.ExperimentConfig) int {
	if param == domain.SweepChunkSize {
		return config.ChunkSize
	}
	return config.TopK
}

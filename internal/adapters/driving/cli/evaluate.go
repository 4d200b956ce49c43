package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ancora-labs/ancora/internal/core/domain"
	"github.com/ancora-labs/ancora/internal/core/ports/driving"
)

var (
	evaluateJSON        bool
	evaluateReport      string
	evaluateConcurrency int
	evaluateStrategy    string
	evaluateSample      int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [set-name]",
	Short: "Run an evaluation case set",
	Long: `Runs every case in the named set against the current index and scores
the answers. Defaults to the built-in set when no name is given.

Case failures are recorded and categorised; the run always completes
unless interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvaluate,
}

var evaluateSetsCmd = &cobra.Command{
	Use:   "sets",
	Short: "List available case sets",
	RunE:  runEvaluateSets,
}

func init() {
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "Output the full run as JSON")
	evaluateCmd.Flags().StringVar(&evaluateReport, "report", "", "Write a per-case text report to the given path")
	evaluateCmd.Flags().IntVarP(&evaluateConcurrency, "concurrency", "c", 0, "Parallel case executions (0 = configured default)")
	evaluateCmd.Flags().StringVar(&evaluateStrategy, "strategy", "", "Answer matching strategy: exact, numeric or semantic (default semantic)")
	evaluateCmd.Flags().IntVar(&evaluateSample, "sample", 0, "Run only the first N cases of the set (0 = all)")
	evaluateCmd.AddCommand(evaluateSetsCmd)
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	if evaluationService == nil {
		return errors.New("evaluation service not configured; run 'ancora config validate' to diagnose")
	}

	setName := "builtin"
	if len(args) == 1 {
		setName = args[0]
	}

	opts := driving.EvaluationOptions{
		Concurrency: evaluateConcurrency,
		Strategy:    domain.MatchStrategy(evaluateStrategy),
		SampleSize:  evaluateSample,
	}
	if !evaluateJSON {
		opts.Progress = newProgress("Evaluating", cmd.ErrOrStderr())
	}

	run, err := evaluationService.RunSet(cmd.Context(), setName, opts)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if evaluateReport != "" {
		if err := writeEvaluationReport(evaluateReport, run); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		cmd.Printf("Report written to %s\n", evaluateReport)
	}

	if evaluateJSON {
		return outputEvaluationJSON(cmd, run)
	}
	outputEvaluationSummary(cmd, run)
	return nil
}

func runEvaluateSets(cmd *cobra.Command, _ []string) error {
	if evaluationService == nil {
		return errors.New("evaluation service not configured; run 'ancora config validate' to diagnose")
	}

	sets, err := evaluationService.ListSets(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list case sets: %w", err)
	}

	if len(sets) == 0 {
		cmd.Println("No case sets found.")
		return nil
	}

	cmd.Println("Available case sets:")
	for _, name := range sets {
		cmd.Printf("  %s\n", name)
	}
	return nil
}

func outputEvaluationJSON(cmd *cobra.Command, run *domain.EvaluationRun) error {
	output, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	cmd.Println(string(output))
	return nil
}

func outputEvaluationSummary(cmd *cobra.Command, run *domain.EvaluationRun) {
	m := run.Metrics

	cmd.Printf("Evaluation: %s\n\n", run.SetName)
	cmd.Printf("  Cases:              %d (%d failed)\n", len(run.Results), len(run.FailedCases))
	cmd.Printf("  Answer accuracy:    %.1f%%\n", m.AnswerAccuracy*100)
	cmd.Printf("  Source accuracy:    %.1f%%\n", m.SourceAccuracy*100)
	cmd.Printf("  Hallucination rate: %.1f%%\n", m.HallucinationRate*100)
	cmd.Printf("  Citation coverage:  %.1f%%\n", m.CitationCoverage*100)
	cmd.Printf("  Precision@K:        %.2f\n", m.PrecisionAtK)
	cmd.Printf("  Recall@K:           %.2f\n", m.RecallAtK)
	cmd.Printf("  MRR:                %.2f\n", m.MRR)
	cmd.Printf("  Avg confidence:     %.0f%%\n", m.AvgConfidence)
	cmd.Printf("  Avg response time:  %.0f ms\n", m.AvgResponseTimeMS)

	if len(run.FailedCases) == 0 {
		return
	}

	cmd.Println()
	cmd.Println("Failed cases:")
	for i := range run.Results {
		r := &run.Results[i]
		if !r.Failed {
			continue
		}
		cmd.Printf("  %s  [%s]  %s\n", r.CaseID, r.Category, r.Question)
		if r.Err != "" {
			cmd.Printf("          %s\n", r.Err)
		}
	}

	if len(run.ErrorCategories) > 0 {
		categories := make([]string, 0, len(run.ErrorCategories))
		for category := range run.ErrorCategories {
			categories = append(categories, string(category))
		}
		sort.Strings(categories)

		cmd.Println()
		cmd.Println("Failures by category:")
		for _, category := range categories {
			cmd.Printf("  %s: %d\n", category, run.ErrorCategories[domain.ErrorCategory(category)])
		}
	}
}

// writeEvaluationReport renders a per-case text report. The console
// summary stays aggregate; the report is the place to read individual
// answers.
func writeEvaluationReport(path string, run *domain.EvaluationRun) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Evaluation report: %s\n", run.SetName)
	fmt.Fprintf(&b, "Run:  %s\n", run.ID)
	fmt.Fprintf(&b, "Date: %s\n\n", run.RunAt.Format("2006-01-02 15:04:05"))

	m := run.Metrics
	fmt.Fprintf(&b, "Answer accuracy:    %.1f%%\n", m.AnswerAccuracy*100)
	fmt.Fprintf(&b, "Source accuracy:    %.1f%%\n", m.SourceAccuracy*100)
	fmt.Fprintf(&b, "Hallucination rate: %.1f%%\n", m.HallucinationRate*100)
	fmt.Fprintf(&b, "Citation coverage:  %.1f%%\n", m.CitationCoverage*100)
	fmt.Fprintf(&b, "Precision@K:        %.2f\n", m.PrecisionAtK)
	fmt.Fprintf(&b, "Recall@K:           %.2f\n", m.RecallAtK)
	fmt.Fprintf(&b, "MRR:                %.2f\n", m.MRR)
	fmt.Fprintf(&b, "Avg confidence:     %.0f%%\n", m.AvgConfidence)
	fmt.Fprintf(&b, "Avg response time:  %.0f ms\n\n", m.AvgResponseTimeMS)

	for i := range run.Results {
		r := &run.Results[i]
		status := "PASS"
		if r.Failed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%s  %s  %s\n", status, r.CaseID, r.Question)
		if r.Answer != "" {
			fmt.Fprintf(&b, "      answer:  %s\n", r.Answer)
		}
		if len(r.CitedSources) > 0 {
			fmt.Fprintf(&b, "      sources: %s\n", strings.Join(r.CitedSources, ", "))
		}
		if r.Failed {
			fmt.Fprintf(&b, "      failure: [%s] %s\n", r.Category, r.Err)
		}
		b.WriteString("\n")
	}

	return os.WriteFile(path, []byte(b.String()), 0600)
}

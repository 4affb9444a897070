package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
	"github.com/joseph-ayodele/packet-underwriter/internal/export"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <case-id>",
	Short: "Evaluate one case and print its report",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluate,
}

func init() {
	evaluateCmd.Flags().String("xlsx", "", "also write the report workbook to this path")
	evaluateCmd.Flags().Bool("json", false, "print the full report as JSON instead of a summary")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.evaluator.Evaluate(ctx, args[0])
	if err != nil {
		return err
	}

	exp := export.NewService(a.logger)
	if path, _ := cmd.Flags().GetString("xlsx"); path != "" {
		b, err := exp.ReportXLSX(report)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, b, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		a.logger.Info("report workbook written", "path", path)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		b, err := exp.ReportJSON(report)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	}
	printSummary(cmd, report)
	return nil
}

func printSummary(cmd *cobra.Command, r entity.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "case %s  run %s  status %s  cost %.4f\n", r.CaseID, r.RunID, r.Status, r.CostEstimate)
	for _, s := range r.Stages {
		fmt.Fprintf(out, "  stage %-28s %-10s attempts=%d\n", s.ID, s.Status, s.Attempts)
	}
	if r.Reconciliation != nil {
		for _, e := range r.Reconciliation.Entries {
			fmt.Fprintf(out, "  %-22s %-10s expected=%s found=%s %s\n", e.Field, e.Status, e.Expected, e.Found, e.MatchStrategy)
		}
	}
	if r.Score != nil {
		fmt.Fprintf(out, "  score %.2f/%.2f  %s  complete=%t\n", r.Score.TotalScore, r.Score.MaxScore, r.Score.Recommendation, r.Score.Complete)
	}
	for _, a := range r.Annotations {
		fmt.Fprintf(out, "  note: %s\n", a)
	}
}

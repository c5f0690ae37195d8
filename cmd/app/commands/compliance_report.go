package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	complianceDomain "github.com/allisson/keyvault/internal/compliance/domain"
)

// ComplianceEvaluator scores compliance frameworks.
type ComplianceEvaluator interface {
	Evaluate(ctx context.Context) (*complianceDomain.Summary, error)
	EvaluateFramework(ctx context.Context, framework string) (*complianceDomain.Report, error)
}

// RunComplianceReport scores one framework, or all of them when framework is empty.
func RunComplianceReport(
	ctx context.Context,
	evaluator ComplianceEvaluator,
	logger *slog.Logger,
	writer io.Writer,
	framework string,
	format string,
) error {
	var summary *complianceDomain.Summary
	if framework == "" {
		all, err := evaluator.Evaluate(ctx)
		if err != nil {
			return fmt.Errorf("failed to evaluate compliance: %w", err)
		}
		summary = all
	} else {
		report, err := evaluator.EvaluateFramework(ctx, framework)
		if err != nil {
			return fmt.Errorf("failed to evaluate %s: %w", framework, err)
		}
		summary = &complianceDomain.Summary{
			Reports:     []complianceDomain.Report{*report},
			Percentage:  report.Percentage,
			Grade:       report.Grade,
			GeneratedAt: report.GeneratedAt,
		}
	}

	logger.Info("compliance evaluated",
		slog.Float64("percentage", summary.Percentage),
		slog.String("grade", summary.Grade),
	)

	if format == "json" {
		return writeJSON(writer, summary)
	}

	for _, r := range summary.Reports {
		_, _ = fmt.Fprintf(writer, "%s: %d/%d (%.1f%%) grade %s\n", r.Framework, r.Score, r.MaxScore, r.Percentage, r.Grade)
		for _, c := range r.Controls {
			_, _ = fmt.Fprintf(writer, "  [%-7s] %-10s %s (%d/%d)\n", c.Status, c.ID, c.Name, c.Score, c.MaxScore)
		}
		_, _ = fmt.Fprintln(writer)
	}
	_, _ = fmt.Fprintf(writer, "Overall: %.1f%% grade %s\n", summary.Percentage, summary.Grade)
	return nil
}

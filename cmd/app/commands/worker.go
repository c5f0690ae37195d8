package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/keyvault/internal/worker"
)

// Sweeper runs one maintenance pass.
type Sweeper interface {
	RunOnce(ctx context.Context) (*worker.SweepReport, error)
}

// RunSweep runs a single maintenance pass and prints what it did.
func RunSweep(ctx context.Context, sweeper Sweeper, logger *slog.Logger, writer io.Writer, format string) error {
	report, err := sweeper.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("maintenance sweep failed: %w", err)
	}

	logger.Info("maintenance sweep completed",
		slog.Int("leases_revoked", report.LeasesRevoked),
		slog.Int("credentials_revoked", report.CredentialsRevoked),
		slog.Int("tokens_revoked", report.TokensRevoked),
		slog.Int("sessions_revoked", report.SessionsRevoked),
		slog.Int("rotations_succeeded", report.Rotations.Succeeded),
	)

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"leases_revoked":      report.LeasesRevoked,
			"credentials_revoked": report.CredentialsRevoked,
			"tokens_revoked":      report.TokensRevoked,
			"sessions_revoked":    report.SessionsRevoked,
			"windows_pruned":      report.WindowsPruned,
			"rotations": map[string]int{
				"total":     report.Rotations.Total,
				"succeeded": report.Rotations.Succeeded,
				"failed":    report.Rotations.Failed,
				"skipped":   report.Rotations.Skipped,
			},
		})
	}

	_, _ = fmt.Fprintf(writer, "Leases revoked:       %d\n", report.LeasesRevoked)
	_, _ = fmt.Fprintf(writer, "Credentials revoked:  %d\n", report.CredentialsRevoked)
	_, _ = fmt.Fprintf(writer, "Tokens revoked:       %d\n", report.TokensRevoked)
	_, _ = fmt.Fprintf(writer, "Sessions revoked:     %d\n", report.SessionsRevoked)
	_, _ = fmt.Fprintf(writer, "Threat windows pruned: %d\n", report.WindowsPruned)
	_, _ = fmt.Fprintf(writer, "Rotations:            %d succeeded, %d failed, %d skipped\n",
		report.Rotations.Succeeded, report.Rotations.Failed, report.Rotations.Skipped)
	return nil
}

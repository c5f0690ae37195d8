package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
)

// AuditVerifier checks audit log signatures.
type AuditVerifier interface {
	Verify(ctx context.Context, filter auditDomain.Filter) (*auditDomain.VerificationReport, error)
}

// RunVerifyAuditLogs verifies the HMAC signatures of audit logs written since sinceDate.
// An empty sinceDate verifies the whole trail. Returns an error when any signature fails.
func RunVerifyAuditLogs(
	ctx context.Context,
	verifier AuditVerifier,
	logger *slog.Logger,
	writer io.Writer,
	sinceDate string,
	format string,
) error {
	filter := auditDomain.Filter{}
	if sinceDate != "" {
		since, err := parseDate(sinceDate)
		if err != nil {
			return fmt.Errorf("invalid since date: %w", err)
		}
		filter.Since = &since
	}

	logger.Info("verifying audit logs", slog.Any("since", filter.Since))

	report, err := verifier.Verify(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to verify audit logs: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, map[string]any{
			"checked":     report.Checked,
			"valid":       report.Valid,
			"invalid":     report.Invalid,
			"unsigned":    report.Unsigned,
			"invalid_ids": report.InvalidIDs,
			"passed":      report.Invalid == 0,
		}); err != nil {
			return fmt.Errorf("failed to output JSON: %w", err)
		}
	} else {
		outputVerifyText(writer, report, filter.Since)
	}

	logger.Info("verification completed",
		slog.Int("checked", report.Checked),
		slog.Int("valid", report.Valid),
		slog.Int("invalid", report.Invalid),
		slog.Int("unsigned", report.Unsigned),
	)

	if report.Invalid > 0 {
		return fmt.Errorf("integrity check failed: %d invalid signature(s)", report.Invalid)
	}
	return nil
}

func outputVerifyText(writer io.Writer, report *auditDomain.VerificationReport, since *time.Time) {
	_, _ = fmt.Fprintf(writer, "Audit Log Integrity Verification\n")
	_, _ = fmt.Fprintf(writer, "=================================\n\n")
	_, _ = fmt.Fprintf(writer, "Since:     %s\n\n", formatTime(since))

	_, _ = fmt.Fprintf(writer, "Checked:   %d\n", report.Checked)
	_, _ = fmt.Fprintf(writer, "Unsigned:  %d\n", report.Unsigned)
	_, _ = fmt.Fprintf(writer, "Valid:     %d\n", report.Valid)
	_, _ = fmt.Fprintf(writer, "Invalid:   %d\n\n", report.Invalid)

	switch {
	case report.Invalid > 0:
		_, _ = fmt.Fprintf(writer, "WARNING: %d log(s) failed integrity check!\n\n", report.Invalid)
		_, _ = fmt.Fprintf(writer, "Invalid Log IDs:\n")
		for _, id := range report.InvalidIDs {
			_, _ = fmt.Fprintf(writer, "  - %s\n", id)
		}
		_, _ = fmt.Fprintf(writer, "\nStatus: FAILED\n")
	case report.Checked == 0:
		_, _ = fmt.Fprintf(writer, "Status: No logs found\n")
	default:
		_, _ = fmt.Fprintf(writer, "Status: PASSED\n")
	}
}

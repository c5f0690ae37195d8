package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	ztService "github.com/allisson/keyvault/internal/zerotrust/service"
)

// BreakGlassIssuer issues one-time override codes.
type BreakGlassIssuer interface {
	Issue(ctx context.Context, actor string, ttl time.Duration) (*ztService.IssuedCode, error)
}

// RunIssueBreakGlassCode issues an emergency override code. Only its hash is stored.
func RunIssueBreakGlassCode(
	ctx context.Context,
	issuer BreakGlassIssuer,
	logger *slog.Logger,
	writer io.Writer,
	actor string,
	ttl time.Duration,
	format string,
) error {
	issued, err := issuer.Issue(ctx, actor, ttl)
	if err != nil {
		return fmt.Errorf("failed to issue break-glass code: %w", err)
	}

	logger.Warn("break-glass code issued",
		slog.String("id", issued.ID),
		slog.String("actor", actor),
		slog.Time("expires_at", issued.ExpiresAt),
	)

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"id":         issued.ID,
			"code":       issued.Code,
			"expires_at": issued.ExpiresAt,
		})
	}

	_, _ = fmt.Fprintf(writer, "Break-glass code: %s\n", issued.Code)
	_, _ = fmt.Fprintf(writer, "ID:               %s\n", issued.ID)
	_, _ = fmt.Fprintf(writer, "Expires At:       %s\n", formatTime(&issued.ExpiresAt))
	_, _ = fmt.Fprintf(writer, "\nThe code works once. Send it as the X-Break-Glass-Code header.\n")
	return nil
}

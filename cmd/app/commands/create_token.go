package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
)

// TokenCreator issues vault tokens.
type TokenCreator interface {
	Create(ctx context.Context, req policyDomain.CreateTokenRequest) (*policyDomain.CreatedToken, error)
}

// RunCreateToken issues a token bound to a comma-separated policy list. The raw token is
// printed once and never stored.
func RunCreateToken(
	ctx context.Context,
	tokens TokenCreator,
	logger *slog.Logger,
	writer io.Writer,
	displayName string,
	policies string,
	ttlSeconds int,
	numUses int,
	format string,
) error {
	req := policyDomain.CreateTokenRequest{
		DisplayName: displayName,
		Policies:    splitList(policies),
		TTLSeconds:  ttlSeconds,
		NumUses:     numUses,
		CreatedBy:   "cli",
	}

	created, err := tokens.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	logger.Info("token created",
		slog.String("accessor", created.Accessor),
		slog.Any("policies", created.Policies),
	)

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"id":         created.ID,
			"token":      created.Token,
			"accessor":   created.Accessor,
			"policies":   created.Policies,
			"expires_at": created.ExpiresAt,
		})
	}

	_, _ = fmt.Fprintf(writer, "Token:      %s\n", created.Token)
	_, _ = fmt.Fprintf(writer, "Accessor:   %s\n", created.Accessor)
	_, _ = fmt.Fprintf(writer, "Policies:   %s\n", strings.Join(created.Policies, ", "))
	_, _ = fmt.Fprintf(writer, "Expires At: %s\n", formatTime(created.ExpiresAt))
	_, _ = fmt.Fprintf(writer, "\nStore the token now, it cannot be shown again.\n")
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

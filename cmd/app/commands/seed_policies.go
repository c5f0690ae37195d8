package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/keyvault/internal/app"
)

// PolicySeeder applies a policy seed document.
type PolicySeeder interface {
	SeedPolicies(ctx context.Context, seed *app.PolicySeed, actor string) (*app.SeedReport, error)
}

// RunSeedPolicies seeds the zero-trust defaults and applies the YAML file at path.
// An empty path only seeds the defaults.
func RunSeedPolicies(
	ctx context.Context,
	seeder PolicySeeder,
	logger *slog.Logger,
	writer io.Writer,
	path string,
	actor string,
	format string,
) error {
	var seed *app.PolicySeed
	if path != "" {
		loaded, err := app.LoadPolicySeed(path)
		if err != nil {
			return err
		}
		seed = loaded
	}

	report, err := seeder.SeedPolicies(ctx, seed, actor)
	if err != nil {
		return fmt.Errorf("failed to seed policies: %w", err)
	}

	logger.Info("policies seeded",
		slog.String("file", path),
		slog.Int("defaults_created", report.DefaultsCreated),
		slog.Int("policies_created", report.PoliciesCreated),
	)

	if format == "json" {
		return writeJSON(writer, map[string]int{
			"defaults_created":    report.DefaultsCreated,
			"zero_trust_updated":  report.ZeroTrustUpdated,
			"policies_created":    report.PoliciesCreated,
			"policies_updated":    report.PoliciesUpdated,
			"assignments_created": report.AssignmentsCreated,
		})
	}

	_, _ = fmt.Fprintf(writer, "Zero-trust defaults created: %d\n", report.DefaultsCreated)
	_, _ = fmt.Fprintf(writer, "Zero-trust policies updated: %d\n", report.ZeroTrustUpdated)
	_, _ = fmt.Fprintf(writer, "Policies created:            %d\n", report.PoliciesCreated)
	_, _ = fmt.Fprintf(writer, "Policies updated:            %d\n", report.PoliciesUpdated)
	_, _ = fmt.Fprintf(writer, "Assignments created:         %d\n", report.AssignmentsCreated)
	return nil
}

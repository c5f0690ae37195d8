package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	drDomain "github.com/allisson/keyvault/internal/dr/domain"
)

// DisasterRecovery backs up and restores the vault.
type DisasterRecovery interface {
	Backup(ctx context.Context, passphrase, actor string) (*drDomain.BackupResult, []byte, error)
	Restore(ctx context.Context, blob []byte, passphrase, actor string) (*drDomain.RestoreResult, error)
	Validate(ctx context.Context, blob []byte, passphrase string) (*drDomain.ValidationResult, error)
}

// RunBackup writes an encrypted snapshot to outPath with mode 0600.
func RunBackup(
	ctx context.Context,
	dr DisasterRecovery,
	logger *slog.Logger,
	writer io.Writer,
	outPath string,
	passphrase string,
	actor string,
	format string,
) error {
	result, blob, err := dr.Backup(ctx, passphrase, actor)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	if err := os.WriteFile(outPath, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}

	logger.Info("backup created",
		slog.String("backup_id", result.BackupID),
		slog.String("file", outPath),
		slog.Int("size_bytes", result.SizeBytes),
	)

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"backup_id":          result.BackupID,
			"file":               outPath,
			"created_at":         result.CreatedAt,
			"integrity_hash":     result.IntegrityHash,
			"size_bytes":         result.SizeBytes,
			"secrets":            result.Secrets,
			"policies":           result.Policies,
			"settings":           result.Settings,
			"encryption_configs": result.EncryptionConfigs,
		})
	}

	_, _ = fmt.Fprintf(writer, "Backup ID:          %s\n", result.BackupID)
	_, _ = fmt.Fprintf(writer, "File:               %s\n", outPath)
	_, _ = fmt.Fprintf(writer, "Integrity hash:     %s\n", result.IntegrityHash)
	_, _ = fmt.Fprintf(writer, "Secrets:            %d\n", result.Secrets)
	_, _ = fmt.Fprintf(writer, "Policies:           %d\n", result.Policies)
	_, _ = fmt.Fprintf(writer, "Settings:           %d\n", result.Settings)
	_, _ = fmt.Fprintf(writer, "Encryption configs: %d\n", result.EncryptionConfigs)
	return nil
}

// RunRestore validates the snapshot at inPath, then restores whatever is missing. With
// dryRun only the validation runs.
func RunRestore(
	ctx context.Context,
	dr DisasterRecovery,
	logger *slog.Logger,
	writer io.Writer,
	inPath string,
	passphrase string,
	actor string,
	dryRun bool,
	format string,
) error {
	blob, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}

	validation, err := dr.Validate(ctx, blob, passphrase)
	if err != nil {
		return fmt.Errorf("failed to validate backup: %w", err)
	}
	if !validation.Valid {
		return fmt.Errorf("backup is not valid: %s", validation.Error)
	}

	if dryRun {
		if format == "json" {
			return writeJSON(writer, validation)
		}
		_, _ = fmt.Fprintf(writer, "Backup %s is valid (created %s)\n",
			validation.BackupID, formatTime(&validation.CreatedAt))
		return nil
	}

	result, err := dr.Restore(ctx, blob, passphrase, actor)
	if err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	logger.Info("backup restored",
		slog.String("backup_id", result.BackupID),
		slog.Int("secrets_restored", result.SecretsRestored),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", len(result.Errors)),
	)

	if format == "json" {
		if err := writeJSON(writer, result); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer, "Backup ID:                  %s\n", result.BackupID)
		_, _ = fmt.Fprintf(writer, "Secrets restored:           %d\n", result.SecretsRestored)
		_, _ = fmt.Fprintf(writer, "Policies restored:          %d\n", result.PoliciesRestored)
		_, _ = fmt.Fprintf(writer, "Settings restored:          %d\n", result.SettingsRestored)
		_, _ = fmt.Fprintf(writer, "Encryption configs restored: %d\n", result.EncryptionConfigsRestored)
		_, _ = fmt.Fprintf(writer, "Skipped (already present):  %d\n", result.Skipped)
		for _, e := range result.Errors {
			_, _ = fmt.Fprintf(writer, "  - %s\n", e)
		}
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("restore finished with %d error(s)", len(result.Errors))
	}
	return nil
}

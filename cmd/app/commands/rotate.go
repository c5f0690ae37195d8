package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
)

// SecretRotator rotates scheduled secrets.
type SecretRotator interface {
	RotateNow(ctx context.Context, path, actor string) rotationDomain.Result
	ExecutePending(ctx context.Context) rotationDomain.BatchResult
}

// DekRotator rotates DEKs and migrates encrypted fields.
type DekRotator interface {
	Rotate(ctx context.Context, purpose, actor string) rotationDomain.DekRotationResult
	ReEncryptTable(ctx context.Context, table, purpose string, batchSize int) (*rotationDomain.ReEncryptionResult, error)
	ReEncryptAll(ctx context.Context, purpose string) ([]*rotationDomain.ReEncryptionResult, error)
}

// DbRotator rotates the vault's own database login.
type DbRotator interface {
	Rotate(ctx context.Context, actor string) rotationDomain.DbRotationResult
}

// RunRotateSecret rotates one secret now, or every due schedule when path is empty.
func RunRotateSecret(
	ctx context.Context,
	rotator SecretRotator,
	logger *slog.Logger,
	writer io.Writer,
	path string,
	actor string,
	format string,
) error {
	if path == "" {
		batch := rotator.ExecutePending(ctx)
		logger.Info("pending rotations executed",
			slog.Int("total", batch.Total),
			slog.Int("succeeded", batch.Succeeded),
			slog.Int("failed", batch.Failed),
		)
		if format == "json" {
			if err := writeJSON(writer, batch); err != nil {
				return err
			}
		} else {
			_, _ = fmt.Fprintf(writer, "Schedules: %d\n", batch.Total)
			_, _ = fmt.Fprintf(writer, "Succeeded: %d\n", batch.Succeeded)
			_, _ = fmt.Fprintf(writer, "Failed:    %d\n", batch.Failed)
			_, _ = fmt.Fprintf(writer, "Skipped:   %d\n", batch.Skipped)
			for _, r := range batch.Results {
				if !r.Success {
					_, _ = fmt.Fprintf(writer, "  - %s: %s\n", r.Path, r.Error)
				}
			}
		}
		if batch.Failed > 0 {
			return fmt.Errorf("%d rotation(s) failed", batch.Failed)
		}
		return nil
	}

	result := rotator.RotateNow(ctx, path, actor)
	if format == "json" {
		if err := writeJSON(writer, result); err != nil {
			return err
		}
	}
	if !result.Success {
		return fmt.Errorf("failed to rotate %s: %s", path, result.Error)
	}

	logger.Info("secret rotated",
		slog.String("path", path),
		slog.Int("old_version", result.OldVersion),
		slog.Int("new_version", result.NewVersion),
	)
	if format != "json" {
		_, _ = fmt.Fprintf(writer, "Rotated %s from version %d to %d\n", path, result.OldVersion, result.NewVersion)
	}
	return nil
}

// RunRotateDek creates a new DEK version for purpose. Old versions stay readable.
func RunRotateDek(
	ctx context.Context,
	rotator DekRotator,
	logger *slog.Logger,
	writer io.Writer,
	purpose string,
	actor string,
	format string,
) error {
	result := rotator.Rotate(ctx, purpose, actor)
	if format == "json" {
		if err := writeJSON(writer, result); err != nil {
			return err
		}
	}
	if !result.Success {
		return fmt.Errorf("failed to rotate DEK %s: %s", purpose, result.Error)
	}

	logger.Info("DEK rotated",
		slog.String("purpose", purpose),
		slog.Int("new_version", result.NewVersion),
	)
	if format != "json" {
		_, _ = fmt.Fprintf(writer, "Rotated DEK %s from version %d to %d\n", purpose, result.OldVersion, result.NewVersion)
		_, _ = fmt.Fprintf(writer, "Run reencrypt to migrate existing fields.\n")
	}
	return nil
}

// RunReEncrypt migrates encrypted fields to the current DEK version. An empty table
// sweeps every table configured for purpose.
func RunReEncrypt(
	ctx context.Context,
	rotator DekRotator,
	logger *slog.Logger,
	writer io.Writer,
	table string,
	purpose string,
	batchSize int,
	format string,
) error {
	var results []*rotationDomain.ReEncryptionResult
	if table == "" {
		all, err := rotator.ReEncryptAll(ctx, purpose)
		if err != nil {
			return fmt.Errorf("failed to re-encrypt fields: %w", err)
		}
		results = all
	} else {
		one, err := rotator.ReEncryptTable(ctx, table, purpose, batchSize)
		if err != nil {
			return fmt.Errorf("failed to re-encrypt %s: %w", table, err)
		}
		results = append(results, one)
	}

	failed := 0
	for _, r := range results {
		failed += r.Failed
		logger.Info("table re-encrypted",
			slog.String("table", r.Table),
			slog.Int("re_encrypted", r.ReEncrypted),
			slog.Int("failed", r.Failed),
		)
	}

	if format == "json" {
		if err := writeJSON(writer, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			_, _ = fmt.Fprintf(writer, "%s (%s): %d total, %d re-encrypted, %d skipped, %d failed in %s\n",
				r.Table, r.Purpose, r.Total, r.ReEncrypted, r.Skipped, r.Failed, r.Duration)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d field(s) failed to re-encrypt", failed)
	}
	return nil
}

// RunRotateDbCredential issues a new login into the standby slot and makes it active.
func RunRotateDbCredential(
	ctx context.Context,
	rotator DbRotator,
	logger *slog.Logger,
	writer io.Writer,
	actor string,
	format string,
) error {
	result := rotator.Rotate(ctx, actor)
	if format == "json" {
		if err := writeJSON(writer, result); err != nil {
			return err
		}
	}
	if !result.Success {
		return errors.New("failed to rotate database credential: " + result.Error)
	}

	logger.Info("database credential rotated",
		slog.String("active_slot", string(result.ActiveSlot)),
		slog.String("username", result.Username),
		slog.Int("rotation_count", result.RotationCount),
	)
	if format != "json" {
		_, _ = fmt.Fprintf(writer, "Active slot:    %s (was %s)\n", result.ActiveSlot, result.PreviousSlot)
		_, _ = fmt.Fprintf(writer, "Username:       %s\n", result.Username)
		_, _ = fmt.Fprintf(writer, "Expires At:     %s\n", formatTime(&result.ExpiresAt))
		_, _ = fmt.Fprintf(writer, "Rotation count: %d\n", result.RotationCount)
	}
	return nil
}

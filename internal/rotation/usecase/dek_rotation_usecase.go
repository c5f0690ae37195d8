package usecase

import (
	"context"
	"log/slog"
	"time"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	dekUsecase "github.com/allisson/keyvault/internal/dek/usecase"
	apperrors "github.com/allisson/keyvault/internal/errors"
	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
	customValidation "github.com/allisson/keyvault/internal/validation"
)

const (
	ActionDekRotate    = "dek.rotate"
	ActionDekReEncrypt = "dek.reencrypt"

	resourceDek        = "dek"
	defaultBatchSize   = 100
	progressBatchSize  = 500
	resourceFieldTable = "table"
)

type dekRotationUseCase struct {
	registry dekUsecase.DekRegistry
	configs  dekUsecase.EncryptionConfigRepository
	fields   dekUsecase.FieldStore
	audit    auditUsecase.Recorder
	logger   *slog.Logger
}

// NewDekRotationUseCase creates the DEK rotation engine.
func NewDekRotationUseCase(
	registry dekUsecase.DekRegistry,
	configs dekUsecase.EncryptionConfigRepository,
	fields dekUsecase.FieldStore,
	audit auditUsecase.Recorder,
	logger *slog.Logger,
) DekRotationUseCase {
	return &dekRotationUseCase{
		registry: registry,
		configs:  configs,
		fields:   fields,
		audit:    audit,
		logger:   logger,
	}
}

// Rotate archives the current DEK and installs a new current version. Existing
// field values keep working through the archived version until a sweep migrates them.
func (u *dekRotationUseCase) Rotate(ctx context.Context, purpose string, actor string) rotationDomain.DekRotationResult {
	result := rotationDomain.DekRotationResult{Purpose: purpose, RotatedAt: time.Now().UTC()}

	oldVersion, newVersion, err := u.registry.Rotate(ctx, purpose)
	if err != nil {
		result.Error = err.Error()
		u.logger.Error("dek rotation failed", slog.String("purpose", purpose), slog.Any("error", err))
		return result
	}
	result.Success = true
	result.OldVersion = oldVersion
	result.NewVersion = newVersion

	if err := u.audit.Record(ctx, auditDomain.Entry{
		Action:       ActionDekRotate,
		ResourceType: resourceDek,
		ResourceID:   purpose,
		ActorID:      actor,
		Details:      map[string]any{detailOldVersion: oldVersion, detailNewVersion: newVersion},
	}); err != nil {
		u.logger.Error("failed to audit dek rotation", slog.Any("error", err))
	}

	u.logger.Info("dek rotated",
		slog.String("purpose", purpose),
		slog.Int("old_version", oldVersion),
		slog.Int("new_version", newVersion),
	)
	return result
}

func (u *dekRotationUseCase) config(ctx context.Context, table string) (*dekDomain.EncryptionConfig, error) {
	if !customValidation.IsSQLIdentifier(table) {
		return nil, apperrors.Wrap(dekDomain.ErrInvalidIdentifier, table)
	}
	cfg, err := u.configs.GetEncryptionConfig(ctx, table)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Wrap(rotationDomain.ErrNoEncryptionConfig, table)
		}
		return nil, err
	}
	for _, field := range cfg.EncryptedFields {
		if !customValidation.IsSQLIdentifier(field) {
			return nil, apperrors.Wrap(dekDomain.ErrInvalidIdentifier, field)
		}
	}
	return cfg, nil
}

type rowOutcome int

const (
	rowSkipped rowOutcome = iota
	rowReEncrypted
	rowFailed
)

// reEncryptRow moves every framed field of row to the current version. Plaintext and
// already-current values are left alone so a re-run is a no-op.
func (u *dekRotationUseCase) reEncryptRow(
	ctx context.Context,
	table, purpose string,
	current int,
	row *dekDomain.Row,
) rowOutcome {
	outcome := rowSkipped
	for field, value := range row.Fields {
		if value == nil {
			continue
		}
		framed, ok := dekDomain.ParseField(*value)
		if !ok || framed.Version == current {
			continue
		}

		plaintext, err := u.registry.DecryptField(ctx, purpose, *value)
		if err != nil {
			u.logger.Warn("field could not be decrypted under any dek version",
				slog.String("table", table), slog.String("id", row.ID), slog.String("field", field))
			return rowFailed
		}
		reframed, err := u.registry.EncryptField(ctx, purpose, plaintext)
		if err != nil {
			return rowFailed
		}
		if err := u.fields.UpdateRowField(ctx, table, row.ID, field, reframed); err != nil {
			u.logger.Warn("failed to store re-encrypted field",
				slog.String("table", table), slog.String("id", row.ID), slog.Any("error", err))
			return rowFailed
		}
		outcome = rowReEncrypted
	}
	return outcome
}

func (u *dekRotationUseCase) ReEncryptTable(
	ctx context.Context,
	table, purpose string,
	batchSize int,
) (*rotationDomain.ReEncryptionResult, error) {
	start := time.Now()
	cfg, err := u.config(ctx, table)
	if err != nil {
		return nil, err
	}
	if purpose == "" {
		purpose = cfg.DekPurpose
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	key, err := u.registry.Current(ctx, purpose)
	if err != nil {
		return nil, err
	}

	rowCount, err := u.fields.CountRows(ctx, table)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to count rows")
	}
	u.logger.Info("re-encrypting table",
		slog.String("table", table),
		slog.String("purpose", purpose),
		slog.Int("rows", rowCount),
		slog.Int("target_version", key.Version),
	)

	result := &rotationDomain.ReEncryptionResult{Table: table, Purpose: purpose}
	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rows, err := u.fields.ListRows(ctx, table, cfg.EncryptedFields, offset, batchSize)
		if err != nil {
			return result, apperrors.Wrap(err, "failed to read rows")
		}
		for _, row := range rows {
			result.Total++
			switch u.reEncryptRow(ctx, table, purpose, key.Version, row) {
			case rowReEncrypted:
				result.ReEncrypted++
			case rowFailed:
				result.Failed++
			default:
				result.Skipped++
			}
		}
		if len(rows) < batchSize {
			break
		}
	}
	result.Duration = time.Since(start)

	if err := u.audit.Record(ctx, auditDomain.Entry{
		Action:       ActionDekReEncrypt,
		ResourceType: resourceFieldTable,
		ResourceID:   table,
		ActorID:      systemActor,
		Details: map[string]any{
			"purpose":     purpose,
			"version":     key.Version,
			"total":       result.Total,
			"reEncrypted": result.ReEncrypted,
			"failed":      result.Failed,
			"skipped":     result.Skipped,
		},
	}); err != nil {
		u.logger.Error("failed to audit re-encryption", slog.Any("error", err))
	}

	u.logger.Info("table re-encrypted",
		slog.String("table", table),
		slog.String("purpose", purpose),
		slog.Int("total", result.Total),
		slog.Int("re_encrypted", result.ReEncrypted),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

func (u *dekRotationUseCase) configsFor(ctx context.Context, purpose string) ([]*dekDomain.EncryptionConfig, error) {
	all, err := u.configs.ListEncryptionConfigs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*dekDomain.EncryptionConfig, 0, len(all))
	for _, cfg := range all {
		if cfg.Enabled && cfg.DekPurpose == purpose {
			out = append(out, cfg)
		}
	}
	return out, nil
}

// ReEncryptAll sweeps every enabled table bound to purpose. A failing table is logged
// and the sweep moves on.
func (u *dekRotationUseCase) ReEncryptAll(
	ctx context.Context,
	purpose string,
) ([]*rotationDomain.ReEncryptionResult, error) {
	configs, err := u.configsFor(ctx, purpose)
	if err != nil {
		return nil, err
	}

	results := make([]*rotationDomain.ReEncryptionResult, 0, len(configs))
	for _, cfg := range configs {
		result, err := u.ReEncryptTable(ctx, cfg.TableName, purpose, defaultBatchSize)
		if err != nil {
			u.logger.Error("table re-encryption failed",
				slog.String("table", cfg.TableName), slog.Any("error", err))
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

func (u *dekRotationUseCase) Progress(
	ctx context.Context,
	purpose string,
) ([]*rotationDomain.ReEncryptionProgress, error) {
	configs, err := u.configsFor(ctx, purpose)
	if err != nil {
		return nil, err
	}

	current := 0
	if info, err := u.registry.VersionInfo(ctx, purpose); err == nil {
		current = info.CurrentVersion
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	out := make([]*rotationDomain.ReEncryptionProgress, 0, len(configs))
	for _, cfg := range configs {
		if _, err := u.config(ctx, cfg.TableName); err != nil {
			return nil, err
		}
		progress := &rotationDomain.ReEncryptionProgress{
			Table:          cfg.TableName,
			Purpose:        purpose,
			CurrentVersion: current,
			ByVersion:      make(map[int]int),
		}
		for offset := 0; ; offset += progressBatchSize {
			rows, err := u.fields.ListRows(ctx, cfg.TableName, cfg.EncryptedFields, offset, progressBatchSize)
			if err != nil {
				return nil, apperrors.Wrap(err, "failed to read rows")
			}
			for _, row := range rows {
				for _, value := range row.Fields {
					if value == nil {
						continue
					}
					if framed, ok := dekDomain.ParseField(*value); ok {
						progress.ByVersion[framed.Version]++
					} else {
						progress.Plaintext++
					}
				}
			}
			if len(rows) < progressBatchSize {
				break
			}
		}
		out = append(out, progress)
	}
	return out, nil
}

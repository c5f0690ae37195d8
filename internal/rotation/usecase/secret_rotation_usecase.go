package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	"github.com/allisson/keyvault/internal/database"
	apperrors "github.com/allisson/keyvault/internal/errors"
	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
	customValidation "github.com/allisson/keyvault/internal/validation"
)

// Audit actions written by secret rotation.
const (
	ActionRotationExecuted        = "rotation.executed"
	ActionRotationFailed          = "rotation.failed"
	ActionRotationScheduleCreated = "rotation.schedule.created"
	ActionRotationScheduleUpdated = "rotation.schedule.updated"
	ActionRotationScheduleRemoved = "rotation.schedule.removed"

	resourceSecret   = "secret"
	resourceSchedule = "rotation-schedule"

	systemActor          = "system"
	rotatedSecretBytes   = 32
	callbackTimeout      = 10 * time.Second
	defaultHistoryLimit  = 50
	callbackContentType  = "application/json"
	detailOldVersion     = "oldVersion"
	detailNewVersion     = "newVersion"
	detailTriggeredBy    = "triggeredBy"
	detailRotationReason = "error"
)

type secretRotationUseCase struct {
	txManager database.TxManager
	schedules ScheduleRepository
	secrets   SecretStore
	audit     AuditTrail
	client    *http.Client
	logger    *slog.Logger
	now       func() time.Time
}

// NewSecretRotationUseCase creates the secret rotation engine.
func NewSecretRotationUseCase(
	txManager database.TxManager,
	schedules ScheduleRepository,
	secrets SecretStore,
	audit AuditTrail,
	logger *slog.Logger,
) SecretRotationUseCase {
	return &secretRotationUseCase{
		txManager: txManager,
		schedules: schedules,
		secrets:   secrets,
		audit:     audit,
		client:    &http.Client{Timeout: callbackTimeout},
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (u *secretRotationUseCase) SetSchedule(
	ctx context.Context,
	path string,
	cfg rotationDomain.Config,
	actor string,
) (*rotationDomain.Schedule, error) {
	path = secretsDomain.NormalizePath(path)
	if err := cfg.Validate(); err != nil {
		return nil, customValidation.WrapValidationError(err)
	}

	var schedule *rotationDomain.Schedule
	err := u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		now := u.now()
		existing, err := u.schedules.GetScheduleByPath(txCtx, path)
		switch {
		case err == nil:
			existing.UpdateConfig(cfg, now)
			if err := u.schedules.UpdateSchedule(txCtx, existing); err != nil {
				return err
			}
			schedule = existing
			return u.recordSchedule(txCtx, ActionRotationScheduleUpdated, schedule, actor)
		case !apperrors.Is(err, apperrors.ErrNotFound):
			return err
		}

		if _, err := u.secrets.Get(txCtx, path, 0); err != nil {
			return err
		}
		schedule = rotationDomain.NewSchedule(path, cfg, actor, now)
		if err := u.schedules.CreateSchedule(txCtx, schedule); err != nil {
			return err
		}
		return u.recordSchedule(txCtx, ActionRotationScheduleCreated, schedule, actor)
	})
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

func (u *secretRotationUseCase) recordSchedule(
	ctx context.Context,
	action string,
	schedule *rotationDomain.Schedule,
	actor string,
) error {
	return u.audit.Record(ctx, auditDomain.Entry{
		Action:       action,
		ResourceType: resourceSchedule,
		ResourceID:   schedule.SecretPath,
		ActorID:      actor,
		Details: map[string]any{
			"intervalDays": schedule.IntervalDays,
			"automatic":    schedule.Automatic,
			"strategy":     schedule.Strategy,
		},
	})
}

func (u *secretRotationUseCase) RemoveSchedule(ctx context.Context, path string, actor string) error {
	path = secretsDomain.NormalizePath(path)
	return u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		schedule, err := u.schedules.GetScheduleByPath(txCtx, path)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return rotationDomain.ErrScheduleNotFound
			}
			return err
		}
		schedule.Active = false
		schedule.UpdatedAt = u.now()
		if err := u.schedules.UpdateSchedule(txCtx, schedule); err != nil {
			return err
		}
		return u.recordSchedule(txCtx, ActionRotationScheduleRemoved, schedule, actor)
	})
}

func (u *secretRotationUseCase) Schedules(ctx context.Context) ([]*rotationDomain.Schedule, error) {
	return u.schedules.ListSchedules(ctx, false)
}

// detailInt reads an integer detail. Details decoded from JSON hold float64.
func detailInt(details map[string]any, key string) int {
	switch v := details[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

func (u *secretRotationUseCase) History(
	ctx context.Context,
	path string,
	limit int,
) ([]rotationDomain.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	logs, err := u.audit.List(ctx, auditDomain.Filter{
		Action:     ActionRotationExecuted,
		ResourceID: secretsDomain.NormalizePath(path),
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	history := make([]rotationDomain.HistoryEntry, 0, len(logs))
	for _, log := range logs {
		triggeredBy, _ := log.Details[detailTriggeredBy].(string)
		history = append(history, rotationDomain.HistoryEntry{
			Path:        log.ResourceID,
			OldVersion:  detailInt(log.Details, detailOldVersion),
			NewVersion:  detailInt(log.Details, detailNewVersion),
			TriggeredBy: triggeredBy,
			RotatedAt:   log.CreatedAt,
		})
	}
	return history, nil
}

func newSecretValue() ([]byte, error) {
	b, err := cryptoService.RandomBytes(rotatedSecretBytes)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.RawURLEncoding.EncodedLen(len(b)))
	base64.RawURLEncoding.Encode(out, b)
	return out, nil
}

// RotateNow writes fresh random material as a new version. Older versions stay
// readable. The outcome is audited either way.
func (u *secretRotationUseCase) RotateNow(ctx context.Context, path string, actor string) rotationDomain.Result {
	path = secretsDomain.NormalizePath(path)
	result := rotationDomain.Result{Path: path, RotatedAt: u.now()}

	err := u.rotate(ctx, path, actor, &result)
	if err != nil {
		result.Error = err.Error()
		u.logger.Error("secret rotation failed", slog.String("path", path), slog.Any("error", err))
		if auditErr := u.audit.Record(ctx, auditDomain.Entry{
			Action:       ActionRotationFailed,
			ResourceType: resourceSecret,
			ResourceID:   path,
			ActorID:      actor,
			Details:      map[string]any{detailRotationReason: err.Error(), detailTriggeredBy: actor},
		}); auditErr != nil {
			u.logger.Error("failed to audit rotation failure", slog.Any("error", auditErr))
		}
		return result
	}

	result.Success = true
	u.logger.Info("secret rotated",
		slog.String("path", path),
		slog.Int("old_version", result.OldVersion),
		slog.Int("new_version", result.NewVersion),
	)
	return result
}

func (u *secretRotationUseCase) rotate(
	ctx context.Context,
	path, actor string,
	result *rotationDomain.Result,
) error {
	current, err := u.secrets.Get(ctx, path, 0)
	if err != nil {
		return err
	}
	result.OldVersion = current.Version

	value, err := newSecretValue()
	if err != nil {
		return err
	}

	var schedule *rotationDomain.Schedule
	err = u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		version, err := u.secrets.Put(txCtx, path, value, secretsDomain.PutOptions{Actor: actor})
		if err != nil {
			return err
		}
		result.NewVersion = version

		schedule, err = u.schedules.GetScheduleByPath(txCtx, path)
		switch {
		case err == nil:
			schedule.RecordRotation(result.RotatedAt)
			if err := u.schedules.UpdateSchedule(txCtx, schedule); err != nil {
				return err
			}
		case apperrors.Is(err, apperrors.ErrNotFound):
			schedule = nil
		default:
			return err
		}

		return u.audit.Record(txCtx, auditDomain.Entry{
			Action:       ActionRotationExecuted,
			ResourceType: resourceSecret,
			ResourceID:   path,
			ActorID:      actor,
			Details: map[string]any{
				detailOldVersion:  result.OldVersion,
				detailNewVersion:  result.NewVersion,
				detailTriggeredBy: actor,
			},
		})
	})
	if err != nil {
		return err
	}

	if schedule != nil && schedule.Strategy == rotationDomain.StrategyCallback {
		u.notify(ctx, schedule.CallbackURL, *result)
	}
	return nil
}

// notify tells the callback URL a new version exists. The value is never sent and
// delivery failure does not fail the rotation.
func (u *secretRotationUseCase) notify(ctx context.Context, url string, result rotationDomain.Result) {
	body, err := json.Marshal(map[string]any{
		"path":       result.Path,
		"oldVersion": result.OldVersion,
		"newVersion": result.NewVersion,
		"rotatedAt":  result.RotatedAt,
	})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		u.logger.Warn("invalid rotation callback url", slog.String("path", result.Path), slog.Any("error", err))
		return
	}
	req.Header.Set("Content-Type", callbackContentType)

	resp, err := u.client.Do(req)
	if err != nil {
		u.logger.Warn("rotation callback failed", slog.String("path", result.Path), slog.Any("error", err))
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		u.logger.Warn("rotation callback rejected",
			slog.String("path", result.Path), slog.Int("status", resp.StatusCode))
	}
}

func (u *secretRotationUseCase) ExecutePending(ctx context.Context) rotationDomain.BatchResult {
	var batch rotationDomain.BatchResult

	schedules, err := u.schedules.ListSchedules(ctx, true)
	if err != nil {
		u.logger.Error("failed to list rotation schedules", slog.Any("error", err))
		return batch
	}

	now := u.now()
	for _, schedule := range schedules {
		if !schedule.IsDue(now) {
			batch.Skipped++
			continue
		}
		if ctx.Err() != nil {
			break
		}
		batch.Total++
		result := u.RotateNow(ctx, schedule.SecretPath, systemActor)
		if result.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
		batch.Results = append(batch.Results, result)
	}
	return batch
}

package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditService "github.com/allisson/keyvault/internal/audit/service"
	apperrors "github.com/allisson/keyvault/internal/errors"
)

type auditLogUseCase struct {
	repo   AuditLogRepository
	signer auditService.AuditSigner
	keys   KeySource
	logger *slog.Logger
}

// NewAuditLogUseCase creates the audit trail. keys may be nil, in which case entries are stored unsigned.
func NewAuditLogUseCase(
	repo AuditLogRepository,
	signer auditService.AuditSigner,
	keys KeySource,
	logger *slog.Logger,
) AuditLogUseCase {
	return &auditLogUseCase{repo: repo, signer: signer, keys: keys, logger: logger}
}

// Record appends a signed entry. A signing failure is logged and the entry is stored
// unsigned so the trail never loses an event; verification reports it later.
func (a *auditLogUseCase) Record(ctx context.Context, entry auditDomain.Entry) error {
	log := &auditDomain.AuditLog{
		ID:           uuid.Must(uuid.NewV7()),
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		ActorID:      entry.ActorID,
		Details:      entry.Details,
		CreatedAt:    time.Now().UTC(),
	}

	if a.keys != nil {
		if key, err := a.keys.Key(ctx); err != nil {
			a.logger.Warn("audit entry stored unsigned",
				slog.String("action", entry.Action), slog.Any("error", err))
		} else if sig, err := a.signer.Sign(key, log); err != nil {
			a.logger.Warn("failed to sign audit entry",
				slog.String("action", entry.Action), slog.Any("error", err))
		} else {
			log.Signature = sig
		}
	}

	if err := a.repo.CreateAuditLog(ctx, log); err != nil {
		return apperrors.Wrap(err, "failed to create audit log")
	}
	return nil
}

func (a *auditLogUseCase) List(ctx context.Context, filter auditDomain.Filter) ([]*auditDomain.AuditLog, error) {
	logs, err := a.repo.ListAuditLogs(ctx, filter)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit logs")
	}
	return logs, nil
}

func (a *auditLogUseCase) Count(ctx context.Context, filter auditDomain.Filter) (int, error) {
	n, err := a.repo.CountAuditLogs(ctx, filter)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count audit logs")
	}
	return n, nil
}

func (a *auditLogUseCase) Verify(
	ctx context.Context,
	filter auditDomain.Filter,
) (*auditDomain.VerificationReport, error) {
	if a.keys == nil {
		return nil, apperrors.Wrap(apperrors.ErrPreconditionFailed, "audit signing key not configured")
	}
	key, err := a.keys.Key(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to resolve audit signing key")
	}

	logs, err := a.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	report := &auditDomain.VerificationReport{}
	for _, log := range logs {
		report.Checked++
		switch err := a.signer.Verify(key, log); {
		case err == nil:
			report.Valid++
		case apperrors.Is(err, auditDomain.ErrSignatureMissing):
			report.Unsigned++
			report.InvalidIDs = append(report.InvalidIDs, log.ID)
		default:
			report.Invalid++
			report.InvalidIDs = append(report.InvalidIDs, log.ID)
		}
	}
	return report, nil
}

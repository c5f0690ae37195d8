package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	apperrors "github.com/allisson/keyvault/internal/errors"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
	ztService "github.com/allisson/keyvault/internal/zerotrust/service"
)

const (
	ActionDeviceRegister = "device.register"
	ActionDeviceTrust    = "device.trust"

	resourceDevice        = "device"
	newDeviceScore        = 25
	newDeviceRegistration = "New device registration"
)

type deviceTrustUseCase struct {
	repo   DeviceRiskRepository
	audit  auditUsecase.Recorder
	logger *slog.Logger
	now    func() time.Time
}

// NewDeviceTrustUseCase registers fingerprinted devices. New devices start at Medium risk.
func NewDeviceTrustUseCase(repo DeviceRiskRepository, audit auditUsecase.Recorder, logger *slog.Logger) DeviceTrustUseCase {
	return &deviceTrustUseCase{
		repo:   repo,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (u *deviceTrustUseCase) Register(
	ctx context.Context,
	userID string,
	signals ztDomain.DeviceSignals,
) (*ztDomain.DeviceRisk, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "user id is required")
	}

	fingerprint := ztService.Fingerprint(signals)
	now := u.now()

	existing, err := u.repo.GetDeviceRisk(ctx, userID, fingerprint)
	if err == nil {
		existing.UpdatedAt = now
		existing.IPAddress = signals.IPAddress
		if err := u.repo.UpsertDeviceRisk(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	device := &ztDomain.DeviceRisk{
		ID:        uuid.NewString(),
		UserID:    userID,
		DeviceID:  fingerprint,
		RiskLevel: ztDomain.RiskMedium,
		RiskScore: newDeviceScore,
		Factors:   []string{newDeviceRegistration},
		IPAddress: signals.IPAddress,
		Country:   signals.Country,
		UserAgent: signals.UserAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.repo.UpsertDeviceRisk(ctx, device); err != nil {
		return nil, err
	}

	u.logger.Info("new device registered",
		slog.String("user_id", userID),
		slog.String("fingerprint", fingerprint[:16]),
	)
	if err := u.audit.Record(ctx, auditDomain.Entry{
		Action:       ActionDeviceRegister,
		ResourceType: resourceDevice,
		ResourceID:   fingerprint,
		ActorID:      userID,
		Details:      map[string]any{"ipAddress": signals.IPAddress},
	}); err != nil {
		return nil, err
	}
	return device, nil
}

func (u *deviceTrustUseCase) Check(ctx context.Context, userID, deviceID string) (*ztDomain.TrustResult, error) {
	device, err := u.repo.GetDeviceRisk(ctx, userID, deviceID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return &ztDomain.TrustResult{
				DeviceID: deviceID,
				Level:    ztDomain.TrustUnknown,
				Reason:   "Device has not been registered",
			}, nil
		}
		return nil, err
	}

	result := &ztDomain.TrustResult{
		DeviceID:  deviceID,
		Level:     ztDomain.TrustLevelFor(device),
		RiskLevel: device.RiskLevel,
		RiskScore: device.RiskScore,
	}
	switch result.Level {
	case ztDomain.TrustTrusted:
		result.Reason = "Device explicitly trusted"
	case ztDomain.TrustPartiallyTrusted:
		result.Reason = "Known device with acceptable risk"
	default:
		result.Reason = "Known device with elevated risk"
	}
	return result, nil
}

// Trust marks a registered device as trusted.
func (u *deviceTrustUseCase) Trust(ctx context.Context, userID, deviceID, actor string) error {
	device, err := u.repo.GetDeviceRisk(ctx, userID, deviceID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return ztDomain.ErrDeviceNotFound
		}
		return err
	}

	device.IsTrusted = true
	device.UpdatedAt = u.now()
	if err := u.repo.UpsertDeviceRisk(ctx, device); err != nil {
		return err
	}
	return u.audit.Record(ctx, auditDomain.Entry{
		Action:       ActionDeviceTrust,
		ResourceType: resourceDevice,
		ResourceID:   deviceID,
		ActorID:      actor,
		Details:      map[string]any{"userId": userID},
	})
}

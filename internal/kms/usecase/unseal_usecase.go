package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
	kmsDomain "github.com/allisson/keyvault/internal/kms/domain"
	kmsService "github.com/allisson/keyvault/internal/kms/service"
	"github.com/allisson/keyvault/internal/settings"
	customValidation "github.com/allisson/keyvault/internal/validation"
)

const (
	ActionUnsealConfigured = "unseal.provider.configured"

	unsealSettingKey    = "unseal-providers"
	unsealSettingSchema = 1
	unsealEventType     = "vault.unseal.all_failed"
)

type unsealProviders struct {
	Providers []kmsDomain.UnsealProvider `json:"providers"`
}

type unsealUseCase struct {
	providers map[string]kmsService.Provider
	store     *settings.Store
	audit     auditUsecase.Recorder
	events    auditService.EventPublisher
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	master []byte
}

// NewUnsealUseCase creates the unseal use case over the named providers.
func NewUnsealUseCase(
	providers []kmsService.Provider,
	store *settings.Store,
	audit auditUsecase.Recorder,
	events auditService.EventPublisher,
	logger *slog.Logger,
) UnsealUseCase {
	byName := make(map[string]kmsService.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &unsealUseCase{
		providers: byName,
		store:     store,
		audit:     audit,
		events:    events,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r ConfigureRequest) validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Provider, validation.Required),
		validation.Field(&r.KeyName, validation.Required, customValidation.NoWhitespace),
		validation.Field(&r.Priority, validation.Min(0)),
		validation.Field(&r.MasterKey, validation.Required, validation.Length(cryptoDomain.KeySize, cryptoDomain.KeySize)),
	)
	return customValidation.WrapValidationError(err)
}

func (u *unsealUseCase) load(ctx context.Context) ([]kmsDomain.UnsealProvider, error) {
	var stored unsealProviders
	if err := u.store.Load(ctx, unsealSettingKey, unsealSettingSchema, &stored); err != nil {
		if apperrors.Is(err, settings.ErrSettingNotFound) {
			return nil, nil
		}
		return nil, err
	}
	sort.SliceStable(stored.Providers, func(i, j int) bool {
		return stored.Providers[i].Priority < stored.Providers[j].Priority
	})
	return stored.Providers, nil
}

// Configure wraps the master key with the provider and persists the wrapped copy,
// replacing any entry for the same provider and key.
func (u *unsealUseCase) Configure(ctx context.Context, req ConfigureRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	provider, ok := u.providers[req.Provider]
	if !ok {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "unknown kms provider "+req.Provider)
	}

	wrapped, err := provider.WrapKey(ctx, req.KeyName, req.MasterKey)
	if err != nil {
		return apperrors.Wrap(err, "failed to wrap master key")
	}

	existing, err := u.load(ctx)
	if err != nil {
		return err
	}
	entries := existing[:0]
	for _, e := range existing {
		if e.Provider == req.Provider && e.KeyName == req.KeyName {
			continue
		}
		entries = append(entries, e)
	}
	entries = append(entries, kmsDomain.UnsealProvider{
		Provider:     req.Provider,
		KeyName:      req.KeyName,
		Priority:     req.Priority,
		Enabled:      true,
		WrappedKey:   wrapped.Ciphertext,
		IV:           wrapped.IV,
		KeyVersion:   wrapped.KeyVersion,
		Algorithm:    wrapped.Algorithm,
		ConfiguredAt: u.now(),
		ConfiguredBy: req.Actor,
	})
	if err := u.store.Save(ctx, unsealSettingKey, unsealSettingSchema, &unsealProviders{Providers: entries}); err != nil {
		return apperrors.Wrap(err, "failed to save unseal providers")
	}

	return u.audit.Record(ctx, auditDomain.Entry{
		Action:       ActionUnsealConfigured,
		ResourceType: "unseal_provider",
		ResourceID:   req.Provider + "/" + req.KeyName,
		ActorID:      req.Actor,
		Details:      map[string]any{"priority": req.Priority, "algorithm": wrapped.Algorithm},
	})
}

// Unseal tries every enabled provider in priority order.
func (u *unsealUseCase) Unseal(ctx context.Context) (*kmsDomain.UnsealResult, error) {
	entries, err := u.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, kmsDomain.ErrNoUnsealProvider
	}

	result := &kmsDomain.UnsealResult{}
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		result.Attempted = append(result.Attempted, e.Provider)

		provider, ok := u.providers[e.Provider]
		if !ok {
			result.Errors = append(result.Errors, e.Provider+": provider not available")
			continue
		}
		key, err := provider.UnwrapKey(ctx, e.KeyName, e.WrappedKey, e.IV)
		if err != nil {
			u.logger.Warn("auto-unseal failed for provider",
				slog.String("provider", e.Provider),
				slog.String("key_name", e.KeyName),
				slog.Any("error", err),
			)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", e.Provider, err))
			continue
		}

		u.mu.Lock()
		cryptoDomain.Zero(u.master)
		u.master = key
		u.mu.Unlock()

		result.Success = true
		result.Provider = e.Provider
		u.logger.Info("auto-unseal succeeded", slog.String("provider", e.Provider))
		return result, nil
	}

	reason := fmt.Sprintf("All %d unseal providers failed", len(result.Attempted))
	u.events.Publish(ctx, auditDomain.SecurityEvent{
		ID:           uuid.NewString(),
		EventType:    auditDomain.EventUnsealFailed,
		Severity:     auditDomain.SeverityCritical,
		Source:       "MultiProviderUnseal",
		Action:       unsealEventType,
		ResourceType: "Vault",
		ResourceID:   "master",
		Outcome:      auditDomain.OutcomeFailure,
		Reason:       reason,
		Timestamp:    u.now(),
	})
	return result, apperrors.Wrap(kmsDomain.ErrUnsealFailed, reason)
}

// Status omits the wrapped material.
func (u *unsealUseCase) Status(ctx context.Context) (*kmsDomain.UnsealStatus, error) {
	entries, err := u.load(ctx)
	if err != nil {
		return nil, err
	}
	status := &kmsDomain.UnsealStatus{Configured: len(entries) > 0, Providers: make([]kmsDomain.UnsealProvider, 0, len(entries))}
	for _, e := range entries {
		e.WrappedKey = nil
		e.IV = nil
		status.Providers = append(status.Providers, e)
	}
	return status, nil
}

func (u *unsealUseCase) Sealed() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.master == nil
}

func (u *unsealUseCase) MasterKey() ([]byte, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.master == nil {
		return nil, apperrors.Wrap(apperrors.ErrPreconditionFailed, "vault is sealed")
	}
	return append([]byte(nil), u.master...), nil
}

func (u *unsealUseCase) Seal() {
	u.mu.Lock()
	defer u.mu.Unlock()
	cryptoDomain.Zero(u.master)
	u.master = nil
}

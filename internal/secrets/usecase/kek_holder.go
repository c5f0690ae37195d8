package usecase

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	"github.com/allisson/keyvault/internal/database"
	apperrors "github.com/allisson/keyvault/internal/errors"
	kmsService "github.com/allisson/keyvault/internal/kms/service"
	"github.com/allisson/keyvault/internal/settings"
)

const (
	// WrappedKekSetting marks a completed migration to a KMS-wrapped KEK.
	WrappedKekSetting = "vault-secret-wrapped-kek"
	pendingKekSetting = "vault-secret-wrapped-kek-pending"
	wrappedKekSchema  = 1

	// KekKmsKeyName is the KMS key the KEK is wrapped under.
	KekKmsKeyName = "vault-secret-kek"

	legacyKekSalt = "IVF-Vault-KEK-Salt-2026"
)

type wrappedKek struct {
	Ciphertext []byte    `json:"ciphertext"`
	IV         []byte    `json:"iv"`
	KeyName    string    `json:"keyName"`
	KeyVersion int       `json:"keyVersion"`
	Algorithm  string    `json:"algorithm"`
	Provider   string    `json:"provider"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MigrationReport describes a one-time legacy KEK migration.
type MigrationReport struct {
	ReEncrypted     int
	AlreadyMigrated int
	Failed          int
}

// KekHolder owns the process-wide KEK.
//
// The first call to Key resolves the KEK under a mutex: it unwraps the persisted blob
// through the KMS provider or, when none exists yet, runs the one-time migration away
// from the legacy password-derived key. Later calls return the cached key without locking.
//
// The migration persists the new wrapped KEK as a pending record before touching any
// secret, so an interrupted run resumes with the same key. Secrets that no longer open
// under the legacy key but open under the new one are counted as already migrated.
type KekHolder struct {
	store        *settings.Store
	kms          kmsService.Provider
	secrets      SecretRepository
	txManager    database.TxManager
	legacySecret string
	logger       *slog.Logger

	key atomic.Pointer[[]byte]
	mu  sync.Mutex
}

// NewKekHolder creates an unresolved holder.
func NewKekHolder(
	store *settings.Store,
	kms kmsService.Provider,
	secrets SecretRepository,
	txManager database.TxManager,
	legacySecret string,
	logger *slog.Logger,
) *KekHolder {
	return &KekHolder{
		store:        store,
		kms:          kms,
		secrets:      secrets,
		txManager:    txManager,
		legacySecret: legacySecret,
		logger:       logger,
	}
}

// Key returns the KEK, resolving it on first use.
func (h *KekHolder) Key(ctx context.Context) ([]byte, error) {
	if k := h.key.Load(); k != nil {
		return *k, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if k := h.key.Load(); k != nil {
		return *k, nil
	}

	key, err := h.resolve(ctx)
	if err != nil {
		return nil, err
	}
	h.key.Store(&key)
	return key, nil
}

// IsWrapped reports whether the KMS-wrapped KEK marker exists.
func (h *KekHolder) IsWrapped(ctx context.Context) (bool, error) {
	return h.store.Exists(ctx, WrappedKekSetting)
}

// Rewrap re-wraps the KEK under the current version of its KMS key.
func (h *KekHolder) Rewrap(ctx context.Context) error {
	key, err := h.Key(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rec, err := h.wrap(ctx, key)
	if err != nil {
		return err
	}
	if err := h.store.Save(ctx, WrappedKekSetting, wrappedKekSchema, rec); err != nil {
		return apperrors.Wrap(err, "failed to save rewrapped kek")
	}
	h.logger.Info("kek rewrapped",
		slog.String("kms_key", rec.KeyName), slog.Int("kms_key_version", rec.KeyVersion))
	return nil
}

func (h *KekHolder) resolve(ctx context.Context) ([]byte, error) {
	var rec wrappedKek
	err := h.store.Load(ctx, WrappedKekSetting, wrappedKekSchema, &rec)
	if err == nil {
		key, err := h.kms.UnwrapKey(ctx, rec.KeyName, rec.Ciphertext, rec.IV)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to unwrap kek")
		}
		return key, nil
	}
	if !apperrors.Is(err, settings.ErrSettingNotFound) {
		return nil, err
	}

	key, report, err := h.migrate(ctx)
	if err != nil {
		return nil, err
	}
	h.logger.Info("kek migration completed",
		slog.Int("re_encrypted", report.ReEncrypted),
		slog.Int("already_migrated", report.AlreadyMigrated),
		slog.Int("failed", report.Failed),
	)
	return key, nil
}

func (h *KekHolder) wrap(ctx context.Context, key []byte) (*wrappedKek, error) {
	res, err := h.kms.WrapKey(ctx, KekKmsKeyName, key)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to wrap kek")
	}
	return &wrappedKek{
		Ciphertext: res.Ciphertext,
		IV:         res.IV,
		KeyName:    res.KeyName,
		KeyVersion: res.KeyVersion,
		Algorithm:  res.Algorithm,
		Provider:   h.kms.Name(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// pendingKey returns the key of an interrupted migration, or a freshly generated key
// that is persisted as pending before it is used.
func (h *KekHolder) pendingKey(ctx context.Context) ([]byte, *wrappedKek, error) {
	var rec wrappedKek
	err := h.store.Load(ctx, pendingKekSetting, wrappedKekSchema, &rec)
	if err == nil {
		key, err := h.kms.UnwrapKey(ctx, rec.KeyName, rec.Ciphertext, rec.IV)
		if err != nil {
			return nil, nil, apperrors.Wrap(err, "failed to unwrap pending kek")
		}
		h.logger.Warn("resuming interrupted kek migration")
		return key, &rec, nil
	}
	if !apperrors.Is(err, settings.ErrSettingNotFound) {
		return nil, nil, err
	}

	key, err := cryptoService.NewKey()
	if err != nil {
		return nil, nil, err
	}
	wrapped, err := h.wrap(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if err := h.store.Save(ctx, pendingKekSetting, wrappedKekSchema, wrapped); err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to save pending kek")
	}
	return key, wrapped, nil
}

func (h *KekHolder) migrate(ctx context.Context) ([]byte, MigrationReport, error) {
	var report MigrationReport

	key, wrapped, err := h.pendingKey(ctx)
	if err != nil {
		return nil, report, err
	}

	legacy := cryptoService.DeriveKey(h.legacySecret, []byte(legacyKekSalt), cryptoDomain.PBKDF2Iterations)
	defer cryptoDomain.Zero(legacy)

	all, err := h.secrets.ListAllSecrets(ctx)
	if err != nil {
		return nil, report, apperrors.Wrap(err, "failed to list secrets for kek migration")
	}

	for _, secret := range all {
		plaintext, err := cryptoService.Open(legacy, secret.Ciphertext, secret.IV)
		if err != nil {
			if pt, err := cryptoService.Open(key, secret.Ciphertext, secret.IV); err == nil {
				cryptoDomain.Zero(pt)
				report.AlreadyMigrated++
				continue
			}
			report.Failed++
			h.logger.Error("secret could not be migrated to the new kek",
				slog.String("path", secret.Path), slog.Int("version", secret.Version))
			continue
		}

		ct, iv, err := cryptoService.Seal(key, plaintext)
		cryptoDomain.Zero(plaintext)
		if err != nil {
			return nil, report, err
		}
		if err := h.secrets.UpdateSecretCiphertext(ctx, secret.ID, ct, iv); err != nil {
			return nil, report, apperrors.Wrap(err, "failed to store re-encrypted secret")
		}
		report.ReEncrypted++
	}

	err = h.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := h.store.Save(txCtx, WrappedKekSetting, wrappedKekSchema, wrapped); err != nil {
			return err
		}
		return h.store.Delete(txCtx, pendingKekSetting)
	})
	if err != nil {
		return nil, report, apperrors.Wrap(err, "failed to promote migrated kek")
	}
	return key, report, nil
}

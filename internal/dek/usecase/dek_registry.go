package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
	kmsService "github.com/allisson/keyvault/internal/kms/service"
	"github.com/allisson/keyvault/internal/settings"
	"github.com/allisson/keyvault/internal/validation"
)

const (
	// DekKmsKeyName is the KMS key every DEK is wrapped under.
	DekKmsKeyName = "vault-dek-kek"

	dekSchema        = 1
	dekPrefix        = "dek-"
	dekVersionPrefix = "dek-version-"
)

type dekRecord struct {
	Purpose       string                 `json:"purpose"`
	Version       int                    `json:"version"`
	Algorithm     cryptoDomain.Algorithm `json:"algorithm"`
	Wrapped       []byte                 `json:"wrapped"`
	IV            []byte                 `json:"iv"`
	KmsKeyVersion int                    `json:"kmsKeyVersion"`
	CreatedAt     time.Time              `json:"createdAt"`
}

func currentKey(purpose string) string { return dekPrefix + purpose }

func archiveKey(purpose string, version int) string {
	return fmt.Sprintf("%s%s-v%d", dekPrefix, purpose, version)
}

func versionKey(purpose string) string { return dekVersionPrefix + purpose }

type cacheKey struct {
	purpose string
	version int
}

type dekRegistry struct {
	store     *settings.Store
	kms       kmsService.Provider
	aead      cryptoService.AEADManager
	algorithm cryptoDomain.Algorithm
	logger    *slog.Logger

	mu    sync.Mutex
	cache sync.Map // cacheKey -> *dekDomain.Key
}

// NewDekRegistry creates the registry. New DEKs use algorithm.
func NewDekRegistry(
	store *settings.Store,
	kms kmsService.Provider,
	aead cryptoService.AEADManager,
	algorithm cryptoDomain.Algorithm,
	logger *slog.Logger,
) DekRegistry {
	return &dekRegistry{store: store, kms: kms, aead: aead, algorithm: algorithm, logger: logger}
}

func validatePurpose(purpose string) error {
	if purpose == "" || !validation.IsSQLIdentifier(strings.ReplaceAll(purpose, "-", "_")) {
		return apperrors.Wrap(dekDomain.ErrInvalidPurpose, purpose)
	}
	return nil
}

func (r *dekRegistry) unwrap(ctx context.Context, rec *dekRecord) (*dekDomain.Key, error) {
	ck := cacheKey{rec.Purpose, rec.Version}
	if k, ok := r.cache.Load(ck); ok {
		return k.(*dekDomain.Key), nil
	}

	material, err := r.kms.UnwrapKey(ctx, DekKmsKeyName, rec.Wrapped, rec.IV)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to unwrap dek")
	}
	key := &dekDomain.Key{
		Purpose:   rec.Purpose,
		Version:   rec.Version,
		Algorithm: rec.Algorithm,
		Material:  material,
		CreatedAt: rec.CreatedAt,
	}
	r.cache.Store(ck, key)
	return key, nil
}

func (r *dekRegistry) newRecord(ctx context.Context, purpose string, version int) (*dekRecord, error) {
	material, err := cryptoService.NewKey()
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(material)

	wrapped, err := r.kms.WrapKey(ctx, DekKmsKeyName, material)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to wrap dek")
	}
	return &dekRecord{
		Purpose:       purpose,
		Version:       version,
		Algorithm:     r.algorithm,
		Wrapped:       wrapped.Ciphertext,
		IV:            wrapped.IV,
		KmsKeyVersion: wrapped.KeyVersion,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func (r *dekRegistry) Current(ctx context.Context, purpose string) (*dekDomain.Key, error) {
	if err := validatePurpose(purpose); err != nil {
		return nil, err
	}

	var rec dekRecord
	err := r.store.Load(ctx, currentKey(purpose), dekSchema, &rec)
	if err == nil {
		return r.unwrap(ctx, &rec)
	}
	if !apperrors.Is(err, settings.ErrSettingNotFound) {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Load(ctx, currentKey(purpose), dekSchema, &rec); err == nil {
		return r.unwrap(ctx, &rec)
	}

	created, err := r.newRecord(ctx, purpose, 1)
	if err != nil {
		return nil, err
	}
	if err := r.store.Save(ctx, currentKey(purpose), dekSchema, created); err != nil {
		return nil, apperrors.Wrap(err, "failed to save dek")
	}
	info := dekDomain.VersionInfo{Purpose: purpose, CurrentVersion: 1}
	if err := r.store.Save(ctx, versionKey(purpose), dekSchema, &info); err != nil {
		return nil, apperrors.Wrap(err, "failed to save dek version info")
	}
	r.logger.Info("dek created", slog.String("purpose", purpose))
	return r.unwrap(ctx, created)
}

func (r *dekRegistry) Get(ctx context.Context, purpose string, version int) (*dekDomain.Key, error) {
	if err := validatePurpose(purpose); err != nil {
		return nil, err
	}
	if k, ok := r.cache.Load(cacheKey{purpose, version}); ok {
		return k.(*dekDomain.Key), nil
	}

	var rec dekRecord
	err := r.store.Load(ctx, currentKey(purpose), dekSchema, &rec)
	if err == nil && rec.Version == version {
		return r.unwrap(ctx, &rec)
	}
	if err != nil && !apperrors.Is(err, settings.ErrSettingNotFound) {
		return nil, err
	}

	if err := r.store.Load(ctx, archiveKey(purpose, version), dekSchema, &rec); err != nil {
		if apperrors.Is(err, settings.ErrSettingNotFound) {
			return nil, dekDomain.ErrDekNotFound
		}
		return nil, err
	}
	return r.unwrap(ctx, &rec)
}

func (r *dekRegistry) Rotate(ctx context.Context, purpose string) (int, int, error) {
	if _, err := r.Current(ctx, purpose); err != nil {
		return 0, 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var current dekRecord
	if err := r.store.Load(ctx, currentKey(purpose), dekSchema, &current); err != nil {
		return 0, 0, err
	}
	if err := r.store.Save(ctx, archiveKey(purpose, current.Version), dekSchema, &current); err != nil {
		return 0, 0, apperrors.Wrap(err, "failed to archive dek")
	}

	next, err := r.newRecord(ctx, purpose, current.Version+1)
	if err != nil {
		return 0, 0, err
	}
	if err := r.store.Save(ctx, currentKey(purpose), dekSchema, next); err != nil {
		return 0, 0, apperrors.Wrap(err, "failed to save rotated dek")
	}

	now := time.Now().UTC()
	info := dekDomain.VersionInfo{
		Purpose:         purpose,
		CurrentVersion:  next.Version,
		RotatedAt:       &now,
		OldVersionsKept: current.Version,
	}
	if err := r.store.Save(ctx, versionKey(purpose), dekSchema, &info); err != nil {
		return 0, 0, apperrors.Wrap(err, "failed to save dek version info")
	}
	return current.Version, next.Version, nil
}

func (r *dekRegistry) VersionInfo(ctx context.Context, purpose string) (*dekDomain.VersionInfo, error) {
	var info dekDomain.VersionInfo
	if err := r.store.Load(ctx, versionKey(purpose), dekSchema, &info); err != nil {
		if apperrors.Is(err, settings.ErrSettingNotFound) {
			return nil, dekDomain.ErrDekNotFound
		}
		return nil, err
	}
	return &info, nil
}

func (r *dekRegistry) Purposes(ctx context.Context) ([]string, error) {
	keys, err := r.store.Keys(ctx, dekVersionPrefix)
	if err != nil {
		return nil, err
	}
	purposes := make([]string, 0, len(keys))
	for _, k := range keys {
		purposes = append(purposes, strings.TrimPrefix(k, dekVersionPrefix))
	}
	return purposes, nil
}

func (r *dekRegistry) EncryptField(ctx context.Context, purpose, plaintext string) (string, error) {
	key, err := r.Current(ctx, purpose)
	if err != nil {
		return "", err
	}
	cipher, err := r.aead.CreateCipher(key.Material, key.Algorithm)
	if err != nil {
		return "", err
	}
	ct, iv, err := cipher.Encrypt([]byte(plaintext), nil)
	if err != nil {
		return "", err
	}
	return dekDomain.Field{Version: key.Version, IV: iv, Ciphertext: ct}.String(), nil
}

func (r *dekRegistry) open(key *dekDomain.Key, field dekDomain.Field) ([]byte, error) {
	cipher, err := r.aead.CreateCipher(key.Material, key.Algorithm)
	if err != nil {
		return nil, err
	}
	return cipher.Decrypt(field.Ciphertext, field.IV, nil)
}

func (r *dekRegistry) DecryptField(ctx context.Context, purpose, framed string) (string, error) {
	field, ok := dekDomain.ParseField(framed)
	if !ok {
		return "", apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, "value is not an encrypted field")
	}

	if key, err := r.Get(ctx, purpose, field.Version); err == nil {
		if pt, err := r.open(key, field); err == nil {
			return string(pt), nil
		}
	}

	info, err := r.VersionInfo(ctx, purpose)
	if err != nil {
		return "", err
	}
	for v := info.CurrentVersion; v >= 1; v-- {
		if v == field.Version {
			continue
		}
		key, err := r.Get(ctx, purpose, v)
		if err != nil {
			continue
		}
		if pt, err := r.open(key, field); err == nil {
			return string(pt), nil
		}
	}
	return "", apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, "no dek version opens the field")
}

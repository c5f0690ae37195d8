package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	"github.com/allisson/keyvault/internal/database"
	apperrors "github.com/allisson/keyvault/internal/errors"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
	customValidation "github.com/allisson/keyvault/internal/validation"
)

// Audit actions written by the secret store.
const (
	ActionSecretCreate = "secret.create"
	ActionSecretUpdate = "secret.update"
	ActionSecretDelete = "secret.delete"
	ActionSecretImport = "secret.import"

	resourceSecret = "secret"
)

type secretUseCase struct {
	txManager   database.TxManager
	repo        SecretRepository
	keys        KeySource
	audit       auditUsecase.Recorder
	maxVersions int
	logger      *slog.Logger
	now         func() time.Time
}

// NewSecretUseCase creates the secret store. maxVersions is recorded in default metadata.
func NewSecretUseCase(
	txManager database.TxManager,
	repo SecretRepository,
	keys KeySource,
	audit auditUsecase.Recorder,
	maxVersions int,
	logger *slog.Logger,
) SecretUseCase {
	return &secretUseCase{
		txManager:   txManager,
		repo:        repo,
		keys:        keys,
		audit:       audit,
		maxVersions: maxVersions,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func validatePath(path string) error {
	if err := validation.Validate(path, validation.Required, customValidation.SecretPath); err != nil {
		return apperrors.Wrap(secretsDomain.ErrInvalidPath, err.Error())
	}
	return nil
}

func (s *secretUseCase) Get(ctx context.Context, path string, version int) (*secretsDomain.SecretValue, error) {
	path = secretsDomain.NormalizePath(path)
	if err := validatePath(path); err != nil {
		return nil, err
	}

	var (
		secret *secretsDomain.Secret
		err    error
	)
	if version > 0 {
		secret, err = s.repo.GetSecretVersion(ctx, path, version)
	} else {
		secret, err = s.repo.GetSecret(ctx, path)
	}
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, secretsDomain.ErrSecretNotFound
		}
		return nil, err
	}

	key, err := s.keys.Key(ctx)
	if err != nil {
		return nil, err
	}

	plaintext, err := cryptoService.Open(key, secret.Ciphertext, secret.IV)
	if err != nil {
		s.logger.Error("secret decryption failed",
			slog.String("path", path), slog.Int("version", secret.Version))
		return nil, apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, path)
	}

	return &secretsDomain.SecretValue{
		ID:        secret.ID,
		Path:      secret.Path,
		Version:   secret.Version,
		Value:     plaintext,
		Metadata:  secret.Metadata,
		CreatedAt: secret.CreatedAt,
	}, nil
}

// Put writes a new version. Concurrent writers to one path serialize on the unique
// (path, version) constraint; the loser retries once with a fresh version number.
func (s *secretUseCase) Put(
	ctx context.Context,
	path string,
	value []byte,
	opts secretsDomain.PutOptions,
) (int, error) {
	path = secretsDomain.NormalizePath(path)
	if err := validatePath(path); err != nil {
		return 0, err
	}
	if len(value) == 0 {
		return 0, secretsDomain.ErrEmptyValue
	}

	key, err := s.keys.Key(ctx)
	if err != nil {
		return 0, err
	}
	ciphertext, iv, err := cryptoService.Seal(key, value)
	if err != nil {
		return 0, err
	}

	var version int
	write := func() error {
		return s.txManager.WithTx(ctx, func(txCtx context.Context) error {
			latest, err := s.repo.GetLatestVersion(txCtx, path)
			if err != nil {
				return err
			}
			version = latest + 1

			metadata := opts.Metadata
			if metadata == "" {
				metadata = fmt.Sprintf(`{"versions":%d,"maxVersions":%d}`, version, s.maxVersions)
			}

			now := s.now()
			secret := &secretsDomain.Secret{
				ID:         uuid.Must(uuid.NewV7()),
				Path:       path,
				Version:    version,
				Ciphertext: ciphertext,
				IV:         iv,
				Metadata:   metadata,
				CreatedBy:  opts.Actor,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := s.repo.CreateSecret(txCtx, secret); err != nil {
				return err
			}

			action := ActionSecretUpdate
			if version == 1 {
				action = ActionSecretCreate
			}
			return s.audit.Record(txCtx, auditDomain.Entry{
				Action:       action,
				ResourceType: resourceSecret,
				ResourceID:   path,
				ActorID:      opts.Actor,
				Details:      map[string]any{"version": version},
			})
		})
	}

	err = write()
	if apperrors.Is(err, apperrors.ErrConflict) {
		err = write()
	}
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to put secret")
	}
	return version, nil
}

func (s *secretUseCase) Delete(ctx context.Context, path string, actor string) error {
	path = secretsDomain.NormalizePath(path)
	if err := validatePath(path); err != nil {
		return err
	}

	return s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.GetSecret(txCtx, path); err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return secretsDomain.ErrSecretNotFound
			}
			return err
		}
		if err := s.repo.DeleteSecret(txCtx, path, s.now()); err != nil {
			return apperrors.Wrap(err, "failed to delete secret")
		}
		return s.audit.Record(txCtx, auditDomain.Entry{
			Action:       ActionSecretDelete,
			ResourceType: resourceSecret,
			ResourceID:   path,
			ActorID:      actor,
		})
	})
}

// List returns the direct children of prefix. A child with further segments is
// reported once as a folder with a trailing slash.
func (s *secretUseCase) List(ctx context.Context, prefix string) ([]secretsDomain.Entry, error) {
	prefix = secretsDomain.NormalizePath(prefix)
	match := prefix
	if match != "" {
		match += "/"
	}

	secrets, err := s.repo.ListSecrets(ctx, match)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secrets")
	}

	seen := make(map[string]bool)
	entries := make([]secretsDomain.Entry, 0, len(secrets))
	for _, secret := range secrets {
		rest := strings.TrimPrefix(secret.Path, match)
		if rest == secret.Path && match != "" {
			continue
		}
		name, _, nested := strings.Cut(rest, "/")
		if nested {
			name += "/"
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		entries = append(entries, secretsDomain.Entry{Name: name, IsFolder: nested})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *secretUseCase) Versions(ctx context.Context, path string) ([]secretsDomain.VersionInfo, error) {
	path = secretsDomain.NormalizePath(path)
	if err := validatePath(path); err != nil {
		return nil, err
	}

	secrets, err := s.repo.ListSecretVersions(ctx, path)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secret versions")
	}
	if len(secrets) == 0 {
		return nil, secretsDomain.ErrSecretNotFound
	}

	versions := make([]secretsDomain.VersionInfo, 0, len(secrets))
	for _, secret := range secrets {
		versions = append(versions, secretsDomain.VersionInfo{
			Version:   secret.Version,
			CreatedAt: secret.CreatedAt,
			DeletedAt: secret.DeletedAt,
		})
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	return versions, nil
}

// Import writes every value under prefix. A failed item is reported and skipped.
func (s *secretUseCase) Import(
	ctx context.Context,
	values map[string]string,
	prefix string,
	actor string,
) (*secretsDomain.ImportResult, error) {
	prefix = secretsDomain.NormalizePath(prefix)

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	result := &secretsDomain.ImportResult{}
	for _, name := range names {
		path := secretsDomain.NormalizePath(prefix + "/" + name)
		if _, err := s.Put(ctx, path, []byte(values[name]), secretsDomain.PutOptions{Actor: actor}); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		result.Imported++
	}

	if err := s.audit.Record(ctx, auditDomain.Entry{
		Action:       ActionSecretImport,
		ResourceType: resourceSecret,
		ResourceID:   prefix,
		ActorID:      actor,
		Details:      map[string]any{"imported": result.Imported, "failed": result.Failed},
	}); err != nil {
		return result, err
	}
	return result, nil
}

func (s *secretUseCase) Stats(ctx context.Context) (secretsDomain.Stats, error) {
	return s.repo.SecretStats(ctx)
}

package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	apperrors "github.com/allisson/keyvault/internal/errors"
	kmsDomain "github.com/allisson/keyvault/internal/kms/domain"
	"github.com/allisson/keyvault/internal/settings"
)

const (
	remoteKeySchema    = 1
	remoteKeyPrefix    = "kms-remote-key-"
	healthCheckTimeout = 5 * time.Second
)

// RemoteConfig configures a RemoteProvider.
type RemoteConfig struct {
	// KeyURI is a gocloud.dev secrets URL. A "{key}" placeholder is replaced with the key name,
	// otherwise every logical key maps to the same remote key.
	KeyURI string
	// FallbackSecret enables a PBKDF2-derived local wrap when the keeper is unreachable.
	FallbackSecret string
}

// RemoteProvider delegates cryptography to an external key custody service. Only key
// metadata is stored locally; material never leaves the custody boundary.
type RemoteProvider struct {
	opener KeeperOpener
	cfg    RemoteConfig
	store  *settings.Store
	logger *slog.Logger

	mu      sync.Mutex
	keepers map[string]Keeper
	now     func() time.Time
}

// NewRemoteProvider creates a RemoteProvider. Keepers are opened lazily per key.
func NewRemoteProvider(
	opener KeeperOpener,
	cfg RemoteConfig,
	store *settings.Store,
	logger *slog.Logger,
) (*RemoteProvider, error) {
	if cfg.KeyURI == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "remote kms key uri is required")
	}
	return &RemoteProvider{
		opener:  opener,
		cfg:     cfg,
		store:   store,
		logger:  logger,
		keepers: make(map[string]Keeper),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *RemoteProvider) Name() string { return kmsDomain.ProviderRemote }

func (p *RemoteProvider) keeper(ctx context.Context, keyName string) (Keeper, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if k, ok := p.keepers[keyName]; ok {
		return k, nil
	}
	k, err := p.opener.OpenKeeper(ctx, strings.ReplaceAll(p.cfg.KeyURI, "{key}", keyName))
	if err != nil {
		return nil, apperrors.Wrap(kmsDomain.ErrProviderUnavailable, err.Error())
	}
	p.keepers[keyName] = k
	return k, nil
}

// IsHealthy round-trips a sentinel through the keeper.
func (p *RemoteProvider) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	k, err := p.keeper(ctx, "health")
	if err != nil {
		return false
	}
	ct, err := k.Encrypt(ctx, []byte("health-check"))
	if err != nil {
		return false
	}
	pt, err := k.Decrypt(ctx, ct)
	return err == nil && string(pt) == "health-check"
}

func (p *RemoteProvider) CreateKey(ctx context.Context, req kmsDomain.CreateKeyRequest) (*kmsDomain.KeyInfo, error) {
	if req.Name == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "key name is required")
	}
	if req.Type == "" {
		req.Type = kmsDomain.KeyTypeRSA2048
	}
	if !req.Type.Valid() {
		return nil, apperrors.Wrap(kmsDomain.ErrUnsupportedKeyType, string(req.Type))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createLocked(ctx, req)
}

func (p *RemoteProvider) createLocked(ctx context.Context, req kmsDomain.CreateKeyRequest) (*kmsDomain.KeyInfo, error) {
	exists, err := p.store.Exists(ctx, remoteKeyPrefix+req.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, kmsDomain.ErrKeyExists
	}
	info := kmsDomain.KeyInfo{
		Name:      req.Name,
		Type:      req.Type,
		Version:   1,
		Enabled:   true,
		Provider:  kmsDomain.ProviderRemote,
		Tags:      req.Tags,
		CreatedAt: p.now(),
	}
	if err := p.store.Save(ctx, remoteKeyPrefix+req.Name, remoteKeySchema, info); err != nil {
		return nil, apperrors.Wrap(err, "failed to save kms key metadata")
	}
	return &info, nil
}

func (p *RemoteProvider) GetKeyInfo(ctx context.Context, name string) (*kmsDomain.KeyInfo, error) {
	var info kmsDomain.KeyInfo
	if err := p.store.Load(ctx, remoteKeyPrefix+name, remoteKeySchema, &info); err != nil {
		if apperrors.Is(err, settings.ErrSettingNotFound) {
			return nil, kmsDomain.ErrKeyNotFound
		}
		return nil, err
	}
	return &info, nil
}

func (p *RemoteProvider) ListKeys(ctx context.Context) ([]*kmsDomain.KeyInfo, error) {
	keys, err := p.store.Keys(ctx, remoteKeyPrefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	infos := make([]*kmsDomain.KeyInfo, 0, len(keys))
	for _, key := range keys {
		info, err := p.GetKeyInfo(ctx, strings.TrimPrefix(key, remoteKeyPrefix))
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// RotateKey bumps the recorded version. The custody service rotates the material and keeps
// prior versions able to decrypt, so existing ciphertext stays readable.
func (p *RemoteProvider) RotateKey(ctx context.Context, name string) (*kmsDomain.KeyInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := p.GetKeyInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	now := p.now()
	info.Version++
	info.RotatedAt = &now
	if err := p.store.Save(ctx, remoteKeyPrefix+name, remoteKeySchema, info); err != nil {
		return nil, apperrors.Wrap(err, "failed to save kms key metadata")
	}
	return info, nil
}

func (p *RemoteProvider) ensureKey(ctx context.Context, name string) (*kmsDomain.KeyInfo, error) {
	info, err := p.GetKeyInfo(ctx, name)
	if err == nil {
		if !info.Enabled {
			return nil, kmsDomain.ErrKeyDisabled
		}
		return info, nil
	}
	if !apperrors.Is(err, kmsDomain.ErrKeyNotFound) {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if info, err := p.GetKeyInfo(ctx, name); err == nil {
		return info, nil
	}
	return p.createLocked(ctx, kmsDomain.CreateKeyRequest{Name: name, Type: kmsDomain.KeyTypeRSA2048})
}

func (p *RemoteProvider) Encrypt(ctx context.Context, keyName string, plaintext []byte) (*kmsDomain.EncryptResult, error) {
	info, err := p.ensureKey(ctx, keyName)
	if err != nil {
		return nil, err
	}
	k, err := p.keeper(ctx, keyName)
	if err != nil {
		return nil, err
	}
	ct, err := k.Encrypt(ctx, plaintext)
	if err != nil {
		return nil, apperrors.Wrap(kmsDomain.ErrProviderUnavailable, err.Error())
	}
	return &kmsDomain.EncryptResult{
		Ciphertext: ct,
		KeyName:    keyName,
		KeyVersion: info.Version,
		Algorithm:  kmsDomain.AlgorithmRemoteWrap,
	}, nil
}

func (p *RemoteProvider) Decrypt(ctx context.Context, keyName string, ciphertext, _ []byte) ([]byte, error) {
	k, err := p.keeper(ctx, keyName)
	if err != nil {
		return nil, err
	}
	pt, err := k.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, err.Error())
	}
	return pt, nil
}

// WrapKey wraps through the keeper. When the keeper is unreachable and a fallback secret is
// configured, the key is wrapped locally and marked AES-256-GCM-LOCAL.
func (p *RemoteProvider) WrapKey(ctx context.Context, keyName string, rawKey []byte) (*kmsDomain.EncryptResult, error) {
	res, err := p.Encrypt(ctx, keyName, rawKey)
	if err == nil {
		return res, nil
	}
	if p.cfg.FallbackSecret == "" || !apperrors.Is(err, kmsDomain.ErrProviderUnavailable) {
		return nil, err
	}

	p.logger.Warn("remote kms wrap failed, wrapping with local fallback key",
		slog.String("key_name", keyName), slog.Any("error", err))

	wrapKey := p.fallbackKey(keyName)
	defer cryptoDomain.Zero(wrapKey)
	ct, iv, sealErr := cryptoService.Seal(wrapKey, rawKey)
	if sealErr != nil {
		return nil, sealErr
	}
	return &kmsDomain.EncryptResult{
		Ciphertext: ct,
		IV:         iv,
		KeyName:    keyName,
		Algorithm:  kmsDomain.AlgorithmLocalWrap,
	}, nil
}

// UnwrapKey dispatches on the IV: keeper ciphertext carries none, local fallback wraps always do.
func (p *RemoteProvider) UnwrapKey(ctx context.Context, keyName string, wrapped, iv []byte) ([]byte, error) {
	if len(iv) == 0 {
		return p.Decrypt(ctx, keyName, wrapped, nil)
	}
	if p.cfg.FallbackSecret == "" {
		return nil, apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, "local fallback wrap without fallback secret")
	}
	wrapKey := p.fallbackKey(keyName)
	defer cryptoDomain.Zero(wrapKey)
	return cryptoService.Open(wrapKey, wrapped, iv)
}

func (p *RemoteProvider) fallbackKey(keyName string) []byte {
	return cryptoService.DeriveKey(p.cfg.FallbackSecret, []byte("ivf-kek-"+keyName), cryptoDomain.PBKDF2Iterations)
}

// Close releases every opened keeper.
func (p *RemoteProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, k := range p.keepers {
		if err := k.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.keepers, name)
	}
	return apperrors.Join(errs...)
}

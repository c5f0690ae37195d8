package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	apperrors "github.com/allisson/keyvault/internal/errors"
	kmsDomain "github.com/allisson/keyvault/internal/kms/domain"
	"github.com/allisson/keyvault/internal/settings"
)

const (
	localKeySchema     = 1
	localKeyPrefix     = "kms-key-"
	localArchivePrefix = "kms-archive-"
	localMasterSalt    = "ivf-kms-local-master"
)

type localKeyRecord struct {
	Info       kmsDomain.KeyInfo `json:"info"`
	Material   []byte            `json:"material"`
	MaterialIV []byte            `json:"materialIv"`
}

// LocalProvider keeps AES-256 key material in the settings table, sealed under a
// master key derived from the configured master secret.
type LocalProvider struct {
	store     *settings.Store
	masterKey []byte
	mu        sync.Mutex
	now       func() time.Time
}

// NewLocalProvider derives the master key once. masterSecret must not be empty.
func NewLocalProvider(store *settings.Store, masterSecret string) (*LocalProvider, error) {
	if masterSecret == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "local kms master secret is required")
	}
	return &LocalProvider{
		store:     store,
		masterKey: cryptoService.DeriveKey(masterSecret, []byte(localMasterSalt), cryptoDomain.PBKDF2Iterations),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *LocalProvider) Name() string { return kmsDomain.ProviderLocal }

func (p *LocalProvider) IsHealthy(context.Context) bool {
	return len(p.masterKey) == cryptoDomain.KeySize
}

func (p *LocalProvider) CreateKey(ctx context.Context, req kmsDomain.CreateKeyRequest) (*kmsDomain.KeyInfo, error) {
	if req.Name == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "key name is required")
	}
	if req.Type == "" {
		req.Type = kmsDomain.KeyTypeAES256
	}
	if req.Type != kmsDomain.KeyTypeAES256 {
		return nil, apperrors.Wrap(kmsDomain.ErrUnsupportedKeyType, string(req.Type))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createLocked(ctx, req)
}

func (p *LocalProvider) createLocked(ctx context.Context, req kmsDomain.CreateKeyRequest) (*kmsDomain.KeyInfo, error) {
	exists, err := p.store.Exists(ctx, localKeyPrefix+req.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, kmsDomain.ErrKeyExists
	}

	info := kmsDomain.KeyInfo{
		Name:      req.Name,
		Type:      kmsDomain.KeyTypeAES256,
		Version:   1,
		Enabled:   true,
		Provider:  kmsDomain.ProviderLocal,
		Tags:      req.Tags,
		CreatedAt: p.now(),
	}
	rec, err := p.newRecord(info)
	if err != nil {
		return nil, err
	}
	if err := p.store.Save(ctx, localKeyPrefix+req.Name, localKeySchema, rec); err != nil {
		return nil, apperrors.Wrap(err, "failed to save kms key")
	}
	return &rec.Info, nil
}

func (p *LocalProvider) newRecord(info kmsDomain.KeyInfo) (*localKeyRecord, error) {
	material, err := cryptoService.NewKey()
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(material)

	sealed, iv, err := cryptoService.Seal(p.masterKey, material)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to seal key material")
	}
	return &localKeyRecord{Info: info, Material: sealed, MaterialIV: iv}, nil
}

func (p *LocalProvider) load(ctx context.Context, key string) (*localKeyRecord, error) {
	var rec localKeyRecord
	if err := p.store.Load(ctx, key, localKeySchema, &rec); err != nil {
		if apperrors.Is(err, settings.ErrSettingNotFound) {
			return nil, kmsDomain.ErrKeyNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (p *LocalProvider) GetKeyInfo(ctx context.Context, name string) (*kmsDomain.KeyInfo, error) {
	rec, err := p.load(ctx, localKeyPrefix+name)
	if err != nil {
		return nil, err
	}
	return &rec.Info, nil
}

func (p *LocalProvider) ListKeys(ctx context.Context) ([]*kmsDomain.KeyInfo, error) {
	keys, err := p.store.Keys(ctx, localKeyPrefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	infos := make([]*kmsDomain.KeyInfo, 0, len(keys))
	for _, key := range keys {
		rec, err := p.load(ctx, key)
		if err != nil {
			return nil, err
		}
		infos = append(infos, &rec.Info)
	}
	return infos, nil
}

// RotateKey archives the current version and installs fresh material as version N+1.
func (p *LocalProvider) RotateKey(ctx context.Context, name string) (*kmsDomain.KeyInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.load(ctx, localKeyPrefix+name)
	if err != nil {
		return nil, err
	}

	archiveKey := fmt.Sprintf("%s%s-v%d", localArchivePrefix, name, current.Info.Version)
	if err := p.store.Save(ctx, archiveKey, localKeySchema, current); err != nil {
		return nil, apperrors.Wrap(err, "failed to archive kms key")
	}

	now := p.now()
	info := current.Info
	info.Version++
	info.RotatedAt = &now

	next, err := p.newRecord(info)
	if err != nil {
		return nil, err
	}
	if err := p.store.Save(ctx, localKeyPrefix+name, localKeySchema, next); err != nil {
		return nil, apperrors.Wrap(err, "failed to save rotated kms key")
	}
	return &next.Info, nil
}

// current returns the current record, creating an AES-256 key on first use.
func (p *LocalProvider) current(ctx context.Context, name string) (*localKeyRecord, error) {
	rec, err := p.load(ctx, localKeyPrefix+name)
	if err == nil {
		return rec, nil
	}
	if !apperrors.Is(err, kmsDomain.ErrKeyNotFound) {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if rec, err := p.load(ctx, localKeyPrefix+name); err == nil {
		return rec, nil
	}
	if _, err := p.createLocked(ctx, kmsDomain.CreateKeyRequest{Name: name}); err != nil {
		return nil, err
	}
	return p.load(ctx, localKeyPrefix+name)
}

func (p *LocalProvider) material(rec *localKeyRecord) ([]byte, error) {
	material, err := cryptoService.Open(p.masterKey, rec.Material, rec.MaterialIV)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open kms key material")
	}
	return material, nil
}

func (p *LocalProvider) Encrypt(ctx context.Context, keyName string, plaintext []byte) (*kmsDomain.EncryptResult, error) {
	return p.seal(ctx, keyName, plaintext, kmsDomain.AlgorithmLocalGCM)
}

func (p *LocalProvider) WrapKey(ctx context.Context, keyName string, rawKey []byte) (*kmsDomain.EncryptResult, error) {
	return p.seal(ctx, keyName, rawKey, kmsDomain.AlgorithmLocalGCM)
}

func (p *LocalProvider) seal(ctx context.Context, keyName string, data []byte, alg string) (*kmsDomain.EncryptResult, error) {
	rec, err := p.current(ctx, keyName)
	if err != nil {
		return nil, err
	}
	if !rec.Info.Enabled {
		return nil, kmsDomain.ErrKeyDisabled
	}

	material, err := p.material(rec)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(material)

	ct, iv, err := cryptoService.Seal(material, data)
	if err != nil {
		return nil, err
	}
	return &kmsDomain.EncryptResult{
		Ciphertext: ct,
		IV:         iv,
		KeyName:    keyName,
		KeyVersion: rec.Info.Version,
		Algorithm:  alg,
	}, nil
}

func (p *LocalProvider) Decrypt(ctx context.Context, keyName string, ciphertext, iv []byte) ([]byte, error) {
	return p.open(ctx, keyName, ciphertext, iv)
}

func (p *LocalProvider) UnwrapKey(ctx context.Context, keyName string, wrapped, iv []byte) ([]byte, error) {
	return p.open(ctx, keyName, wrapped, iv)
}

// open tries the current version first, then archived versions newest to oldest.
func (p *LocalProvider) open(ctx context.Context, keyName string, ciphertext, iv []byte) ([]byte, error) {
	rec, err := p.load(ctx, localKeyPrefix+keyName)
	if err != nil {
		return nil, err
	}

	candidates := []*localKeyRecord{rec}
	for v := rec.Info.Version - 1; v >= 1; v-- {
		archived, err := p.load(ctx, fmt.Sprintf("%s%s-v%d", localArchivePrefix, keyName, v))
		if err != nil {
			if apperrors.Is(err, kmsDomain.ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		candidates = append(candidates, archived)
	}

	for _, c := range candidates {
		material, err := p.material(c)
		if err != nil {
			return nil, err
		}
		plaintext, err := cryptoService.Open(material, ciphertext, iv)
		cryptoDomain.Zero(material)
		if err == nil {
			return plaintext, nil
		}
	}
	return nil, apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, "kms key "+keyName)
}

package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	kmsDomain "github.com/allisson/keyvault/internal/kms/domain"
)

// FallbackProvider routes calls to the primary provider while it is healthy and to the
// local provider otherwise. Health is checked at most once per interval.
type FallbackProvider struct {
	primary  Provider
	local    Provider
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	checkedAt time.Time
	healthy   bool
	checking  bool
	now       func() time.Time
}

// NewFallbackProvider wraps primary with local as the degraded path.
func NewFallbackProvider(primary, local Provider, interval time.Duration, logger *slog.Logger) *FallbackProvider {
	if interval <= 0 {
		interval = time.Minute
	}
	return &FallbackProvider{
		primary:  primary,
		local:    local,
		interval: interval,
		logger:   logger,
		healthy:  true,
		now:      time.Now,
	}
}

func (p *FallbackProvider) Name() string { return p.primary.Name() }

// active returns the provider to route to. The health check runs outside the lock, and
// callers arriving while a check is in flight use the cached state.
func (p *FallbackProvider) active(ctx context.Context) Provider {
	p.mu.Lock()
	due := !p.checking && (p.checkedAt.IsZero() || p.now().Sub(p.checkedAt) >= p.interval)
	if !due {
		defer p.mu.Unlock()
		return p.pick()
	}
	p.checking = true
	p.mu.Unlock()

	healthy := p.primary.IsHealthy(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.checking = false
	p.checkedAt = p.now()
	if healthy != p.healthy {
		if healthy {
			p.logger.Info("kms provider recovered", slog.String("provider", p.primary.Name()))
		} else {
			p.logger.Warn("kms provider unhealthy, degrading to local provider",
				slog.String("provider", p.primary.Name()))
		}
	}
	p.healthy = healthy
	return p.pick()
}

func (p *FallbackProvider) pick() Provider {
	if p.healthy {
		return p.primary
	}
	return p.local
}

func (p *FallbackProvider) IsHealthy(ctx context.Context) bool {
	return p.active(ctx).IsHealthy(ctx)
}

func (p *FallbackProvider) CreateKey(ctx context.Context, req kmsDomain.CreateKeyRequest) (*kmsDomain.KeyInfo, error) {
	return p.active(ctx).CreateKey(ctx, req)
}

func (p *FallbackProvider) GetKeyInfo(ctx context.Context, name string) (*kmsDomain.KeyInfo, error) {
	return p.active(ctx).GetKeyInfo(ctx, name)
}

func (p *FallbackProvider) ListKeys(ctx context.Context) ([]*kmsDomain.KeyInfo, error) {
	return p.active(ctx).ListKeys(ctx)
}

func (p *FallbackProvider) RotateKey(ctx context.Context, name string) (*kmsDomain.KeyInfo, error) {
	return p.active(ctx).RotateKey(ctx, name)
}

func (p *FallbackProvider) Encrypt(ctx context.Context, keyName string, plaintext []byte) (*kmsDomain.EncryptResult, error) {
	return p.active(ctx).Encrypt(ctx, keyName, plaintext)
}

func (p *FallbackProvider) WrapKey(ctx context.Context, keyName string, rawKey []byte) (*kmsDomain.EncryptResult, error) {
	return p.active(ctx).WrapKey(ctx, keyName, rawKey)
}

// Decrypt tries the active provider first and then the other one, since data written
// while degraded is only readable by the local provider.
func (p *FallbackProvider) Decrypt(ctx context.Context, keyName string, ciphertext, iv []byte) ([]byte, error) {
	first, second := p.order(ctx)
	pt, err := first.Decrypt(ctx, keyName, ciphertext, iv)
	if err == nil {
		return pt, nil
	}
	if pt, err2 := second.Decrypt(ctx, keyName, ciphertext, iv); err2 == nil {
		return pt, nil
	}
	return nil, err
}

func (p *FallbackProvider) UnwrapKey(ctx context.Context, keyName string, wrapped, iv []byte) ([]byte, error) {
	first, second := p.order(ctx)
	key, err := first.UnwrapKey(ctx, keyName, wrapped, iv)
	if err == nil {
		return key, nil
	}
	if key, err2 := second.UnwrapKey(ctx, keyName, wrapped, iv); err2 == nil {
		return key, nil
	}
	return nil, err
}

func (p *FallbackProvider) order(ctx context.Context) (Provider, Provider) {
	if p.active(ctx) == p.primary {
		return p.primary, p.local
	}
	return p.local, p.primary
}

package app

import (
	"fmt"

	policyUsecase "github.com/allisson/keyvault/internal/policy/usecase"
	ztService "github.com/allisson/keyvault/internal/zerotrust/service"
	ztUsecase "github.com/allisson/keyvault/internal/zerotrust/usecase"
)

type access struct {
	policyUseCase      lazy[policyUsecase.PolicyUseCase]
	tokenUseCase       lazy[policyUsecase.TokenUseCase]
	breakGlass         lazy[*ztService.BreakGlassService]
	threatDetector     lazy[*ztService.ThreatDetector]
	zeroTrustUseCase   lazy[ztUsecase.ZeroTrustUseCase]
	sessionUseCase     lazy[ztUsecase.SessionUseCase]
	continuousAccess   lazy[ztUsecase.ContinuousAccessUseCase]
	deviceTrustUseCase lazy[ztUsecase.DeviceTrustUseCase]
}

func (c *Container) ztConfig() ztUsecase.Config {
	return ztUsecase.Config{
		FreshSessionWindow:    c.config.ZTFreshSessionWindow,
		MaxSessionAge:         c.config.ZTMaxSessionAge,
		SessionDuration:       c.config.ZTSessionDuration,
		MaxConcurrentSessions: c.config.ZTMaxConcurrentSessions,
		PolicyCacheTTL:        c.config.ZTPolicyCacheTTL,
	}
}

// PolicyUseCase returns the path policy engine.
func (c *Container) PolicyUseCase() (policyUsecase.PolicyUseCase, error) {
	return c.policyUseCase.get(func() (policyUsecase.PolicyUseCase, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for policy use case: %w", err)
		}
		repo, err := c.Store()
		if err != nil {
			return nil, err
		}
		audit, err := c.AuditUseCase()
		if err != nil {
			return nil, err
		}
		events, err := c.EventPublisher()
		if err != nil {
			return nil, err
		}
		return policyUsecase.NewPolicyUseCase(txManager, repo, repo, audit, events, c.Logger()), nil
	})
}

// TokenUseCase returns the vault token issuer and validator.
func (c *Container) TokenUseCase() (policyUsecase.TokenUseCase, error) {
	return c.tokenUseCase.get(func() (policyUsecase.TokenUseCase, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for token use case: %w", err)
		}
		repo, err := c.Store()
		if err != nil {
			return nil, err
		}
		policies, err := c.PolicyUseCase()
		if err != nil {
			return nil, err
		}
		audit, err := c.AuditUseCase()
		if err != nil {
			return nil, err
		}
		return policyUsecase.NewTokenUseCase(txManager, repo, policies, audit, c.Logger()), nil
	})
}

// BreakGlass returns the one-time override code service.
func (c *Container) BreakGlass() (*ztService.BreakGlassService, error) {
	return c.breakGlass.get(func() (*ztService.BreakGlassService, error) {
		store, err := c.Settings()
		if err != nil {
			return nil, fmt.Errorf("failed to get settings for break-glass service: %w", err)
		}
		return ztService.NewBreakGlassService(store), nil
	})
}

// ThreatDetector returns the request threat scorer. Its sliding windows live in memory.
func (c *Container) ThreatDetector() (*ztService.ThreatDetector, error) {
	return c.threatDetector.get(func() (*ztService.ThreatDetector, error) {
		events, err := c.Store()
		if err != nil {
			return nil, err
		}
		cfg := ztService.DefaultThreatConfig()
		if c.config.ZTBruteForceThreshold > 0 {
			cfg.BruteForceThreshold = c.config.ZTBruteForceThreshold
		}
		if c.config.ZTBruteForceWindow > 0 {
			cfg.BruteForceWindow = c.config.ZTBruteForceWindow
		}
		if c.config.ZTImpossibleTravelWindow > 0 {
			cfg.ImpossibleTravelWindow = c.config.ZTImpossibleTravelWindow
		}
		return ztService.NewThreatDetector(cfg, events, c.Logger())
	})
}

// ZeroTrustUseCase returns the per-action access decision engine.
func (c *Container) ZeroTrustUseCase() (ztUsecase.ZeroTrustUseCase, error) {
	return c.zeroTrustUseCase.get(func() (ztUsecase.ZeroTrustUseCase, error) {
		repo, err := c.Store()
		if err != nil {
			return nil, err
		}
		breakGlass, err := c.BreakGlass()
		if err != nil {
			return nil, err
		}
		audit, err := c.AuditUseCase()
		if err != nil {
			return nil, err
		}
		events, err := c.EventPublisher()
		if err != nil {
			return nil, err
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, err
		}
		counters, err := c.VaultCounters()
		if err != nil {
			return nil, err
		}
		useCase := ztUsecase.NewZeroTrustUseCase(repo, repo, breakGlass, audit, events, c.ztConfig(), c.Logger())
		return ztUsecase.NewZeroTrustUseCaseWithMetrics(useCase, businessMetrics, counters), nil
	})
}

// SessionUseCase returns the adaptive session manager.
func (c *Container) SessionUseCase() (ztUsecase.SessionUseCase, error) {
	return c.sessionUseCase.get(func() (ztUsecase.SessionUseCase, error) {
		repo, err := c.Store()
		if err != nil {
			return nil, err
		}
		store, err := c.Settings()
		if err != nil {
			return nil, fmt.Errorf("failed to get settings for session use case: %w", err)
		}
		tokens, err := c.TokenUseCase()
		if err != nil {
			return nil, err
		}
		audit, err := c.AuditUseCase()
		if err != nil {
			return nil, err
		}
		events, err := c.EventPublisher()
		if err != nil {
			return nil, err
		}
		return ztUsecase.NewSessionUseCase(repo, store, tokens, audit, events, c.ztConfig(), c.Logger()), nil
	})
}

// ContinuousAccessUseCase returns the live-session re-evaluator.
func (c *Container) ContinuousAccessUseCase() (ztUsecase.ContinuousAccessUseCase, error) {
	return c.continuousAccess.get(func() (ztUsecase.ContinuousAccessUseCase, error) {
		zeroTrust, err := c.ZeroTrustUseCase()
		if err != nil {
			return nil, err
		}
		repo, err := c.Store()
		if err != nil {
			return nil, err
		}
		sessions, err := c.SessionUseCase()
		if err != nil {
			return nil, err
		}
		audit, err := c.AuditUseCase()
		if err != nil {
			return nil, err
		}
		events, err := c.EventPublisher()
		if err != nil {
			return nil, err
		}
		return ztUsecase.NewContinuousAccessUseCase(zeroTrust, repo, sessions, audit, events,
			c.ztConfig(), c.Logger()), nil
	})
}

// DeviceTrustUseCase returns device registration and grading.
func (c *Container) DeviceTrustUseCase() (ztUsecase.DeviceTrustUseCase, error) {
	return c.deviceTrustUseCase.get(func() (ztUsecase.DeviceTrustUseCase, error) {
		repo, err := c.Store()
		if err != nil {
			return nil, err
		}
		audit, err := c.AuditUseCase()
		if err != nil {
			return nil, err
		}
		return ztUsecase.NewDeviceTrustUseCase(repo, audit, c.Logger()), nil
	})
}

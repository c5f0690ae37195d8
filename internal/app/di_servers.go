package app

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/allisson/keyvault/internal/database"
	"github.com/allisson/keyvault/internal/http"
	leaseHTTP "github.com/allisson/keyvault/internal/lease/http"
	secretsHTTP "github.com/allisson/keyvault/internal/secrets/http"
	"github.com/allisson/keyvault/internal/worker"
)

type servers struct {
	httpServer    lazy[*http.Server]
	metricsServer lazy[*http.MetricsServer]
	maintenance   lazy[*worker.Maintenance]
}

// HTTPServer returns the vault API server. ctx bounds background middleware state and is
// only used on the first call.
func (c *Container) HTTPServer(ctx context.Context) (*http.Server, error) {
	return c.httpServer.get(func() (*http.Server, error) {
		return c.initHTTPServer(ctx)
	})
}

// MetricsServer returns the Prometheus scrape server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	return c.metricsServer.get(func() (*http.MetricsServer, error) {
		provider, err := c.MetricsProvider()
		if err != nil {
			return nil, err
		}
		if provider == nil {
			return nil, nil
		}
		return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider), nil
	})
}

// Maintenance returns the background sweep worker.
func (c *Container) Maintenance() (*worker.Maintenance, error) {
	return c.maintenance.get(c.initMaintenance)
}

func (c *Container) readinessChecks() (map[string]http.ReadinessCheck, error) {
	checks := make(map[string]http.ReadinessCheck)

	if c.config.DBDriver == database.DriverMemory {
		checks["database"] = func(context.Context) error { return nil }
	} else {
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for readiness: %w", err)
		}
		checks["database"] = db.PingContext
	}

	kms, err := c.KMSProvider()
	if err != nil {
		return nil, err
	}
	checks["kms"] = func(ctx context.Context) error {
		if !kms.IsHealthy(ctx) {
			return errors.New("kms provider " + kms.Name() + " is unhealthy")
		}
		return nil
	}
	return checks, nil
}

func (c *Container) initHTTPServer(ctx context.Context) (*http.Server, error) {
	logger := c.Logger()

	checks, err := c.readinessChecks()
	if err != nil {
		return nil, err
	}
	secrets, err := c.SecretUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret use case for http server: %w", err)
	}
	leases, err := c.LeaseUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get lease use case for http server: %w", err)
	}
	policies, err := c.PolicyUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get policy use case for http server: %w", err)
	}
	tokens, err := c.TokenUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get token use case for http server: %w", err)
	}
	zeroTrust, err := c.ZeroTrustUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get zero-trust use case for http server: %w", err)
	}
	threats, err := c.ThreatDetector()
	if err != nil {
		return nil, fmt.Errorf("failed to get threat detector for http server: %w", err)
	}
	sessions, err := c.SessionUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get session use case for http server: %w", err)
	}
	continuousAccess, err := c.ContinuousAccessUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get continuous access for http server: %w", err)
	}
	audit, err := c.AuditUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit use case for http server: %w", err)
	}
	events, err := c.EventPublisher()
	if err != nil {
		return nil, fmt.Errorf("failed to get event publisher for http server: %w", err)
	}
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}

	authorizer := http.NewPolicyAuthorizer(policies)
	deps := http.Dependencies{
		SecretHandler: secretsHTTP.NewSecretHandler(secrets, logger),
		LeaseHandler:  leaseHTTP.NewLeaseHandler(leases, authorizer, logger),
		Tokens:        tokens,
		Authorizer:    authorizer,
		ZeroTrust:     http.NewZeroTrustGuard(zeroTrust, threats, sessions, continuousAccess, audit, events, logger),
		Audit:         audit,
	}

	var meterProvider metric.MeterProvider
	if provider != nil {
		meterProvider = provider.MeterProvider()
	}

	server := http.NewServer(checks, c.config.ServerHost, c.config.ServerPort, logger)
	server.SetupRouter(ctx, c.config, deps, meterProvider)
	return server, nil
}

func (c *Container) initMaintenance() (*worker.Maintenance, error) {
	leases, err := c.LeaseUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get lease use case for maintenance: %w", err)
	}
	credentials, err := c.CredentialUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get credential use case for maintenance: %w", err)
	}
	tokens, err := c.TokenUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get token use case for maintenance: %w", err)
	}
	rotations, err := c.SecretRotationUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret rotation for maintenance: %w", err)
	}
	threats, err := c.ThreatDetector()
	if err != nil {
		return nil, fmt.Errorf("failed to get threat detector for maintenance: %w", err)
	}
	continuousAccess, err := c.ContinuousAccessUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get continuous access for maintenance: %w", err)
	}
	store, err := c.Store()
	if err != nil {
		return nil, err
	}
	gauges, err := c.VaultGauges()
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

	return worker.NewMaintenance(worker.Config{
		Interval:     c.config.MaintenanceInterval,
		InitialDelay: c.config.MaintenanceInitialDelay,
		MaxBackoff:   c.config.MaintenanceMaxBackoff,
	}, worker.Deps{
		Leases:      leases,
		Credentials: credentials,
		Tokens:      tokens,
		Sessions:    continuousAccess,
		Rotations:   rotations,
		Pruner:      threats,
		State:       store,
		Gauges:      gauges,
		Metrics:     businessMetrics,
		Counters:    counters,
	}, c.Logger()), nil
}

package app

import (
	"fmt"

	"gopkg.in/natefinch/lumberjack.v2"

	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	"github.com/allisson/keyvault/internal/metrics"
)

type observability struct {
	metricsProvider lazy[*metrics.Provider]
	businessMetrics lazy[metrics.BusinessMetrics]
	vaultGauges     lazy[metrics.VaultGauges]
	vaultCounters   lazy[metrics.VaultCounters]
	cefWriter       lazy[*lumberjack.Logger]
	publisher       lazy[*auditService.Publisher]
	auditUseCase    lazy[auditUsecase.AuditLogUseCase]
}

// MetricsProvider returns the OpenTelemetry provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	return c.metricsProvider.get(func() (*metrics.Provider, error) {
		if !c.config.MetricsEnabled {
			return nil, nil
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics provider: %w", err)
		}
		return provider, nil
	})
}

// BusinessMetrics returns the operation counters. They are no-ops when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	return c.businessMetrics.get(func() (metrics.BusinessMetrics, error) {
		provider, err := c.MetricsProvider()
		if err != nil {
			return nil, err
		}
		if provider == nil {
			return metrics.NewNoOpBusinessMetrics(), nil
		}
		return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	})
}

// VaultGauges returns the state gauges refreshed by the maintenance worker.
func (c *Container) VaultGauges() (metrics.VaultGauges, error) {
	return c.vaultGauges.get(func() (metrics.VaultGauges, error) {
		provider, err := c.MetricsProvider()
		if err != nil {
			return nil, err
		}
		if provider == nil {
			return metrics.NoOpVaultGauges{}, nil
		}
		return metrics.NewVaultGauges(provider.MeterProvider(), c.config.MetricsNamespace)
	})
}

// VaultCounters returns the revocation, rotation and zero-trust event counters.
func (c *Container) VaultCounters() (metrics.VaultCounters, error) {
	return c.vaultCounters.get(func() (metrics.VaultCounters, error) {
		provider, err := c.MetricsProvider()
		if err != nil {
			return nil, err
		}
		if provider == nil {
			return metrics.NoOpVaultCounters{}, nil
		}
		return metrics.NewVaultCounters(provider.MeterProvider(), c.config.MetricsNamespace)
	})
}

// CEFWriter returns the rotating CEF log, or nil when SIEM_CEF_FILE is empty.
func (c *Container) CEFWriter() (*lumberjack.Logger, error) {
	return c.cefWriter.get(func() (*lumberjack.Logger, error) {
		if c.config.SIEMCEFFile == "" {
			return nil, nil
		}
		return &lumberjack.Logger{
			Filename:   c.config.SIEMCEFFile,
			MaxSize:    c.config.SIEMCEFMaxSizeMB,
			MaxBackups: c.config.SIEMCEFMaxBackups,
			MaxAge:     c.config.SIEMCEFMaxAgeDays,
			Compress:   true,
		}, nil
	})
}

// EventPublisher returns the security event fan-out.
func (c *Container) EventPublisher() (*auditService.Publisher, error) {
	return c.publisher.get(func() (*auditService.Publisher, error) {
		store, err := c.Store()
		if err != nil {
			return nil, fmt.Errorf("failed to get store for event publisher: %w", err)
		}
		cef, err := c.CEFWriter()
		if err != nil {
			return nil, err
		}

		cfg := auditService.PublisherConfig{
			WebhookURL:     c.config.SIEMWebhookURL,
			WebhookTimeout: c.config.SIEMWebhookTimeout,
		}
		if cef != nil {
			cfg.CEFWriter = cef
		}
		return auditService.NewPublisher(c.Logger(), store, cfg), nil
	})
}

// AuditUseCase returns the signed audit log.
func (c *Container) AuditUseCase() (auditUsecase.AuditLogUseCase, error) {
	return c.auditUseCase.get(func() (auditUsecase.AuditLogUseCase, error) {
		store, err := c.Store()
		if err != nil {
			return nil, fmt.Errorf("failed to get store for audit use case: %w", err)
		}
		keys, err := c.KekHolder()
		if err != nil {
			return nil, fmt.Errorf("failed to get kek holder for audit use case: %w", err)
		}
		return auditUsecase.NewAuditLogUseCase(store, auditService.NewAuditSigner(), keys, c.Logger()), nil
	})
}

package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusinessMetrics records use-case operations by domain ("secrets", "lease", "worker")
// and operation ("secret_put", "maintenance_sweep"). status is "success" or "error".
type BusinessMetrics interface {
	RecordOperation(ctx context.Context, domain, operation, status string)
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)
}

type businessMetrics struct {
	operations metric.Int64Counter
	durations  metric.Float64Histogram
}

// NewBusinessMetrics registers the operation counter and latency histogram.
func NewBusinessMetrics(meterProvider metric.MeterProvider, namespace string) (BusinessMetrics, error) {
	meter := meterProvider.Meter(namespace)

	operations, err := meter.Int64Counter(
		fmt.Sprintf("%s_operations_total", namespace),
		metric.WithDescription("Vault use-case operations by domain and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}
	durations, err := meter.Float64Histogram(
		fmt.Sprintf("%s_operation_duration_seconds", namespace),
		metric.WithDescription("Vault use-case latency by domain and outcome"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(LatencyBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	return &businessMetrics{operations: operations, durations: durations}, nil
}

func operationAttrs(domain, operation, status string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}

func (b *businessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	b.operations.Add(ctx, 1, operationAttrs(domain, operation, status))
}

func (b *businessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	b.durations.Record(ctx, duration.Seconds(), operationAttrs(domain, operation, status))
}

// NoOpBusinessMetrics discards every measurement.
type NoOpBusinessMetrics struct{}

func NewNoOpBusinessMetrics() BusinessMetrics {
	return &NoOpBusinessMetrics{}
}

func (n *NoOpBusinessMetrics) RecordOperation(context.Context, string, string, string) {}

func (n *NoOpBusinessMetrics) RecordDuration(context.Context, string, string, time.Duration, string) {
}

// Revocation kinds reported to VaultCounters.
const (
	RevokedLease      = "lease"
	RevokedCredential = "credential"
	RevokedToken      = "token"
	RevokedSession    = "session"
)

// VaultCounters counts security-relevant vault events that are not tied to one request.
type VaultCounters interface {
	// RecordRevocations counts objects revoked by expiry or re-evaluation.
	RecordRevocations(ctx context.Context, kind string, n int)
	// RecordRotations counts rotation outcomes for a target ("secret", "dek", "database").
	RecordRotations(ctx context.Context, target string, succeeded, failed int)
	// RecordAccessDenied counts zero-trust denials by action and risk level.
	RecordAccessDenied(ctx context.Context, action, riskLevel string)
	// RecordBreakGlass counts break-glass overrides that were accepted.
	RecordBreakGlass(ctx context.Context, action string)
}

type vaultCounters struct {
	revocations metric.Int64Counter
	rotations   metric.Int64Counter
	denials     metric.Int64Counter
	breakGlass  metric.Int64Counter
}

// NewVaultCounters registers the vault event counters.
func NewVaultCounters(meterProvider metric.MeterProvider, namespace string) (VaultCounters, error) {
	meter := meterProvider.Meter(namespace)
	counters := []struct {
		name string
		desc string
		dst  *metric.Int64Counter
	}{
		{"revocations_total", "Leases, credentials, tokens and sessions revoked by the vault", nil},
		{"rotations_total", "Rotation attempts by target and outcome", nil},
		{"zerotrust_denials_total", "Zero-trust access denials by action and risk level", nil},
		{"break_glass_overrides_total", "Accepted break-glass overrides by action", nil},
	}
	v := &vaultCounters{}
	counters[0].dst = &v.revocations
	counters[1].dst = &v.rotations
	counters[2].dst = &v.denials
	counters[3].dst = &v.breakGlass

	for _, c := range counters {
		counter, err := meter.Int64Counter(
			fmt.Sprintf("%s_%s", namespace, c.name),
			metric.WithDescription(c.desc),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}
	return v, nil
}

func (v *vaultCounters) RecordRevocations(ctx context.Context, kind string, n int) {
	if n <= 0 {
		return
	}
	v.revocations.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}

func (v *vaultCounters) RecordRotations(ctx context.Context, target string, succeeded, failed int) {
	if succeeded > 0 {
		v.rotations.Add(ctx, int64(succeeded), metric.WithAttributes(
			attribute.String("target", target), attribute.String("status", "success")))
	}
	if failed > 0 {
		v.rotations.Add(ctx, int64(failed), metric.WithAttributes(
			attribute.String("target", target), attribute.String("status", "error")))
	}
}

func (v *vaultCounters) RecordAccessDenied(ctx context.Context, action, riskLevel string) {
	v.denials.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action), attribute.String("risk_level", riskLevel)))
}

func (v *vaultCounters) RecordBreakGlass(ctx context.Context, action string) {
	v.breakGlass.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// NoOpVaultCounters discards every event.
type NoOpVaultCounters struct{}

func (NoOpVaultCounters) RecordRevocations(context.Context, string, int)     {}
func (NoOpVaultCounters) RecordRotations(context.Context, string, int, int)  {}
func (NoOpVaultCounters) RecordAccessDenied(context.Context, string, string) {}
func (NoOpVaultCounters) RecordBreakGlass(context.Context, string)           {}

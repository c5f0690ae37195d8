package metrics

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

// VaultSnapshot is the state exported as gauges.
type VaultSnapshot struct {
	ActiveLeases      int64
	ActiveCredentials int64
	ActiveSchedules   int64
	Secrets           int64
}

// VaultGauges exports the latest VaultSnapshot as observable gauges. The maintenance
// worker refreshes the snapshot; collection only reads it.
type VaultGauges interface {
	Update(snapshot VaultSnapshot)
}

type vaultGauges struct {
	current atomic.Pointer[VaultSnapshot]
}

// NewVaultGauges registers the vault gauges on meterProvider.
func NewVaultGauges(meterProvider metric.MeterProvider, namespace string) (VaultGauges, error) {
	meter := meterProvider.Meter(namespace)
	g := &vaultGauges{}
	g.current.Store(&VaultSnapshot{})

	gauges := []struct {
		name  string
		desc  string
		value func(*VaultSnapshot) int64
	}{
		{"active_leases", "Number of active leases", func(s *VaultSnapshot) int64 { return s.ActiveLeases }},
		{"active_dynamic_credentials", "Number of unrevoked, unexpired dynamic credentials",
			func(s *VaultSnapshot) int64 { return s.ActiveCredentials }},
		{"active_rotation_schedules", "Number of active rotation schedules",
			func(s *VaultSnapshot) int64 { return s.ActiveSchedules }},
		{"secrets_total", "Number of live secret paths", func(s *VaultSnapshot) int64 { return s.Secrets }},
	}

	for _, gauge := range gauges {
		value := gauge.value
		_, err := meter.Int64ObservableGauge(
			fmt.Sprintf("%s_%s", namespace, gauge.name),
			metric.WithDescription(gauge.desc),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(value(g.current.Load()))
				return nil
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s gauge: %w", gauge.name, err)
		}
	}
	return g, nil
}

func (g *vaultGauges) Update(snapshot VaultSnapshot) {
	g.current.Store(&snapshot)
}

// NoOpVaultGauges discards updates when metrics are disabled.
type NoOpVaultGauges struct{}

func (NoOpVaultGauges) Update(VaultSnapshot) {}

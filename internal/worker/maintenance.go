// Package worker runs the periodic maintenance sweep: expiring leases, dynamic
// credentials and tokens, re-evaluating live sessions, executing due rotations,
// refreshing gauges and pruning zero-trust sliding windows.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	credentialDomain "github.com/allisson/keyvault/internal/credential/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
	leaseDomain "github.com/allisson/keyvault/internal/lease/domain"
	"github.com/allisson/keyvault/internal/metrics"
	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
)

const metricsDomain = "worker"

// Config holds the sweep schedule.
type Config struct {
	Interval     time.Duration
	InitialDelay time.Duration
	MaxBackoff   time.Duration
}

// ExpirySweeper revokes whatever has expired. Leases and dynamic credentials both satisfy it.
type ExpirySweeper interface {
	RevokeExpired(ctx context.Context) (int, error)
}

type TokenSweeper interface {
	RevokeInvalid(ctx context.Context) (int, error)
}

// SessionSweeper re-evaluates live sessions and revokes those needing re-authentication.
type SessionSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type RotationRunner interface {
	ExecutePending(ctx context.Context) rotationDomain.BatchResult
}

type WindowPruner interface {
	Prune() int
}

// StateReader feeds the vault gauges.
type StateReader interface {
	ListActiveLeases(ctx context.Context, now time.Time) ([]*leaseDomain.Lease, error)
	ListCredentials(ctx context.Context, includeRevoked bool) ([]*credentialDomain.Credential, error)
	ListSchedules(ctx context.Context, activeOnly bool) ([]*rotationDomain.Schedule, error)
	SecretStats(ctx context.Context) (secretsDomain.Stats, error)
}

// Deps are the collaborators of one sweep. Nil members are skipped.
type Deps struct {
	Leases      ExpirySweeper
	Credentials ExpirySweeper
	Tokens      TokenSweeper
	Sessions    SessionSweeper
	Rotations   RotationRunner
	Pruner      WindowPruner
	State       StateReader
	Gauges      metrics.VaultGauges
	Metrics     metrics.BusinessMetrics
	Counters    metrics.VaultCounters
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	LeasesRevoked      int
	CredentialsRevoked int
	TokensRevoked      int
	SessionsRevoked    int
	Rotations          rotationDomain.BatchResult
	WindowsPruned      int
}

// Maintenance runs the sweep on a schedule.
type Maintenance struct {
	config  Config
	deps    Deps
	logger  *slog.Logger
	backoff *backoff.Backoff
	now     func() time.Time
}

// NewMaintenance creates the worker. Repeated sweep failures stretch the wait between
// sweeps from Interval up to MaxBackoff; a successful sweep resets it.
func NewMaintenance(config Config, deps Deps, logger *slog.Logger) *Maintenance {
	if config.MaxBackoff < config.Interval {
		config.MaxBackoff = config.Interval
	}
	if deps.Gauges == nil {
		deps.Gauges = metrics.NoOpVaultGauges{}
	}
	if deps.Metrics == nil {
		deps.Metrics = &metrics.NoOpBusinessMetrics{}
	}
	if deps.Counters == nil {
		deps.Counters = metrics.NoOpVaultCounters{}
	}
	return &Maintenance{
		config: config,
		deps:   deps,
		logger: logger,
		backoff: &backoff.Backoff{
			Min:    config.Interval,
			Max:    config.MaxBackoff,
			Factor: 2,
			Jitter: true,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Start blocks until ctx is cancelled.
func (m *Maintenance) Start(ctx context.Context) error {
	m.logger.Info("starting maintenance worker",
		slog.Duration("interval", m.config.Interval),
		slog.Duration("initial_delay", m.config.InitialDelay),
	)

	timer := time.NewTimer(m.config.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("stopping maintenance worker")
			return nil
		case <-timer.C:
			_, err := m.RunOnce(ctx)
			timer.Reset(m.nextDelay(err))
		}
	}
}

func (m *Maintenance) nextDelay(sweepErr error) time.Duration {
	if sweepErr == nil {
		m.backoff.Reset()
		return m.config.Interval
	}
	d := m.backoff.Duration()
	m.logger.Warn("maintenance sweep failed, backing off",
		slog.Duration("next_run_in", d),
		slog.Any("error", sweepErr),
	)
	return d
}

// RunOnce executes every step. A failing step is logged and the remaining steps still
// run; the returned error joins every step failure.
func (m *Maintenance) RunOnce(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	report := &SweepReport{}
	var errs []error

	step := func(name string, fn func() (int, error), into *int) {
		n, err := fn()
		if err != nil {
			m.logger.Error("maintenance step failed", slog.String("step", name), slog.Any("error", err))
			errs = append(errs, apperrors.Wrap(err, name))
			return
		}
		*into = n
	}

	if m.deps.Leases != nil {
		step("lease_expiry", func() (int, error) { return m.deps.Leases.RevokeExpired(ctx) }, &report.LeasesRevoked)
	}
	if m.deps.Credentials != nil {
		step("credential_expiry", func() (int, error) { return m.deps.Credentials.RevokeExpired(ctx) },
			&report.CredentialsRevoked)
	}
	if m.deps.Tokens != nil {
		step("token_expiry", func() (int, error) { return m.deps.Tokens.RevokeInvalid(ctx) }, &report.TokensRevoked)
	}
	if m.deps.Sessions != nil {
		step("session_reevaluation", func() (int, error) { return m.deps.Sessions.Sweep(ctx) },
			&report.SessionsRevoked)
	}
	if m.deps.Rotations != nil {
		report.Rotations = m.deps.Rotations.ExecutePending(ctx)
	}
	if m.deps.State != nil {
		if err := m.refreshGauges(ctx); err != nil {
			m.logger.Error("maintenance step failed", slog.String("step", "gauges"), slog.Any("error", err))
			errs = append(errs, apperrors.Wrap(err, "gauges"))
		}
	}
	if m.deps.Pruner != nil {
		report.WindowsPruned = m.deps.Pruner.Prune()
	}

	err := apperrors.Join(errs...)
	status := "success"
	if err != nil {
		status = "error"
	}
	m.deps.Counters.RecordRevocations(ctx, metrics.RevokedLease, report.LeasesRevoked)
	m.deps.Counters.RecordRevocations(ctx, metrics.RevokedCredential, report.CredentialsRevoked)
	m.deps.Counters.RecordRevocations(ctx, metrics.RevokedToken, report.TokensRevoked)
	m.deps.Counters.RecordRevocations(ctx, metrics.RevokedSession, report.SessionsRevoked)
	m.deps.Counters.RecordRotations(ctx, "secret", report.Rotations.Succeeded, report.Rotations.Failed)
	m.deps.Metrics.RecordOperation(ctx, metricsDomain, "maintenance_sweep", status)
	m.deps.Metrics.RecordDuration(ctx, metricsDomain, "maintenance_sweep", time.Since(start), status)

	m.logger.Info("maintenance sweep completed",
		slog.Int("leases_revoked", report.LeasesRevoked),
		slog.Int("credentials_revoked", report.CredentialsRevoked),
		slog.Int("tokens_revoked", report.TokensRevoked),
		slog.Int("sessions_revoked", report.SessionsRevoked),
		slog.Int("rotations_succeeded", report.Rotations.Succeeded),
		slog.Int("rotations_failed", report.Rotations.Failed),
		slog.Int("windows_pruned", report.WindowsPruned),
	)
	return report, err
}

func (m *Maintenance) refreshGauges(ctx context.Context) error {
	leases, err := m.deps.State.ListActiveLeases(ctx, m.now())
	if err != nil {
		return err
	}
	creds, err := m.deps.State.ListCredentials(ctx, false)
	if err != nil {
		return err
	}
	schedules, err := m.deps.State.ListSchedules(ctx, true)
	if err != nil {
		return err
	}
	stats, err := m.deps.State.SecretStats(ctx)
	if err != nil {
		return err
	}
	m.deps.Gauges.Update(metrics.VaultSnapshot{
		ActiveLeases:      int64(len(leases)),
		ActiveCredentials: int64(len(creds)),
		ActiveSchedules:   int64(len(schedules)),
		Secrets:           int64(stats.Paths),
	})
	return nil
}

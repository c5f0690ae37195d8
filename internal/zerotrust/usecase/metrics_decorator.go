package usecase

import (
	"context"
	"time"

	"github.com/allisson/keyvault/internal/metrics"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

const metricsDomain = "zerotrust"

// zeroTrustUseCaseWithMetrics counts access decisions. Policy management passes through.
type zeroTrustUseCaseWithMetrics struct {
	ZeroTrustUseCase
	metrics  metrics.BusinessMetrics
	counters metrics.VaultCounters
}

// NewZeroTrustUseCaseWithMetrics wraps useCase so every CheckAccess is timed and every
// denial and accepted break-glass override is counted.
func NewZeroTrustUseCaseWithMetrics(
	useCase ZeroTrustUseCase,
	m metrics.BusinessMetrics,
	counters metrics.VaultCounters,
) ZeroTrustUseCase {
	return &zeroTrustUseCaseWithMetrics{ZeroTrustUseCase: useCase, metrics: m, counters: counters}
}

func (z *zeroTrustUseCaseWithMetrics) CheckAccess(
	ctx context.Context,
	req ztDomain.AccessRequest,
) (*ztDomain.Decision, error) {
	start := time.Now()
	d, err := z.ZeroTrustUseCase.CheckAccess(ctx, req)

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case !d.Allowed:
		status = "denied"
		z.counters.RecordAccessDenied(ctx, string(req.Action), d.RiskLevel.String())
	case d.BreakGlassUsed:
		z.counters.RecordBreakGlass(ctx, string(req.Action))
	}
	z.metrics.RecordOperation(ctx, metricsDomain, "check_access", status)
	z.metrics.RecordDuration(ctx, metricsDomain, "check_access", time.Since(start), status)
	return d, err
}

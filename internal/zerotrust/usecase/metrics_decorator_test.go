package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auditService "github.com/allisson/keyvault/internal/audit/service"
	"github.com/allisson/keyvault/internal/metrics"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

// recordingCounters keeps the zero-trust events it receives.
type recordingCounters struct {
	metrics.NoOpVaultCounters
	denied     []string
	breakGlass []string
}

func (r *recordingCounters) RecordAccessDenied(_ context.Context, action, riskLevel string) {
	r.denied = append(r.denied, action+"/"+riskLevel)
}

func (r *recordingCounters) RecordBreakGlass(_ context.Context, action string) {
	r.breakGlass = append(r.breakGlass, action)
}

func TestZeroTrustUseCaseWithMetrics(t *testing.T) {
	ctx := context.Background()
	expect := func(m *mockBusinessMetrics, status string) {
		m.On("RecordOperation", ctx, "zerotrust", "check_access", status).Return().Once()
		m.On("RecordDuration", ctx, "zerotrust", "check_access", mock.AnythingOfType("time.Duration"), status).
			Return().
			Once()
	}

	t.Run("Success_AllowedIsNotCounted", func(t *testing.T) {
		f := newZTFixture(t, auditService.NoopPublisher{}, true)
		m := &mockBusinessMetrics{}
		counters := &recordingCounters{}
		uc := NewZeroTrustUseCaseWithMetrics(f.uc, m, counters)
		expect(m, "success")

		d, err := uc.CheckAccess(ctx, ztDomain.AccessRequest{
			Action: ztDomain.ActionSecretRead,
			Context: ztDomain.AccessContext{
				UserID:           "alice",
				DeviceID:         "dev-1",
				Country:          "VN",
				CurrentAuthLevel: ztDomain.AuthSession,
			},
		})
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Empty(t, counters.denied)
		m.AssertExpectations(t)
	})

	t.Run("Success_DenialCountedWithRisk", func(t *testing.T) {
		f := newZTFixture(t, auditService.NoopPublisher{}, true)
		m := &mockBusinessMetrics{}
		counters := &recordingCounters{}
		uc := NewZeroTrustUseCaseWithMetrics(f.uc, m, counters)
		expect(m, "denied")

		d, err := uc.CheckAccess(ctx, ztDomain.AccessRequest{
			Action:  ztDomain.ActionSecretDelete,
			Context: ztDomain.AccessContext{UserID: "alice", CurrentAuthLevel: ztDomain.AuthSession},
		})
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, []string{"SecretDelete/" + d.RiskLevel.String()}, counters.denied)
		m.AssertExpectations(t)
	})

	t.Run("Success_BreakGlassCounted", func(t *testing.T) {
		f := newZTFixture(t, auditService.NoopPublisher{}, true)
		m := &mockBusinessMetrics{}
		counters := &recordingCounters{}
		uc := NewZeroTrustUseCaseWithMetrics(f.uc, m, counters)
		expect(m, "success")

		issued, err := f.breakGlass.Issue(ctx, "admin", time.Hour)
		require.NoError(t, err)

		d, err := uc.CheckAccess(ctx, ztDomain.AccessRequest{
			Action: ztDomain.ActionSecretWrite,
			Context: ztDomain.AccessContext{
				UserID:           "alice",
				DeviceID:         "dev-1",
				Country:          "VN",
				CurrentAuthLevel: ztDomain.AuthSession,
			},
			BreakGlassCode: issued.Code,
		})
		require.NoError(t, err)
		assert.True(t, d.BreakGlassUsed)
		assert.Equal(t, []string{"SecretWrite"}, counters.breakGlass)
		assert.Empty(t, counters.denied)
		m.AssertExpectations(t)
	})

	t.Run("Success_PolicyManagementPassesThrough", func(t *testing.T) {
		f := newZTFixture(t, auditService.NoopPublisher{}, true)
		uc := NewZeroTrustUseCaseWithMetrics(f.uc, metrics.NewNoOpBusinessMetrics(), metrics.NoOpVaultCounters{})

		policies, err := uc.ListPolicies(ctx)
		require.NoError(t, err)
		assert.Len(t, policies, 7)
	})
}

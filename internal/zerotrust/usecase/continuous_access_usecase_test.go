package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditService "github.com/allisson/keyvault/internal/audit/service"
	"github.com/allisson/keyvault/internal/settings"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

func TestContinuousAccessUseCase_Evaluate(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	newCAE := func(t *testing.T, events auditService.EventPublisher) (*continuousAccessUseCase, *ztFixture) {
		f := newZTFixture(t, auditService.NoopPublisher{}, true)
		sessions := NewSessionUseCase(f.store, settings.NewStore(f.store), &mockTokenRevoker{}, f.audit,
			auditService.NoopPublisher{}, DefaultConfig(), testLogger())
		uc := NewContinuousAccessUseCase(f.uc, f.store, sessions, f.audit, events, DefaultConfig(),
			testLogger()).(*continuousAccessUseCase)
		uc.now = func() time.Time { return now }
		return uc, f
	}
	healthy := ztDomain.SessionContext{
		SessionID:        "s1",
		UserID:           "alice",
		DeviceID:         "dev-1",
		IPAddress:        "1.1.1.1",
		Country:          "VN",
		CurrentAuthLevel: ztDomain.AuthSession,
		SessionStartedAt: now.Add(-time.Hour),
	}

	t.Run("Success_HealthySession", func(t *testing.T) {
		uc, _ := newCAE(t, auditService.NoopPublisher{})

		d, err := uc.Evaluate(ctx, healthy)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	tests := []struct {
		name   string
		mutate func(sc *ztDomain.SessionContext)
		level  ztDomain.AuthLevel
	}{
		{"Success_MaxAgeExceeded", func(sc *ztDomain.SessionContext) { sc.SessionStartedAt = now.Add(-9 * time.Hour) }, ztDomain.AuthPassword},
		{"Success_IPChanged", func(sc *ztDomain.SessionContext) { sc.IPChanged = true }, ztDomain.AuthPassword},
		{"Success_CountryChanged", func(sc *ztDomain.SessionContext) { sc.CountryChanged = true }, ztDomain.AuthMFA},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &mockPublisher{}
			events.On("Publish", mock.Anything, mock.MatchedBy(func(e auditDomain.SecurityEvent) bool {
				return e.EventType == auditDomain.EventContinuousAccessDeny && e.Severity == auditDomain.SeverityHigh
			})).Once()
			uc, f := newCAE(t, events)

			sc := healthy
			tt.mutate(&sc)
			d, err := uc.Evaluate(ctx, sc)
			require.NoError(t, err)
			assert.False(t, d.Allowed)
			assert.True(t, d.RequiresReauth)
			assert.Equal(t, tt.level, d.RequiredAuthLevel)
			events.AssertExpectations(t)

			logs, err := f.store.ListAuditLogs(ctx, auditDomain.Filter{Action: ActionSessionDenied})
			require.NoError(t, err)
			require.Len(t, logs, 1)
			assert.Equal(t, "s1", logs[0].ResourceID)
		})
	}

	t.Run("Success_ZeroTrustDenial", func(t *testing.T) {
		uc, f := newCAE(t, auditService.NoopPublisher{})

		sc := healthy
		sc.CurrentAuthLevel = ztDomain.AuthNone
		d, err := uc.Evaluate(ctx, sc)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.True(t, d.RequiresReauth)
		assert.Contains(t, d.Reason, "Zero-trust re-evaluation failed")
		assert.Equal(t, 1, f.denials(t))
	})
}

func TestContinuousAccessUseCase_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	f := newZTFixture(t, auditService.NoopPublisher{}, true)
	sessions := NewSessionUseCase(f.store, settings.NewStore(f.store), &mockTokenRevoker{}, f.audit,
		auditService.NoopPublisher{}, DefaultConfig(), testLogger())
	uc := NewContinuousAccessUseCase(f.uc, f.store, sessions, f.audit, auditService.NoopPublisher{},
		DefaultConfig(), testLogger()).(*continuousAccessUseCase)
	uc.now = func() time.Time { return now }

	fresh := &ztDomain.Session{
		ID: "fresh", UserID: "alice", IPAddress: "1.1.1.1", DeviceFingerprint: "dev-1", Country: "VN",
		CreatedAt: now.Add(-time.Hour), LastActivityAt: now, ExpiresAt: now.Add(time.Hour),
	}
	stale := &ztDomain.Session{
		ID: "stale", UserID: "bob", IPAddress: "2.2.2.2", DeviceFingerprint: "dev-2", Country: "VN",
		CreatedAt: now.Add(-9 * time.Hour), LastActivityAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, f.store.CreateSession(ctx, fresh))
	require.NoError(t, f.store.CreateSession(ctx, stale))

	revoked, err := uc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, revoked)

	got, err := f.store.GetSession(ctx, "stale")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.Equal(t, "Session expired: maximum age exceeded", got.RevokeReason)

	got, err = f.store.GetSession(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, got.Revoked)
}

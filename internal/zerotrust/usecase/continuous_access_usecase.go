package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

// ActionSessionDenied is audited when a live session fails re-evaluation.
const ActionSessionDenied = "session.denied"

const (
	caeSource         = "ContinuousAccessEvaluator"
	caeAction         = "session.evaluate"
	resourceSession   = "session"
	eventSessionAge   = "session.expired"
	eventIPChanged    = "session.ip_changed"
	eventCountryMoved = "session.country_changed"
	eventZTDenied     = "session.zt_denied"
)

type continuousAccessUseCase struct {
	zeroTrust ZeroTrustUseCase
	sessions  ActiveSessionLister
	revoker   SessionRevoker
	audit     auditUsecase.Recorder
	events    auditService.EventPublisher
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewContinuousAccessUseCase re-checks live sessions against age, context drift and the
// SecretRead zero-trust policy.
func NewContinuousAccessUseCase(
	zeroTrust ZeroTrustUseCase,
	sessions ActiveSessionLister,
	revoker SessionRevoker,
	audit auditUsecase.Recorder,
	events auditService.EventPublisher,
	cfg Config,
	logger *slog.Logger,
) ContinuousAccessUseCase {
	return &continuousAccessUseCase{
		zeroTrust: zeroTrust,
		sessions:  sessions,
		revoker:   revoker,
		audit:     audit,
		events:    events,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (u *continuousAccessUseCase) Evaluate(ctx context.Context, sc ztDomain.SessionContext) (*ztDomain.CaeDecision, error) {
	now := u.now()
	deny := func(kind, reason string, level ztDomain.AuthLevel) (*ztDomain.CaeDecision, error) {
		u.publish(ctx, sc, kind, reason)
		if err := u.audit.Record(ctx, auditDomain.Entry{
			Action:       ActionSessionDenied,
			ResourceType: resourceSession,
			ResourceID:   sc.SessionID,
			ActorID:      sc.UserID,
			Details: map[string]any{
				"check":     kind,
				"reason":    reason,
				"ipAddress": sc.IPAddress,
				"country":   sc.Country,
			},
		}); err != nil {
			return nil, err
		}
		return &ztDomain.CaeDecision{
			Allowed:           false,
			Reason:            reason,
			RequiresReauth:    true,
			RequiredAuthLevel: level,
			EvaluatedAt:       now,
		}, nil
	}

	if now.Sub(sc.SessionStartedAt) > u.cfg.MaxSessionAge {
		return deny(eventSessionAge, "Session expired: maximum age exceeded", ztDomain.AuthPassword)
	}
	if sc.IPChanged {
		return deny(eventIPChanged, "IP address changed: re-authentication required", ztDomain.AuthPassword)
	}
	if sc.CountryChanged {
		return deny(eventCountryMoved, "Country changed: possible session hijack", ztDomain.AuthMFA)
	}

	decision, err := u.zeroTrust.CheckAccess(ctx, ztDomain.AccessRequest{
		Action: ztDomain.ActionSecretRead,
		Context: ztDomain.AccessContext{
			UserID:                   sc.UserID,
			DeviceID:                 sc.DeviceID,
			IPAddress:                sc.IPAddress,
			Country:                  sc.Country,
			CurrentAuthLevel:         sc.CurrentAuthLevel,
			LastPasswordVerification: sc.LastPasswordAt,
			IsVPN:                    sc.IsVPN,
			IsTor:                    sc.IsTor,
			HasActiveAnomaly:         sc.HasActiveAnomaly,
		},
	})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		u.publish(ctx, sc, eventZTDenied, decision.Reason)
		return &ztDomain.CaeDecision{
			Allowed:           false,
			Reason:            "Zero-trust re-evaluation failed: " + decision.Reason,
			RequiresReauth:    decision.RequiresStepUp,
			RequiredAuthLevel: decision.RequiredAuthLevel,
			EvaluatedAt:       now,
		}, nil
	}

	return &ztDomain.CaeDecision{Allowed: true, Reason: "Session valid", EvaluatedAt: now}, nil
}

// Sweep re-checks stored sessions at the Session auth level. Zero-trust denials that do
// not call for re-authentication leave the session alone. Per-session failures are
// logged and skipped.
func (u *continuousAccessUseCase) Sweep(ctx context.Context) (int, error) {
	sessions, err := u.sessions.ListAllActiveSessions(ctx, u.now())
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, sess := range sessions {
		d, err := u.Evaluate(ctx, ztDomain.SessionContext{
			SessionID:        sess.ID,
			UserID:           sess.UserID,
			DeviceID:         sess.DeviceFingerprint,
			IPAddress:        sess.IPAddress,
			Country:          sess.Country,
			CurrentAuthLevel: ztDomain.AuthSession,
			SessionStartedAt: sess.CreatedAt,
		})
		if err != nil {
			u.logger.Error("failed to re-evaluate session",
				slog.String("session_id", sess.ID),
				slog.Any("error", err),
			)
			continue
		}
		if d.Allowed || !d.RequiresReauth {
			continue
		}
		if err := u.revoker.Revoke(ctx, sess.ID, d.Reason, systemActor); err != nil {
			u.logger.Error("failed to revoke session",
				slog.String("session_id", sess.ID),
				slog.Any("error", err),
			)
			continue
		}
		revoked++
	}
	return revoked, nil
}

func (u *continuousAccessUseCase) publish(ctx context.Context, sc ztDomain.SessionContext, kind, reason string) {
	u.logger.Warn("continuous access denied",
		slog.String("session_id", sc.SessionID),
		slog.String("user_id", sc.UserID),
		slog.String("reason", reason),
	)
	u.events.Publish(ctx, auditDomain.SecurityEvent{
		ID:           uuid.NewString(),
		EventType:    auditDomain.EventContinuousAccessDeny,
		Severity:     auditDomain.SeverityHigh,
		Source:       caeSource,
		Action:       caeAction,
		UserID:       sc.UserID,
		IPAddress:    sc.IPAddress,
		Country:      sc.Country,
		ResourceType: resourceSession,
		ResourceID:   sc.SessionID,
		Outcome:      auditDomain.OutcomeDeny,
		Reason:       reason,
		Extensions:   map[string]string{"check": kind},
		Timestamp:    u.now(),
	})
}

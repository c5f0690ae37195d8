package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	apperrors "github.com/allisson/keyvault/internal/errors"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

// Audit actions written by the zero-trust engine.
const (
	ActionZTDenied       = "zerotrust.denied"
	ActionZTBreakGlass   = "zerotrust.break_glass"
	ActionZTPolicyUpdate = "zerotrust.policy.update"
	ActionZTPolicySeed   = "zerotrust.policy.seed"

	resourceAction = "zt_action"
	ztSource       = "ZeroTrustEngine"
	systemActor    = "system"

	stepUpTimeoutSeconds = 300
	failedPolicyNotFound = "PolicyNotFound"
	authLevelCheckPrefix = "Insufficient auth level"
)

// Config tunes zero-trust decisions and sessions.
type Config struct {
	FreshSessionWindow    time.Duration
	MaxSessionAge         time.Duration
	SessionDuration       time.Duration
	MaxConcurrentSessions int
	PolicyCacheTTL        time.Duration
}

// DefaultConfig returns the stock zero-trust settings.
func DefaultConfig() Config {
	return Config{
		FreshSessionWindow:    15 * time.Minute,
		MaxSessionAge:         8 * time.Hour,
		SessionDuration:       time.Hour,
		MaxConcurrentSessions: 3,
		PolicyCacheTTL:        15 * time.Minute,
	}
}

var stepUpActions = map[ztDomain.Action]bool{
	ztDomain.ActionSecretDelete:     true,
	ztDomain.ActionSecretExport:     true,
	ztDomain.ActionKeyRotate:        true,
	ztDomain.ActionBreakGlassAccess: true,
}

type zeroTrustUseCase struct {
	policies   PolicyRepository
	devices    DeviceRiskRepository
	breakGlass BreakGlass
	audit      auditUsecase.Recorder
	events     auditService.EventPublisher
	cache      *policyCache
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewZeroTrustUseCase creates the per-request access decision engine.
func NewZeroTrustUseCase(
	policies PolicyRepository,
	devices DeviceRiskRepository,
	breakGlass BreakGlass,
	audit auditUsecase.Recorder,
	events auditService.EventPublisher,
	cfg Config,
	logger *slog.Logger,
) ZeroTrustUseCase {
	return &zeroTrustUseCase{
		policies:   policies,
		devices:    devices,
		breakGlass: breakGlass,
		audit:      audit,
		events:     events,
		cache:      newPolicyCache(policies, cfg.PolicyCacheTTL),
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CheckAccess evaluates the action's policy against the context. Every failed check adds a
// reason; any reason denies unless a valid break-glass code overrides it.
func (u *zeroTrustUseCase) CheckAccess(ctx context.Context, req ztDomain.AccessRequest) (*ztDomain.Decision, error) {
	now := u.now()
	zc := req.Context

	policy, err := u.cache.get(ctx, req.Action)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load zero-trust policies")
	}
	if policy == nil {
		d := &ztDomain.Decision{
			Allowed:      false,
			Action:       req.Action,
			Reason:       "No active policy found for action",
			FailedChecks: []string{failedPolicyNotFound},
			DecidedAt:    now,
		}
		if err := u.recordDenial(ctx, zc, d); err != nil {
			return nil, err
		}
		return d, nil
	}

	var failed []string

	if zc.CurrentAuthLevel < policy.RequiredAuthLevel {
		failed = append(failed, fmt.Sprintf("%s: required=%s, current=%s",
			authLevelCheckPrefix, policy.RequiredAuthLevel, zc.CurrentAuthLevel))
	}

	score, factors := ztDomain.ScoreContext(zc)
	level := ztDomain.ClassifyRisk(score)
	if level > policy.MaxAllowedRisk {
		failed = append(failed, fmt.Sprintf("Device risk too high: level=%s, maxAllowed=%s, score=%.0f",
			level, policy.MaxAllowedRisk, score))
	}

	existing, err := u.device(ctx, zc.UserID, zc.DeviceID)
	if err != nil {
		return nil, err
	}
	if policy.RequireTrustedDevice && (existing == nil || !existing.IsTrusted) {
		failed = append(failed, "Trusted device required but device is not trusted")
	}

	if policy.RequireFreshSession {
		if zc.LastPasswordVerification == nil || now.Sub(*zc.LastPasswordVerification) > u.cfg.FreshSessionWindow {
			last := "never"
			if zc.LastPasswordVerification != nil {
				last = zc.LastPasswordVerification.Format(time.RFC3339)
			}
			failed = append(failed, "Fresh session required: last verification was "+last)
		}
	}

	if policy.RequireGeoFence && len(policy.AllowedCountries) > 0 {
		if zc.Country == "" || !policy.CountryAllowed(zc.Country) {
			country := zc.Country
			if country == "" {
				country = "unknown"
			}
			failed = append(failed, fmt.Sprintf("Geo-fence violation: country=%s, allowed=%s",
				country, strings.Join(policy.AllowedCountries, ",")))
		}
	}

	if policy.BlockVpnTor && (zc.IsVPN || zc.IsTor) {
		failed = append(failed, fmt.Sprintf("VPN/Tor blocked: vpn=%t, tor=%t", zc.IsVPN, zc.IsTor))
	}

	if policy.BlockAnomaly && zc.HasActiveAnomaly {
		failed = append(failed, "Active anomaly detected")
	}

	breakGlassUsed := false
	if len(failed) > 0 && req.BreakGlassCode != "" && policy.AllowBreakGlassOverride {
		ok, err := u.breakGlass.Consume(ctx, req.BreakGlassCode)
		if err != nil {
			return nil, err
		}
		if err := u.recordBreakGlass(ctx, req, failed, ok); err != nil {
			return nil, err
		}
		if ok {
			breakGlassUsed = true
			failed = nil
		} else {
			failed = append(failed, "Invalid break-glass code")
		}
	} else if len(failed) > 0 && req.BreakGlassCode != "" {
		// The code stays unconsumed but the attempt is still recorded.
		if err := u.recordBreakGlass(ctx, req, failed, false); err != nil {
			return nil, err
		}
		failed = append(failed, "Break-glass override not permitted for action")
	}

	u.saveDeviceRisk(ctx, zc, existing, level, score, factors)

	d := &ztDomain.Decision{
		Allowed:        len(failed) == 0,
		Action:         req.Action,
		FailedChecks:   failed,
		RiskLevel:      level,
		RiskScore:      score,
		RiskFactors:    factors,
		BreakGlassUsed: breakGlassUsed,
		DecidedAt:      now,
	}
	if d.Allowed {
		d.Reason = "Access granted"
	} else {
		d.Reason = fmt.Sprintf("Access denied: %d check(s) failed", len(failed))
		d.RequiredAuthLevel = policy.RequiredAuthLevel
		for _, f := range failed {
			if strings.HasPrefix(f, authLevelCheckPrefix) {
				d.RequiresStepUp = true
			}
		}
		if err := u.recordDenial(ctx, zc, d); err != nil {
			return nil, err
		}
	}

	u.logger.Info("zero-trust decision",
		slog.String("action", string(req.Action)),
		slog.String("user_id", zc.UserID),
		slog.Bool("allowed", d.Allowed),
		slog.String("risk_level", level.String()),
		slog.Float64("risk_score", score),
		slog.Bool("break_glass", breakGlassUsed),
	)
	return d, nil
}

func (u *zeroTrustUseCase) device(ctx context.Context, userID, deviceID string) (*ztDomain.DeviceRisk, error) {
	if userID == "" || deviceID == "" {
		return nil, nil
	}
	d, err := u.devices.GetDeviceRisk(ctx, userID, deviceID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "failed to load device risk")
	}
	return d, nil
}

// saveDeviceRisk never fails the decision.
func (u *zeroTrustUseCase) saveDeviceRisk(
	ctx context.Context,
	zc ztDomain.AccessContext,
	existing *ztDomain.DeviceRisk,
	level ztDomain.RiskLevel,
	score float64,
	factors []string,
) {
	if zc.UserID == "" || zc.DeviceID == "" {
		return
	}
	now := u.now()
	risk := &ztDomain.DeviceRisk{
		ID:        uuid.NewString(),
		UserID:    zc.UserID,
		DeviceID:  zc.DeviceID,
		IPAddress: zc.IPAddress,
		Country:   zc.Country,
		UserAgent: zc.UserAgent,
		CreatedAt: now,
	}
	if existing != nil {
		risk = existing
	}
	risk.RiskLevel = level
	risk.RiskScore = score
	risk.Factors = factors
	risk.UpdatedAt = now

	if err := u.devices.UpsertDeviceRisk(ctx, risk); err != nil {
		u.logger.Error("failed to save device risk",
			slog.String("user_id", zc.UserID),
			slog.String("device_id", zc.DeviceID),
			slog.Any("error", err),
		)
	}
}

func (u *zeroTrustUseCase) recordDenial(ctx context.Context, zc ztDomain.AccessContext, d *ztDomain.Decision) error {
	u.events.Publish(ctx, auditDomain.SecurityEvent{
		ID:           uuid.NewString(),
		EventType:    auditDomain.EventZeroTrustDenied,
		Severity:     auditDomain.SeverityMedium,
		Source:       ztSource,
		Action:       ActionZTDenied,
		UserID:       zc.UserID,
		IPAddress:    zc.IPAddress,
		Country:      zc.Country,
		ResourceType: resourceAction,
		ResourceID:   string(d.Action),
		Outcome:      auditDomain.OutcomeDeny,
		Reason:       strings.Join(d.FailedChecks, "; "),
		Timestamp:    u.now(),
	})
	return u.audit.Record(ctx, auditDomain.Entry{
		Action:       ActionZTDenied,
		ResourceType: resourceAction,
		ResourceID:   string(d.Action),
		ActorID:      zc.UserID,
		Details: map[string]any{
			"failedChecks": d.FailedChecks,
			"riskLevel":    d.RiskLevel.String(),
			"riskScore":    d.RiskScore,
			"ipAddress":    zc.IPAddress,
		},
	})
}

// recordBreakGlass is Critical whether or not the code was accepted.
func (u *zeroTrustUseCase) recordBreakGlass(
	ctx context.Context,
	req ztDomain.AccessRequest,
	overridden []string,
	accepted bool,
) error {
	outcome := auditDomain.OutcomeSuccess
	if !accepted {
		outcome = auditDomain.OutcomeFailure
	}
	u.logger.Warn("break-glass override requested",
		slog.String("action", string(req.Action)),
		slog.String("user_id", req.Context.UserID),
		slog.Bool("accepted", accepted),
		slog.String("failed_checks", strings.Join(overridden, "; ")),
	)
	u.events.Publish(ctx, auditDomain.SecurityEvent{
		ID:           uuid.NewString(),
		EventType:    auditDomain.EventBreakGlassUsed,
		Severity:     auditDomain.SeverityCritical,
		Source:       ztSource,
		Action:       ActionZTBreakGlass,
		UserID:       req.Context.UserID,
		IPAddress:    req.Context.IPAddress,
		ResourceType: resourceAction,
		ResourceID:   string(req.Action),
		Outcome:      outcome,
		Reason:       strings.Join(overridden, "; "),
		Timestamp:    u.now(),
	})
	return u.audit.Record(ctx, auditDomain.Entry{
		Action:       ActionZTBreakGlass,
		ResourceType: resourceAction,
		ResourceID:   string(req.Action),
		ActorID:      req.Context.UserID,
		Details: map[string]any{
			"accepted":     accepted,
			"failedChecks": overridden,
		},
	})
}

func (u *zeroTrustUseCase) CheckStepUp(action ztDomain.Action, current ztDomain.AuthLevel) ztDomain.StepUpRequirement {
	if !stepUpActions[action] {
		return ztDomain.StepUpRequirement{RequiredLevel: current, Reason: "No step-up required"}
	}
	if current < ztDomain.AuthMFA {
		return ztDomain.StepUpRequirement{
			Required:       true,
			RequiredLevel:  ztDomain.AuthMFA,
			Reason:         fmt.Sprintf("Action '%s' requires MFA authentication", action),
			TimeoutSeconds: stepUpTimeoutSeconds,
		}
	}
	return ztDomain.StepUpRequirement{RequiredLevel: current, Reason: "Auth level sufficient"}
}

func (u *zeroTrustUseCase) GetPolicy(ctx context.Context, action ztDomain.Action) (*ztDomain.Policy, error) {
	p, err := u.policies.GetZTPolicy(ctx, action)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, ztDomain.ErrPolicyNotFound
		}
		return nil, err
	}
	return p, nil
}

func (u *zeroTrustUseCase) ListPolicies(ctx context.Context) ([]*ztDomain.Policy, error) {
	return u.policies.ListZTPolicies(ctx)
}

// UpdatePolicy replaces an existing policy and invalidates the cache.
func (u *zeroTrustUseCase) UpdatePolicy(ctx context.Context, policy *ztDomain.Policy, actor string) error {
	existing, err := u.GetPolicy(ctx, policy.Action)
	if err != nil {
		return err
	}

	policy.ID = existing.ID
	policy.CreatedAt = existing.CreatedAt
	policy.UpdatedAt = u.now()
	policy.UpdatedBy = actor
	if err := u.policies.UpsertZTPolicy(ctx, policy); err != nil {
		return err
	}
	u.cache.invalidate()

	return u.audit.Record(ctx, auditDomain.Entry{
		Action:       ActionZTPolicyUpdate,
		ResourceType: resourceAction,
		ResourceID:   string(policy.Action),
		ActorID:      actor,
		Details: map[string]any{
			"requiredAuthLevel": policy.RequiredAuthLevel.String(),
			"maxAllowedRisk":    policy.MaxAllowedRisk.String(),
			"active":            policy.Active,
		},
	})
}

func (u *zeroTrustUseCase) RefreshPolicies(ctx context.Context) error {
	u.cache.invalidate()
	if _, err := u.cache.reload(ctx); err != nil {
		return err
	}
	u.logger.Info("zero-trust policy cache refreshed")
	return nil
}

func (u *zeroTrustUseCase) SeedDefaults(ctx context.Context) (int, error) {
	seeded := 0
	for _, p := range ztDomain.DefaultPolicies() {
		_, err := u.policies.GetZTPolicy(ctx, p.Action)
		if err == nil {
			continue
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return seeded, err
		}

		now := u.now()
		p.ID = uuid.Must(uuid.NewV7())
		p.CreatedAt = now
		p.UpdatedAt = now
		p.UpdatedBy = systemActor
		if err := u.policies.UpsertZTPolicy(ctx, p); err != nil {
			return seeded, err
		}
		seeded++
	}
	if seeded > 0 {
		u.cache.invalidate()
		if err := u.audit.Record(ctx, auditDomain.Entry{
			Action:       ActionZTPolicySeed,
			ResourceType: resourceAction,
			ResourceID:   "*",
			ActorID:      systemActor,
			Details:      map[string]any{"seeded": seeded},
		}); err != nil {
			return seeded, err
		}
	}
	return seeded, nil
}

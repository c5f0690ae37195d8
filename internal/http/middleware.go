package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	apperrors "github.com/allisson/keyvault/internal/errors"
	"github.com/allisson/keyvault/internal/httputil"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
	ztUsecase "github.com/allisson/keyvault/internal/zerotrust/usecase"
)

// Request headers understood by the vault routes. The auth level headers are set by the
// application that authenticated the user and are honoured only with a valid session.
const (
	HeaderVaultToken     = "X-Vault-Token"
	HeaderSessionID      = "X-Session-Id"
	HeaderDeviceID       = "X-Device-Id"
	HeaderCountry        = "X-Country-Code"
	HeaderAuthLevel      = "X-Auth-Level"
	HeaderAuthVerifiedAt = "X-Auth-Verified-At"
	HeaderBreakGlass     = "X-Break-Glass-Code"
)

// Audit actions written by the guard.
const (
	actionSessionDenied = "zerotrust.session.denied"
	actionThreatBlocked = "zerotrust.threat.blocked"
)

// TokenValidator authenticates vault tokens. Validate returns nil for unusable tokens.
type TokenValidator interface {
	Validate(ctx context.Context, rawToken string) (*policyDomain.TokenInfo, error)
}

// PolicyEvaluator decides path capabilities for a principal.
type PolicyEvaluator interface {
	Evaluate(
		ctx context.Context,
		path string,
		capability policyDomain.Capability,
		principal policyDomain.Principal,
	) (*policyDomain.Evaluation, error)
}

// AccessChecker makes zero-trust decisions.
type AccessChecker interface {
	CheckAccess(ctx context.Context, req ztDomain.AccessRequest) (*ztDomain.Decision, error)
}

// ThreatAssessor scores raw requests.
type ThreatAssessor interface {
	Assess(ctx context.Context, rc ztDomain.RequestContext) (*ztDomain.Assessment, error)
	CheckIP(ip string) ztDomain.IPIntel
}

// ContinuousEvaluator re-checks a live session on every request that carries one.
type ContinuousEvaluator interface {
	Evaluate(ctx context.Context, sc ztDomain.SessionContext) (*ztDomain.CaeDecision, error)
}

// SessionValidator checks adaptive sessions against the current request context.
type SessionValidator interface {
	Validate(ctx context.Context, sessionID string, current ztUsecase.SessionRequest) (*ztDomain.SessionValidation, error)
}

// CustomLoggerMiddleware logs every request with its request id.
func CustomLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("http request",
			slog.String("request_id", requestid.Get(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

// rateLimiterStore holds per-IP rate limiters.
type rateLimiterStore struct {
	limiters sync.Map // map[string]*rateLimiterEntry
	rps      float64
	burst    int
}

type rateLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
	mu         sync.Mutex
}

// RateLimitMiddleware enforces a token bucket per client IP. Stale limiters are
// dropped until ctx is cancelled.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int, logger *slog.Logger) gin.HandlerFunc {
	store := &rateLimiterStore{rps: rps, burst: burst}
	go store.cleanupStale(ctx, 5*time.Minute, time.Hour)

	return func(c *gin.Context) {
		limiter := store.getLimiter(c.ClientIP())
		if limiter.Allow() {
			c.Next()
			return
		}

		reservation := limiter.Reserve()
		retryAfter := int(reservation.Delay().Seconds())
		reservation.Cancel()

		logger.Debug("rate limit exceeded",
			slog.String("client_ip", c.ClientIP()),
			slog.Int("retry_after", retryAfter))

		c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, httputil.ErrorResponse{
			Error:   "rate_limit_exceeded",
			Message: "Too many requests. Please retry after the specified delay.",
		})
	}
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	if val, ok := s.limiters.Load(key); ok {
		entry := val.(*rateLimiterEntry)
		entry.mu.Lock()
		entry.lastAccess = time.Now()
		entry.mu.Unlock()
		return entry.limiter
	}

	entry := &rateLimiterEntry{
		limiter:    rate.NewLimiter(rate.Limit(s.rps), s.burst),
		lastAccess: time.Now(),
	}
	actual, _ := s.limiters.LoadOrStore(key, entry)
	return actual.(*rateLimiterEntry).limiter
}

func (s *rateLimiterStore) cleanupStale(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.prune(time.Now().Add(-maxIdle))
		}
	}
}

func (s *rateLimiterStore) prune(threshold time.Time) int {
	removed := 0
	s.limiters.Range(func(key, value any) bool {
		entry := value.(*rateLimiterEntry)
		entry.mu.Lock()
		stale := entry.lastAccess.Before(threshold)
		entry.mu.Unlock()
		if stale {
			s.limiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// recordDenial audits a rejected request. Audit failures are logged only.
func recordDenial(c *gin.Context, audit auditUsecase.Recorder, logger *slog.Logger, action, actor, reason string) {
	if audit == nil {
		return
	}
	err := audit.Record(c.Request.Context(), auditDomain.Entry{
		Action:       action,
		ResourceType: "http",
		ResourceID:   c.Request.Method + " " + c.Request.URL.Path,
		ActorID:      actor,
		Details: map[string]any{
			"reason":     reason,
			"ip":         c.ClientIP(),
			"request_id": requestid.Get(c),
		},
	})
	if err != nil {
		logger.Error("failed to audit denied request", slog.Any("error", err))
	}
}

// TokenAuthMiddleware authenticates X-Vault-Token and stores the principal in the
// request context. Each successful validation consumes one token use.
func TokenAuthMiddleware(tokens TokenValidator, audit auditUsecase.Recorder, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderVaultToken)
		if raw == "" {
			recordDenial(c, audit, logger, "auth.denied", "anonymous", "missing vault token")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		info, err := tokens.Validate(c.Request.Context(), raw)
		if err != nil {
			httputil.HandleErrorGin(c, err, logger)
			c.Abort()
			return
		}
		if info == nil {
			recordDenial(c, audit, logger, "auth.denied", "anonymous", "invalid vault token")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		ctx := httputil.WithPrincipal(c.Request.Context(), info.Principal())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ZeroTrustGuard evaluates every request against the zero-trust policy of its action.
type ZeroTrustGuard struct {
	access     AccessChecker
	threats    ThreatAssessor
	sessions   SessionValidator
	continuous ContinuousEvaluator
	audit      auditUsecase.Recorder
	events     auditService.EventPublisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewZeroTrustGuard creates a guard. threats, sessions, continuous, audit and events may be nil.
func NewZeroTrustGuard(
	access AccessChecker,
	threats ThreatAssessor,
	sessions SessionValidator,
	continuous ContinuousEvaluator,
	audit auditUsecase.Recorder,
	events auditService.EventPublisher,
	logger *slog.Logger,
) *ZeroTrustGuard {
	if events == nil {
		events = auditService.NoopPublisher{}
	}
	return &ZeroTrustGuard{
		access:     access,
		threats:    threats,
		sessions:   sessions,
		continuous: continuous,
		audit:      audit,
		events:     events,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// accessContext builds the zero-trust context of a request. A false return means the
// response was already written.
func (g *ZeroTrustGuard) accessContext(c *gin.Context) (ztDomain.AccessContext, bool) {
	ctx := c.Request.Context()
	principal, _ := httputil.GetPrincipal(ctx)
	sessionID := c.GetHeader(HeaderSessionID)
	zc := ztDomain.AccessContext{
		UserID:           principal.UserID,
		DeviceID:         c.GetHeader(HeaderDeviceID),
		IPAddress:        c.ClientIP(),
		Country:          c.GetHeader(HeaderCountry),
		UserAgent:        c.Request.UserAgent(),
		CurrentAuthLevel: ztDomain.AuthSession,
	}

	var session *ztDomain.SessionValidation
	if sessionID != "" && g.sessions != nil {
		validation, err := g.sessions.Validate(ctx, sessionID, ztUsecase.SessionRequest{
			UserID:            principal.UserID,
			IPAddress:         zc.IPAddress,
			DeviceFingerprint: zc.DeviceID,
			Country:           zc.Country,
			UserAgent:         zc.UserAgent,
			TokenID:           principal.TokenID,
		})
		if err != nil {
			httputil.HandleErrorGin(c, err, g.logger)
			return zc, false
		}
		if !validation.Valid {
			recordDenial(c, g.audit, g.logger, actionSessionDenied, principal.UserID, validation.ViolationReason)
			httputil.HandleErrorGin(c, apperrors.Wrap(apperrors.ErrUnauthorized, validation.ViolationReason), g.logger)
			return zc, false
		}
		session = validation
		if level, ok := ztDomain.ParseAuthLevel(c.GetHeader(HeaderAuthLevel)); ok {
			zc.CurrentAuthLevel = level
		}
		if at, err := time.Parse(time.RFC3339, c.GetHeader(HeaderAuthVerifiedAt)); err == nil {
			zc.LastPasswordVerification = &at
		}
	}

	if g.threats != nil {
		intel := g.threats.CheckIP(zc.IPAddress)
		zc.IsTor = intel.IsTor
		zc.IsVPN = intel.IsVPN

		assessment, err := g.threats.Assess(ctx, ztDomain.RequestContext{
			UserID:            principal.UserID,
			IPAddress:         zc.IPAddress,
			Country:           zc.Country,
			UserAgent:         zc.UserAgent,
			RequestPath:       c.Request.URL.Path,
			DeviceFingerprint: zc.DeviceID,
			SessionID:         sessionID,
			Timestamp:         g.now(),
		})
		if err != nil {
			httputil.HandleErrorGin(c, err, g.logger)
			return zc, false
		}
		if assessment.ShouldBlock {
			g.denyThreat(c, zc, assessment)
			return zc, false
		}
		zc.HasActiveAnomaly = assessment.Level >= ztDomain.RiskHigh
	}

	if session != nil && g.continuous != nil {
		decision, err := g.continuous.Evaluate(ctx, ztDomain.SessionContext{
			SessionID:        sessionID,
			UserID:           zc.UserID,
			DeviceID:         zc.DeviceID,
			IPAddress:        zc.IPAddress,
			Country:          zc.Country,
			CurrentAuthLevel: zc.CurrentAuthLevel,
			SessionStartedAt: session.StartedAt,
			LastPasswordAt:   zc.LastPasswordVerification,
			IPChanged:        session.IPChanged,
			CountryChanged:   session.CountryChanged,
			IsVPN:            zc.IsVPN,
			IsTor:            zc.IsTor,
			HasActiveAnomaly: zc.HasActiveAnomaly,
		})
		if err != nil {
			httputil.HandleErrorGin(c, err, g.logger)
			return zc, false
		}
		if !decision.Allowed {
			status := http.StatusForbidden
			if decision.RequiresReauth {
				status = http.StatusUnauthorized
			}
			c.AbortWithStatusJSON(status, gin.H{
				"error":               "session_reevaluation_failed",
				"message":             decision.Reason,
				"requires_reauth":     decision.RequiresReauth,
				"required_auth_level": decision.RequiredAuthLevel.String(),
			})
			return zc, false
		}
	}

	return zc, true
}

// denyThreat audits and reports a request blocked by threat assessment.
func (g *ZeroTrustGuard) denyThreat(c *gin.Context, zc ztDomain.AccessContext, assessment *ztDomain.Assessment) {
	indicators := make([]string, 0, len(assessment.Signals))
	for _, sig := range assessment.Signals {
		indicators = append(indicators, sig.Type)
	}
	severity := auditDomain.SeverityHigh
	if assessment.Level >= ztDomain.RiskCritical {
		severity = auditDomain.SeverityCritical
	}

	g.logger.Warn("request blocked by threat assessment",
		slog.String("user_id", zc.UserID),
		slog.String("ip", zc.IPAddress),
		slog.Float64("score", assessment.Score),
		slog.String("indicators", strings.Join(indicators, ",")),
	)
	g.events.Publish(c.Request.Context(), auditDomain.SecurityEvent{
		ID:           uuid.NewString(),
		EventType:    auditDomain.EventThreatBlocked,
		Severity:     severity,
		Source:       "ZeroTrustGuard",
		Action:       actionThreatBlocked,
		UserID:       zc.UserID,
		IPAddress:    zc.IPAddress,
		Country:      zc.Country,
		ResourceType: "http",
		ResourceID:   c.Request.Method + " " + c.Request.URL.Path,
		Outcome:      auditDomain.OutcomeDeny,
		Reason:       assessment.BlockReason,
		Extensions: map[string]string{
			"indicators": strings.Join(indicators, ","),
			"score":      strconv.FormatFloat(assessment.Score, 'f', 0, 64),
			"riskLevel":  assessment.Level.String(),
		},
		Timestamp: g.now(),
	})
	recordDenial(c, g.audit, g.logger, actionThreatBlocked, zc.UserID, assessment.BlockReason)
	httputil.HandleErrorGin(c, apperrors.Wrap(apperrors.ErrForbidden, assessment.BlockReason), g.logger)
}

// Require returns a middleware enforcing the zero-trust policy of action.
func (g *ZeroTrustGuard) Require(action ztDomain.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		zc, ok := g.accessContext(c)
		if !ok {
			c.Abort()
			return
		}

		decision, err := g.access.CheckAccess(c.Request.Context(), ztDomain.AccessRequest{
			Action:         action,
			Context:        zc,
			BreakGlassCode: c.GetHeader(HeaderBreakGlass),
		})
		if err != nil {
			httputil.HandleErrorGin(c, err, g.logger)
			c.Abort()
			return
		}
		if !decision.Allowed {
			g.logger.Warn("zero-trust denied request",
				slog.String("action", string(action)),
				slog.String("user_id", zc.UserID),
				slog.String("reason", decision.Reason))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":               "zero_trust_denied",
				"message":             decision.Reason,
				"failed_checks":       decision.FailedChecks,
				"risk_level":          decision.RiskLevel.String(),
				"requires_step_up":    decision.RequiresStepUp,
				"required_auth_level": decision.RequiredAuthLevel.String(),
			})
			return
		}
		c.Next()
	}
}

// PolicyAuthorizer checks path capabilities for the principal in the context.
type PolicyAuthorizer struct {
	policies PolicyEvaluator
}

// NewPolicyAuthorizer creates a PolicyAuthorizer.
func NewPolicyAuthorizer(policies PolicyEvaluator) *PolicyAuthorizer {
	return &PolicyAuthorizer{policies: policies}
}

// Authorize returns ErrUnauthorized without a principal and ErrForbidden on denial.
// Denials are audited by the evaluator.
func (a *PolicyAuthorizer) Authorize(ctx context.Context, path string, capability policyDomain.Capability) error {
	principal, ok := httputil.GetPrincipal(ctx)
	if !ok {
		return apperrors.ErrUnauthorized
	}
	eval, err := a.policies.Evaluate(ctx, path, capability, principal)
	if err != nil {
		return err
	}
	if !eval.Allowed {
		return apperrors.Wrap(apperrors.ErrForbidden, eval.Reason)
	}
	return nil
}

// PolicyMiddleware requires capability on the secret path held by the named route parameter.
func PolicyMiddleware(
	authorizer *PolicyAuthorizer,
	capability policyDomain.Capability,
	pathOf func(*gin.Context) string,
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizer.Authorize(c.Request.Context(), pathOf(c), capability); err != nil {
			httputil.HandleErrorGin(c, err, logger)
			c.Abort()
			return
		}
		c.Next()
	}
}

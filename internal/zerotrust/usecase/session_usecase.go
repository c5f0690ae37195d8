package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	apperrors "github.com/allisson/keyvault/internal/errors"
	"github.com/allisson/keyvault/internal/settings"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

const (
	ActionSessionCreate      = "session.create"
	ActionSessionRevoke      = "session.revoke"
	ActionSessionTokenRevoke = "session.token.revoke"

	sessionIDBytes        = 32
	sessionBindingPrefix  = "session-binding-"
	sessionBindingSchema  = 1
	sessionSource         = "AdaptiveSessions"
	reasonConcurrentLimit = "Exceeded concurrent session limit"
	resourceVaultToken    = "vault_token"
)

type sessionBindings struct {
	Bindings []ztDomain.SessionBinding `json:"bindings"`
}

type sessionUseCase struct {
	repo   SessionRepository
	store  *settings.Store
	tokens TokenRevoker
	audit  auditUsecase.Recorder
	events auditService.EventPublisher
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionUseCase creates the adaptive session manager. Token bindings are kept in the
// settings table under session-binding-{id}.
func NewSessionUseCase(
	repo SessionRepository,
	store *settings.Store,
	tokens TokenRevoker,
	audit auditUsecase.Recorder,
	events auditService.EventPublisher,
	cfg Config,
	logger *slog.Logger,
) SessionUseCase {
	return &sessionUseCase{
		repo:   repo,
		store:  store,
		tokens: tokens,
		audit:  audit,
		events: events,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (u *sessionUseCase) publish(
	ctx context.Context,
	kind string,
	severity auditDomain.Severity,
	sess *ztDomain.Session,
	outcome, reason string,
) {
	u.events.Publish(ctx, auditDomain.SecurityEvent{
		ID:           uuid.NewString(),
		EventType:    kind,
		Severity:     severity,
		Source:       sessionSource,
		Action:       kind,
		UserID:       sess.UserID,
		IPAddress:    sess.IPAddress,
		Country:      sess.Country,
		ResourceType: resourceSession,
		ResourceID:   sess.ID,
		Outcome:      outcome,
		Reason:       reason,
		Timestamp:    u.now(),
	})
}

// Create opens a session. When the user exceeds the concurrent cap the oldest sessions
// are revoked.
func (u *sessionUseCase) Create(ctx context.Context, req SessionRequest) (*ztDomain.Session, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "user id is required")
	}

	raw, err := cryptoService.RandomBytes(sessionIDBytes)
	if err != nil {
		return nil, err
	}
	now := u.now()
	sess := &ztDomain.Session{
		ID:                base64.RawURLEncoding.EncodeToString(raw),
		UserID:            req.UserID,
		IPAddress:         req.IPAddress,
		DeviceFingerprint: req.DeviceFingerprint,
		Country:           req.Country,
		UserAgent:         req.UserAgent,
		CreatedAt:         now,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(u.cfg.SessionDuration),
	}
	if err := u.repo.CreateSession(ctx, sess); err != nil {
		return nil, apperrors.Wrap(err, "failed to create session")
	}

	active, err := u.repo.ListActiveSessions(ctx, req.UserID, now)
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(active)-u.cfg.MaxConcurrentSessions; i++ {
		oldest := active[i]
		if oldest.ID == sess.ID {
			continue
		}
		if err := u.Revoke(ctx, oldest.ID, reasonConcurrentLimit, systemActor); err != nil {
			return nil, err
		}
		u.publish(ctx, auditDomain.EventConcurrentSession, auditDomain.SeverityMedium, oldest,
			auditDomain.OutcomeSuccess, reasonConcurrentLimit)
	}

	if err := u.audit.Record(ctx, auditDomain.Entry{
		Action:       ActionSessionCreate,
		ResourceType: resourceSession,
		ResourceID:   sess.ID,
		ActorID:      sess.UserID,
		Details:      map[string]any{"ipAddress": sess.IPAddress, "country": sess.Country},
	}); err != nil {
		return nil, err
	}
	return sess, nil
}

// Validate scores context drift: IP 30, device 50, country 60. A score of 50 or more is
// a violation.
func (u *sessionUseCase) Validate(
	ctx context.Context,
	sessionID string,
	current SessionRequest,
) (*ztDomain.SessionValidation, error) {
	sess, err := u.repo.GetSession(ctx, sessionID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return &ztDomain.SessionValidation{
				ViolationReason: "Session not found or expired",
				DriftScore:      ztDomain.DriftInvalidSession,
			}, nil
		}
		return nil, err
	}
	now := u.now()
	if !sess.IsActive(now) {
		return &ztDomain.SessionValidation{
			ViolationReason: "Session expired or revoked",
			DriftScore:      ztDomain.DriftInvalidSession,
		}, nil
	}

	owned, err := u.presentedByOwner(ctx, sess, current)
	if err != nil {
		return nil, err
	}
	if !owned {
		u.logger.Warn("session presented by another principal",
			slog.String("session_user_id", sess.UserID),
			slog.String("user_id", current.UserID),
		)
		u.publish(ctx, auditDomain.EventSessionViolation, auditDomain.SeverityHigh, sess,
			auditDomain.OutcomeDeny, ztDomain.ReasonSessionPrincipalMismatch)
		return &ztDomain.SessionValidation{
			ViolationReason: ztDomain.ReasonSessionPrincipalMismatch,
			DriftScore:      ztDomain.DriftInvalidSession,
			StartedAt:       sess.CreatedAt,
		}, nil
	}

	v := &ztDomain.SessionValidation{
		StartedAt: sess.CreatedAt,
		IPChanged: sess.IPAddress != current.IPAddress,
		DeviceChanged: sess.DeviceFingerprint != "" && current.DeviceFingerprint != "" &&
			sess.DeviceFingerprint != current.DeviceFingerprint,
		CountryChanged: sess.Country != "" && current.Country != "" &&
			!strings.EqualFold(sess.Country, current.Country),
	}
	if v.IPChanged {
		v.DriftScore += ztDomain.DriftIP
	}
	if v.DeviceChanged {
		v.DriftScore += ztDomain.DriftDevice
	}
	if v.CountryChanged {
		v.DriftScore += ztDomain.DriftCountry
	}
	v.Valid = v.DriftScore < ztDomain.DriftBlockAt

	if !v.Valid {
		v.ViolationReason = fmt.Sprintf("Session context drift detected (score=%.0f): ip=%t, device=%t, country=%t",
			v.DriftScore, v.IPChanged, v.DeviceChanged, v.CountryChanged)
		u.logger.Warn("session hijack attempt detected",
			slog.String("user_id", sess.UserID),
			slog.Float64("drift", v.DriftScore),
		)
		u.publish(ctx, auditDomain.EventSessionViolation, auditDomain.SeverityHigh, sess,
			auditDomain.OutcomeDeny, v.ViolationReason)
		return v, nil
	}

	sess.LastActivityAt = now
	if err := u.repo.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}
	return v, nil
}

// presentedByOwner accepts the session's own user, or a vault token bound to the session.
func (u *sessionUseCase) presentedByOwner(
	ctx context.Context,
	sess *ztDomain.Session,
	current SessionRequest,
) (bool, error) {
	if current.UserID != "" && current.UserID == sess.UserID {
		return true, nil
	}
	if current.TokenID == nil {
		return false, nil
	}

	var bindings sessionBindings
	if err := u.store.Load(ctx, sessionBindingPrefix+sess.ID, sessionBindingSchema, &bindings); err != nil {
		if apperrors.Is(err, settings.ErrSettingNotFound) {
			return false, nil
		}
		return false, err
	}
	for _, b := range bindings.Bindings {
		if b.VaultTokenID == current.TokenID.String() {
			return true, nil
		}
	}
	return false, nil
}

// Revoke is idempotent for an already revoked session.
func (u *sessionUseCase) Revoke(ctx context.Context, sessionID, reason, actor string) error {
	sess, err := u.repo.GetSession(ctx, sessionID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return ztDomain.ErrSessionNotFound
		}
		return err
	}
	if sess.Revoked {
		return nil
	}

	now := u.now()
	sess.Revoked = true
	sess.RevokedAt = &now
	sess.RevokeReason = reason
	if err := u.repo.UpdateSession(ctx, sess); err != nil {
		return err
	}

	revokedTokens, err := u.revokeBoundTokens(ctx, sess, reason)
	if err != nil {
		return err
	}

	severity := auditDomain.SeverityInfo
	if strings.Contains(strings.ToLower(reason), "hijack") {
		severity = auditDomain.SeverityCritical
	}
	u.publish(ctx, auditDomain.EventSessionRevoked, severity, sess, auditDomain.OutcomeSuccess, reason)
	u.logger.Info("session revoked",
		slog.String("user_id", sess.UserID),
		slog.String("reason", reason),
		slog.Int("tokens_revoked", revokedTokens),
	)

	return u.audit.Record(ctx, auditDomain.Entry{
		Action:       ActionSessionRevoke,
		ResourceType: resourceSession,
		ResourceID:   sess.ID,
		ActorID:      actor,
		Details:      map[string]any{"reason": reason, "tokensRevoked": revokedTokens},
	})
}

func (u *sessionUseCase) revokeBoundTokens(ctx context.Context, sess *ztDomain.Session, reason string) (int, error) {
	key := sessionBindingPrefix + sess.ID
	var bindings sessionBindings
	if err := u.store.Load(ctx, key, sessionBindingSchema, &bindings); err != nil {
		if apperrors.Is(err, settings.ErrSettingNotFound) {
			return 0, nil
		}
		return 0, err
	}

	revoked := 0
	for _, b := range bindings.Bindings {
		id, err := uuid.Parse(b.VaultTokenID)
		if err != nil {
			continue
		}
		if err := u.tokens.Revoke(ctx, id, systemActor); err != nil {
			if !apperrors.Is(err, apperrors.ErrPreconditionFailed) && !apperrors.Is(err, apperrors.ErrNotFound) {
				u.logger.Error("failed to revoke session token",
					slog.String("token_id", b.VaultTokenID),
					slog.Any("error", err),
				)
			}
			continue
		}
		if err := u.audit.Record(ctx, auditDomain.Entry{
			Action:       ActionSessionTokenRevoke,
			ResourceType: resourceVaultToken,
			ResourceID:   b.VaultTokenID,
			ActorID:      sess.UserID,
			Details:      map[string]any{"sessionId": sess.ID, "reason": reason},
		}); err != nil {
			return revoked, err
		}
		revoked++
	}

	if err := u.store.Delete(ctx, key); err != nil {
		return revoked, err
	}
	return revoked, nil
}

func (u *sessionUseCase) List(ctx context.Context, userID string) ([]*ztDomain.Session, error) {
	return u.repo.ListActiveSessions(ctx, userID, u.now())
}

func (u *sessionUseCase) BindToken(ctx context.Context, sessionID string, tokenID uuid.UUID) error {
	sess, err := u.repo.GetSession(ctx, sessionID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return ztDomain.ErrSessionNotFound
		}
		return err
	}
	if !sess.IsActive(u.now()) {
		return apperrors.Wrap(apperrors.ErrPreconditionFailed, "session is not active")
	}

	key := sessionBindingPrefix + sessionID
	var bindings sessionBindings
	if err := u.store.Load(ctx, key, sessionBindingSchema, &bindings); err != nil &&
		!apperrors.Is(err, settings.ErrSettingNotFound) {
		return err
	}
	bindings.Bindings = append(bindings.Bindings, ztDomain.SessionBinding{
		SessionID:    sessionID,
		VaultTokenID: tokenID.String(),
		UserID:       sess.UserID,
		BoundAt:      u.now(),
	})
	return u.store.Save(ctx, key, sessionBindingSchema, &bindings)
}

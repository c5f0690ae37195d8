// Package usecase implements zero-trust access decisions, continuous access evaluation,
// adaptive sessions and device trust.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

// PolicyRepository persists zero-trust policies, one per action.
type PolicyRepository interface {
	GetZTPolicy(ctx context.Context, action ztDomain.Action) (*ztDomain.Policy, error)
	ListZTPolicies(ctx context.Context) ([]*ztDomain.Policy, error)
	UpsertZTPolicy(ctx context.Context, policy *ztDomain.Policy) error
}

// DeviceRiskRepository persists per-device risk snapshots.
type DeviceRiskRepository interface {
	GetDeviceRisk(ctx context.Context, userID, deviceID string) (*ztDomain.DeviceRisk, error)
	UpsertDeviceRisk(ctx context.Context, risk *ztDomain.DeviceRisk) error
	ListDeviceRisks(ctx context.Context, userID string) ([]*ztDomain.DeviceRisk, error)
}

// SessionRepository persists adaptive sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *ztDomain.Session) error
	GetSession(ctx context.Context, id string) (*ztDomain.Session, error)
	UpdateSession(ctx context.Context, session *ztDomain.Session) error
	ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]*ztDomain.Session, error)
}

// ActiveSessionLister lists the active sessions of every user for the periodic re-check.
type ActiveSessionLister interface {
	ListAllActiveSessions(ctx context.Context, now time.Time) ([]*ztDomain.Session, error)
}

// SessionRevoker ends a session and the tokens bound to it.
type SessionRevoker interface {
	Revoke(ctx context.Context, sessionID, reason, actor string) error
}

// TokenRevoker revokes vault tokens bound to a revoked session.
type TokenRevoker interface {
	Revoke(ctx context.Context, id uuid.UUID, actor string) error
}

// BreakGlass consumes one-time override codes.
type BreakGlass interface {
	Consume(ctx context.Context, code string) (bool, error)
}

// ZeroTrustUseCase decides every guarded action afresh.
type ZeroTrustUseCase interface {
	CheckAccess(ctx context.Context, req ztDomain.AccessRequest) (*ztDomain.Decision, error)
	CheckStepUp(action ztDomain.Action, current ztDomain.AuthLevel) ztDomain.StepUpRequirement
	GetPolicy(ctx context.Context, action ztDomain.Action) (*ztDomain.Policy, error)
	ListPolicies(ctx context.Context) ([]*ztDomain.Policy, error)
	UpdatePolicy(ctx context.Context, policy *ztDomain.Policy, actor string) error
	RefreshPolicies(ctx context.Context) error
	// SeedDefaults inserts the default policy of every action that has none.
	SeedDefaults(ctx context.Context) (int, error)
}

// ContinuousAccessUseCase re-evaluates live sessions.
type ContinuousAccessUseCase interface {
	Evaluate(ctx context.Context, sc ztDomain.SessionContext) (*ztDomain.CaeDecision, error)
	// Sweep re-evaluates every active session and revokes those that require
	// re-authentication. It returns the number revoked.
	Sweep(ctx context.Context) (int, error)
}

// SessionRequest is the context a session is created or validated in.
type SessionRequest struct {
	UserID            string
	IPAddress         string
	DeviceFingerprint string
	Country           string
	UserAgent         string
	// TokenID is the vault token presenting the session. A session owned by another user
	// is accepted only when this token is bound to it.
	TokenID *uuid.UUID
}

// SessionUseCase manages adaptive sessions.
type SessionUseCase interface {
	Create(ctx context.Context, req SessionRequest) (*ztDomain.Session, error)
	Validate(ctx context.Context, sessionID string, current SessionRequest) (*ztDomain.SessionValidation, error)
	// Revoke also revokes every vault token bound to the session.
	Revoke(ctx context.Context, sessionID, reason, actor string) error
	List(ctx context.Context, userID string) ([]*ztDomain.Session, error)
	BindToken(ctx context.Context, sessionID string, tokenID uuid.UUID) error
}

// DeviceTrustUseCase registers and grades devices.
type DeviceTrustUseCase interface {
	Register(ctx context.Context, userID string, signals ztDomain.DeviceSignals) (*ztDomain.DeviceRisk, error)
	Check(ctx context.Context, userID, deviceID string) (*ztDomain.TrustResult, error)
	Trust(ctx context.Context, userID, deviceID, actor string) error
}

package domain

import (
	"time"
)

// Session is an adaptive session bound to the context it was created in.
type Session struct {
	ID                string
	UserID            string
	IPAddress         string
	DeviceFingerprint string
	Country           string
	UserAgent         string
	CreatedAt         time.Time
	LastActivityAt    time.Time
	ExpiresAt         time.Time
	Revoked           bool
	RevokedAt         *time.Time
	RevokeReason      string
}

// IsActive reports whether the session is usable at now.
func (s *Session) IsActive(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// SessionValidation is the outcome of validating a session against the current context.
type SessionValidation struct {
	Valid           bool
	ViolationReason string
	IPChanged       bool
	DeviceChanged   bool
	CountryChanged  bool
	DriftScore      float64
	// StartedAt is when the session was created. Zero when the session was not found.
	StartedAt time.Time
}

// Context drift weights and the block threshold.
const (
	DriftIP             = 30
	DriftDevice         = 50
	DriftCountry        = 60
	DriftBlockAt        = 50
	DriftInvalidSession = 100
)

// ReasonSessionPrincipalMismatch rejects a session presented by someone other than its owner.
const ReasonSessionPrincipalMismatch = "Session principal mismatch"

// SessionContext is what continuous access evaluation knows about a live session.
type SessionContext struct {
	SessionID        string
	UserID           string
	DeviceID         string
	IPAddress        string
	Country          string
	CurrentAuthLevel AuthLevel
	SessionStartedAt time.Time
	LastPasswordAt   *time.Time
	IPChanged        bool
	CountryChanged   bool
	IsVPN            bool
	IsTor            bool
	HasActiveAnomaly bool
}

// CaeDecision is the outcome of a continuous re-evaluation.
type CaeDecision struct {
	Allowed           bool
	Reason            string
	RequiresReauth    bool
	RequiredAuthLevel AuthLevel
	EvaluatedAt       time.Time
}

// StepUpRequirement tells the caller whether to re-authenticate before an action.
type StepUpRequirement struct {
	Required       bool
	RequiredLevel  AuthLevel
	Reason         string
	TimeoutSeconds int
}

// SessionBinding links a vault token to the session that created it.
type SessionBinding struct {
	SessionID    string    `json:"sessionId"`
	VaultTokenID string    `json:"vaultTokenId"`
	UserID       string    `json:"userId"`
	BoundAt      time.Time `json:"boundAt"`
}

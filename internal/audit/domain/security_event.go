package domain

import (
	"strings"
	"time"
)

// Severity orders security events. The numeric value is the CEF severity.
type Severity int

const (
	SeverityInfo     Severity = 0
	SeverityLow      Severity = 3
	SeverityMedium   Severity = 5
	SeverityHigh     Severity = 8
	SeverityCritical Severity = 10
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "Info"
	case SeverityLow:
		return "Low"
	case SeverityMedium:
		return "Medium"
	case SeverityHigh:
		return "High"
	case SeverityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Event types emitted by the vault.
const (
	EventLoginSuccess         = "LoginSuccess"
	EventLoginFailed          = "LoginFailed"
	EventZeroTrustDenied      = "ZeroTrustDenied"
	EventBreakGlassUsed       = "BreakGlassUsed"
	EventAdminBypass          = "AdminBypass"
	EventThreatDetected       = "ThreatDetected"
	EventThreatBlocked        = "ThreatBlocked"
	EventSessionViolation     = "SessionViolation"
	EventSessionRevoked       = "SessionRevoked"
	EventConcurrentSession    = "ConcurrentSession"
	EventContinuousAccessDeny = "ContinuousAccessDenied"
	EventUnsealFailed         = "UnsealFailed"
	EventBackupCreated        = "BackupCreated"
	EventPolicyDenied         = "PolicyDenied"
)

// Outcomes.
const (
	OutcomeAllow   = "allow"
	OutcomeDeny    = "deny"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// SecurityEvent is a security-relevant occurrence routed to SIEM sinks.
type SecurityEvent struct {
	ID           string            `json:"id"`
	EventType    string            `json:"eventType"`
	Severity     Severity          `json:"severity"`
	Source       string            `json:"source"`
	Action       string            `json:"action"`
	UserID       string            `json:"userId,omitempty"`
	IPAddress    string            `json:"ipAddress,omitempty"`
	Country      string            `json:"country,omitempty"`
	ResourceType string            `json:"resourceType,omitempty"`
	ResourceID   string            `json:"resourceId,omitempty"`
	Outcome      string            `json:"outcome,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Extensions   map[string]string `json:"extensions,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// EventFilter narrows stored security event listings.
type EventFilter struct {
	UserID    string
	EventType string
	Since     time.Time
	Limit     int
}

var cefEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`, `=`, `\=`, "\r", `\r`, "\n", `\n`)

// CEFEscape escapes a value for a CEF header or extension field. Line breaks are
// escaped so a value cannot start a new CEF record.
func CEFEscape(s string) string {
	return cefEscaper.Replace(s)
}

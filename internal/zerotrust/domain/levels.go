// Package domain holds the zero-trust vocabulary: authentication levels, risk levels,
// per-action policies, access contexts and decisions, device risk, threat signals and
// adaptive sessions.
package domain

import (
	"strings"
)

// AuthLevel orders how strongly the caller has authenticated.
type AuthLevel int

const (
	AuthNone AuthLevel = iota
	AuthSession
	AuthPassword
	AuthFreshSession
	AuthMFA
	AuthBiometric
)

var authLevelNames = map[AuthLevel]string{
	AuthNone:         "None",
	AuthSession:      "Session",
	AuthPassword:     "Password",
	AuthFreshSession: "FreshSession",
	AuthMFA:          "MFA",
	AuthBiometric:    "Biometric",
}

func (a AuthLevel) String() string {
	if s, ok := authLevelNames[a]; ok {
		return s
	}
	return "Unknown"
}

// ParseAuthLevel is case-insensitive.
func ParseAuthLevel(s string) (AuthLevel, bool) {
	for level, name := range authLevelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return level, true
		}
	}
	return AuthNone, false
}

// RiskLevel classifies an accumulated risk score.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskLevelNames = map[RiskLevel]string{
	RiskLow:      "Low",
	RiskMedium:   "Medium",
	RiskHigh:     "High",
	RiskCritical: "Critical",
}

func (r RiskLevel) String() string {
	if s, ok := riskLevelNames[r]; ok {
		return s
	}
	return "Unknown"
}

// ParseRiskLevel is case-insensitive.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	for level, name := range riskLevelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return level, true
		}
	}
	return RiskLow, false
}

// Risk thresholds shared by device risk, threat assessment and continuous evaluation.
const (
	CriticalThreshold = 70
	HighThreshold     = 50
	MediumThreshold   = 30
	MaxRiskScore      = 100
)

// ClassifyRisk is the single source of truth for mapping a score to a level.
func ClassifyRisk(score float64) RiskLevel {
	switch {
	case score >= CriticalThreshold:
		return RiskCritical
	case score >= HighThreshold:
		return RiskHigh
	case score >= MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RecommendedAction is what the caller should do with a request at a given risk level.
type RecommendedAction string

const (
	ActionAllow               RecommendedAction = "Allow"
	ActionAllowWithMonitoring RecommendedAction = "AllowWithMonitoring"
	ActionRequireMFA          RecommendedAction = "RequireMfa"
	ActionBlock               RecommendedAction = "BlockTemporary"
)

// Recommend maps a risk level to an action.
func Recommend(level RiskLevel) RecommendedAction {
	switch level {
	case RiskCritical:
		return ActionBlock
	case RiskHigh:
		return ActionRequireMFA
	case RiskMedium:
		return ActionAllowWithMonitoring
	default:
		return ActionAllow
	}
}

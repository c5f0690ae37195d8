// Package domain models compliance controls and framework reports scored over live vault state.
package domain

import (
	"time"
)

// Framework names.
const (
	FrameworkHIPAA = "HIPAA"
	FrameworkSOC2  = "SOC2"
	FrameworkGDPR  = "GDPR"
)

// Status of a single control.
type Status string

const (
	StatusPass    Status = "pass"
	StatusPartial Status = "partial"
	StatusFail    Status = "fail"
)

// Control is one scored requirement.
type Control struct {
	ID          string
	Name        string
	Description string
	Status      Status
	Score       int
	MaxScore    int
	Evidence    string
}

// Report is the scored result of one framework.
type Report struct {
	Framework   string
	Controls    []Control
	Score       int
	MaxScore    int
	Percentage  float64
	Grade       string
	GeneratedAt time.Time
}

// Summary combines every framework.
type Summary struct {
	Reports     []Report
	Percentage  float64
	Grade       string
	GeneratedAt time.Time
}

// Facts is the snapshot of vault state every framework is scored from.
type Facts struct {
	EncryptionConfigs      int
	EnabledConfigs         int
	AuditLogs              int
	Secrets                int
	VersionedSecrets       int
	Policies               int
	UserPolicies           int
	KmsHealthy             bool
	KmsProvider            string
	KekWrapped             bool
	ExpiredUnrevokedTokens int
	ActiveTokens           int
	ActiveSchedules        int
	DekPurposes            int
	DekRotated             bool
	UnsealConfigured       bool
	ActiveLeases           int
	ZeroTrustPolicies      int
	LastBackupAt           *time.Time
	SecurityEvents         int
	ActiveCredentials      int
}

// Grade maps a percentage to a letter grade.
func Grade(pct float64) string {
	switch {
	case pct >= 95:
		return "A+"
	case pct >= 90:
		return "A"
	case pct >= 85:
		return "A-"
	case pct >= 80:
		return "B+"
	case pct >= 75:
		return "B"
	case pct >= 70:
		return "B-"
	case pct >= 65:
		return "C+"
	case pct >= 60:
		return "C"
	case pct >= 50:
		return "D"
	default:
		return "F"
	}
}

// Finalize totals the controls and grades the report.
func (r *Report) Finalize() {
	r.Score, r.MaxScore = 0, 0
	for _, c := range r.Controls {
		r.Score += c.Score
		r.MaxScore += c.MaxScore
	}
	if r.MaxScore > 0 {
		r.Percentage = float64(r.Score) * 100 / float64(r.MaxScore)
	}
	r.Grade = Grade(r.Percentage)
}

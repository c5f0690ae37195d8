package domain

import (
	"time"
)

// AccessContext is everything known about the caller at decision time.
type AccessContext struct {
	UserID                   string
	DeviceID                 string
	IPAddress                string
	Country                  string
	UserAgent                string
	CurrentAuthLevel         AuthLevel
	LastPasswordVerification *time.Time
	IsVPN                    bool
	IsTor                    bool
	HasActiveAnomaly         bool
}

// AccessRequest asks whether an action may proceed.
type AccessRequest struct {
	Action  Action
	Context AccessContext
	// BreakGlassCode requests an override. It is honoured only when the policy allows
	// it and the code is a valid unused one.
	BreakGlassCode string
}

// Decision is the outcome of a zero-trust check.
type Decision struct {
	Allowed           bool
	Action            Action
	Reason            string
	FailedChecks      []string
	RiskLevel         RiskLevel
	RiskScore         float64
	RiskFactors       []string
	RequiresStepUp    bool
	RequiredAuthLevel AuthLevel
	BreakGlassUsed    bool
	DecidedAt         time.Time
}

// DeviceRisk is the persisted per-device risk snapshot, upserted after every decision.
type DeviceRisk struct {
	ID        string
	UserID    string
	DeviceID  string
	RiskLevel RiskLevel
	RiskScore float64
	Factors   []string
	IsTrusted bool
	IPAddress string
	Country   string
	UserAgent string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Device risk weights.
const (
	WeightVPNOrTor       = 30
	WeightUnknownCountry = 20
	WeightAnomaly        = 40
	WeightUnknownDevice  = 25
)

// ScoreContext sums the weighted device and context signals.
func ScoreContext(ctx AccessContext) (float64, []string) {
	var (
		score   float64
		factors []string
	)
	if ctx.IsVPN || ctx.IsTor {
		score += WeightVPNOrTor
		if ctx.IsTor {
			factors = append(factors, "Tor detected")
		} else {
			factors = append(factors, "VPN detected")
		}
	}
	if ctx.Country == "" {
		score += WeightUnknownCountry
		factors = append(factors, "Unknown country")
	}
	if ctx.HasActiveAnomaly {
		score += WeightAnomaly
		factors = append(factors, "Active anomaly")
	}
	if ctx.DeviceID == "" {
		score += WeightUnknownDevice
		factors = append(factors, "Unknown device")
	}
	if score > MaxRiskScore {
		score = MaxRiskScore
	}
	return score, factors
}

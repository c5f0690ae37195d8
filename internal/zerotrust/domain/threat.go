package domain

import (
	"time"
)

// Threat signal types and their weights.
const (
	SignalTorExit          = "TOR_EXIT"
	SignalVPNProxy         = "VPN_PROXY"
	SignalKnownAttacker    = "KNOWN_ATTACKER"
	SignalHostingIP        = "HOSTING_IP"
	SignalMissingUA        = "MISSING_UA"
	SignalBotUA            = "BOT_UA"
	SignalShortUA          = "SHORT_UA"
	SignalScannerUA        = "SCANNER_UA"
	SignalImpossibleTravel = "IMPOSSIBLE_TRAVEL"
	SignalBruteForce       = "BRUTE_FORCE"
	SignalAnomalousAccess  = "ANOMALOUS_ACCESS"
	SignalInputAttack      = "INPUT_ATTACK"
	SignalOffHours         = "OFF_HOURS"
)

// SignalWeights maps each signal type to its contribution to the threat score.
var SignalWeights = map[string]float64{
	SignalTorExit:          30,
	SignalVPNProxy:         15,
	SignalKnownAttacker:    50,
	SignalHostingIP:        10,
	SignalMissingUA:        15,
	SignalBotUA:            20,
	SignalShortUA:          10,
	SignalScannerUA:        35,
	SignalImpossibleTravel: 40,
	SignalBruteForce:       45,
	SignalAnomalousAccess:  25,
	SignalInputAttack:      35,
	SignalOffHours:         5,
}

// RequestContext is the raw request as seen by threat assessment.
type RequestContext struct {
	UserID            string
	Username          string
	IPAddress         string
	Country           string
	UserAgent         string
	RequestPath       string
	DeviceFingerprint string
	SessionID         string
	Timestamp         time.Time
}

// Signal is one contributing finding.
type Signal struct {
	Type        string
	Description string
	Weight      float64
}

// Assessment is the outcome of threat assessment.
type Assessment struct {
	Score       float64
	Level       RiskLevel
	Signals     []Signal
	Action      RecommendedAction
	ShouldBlock bool
	BlockReason string
	AssessedAt  time.Time
}

// IPIntel is what is known about an IP address.
type IPIntel struct {
	IPAddress     string
	IsTor         bool
	IsVPN         bool
	IsHosting     bool
	IsKnownAttack bool
	IsPrivate     bool
	ThreatScore   float64
	CheckedAt     time.Time
}

// InputValidation reports injection signatures found in a value.
type InputValidation struct {
	Clean   bool
	Threats []string
}

// LoginRecord is one entry of a user's login history.
type LoginRecord struct {
	IPAddress string
	Country   string
	At        time.Time
}

// Baseline is a user's learned access pattern.
type Baseline struct {
	UserID      string
	KnownIPs    map[string]struct{}
	Countries   map[string]struct{}
	Hours       map[int]struct{}
	SampleCount int
	BuiltAt     time.Time
}

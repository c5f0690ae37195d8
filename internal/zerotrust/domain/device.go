package domain

// DeviceSignals are the client attributes a fingerprint is computed from.
type DeviceSignals struct {
	UserAgent        string
	AcceptLanguage   string
	Platform         string
	Timezone         string
	ScreenResolution string
	IPAddress        string
	Country          string
}

// TrustLevel grades a registered device.
type TrustLevel string

const (
	TrustTrusted          TrustLevel = "Trusted"
	TrustPartiallyTrusted TrustLevel = "PartiallyTrusted"
	TrustUntrusted        TrustLevel = "Untrusted"
	TrustUnknown          TrustLevel = "Unknown"
)

// TrustResult is the outcome of a device trust check.
type TrustResult struct {
	DeviceID  string
	Level     TrustLevel
	RiskLevel RiskLevel
	RiskScore float64
	Reason    string
}

// TrustLevelFor derives the trust level from a stored device risk snapshot.
func TrustLevelFor(d *DeviceRisk) TrustLevel {
	switch {
	case d == nil:
		return TrustUnknown
	case d.IsTrusted:
		return TrustTrusted
	case d.RiskLevel <= RiskMedium:
		return TrustPartiallyTrusted
	default:
		return TrustUntrusted
	}
}

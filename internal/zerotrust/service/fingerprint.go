package service

import (
	"strings"

	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

const unknownSignal = "unknown"

// Fingerprint hashes the device signals into a stable lowercase hex id. The IP address
// and country are excluded so a device keeps its id across networks.
func Fingerprint(signals ztDomain.DeviceSignals) string {
	parts := []string{
		NormalizeUserAgent(signals.UserAgent),
		orUnknown(signals.AcceptLanguage),
		orUnknown(signals.Platform),
		orUnknown(signals.Timezone),
		orUnknown(signals.ScreenResolution),
	}
	return cryptoService.SHA256Hex([]byte(strings.Join(parts, "|")))
}

// MatchesFingerprint reports whether signals still produce the stored fingerprint.
func MatchesFingerprint(existing string, signals ztDomain.DeviceSignals) bool {
	return strings.EqualFold(existing, Fingerprint(signals))
}

func orUnknown(s string) string {
	if s == "" {
		return unknownSignal
	}
	return s
}

// NormalizeUserAgent reduces a user agent to "browser/os" so browser upgrades do not
// change the fingerprint.
func NormalizeUserAgent(ua string) string {
	if ua == "" {
		return unknownSignal
	}
	lower := strings.ToLower(ua)
	has := func(s string) bool { return strings.Contains(lower, s) }

	browser := "other"
	switch {
	case has("chrome") && !has("edge"):
		browser = "chrome"
	case has("firefox"):
		browser = "firefox"
	case has("safari") && !has("chrome"):
		browser = "safari"
	case has("edg"):
		browser = "edge"
	}

	os := "other"
	switch {
	case has("windows"):
		os = "windows"
	case has("mac"):
		os = "macos"
	case has("linux"):
		os = "linux"
	case has("android"):
		os = "android"
	case has("iphone"), has("ipad"):
		os = "ios"
	}
	return browser + "/" + os
}

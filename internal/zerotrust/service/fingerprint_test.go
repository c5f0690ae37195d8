package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

func TestNormalizeUserAgent(t *testing.T) {
	tests := map[string]string{
		"":        "unknown",
		browserUA: "chrome/windows",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Version/17.0 Safari/605.1.15": "safari/macos",
		"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0":                         "firefox/linux",
		"curl/8.0": "other/other",
	}
	for ua, want := range tests {
		assert.Equal(t, want, NormalizeUserAgent(ua), ua)
	}
}

func TestFingerprint(t *testing.T) {
	signals := ztDomain.DeviceSignals{
		UserAgent:      browserUA,
		AcceptLanguage: "vi-VN",
		Platform:       "Win32",
		Timezone:       "Asia/Ho_Chi_Minh",
		IPAddress:      "1.1.1.1",
	}

	fp := Fingerprint(signals)
	assert.Len(t, fp, 64)

	moved := signals
	moved.IPAddress = "8.8.8.8"
	moved.Country = "US"
	assert.Equal(t, fp, Fingerprint(moved))

	upgraded := signals
	upgraded.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/127.0 Safari/537.36"
	assert.True(t, MatchesFingerprint(fp, upgraded))

	other := signals
	other.Timezone = "Europe/Berlin"
	assert.False(t, MatchesFingerprint(fp, other))
}

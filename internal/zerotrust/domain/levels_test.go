package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRisk(t *testing.T) {
	assert.Equal(t, RiskLow, ClassifyRisk(0))
	assert.Equal(t, RiskLow, ClassifyRisk(29.9))
	assert.Equal(t, RiskMedium, ClassifyRisk(30))
	assert.Equal(t, RiskHigh, ClassifyRisk(50))
	assert.Equal(t, RiskCritical, ClassifyRisk(70))
	assert.Equal(t, RiskCritical, ClassifyRisk(100))
}

func TestRecommend(t *testing.T) {
	assert.Equal(t, ActionAllow, Recommend(RiskLow))
	assert.Equal(t, ActionAllowWithMonitoring, Recommend(RiskMedium))
	assert.Equal(t, ActionRequireMFA, Recommend(RiskHigh))
	assert.Equal(t, ActionBlock, Recommend(RiskCritical))
}

func TestParseLevels(t *testing.T) {
	level, ok := ParseAuthLevel("freshsession")
	assert.True(t, ok)
	assert.Equal(t, AuthFreshSession, level)
	assert.True(t, AuthMFA > AuthFreshSession)

	_, ok = ParseAuthLevel("retina")
	assert.False(t, ok)

	risk, ok := ParseRiskLevel("HIGH")
	assert.True(t, ok)
	assert.Equal(t, RiskHigh, risk)
}

func TestScoreContext(t *testing.T) {
	score, factors := ScoreContext(AccessContext{DeviceID: "d1", Country: "VN"})
	assert.Zero(t, score)
	assert.Empty(t, factors)

	score, factors = ScoreContext(AccessContext{IsTor: true, HasActiveAnomaly: true})
	assert.Equal(t, float64(100), score)
	assert.Contains(t, factors, "Tor detected")
	assert.Equal(t, RiskCritical, ClassifyRisk(score))

	score, _ = ScoreContext(AccessContext{DeviceID: "d1", Country: "VN", IsVPN: true})
	assert.Equal(t, RiskMedium, ClassifyRisk(score))
}

func TestTrustLevelFor(t *testing.T) {
	assert.Equal(t, TrustUnknown, TrustLevelFor(nil))
	assert.Equal(t, TrustTrusted, TrustLevelFor(&DeviceRisk{IsTrusted: true, RiskLevel: RiskHigh}))
	assert.Equal(t, TrustPartiallyTrusted, TrustLevelFor(&DeviceRisk{RiskLevel: RiskMedium}))
	assert.Equal(t, TrustUntrusted, TrustLevelFor(&DeviceRisk{RiskLevel: RiskHigh}))
}

func TestDefaultPolicies(t *testing.T) {
	policies := DefaultPolicies()
	assert.Len(t, policies, 7)
	for _, p := range policies {
		assert.True(t, p.Active)
	}
	assert.True(t, policies[0].CountryAllowed("vn"))
	assert.False(t, policies[0].CountryAllowed("US"))
}

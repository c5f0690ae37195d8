package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is a vault operation guarded by a zero-trust policy.
type Action string

const (
	ActionVaultUnseal      Action = "VaultUnseal"
	ActionSecretRead       Action = "SecretRead"
	ActionSecretWrite      Action = "SecretWrite"
	ActionSecretDelete     Action = "SecretDelete"
	ActionSecretExport     Action = "SecretExport"
	ActionKeyRotate        Action = "KeyRotate"
	ActionBreakGlassAccess Action = "BreakGlassAccess"
)

// Policy is the zero-trust rule set for one action.
type Policy struct {
	ID                      uuid.UUID
	Action                  Action
	RequiredAuthLevel       AuthLevel
	MaxAllowedRisk          RiskLevel
	RequireTrustedDevice    bool
	RequireFreshSession     bool
	BlockAnomaly            bool
	RequireGeoFence         bool
	AllowedCountries        []string
	BlockVpnTor             bool
	AllowBreakGlassOverride bool
	Active                  bool
	UpdatedBy               string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// CountryAllowed is a case-insensitive allow-list check.
func (p *Policy) CountryAllowed(country string) bool {
	for _, c := range p.AllowedCountries {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(country)) {
			return true
		}
	}
	return false
}

// DefaultPolicies returns the seeded policy set.
func DefaultPolicies() []*Policy {
	vn := []string{"VN"}
	policies := []*Policy{
		{Action: ActionVaultUnseal, RequiredAuthLevel: AuthPassword, MaxAllowedRisk: RiskMedium,
			BlockAnomaly: true, RequireGeoFence: true, AllowedCountries: vn, AllowBreakGlassOverride: true},
		{Action: ActionSecretRead, RequiredAuthLevel: AuthSession, MaxAllowedRisk: RiskMedium},
		{Action: ActionSecretWrite, RequiredAuthLevel: AuthFreshSession, MaxAllowedRisk: RiskMedium,
			RequireFreshSession: true, BlockAnomaly: true, AllowBreakGlassOverride: true},
		{Action: ActionSecretDelete, RequiredAuthLevel: AuthPassword, MaxAllowedRisk: RiskLow,
			RequireTrustedDevice: true, RequireFreshSession: true, BlockAnomaly: true,
			RequireGeoFence: true, AllowedCountries: vn, BlockVpnTor: true, AllowBreakGlassOverride: true},
		{Action: ActionSecretExport, RequiredAuthLevel: AuthMFA, MaxAllowedRisk: RiskLow,
			RequireTrustedDevice: true, RequireFreshSession: true, BlockAnomaly: true,
			RequireGeoFence: true, AllowedCountries: vn, BlockVpnTor: true, AllowBreakGlassOverride: true},
		{Action: ActionKeyRotate, RequiredAuthLevel: AuthMFA, MaxAllowedRisk: RiskLow,
			RequireTrustedDevice: true, RequireFreshSession: true, BlockAnomaly: true,
			RequireGeoFence: true, AllowedCountries: vn, BlockVpnTor: true, AllowBreakGlassOverride: true},
		{Action: ActionBreakGlassAccess, RequiredAuthLevel: AuthBiometric, MaxAllowedRisk: RiskCritical},
	}
	for _, p := range policies {
		p.Active = true
	}
	return policies
}

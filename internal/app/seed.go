package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "github.com/allisson/keyvault/internal/errors"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

// PolicySeed is the YAML document accepted by seed-policies and ZT_POLICY_FILE.
//
//	zero_trust:
//	  - action: SecretDelete
//	    required_auth_level: MFA
//	    max_allowed_risk: Low
//	policies:
//	  - name: app-read
//	    path_pattern: app/*
//	    capabilities: [read, list]
//	assignments:
//	  - user_id: svc-billing
//	    policy: app-read
type PolicySeed struct {
	ZeroTrust   []ZeroTrustSeed   `yaml:"zero_trust"`
	Policies    []VaultPolicySeed `yaml:"policies"`
	Assignments []AssignmentSeed  `yaml:"assignments"`
}

// ZeroTrustSeed overrides the default policy of one action. Omitted fields keep the
// stored value.
type ZeroTrustSeed struct {
	Action                  string   `yaml:"action"`
	RequiredAuthLevel       string   `yaml:"required_auth_level"`
	MaxAllowedRisk          string   `yaml:"max_allowed_risk"`
	RequireTrustedDevice    *bool    `yaml:"require_trusted_device"`
	RequireFreshSession     *bool    `yaml:"require_fresh_session"`
	BlockAnomaly            *bool    `yaml:"block_anomaly"`
	RequireGeoFence         *bool    `yaml:"require_geo_fence"`
	AllowedCountries        []string `yaml:"allowed_countries"`
	BlockVpnTor             *bool    `yaml:"block_vpn_tor"`
	AllowBreakGlassOverride *bool    `yaml:"allow_break_glass_override"`
	Active                  *bool    `yaml:"active"`
}

type VaultPolicySeed struct {
	Name         string   `yaml:"name"`
	PathPattern  string   `yaml:"path_pattern"`
	Capabilities []string `yaml:"capabilities"`
	Description  string   `yaml:"description"`
}

type AssignmentSeed struct {
	UserID string `yaml:"user_id"`
	Policy string `yaml:"policy"`
}

// SeedReport counts what a seed run changed.
type SeedReport struct {
	DefaultsCreated    int
	ZeroTrustUpdated   int
	PoliciesCreated    int
	PoliciesUpdated    int
	AssignmentsCreated int
}

// LoadPolicySeed reads a seed file.
func LoadPolicySeed(path string) (*PolicySeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy seed file: %w", err)
	}
	return ParsePolicySeed(raw)
}

// ParsePolicySeed decodes a seed document, rejecting unknown fields.
func ParsePolicySeed(raw []byte) (*PolicySeed, error) {
	var seed PolicySeed
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&seed); err != nil {
		if apperrors.Is(err, io.EOF) {
			return &seed, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "invalid policy seed: "+err.Error())
	}
	return &seed, nil
}

// Bootstrap seeds the default zero-trust policies and applies ZT_POLICY_FILE when set.
// Without seeded policies every guarded action is denied.
func (c *Container) Bootstrap(ctx context.Context) (*SeedReport, error) {
	var seed *PolicySeed
	if c.config.ZTPolicyFile != "" {
		loaded, err := LoadPolicySeed(c.config.ZTPolicyFile)
		if err != nil {
			return nil, err
		}
		seed = loaded
	}
	return c.SeedPolicies(ctx, seed, "system")
}

// SeedPolicies inserts missing zero-trust defaults, then applies seed. seed may be nil.
func (c *Container) SeedPolicies(ctx context.Context, seed *PolicySeed, actor string) (*SeedReport, error) {
	zeroTrust, err := c.ZeroTrustUseCase()
	if err != nil {
		return nil, err
	}

	report := &SeedReport{}
	if report.DefaultsCreated, err = zeroTrust.SeedDefaults(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed default zero-trust policies: %w", err)
	}
	if seed == nil {
		return report, nil
	}

	for _, s := range seed.ZeroTrust {
		existing, err := zeroTrust.GetPolicy(ctx, ztDomain.Action(s.Action))
		if err != nil {
			return report, fmt.Errorf("zero-trust policy %q: %w", s.Action, err)
		}
		if err := s.apply(existing); err != nil {
			return report, err
		}
		if err := zeroTrust.UpdatePolicy(ctx, existing, actor); err != nil {
			return report, fmt.Errorf("zero-trust policy %q: %w", s.Action, err)
		}
		report.ZeroTrustUpdated++
	}

	if len(seed.Policies) == 0 && len(seed.Assignments) == 0 {
		return report, nil
	}
	policies, err := c.PolicyUseCase()
	if err != nil {
		return report, err
	}

	for _, s := range seed.Policies {
		p := &policyDomain.Policy{
			Name:        s.Name,
			PathPattern: s.PathPattern,
			Description: s.Description,
		}
		for _, capability := range s.Capabilities {
			p.Capabilities = append(p.Capabilities, policyDomain.Capability(capability))
		}

		_, err := policies.CreatePolicy(ctx, p, actor)
		switch {
		case err == nil:
			report.PoliciesCreated++
		case apperrors.Is(err, apperrors.ErrConflict):
			if _, err := policies.UpdatePolicy(ctx, p, actor); err != nil {
				return report, fmt.Errorf("policy %q: %w", s.Name, err)
			}
			report.PoliciesUpdated++
		default:
			return report, fmt.Errorf("policy %q: %w", s.Name, err)
		}
	}

	for _, a := range seed.Assignments {
		err := policies.AssignPolicy(ctx, a.UserID, a.Policy, actor)
		switch {
		case err == nil:
			report.AssignmentsCreated++
		case apperrors.Is(err, apperrors.ErrConflict):
		default:
			return report, fmt.Errorf("assign %q to %q: %w", a.Policy, a.UserID, err)
		}
	}

	return report, nil
}

func (s ZeroTrustSeed) apply(p *ztDomain.Policy) error {
	if s.RequiredAuthLevel != "" {
		level, ok := ztDomain.ParseAuthLevel(s.RequiredAuthLevel)
		if !ok {
			return apperrors.Wrap(apperrors.ErrInvalidInput, "unknown auth level "+s.RequiredAuthLevel)
		}
		p.RequiredAuthLevel = level
	}
	if s.MaxAllowedRisk != "" {
		level, ok := ztDomain.ParseRiskLevel(s.MaxAllowedRisk)
		if !ok {
			return apperrors.Wrap(apperrors.ErrInvalidInput, "unknown risk level "+s.MaxAllowedRisk)
		}
		p.MaxAllowedRisk = level
	}
	if s.AllowedCountries != nil {
		p.AllowedCountries = s.AllowedCountries
	}
	setBool(&p.RequireTrustedDevice, s.RequireTrustedDevice)
	setBool(&p.RequireFreshSession, s.RequireFreshSession)
	setBool(&p.BlockAnomaly, s.BlockAnomaly)
	setBool(&p.RequireGeoFence, s.RequireGeoFence)
	setBool(&p.BlockVpnTor, s.BlockVpnTor)
	setBool(&p.AllowBreakGlassOverride, s.AllowBreakGlassOverride)
	setBool(&p.Active, s.Active)
	return nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Package domain models path-pattern vault policies, their assignment to users,
// opaque vault tokens and the principals they authorize.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Capability is an operation a policy may grant on matching paths.
type Capability string

const (
	CapabilityRead   Capability = "read"
	CapabilityCreate Capability = "create"
	CapabilityUpdate Capability = "update"
	CapabilityDelete Capability = "delete"
	CapabilityList   Capability = "list"
	// CapabilitySudo grants every capability on matching paths.
	CapabilitySudo Capability = "sudo"
)

// AllCapabilities lists every capability in canonical order.
var AllCapabilities = []Capability{
	CapabilityRead, CapabilityCreate, CapabilityUpdate, CapabilityDelete, CapabilityList, CapabilitySudo,
}

// ParseCapability accepts any casing.
func ParseCapability(s string) (Capability, bool) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllCapabilities {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Policy grants capabilities on paths matching PathPattern.
type Policy struct {
	ID           uuid.UUID
	Name         string
	PathPattern  string
	Capabilities []Capability
	Description  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Grants reports whether the policy allows capability on path.
func (p *Policy) Grants(path string, capability Capability) bool {
	if !MatchPath(p.PathPattern, path) {
		return false
	}
	for _, c := range p.Capabilities {
		if c == CapabilitySudo || strings.EqualFold(string(c), string(capability)) {
			return true
		}
	}
	return false
}

// UserPolicy assigns a policy to a user of the surrounding application.
type UserPolicy struct {
	ID        uuid.UUID
	UserID    string
	PolicyID  uuid.UUID
	CreatedAt time.Time
}

// Principal roles and auth methods.
const (
	RoleAdmin = "admin"

	AuthMethodSession    = "session"
	AuthMethodVaultToken = "vault_token"

	// RootPolicy on a vault token makes its holder an admin principal.
	RootPolicy = "root"
)

// Principal is the caller being authorized.
type Principal struct {
	UserID     string
	Role       string
	AuthMethod string
	// Policies are the policy names carried by a vault token.
	Policies []string
	TokenID  *uuid.UUID
}

// IsAdmin reports whether the principal short-circuits policy evaluation.
func (p Principal) IsAdmin() bool {
	return strings.EqualFold(p.Role, RoleAdmin)
}

// Evaluation is the result of a policy decision.
type Evaluation struct {
	Allowed       bool
	MatchedPolicy string
	Reason        string
}

// EffectivePolicy is a policy as it applies to a principal.
type EffectivePolicy struct {
	Name         string
	PathPattern  string
	Capabilities []Capability
	Source       string
}

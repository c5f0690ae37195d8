// Package usecase evaluates path-pattern policies and manages vault tokens.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
)

// PolicyRepository persists vault policies.
type PolicyRepository interface {
	CreatePolicy(ctx context.Context, policy *policyDomain.Policy) error
	UpdatePolicy(ctx context.Context, policy *policyDomain.Policy) error
	DeletePolicy(ctx context.Context, id uuid.UUID) error
	GetPolicyByName(ctx context.Context, name string) (*policyDomain.Policy, error)
	ListPolicies(ctx context.Context) ([]*policyDomain.Policy, error)
	ListPoliciesByNames(ctx context.Context, names []string) ([]*policyDomain.Policy, error)
}

// UserPolicyRepository persists policy assignments to application users.
type UserPolicyRepository interface {
	AssignPolicy(ctx context.Context, assignment *policyDomain.UserPolicy) error
	UnassignPolicy(ctx context.Context, userID string, policyID uuid.UUID) error
	ListUserPolicies(ctx context.Context, userID string) ([]*policyDomain.Policy, error)
	CountUserPolicies(ctx context.Context) (int, error)
}

// TokenRepository persists vault tokens.
type TokenRepository interface {
	CreateToken(ctx context.Context, token *policyDomain.Token) error
	GetToken(ctx context.Context, id uuid.UUID) (*policyDomain.Token, error)
	GetTokenByHash(ctx context.Context, hash string) (*policyDomain.Token, error)
	GetTokenByAccessor(ctx context.Context, accessor string) (*policyDomain.Token, error)
	ListTokens(ctx context.Context) ([]*policyDomain.Token, error)
	// ConsumeTokenUse atomically increments the use count of a valid token and returns
	// ErrPreconditionFailed when the token is revoked, expired or exhausted.
	ConsumeTokenUse(ctx context.Context, id uuid.UUID, now time.Time) error
	RevokeToken(ctx context.Context, id uuid.UUID, revokedAt time.Time) error
	// ListInvalidTokens returns unrevoked tokens that are expired or exhausted.
	ListInvalidTokens(ctx context.Context, now time.Time) ([]*policyDomain.Token, error)
}

// PolicyUseCase manages policies and authorizes principals.
type PolicyUseCase interface {
	// Evaluate is fail-closed: no matching policy denies. Denials and admin bypasses are audited.
	Evaluate(ctx context.Context, path string, capability policyDomain.Capability, principal policyDomain.Principal) (*policyDomain.Evaluation, error)
	EffectivePolicies(ctx context.Context, principal policyDomain.Principal) ([]policyDomain.EffectivePolicy, error)

	CreatePolicy(ctx context.Context, policy *policyDomain.Policy, actor string) (*policyDomain.Policy, error)
	UpdatePolicy(ctx context.Context, policy *policyDomain.Policy, actor string) (*policyDomain.Policy, error)
	DeletePolicy(ctx context.Context, name string, actor string) error
	GetPolicy(ctx context.Context, name string) (*policyDomain.Policy, error)
	ListPolicies(ctx context.Context) ([]*policyDomain.Policy, error)
	AssignPolicy(ctx context.Context, userID, policyName, actor string) error
	UnassignPolicy(ctx context.Context, userID, policyName, actor string) error
}

// TokenUseCase issues and validates vault tokens.
type TokenUseCase interface {
	Create(ctx context.Context, req policyDomain.CreateTokenRequest) (*policyDomain.CreatedToken, error)
	// Validate returns nil, nil for unknown, revoked, expired or exhausted tokens and
	// consumes one use otherwise.
	Validate(ctx context.Context, rawToken string) (*policyDomain.TokenInfo, error)
	Lookup(ctx context.Context, accessor string) (*policyDomain.TokenInfo, error)
	Revoke(ctx context.Context, id uuid.UUID, actor string) error
	RevokeByAccessor(ctx context.Context, accessor string, actor string) error
	HasCapability(ctx context.Context, rawToken, path string, capability policyDomain.Capability) (bool, error)
	// RevokeInvalid revokes expired and exhausted tokens.
	RevokeInvalid(ctx context.Context) (int, error)
}

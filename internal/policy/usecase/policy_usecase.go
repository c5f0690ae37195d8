package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	"github.com/allisson/keyvault/internal/database"
	apperrors "github.com/allisson/keyvault/internal/errors"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	customValidation "github.com/allisson/keyvault/internal/validation"
)

// Audit actions written by the policy engine.
const (
	ActionPolicyCreate      = "policy.create"
	ActionPolicyUpdate      = "policy.update"
	ActionPolicyDelete      = "policy.delete"
	ActionPolicyAssign      = "policy.assign"
	ActionPolicyUnassign    = "policy.unassign"
	ActionPolicyDenied      = "policy.denied"
	ActionPolicyAdminBypass = "policy.admin_bypass"

	resourcePolicy = "policy"
	resourcePath   = "path"
	eventSource    = "PolicyEngine"

	sourceAdmin = "admin"
	sourceToken = "token"
	sourceUser  = "user"
)

type policyUseCase struct {
	txManager   database.TxManager
	policies    PolicyRepository
	assignments UserPolicyRepository
	audit       auditUsecase.Recorder
	events      auditService.EventPublisher
	logger      *slog.Logger
}

// NewPolicyUseCase creates the policy engine.
func NewPolicyUseCase(
	txManager database.TxManager,
	policies PolicyRepository,
	assignments UserPolicyRepository,
	audit auditUsecase.Recorder,
	events auditService.EventPublisher,
	logger *slog.Logger,
) PolicyUseCase {
	return &policyUseCase{
		txManager:   txManager,
		policies:    policies,
		assignments: assignments,
		audit:       audit,
		events:      events,
		logger:      logger,
	}
}

func (u *policyUseCase) principalPolicies(
	ctx context.Context,
	principal policyDomain.Principal,
) ([]*policyDomain.Policy, []string, error) {
	var (
		out     []*policyDomain.Policy
		sources []string
	)
	if len(principal.Policies) > 0 {
		byToken, err := u.policies.ListPoliciesByNames(ctx, principal.Policies)
		if err != nil {
			return nil, nil, err
		}
		for _, p := range byToken {
			out = append(out, p)
			sources = append(sources, sourceToken)
		}
	}
	if principal.AuthMethod != policyDomain.AuthMethodVaultToken && principal.UserID != "" {
		byUser, err := u.assignments.ListUserPolicies(ctx, principal.UserID)
		if err != nil {
			return nil, nil, err
		}
		for _, p := range byUser {
			out = append(out, p)
			sources = append(sources, sourceUser)
		}
	}
	return out, sources, nil
}

// Evaluate authorizes capability on path. Admin principals bypass matching, which is
// published as a High severity event and audited.
func (u *policyUseCase) Evaluate(
	ctx context.Context,
	path string,
	capability policyDomain.Capability,
	principal policyDomain.Principal,
) (*policyDomain.Evaluation, error) {
	if principal.IsAdmin() {
		u.events.Publish(ctx, auditDomain.SecurityEvent{
			ID:           uuid.NewString(),
			EventType:    auditDomain.EventAdminBypass,
			Severity:     auditDomain.SeverityHigh,
			Source:       eventSource,
			Action:       ActionPolicyAdminBypass,
			UserID:       principal.UserID,
			ResourceType: resourcePath,
			ResourceID:   path,
			Outcome:      auditDomain.OutcomeAllow,
			Reason:       "admin role bypasses policy evaluation",
			Extensions:   map[string]string{"capability": string(capability)},
			Timestamp:    time.Now().UTC(),
		})
		if err := u.record(ctx, ActionPolicyAdminBypass, path, principal, capability, "admin"); err != nil {
			return nil, err
		}
		return &policyDomain.Evaluation{
			Allowed:       true,
			MatchedPolicy: policyDomain.RoleAdmin,
			Reason:        "admin role",
		}, nil
	}

	policies, _, err := u.principalPolicies(ctx, principal)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load policies")
	}
	for _, p := range policies {
		if p.Grants(path, capability) {
			return &policyDomain.Evaluation{
				Allowed:       true,
				MatchedPolicy: p.Name,
				Reason:        fmt.Sprintf("policy %s grants %s", p.Name, capability),
			}, nil
		}
	}

	reason := fmt.Sprintf("no policy grants %s on %s", capability, path)
	u.events.Publish(ctx, auditDomain.SecurityEvent{
		ID:           uuid.NewString(),
		EventType:    auditDomain.EventPolicyDenied,
		Severity:     auditDomain.SeverityMedium,
		Source:       eventSource,
		Action:       ActionPolicyDenied,
		UserID:       principal.UserID,
		ResourceType: resourcePath,
		ResourceID:   path,
		Outcome:      auditDomain.OutcomeDeny,
		Reason:       reason,
		Timestamp:    time.Now().UTC(),
	})
	if err := u.record(ctx, ActionPolicyDenied, path, principal, capability, reason); err != nil {
		return nil, err
	}
	return &policyDomain.Evaluation{Allowed: false, Reason: reason}, nil
}

func (u *policyUseCase) record(
	ctx context.Context,
	action, path string,
	principal policyDomain.Principal,
	capability policyDomain.Capability,
	reason string,
) error {
	return u.audit.Record(ctx, auditDomain.Entry{
		Action:       action,
		ResourceType: resourcePath,
		ResourceID:   path,
		ActorID:      principal.UserID,
		Details: map[string]any{
			"capability": string(capability),
			"authMethod": principal.AuthMethod,
			"reason":     reason,
		},
	})
}

func (u *policyUseCase) EffectivePolicies(
	ctx context.Context,
	principal policyDomain.Principal,
) ([]policyDomain.EffectivePolicy, error) {
	if principal.IsAdmin() {
		return []policyDomain.EffectivePolicy{{
			Name:         policyDomain.RoleAdmin,
			PathPattern:  "**",
			Capabilities: []policyDomain.Capability{policyDomain.CapabilitySudo},
			Source:       sourceAdmin,
		}}, nil
	}

	policies, sources, err := u.principalPolicies(ctx, principal)
	if err != nil {
		return nil, err
	}
	out := make([]policyDomain.EffectivePolicy, 0, len(policies))
	for i, p := range policies {
		out = append(out, policyDomain.EffectivePolicy{
			Name:         p.Name,
			PathPattern:  p.PathPattern,
			Capabilities: p.Capabilities,
			Source:       sources[i],
		})
	}
	return out, nil
}

func validatePolicy(p *policyDomain.Policy) error {
	err := validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 128), customValidation.NoWhitespace),
		validation.Field(&p.PathPattern, validation.Required, validation.Length(1, 512)),
		validation.Field(&p.Capabilities, validation.Required),
	)
	if err != nil {
		return customValidation.WrapValidationError(err)
	}
	for i, c := range p.Capabilities {
		parsed, ok := policyDomain.ParseCapability(string(c))
		if !ok {
			return apperrors.Wrap(policyDomain.ErrInvalidCapability, string(c))
		}
		p.Capabilities[i] = parsed
	}
	if strings.Contains(p.PathPattern, "***") {
		return apperrors.Wrap(policyDomain.ErrInvalidPattern, p.PathPattern)
	}
	return nil
}

func (u *policyUseCase) CreatePolicy(
	ctx context.Context,
	policy *policyDomain.Policy,
	actor string,
) (*policyDomain.Policy, error) {
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	err := u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := u.policies.GetPolicyByName(txCtx, policy.Name); err == nil {
			return policyDomain.ErrPolicyExists
		} else if !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		now := time.Now().UTC()
		policy.ID = uuid.Must(uuid.NewV7())
		policy.CreatedAt = now
		policy.UpdatedAt = now
		if err := u.policies.CreatePolicy(txCtx, policy); err != nil {
			if apperrors.Is(err, apperrors.ErrConflict) {
				return policyDomain.ErrPolicyExists
			}
			return err
		}
		return u.recordPolicy(txCtx, ActionPolicyCreate, policy, actor)
	})
	if err != nil {
		return nil, err
	}
	return policy, nil
}

func (u *policyUseCase) recordPolicy(ctx context.Context, action string, p *policyDomain.Policy, actor string) error {
	caps := make([]string, 0, len(p.Capabilities))
	for _, c := range p.Capabilities {
		caps = append(caps, string(c))
	}
	return u.audit.Record(ctx, auditDomain.Entry{
		Action:       action,
		ResourceType: resourcePolicy,
		ResourceID:   p.Name,
		ActorID:      actor,
		Details:      map[string]any{"pathPattern": p.PathPattern, "capabilities": caps},
	})
}

func (u *policyUseCase) UpdatePolicy(
	ctx context.Context,
	policy *policyDomain.Policy,
	actor string,
) (*policyDomain.Policy, error) {
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	var updated *policyDomain.Policy
	err := u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := u.GetPolicy(txCtx, policy.Name)
		if err != nil {
			return err
		}
		existing.PathPattern = policy.PathPattern
		existing.Capabilities = policy.Capabilities
		existing.Description = policy.Description
		existing.UpdatedAt = time.Now().UTC()
		if err := u.policies.UpdatePolicy(txCtx, existing); err != nil {
			return err
		}
		updated = existing
		return u.recordPolicy(txCtx, ActionPolicyUpdate, existing, actor)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (u *policyUseCase) DeletePolicy(ctx context.Context, name string, actor string) error {
	return u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := u.GetPolicy(txCtx, name)
		if err != nil {
			return err
		}
		if err := u.policies.DeletePolicy(txCtx, existing.ID); err != nil {
			return err
		}
		return u.recordPolicy(txCtx, ActionPolicyDelete, existing, actor)
	})
}

func (u *policyUseCase) GetPolicy(ctx context.Context, name string) (*policyDomain.Policy, error) {
	p, err := u.policies.GetPolicyByName(ctx, name)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, policyDomain.ErrPolicyNotFound
		}
		return nil, err
	}
	return p, nil
}

func (u *policyUseCase) ListPolicies(ctx context.Context) ([]*policyDomain.Policy, error) {
	return u.policies.ListPolicies(ctx)
}

func (u *policyUseCase) AssignPolicy(ctx context.Context, userID, policyName, actor string) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "user id is required")
	}
	return u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		p, err := u.GetPolicy(txCtx, policyName)
		if err != nil {
			return err
		}
		err = u.assignments.AssignPolicy(txCtx, &policyDomain.UserPolicy{
			ID:        uuid.Must(uuid.NewV7()),
			UserID:    userID,
			PolicyID:  p.ID,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return u.audit.Record(txCtx, auditDomain.Entry{
			Action:       ActionPolicyAssign,
			ResourceType: resourcePolicy,
			ResourceID:   p.Name,
			ActorID:      actor,
			Details:      map[string]any{"userId": userID},
		})
	})
}

func (u *policyUseCase) UnassignPolicy(ctx context.Context, userID, policyName, actor string) error {
	return u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		p, err := u.GetPolicy(txCtx, policyName)
		if err != nil {
			return err
		}
		if err := u.assignments.UnassignPolicy(txCtx, userID, p.ID); err != nil {
			return err
		}
		return u.audit.Record(txCtx, auditDomain.Entry{
			Action:       ActionPolicyUnassign,
			ResourceType: resourcePolicy,
			ResourceID:   p.Name,
			ActorID:      actor,
			Details:      map[string]any{"userId": userID},
		})
	})
}

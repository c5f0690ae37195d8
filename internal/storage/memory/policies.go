package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/keyvault/internal/errors"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
)

func clonePolicy(p policyDomain.Policy) *policyDomain.Policy {
	p.Capabilities = append([]policyDomain.Capability(nil), p.Capabilities...)
	return &p
}

func (s *Store) CreatePolicy(_ context.Context, policy *policyDomain.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.policies {
		if strings.EqualFold(p.Name, policy.Name) {
			return apperrors.Wrap(apperrors.ErrConflict, "policy name exists")
		}
	}
	s.policies[policy.ID] = *clonePolicy(*policy)
	return nil
}

func (s *Store) UpdatePolicy(_ context.Context, policy *policyDomain.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[policy.ID]; !ok {
		return apperrors.ErrNotFound
	}
	s.policies[policy.ID] = *clonePolicy(*policy)
	return nil
}

// DeletePolicy also removes its user assignments.
func (s *Store) DeletePolicy(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(s.policies, id)

	kept := s.userPolicies[:0]
	for _, up := range s.userPolicies {
		if up.PolicyID != id {
			kept = append(kept, up)
		}
	}
	s.userPolicies = kept
	return nil
}

func (s *Store) GetPolicyByName(_ context.Context, name string) (*policyDomain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.policies {
		if strings.EqualFold(p.Name, name) {
			return clonePolicy(p), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *Store) sortedPoliciesLocked(keep func(p *policyDomain.Policy) bool) []*policyDomain.Policy {
	var out []*policyDomain.Policy
	for _, p := range s.policies {
		if keep(&p) {
			out = append(out, clonePolicy(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) ListPolicies(_ context.Context) ([]*policyDomain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedPoliciesLocked(func(*policyDomain.Policy) bool { return true }), nil
}

func (s *Store) ListPoliciesByNames(_ context.Context, names []string) ([]*policyDomain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(n)] = true
	}
	return s.sortedPoliciesLocked(func(p *policyDomain.Policy) bool { return want[strings.ToLower(p.Name)] }), nil
}

func (s *Store) AssignPolicy(_ context.Context, assignment *policyDomain.UserPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, up := range s.userPolicies {
		if up.UserID == assignment.UserID && up.PolicyID == assignment.PolicyID {
			return apperrors.Wrap(apperrors.ErrConflict, "policy already assigned")
		}
	}
	s.userPolicies = append(s.userPolicies, *assignment)
	return nil
}

func (s *Store) UnassignPolicy(_ context.Context, userID string, policyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, up := range s.userPolicies {
		if up.UserID == userID && up.PolicyID == policyID {
			s.userPolicies = append(s.userPolicies[:i], s.userPolicies[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (s *Store) ListUserPolicies(_ context.Context, userID string) ([]*policyDomain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assigned := make(map[uuid.UUID]bool)
	for _, up := range s.userPolicies {
		if up.UserID == userID {
			assigned[up.PolicyID] = true
		}
	}
	return s.sortedPoliciesLocked(func(p *policyDomain.Policy) bool { return assigned[p.ID] }), nil
}

func (s *Store) CountUserPolicies(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.userPolicies), nil
}

func cloneToken(t policyDomain.Token) *policyDomain.Token {
	t.Policies = cloneStrings(t.Policies)
	return &t
}

func (s *Store) CreateToken(_ context.Context, token *policyDomain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.TokenHash == token.TokenHash || t.Accessor == token.Accessor {
			return apperrors.ErrConflict
		}
	}
	s.tokens[token.ID] = *cloneToken(*token)
	return nil
}

func (s *Store) GetToken(_ context.Context, id uuid.UUID) (*policyDomain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneToken(t), nil
}

func (s *Store) findToken(match func(t *policyDomain.Token) bool) (*policyDomain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tokens {
		if match(&t) {
			return cloneToken(t), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *Store) GetTokenByHash(_ context.Context, hash string) (*policyDomain.Token, error) {
	return s.findToken(func(t *policyDomain.Token) bool { return t.TokenHash == hash })
}

func (s *Store) GetTokenByAccessor(_ context.Context, accessor string) (*policyDomain.Token, error) {
	return s.findToken(func(t *policyDomain.Token) bool { return t.Accessor == accessor })
}

func (s *Store) listTokens(keep func(t *policyDomain.Token) bool) []*policyDomain.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*policyDomain.Token
	for _, t := range s.tokens {
		if keep(&t) {
			out = append(out, cloneToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) ListTokens(_ context.Context) ([]*policyDomain.Token, error) {
	return s.listTokens(func(*policyDomain.Token) bool { return true }), nil
}

func (s *Store) ConsumeTokenUse(_ context.Context, id uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if !t.IsValid(now) {
		return apperrors.Wrap(apperrors.ErrPreconditionFailed, "token not valid")
	}
	t.UsesCount++
	t.LastUsedAt = &now
	s.tokens[id] = t
	return nil
}

func (s *Store) RevokeToken(_ context.Context, id uuid.UUID, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	t.Revoked = true
	t.RevokedAt = &revokedAt
	s.tokens[id] = t
	return nil
}

func (s *Store) ListInvalidTokens(_ context.Context, now time.Time) ([]*policyDomain.Token, error) {
	return s.listTokens(func(t *policyDomain.Token) bool {
		return !t.Revoked && (t.IsExpired(now) || t.IsExhausted())
	}), nil
}

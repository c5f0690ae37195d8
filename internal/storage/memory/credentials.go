package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	credentialDomain "github.com/allisson/keyvault/internal/credential/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
)

func cloneCredential(c credentialDomain.Credential) *credentialDomain.Credential {
	c.GrantedTables = cloneStrings(c.GrantedTables)
	return &c
}

func (s *Store) CreateCredential(_ context.Context, cred *credentialDomain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[cred.ID]; ok {
		return apperrors.ErrConflict
	}
	s.credentials[cred.ID] = *cloneCredential(*cred)
	return nil
}

func (s *Store) GetCredential(_ context.Context, id uuid.UUID) (*credentialDomain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneCredential(c), nil
}

func (s *Store) listCredentials(keep func(c *credentialDomain.Credential) bool) []*credentialDomain.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*credentialDomain.Credential
	for _, c := range s.credentials {
		if keep(&c) {
			out = append(out, cloneCredential(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) ListCredentials(_ context.Context, includeRevoked bool) ([]*credentialDomain.Credential, error) {
	return s.listCredentials(func(c *credentialDomain.Credential) bool {
		return includeRevoked || !c.Revoked
	}), nil
}

func (s *Store) RevokeCredential(_ context.Context, id uuid.UUID, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.Revoked = true
	c.RevokedAt = &revokedAt
	s.credentials[id] = c
	return nil
}

func (s *Store) ListExpiredCredentials(_ context.Context, now time.Time) ([]*credentialDomain.Credential, error) {
	return s.listCredentials(func(c *credentialDomain.Credential) bool {
		return !c.Revoked && c.IsExpired(now)
	}), nil
}

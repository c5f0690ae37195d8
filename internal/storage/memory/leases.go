package memory

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/allisson/keyvault/internal/errors"
	leaseDomain "github.com/allisson/keyvault/internal/lease/domain"
)

func (s *Store) CreateLease(_ context.Context, lease *leaseDomain.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leases[lease.ID]; ok {
		return apperrors.ErrConflict
	}
	s.leases[lease.ID] = *lease
	return nil
}

func (s *Store) GetLease(_ context.Context, id string) (*leaseDomain.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.leases[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &l, nil
}

func (s *Store) UpdateLease(_ context.Context, lease *leaseDomain.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leases[lease.ID]; !ok {
		return apperrors.ErrNotFound
	}
	s.leases[lease.ID] = *lease
	return nil
}

func (s *Store) listLeases(keep func(l *leaseDomain.Lease) bool) []*leaseDomain.Lease {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*leaseDomain.Lease
	for _, l := range s.leases {
		if keep(&l) {
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}

func (s *Store) ListActiveLeases(_ context.Context, now time.Time) ([]*leaseDomain.Lease, error) {
	return s.listLeases(func(l *leaseDomain.Lease) bool { return l.IsActive(now) }), nil
}

func (s *Store) ListExpiredLeases(_ context.Context, now time.Time) ([]*leaseDomain.Lease, error) {
	return s.listLeases(func(l *leaseDomain.Lease) bool { return !l.Revoked && l.IsExpired(now) }), nil
}

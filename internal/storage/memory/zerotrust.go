package memory

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/allisson/keyvault/internal/errors"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

func (s *Store) GetZTPolicy(_ context.Context, action ztDomain.Action) (*ztDomain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.ztPolicies[action]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	p.AllowedCountries = cloneStrings(p.AllowedCountries)
	return &p, nil
}

func (s *Store) ListZTPolicies(_ context.Context) ([]*ztDomain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ztDomain.Policy, 0, len(s.ztPolicies))
	for _, p := range s.ztPolicies {
		p.AllowedCountries = cloneStrings(p.AllowedCountries)
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out, nil
}

func (s *Store) UpsertZTPolicy(_ context.Context, policy *ztDomain.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *policy
	p.AllowedCountries = cloneStrings(policy.AllowedCountries)
	s.ztPolicies[policy.Action] = p
	return nil
}

func deviceKey(userID, deviceID string) string {
	return userID + "\x00" + deviceID
}

func (s *Store) GetDeviceRisk(_ context.Context, userID, deviceID string) (*ztDomain.DeviceRisk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deviceRisks[deviceKey(userID, deviceID)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	d.Factors = cloneStrings(d.Factors)
	return &d, nil
}

func (s *Store) UpsertDeviceRisk(_ context.Context, risk *ztDomain.DeviceRisk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := *risk
	d.Factors = cloneStrings(risk.Factors)
	key := deviceKey(risk.UserID, risk.DeviceID)
	if existing, ok := s.deviceRisks[key]; ok {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
	}
	s.deviceRisks[key] = d
	return nil
}

func (s *Store) ListDeviceRisks(_ context.Context, userID string) ([]*ztDomain.DeviceRisk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ztDomain.DeviceRisk
	for _, d := range s.deviceRisks {
		if d.UserID == userID {
			d.Factors = cloneStrings(d.Factors)
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) CreateSession(_ context.Context, session *ztDomain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return apperrors.ErrConflict
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*ztDomain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) UpdateSession(_ context.Context, session *ztDomain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return apperrors.ErrNotFound
	}
	s.sessions[session.ID] = *session
	return nil
}

// ListAllActiveSessions returns every user's active sessions oldest first.
func (s *Store) ListAllActiveSessions(_ context.Context, now time.Time) ([]*ztDomain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ztDomain.Session
	for _, sess := range s.sessions {
		if sess.IsActive(now) {
			out = append(out, &sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListActiveSessions returns the user's active sessions oldest first.
func (s *Store) ListActiveSessions(_ context.Context, userID string, now time.Time) ([]*ztDomain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ztDomain.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive(now) {
			out = append(out, &sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

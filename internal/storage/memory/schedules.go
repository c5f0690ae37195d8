package memory

import (
	"context"
	"sort"

	apperrors "github.com/allisson/keyvault/internal/errors"
	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
)

func (s *Store) CreateSchedule(_ context.Context, schedule *rotationDomain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[schedule.SecretPath]; ok {
		return apperrors.ErrConflict
	}
	s.schedules[schedule.SecretPath] = *schedule
	return nil
}

func (s *Store) UpdateSchedule(_ context.Context, schedule *rotationDomain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[schedule.SecretPath]; !ok {
		return apperrors.ErrNotFound
	}
	s.schedules[schedule.SecretPath] = *schedule
	return nil
}

func (s *Store) GetScheduleByPath(_ context.Context, path string) (*rotationDomain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.schedules[path]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &sc, nil
}

func (s *Store) ListSchedules(_ context.Context, activeOnly bool) ([]*rotationDomain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*rotationDomain.Schedule
	for _, sc := range s.schedules {
		if activeOnly && !sc.Active {
			continue
		}
		out = append(out, &sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SecretPath < out[j].SecretPath })
	return out, nil
}

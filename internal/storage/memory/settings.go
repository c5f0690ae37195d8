package memory

import (
	"context"
	"sort"
	"strings"

	apperrors "github.com/allisson/keyvault/internal/errors"
	"github.com/allisson/keyvault/internal/settings"
)

func (s *Store) GetSetting(_ context.Context, key string) (*settings.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settings[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	st.Value = cloneBytes(st.Value)
	return &st, nil
}

func (s *Store) SaveSetting(_ context.Context, setting *settings.Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := *setting
	st.Value = cloneBytes(setting.Value)
	s.settings[setting.Key] = st
	return nil
}

func (s *Store) DeleteSetting(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settings[key]; !ok {
		return apperrors.ErrNotFound
	}
	delete(s.settings, key)
	return nil
}

func (s *Store) ListSettings(_ context.Context, prefix string) ([]*settings.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*settings.Setting
	for key, st := range s.settings {
		if strings.HasPrefix(key, prefix) {
			st.Value = cloneBytes(st.Value)
			out = append(out, &st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

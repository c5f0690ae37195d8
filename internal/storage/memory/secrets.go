package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/keyvault/internal/errors"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
)

func cloneSecret(in secretsDomain.Secret) *secretsDomain.Secret {
	in.Ciphertext = cloneBytes(in.Ciphertext)
	in.IV = cloneBytes(in.IV)
	return &in
}

func (s *Store) CreateSecret(_ context.Context, secret *secretsDomain.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.secrets {
		if existing.Path == secret.Path && existing.Version == secret.Version {
			return apperrors.Wrap(apperrors.ErrConflict, "secret version exists")
		}
	}
	s.secrets = append(s.secrets, *cloneSecret(*secret))
	return nil
}

// latestLocked returns the highest live version of every path accepted by keep.
func (s *Store) latestLocked(keep func(path string) bool) map[string]secretsDomain.Secret {
	latest := make(map[string]secretsDomain.Secret)
	for _, secret := range s.secrets {
		if secret.DeletedAt != nil || !keep(secret.Path) {
			continue
		}
		if cur, ok := latest[secret.Path]; !ok || secret.Version > cur.Version {
			latest[secret.Path] = secret
		}
	}
	return latest
}

func (s *Store) GetSecret(_ context.Context, path string) (*secretsDomain.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.latestLocked(func(p string) bool { return p == path })[path]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneSecret(secret), nil
}

func (s *Store) GetSecretVersion(_ context.Context, path string, version int) (*secretsDomain.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, secret := range s.secrets {
		if secret.Path == path && secret.Version == version && secret.DeletedAt == nil {
			return cloneSecret(secret), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *Store) GetLatestVersion(_ context.Context, path string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := 0
	for _, secret := range s.secrets {
		if secret.Path == path && secret.Version > latest {
			latest = secret.Version
		}
	}
	return latest, nil
}

func (s *Store) ListSecrets(_ context.Context, prefix string) ([]*secretsDomain.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := s.latestLocked(func(p string) bool { return strings.HasPrefix(p, prefix) })
	out := make([]*secretsDomain.Secret, 0, len(latest))
	for _, secret := range latest {
		out = append(out, cloneSecret(secret))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) ListSecretVersions(_ context.Context, path string) ([]*secretsDomain.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*secretsDomain.Secret
	for _, secret := range s.secrets {
		if secret.Path == path {
			out = append(out, cloneSecret(secret))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *Store) ListAllSecrets(_ context.Context) ([]*secretsDomain.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*secretsDomain.Secret, 0, len(s.secrets))
	for _, secret := range s.secrets {
		out = append(out, cloneSecret(secret))
	}
	return out, nil
}

func (s *Store) UpdateSecretCiphertext(_ context.Context, id uuid.UUID, ciphertext, iv []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.secrets {
		if s.secrets[i].ID == id {
			s.secrets[i].Ciphertext = cloneBytes(ciphertext)
			s.secrets[i].IV = cloneBytes(iv)
			s.secrets[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return apperrors.ErrNotFound
}

// DeleteSecret tombstones every live version of path.
func (s *Store) DeleteSecret(_ context.Context, path string, deletedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.secrets {
		if s.secrets[i].Path == path && s.secrets[i].DeletedAt == nil {
			at := deletedAt
			s.secrets[i].DeletedAt = &at
		}
	}
	return nil
}

func (s *Store) SecretStats(_ context.Context) (secretsDomain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := make(map[string]int)
	var stats secretsDomain.Stats
	for _, secret := range s.secrets {
		if secret.DeletedAt != nil {
			continue
		}
		versions[secret.Path]++
		stats.Versions++
	}
	stats.Paths = len(versions)
	for _, n := range versions {
		if n > 1 {
			stats.VersionedPaths++
		}
	}
	return stats, nil
}

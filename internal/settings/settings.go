// Package settings persists small structured state records (wrapped KEK, DEK versions,
// rotation state, unseal provider configuration, session bindings) in the key-value
// settings table.
//
// Every record is stored in an envelope carrying a schema number. Loading a record
// whose schema differs from the caller's, or whose payload has fields the caller
// does not know, fails with ErrSchemaMismatch instead of silently defaulting.
package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/allisson/keyvault/internal/errors"
)

var (
	// ErrSettingNotFound is returned when no record exists for a key.
	ErrSettingNotFound = apperrors.Wrap(apperrors.ErrNotFound, "setting not found")

	// ErrSchemaMismatch is returned when a stored record cannot be decoded into the requested schema.
	ErrSchemaMismatch = apperrors.Wrap(apperrors.ErrPreconditionFailed, "setting schema mismatch")
)

// Setting is a raw key-value row.
type Setting struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// Repository is the persistence port for settings.
type Repository interface {
	GetSetting(ctx context.Context, key string) (*Setting, error)
	SaveSetting(ctx context.Context, setting *Setting) error
	DeleteSetting(ctx context.Context, key string) error
	ListSettings(ctx context.Context, prefix string) ([]*Setting, error)
}

type envelope struct {
	Schema int             `json:"schema"`
	Data   json.RawMessage `json:"data"`
}

// Store reads and writes versioned records on top of a Repository.
type Store struct {
	repo Repository
}

// NewStore creates a Store.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// Load decodes the record at key into out. It returns ErrSettingNotFound when the key is absent.
func (s *Store) Load(ctx context.Context, key string, schema int, out any) error {
	setting, err := s.repo.GetSetting(ctx, key)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return ErrSettingNotFound
		}
		return err
	}

	var env envelope
	if err := json.Unmarshal(setting.Value, &env); err != nil {
		return apperrors.Wrap(ErrSchemaMismatch, key)
	}
	if env.Schema != schema || len(env.Data) == 0 {
		return apperrors.Wrap(ErrSchemaMismatch, key)
	}

	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return apperrors.Wrap(ErrSchemaMismatch, key)
	}
	return nil
}

// Save encodes v under schema and upserts it at key.
func (s *Store) Save(ctx context.Context, key string, schema int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode setting")
	}
	value, err := json.Marshal(envelope{Schema: schema, Data: data})
	if err != nil {
		return apperrors.Wrap(err, "failed to encode setting envelope")
	}
	return s.repo.SaveSetting(ctx, &Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()})
}

// Exists reports whether a record is stored at key, regardless of its schema.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.repo.GetSetting(ctx, key)
	if err == nil {
		return true, nil
	}
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Delete removes the record at key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.repo.DeleteSetting(ctx, key)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	return nil
}

// Keys lists stored keys with the given prefix.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	list, err := s.repo.ListSettings(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(list))
	for _, st := range list {
		keys = append(keys, st.Key)
	}
	return keys, nil
}

// Raw exposes the underlying repository for whole-table operations (backup and restore).
func (s *Store) Raw() Repository {
	return s.repo
}

package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/allisson/go-pwdhash"
	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"

	apperrors "github.com/allisson/keyvault/internal/errors"
	"github.com/allisson/keyvault/internal/settings"
)

const (
	// BreakGlassSetting holds the hashed one-time codes.
	BreakGlassSetting = "break-glass-codes"
	breakGlassSchema  = 1

	breakGlassAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	breakGlassLength   = 20
)

type breakGlassCode struct {
	ID        string    `json:"id"`
	Hash      string    `json:"hash"`
	IssuedBy  string    `json:"issuedBy"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type breakGlassCodes struct {
	Codes []breakGlassCode `json:"codes"`
}

// IssuedCode is returned once; Code is never stored in clear.
type IssuedCode struct {
	ID        string
	Code      string
	ExpiresAt time.Time
}

// BreakGlassService issues and consumes one-time override codes hashed with Argon2id.
type BreakGlassService struct {
	store  *settings.Store
	hasher *pwdhash.PasswordHasher
	mu     sync.Mutex
	now    func() time.Time
}

// NewBreakGlassService uses the Moderate Argon2id policy.
func NewBreakGlassService(store *settings.Store) *BreakGlassService {
	hasher, err := pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyModerate))
	if err != nil {
		panic(err)
	}
	return &BreakGlassService{
		store:  store,
		hasher: hasher,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *BreakGlassService) load(ctx context.Context) (*breakGlassCodes, error) {
	var codes breakGlassCodes
	if err := s.store.Load(ctx, BreakGlassSetting, breakGlassSchema, &codes); err != nil {
		if apperrors.Is(err, settings.ErrSettingNotFound) {
			return &codes, nil
		}
		return nil, err
	}
	return &codes, nil
}

func (s *BreakGlassService) unexpired(codes []breakGlassCode) []breakGlassCode {
	now := s.now()
	kept := codes[:0]
	for _, c := range codes {
		if now.Before(c.ExpiresAt) {
			kept = append(kept, c)
		}
	}
	return kept
}

// Issue creates a code valid for ttl.
func (s *BreakGlassService) Issue(ctx context.Context, actor string, ttl time.Duration) (*IssuedCode, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "issuing actor is required")
	}
	if ttl <= 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "break-glass ttl must be positive")
	}

	code, err := nanoid.Generate(breakGlassAlphabet, breakGlassLength)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to generate break-glass code")
	}
	hash, err := s.hasher.Hash([]byte(code))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to hash break-glass code")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	issued := breakGlassCode{
		ID:        uuid.NewString(),
		Hash:      hash,
		IssuedBy:  actor,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	codes.Codes = append(s.unexpired(codes.Codes), issued)
	if err := s.store.Save(ctx, BreakGlassSetting, breakGlassSchema, codes); err != nil {
		return nil, apperrors.Wrap(err, "failed to save break-glass code")
	}
	return &IssuedCode{ID: issued.ID, Code: code, ExpiresAt: issued.ExpiresAt}, nil
}

// Consume reports whether code matches an unexpired code and removes it when it does.
func (s *BreakGlassService) Consume(ctx context.Context, code string) (bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	live := s.unexpired(codes.Codes)
	for i, c := range live {
		ok, err := s.hasher.Verify([]byte(code), c.Hash)
		if err != nil || !ok {
			continue
		}
		codes.Codes = append(live[:i:i], live[i+1:]...)
		if err := s.store.Save(ctx, BreakGlassSetting, breakGlassSchema, codes); err != nil {
			return false, apperrors.Wrap(err, "failed to consume break-glass code")
		}
		return true, nil
	}
	return false, nil
}

// Outstanding counts unexpired codes.
func (s *BreakGlassService) Outstanding(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(s.unexpired(codes.Codes)), nil
}

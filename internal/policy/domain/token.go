package domain

import (
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"
)

const (
	TokenTypeService = "service"
	TokenTypeBatch   = "batch"

	// TokenPrefix marks raw vault tokens.
	TokenPrefix = "hvs."

	DefaultPolicy = "default"
)

// Token is a persisted vault token. Only the SHA-256 hash of the raw token is stored.
type Token struct {
	ID          uuid.UUID
	Accessor    string
	TokenHash   string
	DisplayName string
	Policies    []string
	Type        string
	ExpiresAt   *time.Time
	// NumUses of zero means unlimited.
	NumUses    int
	UsesCount  int
	ParentID   *uuid.UUID
	Revoked    bool
	RevokedAt  *time.Time
	CreatedBy  string
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

func (t *Token) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

func (t *Token) IsExhausted() bool {
	return t.NumUses > 0 && t.UsesCount >= t.NumUses
}

// IsValid is not revoked, not expired and under any use cap.
func (t *Token) IsValid(now time.Time) bool {
	return !t.Revoked && !t.IsExpired(now) && !t.IsExhausted()
}

// CreateTokenRequest describes a new token.
type CreateTokenRequest struct {
	DisplayName string
	Policies    []string
	Type        string
	TTLSeconds  int
	NumUses     int
	ParentID    *uuid.UUID
	CreatedBy   string
}

func (r *CreateTokenRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.DisplayName, validation.Length(0, 255)),
		validation.Field(&r.Type, validation.In(TokenTypeService, TokenTypeBatch)),
		validation.Field(&r.TTLSeconds, validation.Min(0)),
		validation.Field(&r.NumUses, validation.Min(0)),
	)
}

// CreatedToken is returned once; Token is the raw bearer value.
type CreatedToken struct {
	ID        uuid.UUID
	Token     string `json:"-"`
	Accessor  string
	Policies  []string
	ExpiresAt *time.Time
}

// TokenInfo is the validated view of a token.
type TokenInfo struct {
	ID          uuid.UUID
	Accessor    string
	DisplayName string
	Policies    []string
	Type        string
	ExpiresAt   *time.Time
	UsesCount   int
	NumUses     int
}

// Principal builds the principal a token authenticates as.
func (i *TokenInfo) Principal() Principal {
	id := i.ID
	p := Principal{
		UserID:     "token:" + i.Accessor,
		AuthMethod: AuthMethodVaultToken,
		Policies:   i.Policies,
		TokenID:    &id,
	}
	for _, name := range i.Policies {
		if name == RootPolicy {
			p.Role = RoleAdmin
		}
	}
	return p
}

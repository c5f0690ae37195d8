// Package domain models short-lived database credentials minted as real database roles.
package domain

import (
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"
)

// Request asks for a new dynamic credential on a target database.
type Request struct {
	Host          string
	Port          int
	Database      string
	AdminUser     string
	AdminPassword string
	TTLSeconds    int
	GrantedTables []string
	ReadOnly      bool
	SSLMode       string
	RequestedBy   string
}

// Validate checks the request shape. Table names are sanitized separately.
func (r *Request) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Host, validation.Required),
		validation.Field(&r.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&r.Database, validation.Required),
		validation.Field(&r.AdminUser, validation.Required),
		validation.Field(&r.AdminPassword, validation.Required),
		validation.Field(&r.TTLSeconds, validation.Required, validation.Min(60), validation.Max(86400*30)),
	)
}

// Credential is the bookkeeping record of a minted role. The role's own VALID UNTIL is
// the authoritative expiry.
type Credential struct {
	ID                     uuid.UUID
	Username               string
	Host                   string
	Port                   int
	Database               string
	AdminUser              string
	AdminPasswordEncrypted string
	GrantedTables          []string
	ReadOnly               bool
	SSLMode                string
	ExpiresAt              time.Time
	Revoked                bool
	RevokedAt              *time.Time
	CreatedBy              string
	CreatedAt              time.Time
}

// IsExpired reports whether the credential expiry has passed.
func (c *Credential) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Result is returned once to the requester; the password is never stored.
type Result struct {
	ID               uuid.UUID
	Username         string
	Password         string `json:"-"`
	ConnectionString string `json:"-"`
	ExpiresAt        time.Time
}

// Package domain models time-bound leases over secrets.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Lease grants temporary visibility into a secret. Expiry or revocation removes access
// without touching the secret itself.
type Lease struct {
	ID         string
	SecretID   uuid.UUID
	SecretPath string
	TTLSeconds int
	Renewable  bool
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsExpired reports whether the lease has reached its expiry.
func (l *Lease) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// IsActive reports whether the lease still grants access.
func (l *Lease) IsActive(now time.Time) bool {
	return !l.Revoked && !l.IsExpired(now)
}

// RemainingSeconds returns the whole seconds left, or zero.
func (l *Lease) RemainingSeconds(now time.Time) int {
	if !l.IsActive(now) {
		return 0
	}
	return int(l.ExpiresAt.Sub(now) / time.Second)
}

// LeasedSecret is the plaintext view returned through an active lease.
type LeasedSecret struct {
	LeaseID          string
	Path             string
	Version          int
	Value            []byte `json:"-"`
	ExpiresAt        time.Time
	RemainingSeconds int
}

// Package domain defines the append-only audit trail and the security events
// published to logs, CEF sinks and webhooks.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog records one mutating vault operation. Entries are never updated after insert.
type AuditLog struct {
	ID           uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	ActorID      string
	Details      map[string]any
	Signature    []byte
	CreatedAt    time.Time
}

// Entry is the caller-facing input for a new audit record.
type Entry struct {
	Action       string
	ResourceType string
	ResourceID   string
	ActorID      string
	Details      map[string]any
}

// Filter narrows audit log listings. Zero values disable the corresponding condition.
type Filter struct {
	Action     string
	ResourceID string
	Since      *time.Time
	Offset     int
	Limit      int
}

// VerificationReport summarises a signature verification pass.
type VerificationReport struct {
	Checked    int
	Valid      int
	Invalid    int
	Unsigned   int
	InvalidIDs []uuid.UUID
}

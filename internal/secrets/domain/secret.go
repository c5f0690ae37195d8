// Package domain defines versioned, envelope-encrypted secrets addressed by hierarchical path.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Secret is one stored version of a secret. Ciphertext is AES-256-GCM under the KEK
// with the tag appended; IV is fresh per write.
type Secret struct {
	ID         uuid.UUID
	Path       string
	Version    int
	Ciphertext []byte
	IV         []byte
	Metadata   string
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// SecretValue is a decrypted secret returned to callers.
type SecretValue struct {
	ID        uuid.UUID
	Path      string
	Version   int
	Value     []byte `json:"-"`
	Metadata  string
	CreatedAt time.Time
}

// Entry is one child of a List prefix. Folders end with a trailing slash.
type Entry struct {
	Name     string
	IsFolder bool
}

// VersionInfo describes one version without its payload.
type VersionInfo struct {
	Version   int
	CreatedAt time.Time
	DeletedAt *time.Time
}

// ImportResult summarises a bulk import.
type ImportResult struct {
	Imported int
	Failed   int
	Errors   []string
}

// PutOptions carries optional Put inputs.
type PutOptions struct {
	Metadata string
	Actor    string
}

// NormalizePath trims whitespace and surrounding slashes and collapses empty segments.
func NormalizePath(path string) string {
	parts := strings.Split(strings.TrimSpace(path), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// Stats counts stored secrets for gauges and compliance scoring.
type Stats struct {
	Paths          int
	VersionedPaths int
	Versions       int
}

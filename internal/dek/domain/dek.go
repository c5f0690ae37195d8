// Package domain models purpose-scoped data encryption keys, the framed field format
// they produce, and the encryption configurations that drive re-encryption sweeps.
package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
)

// Well-known DEK purposes.
const (
	PurposeData        = "data"
	PurposePII         = "pii"
	PurposeCredentials = "dynamic-credentials"
)

// Key is an unwrapped DEK held in memory.
type Key struct {
	Purpose   string
	Version   int
	Algorithm cryptoDomain.Algorithm
	Material  []byte
	CreatedAt time.Time
}

// VersionInfo is persisted per purpose and reports the rotation state.
type VersionInfo struct {
	Purpose         string     `json:"purpose"`
	CurrentVersion  int        `json:"currentVersion"`
	RotatedAt       *time.Time `json:"rotatedAt,omitempty"`
	OldVersionsKept int        `json:"oldVersionsKept"`
}

// EncryptionConfig declares which fields of a table are encrypted with which DEK purpose.
type EncryptionConfig struct {
	ID              uuid.UUID
	TableName       string
	DekPurpose      string
	EncryptedFields []string
	Enabled         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Field is a parsed framed field value: v{N}:{base64 iv}:{base64 ciphertext}.
type Field struct {
	Version    int
	IV         []byte
	Ciphertext []byte
}

// String renders the frame.
func (f Field) String() string {
	return fmt.Sprintf("v%d:%s:%s",
		f.Version,
		base64.StdEncoding.EncodeToString(f.IV),
		base64.StdEncoding.EncodeToString(f.Ciphertext),
	)
}

// ParseField parses a framed value. ok is false for anything that is not a frame,
// which callers treat as plaintext.
func ParseField(value string) (Field, bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 || len(parts[0]) < 2 || parts[0][0] != 'v' {
		return Field{}, false
	}
	version, err := strconv.Atoi(parts[0][1:])
	if err != nil || version < 1 {
		return Field{}, false
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(iv) == 0 {
		return Field{}, false
	}
	ct, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(ct) == 0 {
		return Field{}, false
	}
	return Field{Version: version, IV: iv, Ciphertext: ct}, true
}

// Row is one table row handed to a re-encryption sweep.
type Row struct {
	ID     string
	Fields map[string]*string
}

// Package domain defines the disaster-recovery snapshot, its encrypted blob framing
// and the readiness report.
package domain

import (
	"time"
)

// SecretSnapshot is a secret version exported as ciphertext.
type SecretSnapshot struct {
	Path          string     `json:"path"`
	Version       int        `json:"version"`
	EncryptedData []byte     `json:"encryptedData"`
	IV            []byte     `json:"iv"`
	Metadata      string     `json:"metadata"`
	CreatedBy     string     `json:"createdBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
}

// PolicySnapshot is an exported vault policy.
type PolicySnapshot struct {
	Name         string    `json:"name"`
	PathPattern  string    `json:"pathPattern"`
	Capabilities []string  `json:"capabilities"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SettingSnapshot is an exported raw setting.
type SettingSnapshot struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// EncryptionConfigSnapshot is an exported encryption config.
type EncryptionConfigSnapshot struct {
	TableName       string   `json:"tableName"`
	DekPurpose      string   `json:"dekPurpose"`
	EncryptedFields []string `json:"encryptedFields"`
	Enabled         bool     `json:"enabled"`
}

// Snapshot is the full backup payload.
type Snapshot struct {
	BackupID          string                     `json:"backupId"`
	CreatedAt         time.Time                  `json:"createdAt"`
	CreatedBy         string                     `json:"createdBy"`
	Secrets           []SecretSnapshot           `json:"secrets"`
	Policies          []PolicySnapshot           `json:"policies"`
	Settings          []SettingSnapshot          `json:"settings"`
	EncryptionConfigs []EncryptionConfigSnapshot `json:"encryptionConfigs"`
}

// Envelope wraps the snapshot with its integrity hash before encryption.
type Envelope struct {
	FormatVersion int    `json:"formatVersion"`
	IntegrityHash string `json:"integrityHash"`
	Snapshot      []byte `json:"snapshot"`
}

// LastBackupSettingKey records when the last backup was taken.
const (
	LastBackupSettingKey = "vault-last-backup-at"
	LastBackupSchema     = 1
)

// LastBackup is the record stored under LastBackupSettingKey.
type LastBackup struct {
	At       time.Time `json:"at"`
	BackupID string    `json:"backupId"`
}

// Blob framing: [salt 16][iv 12][tag 16][ciphertext].
const (
	FormatVersion = 1
	SaltOffset    = 0
	IVOffset      = 16
	TagOffset     = 28
	HeaderSize    = 44
)

// BackupResult describes a produced backup.
type BackupResult struct {
	BackupID          string
	CreatedAt         time.Time
	IntegrityHash     string
	SizeBytes         int
	Secrets           int
	Policies          int
	Settings          int
	EncryptionConfigs int
}

// RestoreResult counts what a restore added and skipped.
type RestoreResult struct {
	BackupID                  string
	SecretsRestored           int
	PoliciesRestored          int
	SettingsRestored          int
	EncryptionConfigsRestored int
	Skipped                   int
	Errors                    []string
}

// ValidationResult reports whether a blob decrypts and its hash matches.
type ValidationResult struct {
	Valid         bool
	BackupID      string
	CreatedAt     time.Time
	IntegrityHash string
	Error         string
}

// ReadinessCheck is one item of the DR readiness report.
type ReadinessCheck struct {
	Name   string
	Passed bool
	Detail string
}

// ReadinessReport grades DR preparedness A to F.
type ReadinessReport struct {
	Score       int
	Grade       string
	Checks      []ReadinessCheck
	GeneratedAt time.Time
}

// GradeReadiness maps passed checks out of total to a letter grade.
func GradeReadiness(passed, total int) string {
	if total == 0 {
		return "F"
	}
	pct := passed * 100 / total
	switch {
	case pct >= 100:
		return "A"
	case pct >= 80:
		return "B"
	case pct >= 60:
		return "C"
	case pct >= 40:
		return "D"
	default:
		return "F"
	}
}

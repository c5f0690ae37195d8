package domain

import (
	"time"
)

// Result is the outcome of one secret rotation.
type Result struct {
	Success    bool
	Path       string
	NewVersion int
	OldVersion int
	Error      string
	RotatedAt  time.Time
}

// BatchResult aggregates ExecutePending. A failed item never aborts the batch.
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Results   []Result
}

// HistoryEntry is one past rotation read back from the audit trail.
type HistoryEntry struct {
	Path        string
	OldVersion  int
	NewVersion  int
	TriggeredBy string
	RotatedAt   time.Time
}

// DekRotationResult is the outcome of rotating one DEK purpose.
type DekRotationResult struct {
	Success    bool
	Purpose    string
	OldVersion int
	NewVersion int
	Error      string
	RotatedAt  time.Time
}

// ReEncryptionResult reports one table sweep.
type ReEncryptionResult struct {
	Table       string
	Purpose     string
	Total       int
	ReEncrypted int
	Failed      int
	Skipped     int
	Duration    time.Duration
}

// ReEncryptionProgress reports how many field values of a table sit at each DEK version.
type ReEncryptionProgress struct {
	Table          string
	Purpose        string
	CurrentVersion int
	ByVersion      map[int]int
	Plaintext      int
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Slot names one of the two credential slots.
type Slot string

const (
	SlotA Slot = "A"
	SlotB Slot = "B"
)

// Other returns the standby slot for s.
func (s Slot) Other() Slot {
	if s == SlotA {
		return SlotB
	}
	return SlotA
}

// SlotState is the credential currently held by a slot.
type SlotState struct {
	CredentialID *uuid.UUID `json:"credentialId,omitempty"`
	Username     string     `json:"username,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// Empty reports whether the slot has never been filled.
func (s SlotState) Empty() bool {
	return s.CredentialID == nil
}

// AdminConnection is the admin login used to mint slot credentials. The password is
// stored DEK-encrypted.
type AdminConnection struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	Database          string `json:"database"`
	User              string `json:"user"`
	PasswordEncrypted string `json:"passwordEncrypted"`
	SSLMode           string `json:"sslMode"`
	ReadOnly          bool   `json:"readOnly"`
}

// DbRotationState is the persisted dual-slot state.
type DbRotationState struct {
	ActiveSlot    Slot            `json:"activeSlot"`
	SlotA         SlotState       `json:"slotA"`
	SlotB         SlotState       `json:"slotB"`
	LastRotatedAt *time.Time      `json:"lastRotatedAt,omitempty"`
	RotationCount int             `json:"rotationCount"`
	Admin         AdminConnection `json:"admin"`
}

// Slot returns a pointer to the state of slot s.
func (st *DbRotationState) Slot(s Slot) *SlotState {
	if s == SlotA {
		return &st.SlotA
	}
	return &st.SlotB
}

// DbRotationResult is the outcome of one dual-slot rotation.
type DbRotationResult struct {
	Success       bool
	ActiveSlot    Slot
	PreviousSlot  Slot
	Username      string
	ExpiresAt     time.Time
	RotationCount int
	Error         string
}

// DbRotationStatus is the public view of the dual-slot state.
type DbRotationStatus struct {
	Configured    bool
	ActiveSlot    Slot
	SlotA         SlotState
	SlotB         SlotState
	LastRotatedAt *time.Time
	RotationCount int
}

// AdminConfig is the caller-supplied admin login for Configure. Password is plaintext
// here and DEK-encrypted once persisted.
type AdminConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	ReadOnly bool
}

package domain

import (
	"time"
)

// UnsealProvider is one configured auto-unseal path: a KMS provider and key that
// hold a wrapped copy of the unseal master key.
type UnsealProvider struct {
	Provider     string    `json:"provider"`
	KeyName      string    `json:"keyName"`
	Priority     int       `json:"priority"`
	Enabled      bool      `json:"enabled"`
	WrappedKey   []byte    `json:"wrappedKey"`
	IV           []byte    `json:"iv"`
	KeyVersion   int       `json:"keyVersion"`
	Algorithm    string    `json:"algorithm"`
	ConfiguredAt time.Time `json:"configuredAt"`
	ConfiguredBy string    `json:"configuredBy"`
}

// UnsealResult reports which provider unsealed the vault.
type UnsealResult struct {
	Success   bool     `json:"success"`
	Provider  string   `json:"provider"`
	Attempted []string `json:"attempted"`
	Errors    []string `json:"errors,omitempty"`
}

// UnsealStatus lists the configured providers without their wrapped material.
type UnsealStatus struct {
	Configured bool             `json:"configured"`
	Providers  []UnsealProvider `json:"providers"`
}

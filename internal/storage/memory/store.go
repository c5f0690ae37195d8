// Package memory is an in-process implementation of every vault repository port. It
// backs the "memory" database driver and use-case tests.
package memory

import (
	"sync"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	credentialDomain "github.com/allisson/keyvault/internal/credential/domain"
	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	leaseDomain "github.com/allisson/keyvault/internal/lease/domain"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
	"github.com/allisson/keyvault/internal/settings"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

// Store holds all vault state behind one lock.
type Store struct {
	mu sync.RWMutex

	settings     map[string]settings.Setting
	auditLogs    []auditDomain.AuditLog
	events       []auditDomain.SecurityEvent
	secrets      []secretsDomain.Secret
	configs      map[string]dekDomain.EncryptionConfig
	tables       map[string]map[string]map[string]*string
	credentials  map[uuid.UUID]credentialDomain.Credential
	leases       map[string]leaseDomain.Lease
	schedules    map[string]rotationDomain.Schedule
	policies     map[uuid.UUID]policyDomain.Policy
	userPolicies []policyDomain.UserPolicy
	tokens       map[uuid.UUID]policyDomain.Token
	ztPolicies   map[ztDomain.Action]ztDomain.Policy
	deviceRisks  map[string]ztDomain.DeviceRisk
	sessions     map[string]ztDomain.Session
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		settings:    make(map[string]settings.Setting),
		configs:     make(map[string]dekDomain.EncryptionConfig),
		tables:      make(map[string]map[string]map[string]*string),
		credentials: make(map[uuid.UUID]credentialDomain.Credential),
		leases:      make(map[string]leaseDomain.Lease),
		schedules:   make(map[string]rotationDomain.Schedule),
		policies:    make(map[uuid.UUID]policyDomain.Policy),
		tokens:      make(map[uuid.UUID]policyDomain.Token),
		ztPolicies:  make(map[ztDomain.Action]ztDomain.Policy),
		deviceRisks: make(map[string]ztDomain.DeviceRisk),
		sessions:    make(map[string]ztDomain.Session),
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	return append([]byte(nil), in...)
}

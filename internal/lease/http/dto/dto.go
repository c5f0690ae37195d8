// Package dto provides data transfer objects for the lease endpoints.
package dto

import (
	"time"

	validation "github.com/jellydator/validation"

	leaseDomain "github.com/allisson/keyvault/internal/lease/domain"
)

// CreateLeaseRequest leases the latest version of a secret. A zero TTL uses the default.
type CreateLeaseRequest struct {
	SecretPath string `json:"secret_path"`
	TTLSeconds int    `json:"ttl_seconds"`
	Renewable  bool   `json:"renewable"`
}

// Validate checks if the create lease request is valid.
func (r *CreateLeaseRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.SecretPath, validation.Required, validation.Length(1, 512)),
		validation.Field(&r.TTLSeconds, validation.Min(0)),
	)
}

// RenewLeaseRequest extends a lease to now plus the increment.
type RenewLeaseRequest struct {
	IncrementSeconds int `json:"increment_seconds"`
}

// Validate checks if the renew request is valid.
func (r *RenewLeaseRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.IncrementSeconds, validation.Required, validation.Min(1)),
	)
}

// LeaseResponse describes a lease without the secret payload.
type LeaseResponse struct {
	ID         string     `json:"id"`
	SecretPath string     `json:"secret_path"`
	TTLSeconds int        `json:"ttl_seconds"`
	Renewable  bool       `json:"renewable"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Revoked    bool       `json:"revoked"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
}

// LeasedSecretResponse is the secret read through an active lease.
type LeasedSecretResponse struct {
	LeaseID          string    `json:"lease_id"`
	Path             string    `json:"path"`
	Version          int       `json:"version"`
	Value            []byte    `json:"value"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// MapLeaseToResponse converts a domain lease.
func MapLeaseToResponse(lease *leaseDomain.Lease) LeaseResponse {
	return LeaseResponse{
		ID:         lease.ID,
		SecretPath: lease.SecretPath,
		TTLSeconds: lease.TTLSeconds,
		Renewable:  lease.Renewable,
		ExpiresAt:  lease.ExpiresAt,
		Revoked:    lease.Revoked,
		RevokedAt:  lease.RevokedAt,
		CreatedBy:  lease.CreatedBy,
		CreatedAt:  lease.CreatedAt,
	}
}

// MapLeasedSecretToResponse converts a leased secret. The caller zeroes the value afterwards.
func MapLeasedSecretToResponse(secret *leaseDomain.LeasedSecret) LeasedSecretResponse {
	return LeasedSecretResponse{
		LeaseID:          secret.LeaseID,
		Path:             secret.Path,
		Version:          secret.Version,
		Value:            secret.Value,
		ExpiresAt:        secret.ExpiresAt,
		RemainingSeconds: secret.RemainingSeconds,
	}
}

// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	validation "github.com/jellydator/validation"
)

// PutSecretRequest writes a new version. The path comes from the URL.
// Value is base64 in JSON.
type PutSecretRequest struct {
	Value    []byte `json:"value"`
	Metadata string `json:"metadata,omitempty"`
}

// Validate checks if the put secret request is valid.
func (r *PutSecretRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Value, validation.Required),
		validation.Field(&r.Metadata, validation.Length(0, 4096)),
	)
}

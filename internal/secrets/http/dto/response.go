package dto

import (
	"time"

	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
)

// SecretResponse is a decrypted secret version.
// SECURITY: Value is plaintext and must only travel over TLS.
type SecretResponse struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Version   int       `json:"version"`
	Value     []byte    `json:"value"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PutSecretResponse reports the version a write created.
type PutSecretResponse struct {
	Path    string `json:"path"`
	Version int    `json:"version"`
}

// EntryResponse is one child of a listed prefix.
type EntryResponse struct {
	Name     string `json:"name"`
	IsFolder bool   `json:"is_folder"`
}

// ListSecretsResponse lists the children of a prefix.
type ListSecretsResponse struct {
	Prefix string          `json:"prefix"`
	Data   []EntryResponse `json:"data"`
}

// MapSecretValueToResponse converts a decrypted value. The caller zeroes the domain value
// after the response is written.
func MapSecretValueToResponse(value *secretsDomain.SecretValue) SecretResponse {
	return SecretResponse{
		ID:        value.ID.String(),
		Path:      value.Path,
		Version:   value.Version,
		Value:     value.Value,
		Metadata:  value.Metadata,
		CreatedAt: value.CreatedAt,
	}
}

// MapEntriesToListResponse converts list entries; a nil slice becomes an empty array.
func MapEntriesToListResponse(prefix string, entries []secretsDomain.Entry) ListSecretsResponse {
	data := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		data = append(data, EntryResponse{Name: e.Name, IsFolder: e.IsFolder})
	}
	return ListSecretsResponse{Prefix: prefix, Data: data}
}

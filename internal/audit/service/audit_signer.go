package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"io"

	"golang.org/x/crypto/hkdf"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
)

const signingInfo = "audit-log-signing-v1"

type auditSigner struct{}

// NewAuditSigner returns an HMAC-SHA256 signer whose key is derived from the KEK with HKDF.
func NewAuditSigner() AuditSigner {
	return &auditSigner{}
}

func (a *auditSigner) Sign(key []byte, log *auditDomain.AuditLog) ([]byte, error) {
	signingKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(signingInfo)), signingKey); err != nil {
		return nil, apperrors.Wrap(err, "failed to derive audit signing key")
	}
	defer cryptoDomain.Zero(signingKey)

	canonical, err := canonicalize(log)
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha256.New, signingKey)
	mac.Write(canonical)
	return mac.Sum(nil), nil
}

func (a *auditSigner) Verify(key []byte, log *auditDomain.AuditLog) error {
	if len(log.Signature) == 0 {
		return auditDomain.ErrSignatureMissing
	}
	expected, err := a.Sign(key, log)
	if err != nil {
		return err
	}
	if !hmac.Equal(log.Signature, expected) {
		return auditDomain.ErrSignatureInvalid
	}
	return nil
}

// canonicalize length-prefixes every variable field so that no two distinct entries
// serialize to the same bytes.
func canonicalize(log *auditDomain.AuditLog) ([]byte, error) {
	buf := make([]byte, 0, 512)
	buf = append(buf, log.ID[:]...)
	for _, field := range []string{log.Action, log.ResourceType, log.ResourceID, log.ActorID} {
		buf = appendLengthPrefixed(buf, []byte(field))
	}

	var details []byte
	if log.Details != nil {
		var err error
		// encoding/json sorts map keys, which keeps this stable.
		if details, err = json.Marshal(log.Details); err != nil {
			return nil, apperrors.Wrap(err, "failed to marshal audit details")
		}
	}
	buf = appendLengthPrefixed(buf, details)

	return binary.BigEndian.AppendUint64(buf, uint64(log.CreatedAt.UTC().UnixNano())), nil
}

func appendLengthPrefixed(buf, data []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
)

func newLog() *auditDomain.AuditLog {
	return &auditDomain.AuditLog{
		ID:           uuid.Must(uuid.NewV7()),
		Action:       "secret.create",
		ResourceType: "secret",
		ResourceID:   "app/db/password",
		ActorID:      "user-1",
		Details:      map[string]any{"version": 1},
		CreatedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestAuditSigner(t *testing.T) {
	signer := NewAuditSigner()
	key := make([]byte, 32)

	t.Run("Success_SignAndVerify", func(t *testing.T) {
		log := newLog()
		sig, err := signer.Sign(key, log)
		require.NoError(t, err)
		assert.Len(t, sig, 32)

		log.Signature = sig
		assert.NoError(t, signer.Verify(key, log))
	})

	t.Run("Error_TamperedDetails", func(t *testing.T) {
		log := newLog()
		sig, err := signer.Sign(key, log)
		require.NoError(t, err)

		log.Signature = sig
		log.Details["version"] = 2
		assert.ErrorIs(t, signer.Verify(key, log), auditDomain.ErrSignatureInvalid)
	})

	t.Run("Error_FieldBoundaryShift", func(t *testing.T) {
		a := newLog()
		b := newLog()
		b.ID = a.ID
		a.ResourceType, a.ResourceID = "secret", "x"
		b.ResourceType, b.ResourceID = "secretx", ""

		sigA, err := signer.Sign(key, a)
		require.NoError(t, err)
		sigB, err := signer.Sign(key, b)
		require.NoError(t, err)
		assert.NotEqual(t, sigA, sigB)
	})

	t.Run("Error_WrongKey", func(t *testing.T) {
		log := newLog()
		sig, err := signer.Sign(key, log)
		require.NoError(t, err)
		log.Signature = sig

		other := make([]byte, 32)
		other[0] = 1
		assert.ErrorIs(t, signer.Verify(other, log), auditDomain.ErrSignatureInvalid)
	})

	t.Run("Error_Unsigned", func(t *testing.T) {
		assert.ErrorIs(t, signer.Verify(key, newLog()), auditDomain.ErrSignatureMissing)
	})
}

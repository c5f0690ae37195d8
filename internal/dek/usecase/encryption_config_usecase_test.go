package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
	"github.com/allisson/keyvault/internal/storage/memory"
)

func TestEncryptionConfigUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_SaveReplaceDelete", func(t *testing.T) {
		uc := NewEncryptionConfigUseCase(memory.NewStore())

		created, err := uc.Save(ctx, &dekDomain.EncryptionConfig{
			TableName:       "patients",
			DekPurpose:      dekDomain.PurposePII,
			EncryptedFields: []string{"ssn", "phone"},
			Enabled:         true,
		})
		require.NoError(t, err)

		replaced, err := uc.Save(ctx, &dekDomain.EncryptionConfig{
			TableName:       "patients",
			DekPurpose:      dekDomain.PurposePII,
			EncryptedFields: []string{"ssn"},
			Enabled:         true,
		})
		require.NoError(t, err)
		assert.Equal(t, created.ID, replaced.ID)

		got, err := uc.Get(ctx, "patients")
		require.NoError(t, err)
		assert.Equal(t, []string{"ssn"}, got.EncryptedFields)

		require.NoError(t, uc.Delete(ctx, "patients"))
		_, err = uc.Get(ctx, "patients")
		assert.ErrorIs(t, err, dekDomain.ErrEncryptionConfigNotFound)
	})

	t.Run("Error_UnsafeIdentifiers", func(t *testing.T) {
		uc := NewEncryptionConfigUseCase(memory.NewStore())

		_, err := uc.Save(ctx, &dekDomain.EncryptionConfig{
			TableName:       "patients; drop table users",
			DekPurpose:      dekDomain.PurposePII,
			EncryptedFields: []string{"ssn"},
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

		_, err = uc.Save(ctx, &dekDomain.EncryptionConfig{
			TableName:       "patients",
			DekPurpose:      dekDomain.PurposePII,
			EncryptedFields: []string{"ssn--"},
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_DeleteMissing", func(t *testing.T) {
		uc := NewEncryptionConfigUseCase(memory.NewStore())

		err := uc.Delete(ctx, "nothing")
		assert.ErrorIs(t, err, dekDomain.ErrEncryptionConfigNotFound)
	})
}

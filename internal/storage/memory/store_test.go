package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	credentialUsecase "github.com/allisson/keyvault/internal/credential/usecase"
	dekUsecase "github.com/allisson/keyvault/internal/dek/usecase"
	apperrors "github.com/allisson/keyvault/internal/errors"
	leaseUsecase "github.com/allisson/keyvault/internal/lease/usecase"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	policyUsecase "github.com/allisson/keyvault/internal/policy/usecase"
	rotationUsecase "github.com/allisson/keyvault/internal/rotation/usecase"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
	secretsUsecase "github.com/allisson/keyvault/internal/secrets/usecase"
	"github.com/allisson/keyvault/internal/settings"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
	ztUsecase "github.com/allisson/keyvault/internal/zerotrust/usecase"
)

var (
	_ settings.Repository                    = (*Store)(nil)
	_ auditUsecase.AuditLogRepository        = (*Store)(nil)
	_ auditService.EventStore                = (*Store)(nil)
	_ secretsUsecase.SecretRepository        = (*Store)(nil)
	_ dekUsecase.EncryptionConfigRepository  = (*Store)(nil)
	_ dekUsecase.FieldStore                  = (*Store)(nil)
	_ credentialUsecase.CredentialRepository = (*Store)(nil)
	_ leaseUsecase.LeaseRepository           = (*Store)(nil)
	_ rotationUsecase.ScheduleRepository     = (*Store)(nil)
	_ policyUsecase.PolicyRepository         = (*Store)(nil)
	_ policyUsecase.UserPolicyRepository     = (*Store)(nil)
	_ policyUsecase.TokenRepository          = (*Store)(nil)
	_ ztUsecase.PolicyRepository             = (*Store)(nil)
	_ ztUsecase.DeviceRiskRepository         = (*Store)(nil)
	_ ztUsecase.SessionRepository            = (*Store)(nil)
	_ ztUsecase.ActiveSessionLister          = (*Store)(nil)
)

func newSecret(path string, version int) *secretsDomain.Secret {
	return &secretsDomain.Secret{
		ID:         uuid.Must(uuid.NewV7()),
		Path:       path,
		Version:    version,
		Ciphertext: []byte("ct"),
		IV:         []byte("iv"),
		CreatedAt:  time.Now().UTC(),
	}
}

func TestStore_Secrets(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.CreateSecret(ctx, newSecret("app/db/password", 1)))
	require.NoError(t, s.CreateSecret(ctx, newSecret("app/db/password", 2)))
	require.NoError(t, s.CreateSecret(ctx, newSecret("app/api/key", 1)))

	t.Run("Error_DuplicateVersion", func(t *testing.T) {
		err := s.CreateSecret(ctx, newSecret("app/db/password", 2))
		assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	})

	t.Run("Success_LatestAndList", func(t *testing.T) {
		latest, err := s.GetSecret(ctx, "app/db/password")
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Version)

		list, err := s.ListSecrets(ctx, "app/")
		require.NoError(t, err)
		assert.Len(t, list, 2)

		stats, err := s.SecretStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, secretsDomain.Stats{Paths: 2, VersionedPaths: 1, Versions: 3}, stats)
	})

	t.Run("Success_DeleteTombstonesAllVersions", func(t *testing.T) {
		require.NoError(t, s.DeleteSecret(ctx, "app/db/password", time.Now().UTC()))

		_, err := s.GetSecret(ctx, "app/db/password")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		_, err = s.GetSecretVersion(ctx, "app/db/password", 1)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		latest, err := s.GetLatestVersion(ctx, "app/db/password")
		require.NoError(t, err)
		assert.Equal(t, 2, latest)

		versions, err := s.ListSecretVersions(ctx, "app/db/password")
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.NotNil(t, versions[0].DeletedAt)
	})
}

func TestStore_ConsumeTokenUse(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now().UTC()

	token := &policyDomain.Token{
		ID:        uuid.Must(uuid.NewV7()),
		Accessor:  "acc",
		TokenHash: "hash",
		NumUses:   1,
		CreatedAt: now,
	}
	require.NoError(t, s.CreateToken(ctx, token))

	require.NoError(t, s.ConsumeTokenUse(ctx, token.ID, now))
	err := s.ConsumeTokenUse(ctx, token.ID, now)
	assert.True(t, apperrors.Is(err, apperrors.ErrPreconditionFailed))

	invalid, err := s.ListInvalidTokens(ctx, now)
	require.NoError(t, err)
	require.Len(t, invalid, 1)
	assert.Equal(t, 1, invalid[0].UsesCount)
}

func TestStore_FieldRows(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	v1, v2 := "a", "b"
	s.PutRow("patients", "2", map[string]*string{"ssn": &v2})
	s.PutRow("patients", "1", map[string]*string{"ssn": &v1, "notes": nil})

	n, err := s.CountRows(ctx, "patients")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := s.ListRows(ctx, "patients", []string{"ssn"}, 0, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].ID)
	assert.Equal(t, "a", *rows[0].Fields["ssn"])

	require.NoError(t, s.UpdateRowField(ctx, "patients", "1", "ssn", "enc"))
	assert.Equal(t, "enc", *s.Row("patients", "1")["ssn"])
	assert.Error(t, s.UpdateRowField(ctx, "patients", "9", "ssn", "x"))
}

func TestStore_ListAllActiveSessions(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now().UTC()

	sessions := []ztDomain.Session{
		{ID: "bob-1", UserID: "bob", CreatedAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour)},
		{ID: "alice-1", UserID: "alice", CreatedAt: now.Add(-2 * time.Minute), ExpiresAt: now.Add(time.Hour)},
		{ID: "alice-old", UserID: "alice", CreatedAt: now.Add(-3 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		{ID: "bob-revoked", UserID: "bob", CreatedAt: now, ExpiresAt: now.Add(time.Hour), Revoked: true},
	}
	for i := range sessions {
		require.NoError(t, s.CreateSession(ctx, &sessions[i]))
	}

	active, err := s.ListAllActiveSessions(ctx, now)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "alice-1", active[0].ID)
	assert.Equal(t, "bob-1", active[1].ID)
}

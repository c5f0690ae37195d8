package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	credentialDomain "github.com/allisson/keyvault/internal/credential/domain"
	"github.com/allisson/keyvault/internal/database"
	apperrors "github.com/allisson/keyvault/internal/errors"
	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
	"github.com/allisson/keyvault/internal/settings"
	"github.com/allisson/keyvault/internal/storage/memory"
)

// mockCredentialIssuer is a mock implementation of CredentialIssuer for testing.
type mockCredentialIssuer struct {
	mock.Mock
}

func (m *mockCredentialIssuer) Generate(
	ctx context.Context,
	req credentialDomain.Request,
) (*credentialDomain.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentialDomain.Result), args.Error(1)
}

func (m *mockCredentialIssuer) Revoke(ctx context.Context, id uuid.UUID, actor string) error {
	args := m.Called(ctx, id, actor)
	return args.Error(0)
}

func issued(n int) *credentialDomain.Result {
	username := fmt.Sprintf("v_dyn_slot%d", n)
	return &credentialDomain.Result{
		ID:               uuid.Must(uuid.NewV7()),
		Username:         username,
		Password:         "pw",
		ConnectionString: "postgres://" + username + ":pw@db.internal:5432/app",
		ExpiresAt:        time.Now().UTC().Add(24 * time.Hour),
	}
}

func newDbRotation(t *testing.T) (DbCredentialRotationUseCase, *mockCredentialIssuer, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	issuer := &mockCredentialIssuer{}
	audit := auditUsecase.NewAuditLogUseCase(store, auditService.NewAuditSigner(), nil, testLogger())
	uc := NewDbCredentialRotationUseCase(
		database.NewNoopTxManager(), settings.NewStore(store), issuer, newTestRegistry(t, store), audit, 86400, testLogger(),
	)
	return uc, issuer, store
}

var adminConfig = rotationDomain.AdminConfig{
	Host:     "db.internal",
	Port:     5432,
	Database: "app",
	User:     "postgres",
	Password: "admin-pass",
}

func TestDbCredentialRotationUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_AlternatesSlots", func(t *testing.T) {
		uc, issuer, store := newDbRotation(t)
		require.NoError(t, uc.Configure(ctx, adminConfig, "alice"))

		first, second, third := issued(1), issued(2), issued(3)
		adminReq := mock.MatchedBy(func(r credentialDomain.Request) bool {
			return r.AdminPassword == "admin-pass" && r.TTLSeconds == 86400
		})
		issuer.On("Generate", mock.Anything, adminReq).Return(first, nil).Once()
		issuer.On("Generate", mock.Anything, adminReq).Return(second, nil).Once()
		issuer.On("Generate", mock.Anything, adminReq).Return(third, nil).Once()
		issuer.On("Revoke", mock.Anything, first.ID, "system").Return(nil).Once()

		r1 := uc.Rotate(ctx, "system")
		require.True(t, r1.Success, r1.Error)
		assert.Equal(t, rotationDomain.SlotA, r1.ActiveSlot)

		r2 := uc.Rotate(ctx, "system")
		require.True(t, r2.Success, r2.Error)
		assert.Equal(t, rotationDomain.SlotB, r2.ActiveSlot)
		assert.Equal(t, rotationDomain.SlotA, r2.PreviousSlot)

		status, err := uc.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.Username, status.SlotA.Username)
		assert.Equal(t, second.Username, status.SlotB.Username)

		r3 := uc.Rotate(ctx, "system")
		require.True(t, r3.Success, r3.Error)
		assert.Equal(t, rotationDomain.SlotA, r3.ActiveSlot)
		assert.Equal(t, 3, r3.RotationCount)

		conn, err := uc.ActiveConnectionString(ctx)
		require.NoError(t, err)
		assert.Equal(t, third.ConnectionString, conn)

		status, err = uc.Status(ctx)
		require.NoError(t, err)
		assert.True(t, status.Configured)
		assert.Equal(t, second.Username, status.SlotB.Username)
		assert.Equal(t, third.Username, status.SlotA.Username)

		logs, err := store.ListAuditLogs(ctx, auditDomain.Filter{Action: ActionDbCredentialRotate})
		require.NoError(t, err)
		assert.Len(t, logs, 3)
		issuer.AssertExpectations(t)
	})

	t.Run("Success_StatusUnconfigured", func(t *testing.T) {
		uc, _, _ := newDbRotation(t)

		status, err := uc.Status(ctx)
		require.NoError(t, err)
		assert.False(t, status.Configured)

		_, err = uc.ActiveConnectionString(ctx)
		assert.ErrorIs(t, err, rotationDomain.ErrDbRotationNotConfigured)
	})

	t.Run("Error_RotateUnconfigured", func(t *testing.T) {
		uc, _, _ := newDbRotation(t)

		result := uc.Rotate(ctx, "system")
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "not configured")
	})

	t.Run("Error_GenerateFailsKeepsActiveSlot", func(t *testing.T) {
		uc, issuer, _ := newDbRotation(t)
		require.NoError(t, uc.Configure(ctx, adminConfig, "alice"))
		issuer.On("Generate", mock.Anything, mock.Anything).Return(issued(1), nil).Once()
		issuer.On("Generate", mock.Anything, mock.Anything).Return(nil, credentialDomain.ErrTargetUnavailable).Once()

		require.True(t, uc.Rotate(ctx, "system").Success)
		failed := uc.Rotate(ctx, "system")
		assert.False(t, failed.Success)

		status, err := uc.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, rotationDomain.SlotA, status.ActiveSlot)
	})

	t.Run("Error_InvalidAdmin", func(t *testing.T) {
		uc, _, _ := newDbRotation(t)

		err := uc.Configure(ctx, rotationDomain.AdminConfig{Host: "db"}, "alice")
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

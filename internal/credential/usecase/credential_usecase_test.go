package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
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
	credentialService "github.com/allisson/keyvault/internal/credential/service"
	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	cryptoService "github.com/allisson/keyvault/internal/crypto/service"
	"github.com/allisson/keyvault/internal/database"
	dekUsecase "github.com/allisson/keyvault/internal/dek/usecase"
	apperrors "github.com/allisson/keyvault/internal/errors"
	kmsService "github.com/allisson/keyvault/internal/kms/service"
	"github.com/allisson/keyvault/internal/settings"
	"github.com/allisson/keyvault/internal/storage/memory"
)

// mockRoleManager is a mock implementation of RoleManager for testing.
type mockRoleManager struct {
	mock.Mock
}

func (m *mockRoleManager) CreateRole(
	ctx context.Context,
	admin credentialService.AdminConn,
	role credentialService.RoleSpec,
) error {
	args := m.Called(ctx, admin, role)
	return args.Error(0)
}

func (m *mockRoleManager) DropRole(ctx context.Context, admin credentialService.AdminConn, username string) error {
	args := m.Called(ctx, admin, username)
	return args.Error(0)
}

type fixture struct {
	uc    *credentialUseCase
	store *memory.Store
	roles *mockRoleManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	settingsStore := settings.NewStore(store)
	kms, err := kmsService.NewLocalProvider(settingsStore, "test-master-secret")
	require.NoError(t, err)
	registry := dekUsecase.NewDekRegistry(settingsStore, kms, cryptoService.NewAEADManager(), cryptoDomain.AESGCM, logger)
	audit := auditUsecase.NewAuditLogUseCase(store, auditService.NewAuditSigner(), nil, logger)
	roles := &mockRoleManager{}

	uc := NewCredentialUseCase(database.NewNoopTxManager(), store, roles, registry, audit, logger).(*credentialUseCase)
	return &fixture{uc: uc, store: store, roles: roles}
}

func validRequest() credentialDomain.Request {
	return credentialDomain.Request{
		Host:          "db.internal",
		Port:          5432,
		Database:      "clinic",
		AdminUser:     "postgres",
		AdminPassword: "admin-pass",
		TTLSeconds:    60,
		GrantedTables: []string{"public.patients"},
		ReadOnly:      true,
		RequestedBy:   "alice",
	}
}

func TestCredentialUseCase_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_MintsRole", func(t *testing.T) {
		f := newFixture(t)
		f.roles.On("CreateRole", mock.Anything,
			mock.MatchedBy(func(a credentialService.AdminConn) bool {
				return a.User == "postgres" && a.Password == "admin-pass"
			}),
			mock.MatchedBy(func(r credentialService.RoleSpec) bool {
				return strings.HasPrefix(r.Username, "v_dyn_") && r.ReadOnly &&
					len(r.GrantedTables) == 1 && r.Password != ""
			}),
		).Return(nil).Once()

		result, err := f.uc.Generate(ctx, validRequest())
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(result.Username, "v_dyn_"))
		assert.NotEmpty(t, result.Password)
		assert.Contains(t, result.ConnectionString, result.Username)
		assert.WithinDuration(t, time.Now().Add(60*time.Second), result.ExpiresAt, 5*time.Second)

		cred, err := f.uc.Get(ctx, result.ID)
		require.NoError(t, err)
		assert.NotEqual(t, "admin-pass", cred.AdminPasswordEncrypted)
		assert.False(t, cred.Revoked)

		logs, err := f.store.ListAuditLogs(ctx, auditDomain.Filter{Action: ActionCredentialGenerate})
		require.NoError(t, err)
		assert.Len(t, logs, 1)
		f.roles.AssertExpectations(t)
	})

	t.Run("Error_UnsafeTableName", func(t *testing.T) {
		f := newFixture(t)
		req := validRequest()
		req.GrantedTables = []string{"patients; drop table users"}

		_, err := f.uc.Generate(ctx, req)
		assert.ErrorIs(t, err, credentialDomain.ErrInvalidIdentifier)
		f.roles.AssertNotCalled(t, "CreateRole", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Error_InvalidRequest", func(t *testing.T) {
		f := newFixture(t)
		req := validRequest()
		req.TTLSeconds = 0

		_, err := f.uc.Generate(ctx, req)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_TargetUnavailable", func(t *testing.T) {
		f := newFixture(t)
		f.roles.On("CreateRole", mock.Anything, mock.Anything, mock.Anything).
			Return(credentialDomain.ErrTargetUnavailable).Once()

		_, err := f.uc.Generate(ctx, validRequest())
		assert.ErrorIs(t, err, apperrors.ErrUnavailable)

		creds, err := f.uc.List(ctx, true)
		require.NoError(t, err)
		assert.Empty(t, creds)
	})
}

func TestCredentialUseCase_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_DropsRoleOnce", func(t *testing.T) {
		f := newFixture(t)
		f.roles.On("CreateRole", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		result, err := f.uc.Generate(ctx, validRequest())
		require.NoError(t, err)

		f.roles.On("DropRole", mock.Anything,
			mock.MatchedBy(func(a credentialService.AdminConn) bool { return a.Password == "admin-pass" }),
			result.Username,
		).Return(nil).Once()

		require.NoError(t, f.uc.Revoke(ctx, result.ID, "alice"))

		err = f.uc.Revoke(ctx, result.ID, "alice")
		assert.ErrorIs(t, err, credentialDomain.ErrCredentialRevoked)
		f.roles.AssertExpectations(t)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.uc.Get(ctx, uuid.New())
		assert.Nil(t, result)
		assert.ErrorIs(t, err, credentialDomain.ErrCredentialNotFound)
	})
}

func TestCredentialUseCase_RevokeExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.roles.On("CreateRole", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	first, err := f.uc.Generate(ctx, validRequest())
	require.NoError(t, err)
	second, err := f.uc.Generate(ctx, validRequest())
	require.NoError(t, err)

	f.roles.On("DropRole", mock.Anything, mock.Anything, first.Username).Return(errors.New("connection refused"))
	f.roles.On("DropRole", mock.Anything, mock.Anything, second.Username).Return(nil)

	f.uc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	revoked, err := f.uc.RevokeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, revoked)

	active, err := f.uc.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)

	logs, err := f.store.ListAuditLogs(ctx, auditDomain.Filter{Action: ActionCredentialAutoRevoke})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

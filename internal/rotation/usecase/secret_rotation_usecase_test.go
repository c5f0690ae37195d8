package usecase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	"github.com/allisson/keyvault/internal/database"
	rotationDomain "github.com/allisson/keyvault/internal/rotation/domain"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
	secretsUsecase "github.com/allisson/keyvault/internal/secrets/usecase"
	"github.com/allisson/keyvault/internal/storage/memory"
)

type staticKey []byte

func (k staticKey) Key(context.Context) ([]byte, error) { return k, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type secretFixture struct {
	uc      *secretRotationUseCase
	store   *memory.Store
	secrets secretsUsecase.SecretUseCase
}

func newSecretFixture(t *testing.T) *secretFixture {
	t.Helper()
	store := memory.NewStore()
	txManager := database.NewNoopTxManager()
	audit := auditUsecase.NewAuditLogUseCase(store, auditService.NewAuditSigner(), nil, testLogger())
	secrets := secretsUsecase.NewSecretUseCase(txManager, store, staticKey(make([]byte, 32)), audit, 10, testLogger())
	uc := NewSecretRotationUseCase(txManager, store, secrets, audit, testLogger()).(*secretRotationUseCase)
	return &secretFixture{uc: uc, store: store, secrets: secrets}
}

func TestSecretRotationUseCase_RotateNow(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_OldVersionStillReadable", func(t *testing.T) {
		f := newSecretFixture(t)
		version, err := f.secrets.Put(ctx, "app/db/password", []byte("s3cr3t"), secretsDomain.PutOptions{})
		require.NoError(t, err)
		require.Equal(t, 1, version)

		result := f.uc.RotateNow(ctx, "app/db/password", "alice")
		require.True(t, result.Success, result.Error)
		assert.Equal(t, 1, result.OldVersion)
		assert.Equal(t, 2, result.NewVersion)

		old, err := f.secrets.Get(ctx, "app/db/password", 1)
		require.NoError(t, err)
		assert.Equal(t, []byte("s3cr3t"), old.Value)

		latest, err := f.secrets.Get(ctx, "app/db/password", 0)
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Version)
		assert.NotEqual(t, []byte("s3cr3t"), latest.Value)
		assert.Len(t, latest.Value, 43)

		history, err := f.uc.History(ctx, "app/db/password", 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, 1, history[0].OldVersion)
		assert.Equal(t, 2, history[0].NewVersion)
		assert.Equal(t, "alice", history[0].TriggeredBy)
	})

	t.Run("Error_MissingSecretAudited", func(t *testing.T) {
		f := newSecretFixture(t)

		result := f.uc.RotateNow(ctx, "app/missing", "alice")
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Error)

		logs, err := f.store.ListAuditLogs(ctx, auditDomain.Filter{Action: ActionRotationFailed})
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})
}

func TestSecretRotationUseCase_Schedules(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_CreateUpdateRemove", func(t *testing.T) {
		f := newSecretFixture(t)
		_, err := f.secrets.Put(ctx, "app/key", []byte("v"), secretsDomain.PutOptions{})
		require.NoError(t, err)

		created, err := f.uc.SetSchedule(ctx, "app/key", rotationDomain.Config{IntervalDays: 30, Automatic: true}, "alice")
		require.NoError(t, err)
		assert.True(t, created.Active)

		updated, err := f.uc.SetSchedule(ctx, "app/key", rotationDomain.Config{IntervalDays: 7, Automatic: true}, "alice")
		require.NoError(t, err)
		assert.Equal(t, created.ID, updated.ID)
		assert.Equal(t, 7, updated.IntervalDays)

		require.NoError(t, f.uc.RemoveSchedule(ctx, "app/key", "alice"))
		schedules, err := f.uc.Schedules(ctx)
		require.NoError(t, err)
		require.Len(t, schedules, 1)
		assert.False(t, schedules[0].Active)

		for _, action := range []string{
			ActionRotationScheduleCreated, ActionRotationScheduleUpdated, ActionRotationScheduleRemoved,
		} {
			logs, err := f.store.ListAuditLogs(ctx, auditDomain.Filter{Action: action})
			require.NoError(t, err)
			assert.Len(t, logs, 1, action)
		}
	})

	t.Run("Error_CreateRequiresSecret", func(t *testing.T) {
		f := newSecretFixture(t)

		_, err := f.uc.SetSchedule(ctx, "app/missing", rotationDomain.Config{IntervalDays: 30}, "alice")
		assert.ErrorIs(t, err, secretsDomain.ErrSecretNotFound)
	})

	t.Run("Error_RemoveUnknown", func(t *testing.T) {
		f := newSecretFixture(t)

		err := f.uc.RemoveSchedule(ctx, "app/missing", "alice")
		assert.ErrorIs(t, err, rotationDomain.ErrScheduleNotFound)
	})
}

func TestSecretRotationUseCase_ExecutePending(t *testing.T) {
	ctx := context.Background()
	f := newSecretFixture(t)

	var callback map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&callback)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	for _, path := range []string{"app/due", "app/later", "app/deleted"} {
		_, err := f.secrets.Put(ctx, path, []byte("v"), secretsDomain.PutOptions{})
		require.NoError(t, err)
	}
	_, err := f.uc.SetSchedule(ctx, "app/due", rotationDomain.Config{
		IntervalDays: 1, Automatic: true, Strategy: rotationDomain.StrategyCallback, CallbackURL: server.URL,
	}, "alice")
	require.NoError(t, err)
	_, err = f.uc.SetSchedule(ctx, "app/later", rotationDomain.Config{IntervalDays: 30, Automatic: true}, "alice")
	require.NoError(t, err)
	_, err = f.uc.SetSchedule(ctx, "app/deleted", rotationDomain.Config{IntervalDays: 1, Automatic: true}, "alice")
	require.NoError(t, err)
	require.NoError(t, f.secrets.Delete(ctx, "app/deleted", "alice"))

	f.uc.now = func() time.Time { return time.Now().UTC().Add(48 * time.Hour) }

	batch := f.uc.ExecutePending(ctx)
	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, 1, batch.Skipped)

	assert.Equal(t, "app/due", callback["path"])
	assert.EqualValues(t, 2, callback["newVersion"])
	assert.NotContains(t, callback, "value")

	schedules, err := f.uc.Schedules(ctx)
	require.NoError(t, err)
	for _, s := range schedules {
		if s.SecretPath == "app/due" {
			require.NotNil(t, s.LastRotatedAt)
			assert.True(t, s.NextRotationAt.After(time.Now().Add(48*time.Hour)))
		}
	}
}

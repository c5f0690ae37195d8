package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	complianceUsecase "github.com/allisson/keyvault/internal/compliance/usecase"
	credentialUsecase "github.com/allisson/keyvault/internal/credential/usecase"
	dekUsecase "github.com/allisson/keyvault/internal/dek/usecase"
	drUsecase "github.com/allisson/keyvault/internal/dr/usecase"
	apperrors "github.com/allisson/keyvault/internal/errors"
	leaseUsecase "github.com/allisson/keyvault/internal/lease/usecase"
	policyUsecase "github.com/allisson/keyvault/internal/policy/usecase"
	rotationUsecase "github.com/allisson/keyvault/internal/rotation/usecase"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
	secretsUsecase "github.com/allisson/keyvault/internal/secrets/usecase"
	"github.com/allisson/keyvault/internal/settings"
	"github.com/allisson/keyvault/internal/worker"
	ztUsecase "github.com/allisson/keyvault/internal/zerotrust/usecase"
)

var (
	_ settings.Repository                    = (*Repository)(nil)
	_ auditUsecase.AuditLogRepository        = (*Repository)(nil)
	_ auditService.EventStore                = (*Repository)(nil)
	_ secretsUsecase.SecretRepository        = (*Repository)(nil)
	_ dekUsecase.EncryptionConfigRepository  = (*Repository)(nil)
	_ dekUsecase.FieldStore                  = (*Repository)(nil)
	_ credentialUsecase.CredentialRepository = (*Repository)(nil)
	_ leaseUsecase.LeaseRepository           = (*Repository)(nil)
	_ rotationUsecase.ScheduleRepository     = (*Repository)(nil)
	_ policyUsecase.PolicyRepository         = (*Repository)(nil)
	_ policyUsecase.UserPolicyRepository     = (*Repository)(nil)
	_ policyUsecase.TokenRepository          = (*Repository)(nil)
	_ ztUsecase.PolicyRepository             = (*Repository)(nil)
	_ ztUsecase.DeviceRiskRepository         = (*Repository)(nil)
	_ ztUsecase.SessionRepository            = (*Repository)(nil)
	_ ztUsecase.ActiveSessionLister          = (*Repository)(nil)
	_ complianceUsecase.StateReader          = (*Repository)(nil)
	_ drUsecase.SecretRepository             = (*Repository)(nil)
	_ drUsecase.PolicyRepository             = (*Repository)(nil)
	_ drUsecase.EncryptionConfigRepository   = (*Repository)(nil)
	_ worker.StateReader                     = (*Repository)(nil)
)

func newMock(t *testing.T, dialect string) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := New(db, dialect)
	require.NoError(t, err)
	return repo, mock
}

func TestNew(t *testing.T) {
	_, err := New(nil, "sqlite")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDialect(t *testing.T) {
	pg := &Repository{dialect: DialectPostgres}
	my := &Repository{dialect: DialectMySQL}

	t.Run("Success_Rebind", func(t *testing.T) {
		q := "SELECT a FROM t WHERE b = ? AND c = ?"
		assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", pg.rebind(q))
		assert.Equal(t, q, my.rebind(q))
	})

	t.Run("Success_Upsert", func(t *testing.T) {
		assert.Equal(t,
			"INSERT INTO s (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v",
			pg.upsert("s", []string{"k"}, []string{"k", "v"}, []string{"v"}),
		)
		assert.Equal(t,
			"INSERT INTO s (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)",
			my.upsert("s", []string{"k"}, []string{"k", "v"}, []string{"v"}),
		)
	})

	t.Run("Success_QuoteIdent", func(t *testing.T) {
		q, err := pg.quoteIdent("patients")
		require.NoError(t, err)
		assert.Equal(t, `"patients"`, q)

		q, err = my.quoteIdent("patients")
		require.NoError(t, err)
		assert.Equal(t, "`patients`", q)
	})

	t.Run("Error_QuoteIdentRejectsInjection", func(t *testing.T) {
		for _, name := range []string{"users; DROP TABLE x", "a b", "", "1abc", `x"y`} {
			_, err := pg.quoteIdent(name)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput, name)
		}
	})

	t.Run("Success_LikePrefix", func(t *testing.T) {
		assert.Equal(t, `app/db\_1\%%`, likePrefix("app/db_1%"))
		assert.Equal(t, "%", likePrefix(""))
	})
}

func TestRepository_Settings(t *testing.T) {
	ctx := context.Background()

	t.Run("Error_NotFound", func(t *testing.T) {
		repo, mock := newMock(t, DialectPostgres)
		mock.ExpectQuery(regexp.QuoteMeta("FROM vault_settings WHERE setting_key = $1")).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetSetting(ctx, "missing")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_SaveUpserts", func(t *testing.T) {
		repo, mock := newMock(t, DialectMySQL)
		now := time.Now().UTC()
		mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value)")).
			WithArgs("k", []byte("v"), now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.SaveSetting(ctx, &settings.Setting{Key: "k", Value: []byte("v"), UpdatedAt: now}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_DeleteMissing", func(t *testing.T) {
		repo, mock := newMock(t, DialectPostgres)
		mock.ExpectExec("DELETE FROM vault_settings").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.DeleteSetting(ctx, "k"), apperrors.ErrNotFound)
	})
}

func TestRepository_Secrets(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	secret := &secretsDomain.Secret{
		ID: uuid.Must(uuid.NewV7()), Path: "app/db", Version: 1,
		Ciphertext: []byte("ct"), IV: []byte("iv"), CreatedAt: now, UpdatedAt: now,
	}

	t.Run("Error_DuplicateVersionPostgres", func(t *testing.T) {
		repo, mock := newMock(t, DialectPostgres)
		mock.ExpectExec("INSERT INTO secrets").WillReturnError(&pq.Error{Code: "23505"})

		assert.ErrorIs(t, repo.CreateSecret(ctx, secret), apperrors.ErrConflict)
	})

	t.Run("Error_DuplicateVersionMySQL", func(t *testing.T) {
		repo, mock := newMock(t, DialectMySQL)
		mock.ExpectExec("INSERT INTO secrets").WillReturnError(&mysql.MySQLError{Number: 1062})

		assert.ErrorIs(t, repo.CreateSecret(ctx, secret), apperrors.ErrConflict)
	})

	t.Run("Success_GetLatestLive", func(t *testing.T) {
		repo, mock := newMock(t, DialectPostgres)
		rows := sqlmock.NewRows([]string{
			"id", "path", "version", "ciphertext", "iv", "metadata", "created_by", "created_at", "updated_at", "deleted_at",
		}).AddRow(secret.ID.String(), "app/db", 3, []byte("ct"), []byte("iv"), "{}", "alice", now, now, nil)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE path = $1 AND deleted_at IS NULL ORDER BY version DESC LIMIT 1")).
			WithArgs("app/db").
			WillReturnRows(rows)

		got, err := repo.GetSecret(ctx, "app/db")
		require.NoError(t, err)
		assert.Equal(t, secret.ID, got.ID)
		assert.Equal(t, 3, got.Version)
		assert.Nil(t, got.DeletedAt)
	})

	t.Run("Success_LatestVersionEmpty", func(t *testing.T) {
		repo, mock := newMock(t, DialectPostgres)
		mock.ExpectQuery("SELECT MAX\\(version\\) FROM secrets").
			WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

		v, err := repo.GetLatestVersion(ctx, "new/path")
		require.NoError(t, err)
		assert.Equal(t, 0, v)
	})

	t.Run("Success_Stats", func(t *testing.T) {
		repo, mock := newMock(t, DialectMySQL)
		mock.ExpectQuery("SELECT COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"paths", "versioned", "versions"}).AddRow(4, 1, 6))

		stats, err := repo.SecretStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, secretsDomain.Stats{Paths: 4, VersionedPaths: 1, Versions: 6}, stats)
	})
}

func TestRepository_Rows(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_ListRowsNullableFields", func(t *testing.T) {
		repo, mock := newMock(t, DialectPostgres)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "ssn" FROM "patients" ORDER BY "id" LIMIT $1 OFFSET $2`)).
			WithArgs(100, 0).
			WillReturnRows(sqlmock.NewRows([]string{"id", "ssn"}).AddRow("1", "v1:aXY=:Y3Q=").AddRow("2", nil))

		rows, err := repo.ListRows(ctx, "patients", []string{"ssn"}, 0, 0)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "v1:aXY=:Y3Q=", *rows[0].Fields["ssn"])
		assert.Nil(t, rows[1].Fields["ssn"])
	})

	t.Run("Error_InvalidField", func(t *testing.T) {
		repo, _ := newMock(t, DialectMySQL)
		err := repo.UpdateRowField(ctx, "patients", "1", "ssn = 'x', name", "v")
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestRepository_ConsumeTokenUse(t *testing.T) {
	ctx := context.Background()
	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	t.Run("Success", func(t *testing.T) {
		repo, mock := newMock(t, DialectPostgres)
		mock.ExpectExec("UPDATE vault_tokens SET uses_count = uses_count \\+ 1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.ConsumeTokenUse(ctx, id, now))
	})

	t.Run("Error_Exhausted", func(t *testing.T) {
		repo, mock := newMock(t, DialectPostgres)
		mock.ExpectExec("UPDATE vault_tokens").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("FROM vault_tokens WHERE id = ").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "accessor", "token_hash", "display_name", "policies", "token_type", "expires_at", "num_uses",
				"uses_count", "parent_id", "revoked", "revoked_at", "created_by", "last_used_at", "created_at",
			}).AddRow(id.String(), "acc", "hash", "ci", `["default"]`, "service", nil, 1, 1, nil, false, nil, "", now, now))

		err := repo.ConsumeTokenUse(ctx, id, now)
		assert.ErrorIs(t, err, apperrors.ErrPreconditionFailed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_Unknown", func(t *testing.T) {
		repo, mock := newMock(t, DialectMySQL)
		mock.ExpectExec("UPDATE vault_tokens").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("FROM vault_tokens WHERE id = ").WillReturnError(sql.ErrNoRows)

		assert.ErrorIs(t, repo.ConsumeTokenUse(ctx, id, now), apperrors.ErrNotFound)
	})
}

func TestRepository_ListPoliciesByNamesEmpty(t *testing.T) {
	repo, mock := newMock(t, DialectPostgres)
	got, err := repo.ListPoliciesByNames(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListAllActiveSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	repo, mock := newMock(t, DialectPostgres)
	mock.ExpectQuery(`FROM adaptive_sessions\s+WHERE revoked = \$1 AND expires_at > \$2`).
		WithArgs(false, now).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "ip_address", "device_fingerprint", "country", "user_agent", "created_at",
			"last_activity_at", "expires_at", "revoked", "revoked_at", "revoke_reason",
		}).
			AddRow("s1", "alice", "1.1.1.1", "fp-1", "VN", "ua", now, now, now.Add(time.Hour), false, nil, "").
			AddRow("s2", "bob", "2.2.2.2", "fp-2", "US", "ua", now, now, now.Add(time.Hour), false, nil, ""))

	got, err := repo.ListAllActiveSessions(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].UserID)
	assert.Equal(t, "bob", got[1].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

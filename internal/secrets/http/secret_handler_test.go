package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/keyvault/internal/httputil"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
	"github.com/allisson/keyvault/internal/secrets/http/dto"
)

type mockSecretUseCase struct {
	mock.Mock
}

func (m *mockSecretUseCase) Get(ctx context.Context, path string, version int) (*secretsDomain.SecretValue, error) {
	args := m.Called(ctx, path, version)
	if v := args.Get(0); v != nil {
		return v.(*secretsDomain.SecretValue), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSecretUseCase) Put(ctx context.Context, path string, value []byte, opts secretsDomain.PutOptions) (int, error) {
	args := m.Called(ctx, path, value, opts)
	return args.Int(0), args.Error(1)
}

func (m *mockSecretUseCase) Delete(ctx context.Context, path string, actor string) error {
	return m.Called(ctx, path, actor).Error(0)
}

func (m *mockSecretUseCase) List(ctx context.Context, prefix string) ([]secretsDomain.Entry, error) {
	args := m.Called(ctx, prefix)
	entries, _ := args.Get(0).([]secretsDomain.Entry)
	return entries, args.Error(1)
}

func (m *mockSecretUseCase) Versions(ctx context.Context, path string) ([]secretsDomain.VersionInfo, error) {
	args := m.Called(ctx, path)
	versions, _ := args.Get(0).([]secretsDomain.VersionInfo)
	return versions, args.Error(1)
}

func (m *mockSecretUseCase) Import(
	ctx context.Context,
	values map[string]string,
	prefix string,
	actor string,
) (*secretsDomain.ImportResult, error) {
	args := m.Called(ctx, values, prefix, actor)
	result, _ := args.Get(0).(*secretsDomain.ImportResult)
	return result, args.Error(1)
}

func (m *mockSecretUseCase) Stats(ctx context.Context) (secretsDomain.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(secretsDomain.Stats), args.Error(1)
}

func setupTestHandler(t *testing.T) (*SecretHandler, *mockSecretUseCase) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	uc := &mockSecretUseCase{}
	t.Cleanup(func() { uc.AssertExpectations(t) })
	return NewSecretHandler(uc, slog.New(slog.NewTextHandler(io.Discard, nil))), uc
}

func createTestContext(method, target string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	ctx := httputil.WithPrincipal(c.Request.Context(), policyDomain.Principal{UserID: "token:abc"})
	c.Request = c.Request.WithContext(ctx)
	return c, w
}

func TestSecretHandler_GetHandler(t *testing.T) {
	t.Run("Success_LatestVersion", func(t *testing.T) {
		handler, uc := setupTestHandler(t)
		value := &secretsDomain.SecretValue{
			ID:        uuid.Must(uuid.NewV7()),
			Path:      "app/db/password",
			Version:   2,
			Value:     []byte("hunter2"),
			CreatedAt: time.Now().UTC(),
		}
		uc.On("Get", mock.Anything, "app/db/password", 0).Return(value, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/secrets/app/db/password", nil)
		c.Params = gin.Params{{Key: "path", Value: "/app/db/password"}}
		handler.GetHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp dto.SecretResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Version)
		assert.Equal(t, []byte("hunter2"), resp.Value)
		assert.Equal(t, make([]byte, 7), value.Value)
	})

	t.Run("Success_ExplicitVersion", func(t *testing.T) {
		handler, uc := setupTestHandler(t)
		uc.On("Get", mock.Anything, "app/key", 1).
			Return(&secretsDomain.SecretValue{Path: "app/key", Version: 1, Value: []byte("v1")}, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/secrets/app/key?version=1", nil)
		c.Params = gin.Params{{Key: "path", Value: "/app/key"}}
		handler.GetHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Error_InvalidVersion", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodGet, "/v1/secrets/app/key?version=0", nil)
		c.Params = gin.Params{{Key: "path", Value: "/app/key"}}
		handler.GetHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		handler, uc := setupTestHandler(t)
		uc.On("Get", mock.Anything, "missing", 0).Return(nil, secretsDomain.ErrSecretNotFound).Once()

		c, w := createTestContext(http.MethodGet, "/v1/secrets/missing", nil)
		c.Params = gin.Params{{Key: "path", Value: "/missing"}}
		handler.GetHandler(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Error_EmptyPath", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodGet, "/v1/secrets/", nil)
		c.Params = gin.Params{{Key: "path", Value: "/"}}
		handler.GetHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "path cannot be empty")
	})
}

func TestSecretHandler_PutHandler(t *testing.T) {
	t.Run("Success_ActorFromPrincipal", func(t *testing.T) {
		handler, uc := setupTestHandler(t)
		uc.On("Put", mock.Anything, "app/key", []byte("value"),
			secretsDomain.PutOptions{Metadata: "m", Actor: "token:abc"}).Return(4, nil).Once()

		c, w := createTestContext(http.MethodPut, "/v1/secrets/app/key",
			dto.PutSecretRequest{Value: []byte("value"), Metadata: "m"})
		c.Params = gin.Params{{Key: "path", Value: "/app/key"}}
		handler.PutHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp dto.PutSecretResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 4, resp.Version)
	})

	t.Run("Error_InvalidJSON", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPut, "/v1/secrets/app/key", bytes.NewBufferString("{"))
		c.Request.Header.Set("Content-Type", "application/json")
		c.Params = gin.Params{{Key: "path", Value: "/app/key"}}
		handler.PutHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Error_EmptyValue", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodPut, "/v1/secrets/app/key", dto.PutSecretRequest{})
		c.Params = gin.Params{{Key: "path", Value: "/app/key"}}
		handler.PutHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestSecretHandler_DeleteHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, uc := setupTestHandler(t)
		uc.On("Delete", mock.Anything, "app/key", "token:abc").Return(nil).Once()

		c, w := createTestContext(http.MethodDelete, "/v1/secrets/app/key", nil)
		c.Params = gin.Params{{Key: "path", Value: "/app/key"}}
		handler.DeleteHandler(c)

		assert.Equal(t, http.StatusNoContent, c.Writer.Status())
		assert.Empty(t, w.Body.String())
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		handler, uc := setupTestHandler(t)
		uc.On("Delete", mock.Anything, "app/key", "token:abc").Return(secretsDomain.ErrSecretNotFound).Once()

		c, w := createTestContext(http.MethodDelete, "/v1/secrets/app/key", nil)
		c.Params = gin.Params{{Key: "path", Value: "/app/key"}}
		handler.DeleteHandler(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSecretHandler_ListHandler(t *testing.T) {
	handler, uc := setupTestHandler(t)
	uc.On("List", mock.Anything, "app").Return([]secretsDomain.Entry{
		{Name: "db/", IsFolder: true},
		{Name: "key"},
	}, nil).Once()

	c, w := createTestContext(http.MethodGet, "/v1/secrets-list/app/", nil)
	c.Params = gin.Params{{Key: "prefix", Value: "/app/"}}
	handler.ListHandler(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.ListSecretsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "app/", resp.Prefix)
	assert.Len(t, resp.Data, 2)
}

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/keyvault/internal/config"
	apperrors "github.com/allisson/keyvault/internal/errors"
	keyvaultHTTP "github.com/allisson/keyvault/internal/http"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func memoryConfig() *config.Config {
	return &config.Config{
		LogLevel:                "error",
		ServerHost:              "localhost",
		ServerPort:              0,
		DBDriver:                "memory",
		KMSProvider:             "local",
		KMSMasterSecret:         "test-master-secret",
		KMSHealthCheckInterval:  time.Second,
		VaultLegacySecret:       "legacy-secret",
		VaultDefaultMaxVersions: 5,
		DEKAlgorithm:            "aes-gcm",
		LeaseDefaultTTL:         60,
		LeaseMaxTTL:             3600,
		DBRotationCredentialTTL: 3600,
		ZTFreshSessionWindow:    15 * time.Minute,
		ZTMaxSessionAge:         8 * time.Hour,
		ZTSessionDuration:       time.Hour,
		ZTMaxConcurrentSessions: 3,
		ZTPolicyCacheTTL:        time.Minute,
		MaintenanceInterval:     time.Minute,
		MaintenanceMaxBackoff:   time.Hour,
		MetricsNamespace:        "test",
	}
}

func TestNewContainer(t *testing.T) {
	cfg := memoryConfig()
	container := NewContainer(cfg)

	require.NotNil(t, container)
	assert.Same(t, cfg, container.Config())
}

func TestContainerLogger(t *testing.T) {
	container := NewContainer(&config.Config{LogLevel: "debug"})

	logger := container.Logger()
	require.NotNil(t, logger)
	assert.Same(t, logger, container.Logger())
}

func TestContainerInitializationErrors(t *testing.T) {
	t.Run("Error_UnsupportedDriver", func(t *testing.T) {
		container := NewContainer(&config.Config{DBDriver: "oracle"})

		_, err := container.Store()
		require.Error(t, err)

		// The error is cached.
		_, err2 := container.Store()
		assert.Equal(t, err, err2)
	})

	t.Run("Error_MemoryDriverHasNoDB", func(t *testing.T) {
		container := NewContainer(memoryConfig())

		_, err := container.DB()
		assert.Error(t, err)
	})

	t.Run("Error_MissingMasterSecret", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.KMSMasterSecret = ""
		container := NewContainer(cfg)

		_, err := container.SecretUseCase()
		assert.Error(t, err)
	})

	t.Run("Error_UnknownDEKAlgorithm", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.DEKAlgorithm = "rot13"
		container := NewContainer(cfg)

		_, err := container.DekRegistry()
		assert.Error(t, err)
	})
}

func TestContainer_MemoryWiring(t *testing.T) {
	container := NewContainer(memoryConfig())

	txManager, err := container.TxManager()
	require.NoError(t, err)
	assert.NotNil(t, txManager)

	getters := map[string]func() (any, error){
		"secrets":           func() (any, error) { return container.SecretUseCase() },
		"leases":            func() (any, error) { return container.LeaseUseCase() },
		"credentials":       func() (any, error) { return container.CredentialUseCase() },
		"encryptionConfigs": func() (any, error) { return container.EncryptionConfigUseCase() },
		"unseal":            func() (any, error) { return container.UnsealUseCase() },
		"dr":                func() (any, error) { return container.DRUseCase() },
		"compliance":        func() (any, error) { return container.ComplianceUseCase() },
		"tokens":            func() (any, error) { return container.TokenUseCase() },
		"sessions":          func() (any, error) { return container.SessionUseCase() },
		"continuousAccess":  func() (any, error) { return container.ContinuousAccessUseCase() },
		"deviceTrust":       func() (any, error) { return container.DeviceTrustUseCase() },
		"secretRotation":    func() (any, error) { return container.SecretRotationUseCase() },
		"dekRotation":       func() (any, error) { return container.DekRotationUseCase() },
		"dbRotation":        func() (any, error) { return container.DbCredentialRotationUseCase() },
		"maintenance":       func() (any, error) { return container.Maintenance() },
		"vaultCounters":     func() (any, error) { return container.VaultCounters() },
	}
	for name, get := range getters {
		component, err := get()
		require.NoError(t, err, name)
		assert.NotNil(t, component, name)
	}

	metricsServer, err := container.MetricsServer()
	require.NoError(t, err)
	assert.Nil(t, metricsServer)

	cef, err := container.CEFWriter()
	require.NoError(t, err)
	assert.Nil(t, cef)

	assert.NoError(t, container.Shutdown(context.Background()))
}

func TestContainer_MetricsEnabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.MetricsEnabled = true
	cfg.SIEMCEFFile = filepath.Join(t.TempDir(), "events.cef")
	container := NewContainer(cfg)

	metricsServer, err := container.MetricsServer()
	require.NoError(t, err)
	require.NotNil(t, metricsServer)

	w := httptest.NewRecorder()
	metricsServer.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	_, err = container.EventPublisher()
	require.NoError(t, err)

	assert.NoError(t, container.Shutdown(context.Background()))
}

func TestParsePolicySeed(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		seed, err := ParsePolicySeed([]byte(`
zero_trust:
  - action: SecretWrite
    required_auth_level: session
    require_fresh_session: false
policies:
  - name: app-rw
    path_pattern: app/**
    capabilities: [read, update, list]
assignments:
  - user_id: alice
    policy: app-rw
`))
		require.NoError(t, err)
		require.Len(t, seed.ZeroTrust, 1)
		require.NotNil(t, seed.ZeroTrust[0].RequireFreshSession)
		assert.False(t, *seed.ZeroTrust[0].RequireFreshSession)
		assert.Nil(t, seed.ZeroTrust[0].BlockAnomaly)
		assert.Equal(t, []string{"read", "update", "list"}, seed.Policies[0].Capabilities)
		assert.Equal(t, "alice", seed.Assignments[0].UserID)
	})

	t.Run("Success_Empty", func(t *testing.T) {
		seed, err := ParsePolicySeed(nil)
		require.NoError(t, err)
		assert.Empty(t, seed.Policies)
	})

	t.Run("Error_UnknownField", func(t *testing.T) {
		_, err := ParsePolicySeed([]byte("policies:\n  - name: x\n    paths: [a]\n"))
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	})
}

func TestContainer_SeedPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_DefaultsAreIdempotent", func(t *testing.T) {
		container := NewContainer(memoryConfig())

		report, err := container.Bootstrap(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(ztDomain.DefaultPolicies()), report.DefaultsCreated)

		report, err = container.Bootstrap(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.DefaultsCreated)
	})

	t.Run("Error_UnknownAuthLevel", func(t *testing.T) {
		container := NewContainer(memoryConfig())

		_, err := container.SeedPolicies(ctx, &PolicySeed{
			ZeroTrust: []ZeroTrustSeed{{Action: "SecretRead", RequiredAuthLevel: "retina"}},
		}, "test")
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	})

	t.Run("Success_PolicyUpdatedOnSecondRun", func(t *testing.T) {
		container := NewContainer(memoryConfig())
		seed := &PolicySeed{Policies: []VaultPolicySeed{
			{Name: "app-ro", PathPattern: "app/*", Capabilities: []string{"read"}},
		}}

		report, err := container.SeedPolicies(ctx, seed, "test")
		require.NoError(t, err)
		assert.Equal(t, 1, report.PoliciesCreated)

		report, err = container.SeedPolicies(ctx, seed, "test")
		require.NoError(t, err)
		assert.Equal(t, 1, report.PoliciesUpdated)
	})
}

func TestContainer_HTTPServerEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seedFile := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte(`
zero_trust:
  - action: SecretWrite
    required_auth_level: Session
    require_fresh_session: false
policies:
  - name: app-rw
    path_pattern: app/**
    capabilities: [read, create, update, list]
`), 0o600))

	cfg := memoryConfig()
	cfg.ZTPolicyFile = seedFile
	container := NewContainer(cfg)

	report, err := container.Bootstrap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ZeroTrustUpdated)

	tokens, err := container.TokenUseCase()
	require.NoError(t, err)
	created, err := tokens.Create(ctx, policyDomain.CreateTokenRequest{
		DisplayName: "e2e",
		Policies:    []string{"app-rw"},
		TTLSeconds:  3600,
	})
	require.NoError(t, err)

	server, err := container.HTTPServer(ctx)
	require.NoError(t, err)
	handler := server.GetHandler()

	do := func(method, target string, body any) *httptest.ResponseRecorder {
		var raw []byte
		if body != nil {
			raw, _ = json.Marshal(body)
		}
		req := httptest.NewRequest(method, target, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) keyvault-e2e")
		req.Header.Set(keyvaultHTTP.HeaderVaultToken, created.Token)
		req.Header.Set(keyvaultHTTP.HeaderDeviceID, "device-1")
		req.Header.Set(keyvaultHTTP.HeaderCountry, "VN")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(http.MethodPut, "/v1/secrets/app/db/password", map[string]any{"value": []byte("s3cret")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(http.MethodGet, "/v1/secrets/app/db/password", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var secret struct {
		Value []byte `json:"value"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &secret))
	assert.Equal(t, []byte("s3cret"), secret.Value)

	// The default delete policy needs a trusted device and a fresh session.
	w = do(http.MethodDelete, "/v1/secrets/app/db/password", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "zero_trust_denied")

	w = do(http.MethodGet, "/v1/secrets/other/key", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	maintenance, err := container.Maintenance()
	require.NoError(t, err)
	_, err = maintenance.RunOnce(ctx)
	require.NoError(t, err)

	assert.NoError(t, container.Shutdown(context.Background()))
}

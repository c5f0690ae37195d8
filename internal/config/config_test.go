package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "load default configuration",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0", cfg.ServerHost)
				assert.Equal(t, 8080, cfg.ServerPort)
				assert.Equal(t, "postgres", cfg.DBDriver)
				assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, "keyvault", cfg.MetricsNamespace)
				assert.Equal(t, "local", cfg.KMSProvider)
				assert.Equal(t, 30*time.Second, cfg.KMSHealthCheckInterval)
				assert.Equal(t, "IVF-Vault-Default-Key", cfg.VaultLegacySecret)
				assert.Equal(t, 10, cfg.VaultDefaultMaxVersions)
				assert.Equal(t, 30, cfg.RotationDefaultIntervalDays)
				assert.Equal(t, 24, cfg.RotationDefaultGraceHours)
				assert.Equal(t, 86400, cfg.DBRotationCredentialTTL)
				assert.Equal(t, "aes-gcm", cfg.DEKAlgorithm)
				assert.Equal(t, 3600, cfg.LeaseDefaultTTL)
				assert.Equal(t, 86400, cfg.LeaseMaxTTL)
			},
		},
		{
			name:    "load default zero-trust and worker configuration",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 15*time.Minute, cfg.ZTFreshSessionWindow)
				assert.Equal(t, 8*time.Hour, cfg.ZTMaxSessionAge)
				assert.Equal(t, time.Hour, cfg.ZTSessionDuration)
				assert.Equal(t, 3, cfg.ZTMaxConcurrentSessions)
				assert.Equal(t, 5, cfg.ZTBruteForceThreshold)
				assert.Equal(t, 15*time.Minute, cfg.ZTBruteForceWindow)
				assert.Equal(t, 30*time.Minute, cfg.ZTImpossibleTravelWindow)
				assert.Equal(t, 15*time.Minute, cfg.ZTPolicyCacheTTL)
				assert.Equal(t, 10*time.Second, cfg.SIEMWebhookTimeout)
				assert.Equal(t, 100, cfg.SIEMCEFMaxSizeMB)
				assert.Equal(t, 5*time.Minute, cfg.MaintenanceInterval)
				assert.Equal(t, 45*time.Second, cfg.MaintenanceInitialDelay)
				assert.Equal(t, 30*time.Minute, cfg.MaintenanceMaxBackoff)
			},
		},
		{
			name: "load custom database configuration",
			envVars: map[string]string{
				"DB_DRIVER":                    "mysql",
				"DB_CONNECTION_STRING":         "user:password@tcp(localhost:3306)/vault?parseTime=true",
				"DB_MAX_OPEN_CONNECTIONS":      "50",
				"DB_MAX_IDLE_CONNECTIONS":      "10",
				"DB_CONN_MAX_LIFETIME_MINUTES": "10",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "mysql", cfg.DBDriver)
				assert.Equal(t, "user:password@tcp(localhost:3306)/vault?parseTime=true", cfg.DBConnectionString)
				assert.Equal(t, 50, cfg.DBMaxOpenConnections)
				assert.Equal(t, 10, cfg.DBMaxIdleConnections)
				assert.Equal(t, 10*time.Minute, cfg.DBConnMaxLifetime)
			},
		},
		{
			name: "load remote kms configuration",
			envVars: map[string]string{
				"KMS_PROVIDER":                      "remote",
				"KMS_KEY_URI":                       "hashivault://vault-kek",
				"KMS_MASTER_SECRET":                 "s3cr3t",
				"KMS_HEALTH_CHECK_INTERVAL_SECONDS": "5",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "remote", cfg.KMSProvider)
				assert.Equal(t, "hashivault://vault-kek", cfg.KMSKeyURI)
				assert.Equal(t, "s3cr3t", cfg.KMSMasterSecret)
				assert.Equal(t, 5*time.Second, cfg.KMSHealthCheckInterval)
			},
		},
		{
			name: "load custom siem configuration",
			envVars: map[string]string{
				"SIEM_WEBHOOK_URL":     "https://siem.example.com/ingest",
				"SIEM_CEF_FILE":        "/var/log/keyvault/cef.log",
				"SIEM_CEF_MAX_BACKUPS": "2",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://siem.example.com/ingest", cfg.SIEMWebhookURL)
				assert.Equal(t, "/var/log/keyvault/cef.log", cfg.SIEMCEFFile)
				assert.Equal(t, 2, cfg.SIEMCEFMaxBackups)
			},
		},
		{
			name: "load custom log level",
			envVars: map[string]string{
				"LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, "debug", cfg.GetGinMode())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()

			for key, value := range tt.envVars {
				err := os.Setenv(key, value)
				require.NoError(t, err)
			}

			cfg := Load()
			tt.validate(t, cfg)
		})
	}
}

func TestConfig_GetGinMode(t *testing.T) {
	for level, want := range map[string]string{"debug": "debug", "info": "release", "error": "release", "": "release"} {
		assert.Equal(t, want, (&Config{LogLevel: level}).GetGinMode(), level)
	}
}

func TestConfig_CORSOrigins(t *testing.T) {
	cfg := &Config{CORSAllowOrigins: " https://a.example.com, ,https://b.example.com "}
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins())
	assert.Nil(t, (&Config{}).CORSOrigins())
}

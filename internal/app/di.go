// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	auditService "github.com/allisson/keyvault/internal/audit/service"
	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	complianceUsecase "github.com/allisson/keyvault/internal/compliance/usecase"
	"github.com/allisson/keyvault/internal/config"
	credentialUsecase "github.com/allisson/keyvault/internal/credential/usecase"
	"github.com/allisson/keyvault/internal/database"
	dekUsecase "github.com/allisson/keyvault/internal/dek/usecase"
	drUsecase "github.com/allisson/keyvault/internal/dr/usecase"
	leaseUsecase "github.com/allisson/keyvault/internal/lease/usecase"
	policyUsecase "github.com/allisson/keyvault/internal/policy/usecase"
	rotationUsecase "github.com/allisson/keyvault/internal/rotation/usecase"
	secretsUsecase "github.com/allisson/keyvault/internal/secrets/usecase"
	"github.com/allisson/keyvault/internal/settings"
	"github.com/allisson/keyvault/internal/storage/memory"
	"github.com/allisson/keyvault/internal/storage/repository"
	"github.com/allisson/keyvault/internal/worker"
	ztService "github.com/allisson/keyvault/internal/zerotrust/service"
	ztUsecase "github.com/allisson/keyvault/internal/zerotrust/usecase"
)

// Store is every repository port of the vault. The SQL repository and the in-memory
// store both satisfy it.
type Store interface {
	settings.Repository
	auditUsecase.AuditLogRepository
	auditService.EventStore
	ztService.EventLister
	secretsUsecase.SecretRepository
	dekUsecase.EncryptionConfigRepository
	dekUsecase.FieldStore
	credentialUsecase.CredentialRepository
	leaseUsecase.LeaseRepository
	rotationUsecase.ScheduleRepository
	policyUsecase.PolicyRepository
	policyUsecase.UserPolicyRepository
	policyUsecase.TokenRepository
	ztUsecase.PolicyRepository
	ztUsecase.DeviceRiskRepository
	ztUsecase.SessionRepository
	ztUsecase.ActiveSessionLister
	drUsecase.SecretRepository
	drUsecase.PolicyRepository
	drUsecase.EncryptionConfigRepository
	complianceUsecase.StateReader
	worker.StateReader
}

// lazy memoizes one component together with its initialization error.
type lazy[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (l *lazy[T]) get(init func() (T, error)) (T, error) {
	l.once.Do(func() {
		l.val, l.err = init()
	})
	return l.val, l.err
}

// Container holds all application dependencies and provides methods to access them.
// Components are created on first access and cached, errors included.
type Container struct {
	config *config.Config

	loggerInit sync.Once
	logger     *slog.Logger

	db        lazy[*sql.DB]
	txManager lazy[database.TxManager]
	store     lazy[Store]
	settings  lazy[*settings.Store]

	observability
	vault
	access
	rotation
	servers

	mu sync.Mutex
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{config: cfg}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the JSON logger at the configured level.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection. It fails for the memory driver.
func (c *Container) DB() (*sql.DB, error) {
	return c.db.get(c.initDB)
}

// TxManager returns the transaction manager. The memory driver gets a no-op manager.
func (c *Container) TxManager() (database.TxManager, error) {
	return c.txManager.get(func() (database.TxManager, error) {
		if c.config.DBDriver == database.DriverMemory {
			return database.NewNoopTxManager(), nil
		}
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
		}
		return database.NewTxManager(db), nil
	})
}

// Store returns the vault repository selected by DB_DRIVER.
func (c *Container) Store() (Store, error) {
	return c.store.get(c.initStore)
}

// Settings returns the typed settings store.
func (c *Container) Settings() (*settings.Store, error) {
	return c.settings.get(func() (*settings.Store, error) {
		store, err := c.Store()
		if err != nil {
			return nil, fmt.Errorf("failed to get store for settings: %w", err)
		}
		return settings.NewStore(store), nil
	})
}

// Shutdown releases every initialized resource.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer.val != nil {
		if err := c.httpServer.val.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}
	if c.metricsServer.val != nil {
		if err := c.metricsServer.val.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	if c.metricsProvider.val != nil {
		if err := c.metricsProvider.val.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}
	// The publisher owns the CEF writer once it exists.
	if c.publisher.val != nil {
		if err := c.publisher.val.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("event publisher close: %w", err))
		}
	} else if c.cefWriter.val != nil {
		if err := c.cefWriter.val.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("cef writer close: %w", err))
		}
	}
	if c.db.val != nil {
		if err := c.db.val.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}
	return nil
}

func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(handler)
}

func (c *Container) initDB() (*sql.DB, error) {
	if c.config.DBDriver == database.DriverMemory {
		return nil, fmt.Errorf("the %s driver has no database connection", database.DriverMemory)
	}
	db, err := database.Connect(context.Background(), database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func (c *Container) initStore() (Store, error) {
	switch c.config.DBDriver {
	case database.DriverMemory:
		return memory.NewStore(), nil
	case database.DriverPostgres, database.DriverMySQL:
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for store: %w", err)
		}
		repo, err := repository.New(db, c.config.DBDriver)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/keyvault/internal/app"
	"github.com/allisson/keyvault/internal/config"
)

const defaultShutdownTimeout = 10 * time.Second

// RunServer starts the vault API, the metrics server and the maintenance worker.
// Zero-trust defaults and ZT_POLICY_FILE are seeded before the listener opens. Blocks
// until SIGINT/SIGTERM or the first component failure, then shuts everything down.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	defer closeContainer(container, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := container.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed policies: %w", err)
	}
	logger.Info("policies seeded",
		slog.Int("defaults_created", report.DefaultsCreated),
		slog.Int("zero_trust_updated", report.ZeroTrustUpdated),
		slog.Int("policies_created", report.PoliciesCreated),
	)

	server, err := container.HTTPServer(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}
	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}
	maintenance, err := container.Maintenance()
	if err != nil {
		return fmt.Errorf("failed to initialize maintenance worker: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("api server error: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.Start(gctx); err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return maintenance.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		timeout := cfg.DBConnMaxLifetime
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		var shutdownErrors []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("api server shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		return errors.Join(shutdownErrors...)
	})

	return g.Wait()
}

// MaintenanceRunner is the background sweep.
type MaintenanceRunner interface {
	Start(ctx context.Context) error
}

// RunWorker runs only the maintenance sweep until SIGINT/SIGTERM.
func RunWorker(ctx context.Context, runner MaintenanceRunner, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting maintenance worker only")
	return runner.Start(ctx)
}

package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/keyvault/internal/metrics"
)

// MetricsServer serves Prometheus scrapes on a listener separate from the vault API, so
// scrapes never pass through token authentication or the zero-trust guard.
type MetricsServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewMetricsServer creates the scrape server. A nil provider answers 503 on /metrics.
func NewMetricsServer(host string, port int, logger *slog.Logger, provider *metrics.Provider) *MetricsServer {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(scrapeFailureLogger(logger))

	scrape := scrapeHandler(provider)
	router.GET("/metrics", scrape)
	router.HEAD("/metrics", scrape)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "metrics_enabled": provider != nil})
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

func scrapeHandler(provider *metrics.Provider) gin.HandlerFunc {
	if provider == nil {
		return func(c *gin.Context) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics_disabled"})
		}
	}
	return gin.WrapH(provider.Handler())
}

// scrapeFailureLogger logs failed scrapes only. Successful scrapes arrive every few seconds.
func scrapeFailureLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			logger.Warn("metrics scrape failed",
				slog.String("path", c.Request.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.String("client_ip", c.ClientIP()))
		}
	}
}

func (s *MetricsServer) GetHandler() http.Handler {
	return s.server.Handler
}

// Start binds the listener and serves until Shutdown.
func (s *MetricsServer) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind metrics listener: %w", err)
	}
	s.logger.Info("starting metrics server", slog.String("addr", ln.Addr().String()))

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve metrics: %w", err)
	}
	return nil
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.server.Shutdown(ctx)
}

// Package http provides the gin HTTP server exposing the vault routes.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	auditUsecase "github.com/allisson/keyvault/internal/audit/usecase"
	"github.com/allisson/keyvault/internal/config"
	leaseHTTP "github.com/allisson/keyvault/internal/lease/http"
	"github.com/allisson/keyvault/internal/metrics"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	secretsHTTP "github.com/allisson/keyvault/internal/secrets/http"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

// ReadinessCheck reports whether one component can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Dependencies are the collaborators of the vault routes.
type Dependencies struct {
	SecretHandler *secretsHTTP.SecretHandler
	LeaseHandler  *leaseHTTP.LeaseHandler
	Tokens        TokenValidator
	Authorizer    *PolicyAuthorizer
	ZeroTrust     *ZeroTrustGuard
	Audit         auditUsecase.Recorder
}

// Server represents the HTTP server.
type Server struct {
	checks map[string]ReadinessCheck
	server *http.Server
	router *gin.Engine
	logger *slog.Logger
}

// NewServer creates a new HTTP server. checks feed the readiness endpoint.
func NewServer(
	checks map[string]ReadinessCheck,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		checks: checks,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter builds the gin engine. meterProvider may be nil when metrics are disabled.
func (s *Server) SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	deps Dependencies,
	meterProvider metric.MeterProvider,
) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))
	if meterProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(meterProvider, cfg.MetricsNamespace))
	}
	if cors := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); cors != nil {
		router.Use(cors)
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	if cfg.RateLimitEnabled {
		v1.Use(RateLimitMiddleware(ctx, cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, s.logger))
	}
	v1.Use(TokenAuthMiddleware(deps.Tokens, deps.Audit, s.logger))

	secretPath := func(c *gin.Context) string { return secretsHTTP.PathParam(c, "path") }
	listPrefix := func(c *gin.Context) string { return secretsHTTP.PathParam(c, "prefix") }
	guard := deps.ZeroTrust

	secrets := v1.Group("/secrets")
	{
		secrets.GET("/*path",
			guard.Require(ztDomain.ActionSecretRead),
			PolicyMiddleware(deps.Authorizer, policyDomain.CapabilityRead, secretPath, s.logger),
			deps.SecretHandler.GetHandler)
		secrets.PUT("/*path",
			guard.Require(ztDomain.ActionSecretWrite),
			PolicyMiddleware(deps.Authorizer, policyDomain.CapabilityUpdate, secretPath, s.logger),
			deps.SecretHandler.PutHandler)
		secrets.DELETE("/*path",
			guard.Require(ztDomain.ActionSecretDelete),
			PolicyMiddleware(deps.Authorizer, policyDomain.CapabilityDelete, secretPath, s.logger),
			deps.SecretHandler.DeleteHandler)
	}

	v1.GET("/secrets-list/*prefix",
		guard.Require(ztDomain.ActionSecretRead),
		PolicyMiddleware(deps.Authorizer, policyDomain.CapabilityList, listPrefix, s.logger),
		deps.SecretHandler.ListHandler)

	leases := v1.Group("/leases", guard.Require(ztDomain.ActionSecretRead))
	{
		leases.POST("", deps.LeaseHandler.CreateHandler)
		leases.GET("/:id", deps.LeaseHandler.GetHandler)
		leases.PUT("/:id", deps.LeaseHandler.RenewHandler)
		leases.DELETE("/:id", deps.LeaseHandler.RevokeHandler)
	}

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler runs every check. With no checks configured the server is not ready.
func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	components := gin.H{}
	ready := len(s.checks) > 0
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.logger.Warn("readiness check failed", slog.String("component", name), slog.Any("error", err))
			components[name] = "error"
			ready = false
			continue
		}
		components[name] = "ok"
	}
	if len(s.checks) == 0 {
		components["database"] = "error"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("router is not configured")
	}
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

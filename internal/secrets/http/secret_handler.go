// Package http provides HTTP handlers for the versioned secret store.
package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	"github.com/allisson/keyvault/internal/httputil"
	secretsDomain "github.com/allisson/keyvault/internal/secrets/domain"
	"github.com/allisson/keyvault/internal/secrets/http/dto"
	secretsUseCase "github.com/allisson/keyvault/internal/secrets/usecase"
	customValidation "github.com/allisson/keyvault/internal/validation"
)

// SecretHandler handles HTTP requests for secret operations. Authentication, zero-trust
// and policy checks run in middleware before these handlers.
type SecretHandler struct {
	secretUseCase secretsUseCase.SecretUseCase
	logger        *slog.Logger
}

// NewSecretHandler creates a new secret handler.
func NewSecretHandler(secretUseCase secretsUseCase.SecretUseCase, logger *slog.Logger) *SecretHandler {
	return &SecretHandler{
		secretUseCase: secretUseCase,
		logger:        logger,
	}
}

// PathParam returns the normalized secret path of a wildcard route parameter.
func PathParam(c *gin.Context, name string) string {
	return secretsDomain.NormalizePath(strings.TrimPrefix(c.Param(name), "/"))
}

// GetHandler decrypts a secret, optionally a specific version.
// GET /v1/secrets/*path?version=N
func (h *SecretHandler) GetHandler(c *gin.Context) {
	path := PathParam(c, "path")
	if path == "" {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("path cannot be empty"), h.logger)
		return
	}

	version := 0
	if raw := c.Query("version"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			httputil.HandleValidationErrorGin(
				c,
				fmt.Errorf("invalid version parameter: must be a positive integer"),
				h.logger,
			)
			return
		}
		version = v
	}

	value, err := h.secretUseCase.Get(c.Request.Context(), path, version)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	defer cryptoDomain.Zero(value.Value)

	c.JSON(http.StatusOK, dto.MapSecretValueToResponse(value))
}

// PutHandler writes a new version.
// PUT /v1/secrets/*path
func (h *SecretHandler) PutHandler(c *gin.Context) {
	path := PathParam(c, "path")
	if path == "" {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("path cannot be empty"), h.logger)
		return
	}

	var req dto.PutSecretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	defer cryptoDomain.Zero(req.Value)

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	ctx := c.Request.Context()
	version, err := h.secretUseCase.Put(ctx, path, req.Value, secretsDomain.PutOptions{
		Metadata: req.Metadata,
		Actor:    httputil.Actor(ctx),
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.PutSecretResponse{Path: path, Version: version})
}

// DeleteHandler tombstones the latest version.
// DELETE /v1/secrets/*path
func (h *SecretHandler) DeleteHandler(c *gin.Context) {
	path := PathParam(c, "path")
	if path == "" {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("path cannot be empty"), h.logger)
		return
	}

	ctx := c.Request.Context()
	if err := h.secretUseCase.Delete(ctx, path, httputil.Actor(ctx)); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListHandler lists the direct children of a prefix.
// GET /v1/secrets-list/*prefix
func (h *SecretHandler) ListHandler(c *gin.Context) {
	prefix := PathParam(c, "prefix")

	entries, err := h.secretUseCase.List(c.Request.Context(), prefix)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	if prefix != "" {
		prefix += "/"
	}
	c.JSON(http.StatusOK, dto.MapEntriesToListResponse(prefix, entries))
}

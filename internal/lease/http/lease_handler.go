// Package http provides HTTP handlers for secret leases.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	cryptoDomain "github.com/allisson/keyvault/internal/crypto/domain"
	"github.com/allisson/keyvault/internal/httputil"
	leaseDomain "github.com/allisson/keyvault/internal/lease/domain"
	"github.com/allisson/keyvault/internal/lease/http/dto"
	leaseUseCase "github.com/allisson/keyvault/internal/lease/usecase"
	policyDomain "github.com/allisson/keyvault/internal/policy/domain"
	customValidation "github.com/allisson/keyvault/internal/validation"
)

// Authorizer checks the caller's capability on a secret path.
type Authorizer interface {
	Authorize(ctx context.Context, path string, capability policyDomain.Capability) error
}

// LeaseHandler serves the lease endpoints. A lease exposes its secret, so every
// operation requires read on the leased path.
type LeaseHandler struct {
	leaseUseCase leaseUseCase.LeaseUseCase
	authorizer   Authorizer
	logger       *slog.Logger
}

// NewLeaseHandler creates a new lease handler.
func NewLeaseHandler(
	leaseUseCase leaseUseCase.LeaseUseCase,
	authorizer Authorizer,
	logger *slog.Logger,
) *LeaseHandler {
	return &LeaseHandler{
		leaseUseCase: leaseUseCase,
		authorizer:   authorizer,
		logger:       logger,
	}
}

// CreateHandler leases a secret.
// POST /v1/leases
func (h *LeaseHandler) CreateHandler(c *gin.Context) {
	var req dto.CreateLeaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	ctx := c.Request.Context()
	if err := h.authorizer.Authorize(ctx, req.SecretPath, policyDomain.CapabilityRead); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	lease, err := h.leaseUseCase.Create(ctx, req.SecretPath, req.TTLSeconds, req.Renewable, httputil.Actor(ctx))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapLeaseToResponse(lease))
}

// authorizedLease loads the lease and checks read on its secret path. It writes the
// error response itself and returns nil on failure.
func (h *LeaseHandler) authorizedLease(c *gin.Context) *leaseDomain.Lease {
	ctx := c.Request.Context()
	lease, err := h.leaseUseCase.Get(ctx, c.Param("id"))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return nil
	}
	if err := h.authorizer.Authorize(ctx, lease.SecretPath, policyDomain.CapabilityRead); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return nil
	}
	return lease
}

// GetHandler reads the secret through an active lease.
// GET /v1/leases/:id
func (h *LeaseHandler) GetHandler(c *gin.Context) {
	lease := h.authorizedLease(c)
	if lease == nil {
		return
	}

	secret, err := h.leaseUseCase.GetLeasedSecret(c.Request.Context(), lease.ID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	if secret == nil {
		httputil.HandleErrorGin(c, leaseDomain.ErrLeaseExpired, h.logger)
		return
	}
	defer cryptoDomain.Zero(secret.Value)

	c.JSON(http.StatusOK, dto.MapLeasedSecretToResponse(secret))
}

// RenewHandler extends a renewable lease.
// PUT /v1/leases/:id
func (h *LeaseHandler) RenewHandler(c *gin.Context) {
	var req dto.RenewLeaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	lease := h.authorizedLease(c)
	if lease == nil {
		return
	}

	ctx := c.Request.Context()
	renewed, err := h.leaseUseCase.Renew(ctx, lease.ID, req.IncrementSeconds, httputil.Actor(ctx))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapLeaseToResponse(renewed))
}

// RevokeHandler revokes a lease.
// DELETE /v1/leases/:id
func (h *LeaseHandler) RevokeHandler(c *gin.Context) {
	lease := h.authorizedLease(c)
	if lease == nil {
		return
	}

	ctx := c.Request.Context()
	if err := h.leaseUseCase.Revoke(ctx, lease.ID, httputil.Actor(ctx)); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Status(http.StatusNoContent)
}

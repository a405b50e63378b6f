package platform

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for platform configuration.
type Handler struct {
	service *Service
}

// NewHandler creates a new platform handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) platform routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/platform/settings", h.GetSettings)
	r.GET("/platform/tokens", h.ListTokens)
	r.GET("/events/:id/transfer-fee", h.GetTransferFee)
}

// RegisterProtectedRoutes sets up auth-required platform routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/platform/initialize", h.Initialize)
	r.POST("/platform/tokens", h.AddToken)
	r.DELETE("/platform/tokens/:address", h.RemoveToken)
	r.PUT("/events/:id/transfer-fee", h.SetTransferFee)
	r.POST("/platform/upgrade", h.RecordUpgrade)
}

// Initialize handles POST /v1/platform/initialize
func (h *Handler) Initialize(c *gin.Context) {
	var req InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "adminAddress, tokenAddress, platformWallet, and registryAddress are required",
		})
		return
	}

	settings, err := h.service.Initialize(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrAlreadyInitialized):
			status = http.StatusConflict
			code = "already_initialized"
		case errors.Is(err, ErrSelfReference):
			status = http.StatusBadRequest
			code = "self_reference"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"settings": settings})
}

// GetSettings handles GET /v1/platform/settings
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.service.Settings(c.Request.Context())
	if err != nil {
		if errors.Is(err, ErrNotInitialized) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_initialized",
				"message": "Platform has not been initialized",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// ListTokens handles GET /v1/platform/tokens
func (h *Handler) ListTokens(c *gin.Context) {
	tokens, err := h.service.ListTokens(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tokens": tokens,
		"count":  len(tokens),
	})
}

// AddToken handles POST /v1/platform/tokens
func (h *Handler) AddToken(c *gin.Context) {
	var req struct {
		TokenAddress string `json:"tokenAddress" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "tokenAddress is required",
		})
		return
	}

	principal := c.GetString("authAddr")
	if err := h.service.AddToken(c.Request.Context(), principal, req.TokenAddress); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "token whitelisted"})
}

// RemoveToken handles DELETE /v1/platform/tokens/:address
func (h *Handler) RemoveToken(c *gin.Context) {
	principal := c.GetString("authAddr")
	if err := h.service.RemoveToken(c.Request.Context(), principal, c.Param("address")); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "token removed"})
}

// SetTransferFee handles PUT /v1/events/:id/transfer-fee
func (h *Handler) SetTransferFee(c *gin.Context) {
	var req TransferFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Fee == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "fee is required",
		})
		return
	}

	principal := c.GetString("authAddr")
	err := h.service.SetTransferFee(c.Request.Context(), principal, c.Param("id"), *req.Fee)
	if err != nil {
		if errors.Is(err, ErrInvalidFee) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_fee", "message": err.Error()})
			return
		}
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "transfer fee updated"})
}

// GetTransferFee handles GET /v1/events/:id/transfer-fee
func (h *Handler) GetTransferFee(c *gin.Context) {
	fee, err := h.service.TransferFee(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"fee": fee})
}

// RecordUpgrade handles POST /v1/platform/upgrade
func (h *Handler) RecordUpgrade(c *gin.Context) {
	principal := c.GetString("authAddr")
	settings, err := h.service.RecordUpgrade(c.Request.Context(), principal)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// respondServiceError maps platform service errors to HTTP responses.
func respondServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrNotInitialized):
		status = http.StatusConflict
		code = "not_initialized"
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
		code = "unauthorized"
	case errors.Is(err, ErrSelfReference):
		status = http.StatusBadRequest
		code = "self_reference"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

package escrow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agoratix/ticketpay/internal/platform"
	"github.com/agoratix/ticketpay/internal/registry"
)

// Handler provides HTTP endpoints for balances and withdrawals.
type Handler struct {
	service *Service
}

// NewHandler creates a new escrow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) escrow routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/events/:id/balance", h.GetBalance)
	r.GET("/organizers/:address/events", h.GetOrganizerEvents)
}

// RegisterProtectedRoutes sets up auth-required escrow routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/events/:id/withdraw", h.WithdrawOrganizerFunds)
	r.POST("/events/:id/withdraw-fees", h.WithdrawPlatformFees)
}

// WithdrawRequest names the token a withdrawal should pay out in.
type WithdrawRequest struct {
	TokenAddress string `json:"tokenAddress" binding:"required"`
}

// GetBalance handles GET /v1/events/:id/balance
func (h *Handler) GetBalance(c *gin.Context) {
	bal, err := h.service.Balance(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": bal})
}

// GetOrganizerEvents handles GET /v1/organizers/:address/events
func (h *Handler) GetOrganizerEvents(c *gin.Context) {
	events, err := h.service.OrganizerEvents(c.Request.Context(), c.Param("address"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		if errors.Is(err, registry.ErrUnavailable) {
			status = http.StatusBadGateway
			code = "registry_unavailable"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// WithdrawOrganizerFunds handles POST /v1/events/:id/withdraw
func (h *Handler) WithdrawOrganizerFunds(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "tokenAddress is required",
		})
		return
	}

	principal := c.GetString("authAddr")
	result, err := h.service.WithdrawOrganizerFunds(c.Request.Context(), principal, c.Param("id"), req.TokenAddress)
	if err != nil {
		respondWithdrawError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"withdrawal": result})
}

// WithdrawPlatformFees handles POST /v1/events/:id/withdraw-fees
func (h *Handler) WithdrawPlatformFees(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "tokenAddress is required",
		})
		return
	}

	principal := c.GetString("authAddr")
	result, err := h.service.WithdrawPlatformFees(c.Request.Context(), principal, c.Param("id"), req.TokenAddress)
	if err != nil {
		respondWithdrawError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"withdrawal": result})
}

// respondWithdrawError maps withdrawal errors to HTTP responses.
func respondWithdrawError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, platform.ErrNotInitialized):
		status = http.StatusConflict
		code = "not_initialized"
	case errors.Is(err, platform.ErrTokenNotWhitelisted):
		status = http.StatusBadRequest
		code = "token_not_whitelisted"
	case errors.Is(err, registry.ErrEventNotFound):
		status = http.StatusNotFound
		code = "event_not_found"
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
		code = "unauthorized"
	case errors.Is(err, ErrNegativeBalance):
		status = http.StatusConflict
		code = "negative_balance"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

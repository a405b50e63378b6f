package payments

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agoratix/ticketpay/internal/money"
	"github.com/agoratix/ticketpay/internal/pagination"
	"github.com/agoratix/ticketpay/internal/platform"
	"github.com/agoratix/ticketpay/internal/registry"
)

// Handler provides HTTP endpoints for payment operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new payments handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/payments/:id", h.GetPayment)
	r.GET("/buyers/:address/payments", h.GetBuyerPayments)
}

// RegisterProtectedRoutes sets up auth-required payment routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/payments", h.ProcessPayment)
	r.POST("/payments/:id/confirm", h.ConfirmPayment)
	r.POST("/payments/:id/refund", h.RequestRefund)
	r.POST("/payments/:id/transfer", h.TransferTicket)
}

// ProcessPayment handles POST /v1/payments
func (h *Handler) ProcessPayment(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "paymentId, eventId, buyerAddress, ticketTierId, tokenAddress, unitPrice, and quantity are required",
		})
		return
	}

	principal := c.GetString("authAddr")
	result, err := h.service.ProcessPayment(c.Request.Context(), principal, req)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payment": result})
}

// ConfirmPayment handles POST /v1/payments/:id/confirm
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var body struct {
		TransactionHash string `json:"transactionHash"`
	}
	_ = c.ShouldBindJSON(&body)

	principal := c.GetString("authAddr")
	payment, err := h.service.ConfirmPayment(c.Request.Context(), principal, c.Param("id"), body.TransactionHash)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// RequestRefund handles POST /v1/payments/:id/refund
func (h *Handler) RequestRefund(c *gin.Context) {
	principal := c.GetString("authAddr")
	payment, err := h.service.RequestGuestRefund(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// TransferTicket handles POST /v1/payments/:id/transfer
func (h *Handler) TransferTicket(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "toAddress is required",
		})
		return
	}

	principal := c.GetString("authAddr")
	payment, err := h.service.TransferTicket(c.Request.Context(), principal, c.Param("id"), req.ToAddress)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// GetPayment handles GET /v1/payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	payment, err := h.service.GetPaymentStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// GetBuyerPayments handles GET /v1/buyers/:address/payments
func (h *Handler) GetBuyerPayments(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cur, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Malformed pagination cursor",
		})
		return
	}
	afterID := ""
	if cur != nil {
		afterID = cur.ID
	}

	payments, err := h.service.GetBuyerPayments(c.Request.Context(), c.Param("address"), afterID, limit)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	page, nextCursor, hasMore := pagination.ComputePage(payments, limit, func(p *Payment) (time.Time, string) {
		return p.CreatedAt, p.PaymentID
	})

	resp := gin.H{
		"payments": page,
		"count":    len(page),
		"hasMore":  hasMore,
	}
	if nextCursor != "" {
		resp["nextCursor"] = nextCursor
	}
	c.JSON(http.StatusOK, resp)
}

// respondPaymentError maps payment service errors to HTTP responses.
func respondPaymentError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, registry.ErrEventNotFound):
		status = http.StatusNotFound
		code = "event_not_found"
	case errors.Is(err, registry.ErrTierNotFound):
		status = http.StatusNotFound
		code = "tier_not_found"
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
		code = "unauthorized"
	case errors.Is(err, ErrPaymentExists):
		status = http.StatusConflict
		code = "payment_exists"
	case errors.Is(err, ErrInvalidAddress):
		status = http.StatusBadRequest
		code = "invalid_address"
	case errors.Is(err, ErrInvalidAmount):
		status = http.StatusBadRequest
		code = "invalid_amount"
	case errors.Is(err, ErrEventInactive):
		status = http.StatusUnprocessableEntity
		code = "event_inactive"
	case errors.Is(err, ErrInvalidPaymentStatus):
		status = http.StatusConflict
		code = "invalid_status"
	case errors.Is(err, ErrInsufficientAllowance):
		status = http.StatusPaymentRequired
		code = "insufficient_allowance"
	case errors.Is(err, ErrTransferVerificationFailed):
		status = http.StatusBadGateway
		code = "transfer_verification_failed"
	case errors.Is(err, ErrTicketNotRefundable):
		status = http.StatusUnprocessableEntity
		code = "not_refundable"
	case errors.Is(err, platform.ErrNotInitialized):
		status = http.StatusConflict
		code = "not_initialized"
	case errors.Is(err, platform.ErrTokenNotWhitelisted):
		status = http.StatusBadRequest
		code = "token_not_whitelisted"
	case errors.Is(err, money.ErrOverflow):
		status = http.StatusBadRequest
		code = "amount_overflow"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

package notify

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agoratix/ticketpay/internal/idgen"
	"github.com/agoratix/ticketpay/internal/security"
)

// Handler provides HTTP endpoints for webhook subscription management.
type Handler struct {
	store Store
}

// NewHandler creates a new subscription handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up subscription routes. Callers register these
// under an authenticated group; every route checks the caller owns the
// subscriber address.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/subscribers/:address/webhooks", h.CreateSubscription)
	r.GET("/subscribers/:address/webhooks", h.ListSubscriptions)
	r.DELETE("/subscribers/:address/webhooks/:webhookId", h.DeleteSubscription)
}

// CreateSubscriptionRequest for creating a webhook subscription.
type CreateSubscriptionRequest struct {
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events" binding:"required"`
}

// CreateSubscription handles POST /v1/subscribers/:address/webhooks
func (h *Handler) CreateSubscription(c *gin.Context) {
	address := c.Param("address")
	if !strings.EqualFold(c.GetString("authAddr"), address) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Cannot manage webhooks for another address",
		})
		return
	}

	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "url and events are required",
		})
		return
	}

	if err := security.ValidateEndpointURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_url",
			"message": err.Error(),
		})
		return
	}

	events := make([]EventType, 0, len(req.Events))
	for _, e := range req.Events {
		et := EventType(e)
		if !knownEventType(et) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "unknown_event_type",
				"message": "Unknown event type: " + e,
			})
			return
		}
		events = append(events, et)
	}

	secret := idgen.Hex(32)
	sub := &Subscription{
		ID:             idgen.WithPrefix("wh_"),
		SubscriberAddr: strings.ToLower(address),
		URL:            req.URL,
		Secret:         secret,
		Events:         events,
		Active:         true,
		CreatedAt:      time.Now(),
	}

	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "create_failed",
			"message": "Failed to create webhook",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"webhook": gin.H{
			"id":        sub.ID,
			"url":       sub.URL,
			"events":    sub.Events,
			"active":    sub.Active,
			"createdAt": sub.CreatedAt,
		},
		"secret": secret, // Only shown once!
		"usage": gin.H{
			"signature": "Verify with HMAC-SHA256(payload, secret)",
			"header":    "X-Ticketpay-Signature",
		},
	})
}

// ListSubscriptions handles GET /v1/subscribers/:address/webhooks
func (h *Handler) ListSubscriptions(c *gin.Context) {
	address := c.Param("address")
	if !strings.EqualFold(c.GetString("authAddr"), address) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Cannot manage webhooks for another address",
		})
		return
	}

	subs, err := h.store.GetBySubscriber(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list webhooks",
		})
		return
	}

	// Secrets are never re-exposed after creation.
	webhooks := make([]gin.H, len(subs))
	for i, sub := range subs {
		webhooks[i] = gin.H{
			"id":          sub.ID,
			"url":         sub.URL,
			"events":      sub.Events,
			"active":      sub.Active,
			"createdAt":   sub.CreatedAt,
			"lastSuccess": sub.LastSuccess,
			"lastError":   sub.LastError,
		}
	}

	c.JSON(http.StatusOK, gin.H{"webhooks": webhooks})
}

// DeleteSubscription handles DELETE /v1/subscribers/:address/webhooks/:webhookId
func (h *Handler) DeleteSubscription(c *gin.Context) {
	address := c.Param("address")
	if !strings.EqualFold(c.GetString("authAddr"), address) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Cannot manage webhooks for another address",
		})
		return
	}

	sub, err := h.store.Get(c.Request.Context(), c.Param("webhookId"))
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Webhook not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "delete_failed",
			"message": "Failed to delete webhook",
		})
		return
	}
	if !strings.EqualFold(sub.SubscriberAddr, address) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Webhook belongs to another address",
		})
		return
	}

	if err := h.store.Delete(c.Request.Context(), sub.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "delete_failed",
			"message": "Failed to delete webhook",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "deleted",
		"message": "Webhook deleted",
	})
}

func knownEventType(et EventType) bool {
	for _, known := range KnownEventTypes {
		if known == et {
			return true
		}
	}
	return false
}

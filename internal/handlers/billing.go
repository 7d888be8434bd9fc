package handlers

import (
	"errors"
	"io"
	"net/http"

	"realtorvoice/internal/models"
	"realtorvoice/internal/services"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody bounds the Stripe event payload
const maxWebhookBody = 64 << 10

func (h *Handler) CreateCheckout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "plan must be monthly or annual")
		return
	}

	url, err := h.Billing.CreateCheckoutSession(c.Request.Context(), userID(c), req.Plan)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) CreatePortal(c *gin.Context) {
	url, err := h.Billing.CreatePortalSession(c.Request.Context(), userID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) ListPayments(c *gin.Context) {
	payments, err := h.Billing.ListPayments(c.Request.Context(), userID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// StripeWebhook applies a signed Stripe event. Non-2xx answers make Stripe retry,
// so only processing failures return 5xx.
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "could not read body")
		return
	}

	if err := h.Billing.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		if errors.Is(err, services.ErrInvalidSignature) {
			badRequest(c, "invalid signature")
			return
		}
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

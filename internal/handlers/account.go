package handlers

import (
	"net/http"
	"strconv"

	"realtorvoice/internal/services"

	"github.com/gin-gonic/gin"
)

// GetCurrentUser returns the signed-in agent
func (h *Handler) GetCurrentUser(c *gin.Context) {
	user, err := h.Accounts.GetUser(c.Request.Context(), userID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":                    user,
		"has_active_subscription": user.HasActiveSubscription(),
	})
}

// UpdatePhoto replaces the agent's profile photo from a multipart "photo" field
func (h *Handler) UpdatePhoto(c *gin.Context) {
	header, err := c.FormFile("photo")
	if err != nil {
		badRequest(c, "photo file is required")
		return
	}
	if err := services.ValidatePhoto(header.Filename, header.Size); err != nil {
		h.handleError(c, err)
		return
	}

	file, err := header.Open()
	if err != nil {
		h.handleError(c, err)
		return
	}
	defer file.Close()

	url, err := h.Accounts.UpdatePhoto(c.Request.Context(), userID(c), file, header.Filename, header.Size)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photo_url": url})
}

// ListNotifications returns the agent's feed, newest first
func (h *Handler) ListNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	unreadOnly := c.Query("unread") == "true"

	notifications, err := h.Accounts.ListNotifications(c.Request.Context(), userID(c), unreadOnly, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.Accounts.MarkNotificationRead(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

package handlers

import (
	"net/http"

	"realtorvoice/internal/models"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListReminders(c *gin.Context) {
	status := models.ReminderStatus(c.Query("status"))
	switch status {
	case "", models.ReminderPending, models.ReminderSent, models.ReminderFailed, models.ReminderCancelled:
	default:
		badRequest(c, "status must be one of pending, sent, failed, cancelled")
		return
	}

	reminders, err := h.Reminders.ListReminders(c.Request.Context(), userID(c), status)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": reminders})
}

func (h *Handler) CreateReminder(c *gin.Context) {
	var req models.CreateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "type, message and scheduled_for are required")
		return
	}

	reminder, err := h.Reminders.CreateReminder(c.Request.Context(), userID(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reminder)
}

func (h *Handler) GetReminder(c *gin.Context) {
	reminder, err := h.Reminders.GetReminder(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminder)
}

// CancelReminder moves a pending reminder to cancelled
func (h *Handler) CancelReminder(c *gin.Context) {
	reminder, err := h.Reminders.CancelReminder(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminder)
}

// TriggerEvent evaluates the agent's rules for a pipeline event
func (h *Handler) TriggerEvent(c *gin.Context) {
	var req models.TriggerEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "event and date are required")
		return
	}

	created, err := h.Reminders.TriggerEvent(c.Request.Context(), userID(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"reminders": created})
}

func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.Reminders.ListRules(c.Request.Context(), userID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (h *Handler) CreateRule(c *gin.Context) {
	var req models.ReminderRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name, type, trigger_event and message_template are required")
		return
	}

	rule, err := h.Reminders.CreateRule(c.Request.Context(), userID(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *Handler) UpdateRule(c *gin.Context) {
	var req models.ReminderRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name, type, trigger_event and message_template are required")
		return
	}

	rule, err := h.Reminders.UpdateRule(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// ToggleRule enables or disables a rule without touching its other fields
func (h *Handler) ToggleRule(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "enabled is required")
		return
	}

	rule, err := h.Reminders.SetRuleEnabled(c.Request.Context(), userID(c), c.Param("id"), *req.Enabled)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *Handler) DeleteRule(c *gin.Context) {
	if err := h.Reminders.DeleteRule(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

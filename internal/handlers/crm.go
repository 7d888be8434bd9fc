package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"realtorvoice/internal/crm"
	"realtorvoice/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// integration resolves the :provider path parameter
func (h *Handler) integration(c *gin.Context) (crm.Integration, bool) {
	id := crm.ProviderID(c.Param("provider"))
	if !id.Valid() {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown CRM provider", "code": CodeNotFound})
		return crm.Integration{}, false
	}
	integration, ok := h.Registry.Get(id)
	if !ok {
		h.handleError(c, fmt.Errorf("%w: %s", crm.ErrUnknownProvider, id))
		return crm.Integration{}, false
	}
	return integration, true
}

// CRMStatus lists every configured provider and whether the agent is connected
func (h *Handler) CRMStatus(c *gin.Context) {
	statuses := make([]crm.ConnectionStatus, 0, len(crm.AllProviders))
	for _, id := range h.Registry.IDs() {
		integration, _ := h.Registry.Get(id)
		status, err := integration.Guard.Status(c.Request.Context(), userID(c))
		if err != nil {
			h.handleError(c, err)
			return
		}
		statuses = append(statuses, status)
	}
	c.JSON(http.StatusOK, gin.H{"providers": statuses})
}

// CRMConnect returns the provider consent URL. The state parameter is a
// short-lived signed token naming the user and provider.
func (h *Handler) CRMConnect(c *gin.Context) {
	integration, ok := h.integration(c)
	if !ok {
		return
	}
	state, err := h.Issuer.GenerateState(userID(c), string(integration.Guard.Provider()))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": integration.Guard.AuthCodeURL(state)})
}

// CRMCallback completes the OAuth flow and sends the browser back to the app
func (h *Handler) CRMCallback(c *gin.Context) {
	integration, ok := h.integration(c)
	if !ok {
		return
	}
	provider := string(integration.Guard.Provider())

	if denied := c.Query("error"); denied != "" {
		h.logger.Info("crm authorization denied", zap.String("provider", provider), zap.String("error", denied))
		c.Redirect(http.StatusFound, h.settingsURL(provider, "denied"))
		return
	}

	code := c.Query("code")
	if code == "" {
		badRequest(c, "missing authorization code")
		return
	}
	uid, err := h.Issuer.VerifyState(c.Query("state"), provider)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired state", "code": CodeUnauthorized})
		return
	}

	if err := integration.Guard.Exchange(c.Request.Context(), uid, code); err != nil {
		h.logger.Warn("crm code exchange failed",
			zap.String("provider", provider), zap.String("user_id", uid), zap.Error(err))
		c.Redirect(http.StatusFound, h.settingsURL(provider, "error"))
		return
	}
	c.Redirect(http.StatusFound, h.settingsURL(provider, "connected"))
}

func (h *Handler) settingsURL(provider, status string) string {
	q := url.Values{"crm": {provider}, "status": {status}}
	return h.AppBaseURL + "/settings?" + q.Encode()
}

func (h *Handler) CRMDisconnect(c *gin.Context) {
	integration, ok := h.integration(c)
	if !ok {
		return
	}
	if err := integration.Guard.Disconnect(c.Request.Context(), userID(c)); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// userCRM loads the facade for the caller, answering not_connected when the
// agent has no reachable CRM
func (h *Handler) userCRM(c *gin.Context) (*crm.UserCRM, bool) {
	u, err := h.CRM.ForUser(c.Request.Context(), userID(c))
	if err != nil {
		h.handleError(c, err)
		return nil, false
	}
	if !u.HasProviders() {
		h.handleError(c, crm.ErrNotConnected)
		return nil, false
	}
	return u, true
}

// target checks that a provider named in a request body is connected
func (h *Handler) target(c *gin.Context, u *crm.UserCRM, provider string) bool {
	if provider == "" || u.Has(crm.ProviderID(provider)) {
		return true
	}
	h.handleError(c, fmt.Errorf("%w: %s", crm.ErrNotConnected, provider))
	return false
}

// fanOutFailed reports a fan-out where no provider succeeded. When every
// provider failed for the same connection reason the response says so.
func fanOutFailed(c *gin.Context, errs []crm.ProviderError) {
	e := apiError{http.StatusBadGateway, CodeUpstreamError, "no CRM accepted the request"}
	switch sharedCode(errs) {
	case CodeNotConnected:
		e = classify(crm.ErrNotConnected)
	case CodeReauthRequired:
		e = classify(crm.ErrReauthRequired)
	}
	c.JSON(e.status, gin.H{"error": e.message, "code": e.code, "errors": errs})
}

func sharedCode(errs []crm.ProviderError) string {
	if len(errs) == 0 {
		return ""
	}
	for _, e := range errs[1:] {
		if e.Code != errs[0].Code {
			return ""
		}
	}
	return errs[0].Code
}

func (h *Handler) CreateContact(c *gin.Context) {
	var in models.ContactInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "first_name is required and email must be valid")
		return
	}
	u, ok := h.userCRM(c)
	if !ok {
		return
	}

	created, errs := u.CreateContact(c.Request.Context(), in)
	if len(created) == 0 {
		fanOutFailed(c, errs)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"contacts": created, "errors": errs})
}

func (h *Handler) SearchContacts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	u, ok := h.userCRM(c)
	if !ok {
		return
	}

	contacts, errs := u.SearchContacts(c.Request.Context(), c.Query("q"), limit)
	if len(contacts) == 0 && len(errs) == len(u.Providers()) {
		fanOutFailed(c, errs)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts, "errors": errs})
}

func (h *Handler) CreateTask(c *gin.Context) {
	var in models.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "title is required")
		return
	}
	u, ok := h.userCRM(c)
	if !ok || !h.target(c, u, in.Provider) {
		return
	}

	created, errs := u.CreateTask(c.Request.Context(), in)
	if len(created) == 0 {
		fanOutFailed(c, errs)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tasks": created, "errors": errs})
}

func (h *Handler) GetTasks(c *gin.Context) {
	var filter models.TaskFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, "invalid task filter")
		return
	}
	u, ok := h.userCRM(c)
	if !ok {
		return
	}

	tasks, errs := u.GetTasks(c.Request.Context(), filter)
	if len(tasks) == 0 && len(errs) == len(u.Providers()) {
		fanOutFailed(c, errs)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "errors": errs})
}

func (h *Handler) AddNote(c *gin.Context) {
	var in models.NoteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "contact_id and body are required")
		return
	}
	u, ok := h.userCRM(c)
	if !ok || !h.target(c, u, in.Provider) {
		return
	}

	errs := u.AddNote(c.Request.Context(), in)
	if (in.Provider != "" && len(errs) > 0) || len(errs) == len(u.Providers()) {
		fanOutFailed(c, errs)
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": errs})
}

package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"realtorvoice/internal/auth"
	"realtorvoice/internal/crm"
	"realtorvoice/internal/models"
	"realtorvoice/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error codes returned in the "code" field of error responses
const (
	CodeInvalidRequest      = "invalid_request"
	CodeUnauthorized        = "unauthorized"
	CodeNotConnected        = crm.CodeNotConnected
	CodeReauthRequired      = crm.CodeReauthRequired
	CodeUpstreamError       = crm.CodeUpstreamError
	CodeNotFound            = "not_found"
	CodeInvalidTransition   = "invalid_transition"
	CodeProviderUnavailable = "provider_unavailable"
	CodeInternalError       = "internal_error"
)

// Accounts is the account behaviour the handlers need
type Accounts interface {
	SignIn(ctx context.Context, info *auth.UserInfo) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdatePhoto(ctx context.Context, userID string, file io.Reader, filename string, size int64) (string, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
}

// Reminders is the reminder engine behaviour the handlers need
type Reminders interface {
	ListRules(ctx context.Context, userID string) ([]models.ReminderRule, error)
	CreateRule(ctx context.Context, userID string, req models.ReminderRuleRequest) (*models.ReminderRule, error)
	UpdateRule(ctx context.Context, userID, id string, req models.ReminderRuleRequest) (*models.ReminderRule, error)
	SetRuleEnabled(ctx context.Context, userID, id string, enabled bool) (*models.ReminderRule, error)
	DeleteRule(ctx context.Context, userID, id string) error
	TriggerEvent(ctx context.Context, userID string, event models.TriggerEventRequest) ([]models.Reminder, error)
	CreateReminder(ctx context.Context, userID string, req models.CreateReminderRequest) (*models.Reminder, error)
	GetReminder(ctx context.Context, userID, id string) (*models.Reminder, error)
	ListReminders(ctx context.Context, userID string, status models.ReminderStatus) ([]models.Reminder, error)
	CancelReminder(ctx context.Context, userID, id string) (*models.Reminder, error)
}

// Properties is the MLS proxy behaviour the handlers need
type Properties interface {
	Search(ctx context.Context, req models.PropertySearchRequest) ([]models.Property, error)
	SaveSearch(ctx context.Context, userID string, req models.SaveSearchRequest) (*models.SavedSearch, error)
	ListSearches(ctx context.Context, userID string) ([]models.SavedSearch, error)
	DeleteSearch(ctx context.Context, userID, id string) error
}

// Billing is the subscription behaviour the handlers need
type Billing interface {
	CreateCheckoutSession(ctx context.Context, userID, plan string) (string, error)
	CreatePortalSession(ctx context.Context, userID string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	ListPayments(ctx context.Context, userID string) ([]models.Payment, error)
}

// Deps wires the handlers to the rest of the application
type Deps struct {
	Issuer     *auth.TokenIssuer
	Verifier   auth.IdentityVerifier
	Accounts   Accounts
	Reminders  Reminders
	Properties Properties
	Billing    Billing
	Registry   *crm.Registry
	CRM        *crm.Facade
	AppBaseURL string
	Logger     *zap.Logger
}

// Handler serves the HTTP API
type Handler struct {
	Deps
	logger *zap.Logger
}

func New(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Deps: deps, logger: logger}
}

// RegisterRoutes mounts every route on router
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", HealthHandler)

	// Public routes
	router.POST("/auth/google", h.GoogleSignIn)
	router.POST("/auth/logout", h.Logout)
	router.POST("/billing/webhook", h.StripeWebhook)
	router.GET("/crm/:provider/callback", h.CRMCallback)

	protected := router.Group("")
	protected.Use(auth.AuthMiddleware(h.Issuer))
	{
		protected.GET("/me", h.GetCurrentUser)
		protected.PUT("/me/photo", h.UpdatePhoto)

		protected.GET("/crm/status", h.CRMStatus)
		protected.GET("/crm/:provider/connect", h.CRMConnect)
		protected.DELETE("/crm/:provider", h.CRMDisconnect)
		protected.POST("/crm/contacts", h.CreateContact)
		protected.GET("/crm/contacts", h.SearchContacts)
		protected.POST("/crm/tasks", h.CreateTask)
		protected.GET("/crm/tasks", h.GetTasks)
		protected.POST("/crm/notes", h.AddNote)

		protected.GET("/reminders", h.ListReminders)
		protected.POST("/reminders", h.CreateReminder)
		protected.POST("/reminders/events", h.TriggerEvent)
		protected.GET("/reminders/:id", h.GetReminder)
		protected.POST("/reminders/:id/cancel", h.CancelReminder)

		protected.GET("/reminder-rules", h.ListRules)
		protected.POST("/reminder-rules", h.CreateRule)
		protected.PUT("/reminder-rules/:id", h.UpdateRule)
		protected.PATCH("/reminder-rules/:id", h.ToggleRule)
		protected.DELETE("/reminder-rules/:id", h.DeleteRule)

		protected.POST("/properties/search", h.SearchProperties)
		protected.GET("/searches", h.ListSearches)
		protected.POST("/searches", h.SaveSearch)
		protected.DELETE("/searches/:id", h.DeleteSearch)

		protected.POST("/billing/checkout", h.CreateCheckout)
		protected.POST("/billing/portal", h.CreatePortal)
		protected.GET("/billing/payments", h.ListPayments)

		protected.GET("/notifications", h.ListNotifications)
		protected.POST("/notifications/:id/read", h.MarkNotificationRead)
	}
}

// HealthHandler is a simple health check endpoint
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// apiError is an error response: the message is safe to show, the code is for clients
type apiError struct {
	status  int
	code    string
	message string
}

// classify maps domain errors onto HTTP responses
func classify(err error) apiError {
	var upstream *crm.UpstreamError
	var mlsErr *services.MLSError

	switch {
	case errors.Is(err, crm.ErrNotConnected):
		return apiError{http.StatusConflict, CodeNotConnected, "CRM is not connected"}
	case errors.Is(err, crm.ErrReauthRequired):
		return apiError{http.StatusConflict, CodeReauthRequired, "CRM connection expired, please reconnect"}
	case errors.Is(err, crm.ErrUnknownProvider),
		errors.Is(err, services.ErrMLSUnavailable),
		errors.Is(err, services.ErrBillingUnavailable),
		errors.Is(err, services.ErrPhotosUnavailable):
		return apiError{http.StatusServiceUnavailable, CodeProviderUnavailable, err.Error()}
	case errors.As(err, &upstream):
		return apiError{http.StatusBadGateway, CodeUpstreamError, upstream.Error()}
	case errors.As(err, &mlsErr):
		return apiError{http.StatusBadGateway, CodeUpstreamError, "property search failed, please try again"}

	case errors.Is(err, services.ErrReminderNotFound),
		errors.Is(err, services.ErrRuleNotFound),
		errors.Is(err, services.ErrSearchNotFound),
		errors.Is(err, services.ErrNotificationNotFound),
		errors.Is(err, services.ErrUserNotFound):
		return apiError{http.StatusNotFound, CodeNotFound, err.Error()}
	case errors.Is(err, services.ErrInvalidTransition):
		return apiError{http.StatusConflict, CodeInvalidTransition, err.Error()}

	case errors.Is(err, services.ErrInvalidReminderType),
		errors.Is(err, services.ErrInvalidCriteria),
		errors.Is(err, services.ErrUnknownPlan),
		errors.Is(err, services.ErrNoBillingAccount),
		errors.Is(err, services.ErrInvalidImageType),
		errors.Is(err, services.ErrImageTooLarge),
		errors.Is(err, services.ErrInvalidSignature):
		return apiError{http.StatusBadRequest, CodeInvalidRequest, err.Error()}
	case errors.Is(err, services.ErrEmailNotVerified):
		return apiError{http.StatusUnauthorized, CodeUnauthorized, err.Error()}
	}
	return apiError{http.StatusInternalServerError, CodeInternalError, "something went wrong, please try again"}
}

// handleError writes the error response for err and logs it
func (h *Handler) handleError(c *gin.Context, err error) {
	e := classify(err)
	_ = c.Error(err)

	log := h.logger.With(zap.String("path", c.FullPath()), zap.String("code", e.code), zap.Error(err))
	if e.status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}
	c.JSON(e.status, gin.H{"error": e.message, "code": e.code})
}

// badRequest reports a binding or validation failure
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": CodeInvalidRequest})
}

func userID(c *gin.Context) string {
	return auth.GetUserIDFromContext(c)
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"realtorvoice/internal/config"
	"realtorvoice/internal/models"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUnknownPlan        = errors.New("unknown subscription plan")
	ErrNoBillingAccount   = errors.New("user has no billing account")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrBillingUnavailable = errors.New("billing is not configured")
)

// BillingStore is the user and payment persistence billing needs
type BillingStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByCustomer(ctx context.Context, customerID string) (*models.User, error)
	UpdateBilling(ctx context.Context, userID string, update models.BillingUpdate) error
	RecordPayment(ctx context.Context, payment *models.Payment) error
	ListPayments(ctx context.Context, userID string) ([]models.Payment, error)
}

// CheckoutInput describes a subscription checkout
type CheckoutInput struct {
	UserID     string
	Email      string
	CustomerID string
	PriceID    string
	Plan       string
	SuccessURL string
	CancelURL  string
}

// PaymentGateway creates hosted payment pages
type PaymentGateway interface {
	CheckoutURL(ctx context.Context, in CheckoutInput) (string, error)
	PortalURL(ctx context.Context, customerID, returnURL string) (string, error)
}

// StripeGateway is the PaymentGateway backed by the Stripe API
type StripeGateway struct {
	sc *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeGateway{sc: sc}
}

func (g *StripeGateway) CheckoutURL(ctx context.Context, in CheckoutInput) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(in.UserID),
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(in.PriceID), Quantity: stripe.Int64(1)},
		},
	}
	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	} else if in.Email != "" {
		params.CustomerEmail = stripe.String(in.Email)
	}
	params.Context = ctx
	params.AddMetadata("user_id", in.UserID)
	params.AddMetadata("plan", in.Plan)

	session, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return session.URL, nil
}

func (g *StripeGateway) PortalURL(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := g.sc.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return session.URL, nil
}

// BillingService manages subscriptions
type BillingService struct {
	store         BillingStore
	gateway       PaymentGateway
	webhookSecret string
	prices        map[string]string
	appBaseURL    string
	logger        *zap.Logger
}

func NewBillingService(store BillingStore, gateway PaymentGateway, cfg config.Config, logger *zap.Logger) *BillingService {
	prices := map[string]string{}
	if cfg.StripeMonthlyPrice != "" {
		prices["monthly"] = cfg.StripeMonthlyPrice
	}
	if cfg.StripeAnnualPrice != "" {
		prices["annual"] = cfg.StripeAnnualPrice
	}
	return &BillingService{
		store:         store,
		gateway:       gateway,
		webhookSecret: cfg.StripeWebhookSecret,
		prices:        prices,
		appBaseURL:    cfg.AppBaseURL,
		logger:        logger,
	}
}

// CreateCheckoutSession returns the hosted checkout URL for plan
func (s *BillingService) CreateCheckoutSession(ctx context.Context, userID, plan string) (string, error) {
	if s.gateway == nil {
		return "", ErrBillingUnavailable
	}
	priceID, ok := s.prices[plan]
	if !ok {
		return "", ErrUnknownPlan
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}

	return s.gateway.CheckoutURL(ctx, CheckoutInput{
		UserID:     userID,
		Email:      user.Email,
		CustomerID: user.StripeCustomerID,
		PriceID:    priceID,
		Plan:       plan,
		SuccessURL: s.appBaseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.appBaseURL + "/billing/cancel",
	})
}

// CreatePortalSession returns the self-service billing portal URL
func (s *BillingService) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	if s.gateway == nil {
		return "", ErrBillingUnavailable
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == "" {
		return "", ErrNoBillingAccount
	}
	return s.gateway.PortalURL(ctx, user.StripeCustomerID, s.appBaseURL+"/settings")
}

// ListPayments returns the agent's invoice history, newest first
func (s *BillingService) ListPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	return s.store.ListPayments(ctx, userID)
}

// HandleWebhook verifies and applies a Stripe event. Events this service does
// not act on are acknowledged without error.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.webhookSecret == "" {
		return ErrBillingUnavailable
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	log := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return s.checkoutCompleted(ctx, &session)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.subscriptionChanged(ctx, log, &sub, event.Type == "customer.subscription.deleted")

	case "invoice.payment_succeeded", "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		return s.invoicePaid(ctx, log, &invoice, event.Type == "invoice.payment_succeeded")

	default:
		log.Debug("ignoring stripe event")
		return nil
	}
}

func (s *BillingService) checkoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	userID := session.ClientReferenceID
	if userID == "" {
		userID = session.Metadata["user_id"]
	}
	if userID == "" {
		return fmt.Errorf("checkout session %s has no user reference", session.ID)
	}

	update := models.BillingUpdate{
		SubscriptionStatus: models.SubscriptionActive,
		PlanID:             session.Metadata["plan"],
	}
	if session.Customer != nil {
		update.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		update.SubscriptionID = session.Subscription.ID
	}
	return s.store.UpdateBilling(ctx, userID, update)
}

func (s *BillingService) subscriptionChanged(ctx context.Context, log *zap.Logger, sub *stripe.Subscription, deleted bool) error {
	user, err := s.userForCustomer(ctx, log, sub.Customer)
	if err != nil || user == nil {
		return err
	}

	update := models.BillingUpdate{
		SubscriptionID:     sub.ID,
		SubscriptionStatus: string(sub.Status),
	}
	if deleted {
		update.SubscriptionStatus = models.SubscriptionCanceled
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		update.PlanID = sub.Items.Data[0].Price.ID
	}
	return s.store.UpdateBilling(ctx, user.ID, update)
}

func (s *BillingService) invoicePaid(ctx context.Context, log *zap.Logger, invoice *stripe.Invoice, succeeded bool) error {
	user, err := s.userForCustomer(ctx, log, invoice.Customer)
	if err != nil || user == nil {
		return err
	}

	payment := &models.Payment{
		UserID:      user.ID,
		InvoiceID:   invoice.ID,
		AmountCents: invoice.AmountPaid,
		Currency:    string(invoice.Currency),
		Status:      "succeeded",
	}
	if !succeeded {
		payment.AmountCents = invoice.AmountDue
		payment.Status = "failed"
	}
	if err := s.store.RecordPayment(ctx, payment); err != nil {
		return err
	}

	if !succeeded {
		return s.store.UpdateBilling(ctx, user.ID, models.BillingUpdate{SubscriptionStatus: models.SubscriptionPastDue})
	}
	if user.SubscriptionStatus == models.SubscriptionPastDue {
		log.Info("payment recovered", zap.String("user_id", user.ID), zap.String("invoice_id", invoice.ID))
		return s.store.UpdateBilling(ctx, user.ID, models.BillingUpdate{SubscriptionStatus: models.SubscriptionActive})
	}
	return nil
}

// userForCustomer returns nil, nil for customers that belong to no user
func (s *BillingService) userForCustomer(ctx context.Context, log *zap.Logger, customer *stripe.Customer) (*models.User, error) {
	if customer == nil || customer.ID == "" {
		log.Warn("stripe event without customer")
		return nil, nil
	}
	user, err := s.store.GetUserByCustomer(ctx, customer.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn("stripe customer has no user", zap.String("customer_id", customer.ID))
		return nil, nil
	}
	return user, err
}

package repository

import (
	"context"
	"fmt"
	"time"

	"realtorvoice/internal/crm"
	"realtorvoice/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// providerColumns maps each CRM to its connected flag on users
var providerColumns = map[crm.ProviderID]string{
	crm.WiseAgent:    "wise_agent_connected",
	crm.FollowUpBoss: "follow_up_boss_connected",
	crm.RealGeeks:    "real_geeks_connected",
}

// UserRepo persists agents and their connection and billing state
type UserRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser returns gorm.ErrRecordNotFound (wrapped) when the user does not exist
func (r *UserRepo) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// GetUserByCustomer finds the user that owns a Stripe customer id
func (r *UserRepo) GetUserByCustomer(ctx context.Context, customerID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("get user by customer: %w", err)
	}
	return &user, nil
}

// UpsertOnSignIn creates the user on first sign-in and refreshes profile
// fields on later ones. Connection and billing state are never touched.
func (r *UserRepo) UpsertOnSignIn(ctx context.Context, user *models.User) (*models.User, error) {
	user.LastLogin = time.Now()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "last_login", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return r.GetUser(ctx, user.ID)
}

func (r *UserRepo) UpdatePhoto(ctx context.Context, userID, photoURL string) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("photo_url", photoURL)
	if result.Error != nil {
		return fmt.Errorf("update photo: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("update photo: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

// ConnectedProviders implements crm.ConnectionStore
func (r *UserRepo) ConnectedProviders(ctx context.Context, userID string) ([]crm.ProviderID, error) {
	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var ids []crm.ProviderID
	if user.WiseAgentConnected {
		ids = append(ids, crm.WiseAgent)
	}
	if user.FollowUpBossConnected {
		ids = append(ids, crm.FollowUpBoss)
	}
	if user.RealGeeksConnected {
		ids = append(ids, crm.RealGeeks)
	}
	return ids, nil
}

// SetConnected implements crm.ConnectionStore
func (r *UserRepo) SetConnected(ctx context.Context, userID string, provider crm.ProviderID, connected bool) error {
	column, ok := providerColumns[provider]
	if !ok {
		return fmt.Errorf("%w: %s", crm.ErrUnknownProvider, provider)
	}
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update(column, connected).Error
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	return nil
}

// UpdateBilling applies the non-empty fields of update
func (r *UserRepo) UpdateBilling(ctx context.Context, userID string, update models.BillingUpdate) error {
	fields := map[string]interface{}{}
	if update.CustomerID != "" {
		fields["stripe_customer_id"] = update.CustomerID
	}
	if update.SubscriptionID != "" {
		fields["subscription_id"] = update.SubscriptionID
	}
	if update.SubscriptionStatus != "" {
		fields["subscription_status"] = update.SubscriptionStatus
	}
	if update.PlanID != "" {
		fields["plan_id"] = update.PlanID
	}
	if len(fields) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(fields).Error; err != nil {
		return fmt.Errorf("update billing: %w", err)
	}
	return nil
}

// RecordPayment stores an invoice outcome once per invoice id
func (r *UserRepo) RecordPayment(ctx context.Context, payment *models.Payment) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "invoice_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "amount_cents", "currency"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Neq{Column: clause.Column{Table: "payments", Name: "status"}, Value: "succeeded"},
		}},
	}).Create(payment).Error
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	return nil
}

// ListPayments returns a user's payment history, newest first
func (r *UserRepo) ListPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

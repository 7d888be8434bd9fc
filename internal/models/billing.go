package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Payment records an invoice outcome reported by the payment processor
type Payment struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      string    `gorm:"size:128;not null;index" json:"user_id"`
	InvoiceID   string    `gorm:"size:64;not null;uniqueIndex" json:"invoice_id"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Currency    string    `gorm:"size:8;not null" json:"currency"`
	Status      string    `gorm:"size:16;not null" json:"status"` // succeeded or failed
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// BeforeCreate hook for payments
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return nil
}

// TableName specifies the table name for the Payment model
func (Payment) TableName() string {
	return "payments"
}

// BillingUpdate carries subscription fields to change on a user. Empty fields are left alone.
type BillingUpdate struct {
	CustomerID         string
	SubscriptionID     string
	SubscriptionStatus string
	PlanID             string
}

// CheckoutRequest selects a subscription plan
type CheckoutRequest struct {
	Plan string `json:"plan" binding:"required,oneof=monthly annual"`
}

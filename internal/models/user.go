package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscription states mirrored from the payment processor
const (
	SubscriptionNone     = "none"
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// User represents an agent using the assistant
type User struct {
	ID                    string     `gorm:"primaryKey;size:128" json:"id"` // Google subject
	Email                 string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	DisplayName           string     `gorm:"size:255" json:"display_name"`
	PhotoURL              string     `gorm:"size:512" json:"photo_url"`
	WiseAgentConnected    bool       `gorm:"not null;default:false" json:"wise_agent_connected"`
	FollowUpBossConnected bool       `gorm:"not null;default:false" json:"follow_up_boss_connected"`
	RealGeeksConnected    bool       `gorm:"not null;default:false" json:"real_geeks_connected"`
	StripeCustomerID      string     `gorm:"size:64;index" json:"-"`
	SubscriptionID        string     `gorm:"size:64" json:"-"`
	SubscriptionStatus    string     `gorm:"size:20;not null;default:'none'" json:"subscription_status"`
	PlanID                string     `gorm:"size:64" json:"plan_id"`
	RulesSeededAt         *time.Time `json:"-"` // set once the default reminder rules were created
	LastLogin             time.Time  `gorm:"not null" json:"last_login"`
	CreatedAt             time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"not null" json:"updated_at"`
}

// BeforeCreate hook is called before creating a new user
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	if u.LastLogin.IsZero() {
		u.LastLogin = now
	}
	if u.SubscriptionStatus == "" {
		u.SubscriptionStatus = SubscriptionNone
	}
	return nil
}

// BeforeSave hook is called before saving the user
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// HasActiveSubscription reports whether billing currently allows premium features
func (u *User) HasActiveSubscription() bool {
	return u.SubscriptionStatus == SubscriptionActive || u.SubscriptionStatus == SubscriptionTrialing
}

// GoogleSignInRequest carries the ID token issued by Google Sign-In
type GoogleSignInRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

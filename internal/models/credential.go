package models

import (
	"time"

	"gorm.io/gorm"
)

// RefreshBuffer is how long before expiry an access token is treated as expired
const RefreshBuffer = 5 * time.Minute

// CredentialRecord stores one user's OAuth token pair for one CRM provider.
// Token fields hold cipher output only.
type CredentialRecord struct {
	ID                    uint      `gorm:"primaryKey" json:"-"`
	UserID                string    `gorm:"size:128;not null;uniqueIndex:idx_credential_user_provider" json:"user_id"`
	Provider              string    `gorm:"size:32;not null;uniqueIndex:idx_credential_user_provider" json:"provider"`
	EncryptedAccessToken  string    `gorm:"type:text;not null" json:"-"`
	EncryptedRefreshToken string    `gorm:"type:text" json:"-"`
	ExpiresAt             int64     `gorm:"not null" json:"expires_at"` // epoch millis
	TokenType             string    `gorm:"size:32" json:"token_type"`
	Scope                 string    `gorm:"size:512" json:"scope,omitempty"`
	CreatedAt             time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time `gorm:"not null" json:"updated_at"`
}

// BeforeCreate hook for credentials
func (r *CredentialRecord) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}

// TableName specifies the table name for the CredentialRecord model
func (CredentialRecord) TableName() string {
	return "credentials"
}

// Expiry returns ExpiresAt as a time value
func (r *CredentialRecord) Expiry() time.Time {
	return time.UnixMilli(r.ExpiresAt)
}

// NeedsRefresh checks if the access token is expired or inside the refresh buffer
func (r *CredentialRecord) NeedsRefresh(now time.Time) bool {
	// A zero expiry means the provider never told us, so always refresh
	if r.ExpiresAt == 0 {
		return true
	}
	return !now.Before(r.Expiry().Add(-RefreshBuffer))
}

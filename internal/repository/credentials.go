package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"realtorvoice/internal/crm"
	"realtorvoice/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CredentialRepo stores encrypted CRM tokens, one row per (user, provider)
type CredentialRepo struct {
	db *gorm.DB
}

func NewCredentialRepo(db *gorm.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Get returns nil, nil when the user has not connected the provider
func (r *CredentialRepo) Get(ctx context.Context, userID string, provider crm.ProviderID) (*models.CredentialRecord, error) {
	var record models.CredentialRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, string(provider)).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &record, nil
}

// Save updates an existing record by id or upserts on (user_id, provider).
// Updating a row that was deleted in the meantime returns crm.ErrNotConnected
// rather than recreating it.
func (r *CredentialRepo) Save(ctx context.Context, record *models.CredentialRecord) error {
	db := r.db.WithContext(ctx)
	if record.ID != 0 {
		result := db.Model(&models.CredentialRecord{}).Where("id = ?", record.ID).Updates(map[string]interface{}{
			"encrypted_access_token":  record.EncryptedAccessToken,
			"encrypted_refresh_token": record.EncryptedRefreshToken,
			"expires_at":              record.ExpiresAt,
			"token_type":              record.TokenType,
			"scope":                   record.Scope,
			"updated_at":              time.Now(),
		})
		if result.Error != nil {
			return fmt.Errorf("save credential: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return crm.ErrNotConnected
		}
		return nil
	}

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"encrypted_access_token", "encrypted_refresh_token", "expires_at", "token_type", "scope", "updated_at",
		}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func (r *CredentialRepo) Delete(ctx context.Context, userID string, provider crm.ProviderID) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, string(provider)).
		Delete(&models.CredentialRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

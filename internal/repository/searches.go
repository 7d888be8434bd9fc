package repository

import (
	"context"
	"fmt"

	"realtorvoice/internal/models"

	"gorm.io/gorm"
)

// SearchRepo stores saved MLS searches
type SearchRepo struct {
	db *gorm.DB
}

func NewSearchRepo(db *gorm.DB) *SearchRepo {
	return &SearchRepo{db: db}
}

func (r *SearchRepo) CreateSearch(ctx context.Context, search *models.SavedSearch) error {
	if err := r.db.WithContext(ctx).Create(search).Error; err != nil {
		return fmt.Errorf("create search: %w", err)
	}
	return nil
}

func (r *SearchRepo) ListSearches(ctx context.Context, userID string) ([]models.SavedSearch, error) {
	var searches []models.SavedSearch
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&searches).Error; err != nil {
		return nil, fmt.Errorf("list searches: %w", err)
	}
	return searches, nil
}

func (r *SearchRepo) DeleteSearch(ctx context.Context, userID, id string) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.SavedSearch{})
	if result.Error != nil {
		return false, fmt.Errorf("delete search: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

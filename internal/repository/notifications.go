package repository

import (
	"context"
	"fmt"
	"time"

	"realtorvoice/internal/models"

	"gorm.io/gorm"
)

// NotificationRepo stores the in-app feed and the outbound email queue
type NotificationRepo struct {
	db *gorm.DB
}

func NewNotificationRepo(db *gorm.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListNotifications returns the newest notifications first
func (r *NotificationRepo) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if result.Error != nil {
		return false, fmt.Errorf("mark notification read: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *NotificationRepo) Enqueue(ctx context.Context, email *models.OutboundEmail) error {
	if err := r.db.WithContext(ctx).Create(email).Error; err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

// Queued returns emails waiting to be sent, oldest first
func (r *NotificationRepo) Queued(ctx context.Context, limit int) ([]models.OutboundEmail, error) {
	var emails []models.OutboundEmail
	err := r.db.WithContext(ctx).
		Where("status = ?", models.EmailQueued).
		Order("created_at ASC").
		Limit(limit).
		Find(&emails).Error
	if err != nil {
		return nil, fmt.Errorf("query queued emails: %w", err)
	}
	return emails, nil
}

// UpdateEmail records a delivery attempt
func (r *NotificationRepo) UpdateEmail(ctx context.Context, email *models.OutboundEmail) error {
	fields := map[string]interface{}{
		"status":     email.Status,
		"attempts":   email.Attempts,
		"last_error": email.LastError,
	}
	if email.SentAt != nil {
		fields["sent_at"] = *email.SentAt
	}
	if err := r.db.WithContext(ctx).Model(&models.OutboundEmail{}).Where("id = ?", email.ID).Updates(fields).Error; err != nil {
		return fmt.Errorf("update email: %w", err)
	}
	return nil
}

// PurgeSent removes delivered emails older than cutoff
func (r *NotificationRepo) PurgeSent(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND sent_at < ?", models.EmailSent, cutoff).
		Delete(&models.OutboundEmail{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge sent emails: %w", result.Error)
	}
	return result.RowsAffected, nil
}

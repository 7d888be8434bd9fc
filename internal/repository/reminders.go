package repository

import (
	"context"
	"fmt"
	"time"

	"realtorvoice/internal/models"

	"gorm.io/gorm"
)

// ReminderRepo persists reminders and the rules that generate them
type ReminderRepo struct {
	db *gorm.DB
}

func NewReminderRepo(db *gorm.DB) *ReminderRepo {
	return &ReminderRepo{db: db}
}

func (r *ReminderRepo) CreateReminder(ctx context.Context, reminder *models.Reminder) error {
	if err := r.db.WithContext(ctx).Create(reminder).Error; err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

func (r *ReminderRepo) GetReminder(ctx context.Context, userID, id string) (*models.Reminder, error) {
	var reminder models.Reminder
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&reminder).Error; err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return &reminder, nil
}

// ListReminders returns a user's reminders by schedule, optionally filtered by status
func (r *ReminderRepo) ListReminders(ctx context.Context, userID string, status models.ReminderStatus) ([]models.Reminder, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var reminders []models.Reminder
	if err := query.Order("scheduled_for ASC").Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

// CancelReminder moves a pending reminder to cancelled. It reports false when
// the reminder was not pending.
func (r *ReminderRepo) CancelReminder(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Reminder{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, models.ReminderPending).
		Updates(map[string]interface{}{
			"status":       models.ReminderCancelled,
			"cancelled_at": at,
		})
	if result.Error != nil {
		return false, fmt.Errorf("cancel reminder: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DuePending is the sweep query: pending reminders due by now, oldest first
func (r *ReminderRepo) DuePending(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	var reminders []models.Reminder
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", models.ReminderPending, now).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&reminders).Error
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	return reminders, nil
}

// ApplyOutcomes writes a sweep's results in one transaction. Rows that left
// pending since the sweep read them are not touched.
func (r *ReminderRepo) ApplyOutcomes(ctx context.Context, outcomes []models.ReminderOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, o := range outcomes {
			fields := map[string]interface{}{
				"status":     o.Status,
				"last_error": o.LastError,
			}
			if o.Status == models.ReminderSent {
				fields["sent_at"] = o.At
			}
			err := tx.Model(&models.Reminder{}).
				Where("id = ? AND status = ?", o.ID, models.ReminderPending).
				Updates(fields).Error
			if err != nil {
				return fmt.Errorf("update reminder %s: %w", o.ID, err)
			}
		}
		return nil
	})
}

func (r *ReminderRepo) ListRules(ctx context.Context, userID string) ([]models.ReminderRule, error) {
	var rules []models.ReminderRule
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// CreateRules inserts rules in one statement
func (r *ReminderRepo) CreateRules(ctx context.Context, rules []models.ReminderRule) error {
	if len(rules) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&rules).Error; err != nil {
		return fmt.Errorf("create rules: %w", err)
	}
	return nil
}

// SeedRules creates the starter rules the first time a user is seen. The
// marker on the user row and the rules are written in one transaction, so a
// user who later deletes every rule is not seeded again.
func (r *ReminderRepo) SeedRules(ctx context.Context, userID string, rules []models.ReminderRule) (bool, error) {
	seeded := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).
			Where("id = ? AND rules_seeded_at IS NULL", userID).
			Update("rules_seeded_at", time.Now())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if len(rules) > 0 {
			if err := tx.Create(&rules).Error; err != nil {
				return err
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("seed rules: %w", err)
	}
	return seeded, nil
}

func (r *ReminderRepo) GetRule(ctx context.Context, userID, id string) (*models.ReminderRule, error) {
	var rule models.ReminderRule
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&rule).Error; err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return &rule, nil
}

func (r *ReminderRepo) SaveRule(ctx context.Context, rule *models.ReminderRule) error {
	if err := r.db.WithContext(ctx).Save(rule).Error; err != nil {
		return fmt.Errorf("save rule: %w", err)
	}
	return nil
}

func (r *ReminderRepo) DeleteRule(ctx context.Context, userID, id string) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.ReminderRule{})
	if result.Error != nil {
		return false, fmt.Errorf("delete rule: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// RulesForEvent returns a user's enabled rules listening for event
func (r *ReminderRepo) RulesForEvent(ctx context.Context, userID, event string) ([]models.ReminderRule, error) {
	var rules []models.ReminderRule
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND trigger_event = ? AND enabled = ?", userID, event, true).
		Order("created_at ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("rules for event: %w", err)
	}
	return rules, nil
}

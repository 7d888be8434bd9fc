package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"realtorvoice/internal/crm"
	"realtorvoice/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

const (
	defaultBatchSize   = 100
	dispatchWorkers    = 10
	maxEmailAttempts   = 3
	notificationTypeRM = "reminder"
)

// SweepStore is the reminder persistence the worker needs
type SweepStore interface {
	DuePending(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error)
	ApplyOutcomes(ctx context.Context, outcomes []models.ReminderOutcome) error
}

// NotificationStore persists the in-app feed
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// EmailQueue persists outbound emails
type EmailQueue interface {
	Enqueue(ctx context.Context, email *models.OutboundEmail) error
	Queued(ctx context.Context, limit int) ([]models.OutboundEmail, error)
	UpdateEmail(ctx context.Context, email *models.OutboundEmail) error
}

// UserLookup loads the agent a reminder belongs to
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// TaskSink mirrors a reminder into the agent's CRM
type TaskSink interface {
	CreateTask(ctx context.Context, userID string, in models.TaskInput) error
}

// FacadeTaskSink creates reminder tasks through the unified CRM facade
type FacadeTaskSink struct {
	Facade *crm.Facade
}

func (s FacadeTaskSink) CreateTask(ctx context.Context, userID string, in models.TaskInput) error {
	u, err := s.Facade.ForUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.HasProviders() {
		return nil
	}
	_, errs := u.CreateTask(ctx, in)
	if len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, string(e.Provider)+": "+e.Error)
		}
		return fmt.Errorf("crm task failed: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// ReminderWorker delivers due reminders and drains the email queue
type ReminderWorker struct {
	reminders     SweepStore
	notifications NotificationStore
	emails        EmailQueue
	users         UserLookup
	tasks         TaskSink
	mailer        Mailer
	interval      time.Duration
	batchSize     int
	logger        *zap.Logger
	now           func() time.Time
}

func NewReminderWorker(reminders SweepStore, notifications NotificationStore, emails EmailQueue, users UserLookup,
	tasks TaskSink, mailer Mailer, interval time.Duration, batchSize int, logger *zap.Logger) *ReminderWorker {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReminderWorker{
		reminders:     reminders,
		notifications: notifications,
		emails:        emails,
		users:         users,
		tasks:         tasks,
		mailer:        mailer,
		interval:      interval,
		batchSize:     batchSize,
		logger:        logger,
		now:           time.Now,
	}
}

// Start runs the worker in the background until ctx is cancelled
func (w *ReminderWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *ReminderWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.tick(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// tick runs one sweep and one email drain, logging failures
func (w *ReminderWorker) tick(ctx context.Context) {
	result, err := w.Sweep(ctx)
	if err != nil {
		w.logger.Error("reminder sweep failed", zap.Error(err))
	} else if result.Processed > 0 {
		w.logger.Info("reminder sweep finished",
			zap.Int("processed", result.Processed), zap.Int("sent", result.Sent), zap.Int("failed", result.Failed))
	}

	if _, err := w.DrainEmails(ctx); err != nil {
		w.logger.Error("email drain failed", zap.Error(err))
	}
}

// RunOnce performs one sweep and drain, for schedulers that invoke the binary
func (w *ReminderWorker) RunOnce(ctx context.Context) (SweepResult, int, error) {
	result, err := w.Sweep(ctx)
	if err != nil {
		return result, 0, err
	}
	sent, err := w.DrainEmails(ctx)
	return result, sent, err
}

// Sweep dispatches every due pending reminder and records the results in one batch
func (w *ReminderWorker) Sweep(ctx context.Context) (SweepResult, error) {
	now := w.now()
	due, err := w.reminders.DuePending(ctx, now, w.batchSize)
	if err != nil {
		return SweepResult{}, err
	}
	if len(due) == 0 {
		return SweepResult{}, nil
	}

	outcomes := make([]models.ReminderOutcome, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dispatchWorkers)
	for i := range due {
		g.Go(func() error {
			outcomes[i] = w.dispatch(gctx, due[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := w.reminders.ApplyOutcomes(ctx, outcomes); err != nil {
		return SweepResult{}, fmt.Errorf("record sweep results: %w", err)
	}

	result := SweepResult{Processed: len(outcomes)}
	for _, o := range outcomes {
		if o.Status == models.ReminderSent {
			result.Sent++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

// dispatch delivers one reminder. The notification and the email enqueue must
// succeed; the CRM task is best effort.
func (w *ReminderWorker) dispatch(ctx context.Context, reminder models.Reminder) models.ReminderOutcome {
	log := w.logger.With(zap.String("reminder_id", reminder.ID), zap.String("user_id", reminder.UserID))
	failed := func(step string, err error) models.ReminderOutcome {
		log.Warn("reminder dispatch failed", zap.String("step", step), zap.Error(err))
		return models.ReminderOutcome{
			ID:        reminder.ID,
			Status:    models.ReminderFailed,
			LastError: fmt.Sprintf("%s: %v", step, err),
			At:        w.now(),
		}
	}

	user, err := w.users.GetUser(ctx, reminder.UserID)
	if err != nil {
		return failed("load user", err)
	}

	if err := w.notifications.CreateNotification(ctx, reminderNotification(reminder)); err != nil {
		return failed("notification", err)
	}

	if user.Email != "" {
		if err := w.emails.Enqueue(ctx, reminderEmail(user, reminder)); err != nil {
			return failed("email", err)
		}
	}

	if w.tasks != nil && reminder.ContactID != "" && reminder.Provider != "" {
		due := reminder.ScheduledFor
		task := models.TaskInput{
			Provider:    reminder.Provider,
			ContactID:   reminder.ContactID,
			Title:       reminderTitle(reminder),
			Description: reminder.Message,
			DueDate:     &due,
		}
		if err := w.tasks.CreateTask(ctx, reminder.UserID, task); err != nil {
			log.Warn("crm task for reminder failed", zap.Error(err))
		}
	}

	return models.ReminderOutcome{ID: reminder.ID, Status: models.ReminderSent, At: w.now()}
}

func reminderNotification(reminder models.Reminder) *models.Notification {
	data, _ := json.Marshal(map[string]string{
		"reminder_type":    string(reminder.Type),
		"contact_id":       reminder.ContactID,
		"contact_name":     reminder.ContactName,
		"property_id":      reminder.PropertyID,
		"property_address": reminder.PropertyAddress,
	})
	return &models.Notification{
		UserID:     reminder.UserID,
		Type:       notificationTypeRM,
		Title:      reminderTitle(reminder),
		Message:    reminder.Message,
		ReminderID: reminder.ID,
		Data:       datatypes.JSON(data),
	}
}

var reminderTitles = map[models.ReminderType]string{
	models.ReminderFollowUp:         "Follow up",
	models.ReminderShowing:          "Showing",
	models.ReminderOpenHouse:        "Open house",
	models.ReminderClosing:          "Closing",
	models.ReminderContractDeadline: "Contract deadline",
	models.ReminderBirthday:         "Birthday",
	models.ReminderAnniversary:      "Home anniversary",
	models.ReminderCustom:           "Reminder",
}

func reminderTitle(reminder models.Reminder) string {
	title, ok := reminderTitles[reminder.Type]
	if !ok {
		title = "Reminder"
	}
	switch {
	case reminder.ContactName != "":
		return title + ": " + reminder.ContactName
	case reminder.PropertyAddress != "":
		return title + ": " + reminder.PropertyAddress
	}
	return title
}

// DrainEmails sends queued emails. An email that fails maxEmailAttempts times is marked failed.
func (w *ReminderWorker) DrainEmails(ctx context.Context) (int, error) {
	queued, err := w.emails.Queued(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range queued {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		email := &queued[i]
		email.Attempts++

		if err := w.mailer.Send(ctx, *email); err != nil {
			email.LastError = err.Error()
			if email.Attempts >= maxEmailAttempts {
				email.Status = models.EmailFailed
			}
			w.logger.Warn("email delivery failed",
				zap.String("email_id", email.ID), zap.Int("attempts", email.Attempts), zap.Error(err))
		} else {
			at := w.now()
			email.Status = models.EmailSent
			email.SentAt = &at
			email.LastError = ""
			sent++
		}

		if err := w.emails.UpdateEmail(ctx, email); err != nil {
			return sent, fmt.Errorf("record email attempt: %w", err)
		}
	}
	return sent, nil
}

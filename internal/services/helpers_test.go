package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"realtorvoice/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memoryReminders implements ReminderStore, RuleStore and SweepStore
type memoryReminders struct {
	mu        sync.Mutex
	reminders map[string]*models.Reminder
	rules     map[string]*models.ReminderRule
	seeded    map[string]bool
	applied   [][]models.ReminderOutcome
	applyErr  error
}

func newMemoryReminders() *memoryReminders {
	return &memoryReminders{
		reminders: map[string]*models.Reminder{},
		rules:     map[string]*models.ReminderRule{},
		seeded:    map[string]bool{},
	}
}

func (m *memoryReminders) CreateReminder(_ context.Context, r *models.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = models.ReminderPending
	}
	cp := *r
	m.reminders[r.ID] = &cp
	return nil
}

func (m *memoryReminders) GetReminder(_ context.Context, userID, id string) (*models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryReminders) ListReminders(_ context.Context, userID string, status models.ReminderStatus) ([]models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reminder
	for _, r := range m.reminders {
		if r.UserID == userID && (status == "" || r.Status == status) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}

func (m *memoryReminders) CancelReminder(_ context.Context, userID, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.UserID != userID || r.Status != models.ReminderPending {
		return false, nil
	}
	r.Status = models.ReminderCancelled
	r.CancelledAt = &at
	return true, nil
}

func (m *memoryReminders) DuePending(_ context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Reminder
	for _, r := range m.reminders {
		if r.Status == models.ReminderPending && !r.ScheduledFor.After(now) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryReminders) ApplyOutcomes(_ context.Context, outcomes []models.ReminderOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return m.applyErr
	}
	m.applied = append(m.applied, outcomes)
	for _, o := range outcomes {
		r, ok := m.reminders[o.ID]
		if !ok || r.Status != models.ReminderPending {
			continue
		}
		r.Status = o.Status
		r.LastError = o.LastError
		if o.Status == models.ReminderSent {
			at := o.At
			r.SentAt = &at
		}
	}
	return nil
}

func (m *memoryReminders) status(id string) models.ReminderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reminders[id].Status
}

func (m *memoryReminders) ListRules(_ context.Context, userID string) ([]models.ReminderRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReminderRule
	for _, r := range m.rules {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryReminders) CreateRules(_ context.Context, rules []models.ReminderRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range rules {
		if rules[i].ID == "" {
			rules[i].ID = uuid.NewString()
		}
		cp := rules[i]
		m.rules[cp.ID] = &cp
	}
	return nil
}

func (m *memoryReminders) SeedRules(ctx context.Context, userID string, rules []models.ReminderRule) (bool, error) {
	m.mu.Lock()
	if m.seeded[userID] {
		m.mu.Unlock()
		return false, nil
	}
	m.seeded[userID] = true
	m.mu.Unlock()
	return true, m.CreateRules(ctx, rules)
}

func (m *memoryReminders) GetRule(_ context.Context, userID, id string) (*models.ReminderRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryReminders) SaveRule(_ context.Context, rule *models.ReminderRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rule
	m.rules[rule.ID] = &cp
	return nil
}

func (m *memoryReminders) DeleteRule(_ context.Context, userID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.UserID != userID {
		return false, nil
	}
	delete(m.rules, id)
	return true, nil
}

func (m *memoryReminders) RulesForEvent(_ context.Context, userID, event string) ([]models.ReminderRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReminderRule
	for _, r := range m.rules {
		if r.UserID == userID && r.TriggerEvent == event && r.Enabled {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// memoryInbox implements NotificationStore, NotificationFeed and EmailQueue
type memoryInbox struct {
	mu            sync.Mutex
	notifications []models.Notification
	emails        []models.OutboundEmail
	notifyErr     error
	enqueueErr    error
}

func (m *memoryInbox) CreateNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notifyErr != nil {
		return m.notifyErr
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *memoryInbox) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryInbox) MarkRead(_ context.Context, userID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id && m.notifications[i].UserID == userID {
			m.notifications[i].Read = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryInbox) Enqueue(_ context.Context, e *models.OutboundEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = models.EmailQueued
	}
	m.emails = append(m.emails, *e)
	return nil
}

func (m *memoryInbox) Queued(_ context.Context, limit int) ([]models.OutboundEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OutboundEmail
	for _, e := range m.emails {
		if e.Status == models.EmailQueued {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryInbox) UpdateEmail(_ context.Context, e *models.OutboundEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.emails {
		if m.emails[i].ID == e.ID {
			m.emails[i] = *e
			return nil
		}
	}
	return errors.New("email not found")
}

func (m *memoryInbox) email(id string) models.OutboundEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.emails {
		if e.ID == id {
			return e
		}
	}
	return models.OutboundEmail{}
}

// memoryUsers implements UserLookup, AccountStore and BillingStore
type memoryUsers struct {
	mu       sync.Mutex
	users    map[string]*models.User
	payments map[string]models.Payment
	updates  []models.BillingUpdate
}

func newMemoryUsers(users ...models.User) *memoryUsers {
	m := &memoryUsers{users: map[string]*models.User{}, payments: map[string]models.Payment{}}
	for i := range users {
		u := users[i]
		m.users[u.ID] = &u
	}
	return m
}

func (m *memoryUsers) GetUser(_ context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) GetUserByCustomer(_ context.Context, customerID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryUsers) UpsertOnSignIn(_ context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[user.ID]
	if !ok {
		cp := *user
		cp.SubscriptionStatus = models.SubscriptionNone
		m.users[user.ID] = &cp
		existing = &cp
	} else {
		existing.Email = user.Email
		existing.DisplayName = user.DisplayName
	}
	existing.LastLogin = time.Now()
	cp := *existing
	return &cp, nil
}

func (m *memoryUsers) UpdatePhoto(_ context.Context, userID, photoURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.PhotoURL = photoURL
	return nil
}

func (m *memoryUsers) UpdateBilling(_ context.Context, userID string, update models.BillingUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.updates = append(m.updates, update)
	if update.CustomerID != "" {
		u.StripeCustomerID = update.CustomerID
	}
	if update.SubscriptionID != "" {
		u.SubscriptionID = update.SubscriptionID
	}
	if update.SubscriptionStatus != "" {
		u.SubscriptionStatus = update.SubscriptionStatus
	}
	if update.PlanID != "" {
		u.PlanID = update.PlanID
	}
	return nil
}

func (m *memoryUsers) RecordPayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.payments[p.InvoiceID]; ok && prev.Status == "succeeded" {
		return nil
	}
	m.payments[p.InvoiceID] = *p
	return nil
}

func (m *memoryUsers) ListPayments(_ context.Context, userID string) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReminderType is the closed set of reminder categories
type ReminderType string

const (
	ReminderFollowUp         ReminderType = "follow_up"
	ReminderShowing          ReminderType = "showing"
	ReminderOpenHouse        ReminderType = "open_house"
	ReminderClosing          ReminderType = "closing"
	ReminderContractDeadline ReminderType = "contract_deadline"
	ReminderBirthday         ReminderType = "birthday"
	ReminderAnniversary      ReminderType = "anniversary"
	ReminderCustom           ReminderType = "custom"
)

// Valid reports whether t is one of the known reminder types
func (t ReminderType) Valid() bool {
	switch t {
	case ReminderFollowUp, ReminderShowing, ReminderOpenHouse, ReminderClosing,
		ReminderContractDeadline, ReminderBirthday, ReminderAnniversary, ReminderCustom:
		return true
	}
	return false
}

// ReminderStatus is the delivery state of a reminder.
// pending is the only state with outgoing transitions.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderFailed    ReminderStatus = "failed"
	ReminderCancelled ReminderStatus = "cancelled"
)

// Reminder is a scheduled nudge for an agent
type Reminder struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	UserID          string         `gorm:"size:128;not null;index" json:"user_id"`
	Type            ReminderType   `gorm:"size:32;not null" json:"type"`
	RuleID          string         `gorm:"size:36" json:"rule_id,omitempty"`
	ContactID       string         `gorm:"size:64" json:"contact_id,omitempty"`
	ContactName     string         `gorm:"size:255" json:"contact_name,omitempty"`
	ContactEmail    string         `gorm:"size:255" json:"contact_email,omitempty"`
	Provider        string         `gorm:"size:32" json:"provider,omitempty"` // CRM that owns ContactID
	PropertyID      string         `gorm:"size:64" json:"property_id,omitempty"`
	PropertyAddress string         `gorm:"size:512" json:"property_address,omitempty"`
	Message         string         `gorm:"type:text;not null" json:"message"`
	ScheduledFor    time.Time      `gorm:"not null;index:idx_reminder_due" json:"scheduled_for"`
	Status          ReminderStatus `gorm:"size:16;not null;index:idx_reminder_due" json:"status"`
	LastError       string         `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	SentAt          *time.Time     `json:"sent_at,omitempty"`
	CancelledAt     *time.Time     `json:"cancelled_at,omitempty"`
}

// BeforeCreate hook for reminders
func (r *Reminder) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = ReminderPending
	}
	return nil
}

// TableName specifies the table name for the Reminder model
func (Reminder) TableName() string {
	return "reminders"
}

// IsTerminal reports whether the reminder can no longer change state
func (r *Reminder) IsTerminal() bool {
	return r.Status != ReminderPending
}

// ReminderOutcome is the result of dispatching one reminder in a sweep
type ReminderOutcome struct {
	ID        string
	Status    ReminderStatus
	LastError string
	At        time.Time
}

// ReminderRule produces reminders when a trigger event happens
type ReminderRule struct {
	ID              string       `gorm:"primaryKey;size:36" json:"id"`
	UserID          string       `gorm:"size:128;not null;index" json:"user_id"`
	Name            string       `gorm:"size:255;not null" json:"name"`
	Type            ReminderType `gorm:"size:32;not null" json:"type"`
	TriggerEvent    string       `gorm:"size:64;not null" json:"trigger_event"`
	DelayDays       int          `gorm:"not null" json:"delay_days"` // negative means before the event
	MessageTemplate string       `gorm:"type:text;not null" json:"message_template"`
	Enabled         bool         `gorm:"not null" json:"enabled"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

// BeforeCreate hook for reminder rules
func (r *ReminderRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}

// TableName specifies the table name for the ReminderRule model
func (ReminderRule) TableName() string {
	return "reminder_rules"
}

// CreateReminderRequest represents the data needed to schedule a reminder directly
type CreateReminderRequest struct {
	Type            ReminderType `json:"type" binding:"required"`
	Message         string       `json:"message" binding:"required,max=2000"`
	ScheduledFor    time.Time    `json:"scheduled_for" binding:"required"`
	ContactID       string       `json:"contact_id"`
	ContactName     string       `json:"contact_name"`
	ContactEmail    string       `json:"contact_email"`
	Provider        string       `json:"provider"`
	PropertyID      string       `json:"property_id"`
	PropertyAddress string       `json:"property_address"`
}

// ReminderRuleRequest represents the editable fields of a rule
type ReminderRuleRequest struct {
	Name            string       `json:"name" binding:"required"`
	Type            ReminderType `json:"type" binding:"required"`
	TriggerEvent    string       `json:"trigger_event" binding:"required"`
	DelayDays       int          `json:"delay_days"`
	MessageTemplate string       `json:"message_template" binding:"required"`
	Enabled         *bool        `json:"enabled"`
}

// TriggerEventRequest describes something that happened in an agent's pipeline
type TriggerEventRequest struct {
	Event           string            `json:"event" binding:"required"`
	Date            time.Time         `json:"date" binding:"required"`
	ContactID       string            `json:"contact_id"`
	ContactName     string            `json:"contact_name"`
	ContactEmail    string            `json:"contact_email"`
	Provider        string            `json:"provider"`
	PropertyID      string            `json:"property_id"`
	PropertyAddress string            `json:"property_address"`
	Vars            map[string]string `json:"vars"`
}

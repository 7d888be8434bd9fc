package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification is an in-app message shown in the agent's feed
type Notification struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	UserID     string         `gorm:"size:128;not null;index" json:"user_id"`
	Type       string         `gorm:"size:32;not null" json:"type"`
	Title      string         `gorm:"size:255;not null" json:"title"`
	Message    string         `gorm:"type:text;not null" json:"message"`
	ReminderID string         `gorm:"size:36;index" json:"reminder_id,omitempty"`
	Data       datatypes.JSON `gorm:"type:jsonb" json:"data,omitempty"`
	Read       bool           `gorm:"not null;default:false" json:"read"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}

// BeforeCreate hook for notifications
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	return nil
}

// TableName specifies the table name for the Notification model
func (Notification) TableName() string {
	return "notifications"
}

// Outbound email states
const (
	EmailQueued = "queued"
	EmailSent   = "sent"
	EmailFailed = "failed"
)

// OutboundEmail is one entry in the email queue
type OutboundEmail struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	UserID     string     `gorm:"size:128;not null;index" json:"user_id"`
	ReminderID string     `gorm:"size:36;index" json:"reminder_id,omitempty"`
	ToEmail    string     `gorm:"size:255;not null" json:"to_email"`
	ToName     string     `gorm:"size:255" json:"to_name"`
	Subject    string     `gorm:"size:255;not null" json:"subject"`
	Body       string     `gorm:"type:text;not null" json:"body"`
	Status     string     `gorm:"size:16;not null;index" json:"status"`
	Attempts   int        `gorm:"not null;default:0" json:"attempts"`
	LastError  string     `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;index" json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

// BeforeCreate hook for queued emails
func (e *OutboundEmail) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Status == "" {
		e.Status = EmailQueued
	}
	return nil
}

// TableName specifies the table name for the OutboundEmail model
func (OutboundEmail) TableName() string {
	return "outbound_emails"
}

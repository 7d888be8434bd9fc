package models

import "time"

// Contact is a CRM contact or lead normalized across providers
type Contact struct {
	ID        string   `json:"id"` // provider-side identifier
	Provider  string   `json:"provider"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Stage     string   `json:"stage,omitempty"`
	Source    string   `json:"source,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// FullName joins first and last name
func (c Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// ContactInput is the provider-neutral payload for creating a contact
type ContactInput struct {
	FirstName string   `json:"first_name" binding:"required"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email" binding:"omitempty,email"`
	Phone     string   `json:"phone"`
	Source    string   `json:"source"`
	Tags      []string `json:"tags"`
	Notes     string   `json:"notes"`
}

// Task is a CRM task or activity normalized across providers
type Task struct {
	ID          string     `json:"id"`
	Provider    string     `json:"provider"`
	ContactID   string     `json:"contact_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Type        string     `json:"type,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
}

// TaskInput is the provider-neutral payload for creating a task.
// When Provider is set only that CRM receives the task.
type TaskInput struct {
	Provider    string     `json:"provider"`
	ContactID   string     `json:"contact_id"`
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	DueDate     *time.Time `json:"due_date"`
}

// TaskFilter narrows task listings
type TaskFilter struct {
	ContactID   string `form:"contact_id"`
	IncludeDone bool   `form:"include_done"`
	Limit       int    `form:"limit"`
}

// NoteInput is the provider-neutral payload for attaching a note to a contact
type NoteInput struct {
	Provider  string `json:"provider"`
	ContactID string `json:"contact_id" binding:"required"`
	Subject   string `json:"subject"`
	Body      string `json:"body" binding:"required"`
}

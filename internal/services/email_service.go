package services

import (
	"context"
	"fmt"
	"html"
	"strings"

	"realtorvoice/internal/config"
	"realtorvoice/internal/models"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer delivers one queued email
type Mailer interface {
	Send(ctx context.Context, email models.OutboundEmail) error
}

// EmailService sends queued emails through SendGrid
type EmailService struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewEmailService(cfg config.Config) *EmailService {
	return &EmailService{
		client:    sendgrid.NewSendClient(cfg.SendGridAPIKey),
		fromEmail: cfg.SendGridFromEmail,
		fromName:  cfg.SendGridFromName,
	}
}

// Send delivers email as plain text plus a minimal HTML rendering
func (s *EmailService) Send(ctx context.Context, email models.OutboundEmail) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(email.ToName, email.ToEmail)
	message := mail.NewSingleEmail(from, email.Subject, to, email.Body, htmlBody(email.Body))

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("failed to send email to %s: %d %s", email.ToEmail, response.StatusCode, strings.TrimSpace(response.Body))
	}
	return nil
}

func htmlBody(text string) string {
	paragraphs := strings.Split(strings.TrimSpace(text), "\n\n")
	var b strings.Builder
	for _, p := range paragraphs {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}

// reminderEmail builds the queued email for a due reminder
func reminderEmail(user *models.User, reminder models.Reminder) *models.OutboundEmail {
	return &models.OutboundEmail{
		UserID:     user.ID,
		ReminderID: reminder.ID,
		ToEmail:    user.Email,
		ToName:     user.DisplayName,
		Subject:    reminderTitle(reminder),
		Body:       reminder.Message,
	}
}

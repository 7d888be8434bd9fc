package services

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"realtorvoice/internal/models"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

var (
	ErrReminderNotFound    = errors.New("reminder not found")
	ErrRuleNotFound        = errors.New("reminder rule not found")
	ErrInvalidTransition   = errors.New("reminder is no longer pending")
	ErrInvalidReminderType = errors.New("unknown reminder type")
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// ReminderStore persists reminders
type ReminderStore interface {
	CreateReminder(ctx context.Context, reminder *models.Reminder) error
	GetReminder(ctx context.Context, userID, id string) (*models.Reminder, error)
	ListReminders(ctx context.Context, userID string, status models.ReminderStatus) ([]models.Reminder, error)
	CancelReminder(ctx context.Context, userID, id string, at time.Time) (bool, error)
}

// RuleStore persists reminder rules
type RuleStore interface {
	ListRules(ctx context.Context, userID string) ([]models.ReminderRule, error)
	CreateRules(ctx context.Context, rules []models.ReminderRule) error
	// SeedRules inserts rules only if userID has never been seeded and
	// reports whether it did
	SeedRules(ctx context.Context, userID string, rules []models.ReminderRule) (bool, error)
	GetRule(ctx context.Context, userID, id string) (*models.ReminderRule, error)
	SaveRule(ctx context.Context, rule *models.ReminderRule) error
	DeleteRule(ctx context.Context, userID, id string) (bool, error)
	RulesForEvent(ctx context.Context, userID, event string) ([]models.ReminderRule, error)
}

type ruleDefinition struct {
	Name            string              `yaml:"name"`
	Type            models.ReminderType `yaml:"type"`
	TriggerEvent    string              `yaml:"trigger_event"`
	DelayDays       int                 `yaml:"delay_days"`
	MessageTemplate string              `yaml:"message_template"`
}

// ParseDefaultRules reads rule definitions from YAML
func ParseDefaultRules(data []byte) ([]models.ReminderRule, error) {
	var defs []ruleDefinition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse default rules: %w", err)
	}

	rules := make([]models.ReminderRule, 0, len(defs))
	for _, d := range defs {
		if !d.Type.Valid() {
			return nil, fmt.Errorf("default rule %q: %w: %s", d.Name, ErrInvalidReminderType, d.Type)
		}
		if d.TriggerEvent == "" || d.MessageTemplate == "" {
			return nil, fmt.Errorf("default rule %q needs a trigger_event and message_template", d.Name)
		}
		rules = append(rules, models.ReminderRule{
			Name:            d.Name,
			Type:            d.Type,
			TriggerEvent:    d.TriggerEvent,
			DelayDays:       d.DelayDays,
			MessageTemplate: d.MessageTemplate,
			Enabled:         true,
		})
	}
	return rules, nil
}

// DefaultRules returns the embedded starter rule set
func DefaultRules() ([]models.ReminderRule, error) {
	return ParseDefaultRules(defaultRulesYAML)
}

// ReminderService manages rules and reminders for agents
type ReminderService struct {
	reminders ReminderStore
	rules     RuleStore
	defaults  []models.ReminderRule
	logger    *zap.Logger
	now       func() time.Time
}

func NewReminderService(reminders ReminderStore, rules RuleStore, defaults []models.ReminderRule, logger *zap.Logger) *ReminderService {
	return &ReminderService{
		reminders: reminders,
		rules:     rules,
		defaults:  defaults,
		logger:    logger,
		now:       time.Now,
	}
}

// ListRules returns the user's rules. The defaults are seeded once per user;
// an agent who deletes them all keeps an empty list.
func (s *ReminderService) ListRules(ctx context.Context, userID string) ([]models.ReminderRule, error) {
	rules, err := s.rules.ListRules(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 || len(s.defaults) == 0 {
		return rules, nil
	}

	seeded := make([]models.ReminderRule, len(s.defaults))
	for i, d := range s.defaults {
		d.ID = ""
		d.UserID = userID
		d.CreatedAt = time.Time{}
		seeded[i] = d
	}
	ok, err := s.rules.SeedRules(ctx, userID, seeded)
	if err != nil {
		return nil, fmt.Errorf("seed default rules: %w", err)
	}
	if !ok {
		// Seeded earlier, or by a concurrent request
		return s.rules.ListRules(ctx, userID)
	}
	s.logger.Info("seeded default reminder rules", zap.String("user_id", userID), zap.Int("count", len(seeded)))
	return seeded, nil
}

func (s *ReminderService) CreateRule(ctx context.Context, userID string, req models.ReminderRuleRequest) (*models.ReminderRule, error) {
	if !req.Type.Valid() {
		return nil, ErrInvalidReminderType
	}
	// Seed first so a user's first custom rule does not suppress the defaults
	if _, err := s.ListRules(ctx, userID); err != nil {
		return nil, err
	}

	created := []models.ReminderRule{{UserID: userID, Enabled: true}}
	applyRuleRequest(&created[0], req)
	if err := s.rules.CreateRules(ctx, created); err != nil {
		return nil, err
	}
	return &created[0], nil
}

func (s *ReminderService) UpdateRule(ctx context.Context, userID, id string, req models.ReminderRuleRequest) (*models.ReminderRule, error) {
	if !req.Type.Valid() {
		return nil, ErrInvalidReminderType
	}
	rule, err := s.getRule(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	applyRuleRequest(rule, req)
	if err := s.rules.SaveRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *ReminderService) SetRuleEnabled(ctx context.Context, userID, id string, enabled bool) (*models.ReminderRule, error) {
	rule, err := s.getRule(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	rule.Enabled = enabled
	if err := s.rules.SaveRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *ReminderService) DeleteRule(ctx context.Context, userID, id string) error {
	deleted, err := s.rules.DeleteRule(ctx, userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrRuleNotFound
	}
	return nil
}

func (s *ReminderService) getRule(ctx context.Context, userID, id string) (*models.ReminderRule, error) {
	rule, err := s.rules.GetRule(ctx, userID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	return rule, err
}

func applyRuleRequest(rule *models.ReminderRule, req models.ReminderRuleRequest) {
	rule.Name = req.Name
	rule.Type = req.Type
	rule.TriggerEvent = req.TriggerEvent
	rule.DelayDays = req.DelayDays
	rule.MessageTemplate = req.MessageTemplate
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
}

// TriggerEvent creates a pending reminder for every enabled rule listening
// for the event. Rules whose computed time is already past are skipped.
func (s *ReminderService) TriggerEvent(ctx context.Context, userID string, event models.TriggerEventRequest) ([]models.Reminder, error) {
	if _, err := s.ListRules(ctx, userID); err != nil {
		return nil, err
	}
	rules, err := s.rules.RulesForEvent(ctx, userID, event.Event)
	if err != nil {
		return nil, err
	}

	now := s.now()
	vars := eventVars(event)
	created := make([]models.Reminder, 0, len(rules))
	for _, rule := range rules {
		scheduledFor := event.Date.AddDate(0, 0, rule.DelayDays)
		if scheduledFor.Before(now) {
			s.logger.Debug("skipping rule scheduled in the past",
				zap.String("rule_id", rule.ID), zap.Time("scheduled_for", scheduledFor))
			continue
		}

		reminder := models.Reminder{
			UserID:          userID,
			Type:            rule.Type,
			RuleID:          rule.ID,
			ContactID:       event.ContactID,
			ContactName:     event.ContactName,
			ContactEmail:    event.ContactEmail,
			Provider:        event.Provider,
			PropertyID:      event.PropertyID,
			PropertyAddress: event.PropertyAddress,
			Message:         RenderTemplate(rule.MessageTemplate, vars),
			ScheduledFor:    scheduledFor,
			Status:          models.ReminderPending,
		}
		if err := s.reminders.CreateReminder(ctx, &reminder); err != nil {
			return created, fmt.Errorf("create reminder for rule %s: %w", rule.ID, err)
		}
		created = append(created, reminder)
	}
	return created, nil
}

func eventVars(event models.TriggerEventRequest) map[string]string {
	vars := make(map[string]string, len(event.Vars)+4)
	for k, v := range event.Vars {
		vars[k] = v
	}
	if event.ContactName != "" {
		vars["contactName"] = event.ContactName
		first, _, _ := strings.Cut(strings.TrimSpace(event.ContactName), " ")
		vars["contactFirstName"] = first
	}
	if event.PropertyAddress != "" {
		vars["propertyAddress"] = event.PropertyAddress
	}
	if !event.Date.IsZero() {
		vars["date"] = event.Date.Format("Mon Jan 2")
	}
	return vars
}

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// RenderTemplate replaces {name} placeholders from vars. Unknown placeholders
// are left as written.
func RenderTemplate(template string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		if v, ok := vars[match[1:len(match)-1]]; ok {
			return v
		}
		return match
	})
}

// CreateReminder schedules a reminder directly
func (s *ReminderService) CreateReminder(ctx context.Context, userID string, req models.CreateReminderRequest) (*models.Reminder, error) {
	if !req.Type.Valid() {
		return nil, ErrInvalidReminderType
	}
	reminder := &models.Reminder{
		UserID:          userID,
		Type:            req.Type,
		ContactID:       req.ContactID,
		ContactName:     req.ContactName,
		ContactEmail:    req.ContactEmail,
		Provider:        req.Provider,
		PropertyID:      req.PropertyID,
		PropertyAddress: req.PropertyAddress,
		Message:         req.Message,
		ScheduledFor:    req.ScheduledFor,
		Status:          models.ReminderPending,
	}
	if err := s.reminders.CreateReminder(ctx, reminder); err != nil {
		return nil, err
	}
	return reminder, nil
}

func (s *ReminderService) GetReminder(ctx context.Context, userID, id string) (*models.Reminder, error) {
	reminder, err := s.reminders.GetReminder(ctx, userID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReminderNotFound
	}
	return reminder, err
}

func (s *ReminderService) ListReminders(ctx context.Context, userID string, status models.ReminderStatus) ([]models.Reminder, error) {
	return s.reminders.ListReminders(ctx, userID, status)
}

// CancelReminder moves a pending reminder to cancelled
func (s *ReminderService) CancelReminder(ctx context.Context, userID, id string) (*models.Reminder, error) {
	reminder, err := s.GetReminder(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if reminder.IsTerminal() {
		return nil, ErrInvalidTransition
	}

	at := s.now()
	cancelled, err := s.reminders.CancelReminder(ctx, userID, id, at)
	if err != nil {
		return nil, err
	}
	// A sweep finished it between our read and the update
	if !cancelled {
		return nil, ErrInvalidTransition
	}

	reminder.Status = models.ReminderCancelled
	reminder.CancelledAt = &at
	return reminder, nil
}

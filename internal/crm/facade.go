package crm

import (
	"context"
	"fmt"
	"strings"

	"realtorvoice/internal/models"

	"go.uber.org/zap"
)

// Facade presents one contact/task API over every CRM a user has connected
type Facade struct {
	registry *Registry
	users    ConnectionStore
	logger   *zap.Logger
}

// NewFacade creates the unified CRM facade
func NewFacade(registry *Registry, users ConnectionStore, logger *zap.Logger) *Facade {
	return &Facade{registry: registry, users: users, logger: logger}
}

// ProviderError records a provider that failed during a fan-out
type ProviderError struct {
	Provider ProviderID `json:"provider"`
	Code     string     `json:"code"`
	Error    string     `json:"error"`
}

func newProviderError(id ProviderID, err error) ProviderError {
	return ProviderError{Provider: id, Code: ErrorCode(err), Error: err.Error()}
}

// UserCRM is the facade bound to one user's connected providers
type UserCRM struct {
	userID    string
	providers []Provider
	logger    *zap.Logger
}

// ForUser loads the providers flagged connected for userID. Providers that are
// connected but not configured in this process are skipped.
func (f *Facade) ForUser(ctx context.Context, userID string) (*UserCRM, error) {
	connected, err := f.users.ConnectedProviders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connected providers: %w", err)
	}

	u := &UserCRM{userID: userID, logger: f.logger.With(zap.String("user_id", userID))}
	for _, id := range connected {
		integration, ok := f.registry.Get(id)
		if !ok {
			u.logger.Warn("connected provider not configured", zap.String("provider", string(id)))
			continue
		}
		u.providers = append(u.providers, integration.Provider)
	}
	return u, nil
}

// Providers returns the ids this user can reach
func (u *UserCRM) Providers() []ProviderID {
	ids := make([]ProviderID, 0, len(u.providers))
	for _, p := range u.providers {
		ids = append(ids, p.ID())
	}
	return ids
}

// Has reports whether provider is among the user's reachable CRMs
func (u *UserCRM) Has(provider ProviderID) bool {
	for _, p := range u.providers {
		if p.ID() == provider {
			return true
		}
	}
	return false
}

// HasProviders reports whether any CRM is reachable for the user
func (u *UserCRM) HasProviders() bool {
	return len(u.providers) > 0
}

// targets returns the single named provider when one is given, else all of them
func (u *UserCRM) targets(provider string) ([]Provider, error) {
	if provider == "" {
		return u.providers, nil
	}
	for _, p := range u.providers {
		if string(p.ID()) == provider {
			return []Provider{p}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotConnected, provider)
}

func (u *UserCRM) fail(op string, p Provider, err error, errs []ProviderError) []ProviderError {
	u.logger.Warn("crm operation failed", zap.String("op", op), zap.String("provider", string(p.ID())), zap.Error(err))
	return append(errs, newProviderError(p.ID(), err))
}

// CreateContact creates the contact in every connected CRM
func (u *UserCRM) CreateContact(ctx context.Context, in models.ContactInput) ([]models.Contact, []ProviderError) {
	var (
		created []models.Contact
		errs    []ProviderError
	)
	for _, p := range u.providers {
		contact, err := p.CreateContact(ctx, u.userID, in)
		if err != nil {
			errs = u.fail("create_contact", p, err, errs)
			// A contact may exist even when a follow-up write failed
			if contact == nil {
				continue
			}
		}
		created = append(created, *contact)
	}
	return created, errs
}

// SearchContacts queries every connected CRM and merges the results
func (u *UserCRM) SearchContacts(ctx context.Context, query string, limit int) ([]models.Contact, []ProviderError) {
	var (
		all  []models.Contact
		errs []ProviderError
	)
	for _, p := range u.providers {
		contacts, err := p.SearchContacts(ctx, u.userID, query, limit)
		if err != nil {
			errs = u.fail("search_contacts", p, err, errs)
			continue
		}
		all = append(all, contacts...)
	}
	return MergeContacts(all), errs
}

// CreateTask creates the task in every connected CRM, or only in in.Provider when set
func (u *UserCRM) CreateTask(ctx context.Context, in models.TaskInput) ([]models.Task, []ProviderError) {
	targets, err := u.targets(in.Provider)
	if err != nil {
		return nil, []ProviderError{newProviderError(ProviderID(in.Provider), err)}
	}

	var (
		created []models.Task
		errs    []ProviderError
	)
	for _, p := range targets {
		task, err := p.CreateTask(ctx, u.userID, in)
		if err != nil {
			errs = u.fail("create_task", p, err, errs)
			continue
		}
		created = append(created, *task)
	}
	return created, errs
}

// GetTasks lists tasks from every connected CRM
func (u *UserCRM) GetTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, []ProviderError) {
	var (
		tasks []models.Task
		errs  []ProviderError
	)
	for _, p := range u.providers {
		found, err := p.GetTasks(ctx, u.userID, filter)
		if err != nil {
			errs = u.fail("get_tasks", p, err, errs)
			continue
		}
		tasks = append(tasks, found...)
	}
	return tasks, errs
}

// AddNote attaches a note in in.Provider, or in every connected CRM when unset
func (u *UserCRM) AddNote(ctx context.Context, in models.NoteInput) []ProviderError {
	targets, err := u.targets(in.Provider)
	if err != nil {
		return []ProviderError{newProviderError(ProviderID(in.Provider), err)}
	}

	var errs []ProviderError
	for _, p := range targets {
		if err := p.AddNote(ctx, u.userID, in); err != nil {
			errs = u.fail("add_note", p, err, errs)
		}
	}
	return errs
}

// MergeContacts removes duplicates keyed by email, falling back to first and
// last name. The first occurrence wins; contacts with no key are all kept.
func MergeContacts(contacts []models.Contact) []models.Contact {
	seen := make(map[string]struct{}, len(contacts))
	merged := make([]models.Contact, 0, len(contacts))
	for _, c := range contacts {
		key := contactKey(c)
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		merged = append(merged, c)
	}
	return merged
}

func contactKey(c models.Contact) string {
	if email := strings.ToLower(strings.TrimSpace(c.Email)); email != "" {
		return "email:" + email
	}
	first := strings.ToLower(strings.TrimSpace(c.FirstName))
	last := strings.ToLower(strings.TrimSpace(c.LastName))
	if first == "" && last == "" {
		return ""
	}
	return "name:" + first + "|" + last
}

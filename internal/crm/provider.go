package crm

import (
	"context"
	"fmt"
	"sort"

	"realtorvoice/internal/models"
)

// ProviderID identifies a CRM platform
type ProviderID string

const (
	WiseAgent    ProviderID = "wise_agent"
	FollowUpBoss ProviderID = "follow_up_boss"
	RealGeeks    ProviderID = "real_geeks"
)

// AllProviders lists every supported CRM in display order
var AllProviders = []ProviderID{WiseAgent, FollowUpBoss, RealGeeks}

// Valid reports whether p is a supported provider id
func (p ProviderID) Valid() bool {
	for _, known := range AllProviders {
		if p == known {
			return true
		}
	}
	return false
}

// Provider is the capability set every CRM integration implements
type Provider interface {
	ID() ProviderID
	CreateContact(ctx context.Context, userID string, in models.ContactInput) (*models.Contact, error)
	SearchContacts(ctx context.Context, userID, query string, limit int) ([]models.Contact, error)
	CreateTask(ctx context.Context, userID string, in models.TaskInput) (*models.Task, error)
	GetTasks(ctx context.Context, userID string, filter models.TaskFilter) ([]models.Task, error)
	AddNote(ctx context.Context, userID string, in models.NoteInput) error
}

var clientFactories = map[ProviderID]func(baseURL string, guard *TokenGuard) Provider{
	WiseAgent:    func(baseURL string, guard *TokenGuard) Provider { return NewWiseAgentClient(baseURL, guard) },
	FollowUpBoss: func(baseURL string, guard *TokenGuard) Provider { return NewFollowUpBossClient(baseURL, guard) },
	RealGeeks:    func(baseURL string, guard *TokenGuard) Provider { return NewRealGeeksClient(baseURL, guard) },
}

// NewProvider builds the resource client for id
func NewProvider(id ProviderID, baseURL string, guard *TokenGuard) (Provider, error) {
	factory, ok := clientFactories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return factory(baseURL, guard), nil
}

// Integration bundles a provider's resource client with its token guard
type Integration struct {
	Provider Provider
	Guard    *TokenGuard
}

// Registry maps provider ids to configured integrations
type Registry struct {
	integrations map[ProviderID]Integration
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{integrations: make(map[ProviderID]Integration)}
}

// Register adds or replaces an integration
func (r *Registry) Register(provider Provider, guard *TokenGuard) {
	r.integrations[provider.ID()] = Integration{Provider: provider, Guard: guard}
}

// Get returns the integration for id
func (r *Registry) Get(id ProviderID) (Integration, bool) {
	in, ok := r.integrations[id]
	return in, ok
}

// IDs returns the registered provider ids in a stable order
func (r *Registry) IDs() []ProviderID {
	ids := make([]ProviderID, 0, len(r.integrations))
	for id := range r.integrations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return order(ids[i]) < order(ids[j]) })
	return ids
}

func order(id ProviderID) int {
	for i, known := range AllProviders {
		if id == known {
			return i
		}
	}
	return len(AllProviders)
}

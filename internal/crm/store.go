package crm

import (
	"context"

	"realtorvoice/internal/models"
)

// CredentialStore persists encrypted token records per (user, provider).
// Get returns nil, nil when no record exists. Save on a record with an ID
// returns ErrNotConnected once that record has been deleted.
type CredentialStore interface {
	Get(ctx context.Context, userID string, provider ProviderID) (*models.CredentialRecord, error)
	Save(ctx context.Context, record *models.CredentialRecord) error
	Delete(ctx context.Context, userID string, provider ProviderID) error
}

// ConnectionStore tracks which providers a user has connected
type ConnectionStore interface {
	ConnectedProviders(ctx context.Context, userID string) ([]ProviderID, error)
	SetConnected(ctx context.Context, userID string, provider ProviderID, connected bool) error
}

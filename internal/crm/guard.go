package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"realtorvoice/internal/models"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// defaultTokenLifetime is assumed when a token response carries no expires_in
const defaultTokenLifetime = time.Hour

// TokenCipher protects token material at rest
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

// TokenGuard owns the OAuth token lifecycle for one provider: authorize URL,
// code exchange, encrypted persistence and refresh-on-demand.
type TokenGuard struct {
	provider ProviderID
	oauth    *oauth2.Config
	store    CredentialStore
	users    ConnectionStore
	cipher   TokenCipher
	locker   RefreshLocker
	client   *http.Client
	logger   *zap.Logger
	now      func() time.Time
}

// GuardOption customizes a TokenGuard
type GuardOption func(*TokenGuard)

// WithHTTPClient sets the client used for token endpoint and API calls
func WithHTTPClient(client *http.Client) GuardOption {
	return func(g *TokenGuard) { g.client = client }
}

// WithLocker replaces the in-process refresh lock
func WithLocker(locker RefreshLocker) GuardOption {
	return func(g *TokenGuard) { g.locker = locker }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) GuardOption {
	return func(g *TokenGuard) { g.now = now }
}

// NewTokenGuard creates the token lifecycle manager for one provider
func NewTokenGuard(provider ProviderID, oauthCfg *oauth2.Config, store CredentialStore, users ConnectionStore,
	cipher TokenCipher, logger *zap.Logger, opts ...GuardOption) *TokenGuard {
	g := &TokenGuard{
		provider: provider,
		oauth:    oauthCfg,
		store:    store,
		users:    users,
		cipher:   cipher,
		locker:   NewLocalLocker(),
		logger:   logger.With(zap.String("provider", string(provider))),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Provider returns the provider this guard manages
func (g *TokenGuard) Provider() ProviderID {
	return g.provider
}

// AuthCodeURL builds the browser redirect to the provider's consent screen
func (g *TokenGuard) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for tokens and stores them
func (g *TokenGuard) Exchange(ctx context.Context, userID, code string) error {
	token, err := g.oauth.Exchange(g.oauthContext(ctx), code)
	if err != nil {
		return g.upstream(err)
	}

	existing, err := g.store.Get(ctx, userID, g.provider)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	record, err := g.buildRecord(userID, token, existing)
	if err != nil {
		return err
	}
	if err := g.store.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	if err := g.users.SetConnected(ctx, userID, g.provider, true); err != nil {
		return fmt.Errorf("failed to flag provider connected: %w", err)
	}

	g.logger.Info("crm connected", zap.String("user_id", userID))
	return nil
}

// GetValidAccessToken returns a usable access token, refreshing it first when
// it expires within models.RefreshBuffer.
func (g *TokenGuard) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	record, err := g.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if !record.NeedsRefresh(g.now()) {
		return g.decryptAccess(record)
	}
	return g.refresh(ctx, userID)
}

func (g *TokenGuard) refresh(ctx context.Context, userID string) (string, error) {
	unlock, err := g.locker.Lock(ctx, lockKey(userID, g.provider))
	if err != nil {
		return "", fmt.Errorf("failed to acquire refresh lock: %w", err)
	}
	defer unlock()

	// Another caller may have refreshed while we waited for the lock
	record, err := g.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if !record.NeedsRefresh(g.now()) {
		return g.decryptAccess(record)
	}

	refreshToken, err := g.cipher.Decrypt(record.EncryptedRefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	if refreshToken == "" {
		return "", ErrReauthRequired
	}

	token, err := g.oauth.TokenSource(g.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		g.logger.Warn("token refresh failed", zap.String("user_id", userID), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	updated, err := g.buildRecord(userID, token, record)
	if err != nil {
		return "", err
	}
	if err := g.store.Save(ctx, updated); err != nil {
		return "", fmt.Errorf("failed to save refreshed credentials: %w", err)
	}

	g.logger.Debug("token refreshed", zap.String("user_id", userID), zap.Time("expires_at", updated.Expiry()))
	return token.AccessToken, nil
}

// HTTPClient returns a client that sends a valid bearer token for userID
func (g *TokenGuard) HTTPClient(ctx context.Context, userID string) (*http.Client, error) {
	accessToken, err := g.GetValidAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return oauth2.NewClient(g.oauthContext(ctx), source), nil
}

// Disconnect removes the stored credentials and clears the user's connected flag
func (g *TokenGuard) Disconnect(ctx context.Context, userID string) error {
	if err := g.store.Delete(ctx, userID, g.provider); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	if err := g.users.SetConnected(ctx, userID, g.provider, false); err != nil {
		return fmt.Errorf("failed to clear connected flag: %w", err)
	}
	g.logger.Info("crm disconnected", zap.String("user_id", userID))
	return nil
}

// ConnectionStatus describes a user's link to one provider
type ConnectionStatus struct {
	Provider  ProviderID `json:"provider"`
	Connected bool       `json:"connected"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Status reports whether userID has credentials for this provider
func (g *TokenGuard) Status(ctx context.Context, userID string) (ConnectionStatus, error) {
	status := ConnectionStatus{Provider: g.provider}
	record, err := g.store.Get(ctx, userID, g.provider)
	if err != nil {
		return status, fmt.Errorf("failed to load credentials: %w", err)
	}
	if record != nil {
		expiry := record.Expiry()
		status.Connected = true
		status.ExpiresAt = &expiry
	}
	return status, nil
}

func (g *TokenGuard) load(ctx context.Context, userID string) (*models.CredentialRecord, error) {
	record, err := g.store.Get(ctx, userID, g.provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if record == nil {
		return nil, ErrNotConnected
	}
	return record, nil
}

func (g *TokenGuard) decryptAccess(record *models.CredentialRecord) (string, error) {
	accessToken, err := g.cipher.Decrypt(record.EncryptedAccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt access token: %w", err)
	}
	return accessToken, nil
}

// buildRecord encrypts token into a record, keeping identity fields of existing
func (g *TokenGuard) buildRecord(userID string, token *oauth2.Token, existing *models.CredentialRecord) (*models.CredentialRecord, error) {
	encryptedAccess, err := g.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encryptedRefresh, err := g.cipher.Encrypt(token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = g.now().Add(defaultTokenLifetime)
	}

	record := &models.CredentialRecord{
		UserID:                userID,
		Provider:              string(g.provider),
		EncryptedAccessToken:  encryptedAccess,
		EncryptedRefreshToken: encryptedRefresh,
		ExpiresAt:             expiry.UnixMilli(),
		TokenType:             token.Type(),
	}
	if scope, ok := token.Extra("scope").(string); ok {
		record.Scope = scope
	}
	if existing != nil {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	}
	return record, nil
}

func (g *TokenGuard) oauthContext(ctx context.Context) context.Context {
	if g.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, g.client)
}

func (g *TokenGuard) upstream(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return &UpstreamError{
			Provider:   g.provider,
			StatusCode: retrieveErr.Response.StatusCode,
			Body:       string(retrieveErr.Body),
		}
	}
	return fmt.Errorf("%s code exchange failed: %w", g.provider, err)
}

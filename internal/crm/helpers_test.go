package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"realtorvoice/internal/auth"
	"realtorvoice/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type memoryCredentialStore struct {
	mu      sync.Mutex
	records map[string]models.CredentialRecord
	nextID  uint
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{records: make(map[string]models.CredentialRecord)}
}

func (m *memoryCredentialStore) Get(ctx context.Context, userID string, provider ProviderID) (*models.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[userID+"/"+string(provider)]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *memoryCredentialStore) Save(ctx context.Context, record *models.CredentialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := record.UserID + "/" + record.Provider
	if record.ID == 0 {
		m.nextID++
		record.ID = m.nextID
	} else if _, ok := m.records[key]; !ok {
		return ErrNotConnected
	}
	m.records[key] = *record
	return nil
}

func (m *memoryCredentialStore) Delete(ctx context.Context, userID string, provider ProviderID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, userID+"/"+string(provider))
	return nil
}

type memoryConnections struct {
	mu        sync.Mutex
	connected map[string]map[ProviderID]bool
}

func newMemoryConnections() *memoryConnections {
	return &memoryConnections{connected: make(map[string]map[ProviderID]bool)}
}

func (m *memoryConnections) ConnectedProviders(ctx context.Context, userID string) ([]ProviderID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ProviderID
	for _, id := range AllProviders {
		if m.connected[userID][id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memoryConnections) SetConnected(ctx context.Context, userID string, provider ProviderID, connected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected[userID] == nil {
		m.connected[userID] = make(map[ProviderID]bool)
	}
	m.connected[userID][provider] = connected
	return nil
}

// tokenServer fakes a provider token endpoint and counts grants
type tokenServer struct {
	*httptest.Server
	refreshCalls  atomic.Int32
	exchangeCalls atomic.Int32
	failRefresh   atomic.Bool
	omitRefresh   atomic.Bool
	delay         time.Duration
	onRefresh     func()
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if ts.delay > 0 {
			time.Sleep(ts.delay)
		}
		w.Header().Set("Content-Type", "application/json")

		switch r.PostForm.Get("grant_type") {
		case "refresh_token":
			n := ts.refreshCalls.Add(1)
			if ts.onRefresh != nil {
				ts.onRefresh()
			}
			if ts.failRefresh.Load() {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			resp := map[string]interface{}{
				"access_token": "refreshed-access-" + itoa(n),
				"expires_in":   3600,
				"token_type":   "Bearer",
			}
			if !ts.omitRefresh.Load() {
				resp["refresh_token"] = "refreshed-refresh-" + itoa(n)
			}
			_ = json.NewEncoder(w).Encode(resp)
		case "authorization_code":
			ts.exchangeCalls.Add(1)
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"bad code"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "exchanged-access",
				"refresh_token": "exchanged-refresh",
				"expires_in":    7200,
				"token_type":    "bearer",
				"scope":         "contacts tasks",
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func itoa(n int32) string {
	b, _ := json.Marshal(n)
	return string(b)
}

type guardFixture struct {
	guard       *TokenGuard
	store       *memoryCredentialStore
	connections *memoryConnections
	cipher      *auth.Cipher
	tokens      *tokenServer
}

func newGuardFixture(t *testing.T, provider ProviderID) *guardFixture {
	t.Helper()
	cipher, err := auth.NewCipherWithIterations("guard-test-secret", 1000)
	require.NoError(t, err)

	tokens := newTokenServer(t)
	store := newMemoryCredentialStore()
	connections := newMemoryConnections()
	cfg := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://app.example/crm/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   tokens.URL + "/authorize",
			TokenURL:  tokens.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	guard := NewTokenGuard(provider, cfg, store, connections, cipher, zap.NewNop())
	return &guardFixture{guard: guard, store: store, connections: connections, cipher: cipher, tokens: tokens}
}

// seed stores an encrypted credential that expires after ttl
func (f *guardFixture) seed(t *testing.T, userID, access, refresh string, ttl time.Duration) {
	t.Helper()
	encAccess, err := f.cipher.Encrypt(access)
	require.NoError(t, err)
	encRefresh, err := f.cipher.Encrypt(refresh)
	require.NoError(t, err)

	require.NoError(t, f.store.Save(context.Background(), &models.CredentialRecord{
		UserID:                userID,
		Provider:              string(f.guard.Provider()),
		EncryptedAccessToken:  encAccess,
		EncryptedRefreshToken: encRefresh,
		ExpiresAt:             time.Now().Add(ttl).UnixMilli(),
		TokenType:             "Bearer",
	}))
	require.NoError(t, f.connections.SetConnected(context.Background(), userID, f.guard.Provider(), true))
}

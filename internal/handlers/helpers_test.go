package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"realtorvoice/internal/auth"
	"realtorvoice/internal/crm"
	"realtorvoice/internal/models"
	"realtorvoice/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, raw string) (*auth.UserInfo, error) {
	if raw != "good-id-token" {
		return nil, errors.New("bad token")
	}
	return &auth.UserInfo{Sub: "agent-1", Email: "agent@example.com", EmailVerified: true, Name: "Sam Agent"}, nil
}

type fakeAccounts struct {
	users    map[string]*models.User
	photoErr error
	marked   []string
}

func (f *fakeAccounts) SignIn(_ context.Context, info *auth.UserInfo) (*models.User, error) {
	u := &models.User{ID: info.Sub, Email: info.Email, DisplayName: info.Name, SubscriptionStatus: models.SubscriptionNone}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeAccounts) GetUser(_ context.Context, userID string) (*models.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, services.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeAccounts) UpdatePhoto(_ context.Context, userID string, file io.Reader, filename string, _ int64) (string, error) {
	if f.photoErr != nil {
		return "", f.photoErr
	}
	_, _ = io.ReadAll(file)
	return "https://cdn.example/" + userID + "/" + filename, nil
}

func (f *fakeAccounts) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	return []models.Notification{{ID: "n1", UserID: userID, Title: "Follow up", Read: !unreadOnly}}, nil
}

func (f *fakeAccounts) MarkNotificationRead(_ context.Context, _ string, id string) error {
	if id != "n1" {
		return services.ErrNotificationNotFound
	}
	f.marked = append(f.marked, id)
	return nil
}

// fakeReminders keeps reminders in a map and answers rule calls with canned values
type fakeReminders struct {
	mu        sync.Mutex
	reminders map[string]*models.Reminder
	lastEvent models.TriggerEventRequest
}

func (f *fakeReminders) ListRules(_ context.Context, userID string) ([]models.ReminderRule, error) {
	return []models.ReminderRule{{ID: "rule-1", UserID: userID, Name: "Showing prep", Enabled: true}}, nil
}

func (f *fakeReminders) CreateRule(_ context.Context, userID string, req models.ReminderRuleRequest) (*models.ReminderRule, error) {
	if !req.Type.Valid() {
		return nil, services.ErrInvalidReminderType
	}
	return &models.ReminderRule{ID: "rule-2", UserID: userID, Name: req.Name, Type: req.Type, Enabled: true}, nil
}

func (f *fakeReminders) UpdateRule(_ context.Context, userID, id string, req models.ReminderRuleRequest) (*models.ReminderRule, error) {
	if id != "rule-1" {
		return nil, services.ErrRuleNotFound
	}
	return &models.ReminderRule{ID: id, UserID: userID, Name: req.Name, Type: req.Type}, nil
}

func (f *fakeReminders) SetRuleEnabled(_ context.Context, userID, id string, enabled bool) (*models.ReminderRule, error) {
	if id != "rule-1" {
		return nil, services.ErrRuleNotFound
	}
	return &models.ReminderRule{ID: id, UserID: userID, Enabled: enabled}, nil
}

func (f *fakeReminders) DeleteRule(_ context.Context, _ string, id string) error {
	if id != "rule-1" {
		return services.ErrRuleNotFound
	}
	return nil
}

func (f *fakeReminders) TriggerEvent(_ context.Context, userID string, event models.TriggerEventRequest) ([]models.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastEvent = event
	return []models.Reminder{{ID: "from-event", UserID: userID, Status: models.ReminderPending, ScheduledFor: event.Date}}, nil
}

func (f *fakeReminders) CreateReminder(_ context.Context, userID string, req models.CreateReminderRequest) (*models.Reminder, error) {
	if !req.Type.Valid() {
		return nil, services.ErrInvalidReminderType
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &models.Reminder{ID: "new", UserID: userID, Type: req.Type, Message: req.Message, ScheduledFor: req.ScheduledFor, Status: models.ReminderPending}
	f.reminders[r.ID] = r
	return r, nil
}

func (f *fakeReminders) GetReminder(_ context.Context, userID, id string) (*models.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok || r.UserID != userID {
		return nil, services.ErrReminderNotFound
	}
	return r, nil
}

func (f *fakeReminders) ListReminders(_ context.Context, userID string, status models.ReminderStatus) ([]models.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Reminder
	for _, r := range f.reminders {
		if r.UserID == userID && (status == "" || r.Status == status) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeReminders) CancelReminder(ctx context.Context, userID, id string) (*models.Reminder, error) {
	r, err := f.GetReminder(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Status != models.ReminderPending {
		return nil, services.ErrInvalidTransition
	}
	r.Status = models.ReminderCancelled
	return r, nil
}

type fakeProperties struct {
	searchErr error
}

func (f *fakeProperties) Search(_ context.Context, req models.PropertySearchRequest) ([]models.Property, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return []models.Property{{ID: "L1", City: req.City}}, nil
}

func (f *fakeProperties) SaveSearch(_ context.Context, userID string, req models.SaveSearchRequest) (*models.SavedSearch, error) {
	return &models.SavedSearch{ID: "s1", UserID: userID, Name: req.Name}, nil
}

func (f *fakeProperties) ListSearches(_ context.Context, userID string) ([]models.SavedSearch, error) {
	return []models.SavedSearch{{ID: "s1", UserID: userID}}, nil
}

func (f *fakeProperties) DeleteSearch(_ context.Context, _ string, id string) error {
	if id != "s1" {
		return services.ErrSearchNotFound
	}
	return nil
}

type fakeBilling struct {
	webhookErr error
	payload    []byte
	signature  string
}

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, _ string, plan string) (string, error) {
	return "https://checkout.example/" + plan, nil
}

func (f *fakeBilling) CreatePortalSession(context.Context, string) (string, error) {
	return "", services.ErrNoBillingAccount
}

func (f *fakeBilling) HandleWebhook(_ context.Context, payload []byte, signature string) error {
	f.payload = payload
	f.signature = signature
	return f.webhookErr
}

func (f *fakeBilling) ListPayments(_ context.Context, userID string) ([]models.Payment, error) {
	return []models.Payment{{ID: "p1", UserID: userID, InvoiceID: "in_1", AmountCents: 2900, Currency: "usd", Status: "succeeded"}}, nil
}

type memoryCredentials struct {
	mu      sync.Mutex
	records map[string]models.CredentialRecord
}

func (m *memoryCredentials) Get(_ context.Context, userID string, provider crm.ProviderID) (*models.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[userID+"/"+string(provider)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memoryCredentials) Save(_ context.Context, r *models.CredentialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.UserID+"/"+r.Provider] = *r
	return nil
}

func (m *memoryCredentials) Delete(_ context.Context, userID string, provider crm.ProviderID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, userID+"/"+string(provider))
	return nil
}

type memoryConnections struct {
	mu        sync.Mutex
	connected map[string]map[crm.ProviderID]bool
}

func (m *memoryConnections) ConnectedProviders(_ context.Context, userID string) ([]crm.ProviderID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []crm.ProviderID
	for _, id := range crm.AllProviders {
		if m.connected[userID][id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memoryConnections) SetConnected(_ context.Context, userID string, provider crm.ProviderID, connected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected[userID] == nil {
		m.connected[userID] = map[crm.ProviderID]bool{}
	}
	m.connected[userID][provider] = connected
	return nil
}

// stubProvider answers CRM calls from canned data
type stubProvider struct {
	id       crm.ProviderID
	contacts []models.Contact
	err      error
}

func (s *stubProvider) ID() crm.ProviderID { return s.id }

func (s *stubProvider) CreateContact(_ context.Context, _ string, in models.ContactInput) (*models.Contact, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Contact{ID: "c-" + string(s.id), Provider: string(s.id), FirstName: in.FirstName, Email: in.Email}, nil
}

func (s *stubProvider) SearchContacts(context.Context, string, string, int) ([]models.Contact, error) {
	return s.contacts, s.err
}

func (s *stubProvider) CreateTask(_ context.Context, _ string, in models.TaskInput) (*models.Task, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Task{ID: "t-" + string(s.id), Provider: string(s.id), Title: in.Title}, nil
}

func (s *stubProvider) GetTasks(context.Context, string, models.TaskFilter) ([]models.Task, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []models.Task{{ID: "t1", Provider: string(s.id), Title: "Call"}}, nil
}

func (s *stubProvider) AddNote(context.Context, string, models.NoteInput) error {
	return s.err
}

func newTokenEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access",
			"refresh_token": "refresh",
			"expires_in":    3600,
			"token_type":    "Bearer",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	router      *gin.Engine
	issuer      *auth.TokenIssuer
	accounts    *fakeAccounts
	reminders   *fakeReminders
	properties  *fakeProperties
	billing     *fakeBilling
	connections *memoryConnections
	credentials *memoryCredentials
	fub         *stubProvider
	wise        *stubProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	issuer, err := auth.NewTokenIssuer("handler-test-secret", time.Hour)
	require.NoError(t, err)
	cipher, err := auth.NewCipherWithIterations("handler-test-cipher", 1000)
	require.NoError(t, err)

	env := &testEnv{
		issuer:      issuer,
		accounts:    &fakeAccounts{users: map[string]*models.User{"agent-1": {ID: "agent-1", Email: "agent@example.com", SubscriptionStatus: models.SubscriptionActive}}},
		reminders:   &fakeReminders{reminders: map[string]*models.Reminder{}},
		properties:  &fakeProperties{},
		billing:     &fakeBilling{},
		connections: &memoryConnections{connected: map[string]map[crm.ProviderID]bool{}},
		credentials: &memoryCredentials{records: map[string]models.CredentialRecord{}},
		fub:         &stubProvider{id: crm.FollowUpBoss},
		wise:        &stubProvider{id: crm.WiseAgent},
	}

	tokens := newTokenEndpoint(t)
	registry := crm.NewRegistry()
	for _, p := range []*stubProvider{env.fub, env.wise} {
		oauthCfg := &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "https://api.example/crm/" + string(p.id) + "/callback",
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://" + string(p.id) + ".example/authorize",
				TokenURL:  tokens.URL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		guard := crm.NewTokenGuard(p.id, oauthCfg, env.credentials, env.connections, cipher, zap.NewNop())
		registry.Register(p, guard)
	}

	h := New(Deps{
		Issuer:     issuer,
		Verifier:   fakeVerifier{},
		Accounts:   env.accounts,
		Reminders:  env.reminders,
		Properties: env.properties,
		Billing:    env.billing,
		Registry:   registry,
		CRM:        crm.NewFacade(registry, env.connections, zap.NewNop()),
		AppBaseURL: "https://app.example",
		Logger:     zap.NewNop(),
	})
	env.router = gin.New()
	h.RegisterRoutes(env.router)
	return env
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := e.issuer.GenerateToken(userID, userID+"@example.com")
	require.NoError(t, err)
	return token
}

func (e *testEnv) connect(t *testing.T, userID string, ids ...crm.ProviderID) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, e.connections.SetConnected(context.Background(), userID, id, true))
	}
}

// do sends a request as userID; an empty userID sends no credentials
func (e *testEnv) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

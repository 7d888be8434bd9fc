package crm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"realtorvoice/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiServer records the last request and replies with the handler's output
type apiServer struct {
	*httptest.Server
	lastRequest *http.Request
	lastBody    []byte
}

func newAPIServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *apiServer {
	t.Helper()
	s := &apiServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.lastRequest = r
		s.lastBody = body
		assert.Equal(t, "Bearer stored-access", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func connectedGuard(t *testing.T, provider ProviderID) *TokenGuard {
	t.Helper()
	f := newGuardFixture(t, provider)
	f.seed(t, "user-1", "stored-access", "stored-refresh", time.Hour)
	return f.guard
}

func TestFollowUpBossSearchContacts(t *testing.T) {
	api := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"people":[{"id":42,"firstName":"Ann","lastName":"Lee","stage":"Lead",
			"emails":[{"value":"old@x.com"},{"value":"ann@x.com","isPrimary":true}],
			"phones":[{"value":"555-0100"}]}]}`))
	})
	client := NewFollowUpBossClient(api.URL+"/v1", connectedGuard(t, FollowUpBoss))

	contacts, err := client.SearchContacts(context.Background(), "user-1", "ann", 500)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, models.Contact{
		ID: "42", Provider: "follow_up_boss", FirstName: "Ann", LastName: "Lee",
		Email: "ann@x.com", Phone: "555-0100", Stage: "Lead",
	}, contacts[0])

	assert.Equal(t, "/v1/people", api.lastRequest.URL.Path)
	assert.Equal(t, "ann", api.lastRequest.URL.Query().Get("q"))
	assert.Equal(t, "100", api.lastRequest.URL.Query().Get("limit"))
}

func TestFollowUpBossCreateTask(t *testing.T) {
	api := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":7,"personId":42,"name":"Call Ann","type":"Follow Up","dueDateTime":"2026-03-01T15:00:00Z"}`))
	})
	client := NewFollowUpBossClient(api.URL, connectedGuard(t, FollowUpBoss))

	due := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	task, err := client.CreateTask(context.Background(), "user-1", models.TaskInput{
		ContactID: "42", Title: "Call Ann", Description: "about offer", DueDate: &due,
	})
	require.NoError(t, err)
	assert.Equal(t, "7", task.ID)
	assert.Equal(t, "42", task.ContactID)
	assert.Equal(t, "about offer", task.Description)
	require.NotNil(t, task.DueDate)
	assert.True(t, due.Equal(*task.DueDate))

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(api.lastBody, &sent))
	assert.Equal(t, http.MethodPost, api.lastRequest.Method)
	assert.EqualValues(t, 42, sent["personId"])
	assert.Equal(t, "Follow Up", sent["type"])
	assert.Equal(t, "2026-03-01", sent["dueDate"])
}

func TestFollowUpBossRejectsNonNumericPerson(t *testing.T) {
	client := NewFollowUpBossClient("http://unused", connectedGuard(t, FollowUpBoss))

	_, err := client.CreateTask(context.Background(), "user-1", models.TaskInput{ContactID: "abc", Title: "x"})
	require.Error(t, err)
}

func TestWiseAgentCreateContactPostsForm(t *testing.T) {
	api := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"ClientID":1234}]`))
	})
	client := NewWiseAgentClient(api.URL+"/http/webconnect.asp", connectedGuard(t, WiseAgent))

	contact, err := client.CreateContact(context.Background(), "user-1", models.ContactInput{
		FirstName: "Ann", LastName: "Lee", Email: "ann@x.com", Tags: []string{"buyer", "hot"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1234", contact.ID)
	assert.Equal(t, "wise_agent", contact.Provider)

	assert.Equal(t, "webcontact", api.lastRequest.URL.Query().Get("requestType"))
	assert.Equal(t, "application/x-www-form-urlencoded", api.lastRequest.Header.Get("Content-Type"))
	assert.Contains(t, string(api.lastBody), "CFirst=Ann")
	assert.Contains(t, string(api.lastBody), "Categories=buyer%3Bhot")
}

func TestWiseAgentSearchContactsNormalizes(t *testing.T) {
	api := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"ClientID":"88","FirstName":"Bo","LastName":"Ray","Email":"bo@x.com",
			"HomePhone":"555-0199","Status":"Active","Categories":"seller; ;past client"}]`))
	})
	client := NewWiseAgentClient(api.URL, connectedGuard(t, WiseAgent))

	contacts, err := client.SearchContacts(context.Background(), "user-1", "bo", 0)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "88", contacts[0].ID)
	assert.Equal(t, "555-0199", contacts[0].Phone)
	assert.Equal(t, []string{"seller", "past client"}, contacts[0].Tags)
	assert.Equal(t, "getContacts", api.lastRequest.URL.Query().Get("requestType"))
	assert.Equal(t, "25", api.lastRequest.URL.Query().Get("page_size"))
}

func TestWiseAgentGetTasksDropsCompleted(t *testing.T) {
	api := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"TaskID":1,"Subject":"Call","DueDate":"03/01/2026"},{"TaskID":2,"Subject":"Done","Completed":true}]`))
	})
	client := NewWiseAgentClient(api.URL, connectedGuard(t, WiseAgent))

	tasks, err := client.GetTasks(context.Background(), "user-1", models.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "1", tasks[0].ID)
	require.NotNil(t, tasks[0].DueDate)
	assert.Equal(t, time.March, tasks[0].DueDate.Month())
}

func TestRealGeeksTaskRequiresLead(t *testing.T) {
	client := NewRealGeeksClient("http://unused", connectedGuard(t, RealGeeks))

	_, err := client.CreateTask(context.Background(), "user-1", models.TaskInput{Title: "x"})
	require.ErrorIs(t, err, errRealGeeksNeedsLead)
	require.ErrorIs(t, client.AddNote(context.Background(), "user-1", models.NoteInput{Body: "x"}), errRealGeeksNeedsLead)
}

func TestRealGeeksCreateTaskPostsActivity(t *testing.T) {
	api := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"act-1","type":"task","title":"Send comps"}`))
	})
	client := NewRealGeeksClient(api.URL, connectedGuard(t, RealGeeks))

	task, err := client.CreateTask(context.Background(), "user-1", models.TaskInput{ContactID: "lead-9", Title: "Send comps"})
	require.NoError(t, err)
	assert.Equal(t, "act-1", task.ID)
	assert.Equal(t, "lead-9", task.ContactID)
	assert.Equal(t, "/leads/lead-9/activities", api.lastRequest.URL.Path)
	assert.Equal(t, "application/json", api.lastRequest.Header.Get("Content-Type"))
}

func TestUpstreamErrorCarriesStatusAndBody(t *testing.T) {
	api := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`maintenance`))
	})
	client := NewRealGeeksClient(api.URL, connectedGuard(t, RealGeeks))

	_, err := client.SearchContacts(context.Background(), "user-1", "", 0)
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, RealGeeks, upstream.Provider)
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
	assert.Equal(t, "maintenance", upstream.Body)
}

func TestProviderCallsSurfaceNotConnected(t *testing.T) {
	f := newGuardFixture(t, FollowUpBoss)
	client := NewFollowUpBossClient("http://unused", f.guard)

	_, err := client.SearchContacts(context.Background(), "user-1", "", 0)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestNewProviderBuildsEveryClient(t *testing.T) {
	for _, id := range AllProviders {
		f := newGuardFixture(t, id)
		provider, err := NewProvider(id, "https://api.example", f.guard)
		require.NoError(t, err, id)
		assert.Equal(t, id, provider.ID())
	}

	_, err := NewProvider("zillow", "https://api.example", nil)
	require.ErrorIs(t, err, ErrUnknownProvider)
}

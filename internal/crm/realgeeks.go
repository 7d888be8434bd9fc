package crm

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"realtorvoice/internal/models"
)

var errRealGeeksNeedsLead = errors.New("real geeks activities require a lead")

// RealGeeksClient talks to the Real Geeks leads API. Tasks and notes are lead activities.
type RealGeeksClient struct {
	api apiClient
}

// NewRealGeeksClient creates a Real Geeks client
func NewRealGeeksClient(baseURL string, guard *TokenGuard) *RealGeeksClient {
	return &RealGeeksClient{api: newAPIClient(RealGeeks, baseURL, guard)}
}

type rgLead struct {
	ID        string   `json:"id,omitempty"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Status    string   `json:"status,omitempty"`
	Source    string   `json:"source,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

type rgActivity struct {
	ID          string `json:"id,omitempty"`
	LeadID      string `json:"lead_id,omitempty"`
	Type        string `json:"type"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Completed   bool   `json:"completed"`
}

func (c *RealGeeksClient) ID() ProviderID {
	return RealGeeks
}

func (c *RealGeeksClient) CreateContact(ctx context.Context, userID string, in models.ContactInput) (*models.Contact, error) {
	lead := rgLead{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		Source:    in.Source,
		Tags:      in.Tags,
		Notes:     in.Notes,
	}
	var created rgLead
	if err := c.api.do(ctx, userID, http.MethodPost, "/leads", nil, lead, &created); err != nil {
		return nil, err
	}
	contact := created.toContact()
	return &contact, nil
}

func (c *RealGeeksClient) SearchContacts(ctx context.Context, userID, query string, limit int) ([]models.Contact, error) {
	params := url.Values{}
	if query != "" {
		params.Set("search", query)
	}
	params.Set("page", "1")
	params.Set("per_page", strconv.Itoa(limitOrDefault(limit, 25, 100)))

	var resp struct {
		Leads []rgLead `json:"leads"`
	}
	if err := c.api.do(ctx, userID, http.MethodGet, "/leads", params, nil, &resp); err != nil {
		return nil, err
	}

	contacts := make([]models.Contact, 0, len(resp.Leads))
	for _, lead := range resp.Leads {
		contacts = append(contacts, lead.toContact())
	}
	return contacts, nil
}

func (c *RealGeeksClient) CreateTask(ctx context.Context, userID string, in models.TaskInput) (*models.Task, error) {
	if in.ContactID == "" {
		return nil, errRealGeeksNeedsLead
	}
	activity := rgActivity{
		Type:        "task",
		Title:       in.Title,
		Description: in.Description,
	}
	if in.DueDate != nil {
		activity.DueDate = in.DueDate.UTC().Format("2006-01-02T15:04:05Z07:00")
	}

	var created rgActivity
	path := "/leads/" + url.PathEscape(in.ContactID) + "/activities"
	if err := c.api.do(ctx, userID, http.MethodPost, path, nil, activity, &created); err != nil {
		return nil, err
	}
	if created.LeadID == "" {
		created.LeadID = in.ContactID
	}
	task := created.toTask()
	return &task, nil
}

func (c *RealGeeksClient) GetTasks(ctx context.Context, userID string, filter models.TaskFilter) ([]models.Task, error) {
	params := url.Values{}
	params.Set("type", "task")
	if filter.ContactID != "" {
		params.Set("lead_id", filter.ContactID)
	}
	if !filter.IncludeDone {
		params.Set("completed", "false")
	}
	params.Set("per_page", strconv.Itoa(limitOrDefault(filter.Limit, 50, 100)))

	var resp struct {
		Activities []rgActivity `json:"activities"`
	}
	if err := c.api.do(ctx, userID, http.MethodGet, "/activities", params, nil, &resp); err != nil {
		return nil, err
	}

	tasks := make([]models.Task, 0, len(resp.Activities))
	for _, a := range resp.Activities {
		if a.Type != "task" {
			continue
		}
		tasks = append(tasks, a.toTask())
	}
	return tasks, nil
}

func (c *RealGeeksClient) AddNote(ctx context.Context, userID string, in models.NoteInput) error {
	if in.ContactID == "" {
		return errRealGeeksNeedsLead
	}
	activity := rgActivity{
		Type:        "note",
		Title:       in.Subject,
		Description: in.Body,
	}
	path := "/leads/" + url.PathEscape(in.ContactID) + "/activities"
	return c.api.do(ctx, userID, http.MethodPost, path, nil, activity, nil)
}

func (l rgLead) toContact() models.Contact {
	return models.Contact{
		ID:        l.ID,
		Provider:  string(RealGeeks),
		FirstName: l.FirstName,
		LastName:  l.LastName,
		Email:     l.Email,
		Phone:     l.Phone,
		Stage:     l.Status,
		Source:    l.Source,
		Tags:      l.Tags,
	}
}

func (a rgActivity) toTask() models.Task {
	return models.Task{
		ID:          a.ID,
		Provider:    string(RealGeeks),
		ContactID:   a.LeadID,
		Title:       a.Title,
		Description: a.Description,
		Type:        a.Type,
		DueDate:     parseDate(a.DueDate),
		Completed:   a.Completed,
	}
}

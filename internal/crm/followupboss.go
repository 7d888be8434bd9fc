package crm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"realtorvoice/internal/models"
)

// FollowUpBossClient talks to the Follow Up Boss v1 REST API
type FollowUpBossClient struct {
	api apiClient
}

// NewFollowUpBossClient creates a Follow Up Boss client
func NewFollowUpBossClient(baseURL string, guard *TokenGuard) *FollowUpBossClient {
	return &FollowUpBossClient{api: newAPIClient(FollowUpBoss, baseURL, guard)}
}

type fubValue struct {
	Value     string `json:"value"`
	IsPrimary bool   `json:"isPrimary,omitempty"`
}

type fubPerson struct {
	ID        int64      `json:"id,omitempty"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Stage     string     `json:"stage,omitempty"`
	Source    string     `json:"source,omitempty"`
	Emails    []fubValue `json:"emails,omitempty"`
	Phones    []fubValue `json:"phones,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
}

type fubTask struct {
	ID          int64  `json:"id,omitempty"`
	PersonID    int64  `json:"personId,omitempty"`
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	DueDateTime string `json:"dueDateTime,omitempty"`
	IsCompleted bool   `json:"isCompleted"`
}

func (c *FollowUpBossClient) ID() ProviderID {
	return FollowUpBoss
}

func (c *FollowUpBossClient) CreateContact(ctx context.Context, userID string, in models.ContactInput) (*models.Contact, error) {
	person := fubPerson{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Source:    in.Source,
		Tags:      in.Tags,
	}
	if in.Email != "" {
		person.Emails = []fubValue{{Value: in.Email, IsPrimary: true}}
	}
	if in.Phone != "" {
		person.Phones = []fubValue{{Value: in.Phone, IsPrimary: true}}
	}

	var created fubPerson
	if err := c.api.do(ctx, userID, http.MethodPost, "/people", nil, person, &created); err != nil {
		return nil, err
	}

	contact := created.toContact()
	if in.Notes != "" && created.ID != 0 {
		note := models.NoteInput{ContactID: contact.ID, Subject: "Notes", Body: in.Notes}
		if err := c.AddNote(ctx, userID, note); err != nil {
			return &contact, fmt.Errorf("contact created but note failed: %w", err)
		}
	}
	return &contact, nil
}

func (c *FollowUpBossClient) SearchContacts(ctx context.Context, userID, query string, limit int) ([]models.Contact, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	params.Set("limit", strconv.Itoa(limitOrDefault(limit, 25, 100)))
	params.Set("offset", "0")

	var resp struct {
		People []fubPerson `json:"people"`
	}
	if err := c.api.do(ctx, userID, http.MethodGet, "/people", params, nil, &resp); err != nil {
		return nil, err
	}

	contacts := make([]models.Contact, 0, len(resp.People))
	for _, p := range resp.People {
		contacts = append(contacts, p.toContact())
	}
	return contacts, nil
}

func (c *FollowUpBossClient) CreateTask(ctx context.Context, userID string, in models.TaskInput) (*models.Task, error) {
	task := fubTask{Name: in.Title, Type: in.Type}
	if task.Type == "" {
		task.Type = "Follow Up"
	}
	if in.ContactID != "" {
		personID, err := strconv.ParseInt(in.ContactID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid follow up boss person id %q", in.ContactID)
		}
		task.PersonID = personID
	}
	if in.DueDate != nil {
		task.DueDate = in.DueDate.Format("2006-01-02")
		task.DueDateTime = in.DueDate.UTC().Format("2006-01-02T15:04:05Z07:00")
	}

	var created fubTask
	if err := c.api.do(ctx, userID, http.MethodPost, "/tasks", nil, task, &created); err != nil {
		return nil, err
	}
	out := created.toTask()
	if out.Description == "" {
		out.Description = in.Description
	}
	return &out, nil
}

func (c *FollowUpBossClient) GetTasks(ctx context.Context, userID string, filter models.TaskFilter) ([]models.Task, error) {
	params := url.Values{}
	if filter.ContactID != "" {
		params.Set("personId", filter.ContactID)
	}
	if !filter.IncludeDone {
		params.Set("isCompleted", "false")
	}
	params.Set("limit", strconv.Itoa(limitOrDefault(filter.Limit, 50, 100)))

	var resp struct {
		Tasks []fubTask `json:"tasks"`
	}
	if err := c.api.do(ctx, userID, http.MethodGet, "/tasks", params, nil, &resp); err != nil {
		return nil, err
	}

	tasks := make([]models.Task, 0, len(resp.Tasks))
	for _, t := range resp.Tasks {
		tasks = append(tasks, t.toTask())
	}
	return tasks, nil
}

func (c *FollowUpBossClient) AddNote(ctx context.Context, userID string, in models.NoteInput) error {
	personID, err := strconv.ParseInt(in.ContactID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid follow up boss person id %q", in.ContactID)
	}
	note := map[string]interface{}{
		"personId": personID,
		"subject":  in.Subject,
		"body":     in.Body,
	}
	return c.api.do(ctx, userID, http.MethodPost, "/notes", nil, note, nil)
}

func (p fubPerson) toContact() models.Contact {
	contact := models.Contact{
		ID:        strconv.FormatInt(p.ID, 10),
		Provider:  string(FollowUpBoss),
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Stage:     p.Stage,
		Source:    p.Source,
		Tags:      p.Tags,
	}
	contact.Email = primaryValue(p.Emails)
	contact.Phone = primaryValue(p.Phones)
	return contact
}

func (t fubTask) toTask() models.Task {
	task := models.Task{
		ID:        strconv.FormatInt(t.ID, 10),
		Provider:  string(FollowUpBoss),
		Title:     t.Name,
		Type:      t.Type,
		Completed: t.IsCompleted,
	}
	if t.PersonID != 0 {
		task.ContactID = strconv.FormatInt(t.PersonID, 10)
	}
	task.DueDate = parseDate(t.DueDateTime)
	if task.DueDate == nil {
		task.DueDate = parseDate(t.DueDate)
	}
	return task
}

func primaryValue(values []fubValue) string {
	for _, v := range values {
		if v.IsPrimary {
			return v.Value
		}
	}
	if len(values) > 0 {
		return values[0].Value
	}
	return ""
}

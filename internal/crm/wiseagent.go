package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"realtorvoice/internal/models"
)

// WiseAgentClient talks to the Wise Agent webconnect API. Every operation is a
// requestType on a single endpoint; writes are form posts.
type WiseAgentClient struct {
	api apiClient
}

// NewWiseAgentClient creates a Wise Agent client
func NewWiseAgentClient(baseURL string, guard *TokenGuard) *WiseAgentClient {
	return &WiseAgentClient{api: newAPIClient(WiseAgent, baseURL, guard)}
}

// flexID accepts ids that arrive as either JSON numbers or strings
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexID(s)
	return nil
}

type waContact struct {
	ClientID   flexID `json:"ClientID"`
	FirstName  string `json:"FirstName"`
	LastName   string `json:"LastName"`
	Email      string `json:"Email"`
	CellPhone  string `json:"CellPhone"`
	HomePhone  string `json:"HomePhone"`
	Status     string `json:"Status"`
	Source     string `json:"Source"`
	Categories string `json:"Categories"`
}

type waTask struct {
	TaskID      flexID `json:"TaskID"`
	ClientID    flexID `json:"ClientID"`
	Subject     string `json:"Subject"`
	Description string `json:"Description"`
	Category    string `json:"Category"`
	DueDate     string `json:"DueDate"`
	Completed   bool   `json:"Completed"`
}

func (c *WiseAgentClient) ID() ProviderID {
	return WiseAgent
}

func (c *WiseAgentClient) request(requestType string, extra url.Values) url.Values {
	params := url.Values{}
	params.Set("requestType", requestType)
	for k, v := range extra {
		params[k] = v
	}
	return params
}

func (c *WiseAgentClient) CreateContact(ctx context.Context, userID string, in models.ContactInput) (*models.Contact, error) {
	form := url.Values{}
	form.Set("CFirst", in.FirstName)
	form.Set("CLast", in.LastName)
	if in.Email != "" {
		form.Set("CEmail", in.Email)
	}
	if in.Phone != "" {
		form.Set("MobilePhone", in.Phone)
	}
	if in.Source != "" {
		form.Set("Source", in.Source)
	}
	if len(in.Tags) > 0 {
		form.Set("Categories", strings.Join(in.Tags, ";"))
	}
	if in.Notes != "" {
		form.Set("Notes", in.Notes)
	}

	var resp []struct {
		ClientID flexID `json:"ClientID"`
	}
	if err := c.api.do(ctx, userID, http.MethodPost, "", c.request("webcontact", nil), form, &resp); err != nil {
		return nil, err
	}

	contact := models.Contact{
		Provider:  string(WiseAgent),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		Source:    in.Source,
		Tags:      in.Tags,
	}
	if len(resp) > 0 {
		contact.ID = string(resp[0].ClientID)
	}
	return &contact, nil
}

func (c *WiseAgentClient) SearchContacts(ctx context.Context, userID, query string, limit int) ([]models.Contact, error) {
	extra := url.Values{}
	if query != "" {
		extra.Set("SearchString", query)
	}
	extra.Set("page", "1")
	extra.Set("page_size", strconv.Itoa(limitOrDefault(limit, 25, 100)))

	var resp []waContact
	if err := c.api.do(ctx, userID, http.MethodGet, "", c.request("getContacts", extra), nil, &resp); err != nil {
		return nil, err
	}

	contacts := make([]models.Contact, 0, len(resp))
	for _, wc := range resp {
		contacts = append(contacts, wc.toContact())
	}
	return contacts, nil
}

func (c *WiseAgentClient) CreateTask(ctx context.Context, userID string, in models.TaskInput) (*models.Task, error) {
	form := url.Values{}
	form.Set("Subject", in.Title)
	form.Set("Description", in.Description)
	if in.ContactID != "" {
		form.Set("ClientID", in.ContactID)
	}
	if in.Type != "" {
		form.Set("Category", in.Type)
	}
	if in.DueDate != nil {
		form.Set("DueDate", in.DueDate.Format("01/02/2006"))
	}

	var resp []struct {
		TaskID flexID `json:"TaskID"`
	}
	if err := c.api.do(ctx, userID, http.MethodPost, "", c.request("addTask", nil), form, &resp); err != nil {
		return nil, err
	}

	task := models.Task{
		Provider:    string(WiseAgent),
		ContactID:   in.ContactID,
		Title:       in.Title,
		Description: in.Description,
		Type:        in.Type,
		DueDate:     in.DueDate,
	}
	if len(resp) > 0 {
		task.ID = string(resp[0].TaskID)
	}
	return &task, nil
}

func (c *WiseAgentClient) GetTasks(ctx context.Context, userID string, filter models.TaskFilter) ([]models.Task, error) {
	extra := url.Values{}
	if filter.ContactID != "" {
		extra.Set("ClientID", filter.ContactID)
	}
	if !filter.IncludeDone {
		extra.Set("Completed", "0")
	}
	extra.Set("page_size", strconv.Itoa(limitOrDefault(filter.Limit, 50, 100)))

	var resp []waTask
	if err := c.api.do(ctx, userID, http.MethodGet, "", c.request("getTasks", extra), nil, &resp); err != nil {
		return nil, err
	}

	tasks := make([]models.Task, 0, len(resp))
	for _, t := range resp {
		if t.Completed && !filter.IncludeDone {
			continue
		}
		tasks = append(tasks, t.toTask())
	}
	return tasks, nil
}

func (c *WiseAgentClient) AddNote(ctx context.Context, userID string, in models.NoteInput) error {
	if in.ContactID == "" {
		return fmt.Errorf("wise agent notes require a contact")
	}
	form := url.Values{}
	form.Set("ClientID", in.ContactID)
	form.Set("Subject", in.Subject)
	form.Set("Note", in.Body)
	return c.api.do(ctx, userID, http.MethodPost, "", c.request("addContactNote", nil), form, nil)
}

func (wc waContact) toContact() models.Contact {
	contact := models.Contact{
		ID:        string(wc.ClientID),
		Provider:  string(WiseAgent),
		FirstName: wc.FirstName,
		LastName:  wc.LastName,
		Email:     wc.Email,
		Phone:     firstNonEmpty(wc.CellPhone, wc.HomePhone),
		Stage:     wc.Status,
		Source:    wc.Source,
	}
	for _, tag := range strings.Split(wc.Categories, ";") {
		if tag = strings.TrimSpace(tag); tag != "" {
			contact.Tags = append(contact.Tags, tag)
		}
	}
	return contact
}

func (t waTask) toTask() models.Task {
	return models.Task{
		ID:          string(t.TaskID),
		Provider:    string(WiseAgent),
		ContactID:   string(t.ClientID),
		Title:       firstNonEmpty(t.Subject, t.Description),
		Description: t.Description,
		Type:        t.Category,
		DueDate:     parseDate(t.DueDate),
		Completed:   t.Completed,
	}
}

package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody caps how much of an upstream error body is kept
const maxErrorBody = 2048

// apiClient performs authenticated REST calls against one provider
type apiClient struct {
	provider ProviderID
	baseURL  string
	guard    *TokenGuard
}

func newAPIClient(provider ProviderID, baseURL string, guard *TokenGuard) apiClient {
	return apiClient{provider: provider, baseURL: strings.TrimRight(baseURL, "/"), guard: guard}
}

// do sends payload as a form when it is url.Values and as JSON otherwise, and
// decodes a JSON response into out when out is non-nil.
func (a apiClient) do(ctx context.Context, userID, method, path string, query url.Values, payload, out interface{}) error {
	client, err := a.guard.HTTPClient(ctx, userID)
	if err != nil {
		return err
	}

	endpoint := a.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch p := payload.(type) {
	case nil:
	case url.Values:
		body = strings.NewReader(p.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		encoded, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", a.provider, err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", a.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{Provider: a.provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", a.provider, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", a.provider, err)
	}
	return nil
}

// parseDate accepts the date layouts the providers use
func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "01/02/2006 15:04:05", "01/02/2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func limitOrDefault(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

package kimai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a Kimai API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new Kimai client authenticating with a bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AllowInsecureTLS disables certificate verification, for self-hosted
// instances with self-signed certificates.
func (c *Client) AllowInsecureTLS() {
	c.httpClient.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
}

// BaseURL returns the configured upstream base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Result is the classified outcome of one successful upstream call.
type Result struct {
	StatusCode int
	Payload    any   // decoded single-object body, nil on empty responses
	Items      []any // decoded list body when the request is a list
	IsList     bool
	Total      int // X-Total-Count header, -1 when absent
}

// Send executes a built request. Non-2xx responses and transport problems
// come back as *APIError; the caller distinguishes them via the Kind.
func (c *Client) Send(ctx context.Context, req *Request) (*Result, error) {
	status, header, data, err := c.do(ctx, req.Method, req.Path, req.Query, req.Body)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, classifyStatus(status, data)
	}

	result := &Result{StatusCode: status, IsList: req.IsList, Total: -1}
	if totals := header.Get("X-Total-Count"); totals != "" {
		if n, err := strconv.Atoi(totals); err == nil {
			result.Total = n
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return result, nil
	}

	if req.IsList {
		if err := json.Unmarshal(data, &result.Items); err != nil {
			return nil, &APIError{
				Kind:       ErrorServer,
				StatusCode: status,
				Message:    fmt.Sprintf("failed to parse list response: %v", err),
			}
		}
		return result, nil
	}

	if err := json.Unmarshal(data, &result.Payload); err != nil {
		return nil, &APIError{
			Kind:       ErrorServer,
			StatusCode: status,
			Message:    fmt.Sprintf("failed to parse response: %v", err),
		}
	}
	return result, nil
}

// do performs the HTTP exchange. The only error it returns itself is a
// transport-level failure; HTTP error statuses are the caller's problem.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body map[string]any) (int, http.Header, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, nil, nil, &APIError{Kind: ErrorClient, Message: fmt.Sprintf("failed to marshal request body: %v", err)}
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return 0, nil, nil, &APIError{Kind: ErrorClient, Message: fmt.Sprintf("failed to create request: %v", err)}
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, &APIError{Kind: ErrorTransport, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, &APIError{Kind: ErrorTransport, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	return resp.StatusCode, resp.Header, data, nil
}

// classifyStatus maps an upstream error response to the error taxonomy,
// pulling the message and per-field errors out of Kimai's error envelope.
func classifyStatus(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		apiErr.Kind = ErrorPermission
	case status == http.StatusNotFound:
		apiErr.Kind = ErrorNotFound
	case status == http.StatusConflict:
		apiErr.Kind = ErrorConflict
	case status >= 500:
		apiErr.Kind = ErrorServer
	default:
		apiErr.Kind = ErrorClient
	}

	apiErr.Message, apiErr.FieldErrors = parseErrorEnvelope(body)
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// errorEnvelope is Kimai's error body: a message, and on validation
// failures a Symfony form tree carrying per-field errors.
type errorEnvelope struct {
	Message string `json:"message"`
	Errors  struct {
		Errors   []string `json:"errors"`
		Children map[string]struct {
			Errors []string `json:"errors"`
		} `json:"children"`
	} `json:"errors"`
}

func parseErrorEnvelope(body []byte) (string, map[string][]string) {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		text := strings.TrimSpace(string(body))
		if len(text) > 300 {
			text = text[:300]
		}
		return text, nil
	}

	message := envelope.Message
	if len(envelope.Errors.Errors) > 0 {
		message = message + ": " + strings.Join(envelope.Errors.Errors, "; ")
	}

	var fieldErrors map[string][]string
	for field, child := range envelope.Errors.Children {
		if len(child.Errors) == 0 {
			continue
		}
		if fieldErrors == nil {
			fieldErrors = make(map[string][]string)
		}
		fieldErrors[field] = child.Errors
	}
	return message, fieldErrors
}

// User represents a Kimai user.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Alias    string `json:"alias,omitempty"`
	Enabled  bool   `json:"enabled"`
	Language string `json:"language,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// CurrentUser returns the user owning the API token.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	status, _, data, err := c.do(ctx, "GET", "/api/users/me", nil, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, classifyStatus(status, data)
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &user, nil
}

// ListUsers returns visible users. Kimai's visible filter takes 1 (visible),
// 2 (hidden) or 3 (both).
func (c *Client) ListUsers(ctx context.Context, visible int) ([]User, error) {
	query := url.Values{}
	if visible > 0 {
		query.Set("visible", strconv.Itoa(visible))
	}

	status, _, data, err := c.do(ctx, "GET", "/api/users", query, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, classifyStatus(status, data)
	}

	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return users, nil
}

// Timesheet represents a Kimai timesheet entry. End is nil while the
// entry is still running.
type Timesheet struct {
	ID          int      `json:"id"`
	Begin       string   `json:"begin"`
	End         *string  `json:"end"`
	Duration    int      `json:"duration"`
	Project     int      `json:"project"`
	Activity    int      `json:"activity"`
	User        int      `json:"user"`
	Description string   `json:"description,omitempty"`
	Rate        float64  `json:"rate,omitempty"`
	Billable    bool     `json:"billable"`
	Exported    bool     `json:"exported"`
	Tags        []string `json:"tags,omitempty"`
}

// Running reports whether the entry has no end time yet.
func (t *Timesheet) Running() bool {
	return t.End == nil || *t.End == ""
}

// ActiveTimesheets returns the caller's currently running entries.
func (c *Client) ActiveTimesheets(ctx context.Context) ([]Timesheet, error) {
	status, _, data, err := c.do(ctx, "GET", "/api/timesheets/active", nil, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, classifyStatus(status, data)
	}

	var sheets []Timesheet
	if err := json.Unmarshal(data, &sheets); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return sheets, nil
}

// ListTimesheets returns one page of timesheet entries plus the total
// count from the X-Total-Count header (-1 when the header is absent).
func (c *Client) ListTimesheets(ctx context.Context, query url.Values) ([]Timesheet, int, error) {
	status, header, data, err := c.do(ctx, "GET", "/api/timesheets", query, nil)
	if err != nil {
		return nil, 0, err
	}
	if status >= 400 {
		return nil, 0, classifyStatus(status, data)
	}

	var sheets []Timesheet
	if err := json.Unmarshal(data, &sheets); err != nil {
		return nil, 0, fmt.Errorf("failed to parse response: %w", err)
	}

	total := -1
	if h := header.Get("X-Total-Count"); h != "" {
		if n, err := strconv.Atoi(h); err == nil {
			total = n
		}
	}
	return sheets, total, nil
}

// Project is the subset of project fields the aggregation reports use.
type Project struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Customer int    `json:"customer"`
	Visible  bool   `json:"visible"`
}

// ListProjects returns all visible projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	status, _, data, err := c.do(ctx, "GET", "/api/projects", nil, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, classifyStatus(status, data)
	}

	var projects []Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return projects, nil
}

// Version reports the upstream Kimai version, used as a startup probe.
type Version struct {
	Version   string `json:"version"`
	VersionID int    `json:"versionId"`
	Copyright string `json:"copyright,omitempty"`
}

// GetVersion returns the upstream version info.
func (c *Client) GetVersion(ctx context.Context) (*Version, error) {
	status, _, data, err := c.do(ctx, "GET", "/api/version", nil, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, classifyStatus(status, data)
	}

	var version Version
	if err := json.Unmarshal(data, &version); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &version, nil
}

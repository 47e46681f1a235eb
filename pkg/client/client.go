// Package client is a Go client for the risk register HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dhawalhost/riskregister/internal/audit"
	"github.com/dhawalhost/riskregister/internal/dashboard"
	"github.com/dhawalhost/riskregister/internal/department"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/dhawalhost/riskregister/internal/register"
)

// Client is a client for the risk register API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
	// UserID is sent as X-User-ID when no token is set.
	UserID string
}

// Config holds configuration for the client.
type Config struct {
	BaseURL string
	Token   string
	UserID  string
	Timeout time.Duration
}

// New creates a new Client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		Token:   cfg.Token,
		UserID:  cfg.UserID,
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("API error %d: %s (%s)", e.StatusCode, e.Message, e.Reason)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+"/api/v1"+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.Token)
	case c.UserID != "":
		req.Header.Set("X-User-ID", c.UserID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		respBody, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Me returns the caller's identity.
func (c *Client) Me(ctx context.Context) (identity.Response, error) {
	var out identity.Response
	err := c.doRequest(ctx, http.MethodGet, "/users/me", nil, &out)
	return out, err
}

// CreateUser registers an identity record.
func (c *Client) CreateUser(ctx context.Context, in identity.CreateInput) (identity.Response, error) {
	var out identity.Response
	err := c.doRequest(ctx, http.MethodPost, "/users", in, &out)
	return out, err
}

// AssignRole replaces the role of an identity.
func (c *Client) AssignRole(ctx context.Context, userID string, in identity.AssignRoleInput) (identity.Response, error) {
	var out identity.Response
	err := c.doRequest(ctx, http.MethodPut, "/users/"+url.PathEscape(userID)+"/role", in, &out)
	return out, err
}

// RiskList is one page of risks.
type RiskList struct {
	Risks []register.RiskResponse `json:"risks"`
	Total int                     `json:"total"`
}

// ListRisks lists the risks visible to the caller.
func (c *Client) ListRisks(ctx context.Context, f register.ListFilter) (RiskList, error) {
	q := url.Values{}
	setQuery(q, "department_id", f.DepartmentID)
	setQuery(q, "severity", f.Severity)
	setQuery(q, "status", f.Status)
	setQuery(q, "search", f.Search)
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	var out RiskList
	err := c.doRequest(ctx, http.MethodGet, withQuery("/risks", q), nil, &out)
	return out, err
}

// GetRisk fetches one risk.
func (c *Client) GetRisk(ctx context.Context, id string) (register.RiskResponse, error) {
	var out register.RiskResponse
	err := c.doRequest(ctx, http.MethodGet, "/risks/"+url.PathEscape(id), nil, &out)
	return out, err
}

// CreateRisk files a new risk.
func (c *Client) CreateRisk(ctx context.Context, in register.CreateInput) (register.RiskResponse, error) {
	var out register.RiskResponse
	err := c.doRequest(ctx, http.MethodPost, "/risks", in, &out)
	return out, err
}

// EditRisk applies a partial update at the given version.
func (c *Client) EditRisk(ctx context.Context, id string, version int64, in register.EditInput) (register.RiskResponse, error) {
	body := struct {
		Version int64 `json:"version"`
		register.EditInput
	}{Version: version, EditInput: in}
	var out register.RiskResponse
	err := c.doRequest(ctx, http.MethodPatch, "/risks/"+url.PathEscape(id), body, &out)
	return out, err
}

// TransitionRisk moves a risk to status.
func (c *Client) TransitionRisk(ctx context.Context, id, status string) (register.RiskResponse, error) {
	var out register.RiskResponse
	err := c.doRequest(ctx, http.MethodPost, "/risks/"+url.PathEscape(id)+"/transition", map[string]string{"status": status}, &out)
	return out, err
}

// LockRisk locks a risk.
func (c *Client) LockRisk(ctx context.Context, id string) (register.RiskResponse, error) {
	var out register.RiskResponse
	err := c.doRequest(ctx, http.MethodPost, "/risks/"+url.PathEscape(id)+"/lock", nil, &out)
	return out, err
}

// UnlockRisk unlocks a risk.
func (c *Client) UnlockRisk(ctx context.Context, id string) (register.RiskResponse, error) {
	var out register.RiskResponse
	err := c.doRequest(ctx, http.MethodPost, "/risks/"+url.PathEscape(id)+"/unlock", nil, &out)
	return out, err
}

// DeleteRisk deletes a risk.
func (c *Client) DeleteRisk(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, "/risks/"+url.PathEscape(id), nil, nil)
}

// Decision is the answer to "may I perform action on this risk".
type Decision struct {
	RiskID  string `json:"risk_id"`
	Action  string `json:"action"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Decide asks the policy engine about action on a risk.
func (c *Client) Decide(ctx context.Context, id, action string) (Decision, error) {
	var out Decision
	q := url.Values{"action": {action}}
	err := c.doRequest(ctx, http.MethodGet, withQuery("/risks/"+url.PathEscape(id)+"/decision", q), nil, &out)
	return out, err
}

// ListDepartments lists departments.
func (c *Client) ListDepartments(ctx context.Context, includeInactive bool) ([]department.Department, error) {
	var out struct {
		Departments []department.Department `json:"departments"`
	}
	path := "/departments"
	if includeInactive {
		path += "?include_inactive=true"
	}
	err := c.doRequest(ctx, http.MethodGet, path, nil, &out)
	return out.Departments, err
}

// CreateDepartment registers a department.
func (c *Client) CreateDepartment(ctx context.Context, in department.CreateInput) (department.Department, error) {
	var out department.Department
	err := c.doRequest(ctx, http.MethodPost, "/departments", in, &out)
	return out, err
}

// SetDepartmentActive activates or deactivates a department.
func (c *Client) SetDepartmentActive(ctx context.Context, id string, active bool) (department.Department, error) {
	action := "deactivate"
	if active {
		action = "activate"
	}
	var out department.Department
	err := c.doRequest(ctx, http.MethodPost, "/departments/"+url.PathEscape(id)+"/"+action, nil, &out)
	return out, err
}

// AuditPage is one page of audit entries.
type AuditPage struct {
	Entries []audit.Entry `json:"entries"`
	Total   int           `json:"total"`
}

// QueryAudit searches the audit trail. Keys of filter are the query
// parameters of GET /audit.
func (c *Client) QueryAudit(ctx context.Context, filter map[string]string) (AuditPage, error) {
	q := url.Values{}
	for k, v := range filter {
		setQuery(q, k, v)
	}
	var out AuditPage
	err := c.doRequest(ctx, http.MethodGet, withQuery("/audit", q), nil, &out)
	return out, err
}

// Dashboard returns the caller's dashboard summary.
func (c *Client) Dashboard(ctx context.Context) (dashboard.Summary, error) {
	var out dashboard.Summary
	err := c.doRequest(ctx, http.MethodGet, "/dashboard", nil, &out)
	return out, err
}

func setQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

package scopelinesdk

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

// Client is a minimal Scopeline HTTP API client.
type Client struct {
	BaseURL      string
	EngagementID string
	BearerToken  string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, engagementID string) *Client {
	return &Client{
		BaseURL:      baseURL,
		EngagementID: engagementID,
		Timeout:      10 * time.Second,
	}
}

// Engagement represents the API engagement model.
type Engagement struct {
	ID                string   `json:"id"`
	ClientName        string   `json:"client_name"`
	Phase             string   `json:"phase"`
	PurchasedServices []string `json:"purchased_services"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// AnswerSet is the collected values for one service.
type AnswerSet struct {
	ServiceID   string         `json:"service_id"`
	Values      map[string]any `json:"values"`
	Missing     []string       `json:"missing_required"`
	Complete    bool           `json:"complete"`
	CompletedAt *string        `json:"completed_at,omitempty"`
	UpdatedAt   string         `json:"updated_at"`
}

// PlanService is one entry of the collection plan.
type PlanService struct {
	ServiceID       string `json:"service_id"`
	Title           string `json:"title"`
	SpecificFields  int    `json:"specific_fields"`
	SharedFields    int    `json:"shared_fields"`
	EstimateSeconds int    `json:"estimate_seconds"`
}

// Plan is the recommended collection order.
type Plan struct {
	Services     []PlanService `json:"services"`
	TotalSeconds int           `json:"total_seconds"`
}

// ServiceStatus is per-service completion.
type ServiceStatus struct {
	ServiceID        string   `json:"service_id"`
	AnsweredRequired int      `json:"answered_required"`
	TotalRequired    int      `json:"total_required"`
	Percent          float64  `json:"percent"`
	Complete         bool     `json:"complete"`
	Missing          []string `json:"missing_required"`
}

// Status is the engagement-level completion and phase view.
type Status struct {
	EngagementID string          `json:"engagement_id"`
	Phase        string          `json:"phase"`
	Percent      float64         `json:"completion_percent"`
	Services     []ServiceStatus `json:"services"`
	NextPhases   []string        `json:"next_phases"`
}

// Event represents a log entry.
type Event struct {
	ID           int64          `json:"id"`
	TS           string         `json:"ts"`
	Type         string         `json:"type"`
	EngagementID string         `json:"engagement_id"`
	EntityKind   string         `json:"entity_kind"`
	EntityID     string         `json:"entity_id"`
	Payload      map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateEngagement creates an engagement and points the client at it.
func (c *Client) CreateEngagement(ctx context.Context, id, clientName string) (Engagement, error) {
	body := map[string]any{"client_name": clientName}
	if id != "" {
		body["id"] = id
	}
	var resp Engagement
	if err := c.do(ctx, http.MethodPost, "v0/engagements", body, &resp); err != nil {
		return resp, err
	}
	c.EngagementID = resp.ID
	return resp, nil
}

// Get fetches the engagement.
func (c *Client) Get(ctx context.Context) (Engagement, error) {
	var resp Engagement
	err := c.do(ctx, http.MethodGet, c.path(""), nil, &resp)
	return resp, err
}

// SetServices replaces the purchased service set.
func (c *Client) SetServices(ctx context.Context, serviceIDs []string) (Engagement, error) {
	var resp Engagement
	err := c.do(ctx, http.MethodPut, c.path("services"), map[string]any{"services": serviceIDs}, &resp)
	return resp, err
}

// ImportMeeting uploads the discovery meeting record.
func (c *Client) ImportMeeting(ctx context.Context, record map[string]any) error {
	return c.do(ctx, http.MethodPut, c.path("meeting"), record, nil)
}

// BeginService opens requirements collection for a service.
func (c *Client) BeginService(ctx context.Context, serviceID string) (AnswerSet, error) {
	var resp AnswerSet
	endpoint := c.path(fmt.Sprintf("services/%s/begin", url.PathEscape(serviceID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{}, &resp)
	return resp, err
}

// RecordAnswers records field values for a service.
func (c *Client) RecordAnswers(ctx context.Context, serviceID string, values map[string]any) (AnswerSet, error) {
	var resp AnswerSet
	endpoint := c.path(fmt.Sprintf("services/%s/answers", url.PathEscape(serviceID)))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"values": values}, &resp)
	return resp, err
}

// GetPlan returns the collection plan.
func (c *Client) GetPlan(ctx context.Context) (Plan, error) {
	var resp Plan
	err := c.do(ctx, http.MethodGet, c.path("plan"), nil, &resp)
	return resp, err
}

// GetStatus returns completion status and reachable phases.
func (c *Client) GetStatus(ctx context.Context) (Status, error) {
	var resp Status
	err := c.do(ctx, http.MethodGet, c.path("status"), nil, &resp)
	return resp, err
}

// AdvancePhase requests a phase transition.
func (c *Client) AdvancePhase(ctx context.Context, target string) (Engagement, error) {
	var resp Engagement
	err := c.do(ctx, http.MethodPost, c.path("phase"), map[string]any{"target": target}, &resp)
	return resp, err
}

// SetFlag sets a business flag.
func (c *Client) SetFlag(ctx context.Context, name string, value bool) error {
	endpoint := c.path(fmt.Sprintf("flags/%s", url.PathEscape(name)))
	return c.do(ctx, http.MethodPut, endpoint, map[string]any{"value": value}, nil)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.path("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ExportDocument fetches the markdown requirements document.
func (c *Client) ExportDocument(ctx context.Context) (string, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/"+c.path("export/document"), nil)
	if err != nil {
		return "", err
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return string(b), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	fullURL := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) path(p string) string {
	base := fmt.Sprintf("v0/engagements/%s", url.PathEscape(c.EngagementID))
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

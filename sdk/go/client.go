package intervenesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Intervene HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no token is set; the server must
	// allow the legacy header.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Resource struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type MicroTask struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Done  bool   `json:"done,omitempty"`
}

// Intervention represents the API intervention model.
type Intervention struct {
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name"`
	Zone       string      `json:"zone,omitempty"`
	Complexity string      `json:"complexity,omitempty"`
	MicroTasks []MicroTask `json:"micro_tasks,omitempty"`
	Resources  []Resource  `json:"resources,omitempty"`
	Position   int         `json:"position,omitempty"`
}

// Dependency is a directed edge: To starts after From ends.
type Dependency struct {
	Type               string `json:"type,omitempty"`
	FromInterventionID string `json:"from_intervention_id"`
	ToInterventionID   string `json:"to_intervention_id"`
	CriticalPath       bool   `json:"critical_path,omitempty"`
	Description        string `json:"description,omitempty"`
}

// Bundle represents the full bundle aggregate.
type Bundle struct {
	ID            string         `json:"id,omitempty"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	TimelineWeeks int            `json:"timeline_weeks,omitempty"`
	Interventions []Intervention `json:"interventions,omitempty"`
	Dependencies  []Dependency   `json:"dependencies,omitempty"`
	CreatedAt     string         `json:"created_at,omitempty"`
	UpdatedAt     string         `json:"updated_at,omitempty"`
}

type Validation struct {
	BundleID  string   `json:"bundle_id"`
	Valid     bool     `json:"valid"`
	CycleAt   string   `json:"cycle_at,omitempty"`
	CyclePath []string `json:"cycle_path,omitempty"`
	Conflicts []string `json:"conflicts"`
	Errors    []string `json:"errors"`
}

type TimelineEntry struct {
	InterventionID string `json:"intervention_id"`
	StartWeek      int    `json:"start_week"`
	Duration       int    `json:"duration"`
	EndWeek        int    `json:"end_week"`
	CriticalPath   bool   `json:"critical_path"`
	Slack          int    `json:"slack"`
	OnLongestPath  bool   `json:"on_longest_path"`
	ExceedsWindow  bool   `json:"exceeds_window,omitempty"`
}

type Timeline struct {
	BundleID      string          `json:"bundle_id"`
	Weeks         int             `json:"weeks"`
	Entries       []TimelineEntry `json:"entries"`
	Order         []string        `json:"order"`
	TotalWeeks    int             `json:"total_weeks"`
	CriticalCount int             `json:"critical_count"`
	LongestPath   []string        `json:"longest_path,omitempty"`
}

// Entry returns the entry for an intervention id.
func (t Timeline) Entry(id string) (TimelineEntry, bool) {
	for _, e := range t.Entries {
		if e.InterventionID == id {
			return e, true
		}
	}
	return TimelineEntry{}, false
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	BundleID   string         `json:"bundle_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message are filled from the
// error envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsRejected reports whether err is a refused dependency (self loop or cycle).
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "dependency_rejected"
}

// CreateBundle creates an empty bundle. weeks 0 uses the server default.
func (c *Client) CreateBundle(ctx context.Context, name string, weeks int) (Bundle, error) {
	body := map[string]any{"name": name}
	if weeks > 0 {
		body["timeline_weeks"] = weeks
	}
	var resp Bundle
	err := c.do(ctx, http.MethodPost, "v0/bundles", body, &resp)
	return resp, err
}

func (c *Client) GetBundle(ctx context.Context, id string) (Bundle, error) {
	var resp Bundle
	err := c.do(ctx, http.MethodGet, c.bundlePath(id, ""), nil, &resp)
	return resp, err
}

// ImportBundle stores a bundle including its dependency list as given.
func (c *Client) ImportBundle(ctx context.Context, b Bundle) (Bundle, error) {
	var resp Bundle
	err := c.do(ctx, http.MethodPost, "v0/bundles/import", b, &resp)
	return resp, err
}

func (c *Client) DeleteBundle(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.bundlePath(id, ""), nil, nil)
}

func (c *Client) AddIntervention(ctx context.Context, bundleID string, iv Intervention) (Intervention, error) {
	var resp Intervention
	err := c.do(ctx, http.MethodPost, c.bundlePath(bundleID, "interventions"), iv, &resp)
	return resp, err
}

// RemoveIntervention returns how many dependencies were dropped with it.
func (c *Client) RemoveIntervention(ctx context.Context, bundleID, id string) (int, error) {
	var resp struct {
		DroppedDependencies int `json:"dropped_dependencies"`
	}
	endpoint := c.bundlePath(bundleID, "interventions/"+url.PathEscape(id))
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp.DroppedDependencies, err
}

// AddDependency appends an edge. Edges that would create a cycle fail with an
// error for which IsRejected is true.
func (c *Client) AddDependency(ctx context.Context, bundleID string, d Dependency) (Dependency, error) {
	var resp Dependency
	err := c.do(ctx, http.MethodPost, c.bundlePath(bundleID, "dependencies"), d, &resp)
	return resp, err
}

// RemoveDependency removes every from -> to edge and returns the count.
func (c *Client) RemoveDependency(ctx context.Context, bundleID, from, to string) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodDelete, c.edgePath(bundleID, from, to), nil, &resp)
	return resp.Count, err
}

// UpdateDependency patches every from -> to edge. Nil fields are kept.
func (c *Client) UpdateDependency(ctx context.Context, bundleID, from, to string, depType *string, critical *bool, description *string) (int, error) {
	body := map[string]any{}
	if depType != nil {
		body["type"] = *depType
	}
	if critical != nil {
		body["critical_path"] = *critical
	}
	if description != nil {
		body["description"] = *description
	}
	var resp struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodPatch, c.edgePath(bundleID, from, to), body, &resp)
	return resp.Count, err
}

// Dependencies lists edges in list order; to filters by target when set.
func (c *Client) Dependencies(ctx context.Context, bundleID, to string) ([]Dependency, error) {
	endpoint := c.bundlePath(bundleID, "dependencies")
	if to != "" {
		endpoint += "?to=" + url.QueryEscape(to)
	}
	var resp []Dependency
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Validate(ctx context.Context, bundleID string) (Validation, error) {
	var resp Validation
	err := c.do(ctx, http.MethodGet, c.bundlePath(bundleID, "validation"), nil, &resp)
	return resp, err
}

// Timeline computes the schedule. weeks 0 uses the bundle window.
func (c *Client) Timeline(ctx context.Context, bundleID string, weeks int) (Timeline, error) {
	endpoint := c.bundlePath(bundleID, "timeline")
	if weeks > 0 {
		endpoint = fmt.Sprintf("%s?weeks=%d", endpoint, weeks)
	}
	var resp Timeline
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, bundleID string, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, bundleID, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, bundleID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.bundlePath(bundleID, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) bundlePath(id, p string) string {
	path := "v0/bundles/" + url.PathEscape(id)
	if p == "" {
		return path
	}
	return path + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) edgePath(bundleID, from, to string) string {
	return c.bundlePath(bundleID, fmt.Sprintf("dependencies/%s/%s", url.PathEscape(from), url.PathEscape(to)))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

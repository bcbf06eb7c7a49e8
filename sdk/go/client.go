package techcommsdk

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

// Client is a minimal TechComm HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v0",
		BearerToken: bearerToken,
		Timeout:     10 * time.Second,
	}
}

// Event represents the API event model (partial).
type Event struct {
	ID               string              `json:"id"`
	Status           string              `json:"status"`
	RequestedBy      string              `json:"requestedBy"`
	VotingOpen       bool                `json:"votingOpen"`
	Participants     []string            `json:"participants"`
	Winners          map[string][]string `json:"winners,omitempty"`
	RejectionReason  string              `json:"rejectionReason,omitempty"`
	XPAwardingStatus string              `json:"xpAwardingStatus,omitempty"`
	Details          struct {
		EventName   string   `json:"eventName"`
		Description string   `json:"description"`
		Format      string   `json:"format"`
		Organizers  []string `json:"organizers"`
	} `json:"details"`
}

// Criterion is one scoring rule of an event.
type Criterion struct {
	Title  string `json:"title"`
	Points int    `json:"points"`
	Role   string `json:"role"`
}

// EventRequest is the payload for a new event.
type EventRequest struct {
	EventName   string
	Description string
	Format      string
	Criteria    []Criterion
}

func (r EventRequest) body() map[string]any {
	body := map[string]any{
		"details": map[string]any{
			"eventName":   r.EventName,
			"description": r.Description,
			"format":      r.Format,
		},
	}
	if len(r.Criteria) > 0 {
		body["criteria"] = r.Criteria
	}
	return body
}

// XP is a member's experience summary.
type XP struct {
	UID     string         `json:"uid"`
	TotalXP int            `json:"totalXp"`
	ByRole  map[string]int `json:"byRole"`
	Events  []string       `json:"events"`
}

// APIError wraps non-2xx responses.
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

// RequestEvent asks for a new event.
func (c *Client) RequestEvent(ctx context.Context, req EventRequest) (Event, error) {
	var resp Event
	err := c.do(ctx, http.MethodPost, "events", req.body(), &resp)
	return resp, err
}

// Event fetches one event as the caller may see it.
func (c *Client) Event(ctx context.Context, id string) (Event, error) {
	var resp Event
	err := c.do(ctx, http.MethodGet, eventPath(id, ""), nil, &resp)
	return resp, err
}

// PublicEvents lists Approved and Closed events.
func (c *Client) PublicEvents(ctx context.Context) ([]Event, error) {
	var resp []Event
	err := c.do(ctx, http.MethodGet, "events/public", nil, &resp)
	return resp, err
}

func (c *Client) Approve(ctx context.Context, id string) (Event, error) {
	return c.eventAction(ctx, id, "approve", nil)
}

func (c *Client) Reject(ctx context.Context, id, reason string) (Event, error) {
	return c.eventAction(ctx, id, "reject", map[string]any{"reason": reason})
}

func (c *Client) Join(ctx context.Context, id string) (Event, error) {
	return c.eventAction(ctx, id, "join", nil)
}

func (c *Client) Leave(ctx context.Context, id string) (Event, error) {
	return c.eventAction(ctx, id, "leave", nil)
}

func (c *Client) Close(ctx context.Context, id string) (Event, error) {
	return c.eventAction(ctx, id, "close", nil)
}

// AwardXP awards XP for a closed event.
func (c *Client) AwardXP(ctx context.Context, id string) (Event, error) {
	return c.eventAction(ctx, id, "xp", nil)
}

// StudentXP returns the XP summary of uid.
func (c *Client) StudentXP(ctx context.Context, uid string) (XP, error) {
	var resp XP
	endpoint := fmt.Sprintf("students/%s/xp", url.PathEscape(uid))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Names resolves display names; unknown ids come back as placeholders.
func (c *Client) Names(ctx context.Context, ids ...string) (map[string]string, error) {
	var resp struct {
		Names map[string]string `json:"names"`
	}
	endpoint := "names?ids=" + url.QueryEscape(strings.Join(ids, ","))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Names, err
}

func (c *Client) eventAction(ctx context.Context, id, action string, body any) (Event, error) {
	var resp Event
	err := c.do(ctx, http.MethodPost, eventPath(id, action), body, &resp)
	return resp, err
}

func eventPath(id, action string) string {
	p := "events/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
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
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}

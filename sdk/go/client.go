package kilnlinesdk

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

	"kilnline/internal/domain"
)

// Client is a minimal kilnline HTTP API client. It satisfies the engine's
// Collaborator, so a workstation can run its own engine against a central
// server.
type Client struct {
	BaseURL    string
	Actor      string
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

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Permanent reports whether retrying the request cannot succeed. Client
// errors are permanent; server errors and rolled-back writes are not.
func (e *APIError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// NotFound reports a 404 response.
func (e *APIError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// ImportResult mirrors the server's import summary.
type ImportResult struct {
	Orders  int `json:"orders"`
	Items   int `json:"items"`
	Orphans int `json:"orphans"`
}

// Event represents a log entry.
type Event struct {
	ID         string `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

func (c *Client) ListOrders(ctx context.Context) ([]domain.Order, error) {
	var resp struct {
		Items []domain.Order `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "orders", nil, &resp)
	return resp.Items, err
}

func (c *Client) ListItems(ctx context.Context) ([]domain.OrderItem, error) {
	var resp struct {
		Items []domain.OrderItem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "items", nil, &resp)
	return resp.Items, err
}

// SetOrderStage sends the toggle; the server stamps the completion time.
func (c *Client) SetOrderStage(ctx context.Context, orderID int64, w domain.StageWrite) error {
	endpoint := fmt.Sprintf("orders/%d/stages/%s", orderID, url.PathEscape(w.Stage))
	return c.do(ctx, http.MethodPut, endpoint, map[string]any{"complete": w.Complete}, nil)
}

func (c *Client) SetItemStage(ctx context.Context, itemID int64, w domain.StageWrite) error {
	endpoint := fmt.Sprintf("items/%d/stages/%s", itemID, url.PathEscape(w.Stage))
	return c.do(ctx, http.MethodPut, endpoint, map[string]any{"complete": w.Complete}, nil)
}

func (c *Client) SetOrderNotes(ctx context.Context, orderID int64, notes string) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("orders/%d/notes", orderID), map[string]any{"notes": notes}, nil)
}

func (c *Client) SetOrderArchived(ctx context.Context, orderID int64, archived bool) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("orders/%d/archived", orderID), map[string]any{"archived": archived}, nil)
}

func (c *Client) SetItemArchived(ctx context.Context, itemID int64, archived bool) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("items/%d/archived", itemID), map[string]any{"archived": archived}, nil)
}

func (c *Client) PatchItemSpecifications(ctx context.Context, itemID int64, patch map[string]any) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("items/%d/specifications", itemID), map[string]any{"patch": patch}, nil)
}

// Import uploads an order export.
func (c *Client) Import(ctx context.Context, orders []domain.Order, items []domain.OrderItem) (ImportResult, error) {
	body := map[string]any{"orders": orders, "items": items}
	var resp ImportResult
	err := c.do(ctx, http.MethodPost, "import", body, &resp)
	return resp, err
}

// GetSetting reads a stored setting. A missing key is not an error.
func (c *Client) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var resp struct {
		Value string `json:"value"`
		Found bool   `json:"found"`
	}
	err := c.do(ctx, http.MethodGet, "settings?key="+url.QueryEscape(key), nil, &resp)
	return resp.Value, resp.Found, err
}

func (c *Client) PutSetting(ctx context.Context, key, value string) error {
	return c.do(ctx, http.MethodPut, "settings", map[string]any{"key": key, "value": value}, nil)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
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
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
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
	if c.Actor != "" {
		req.Header.Set("X-Actor", c.Actor)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
)

// Client talks to the admin API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type apiError struct {
	Status  int
	Message string
	Field   string
}

func (e *apiError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (field %s, status %d)", e.Message, e.Field, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: e.Error, Field: e.Field}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := c.do(ctx, http.MethodGet, "/api/v1/subscriptions", nil, &subs)
	return subs, err
}

func (c *Client) AddSubscription(ctx context.Context, req domain.CreateSubscriptionRequest) (domain.Subscription, error) {
	var sub domain.Subscription
	err := c.do(ctx, http.MethodPost, "/api/v1/subscriptions", req, &sub)
	return sub, err
}

func (c *Client) RemoveSubscription(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/subscriptions/"+id, nil, nil)
}

func (c *Client) SetActive(ctx context.Context, id string, active bool) (domain.Subscription, error) {
	var sub domain.Subscription
	err := c.do(ctx, http.MethodPatch, "/api/v1/subscriptions/"+id, domain.UpdateSubscriptionRequest{Active: &active}, &sub)
	return sub, err
}

func (c *Client) TestSubscription(ctx context.Context, id string) (domain.DeliveryAttempt, error) {
	var attempt domain.DeliveryAttempt
	err := c.do(ctx, http.MethodPost, "/api/v1/subscriptions/"+id+"/test", nil, &attempt)
	return attempt, err
}

func (c *Client) Dispatch(ctx context.Context, eventType string, payload json.RawMessage) (*domain.DispatchReport, error) {
	var report domain.DispatchReport
	in := map[string]any{"event_type": eventType, "payload": payload}
	if err := c.do(ctx, http.MethodPost, "/api/v1/events", in, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Package remote implements the calendar backend over a JSON HTTP service,
// for deployments where the calendar lives behind an internal API instead of
// in process.
package remote

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultRequestTimeout = 15 * time.Second

// Client talks to a remote calendar service. It satisfies calendar.Service;
// the remote side owns the slot logic and returns the same human-readable
// strings the in-memory store produces.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client, e.g. for tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid calendar service url %q", baseURL)
	}

	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   defaultRequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type slotRequest struct {
	StartISO        string `json:"start_iso"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type bookingRequest struct {
	Summary         string `json:"summary"`
	StartISO        string `json:"start_iso"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type response struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

func (c *Client) CurrentTime(ctx context.Context) (string, error) {
	return c.do(ctx, http.MethodGet, "/time", nil)
}

func (c *Client) ListUpcomingEvents(ctx context.Context, maxResults int) (string, error) {
	path := "/events"
	if maxResults > 0 {
		path += "?max_results=" + strconv.Itoa(maxResults)
	}
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) CheckSlot(ctx context.Context, startISO string, durationMinutes int) (string, error) {
	return c.do(ctx, http.MethodPost, "/slots/check", slotRequest{StartISO: startISO, DurationMinutes: durationMinutes})
}

func (c *Client) FindNearestSlots(ctx context.Context, startSearchISO string, durationMinutes int) (string, error) {
	return c.do(ctx, http.MethodPost, "/slots/search", slotRequest{StartISO: startSearchISO, DurationMinutes: durationMinutes})
}

func (c *Client) BookMeeting(ctx context.Context, summary, startISO string, durationMinutes int) (string, error) {
	return c.do(ctx, http.MethodPost, "/bookings", bookingRequest{Summary: summary, StartISO: startISO, DurationMinutes: durationMinutes})
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (string, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	httpResponse, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("calendar service request failed: %w", err)
	}
	defer httpResponse.Body.Close()

	var decoded response
	if err := json.NewDecoder(httpResponse.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode calendar service response: %w", err)
	}
	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		if decoded.Error != "" {
			return "", fmt.Errorf("calendar service error: %s", decoded.Error)
		}
		return "", fmt.Errorf("calendar service returned status %d", httpResponse.StatusCode)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("calendar service error: %s", decoded.Error)
	}
	return decoded.Result, nil
}

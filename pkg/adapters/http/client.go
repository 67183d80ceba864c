package http

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

	"github.com/aretw0/bandit/pkg/domain"
)

// DefaultClientTimeout bounds every request of a Client.
const DefaultClientTimeout = 5 * time.Second

// Client talks to a Server. It is a ports.SiteProvider, a ports.SiteLister
// and a ports.EventWriter.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.http.Timeout = d
	}
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultClientTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch implements ports.SiteProvider.
func (c *Client) Fetch(ctx context.Context, siteName string) (*domain.Site, error) {
	var site domain.Site
	if err := c.getJSON(ctx, "/api/sites/"+url.PathEscape(siteName), &site); err != nil {
		return nil, fmt.Errorf("fetch site %q: %w", siteName, err)
	}
	return &site, nil
}

// ListSites implements ports.SiteLister.
func (c *Client) ListSites(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, "/api/sites", &names); err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return names, nil
}

// WriteEvents implements ports.EventWriter by posting the batch to /api/metrics.
func (c *Client) WriteEvents(ctx context.Context, events []domain.MetricEvent) error {
	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/metrics", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return statusError(resp)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.ErrSiteNotFound
	default:
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", domain.ErrTransport, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &payload) != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(data))
	}
	return fmt.Errorf("%w: status %d: %s", domain.ErrTransport, resp.StatusCode, payload.Error)
}

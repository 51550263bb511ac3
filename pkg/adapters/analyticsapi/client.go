// Package analyticsapi is the default analytics client: it posts chat events
// as JSON to the analytics events endpoint.
package analyticsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/headless/internal/logging"
	"github.com/aretw0/headless/pkg/domain"
	"github.com/aretw0/headless/pkg/ports"
)

var endpoints = map[string]string{
	"PROD/US":    "https://analytics.headless.dev/chat/events",
	"PROD/EU":    "https://analytics.eu.headless.dev/chat/events",
	"SANDBOX/US": "https://sbx-analytics.headless.dev/chat/events",
	"SANDBOX/EU": "https://sbx-analytics.eu.headless.dev/chat/events",
}

// Config selects the endpoint. Endpoint, when set, wins over Env and Region.
type Config struct {
	APIKey   string
	Env      string
	Region   string
	Endpoint string
}

// endpoint resolves the events URL, defaulting to PROD/US.
func (c Config) endpoint() (string, error) {
	if c.Endpoint != "" {
		return c.Endpoint, nil
	}
	env, region := strings.ToUpper(c.Env), strings.ToUpper(c.Region)
	if env == "" {
		env = "PROD"
	}
	if region == "" {
		region = "US"
	}
	u, ok := endpoints[env+"/"+region]
	if !ok {
		return "", fmt.Errorf("analyticsapi: no endpoint for env %q region %q", env, region)
	}
	return u, nil
}

// Client implements ports.AnalyticsClient.
type Client struct {
	apiKey   string
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	u, err := cfg.endpoint()
	if err != nil {
		return nil, err
	}
	c := &Client{
		apiKey:   cfg.APIKey,
		endpoint: u,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the resolved events URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Send posts one event.
func (c *Client) Send(ctx context.Context, event domain.AnalyticsEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "KEY "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &domain.APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	c.logger.Debug("analytics event sent", "action", event.Action)
	return nil
}

var _ ports.AnalyticsClient = (*Client)(nil)

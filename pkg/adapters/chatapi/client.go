// Package chatapi is the default bot client: it talks to the remote chat API
// over JSON request/response and Server-Sent Events streaming.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/aretw0/headless/internal/logging"
	"github.com/aretw0/headless/pkg/domain"
	"github.com/aretw0/headless/pkg/ports"
)

// Client implements ports.HTTPClient against the chat API.
type Client struct {
	cfg       Config
	endpoints Endpoints
	http      *http.Client
	logger    *slog.Logger
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

// New creates a client. It fails on an unknown env or region.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BotID == "" {
		return nil, errors.New("chatapi: bot id is required")
	}
	eps, err := cfg.endpoints()
	if err != nil {
		return nil, fmt.Errorf("chatapi: %w", err)
	}
	c := &Client{
		cfg:       cfg,
		endpoints: eps,
		// Streaming responses can be long-lived: no client-wide timeout, ctx bounds them.
		http:   &http.Client{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoints returns the resolved endpoints.
func (c *Client) Endpoints() Endpoints { return c.endpoints }

type envelope struct {
	Response *domain.MessageResponse `json:"response"`
	Meta     struct {
		Errors []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"meta"`
}

// GetNextMessage posts the conversation and decodes the full reply.
func (c *Client) GetNextMessage(ctx context.Context, req domain.MessageRequest) (*domain.MessageResponse, error) {
	start := time.Now()
	resp, err := c.post(ctx, c.endpoints.Message, req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, apiError(resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding chat api response: %w", err)
	}
	if env.Response == nil {
		return nil, &domain.APIError{StatusCode: resp.StatusCode, Message: "response is missing"}
	}

	c.logger.Debug("chat api response",
		"conversation_id", env.Response.ConversationID,
		"duration", time.Since(start),
	)
	return env.Response, nil
}

// StreamNextMessage posts the conversation and returns a handle over the SSE reply.
// The handle owns the response body and closes it once consumed.
func (c *Client) StreamNextMessage(ctx context.Context, req domain.MessageRequest) (ports.StreamHandle, error) {
	resp, err := c.post(ctx, c.endpoints.Stream, req, "text/event-stream")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}
	return &Stream{body: resp.Body, logger: c.logger}, nil
}

func (c *Client) post(ctx context.Context, endpoint string, req domain.MessageRequest, accept string) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	q := u.Query()
	q.Set("v", APIVersion)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	return resp, nil
}

// apiError extracts the error message from a non-2xx response.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var env envelope
	if json.Unmarshal(body, &env) == nil && len(env.Meta.Errors) > 0 {
		return &domain.APIError{StatusCode: resp.StatusCode, Message: env.Meta.Errors[0].Message}
	}

	msg := string(bytes.TrimSpace(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &domain.APIError{StatusCode: resp.StatusCode, Message: msg}
}

var _ ports.HTTPClient = (*Client)(nil)

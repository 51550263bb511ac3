// Package websocket provides a generic event-driven agent client. It speaks a
// small JSON frame protocol over one WebSocket connection per session.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aretw0/headless/internal/logging"
	"github.com/aretw0/headless/pkg/client"
	"github.com/aretw0/headless/pkg/domain"
)

// Frame types.
const (
	FrameInit    = "init"
	FrameResume  = "resume"
	FrameMessage = "message"
	FrameTyping  = "typing"
	FrameClose   = "close"
)

// Credential keys.
const (
	CredSessionID = "sessionId"
	CredURL       = "url"
)

// ErrNoSession is returned when a message is sent before a session exists.
var ErrNoSession = errors.New("no active agent session")

// Frame is one message of the wire protocol.
type Frame struct {
	Type      string                  `json:"type"`
	SessionID string                  `json:"sessionId,omitempty"`
	VisitorID string                  `json:"visitorId,omitempty"`
	Text      string                  `json:"text,omitempty"`
	Typing    bool                    `json:"typing,omitempty"`
	Handoff   *domain.MessageResponse `json:"handoff,omitempty"`
	Request   *domain.MessageRequest  `json:"request,omitempty"`
}

// SessionInfo is returned by Session.
type SessionInfo struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	VisitorID string `json:"visitorId"`
	Connected bool   `json:"connected"`
}

// Client is a ports.EventClient backed by a WebSocket connection.
type Client struct {
	client.Emitter

	url       string
	header    http.Header
	dialer    *websocket.Dialer
	visitorID string
	logger    *slog.Logger

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	sessionID string
}

// Option configures a Client.
type Option func(*Client)

// WithHeader sets headers sent with the handshake.
func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h.Clone() }
}

// WithDialer overrides the dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithVisitorID sets the visitor id announced to the agent desk.
func WithVisitorID(id string) Option {
	return func(c *Client) { c.visitorID = id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client that connects to url on Init.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:       url,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		visitorID: uuid.NewString(),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init opens a new session and hands it the conversation so far.
func (c *Client) Init(ctx context.Context, resp domain.MessageResponse) (domain.Credentials, error) {
	sessionID := uuid.NewString()
	if err := c.connect(ctx, c.url, Frame{
		Type:      FrameInit,
		SessionID: sessionID,
		VisitorID: c.visitorID,
		Handoff:   &resp,
	}); err != nil {
		return nil, err
	}
	return domain.Credentials{CredSessionID: sessionID, CredURL: c.url}, nil
}

// ReinitializeSession reconnects to the session described by creds.
func (c *Client) ReinitializeSession(ctx context.Context, creds domain.Credentials) error {
	sessionID, _ := creds[CredSessionID].(string)
	if sessionID == "" {
		return fmt.Errorf("credentials are missing %q", CredSessionID)
	}
	url, _ := creds[CredURL].(string)
	if url == "" {
		url = c.url
	}
	return c.connect(ctx, url, Frame{Type: FrameResume, SessionID: sessionID, VisitorID: c.visitorID})
}

func (c *Client) connect(ctx context.Context, url string, hello Frame) error {
	conn, _, err := c.dialer.DialContext(ctx, url, c.header)
	if err != nil {
		return fmt.Errorf("failed to connect to agent session: %w", err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn, c.sessionID = conn, hello.SessionID
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	if err := c.write(conn, hello); err != nil {
		c.drop(conn)
		return err
	}
	c.logger.Debug("Agent session connected", "session_id", hello.SessionID, "type", hello.Type)

	go c.readLoop(conn)
	return nil
}

// ProcessMessage forwards the latest message of req to the agent.
func (c *Client) ProcessMessage(ctx context.Context, req domain.MessageRequest) error {
	c.mu.Lock()
	conn, sessionID := c.conn, c.sessionID
	c.mu.Unlock()
	if conn == nil {
		return ErrNoSession
	}

	f := Frame{Type: FrameMessage, SessionID: sessionID, Request: &req}
	if n := len(req.Messages); n > 0 {
		f.Text = req.Messages[n-1].Text
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}
	return c.write(conn, f)
}

// Session returns the current session info.
func (c *Client) Session() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SessionInfo{ID: c.sessionID, URL: c.url, VisitorID: c.visitorID, Connected: c.conn != nil}
}

// ResetSession closes the connection without emitting a close event.
func (c *Client) ResetSession() {
	c.mu.Lock()
	conn := c.conn
	c.conn, c.sessionID = nil, ""
	c.mu.Unlock()
	if conn != nil {
		_ = c.write(conn, Frame{Type: FrameClose})
		_ = conn.Close()
	}
}

// Close detaches from the desk without ending the session, so that saved
// credentials can resume it later. No close event is emitted.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) write(conn *websocket.Conn, f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(f); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", f.Type, err)
	}
	return nil
}

// current reports whether conn is still the session connection.
func (c *Client) current(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == conn
}

// drop forgets conn if it is still current and reports whether it was.
func (c *Client) drop(conn *websocket.Conn) bool {
	c.mu.Lock()
	owned := c.conn == conn
	if owned {
		c.conn, c.sessionID = nil, ""
	}
	c.mu.Unlock()
	_ = conn.Close()
	return owned
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.current(conn) {
				return
			}
			c.logger.Warn("Agent session disconnected", "err", err)
			if c.drop(conn) {
				c.EmitClose()
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("Ignoring malformed agent frame", "err", err)
			continue
		}

		switch f.Type {
		case FrameMessage:
			c.EmitMessage(f.Text)
		case FrameTyping:
			c.EmitTyping(f.Typing)
		case FrameClose:
			if c.drop(conn) {
				c.EmitClose()
			}
			return
		default:
			c.logger.Debug("Ignoring unknown agent frame", "type", f.Type)
		}
	}
}

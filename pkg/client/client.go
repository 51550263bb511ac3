// Package client provides the tagged union over the two chat client variants
// and a small event registry for event-driven client implementations.
package client

import (
	"fmt"

	"github.com/aretw0/headless/pkg/ports"
)

// Kind discriminates the variants of Client.
type Kind int

const (
	KindNone Kind = iota
	KindHTTP
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindEvent:
		return "event"
	default:
		return "none"
	}
}

// Client is either a request/response client or an event-driven client.
// The zero value is the absent client.
type Client struct {
	kind  Kind
	http  ports.HTTPClient
	event ports.EventClient
}

// FromHTTP wraps a request/response client. A nil client yields the absent client.
func FromHTTP(c ports.HTTPClient) Client {
	if c == nil {
		return Client{}
	}
	return Client{kind: KindHTTP, http: c}
}

// FromEvent wraps an event-driven client. A nil client yields the absent client.
func FromEvent(c ports.EventClient) Client {
	if c == nil {
		return Client{}
	}
	return Client{kind: KindEvent, event: c}
}

// Kind returns the variant held by c.
func (c Client) Kind() Kind { return c.kind }

// IsZero reports whether c holds no client.
func (c Client) IsZero() bool { return c.kind == KindNone }

// AsHTTP returns the request/response client, if c holds one.
func (c Client) AsHTTP() (ports.HTTPClient, bool) {
	return c.http, c.kind == KindHTTP
}

// AsEvent returns the event-driven client, if c holds one.
func (c Client) AsEvent() (ports.EventClient, bool) {
	return c.event, c.kind == KindEvent
}

func (c Client) String() string {
	switch c.kind {
	case KindHTTP:
		return fmt.Sprintf("http(%T)", c.http)
	case KindEvent:
		return fmt.Sprintf("event(%T)", c.event)
	default:
		return "none"
	}
}

package domain

import (
	"context"
	"time"
)

// ClientKind names the slot of a chat client inside the orchestrator.
type ClientKind string

const (
	ClientBot   ClientKind = "bot"
	ClientAgent ClientKind = "agent"
)

// EventBase contains common fields for all lifecycle events.
type EventBase struct {
	Timestamp time.Time  `json:"timestamp"`
	Client    ClientKind `json:"client"`
}

// RequestEvent is emitted before a message is handed to a client.
type RequestEvent struct {
	EventBase
	Text      string `json:"text,omitempty"`
	Streaming bool   `json:"streaming,omitempty"`
}

// ResponseEvent is emitted once a response has been applied to state.
type ResponseEvent struct {
	EventBase
	ConversationID string        `json:"conversation_id,omitempty"`
	ResponseID     string        `json:"response_id,omitempty"`
	Streaming      bool          `json:"streaming,omitempty"`
	Tokens         int           `json:"tokens,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// HandoffEvent is emitted after every handoff attempt.
type HandoffEvent struct {
	EventBase
	To      ClientKind `json:"to"`
	Resumed bool       `json:"resumed,omitempty"`
	Err     error      `json:"-"`
}

// ErrorKind classifies failures surfaced by the pipeline.
type ErrorKind string

const (
	ErrorBusy      ErrorKind = "busy"
	ErrorTransport ErrorKind = "transport"
	ErrorStream    ErrorKind = "stream"
	ErrorHandoff   ErrorKind = "handoff"
)

// ErrorEvent is emitted for every failure, including the ones that are only logged.
type ErrorEvent struct {
	EventBase
	Kind ErrorKind `json:"kind"`
	Err  error     `json:"-"`
}

// LifecycleHooks defines callbacks for conversation observability.
type LifecycleHooks struct {
	OnRequest  func(context.Context, *RequestEvent)
	OnResponse func(context.Context, *ResponseEvent)
	OnHandoff  func(context.Context, *HandoffEvent)
	OnError    func(context.Context, *ErrorEvent)
}

// Merge chains two sets of hooks. Hooks of h run before hooks of other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnRequest:  chain(h.OnRequest, other.OnRequest),
		OnResponse: chain(h.OnResponse, other.OnResponse),
		OnHandoff:  chain(h.OnHandoff, other.OnHandoff),
		OnError:    chain(h.OnError, other.OnError),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

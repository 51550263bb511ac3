package ports

import (
	"context"

	"github.com/aretw0/headless/pkg/domain"
)

// HTTPClient is a request/response chat client. The default bot client is one.
type HTTPClient interface {
	// GetNextMessage sends the conversation and waits for the full reply.
	GetNextMessage(ctx context.Context, req domain.MessageRequest) (*domain.MessageResponse, error)

	// StreamNextMessage sends the conversation and returns a handle over the
	// streamed reply. Implementations that cannot stream return
	// domain.ErrStreamingUnsupported.
	StreamNextMessage(ctx context.Context, req domain.MessageRequest) (StreamHandle, error)
}

// StreamHandle delivers the events of one streamed reply.
type StreamHandle interface {
	// Consume calls fn for every event in order and returns once the stream is
	// exhausted, fn returns an error, or ctx is done.
	Consume(ctx context.Context, fn func(domain.StreamEvent) error) error
}

// EventListener receives the asynchronous events of an EventClient.
// Nil fields are ignored.
type EventListener struct {
	OnMessage func(text string)
	OnTyping  func(typing bool)
	OnClose   func()
}

// EventClient is an event-driven chat client, typically a live-agent session.
// Replies are not returned from ProcessMessage; they arrive as message events.
// Events must not be emitted synchronously from Init, ResetSession or
// ReinitializeSession: a close event triggers a handoff, which waits for the
// handoff in progress.
type EventClient interface {
	// Init starts a new session from the conversation so far and returns the
	// credentials needed to resume it later.
	Init(ctx context.Context, resp domain.MessageResponse) (domain.Credentials, error)

	// Subscribe registers a listener. Listeners fire in registration order.
	Subscribe(l EventListener)

	ProcessMessage(ctx context.Context, req domain.MessageRequest) error

	// Session returns an implementation-defined view of the current session.
	Session() any

	// ResetSession drops the current session.
	ResetSession()

	// ReinitializeSession resumes a session from saved credentials.
	ReinitializeSession(ctx context.Context, creds domain.Credentials) error
}

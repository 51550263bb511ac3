package domain

// StreamEventKind identifies the kind of a streamed event.
type StreamEventKind string

const (
	StreamStart StreamEventKind = "startTokenStream"
	StreamToken StreamEventKind = "streamToken"
	StreamEnd   StreamEventKind = "endStream"
)

// StreamEvent is one ordered event of a streamed response.
type StreamEvent struct {
	Kind StreamEventKind

	// Notes is set on start events.
	Notes Notes

	// Token is set on token events.
	Token string

	// Response is set on end events.
	Response *MessageResponse
}

package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key cannot be found in a store.
var ErrNotFound = errors.New("not found")

// ErrBusy is reported to lifecycle hooks when a message is rejected because
// another one is still being processed. It is never returned to callers.
var ErrBusy = errors.New("unable to process new message at the moment: another message is still being processed")

// ErrNoNextClient is reported to lifecycle hooks when a handoff has no target.
var ErrNoNextClient = errors.New("no next client available for handoff")

// ErrStreamingUnsupported is returned when a stream is requested while the
// active client is event-driven.
var ErrStreamingUnsupported = errors.New("streamNextMessage is not supported by the active client")

// ErrMissingStreamEnd is matched by StreamError via errors.Is.
var ErrMissingStreamEnd = errors.New("missing full message response at end of stream")

// APIError is returned by the default chat and analytics clients when the
// backend answers with a non-success status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("api error: %s", e.Message)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// StreamError reports a stream that was consumed without a terminal event.
// It is a distinct kind from transport failures.
type StreamError struct {
	ConversationID string
	Tokens         int
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error: %s (tokens received: %d)", ErrMissingStreamEnd.Error(), e.Tokens)
}

// Is makes errors.Is(err, ErrMissingStreamEnd) succeed.
func (e *StreamError) Is(target error) bool {
	return target == ErrMissingStreamEnd
}

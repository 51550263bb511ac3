package chatapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/headless/pkg/domain"
)

// Stream is a ports.StreamHandle over a Server-Sent Events body.
type Stream struct {
	body   io.ReadCloser
	logger *slog.Logger
	once   sync.Once
}

// NewStream wraps an SSE body. It is exported for clients that reach the
// stream endpoint through their own transport.
func NewStream(body io.ReadCloser, logger *slog.Logger) *Stream {
	return &Stream{body: body, logger: logger}
}

type tokenData struct {
	Token string `json:"token"`
}

// Consume reads events until the body is exhausted and calls fn for each
// recognized one. Unknown events are skipped. The body is closed on return.
func (s *Stream) Consume(ctx context.Context, fn func(domain.StreamEvent) error) error {
	defer s.close()

	// Closing the body unblocks a pending read when ctx is cancelled.
	stop := context.AfterFunc(ctx, s.close)
	defer stop()

	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var eventType string
	var dataLines []string

	dispatch := func() error {
		defer func() {
			eventType = ""
			dataLines = nil
		}()
		if eventType == "" {
			return nil
		}
		ev, ok, err := decodeEvent(eventType, strings.Join(dataLines, "\n"))
		if err != nil {
			return err
		}
		if !ok {
			if s.logger != nil {
				s.logger.Debug("skipping unknown stream event", "event", eventType)
			}
			return nil
		}
		return fn(ev)
	}

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	// A final event without a trailing blank line is still delivered.
	return dispatch()
}

func (s *Stream) close() {
	s.once.Do(func() { _ = s.body.Close() })
}

func decodeEvent(kind, data string) (domain.StreamEvent, bool, error) {
	ev := domain.StreamEvent{Kind: domain.StreamEventKind(kind)}
	switch ev.Kind {
	case domain.StreamStart:
		if strings.TrimSpace(data) != "" {
			if err := json.Unmarshal([]byte(data), &ev.Notes); err != nil {
				return ev, false, fmt.Errorf("decoding %s event: %w", kind, err)
			}
		}
	case domain.StreamToken:
		var td tokenData
		if err := json.Unmarshal([]byte(data), &td); err != nil {
			return ev, false, fmt.Errorf("decoding %s event: %w", kind, err)
		}
		ev.Token = td.Token
	case domain.StreamEnd:
		var resp domain.MessageResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			return ev, false, fmt.Errorf("decoding %s event: %w", kind, err)
		}
		ev.Response = &resp
	default:
		return ev, false, nil
	}
	return ev, true, nil
}

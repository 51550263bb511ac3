package runtime_test

import (
	"context"
	"sync"

	"github.com/aretw0/headless/pkg/client"
	"github.com/aretw0/headless/pkg/domain"
	"github.com/aretw0/headless/pkg/ports"
)

type fakeBot struct {
	mu       sync.Mutex
	requests []domain.MessageRequest

	reply     func(ctx context.Context, req domain.MessageRequest) (*domain.MessageResponse, error)
	stream    []domain.StreamEvent
	streamErr error
}

func (b *fakeBot) GetNextMessage(ctx context.Context, req domain.MessageRequest) (*domain.MessageResponse, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	return b.reply(ctx, req)
}

func (b *fakeBot) StreamNextMessage(ctx context.Context, req domain.MessageRequest) (ports.StreamHandle, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	if b.streamErr != nil {
		return brokenStream{events: b.stream, err: b.streamErr}, nil
	}
	return fakeStream(b.stream), nil
}

func (b *fakeBot) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

type fakeStream []domain.StreamEvent

func (s fakeStream) Consume(ctx context.Context, fn func(domain.StreamEvent) error) error {
	for _, ev := range s {
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

// brokenStream delivers its events, then fails like a dropped connection.
type brokenStream struct {
	events fakeStream
	err    error
}

func (s brokenStream) Consume(ctx context.Context, fn func(domain.StreamEvent) error) error {
	if err := s.events.Consume(ctx, fn); err != nil {
		return err
	}
	return s.err
}

type fakeAgent struct {
	client.Emitter

	mu         sync.Mutex
	inits      []domain.MessageResponse
	reinits    []domain.Credentials
	processed  []domain.MessageRequest
	resets     int
	creds      domain.Credentials
	initErr    error
	reinitErr  error
	processErr error
}

func (a *fakeAgent) Init(ctx context.Context, resp domain.MessageResponse) (domain.Credentials, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inits = append(a.inits, resp)
	if a.initErr != nil {
		return nil, a.initErr
	}
	return a.creds, nil
}

func (a *fakeAgent) ProcessMessage(ctx context.Context, req domain.MessageRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.processed = append(a.processed, req)
	return a.processErr
}

func (a *fakeAgent) Session() any { return nil }

func (a *fakeAgent) ResetSession() {
	a.mu.Lock()
	a.resets++
	a.mu.Unlock()
}

func (a *fakeAgent) ReinitializeSession(ctx context.Context, creds domain.Credentials) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reinits = append(a.reinits, creds)
	return a.reinitErr
}

type fakeReporter struct {
	mu     sync.Mutex
	events []domain.AnalyticsEvent
}

func (r *fakeReporter) Report(ctx context.Context, ev domain.AnalyticsEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func reply(text string) func(context.Context, domain.MessageRequest) (*domain.MessageResponse, error) {
	return func(ctx context.Context, req domain.MessageRequest) (*domain.MessageResponse, error) {
		return &domain.MessageResponse{
			ConversationID: "conv-1",
			Message: domain.Message{
				Text:       text,
				Source:     domain.SourceBot,
				Timestamp:  "2024-01-01T00:00:00.000Z",
				ResponseID: "resp-1",
			},
			Notes: domain.Notes{"currentGoal": "GREET"},
		}, nil
	}
}

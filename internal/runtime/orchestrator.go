package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/headless/internal/logging"
	"github.com/aretw0/headless/pkg/client"
	"github.com/aretw0/headless/pkg/domain"
	"github.com/aretw0/headless/pkg/persistence"
	"github.com/aretw0/headless/pkg/ports"
	"github.com/aretw0/headless/pkg/state"
)

// Reporter receives the analytics events produced by the pipeline.
type Reporter interface {
	Report(ctx context.Context, ev domain.AnalyticsEvent) error
}

// Orchestrator routes user messages to the active chat client and hands the
// conversation over between the bot and the agent.
type Orchestrator struct {
	store       *state.Store
	bot         client.Client
	agent       client.Client
	credentials *persistence.CredentialStore
	reporter    Reporter
	hooks       domain.LifecycleHooks
	logger      *slog.Logger

	// handoffMu serializes handoff and restart transitions.
	handoffMu sync.Mutex

	mu     sync.RWMutex
	active domain.ClientKind
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAgent sets the client the conversation is handed off to.
func WithAgent(c client.Client) Option {
	return func(o *Orchestrator) { o.agent = c }
}

// WithCredentials sets where handoff credentials are kept.
func WithCredentials(c *persistence.CredentialStore) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.credentials = c
		}
	}
}

// WithReporter sets the analytics reporter.
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithLifecycleHooks sets the lifecycle hooks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(o *Orchestrator) { o.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an orchestrator over store with bot as the default client.
// Event clients in either slot are subscribed immediately.
func New(store *state.Store, bot client.Client, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if bot.IsZero() {
		return nil, errors.New("bot client is required")
	}

	o := &Orchestrator{
		store:       store,
		bot:         bot,
		credentials: persistence.NewCredentialStore("", nil),
		logger:      logging.NewNop(),
		active:      domain.ClientBot,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.bind(domain.ClientBot, o.bot)
	o.bind(domain.ClientAgent, o.agent)
	return o, nil
}

func (o *Orchestrator) bind(kind domain.ClientKind, c client.Client) {
	ev, ok := c.AsEvent()
	if !ok {
		return
	}
	source := domain.SourceAgent
	if kind == domain.ClientBot {
		source = domain.SourceBot
	}
	ev.Subscribe(ports.EventListener{
		OnMessage: func(text string) {
			o.store.Dispatch(state.AddMessage(domain.NewMessage(text, source)))
		},
		OnTyping: func(typing bool) {
			o.store.Dispatch(state.SetLoading(typing))
		},
		OnClose: func() {
			o.handoff(context.Background(), nil)
		},
	})
}

// ActiveClient returns the slot currently receiving messages.
func (o *Orchestrator) ActiveClient() domain.ClientKind {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active
}

// Client returns the client configured for kind. It is the zero Client when
// the slot is empty.
func (o *Orchestrator) Client(kind domain.ClientKind) client.Client {
	if kind == domain.ClientAgent {
		return o.agent
	}
	return o.bot
}

func (o *Orchestrator) setActive(kind domain.ClientKind) {
	o.mu.Lock()
	o.active = kind
	o.mu.Unlock()
}

func (o *Orchestrator) tryAcquire() bool {
	return o.store.DispatchIf(func(s domain.State) bool {
		return s.Conversation.CanSendMessage
	}, state.Batch{state.SetCanSendMessage(false), state.SetLoading(true)})
}

func (o *Orchestrator) release() {
	o.store.Dispatch(state.Batch{state.SetCanSendMessage(true), state.SetLoading(false)})
}

func (o *Orchestrator) rejectBusy(ctx context.Context, kind domain.ClientKind) {
	o.logger.Warn("Unable to process new message at the moment. Another message is still being processed.")
	o.emitError(ctx, kind, domain.ErrorBusy, domain.ErrBusy)
}

// GetNextMessage sends text to the active client and applies its reply.
// It returns (nil, nil) when another message is still being processed and
// always returns a nil response for event clients, whose replies arrive as
// message events.
func (o *Orchestrator) GetNextMessage(ctx context.Context, text string, source domain.MessageSource) (*domain.MessageResponse, error) {
	resp, _, err := o.SendMessage(ctx, text, source, false)
	return resp, err
}

// StreamNextMessage sends text to the active client and applies the streamed
// reply token by token. Only request/response clients support streaming.
func (o *Orchestrator) StreamNextMessage(ctx context.Context, text string, source domain.MessageSource) (*domain.MessageResponse, error) {
	resp, _, err := o.SendMessage(ctx, text, source, true)
	return resp, err
}

// SendMessage is GetNextMessage, or StreamNextMessage when stream is set,
// that also reports whether the message was accepted. It is false only when
// another message was still being processed.
func (o *Orchestrator) SendMessage(ctx context.Context, text string, source domain.MessageSource, stream bool) (*domain.MessageResponse, bool, error) {
	kind := o.ActiveClient()
	active := o.Client(kind)

	if ev, ok := active.AsEvent(); ok {
		if stream {
			return nil, false, domain.ErrStreamingUnsupported
		}
		accepted, err := o.sendToEventClient(ctx, kind, ev, text, source)
		return nil, accepted, err
	}

	httpc, _ := active.AsHTTP()
	call := o.requestCall(ctx, httpc)
	if stream {
		call = o.streamCall(ctx, httpc)
	}
	return o.exchange(ctx, kind, text, source, stream, call)
}

func (o *Orchestrator) requestCall(ctx context.Context, httpc ports.HTTPClient) exchangeFunc {
	return func(req domain.MessageRequest, _ []domain.Message) (*domain.MessageResponse, int, error) {
		resp, err := httpc.GetNextMessage(ctx, req)
		if err != nil {
			return nil, 0, err
		}
		if resp == nil {
			return nil, 0, errors.New("chat client returned no response")
		}
		o.store.Dispatch(state.SetConversationID(resp.ConversationID))
		o.store.Dispatch(state.AddMessage(resp.Message))
		o.store.Dispatch(state.SetNotes(resp.Notes))
		return resp, 0, nil
	}
}

func (o *Orchestrator) streamCall(ctx context.Context, httpc ports.HTTPClient) exchangeFunc {
	return func(req domain.MessageRequest, base []domain.Message) (*domain.MessageResponse, int, error) {
		handle, err := httpc.StreamNextMessage(ctx, req)
		if err != nil {
			return nil, 0, err
		}

		var (
			final  *domain.MessageResponse
			tokens int
			next   = domain.Message{Source: domain.SourceBot}
		)
		err = handle.Consume(ctx, func(ev domain.StreamEvent) error {
			switch ev.Kind {
			case domain.StreamStart:
				o.store.Dispatch(state.SetLoading(false))
				o.store.Dispatch(state.SetNotes(ev.Notes))
			case domain.StreamToken:
				tokens++
				next.Text += ev.Token
				o.store.Dispatch(state.SetMessages(withMessage(base, next)))
			case domain.StreamEnd:
				if ev.Response == nil {
					return nil
				}
				final = ev.Response
				o.store.Dispatch(state.SetConversationID(final.ConversationID))
				o.store.Dispatch(state.SetMessages(withMessage(base, final.Message)))
			}
			return nil
		})
		if err != nil {
			return nil, tokens, err
		}
		if final == nil {
			return nil, tokens, &domain.StreamError{ConversationID: req.ConversationID, Tokens: tokens}
		}
		return final, tokens, nil
	}
}

type exchangeFunc func(req domain.MessageRequest, base []domain.Message) (*domain.MessageResponse, int, error)

func (o *Orchestrator) exchange(ctx context.Context, kind domain.ClientKind, text string, source domain.MessageSource, streaming bool, call exchangeFunc) (*domain.MessageResponse, bool, error) {
	if !o.tryAcquire() {
		o.rejectBusy(ctx, kind)
		return nil, false, nil
	}

	if text != "" {
		o.store.Dispatch(state.AddMessage(domain.NewMessage(text, source)))
	}
	st := o.store.GetState()
	req := domain.NewRequest(st)

	o.emitRequest(ctx, kind, text, streaming)
	start := time.Now()

	resp, tokens, err := call(req, st.Conversation.Messages)
	if err != nil {
		o.release()
		errKind := domain.ErrorTransport
		var streamErr *domain.StreamError
		if errors.As(err, &streamErr) {
			errKind = domain.ErrorStream
		}
		o.emitError(ctx, kind, errKind, err)
		return nil, true, err
	}

	o.report(ctx, domain.AnalyticsEvent{
		Action:    domain.ActionChatResponse,
		Timestamp: resp.Message.Timestamp,
		Chat: domain.ChatProps{
			ConversationID: resp.ConversationID,
			ResponseID:     resp.Message.ResponseID,
		},
	})
	o.release()

	if o.hooks.OnResponse != nil {
		o.hooks.OnResponse(ctx, &domain.ResponseEvent{
			EventBase:      o.eventBase(kind),
			ConversationID: resp.ConversationID,
			ResponseID:     resp.Message.ResponseID,
			Streaming:      streaming,
			Tokens:         tokens,
			Duration:       time.Since(start),
		})
	}

	if resp.HasIntegrationDetails() {
		o.handoff(ctx, resp.IntegrationDetails)
	}
	return resp, true, nil
}

// sendToEventClient forwards the message without touching the send flags.
// The agent's typing events drive the loading indicator instead.
func (o *Orchestrator) sendToEventClient(ctx context.Context, kind domain.ClientKind, ev ports.EventClient, text string, source domain.MessageSource) (bool, error) {
	if !o.store.GetState().Conversation.CanSendMessage {
		o.rejectBusy(ctx, kind)
		return false, nil
	}
	if text != "" {
		o.store.Dispatch(state.AddMessage(domain.NewMessage(text, source)))
	}
	req := domain.NewRequest(o.store.GetState())

	o.emitRequest(ctx, kind, text, false)
	if err := ev.ProcessMessage(ctx, req); err != nil {
		o.emitError(ctx, kind, domain.ErrorTransport, err)
		return true, err
	}
	return true, nil
}

func (o *Orchestrator) report(ctx context.Context, ev domain.AnalyticsEvent) {
	if o.reporter == nil {
		return
	}
	// The reporter logs its own failures; a send never fails because of analytics.
	_ = o.reporter.Report(ctx, ev)
}

// Resume restores an agent session from saved credentials, if any.
func (o *Orchestrator) Resume(ctx context.Context) bool {
	if _, ok := o.agent.AsEvent(); !ok {
		return false
	}
	if o.ActiveClient() != domain.ClientBot {
		return false
	}
	if _, ok := o.credentials.Load(ctx); !ok {
		return false
	}
	return o.handoff(ctx, nil)
}

// Handoff switches to the other client. It is exported for consumers that
// need to trigger a transfer themselves.
func (o *Orchestrator) Handoff(ctx context.Context, details domain.IntegrationDetails) bool {
	return o.handoff(ctx, details)
}

// handoff moves the conversation to the other slot. Failures are logged and
// reported to the hooks; they are never returned.
func (o *Orchestrator) handoff(ctx context.Context, details domain.IntegrationDetails) bool {
	o.handoffMu.Lock()
	defer o.handoffMu.Unlock()

	from := o.ActiveClient()
	to := domain.ClientAgent
	if from == domain.ClientAgent {
		to = domain.ClientBot
	}

	next := o.Client(to)
	if next.IsZero() {
		o.logger.Warn("No next client available for handoff.", "from", from)
		o.emitHandoff(ctx, from, to, false, domain.ErrNoNextClient)
		return false
	}

	// Saved credentials belong to the client being left.
	if _, ok := o.Client(from).AsEvent(); ok {
		o.clearCredentials(ctx)
	}

	resumed := false
	if ev, ok := next.AsEvent(); ok {
		var err error
		resumed, err = o.startEventClient(ctx, ev, details)
		if err != nil {
			o.logger.Error("Error occurred while initializing next client", "to", to, "err", err)
			o.emitError(ctx, from, domain.ErrorHandoff, err)
			o.emitHandoff(ctx, from, to, false, err)
			return false
		}
	}

	o.setActive(to)
	o.logger.Debug("Handoff completed", "from", from, "to", to, "resumed", resumed)
	o.emitHandoff(ctx, from, to, resumed, nil)
	return true
}

// startEventClient reinitializes a saved session or starts a new one.
func (o *Orchestrator) startEventClient(ctx context.Context, ev ports.EventClient, details domain.IntegrationDetails) (bool, error) {
	if creds, ok := o.credentials.Load(ctx); ok {
		o.store.Dispatch(state.SetCanSendMessage(false))
		err := ev.ReinitializeSession(ctx, creds)
		o.store.Dispatch(state.SetCanSendMessage(true))
		if err != nil {
			// The saved session is unusable; the next handoff starts a new one.
			o.clearCredentials(ctx)
			return false, fmt.Errorf("failed to reinitialize session: %w", err)
		}
		return true, nil
	}

	creds, err := ev.Init(ctx, o.initPayload(details))
	if err != nil {
		return false, err
	}
	if creds != nil {
		if err := o.credentials.Save(ctx, creds); err != nil {
			o.logger.Warn("Failed to save handoff credentials", "err", err)
		}
	}
	return false, nil
}

func (o *Orchestrator) initPayload(details domain.IntegrationDetails) domain.MessageResponse {
	conv := o.store.GetState().Conversation
	last, ok := conv.LastMessage()
	if !ok {
		last = domain.Message{Source: domain.SourceBot}
	}
	notes := conv.Notes
	if notes == nil {
		notes = domain.Notes{}
	}
	return domain.MessageResponse{
		ConversationID:     conv.ConversationID,
		Message:            last,
		Notes:              notes,
		IntegrationDetails: details,
	}
}

// Restart returns to the bot and clears the conversation.
func (o *Orchestrator) Restart(ctx context.Context) {
	o.handoffMu.Lock()
	o.clearCredentials(ctx)
	if ev, ok := o.Client(o.ActiveClient()).AsEvent(); ok {
		ev.ResetSession()
	}
	if o.agent.IsZero() {
		o.logger.Warn("No next client available during conversation reset.")
	}
	o.setActive(domain.ClientBot)
	o.handoffMu.Unlock()

	o.store.Dispatch(state.Batch{
		state.SetConversationID(""),
		state.SetLoading(false),
		state.SetCanSendMessage(true),
		state.SetNotes(domain.Notes{}),
		state.SetMessages(nil),
		state.SetSuggestions(nil),
	})
}

func (o *Orchestrator) clearCredentials(ctx context.Context) {
	if err := o.credentials.Clear(ctx); err != nil {
		o.logger.Warn("Failed to clear handoff credentials", "err", err)
	}
}

func withMessage(base []domain.Message, m domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(base)+1)
	out = append(out, base...)
	return append(out, m)
}

func (o *Orchestrator) eventBase(kind domain.ClientKind) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now(), Client: kind}
}

func (o *Orchestrator) emitRequest(ctx context.Context, kind domain.ClientKind, text string, streaming bool) {
	if o.hooks.OnRequest != nil {
		o.hooks.OnRequest(ctx, &domain.RequestEvent{EventBase: o.eventBase(kind), Text: text, Streaming: streaming})
	}
}

func (o *Orchestrator) emitError(ctx context.Context, kind domain.ClientKind, errKind domain.ErrorKind, err error) {
	if o.hooks.OnError != nil {
		o.hooks.OnError(ctx, &domain.ErrorEvent{EventBase: o.eventBase(kind), Kind: errKind, Err: err})
	}
}

func (o *Orchestrator) emitHandoff(ctx context.Context, from, to domain.ClientKind, resumed bool, err error) {
	if o.hooks.OnHandoff != nil {
		o.hooks.OnHandoff(ctx, &domain.HandoffEvent{EventBase: o.eventBase(from), To: to, Resumed: resumed, Err: err})
	}
}

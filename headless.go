package headless

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/headless/internal/logging"
	"github.com/aretw0/headless/internal/runtime"
	"github.com/aretw0/headless/pkg/adapters/analyticsapi"
	"github.com/aretw0/headless/pkg/adapters/chatapi"
	"github.com/aretw0/headless/pkg/adapters/file"
	"github.com/aretw0/headless/pkg/adapters/memory"
	"github.com/aretw0/headless/pkg/analytics"
	"github.com/aretw0/headless/pkg/client"
	"github.com/aretw0/headless/pkg/domain"
	"github.com/aretw0/headless/pkg/persistence"
	"github.com/aretw0/headless/pkg/persistence/middleware"
	"github.com/aretw0/headless/pkg/ports"
	"github.com/aretw0/headless/pkg/state"
)

// Headless is a stateful chat conversation. It is safe for concurrent use.
type Headless struct {
	cfg          Config
	store        *state.Store
	orchestrator *runtime.Orchestrator
	reporter     *analytics.Reporter
	persister    *persistence.Persister
	unbind       state.Unsubscribe
	logger       *slog.Logger
}

// Option defines a functional option for configuring Headless.
type Option func(*options)

type options struct {
	bot, agent  client.Client
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	durable     ports.KeyValueStore
	durableSet  bool
	session     ports.KeyValueStore
	sessionSet  bool
	credentials ports.KeyValueStore
	credsSet    bool
	middlewares []middleware.Middleware
	locker      ports.DistributedLocker
	analytics   ports.AnalyticsClient
	httpClient  *http.Client
}

// WithBotClient replaces the default chat API client.
func WithBotClient(c client.Client) Option {
	return func(o *options) { o.bot = c }
}

// WithAgentClient sets the client the conversation is handed off to.
func WithAgentClient(c client.Client) Option {
	return func(o *options) { o.agent = c }
}

// WithLogger sets the logger used by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls chain.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(o *options) { o.hooks = o.hooks.Merge(h) }
}

// WithDurableStore replaces the store of the durable policy. A nil store
// disables the policy.
func WithDurableStore(s ports.KeyValueStore) Option {
	return func(o *options) { o.durable, o.durableSet = s, true }
}

// WithSessionStore replaces the store of the session policy and, unless
// WithCredentialStore is given, of the handoff credentials. A nil store
// disables both.
func WithSessionStore(s ports.KeyValueStore) Option {
	return func(o *options) { o.session, o.sessionSet = s, true }
}

// WithCredentialStore keeps the handoff credentials in s instead of the
// session store, for processes whose session store does not outlive them.
// Credentials that no longer resume a session are dropped on the next handoff.
func WithCredentialStore(s ports.KeyValueStore) Option {
	return func(o *options) { o.credentials, o.credsSet = s, true }
}

// WithStoreMiddleware wraps both persistence stores. The first middleware
// listed is the outermost.
func WithStoreMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithLocker serializes persistence writes across processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(o *options) { o.locker = l }
}

// WithAnalyticsClient replaces the default analytics client.
func WithAnalyticsClient(c ports.AnalyticsClient) Option {
	return func(o *options) { o.analytics = c }
}

// WithHTTPClient sets the *http.Client used by the default clients.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) { o.httpClient = h }
}

// New creates a conversation for cfg. Persisted state is restored, and a
// saved agent session is resumed, before New returns.
func New(cfg Config, opts ...Option) (*Headless, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("bot_id", cfg.BotID)

	if o.bot.IsZero() {
		bot, err := chatapi.New(chatapi.Config{
			BotID:     cfg.BotID,
			APIKey:    cfg.APIKey,
			Env:       cfg.Env,
			Region:    cfg.Region,
			Endpoints: cfg.Endpoints,
		}, chatapi.WithHTTPClient(o.httpClient), chatapi.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create chat client: %w", err)
		}
		o.bot = client.FromHTTP(bot)
	}

	if o.analytics == nil {
		ac, err := analyticsapi.New(analyticsapi.Config{
			APIKey:   cfg.APIKey,
			Env:      string(cfg.Env),
			Region:   string(cfg.Region),
			Endpoint: cfg.AnalyticsConfig.Endpoint,
		}, analyticsapi.WithHTTPClient(o.httpClient), analyticsapi.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create analytics client: %w", err)
		}
		o.analytics = ac
	}

	h := &Headless{
		cfg:    cfg,
		store:  state.NewStore(domain.NewState(), state.WithLogger(logger)),
		logger: logger,
	}

	ctx := context.Background()
	credentials := h.initPersistence(ctx, o)

	h.reporter = analytics.New(o.analytics, cfg.BotID,
		analytics.WithBasePayload(cfg.AnalyticsConfig.BaseEventPayload),
		analytics.WithSessionTracking(*cfg.AnalyticsConfig.SessionTrackingEnabled),
		analytics.WithConversationID(func() string { return h.store.GetState().Conversation.ConversationID }),
		analytics.WithSDKVersion(strings.TrimSpace(Version)),
		analytics.WithLogger(logger),
	)

	orch, err := runtime.New(h.store, o.bot,
		runtime.WithAgent(o.agent),
		runtime.WithCredentials(credentials),
		runtime.WithReporter(h.reporter),
		runtime.WithLifecycleHooks(o.hooks),
		runtime.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	h.orchestrator = orch
	orch.Resume(ctx)
	return h, nil
}

// initPersistence restores the saved conversation, binds the persister and
// returns the credential store for handoffs.
func (h *Headless) initPersistence(ctx context.Context, o options) *persistence.CredentialStore {
	hostname, err := persistence.ResolveHostname(h.cfg.Hostname)
	if err != nil {
		h.logger.Warn("Persistence disabled, keeping state in memory", "err", err)
		return nil
	}

	durable := o.durable
	if !o.durableSet {
		durable = file.New(file.DefaultPath())
	}
	session := o.session
	if !o.sessionSet {
		session = memory.NewStore()
	}
	wrap := func(s ports.KeyValueStore) ports.KeyValueStore {
		if s == nil {
			return nil
		}
		return middleware.Chain(s, o.middlewares...)
	}
	durable, session = wrap(durable), wrap(session)

	pOpts := []persistence.Option{persistence.WithLogger(h.logger), persistence.WithLocker(o.locker)}

	var policies []persistence.Policy
	if *h.cfg.SaveToSessionStorage {
		if session == nil {
			h.logger.Warn("Session storage requested but no session store is available")
		} else {
			policies = append(policies, persistence.Session(session))
		}
	}
	if *h.cfg.SaveToLocalStorage {
		if durable == nil {
			h.logger.Warn("Local storage requested but no durable store is available")
		} else {
			policies = append(policies, persistence.Durable(durable))
		}
	}

	if len(policies) > 0 {
		h.persister = persistence.NewPersister(
			persistence.Key(persistence.StateNamespace, hostname, h.cfg.BotID), policies, pOpts...)
		if conv, ok := h.persister.Load(ctx); ok {
			h.store.Dispatch(state.ReplaceConversation(conv))
		}
		h.unbind = h.persister.Bind(ctx, h.store)
	}

	creds := session
	if o.credsSet {
		creds = wrap(o.credentials)
	}
	return persistence.NewCredentialStore(
		persistence.Key(persistence.CredentialsNamespace, hostname, h.cfg.BotID), creds, pOpts...)
}

// Close stops persisting state changes. The conversation stays usable in memory.
func (h *Headless) Close() error {
	if h.unbind != nil {
		h.unbind()
	}
	return nil
}

// Config returns the effective configuration.
func (h *Headless) Config() Config { return h.cfg }

// State returns a copy of the current state.
func (h *Headless) State() domain.State { return h.store.GetState() }

// SetState replaces the whole state.
func (h *Headless) SetState(s domain.State) { h.store.SetState(s) }

// SetContext replaces the consumer context sent with every request.
func (h *Headless) SetContext(ctx any) { h.store.Dispatch(state.SetContext{Context: ctx}) }

// SetMessages replaces the message list.
func (h *Headless) SetMessages(msgs []domain.Message) { h.store.Dispatch(state.SetMessages(msgs)) }

// AddMessage appends a message.
func (h *Headless) AddMessage(m domain.Message) { h.store.Dispatch(state.AddMessage(m)) }

// SetMessageNotes replaces the notes.
func (h *Headless) SetMessageNotes(n domain.Notes) { h.store.Dispatch(state.SetNotes(n)) }

// SetMessageSuggestions replaces the message suggestions.
func (h *Headless) SetMessageSuggestions(s []string) { h.store.Dispatch(state.SetSuggestions(s)) }

// SetChatLoadingStatus sets the loading flag.
func (h *Headless) SetChatLoadingStatus(loading bool) { h.store.Dispatch(state.SetLoading(loading)) }

// SetCanSendMessage sets the send flag.
func (h *Headless) SetCanSendMessage(can bool) { h.store.Dispatch(state.SetCanSendMessage(can)) }

// AddListener registers l. See state.Watch for a typed variant.
func (h *Headless) AddListener(l state.Listener) state.Unsubscribe { return h.store.AddListener(l) }

// GetNextMessage sends text to the active client. It returns (nil, nil) when
// another message is still being processed, and a nil response when an agent
// is connected: agent replies arrive as state updates.
func (h *Headless) GetNextMessage(ctx context.Context, text string, source domain.MessageSource) (*domain.MessageResponse, error) {
	return h.orchestrator.GetNextMessage(ctx, text, source)
}

// StreamNextMessage sends text to the bot and applies the reply token by token.
func (h *Headless) StreamNextMessage(ctx context.Context, text string, source domain.MessageSource) (*domain.MessageResponse, error) {
	return h.orchestrator.StreamNextMessage(ctx, text, source)
}

// SendMessage is GetNextMessage, or StreamNextMessage when stream is set, that
// also reports whether the message was accepted. It is false only when
// another message was still being processed.
func (h *Headless) SendMessage(ctx context.Context, text string, source domain.MessageSource, stream bool) (*domain.MessageResponse, bool, error) {
	return h.orchestrator.SendMessage(ctx, text, source, stream)
}

// RestartConversation returns to the bot and clears the conversation.
func (h *Headless) RestartConversation(ctx context.Context) {
	h.orchestrator.Restart(ctx)
}

// Report sends an analytics event. CHAT_IMPRESSION is sent at most once.
func (h *Headless) Report(ctx context.Context, ev domain.AnalyticsEvent) error {
	return h.reporter.Report(ctx, ev)
}

// AddClientSDK announces a wrapper layer in every analytics event.
func (h *Headless) AddClientSDK(sdk map[string]string) { h.reporter.AddClientSDK(sdk) }

// ActiveClient returns the slot currently receiving messages.
func (h *Headless) ActiveClient() domain.ClientKind { return h.orchestrator.ActiveClient() }

// SessionID returns the analytics session id, empty when tracking is disabled.
func (h *Headless) SessionID() string { return h.reporter.SessionID() }

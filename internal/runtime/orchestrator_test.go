package runtime_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/headless/internal/logging"
	"github.com/aretw0/headless/internal/runtime"
	"github.com/aretw0/headless/pkg/adapters/memory"
	"github.com/aretw0/headless/pkg/client"
	"github.com/aretw0/headless/pkg/domain"
	"github.com/aretw0/headless/pkg/persistence"
	"github.com/aretw0/headless/pkg/state"
)

const credKey = "headless_chat_credentials__localhost__bot-1"

func newOrchestrator(t *testing.T, bot client.Client, opts ...runtime.Option) (*runtime.Orchestrator, *state.Store) {
	t.Helper()
	store := state.NewStore(domain.NewState())
	o, err := runtime.New(store, bot, opts...)
	require.NoError(t, err)
	return o, store
}

func TestNew_RequiresBot(t *testing.T) {
	_, err := runtime.New(state.NewStore(domain.NewState()), client.Client{})
	assert.Error(t, err)
}

func TestGetNextMessage_Hello(t *testing.T) {
	bot := &fakeBot{reply: reply("Hi! How can I help?")}
	reporter := &fakeReporter{}
	o, store := newOrchestrator(t, client.FromHTTP(bot), runtime.WithReporter(reporter))

	resp, err := o.GetNextMessage(context.Background(), "hello", domain.SourceUser)
	require.NoError(t, err)
	require.NotNil(t, resp)

	conv := store.GetState().Conversation
	assert.Equal(t, "conv-1", conv.ConversationID)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hello", conv.Messages[0].Text)
	assert.Equal(t, domain.SourceUser, conv.Messages[0].Source)
	assert.Equal(t, "Hi! How can I help?", conv.Messages[1].Text)
	assert.Equal(t, "GREET", conv.Notes["currentGoal"])
	assert.True(t, conv.CanSendMessage)
	assert.False(t, conv.IsLoading)

	require.Len(t, bot.requests, 1)
	require.Len(t, bot.requests[0].Messages, 1)
	assert.Equal(t, "hello", bot.requests[0].Messages[0].Text)

	require.Len(t, reporter.events, 1)
	ev := reporter.events[0]
	assert.Equal(t, domain.ActionChatResponse, ev.Action)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", ev.Timestamp)
	assert.Equal(t, "conv-1", ev.Chat.ConversationID)
	assert.Equal(t, "resp-1", ev.Chat.ResponseID)
}

func TestGetNextMessage_EmptyTextIsNotAppended(t *testing.T) {
	bot := &fakeBot{reply: reply("Welcome")}
	o, store := newOrchestrator(t, client.FromHTTP(bot))

	_, err := o.GetNextMessage(context.Background(), "", domain.SourceUser)
	require.NoError(t, err)

	msgs := store.GetState().Conversation.Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.SourceBot, msgs[0].Source)
}

func TestGetNextMessage_FlagsWhileInFlight(t *testing.T) {
	var seen domain.ConversationState
	var o *runtime.Orchestrator
	var store *state.Store
	bot := &fakeBot{}
	bot.reply = func(ctx context.Context, req domain.MessageRequest) (*domain.MessageResponse, error) {
		seen = store.GetState().Conversation
		return reply("ok")(ctx, req)
	}
	o, store = newOrchestrator(t, client.FromHTTP(bot))

	_, err := o.GetNextMessage(context.Background(), "hi", domain.SourceUser)
	require.NoError(t, err)
	assert.False(t, seen.CanSendMessage)
	assert.True(t, seen.IsLoading)
}

func TestGetNextMessage_ConcurrentGuard(t *testing.T) {
	const callers = 10
	release := make(chan struct{})
	bot := &fakeBot{}
	bot.reply = func(ctx context.Context, req domain.MessageRequest) (*domain.MessageResponse, error) {
		<-release
		return reply("done")(ctx, req)
	}

	var buf bytes.Buffer
	var mu sync.Mutex
	busy := 0
	hooks := domain.LifecycleHooks{OnError: func(_ context.Context, e *domain.ErrorEvent) {
		if e.Kind == domain.ErrorBusy {
			mu.Lock()
			busy++
			mu.Unlock()
		}
	}}
	o, store := newOrchestrator(t, client.FromHTTP(bot),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithLogger(logging.NewWithWriter(&syncWriter{w: &buf}, slog.LevelWarn, "text")))

	type result struct {
		resp *domain.MessageResponse
		err  error
	}
	results := make(chan result, callers)
	for range callers {
		go func() {
			resp, err := o.GetNextMessage(context.Background(), "hi", domain.SourceUser)
			results <- result{resp, err}
		}()
	}

	for range callers - 1 {
		r := <-results
		assert.NoError(t, r.err)
		assert.Nil(t, r.resp)
	}
	close(release)
	last := <-results
	require.NoError(t, last.err)
	require.NotNil(t, last.resp)

	assert.Equal(t, 1, bot.calls())
	assert.Equal(t, callers-1, busy)
	assert.Contains(t, buf.String(), "Unable to process new message at the moment")

	msgs := store.GetState().Conversation.Messages
	assert.Len(t, msgs, 2)
}

func TestGetNextMessage_TransportErrorKeepsUserMessage(t *testing.T) {
	boom := &domain.APIError{StatusCode: 500, Message: "internal"}
	bot := &fakeBot{reply: func(context.Context, domain.MessageRequest) (*domain.MessageResponse, error) {
		return nil, boom
	}}
	var kinds []domain.ErrorKind
	hooks := domain.LifecycleHooks{OnError: func(_ context.Context, e *domain.ErrorEvent) {
		kinds = append(kinds, e.Kind)
	}}
	o, store := newOrchestrator(t, client.FromHTTP(bot), runtime.WithLifecycleHooks(hooks))

	resp, err := o.GetNextMessage(context.Background(), "hello", domain.SourceUser)
	assert.Nil(t, resp)
	assert.Same(t, boom, err)

	conv := store.GetState().Conversation
	assert.True(t, conv.CanSendMessage)
	assert.False(t, conv.IsLoading)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hello", conv.Messages[0].Text)
	assert.Equal(t, []domain.ErrorKind{domain.ErrorTransport}, kinds)
}

func TestStreamNextMessage(t *testing.T) {
	final := &domain.MessageResponse{
		ConversationID: "conv-9",
		Message: domain.Message{
			Text:       "Hello world!",
			Source:     domain.SourceBot,
			Timestamp:  "2024-01-01T00:00:00.000Z",
			ResponseID: "resp-9",
		},
	}
	bot := &fakeBot{stream: []domain.StreamEvent{
		{Kind: domain.StreamStart, Notes: domain.Notes{"currentGoal": "GREET"}},
		{Kind: domain.StreamToken, Token: "Hello"},
		{Kind: domain.StreamToken, Token: " world"},
		{Kind: domain.StreamToken, Token: "!"},
		{Kind: domain.StreamEnd, Response: final},
	}}
	var responses []*domain.ResponseEvent
	hooks := domain.LifecycleHooks{OnResponse: func(_ context.Context, e *domain.ResponseEvent) {
		responses = append(responses, e)
	}}
	o, store := newOrchestrator(t, client.FromHTTP(bot), runtime.WithLifecycleHooks(hooks))

	var snapshots [][]domain.Message
	store.AddListener(state.Listener{
		Select: func(s domain.State) any { return s.Conversation.Messages },
		Callback: func(v any, _ domain.State) {
			snapshots = append(snapshots, v.([]domain.Message))
		},
	})

	resp, err := o.StreamNextMessage(context.Background(), "hi", domain.SourceUser)
	require.NoError(t, err)
	assert.Same(t, final, resp)

	// user message, three tokens, final message
	require.Len(t, snapshots, 5)
	assert.Equal(t, "Hello", snapshots[1][1].Text)
	assert.Equal(t, "Hello world", snapshots[2][1].Text)
	assert.Equal(t, "Hello world!", snapshots[3][1].Text)
	assert.Equal(t, "resp-9", snapshots[4][1].ResponseID)

	conv := store.GetState().Conversation
	assert.Equal(t, "conv-9", conv.ConversationID)
	assert.Equal(t, "GREET", conv.Notes["currentGoal"])
	assert.Len(t, conv.Messages, 2)
	assert.True(t, conv.CanSendMessage)

	require.Len(t, responses, 1)
	assert.True(t, responses[0].Streaming)
	assert.Equal(t, 3, responses[0].Tokens)
}

func TestStreamNextMessage_MissingEnd(t *testing.T) {
	bot := &fakeBot{stream: []domain.StreamEvent{
		{Kind: domain.StreamStart},
		{Kind: domain.StreamToken, Token: "partial"},
	}}
	var kinds []domain.ErrorKind
	hooks := domain.LifecycleHooks{OnError: func(_ context.Context, e *domain.ErrorEvent) {
		kinds = append(kinds, e.Kind)
	}}
	o, store := newOrchestrator(t, client.FromHTTP(bot), runtime.WithLifecycleHooks(hooks))

	_, err := o.StreamNextMessage(context.Background(), "hi", domain.SourceUser)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingStreamEnd)

	var streamErr *domain.StreamError
	require.True(t, errors.As(err, &streamErr))
	assert.Equal(t, 1, streamErr.Tokens)
	assert.Equal(t, []domain.ErrorKind{domain.ErrorStream}, kinds)
	assert.True(t, store.GetState().Conversation.CanSendMessage)
}

func TestStreamNextMessage_TransportFailure(t *testing.T) {
	bot := &fakeBot{
		stream: []domain.StreamEvent{
			{Kind: domain.StreamStart},
			{Kind: domain.StreamToken, Token: "par"},
		},
		streamErr: io.ErrUnexpectedEOF,
	}
	var kinds []domain.ErrorKind
	hooks := domain.LifecycleHooks{OnError: func(_ context.Context, e *domain.ErrorEvent) {
		kinds = append(kinds, e.Kind)
	}}
	o, store := newOrchestrator(t, client.FromHTTP(bot), runtime.WithLifecycleHooks(hooks))

	resp, err := o.StreamNextMessage(context.Background(), "hi", domain.SourceUser)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	var streamErr *domain.StreamError
	assert.False(t, errors.As(err, &streamErr), "a broken transport is not an incomplete stream")
	assert.Equal(t, []domain.ErrorKind{domain.ErrorTransport}, kinds)

	conv := store.GetState().Conversation
	assert.True(t, conv.CanSendMessage)
	assert.False(t, conv.IsLoading)
	require.NotEmpty(t, conv.Messages)
	assert.Equal(t, "hi", conv.Messages[0].Text)
	assert.Equal(t, domain.SourceUser, conv.Messages[0].Source)
}

func TestStreamNextMessage_EventClientUnsupported(t *testing.T) {
	o, _ := newOrchestrator(t, client.FromEvent(&fakeAgent{}))

	_, err := o.StreamNextMessage(context.Background(), "hi", domain.SourceUser)
	assert.ErrorIs(t, err, domain.ErrStreamingUnsupported)
}

func handoffReply(ctx context.Context, req domain.MessageRequest) (*domain.MessageResponse, error) {
	resp, _ := reply("Transferring you to an agent")(ctx, req)
	resp.IntegrationDetails = domain.IntegrationDetails{"provider": "generic"}
	return resp, nil
}

func TestHandoff_BotToAgentAndBack(t *testing.T) {
	ctx := context.Background()
	sess := memory.NewStore()
	creds := persistence.NewCredentialStore(credKey, sess)

	bot := &fakeBot{reply: handoffReply}
	agent := &fakeAgent{creds: domain.Credentials{"sessionId": "s-1"}}
	var handoffs []*domain.HandoffEvent
	hooks := domain.LifecycleHooks{OnHandoff: func(_ context.Context, e *domain.HandoffEvent) {
		handoffs = append(handoffs, e)
	}}
	o, store := newOrchestrator(t, client.FromHTTP(bot),
		runtime.WithAgent(client.FromEvent(agent)),
		runtime.WithCredentials(creds),
		runtime.WithLifecycleHooks(hooks))

	_, err := o.GetNextMessage(ctx, "I want a human", domain.SourceUser)
	require.NoError(t, err)

	assert.Equal(t, domain.ClientAgent, o.ActiveClient())
	require.Len(t, agent.inits, 1)
	payload := agent.inits[0]
	assert.Equal(t, "conv-1", payload.ConversationID)
	assert.Equal(t, "Transferring you to an agent", payload.Message.Text)
	assert.Equal(t, "generic", payload.IntegrationDetails["provider"])
	assert.Equal(t, "GREET", payload.Notes["currentGoal"])

	saved, ok := creds.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "s-1", saved["sessionId"])

	// Agent path: no flag flip, reply arrives as an event.
	resp, err := o.GetNextMessage(ctx, "are you there?", domain.SourceUser)
	require.NoError(t, err)
	assert.Nil(t, resp)
	require.Len(t, agent.processed, 1)
	assert.Len(t, agent.processed[0].Messages, 3)
	assert.True(t, store.GetState().Conversation.CanSendMessage)

	agent.EmitTyping(true)
	assert.True(t, store.GetState().Conversation.IsLoading)
	agent.EmitTyping(false)
	agent.EmitMessage("Yes, how can I help?")

	last, _ := store.GetState().Conversation.LastMessage()
	assert.Equal(t, domain.SourceAgent, last.Source)
	assert.Equal(t, "Yes, how can I help?", last.Text)

	agent.EmitClose()
	assert.Equal(t, domain.ClientBot, o.ActiveClient())
	_, ok = creds.Load(ctx)
	assert.False(t, ok)

	require.Len(t, handoffs, 2)
	assert.Equal(t, domain.ClientAgent, handoffs[0].To)
	assert.Equal(t, domain.ClientBot, handoffs[1].To)
	assert.NoError(t, handoffs[1].Err)
}

func TestHandoff_InitFailureKeepsBot(t *testing.T) {
	bot := &fakeBot{reply: handoffReply}
	agent := &fakeAgent{initErr: errors.New("unreachable")}
	var errs []domain.ErrorKind
	hooks := domain.LifecycleHooks{OnError: func(_ context.Context, e *domain.ErrorEvent) {
		errs = append(errs, e.Kind)
	}}
	o, _ := newOrchestrator(t, client.FromHTTP(bot),
		runtime.WithAgent(client.FromEvent(agent)),
		runtime.WithLifecycleHooks(hooks))

	resp, err := o.GetNextMessage(context.Background(), "human please", domain.SourceUser)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, domain.ClientBot, o.ActiveClient())
	assert.Equal(t, []domain.ErrorKind{domain.ErrorHandoff}, errs)
}

func TestHandoff_NoAlternateWarns(t *testing.T) {
	var buf bytes.Buffer
	bot := &fakeAgent{}
	var handoffs []*domain.HandoffEvent
	hooks := domain.LifecycleHooks{OnHandoff: func(_ context.Context, e *domain.HandoffEvent) {
		handoffs = append(handoffs, e)
	}}
	o, _ := newOrchestrator(t, client.FromEvent(bot),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithLogger(logging.NewWithWriter(&buf, slog.LevelWarn, "text")))

	bot.EmitClose()

	assert.Equal(t, domain.ClientBot, o.ActiveClient())
	assert.Contains(t, buf.String(), "No next client available for handoff.")
	require.Len(t, handoffs, 1)
	assert.ErrorIs(t, handoffs[0].Err, domain.ErrNoNextClient)
}

func TestEventBot_MessagesAreBotSourced(t *testing.T) {
	bot := &fakeAgent{}
	o, store := newOrchestrator(t, client.FromEvent(bot))

	_, err := o.GetNextMessage(context.Background(), "hi", domain.SourceUser)
	require.NoError(t, err)
	require.Len(t, bot.processed, 1)

	bot.EmitMessage("hello from bot")
	last, _ := store.GetState().Conversation.LastMessage()
	assert.Equal(t, domain.SourceBot, last.Source)
}

func TestResume_ReinitializesFromSavedCredentials(t *testing.T) {
	ctx := context.Background()
	sess := memory.NewStore()
	creds := persistence.NewCredentialStore(credKey, sess)
	require.NoError(t, creds.Save(ctx, domain.Credentials{"sessionId": "s-7"}))

	agent := &fakeAgent{}
	var canSendDuring []bool
	o, store := newOrchestrator(t, client.FromHTTP(&fakeBot{reply: reply("unused")}),
		runtime.WithAgent(client.FromEvent(agent)),
		runtime.WithCredentials(creds))
	store.AddListener(state.Listener{
		Select: func(s domain.State) any { return s.Conversation.CanSendMessage },
		Callback: func(v any, _ domain.State) {
			canSendDuring = append(canSendDuring, v.(bool))
		},
	})

	assert.True(t, o.Resume(ctx))
	assert.Equal(t, domain.ClientAgent, o.ActiveClient())
	assert.Empty(t, agent.inits)
	require.Len(t, agent.reinits, 1)
	assert.Equal(t, "s-7", agent.reinits[0]["sessionId"])
	assert.Equal(t, []bool{false, true}, canSendDuring)

	// Nothing to resume once the agent is active.
	assert.False(t, o.Resume(ctx))
}

func TestHandoff_ReinitFailureStartsFreshNextTime(t *testing.T) {
	ctx := context.Background()
	creds := persistence.NewCredentialStore(credKey, memory.NewStore())
	require.NoError(t, creds.Save(ctx, domain.Credentials{"sessionId": "expired"}))

	agent := &fakeAgent{
		creds:     domain.Credentials{"sessionId": "s-2"},
		reinitErr: errors.New("session expired"),
	}
	var errs []domain.ErrorKind
	var handoffs []*domain.HandoffEvent
	hooks := domain.LifecycleHooks{
		OnError: func(_ context.Context, e *domain.ErrorEvent) { errs = append(errs, e.Kind) },
		OnHandoff: func(_ context.Context, e *domain.HandoffEvent) {
			handoffs = append(handoffs, e)
		},
	}
	o, store := newOrchestrator(t, client.FromHTTP(&fakeBot{reply: handoffReply}),
		runtime.WithAgent(client.FromEvent(agent)),
		runtime.WithCredentials(creds),
		runtime.WithLifecycleHooks(hooks))

	// The aborted handoff leaves the bot in charge.
	assert.False(t, o.Resume(ctx))
	assert.Equal(t, domain.ClientBot, o.ActiveClient())
	assert.Equal(t, []domain.ErrorKind{domain.ErrorHandoff}, errs)
	require.Len(t, handoffs, 1)
	assert.Error(t, handoffs[0].Err)
	assert.True(t, store.GetState().Conversation.CanSendMessage)
	_, ok := creds.Load(ctx)
	assert.False(t, ok, "unusable credentials are dropped")

	_, err := o.GetNextMessage(ctx, "human please", domain.SourceUser)
	require.NoError(t, err)
	assert.Equal(t, domain.ClientAgent, o.ActiveClient())
	assert.Len(t, agent.reinits, 1)
	require.Len(t, agent.inits, 1)
	saved, ok := creds.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "s-2", saved["sessionId"])
}

func TestResume_WithoutCredentials(t *testing.T) {
	agent := &fakeAgent{}
	o, _ := newOrchestrator(t, client.FromHTTP(&fakeBot{reply: reply("unused")}),
		runtime.WithAgent(client.FromEvent(agent)),
		runtime.WithCredentials(persistence.NewCredentialStore(credKey, memory.NewStore())))

	assert.False(t, o.Resume(context.Background()))
	assert.Equal(t, domain.ClientBot, o.ActiveClient())
	assert.Empty(t, agent.reinits)
}

func TestRestart(t *testing.T) {
	ctx := context.Background()
	sess := memory.NewStore()
	creds := persistence.NewCredentialStore(credKey, sess)
	agent := &fakeAgent{creds: domain.Credentials{"sessionId": "s-1"}}
	o, store := newOrchestrator(t, client.FromHTTP(&fakeBot{reply: handoffReply}),
		runtime.WithAgent(client.FromEvent(agent)),
		runtime.WithCredentials(creds))

	_, err := o.GetNextMessage(ctx, "human", domain.SourceUser)
	require.NoError(t, err)
	require.Equal(t, domain.ClientAgent, o.ActiveClient())

	o.Restart(ctx)
	first := store.GetState()

	assert.Equal(t, domain.ClientBot, o.ActiveClient())
	assert.Equal(t, 1, agent.resets)
	_, ok := creds.Load(ctx)
	assert.False(t, ok)

	conv := first.Conversation
	assert.Empty(t, conv.ConversationID)
	assert.Empty(t, conv.Messages)
	assert.NotNil(t, conv.Messages)
	assert.Equal(t, domain.Notes{}, conv.Notes)
	assert.True(t, conv.CanSendMessage)
	assert.False(t, conv.IsLoading)

	o.Restart(ctx)
	assert.Equal(t, first, store.GetState())
	assert.Equal(t, 1, agent.resets)
}

func TestRestart_ClearsCredentialsWhileBotIsActive(t *testing.T) {
	ctx := context.Background()
	creds := persistence.NewCredentialStore(credKey, memory.NewStore())
	require.NoError(t, creds.Save(ctx, domain.Credentials{"sessionId": "stale"}))

	agent := &fakeAgent{}
	o, _ := newOrchestrator(t, client.FromHTTP(&fakeBot{reply: reply("hi")}),
		runtime.WithAgent(client.FromEvent(agent)),
		runtime.WithCredentials(creds))
	require.Equal(t, domain.ClientBot, o.ActiveClient())

	o.Restart(ctx)

	_, ok := creds.Load(ctx)
	assert.False(t, ok)
	assert.Zero(t, agent.resets, "only an active agent session is reset")
}

func TestSendMessage_ReportsAcceptance(t *testing.T) {
	ctx := context.Background()

	t.Run("Busy", func(t *testing.T) {
		bot := &fakeBot{reply: reply("hi")}
		o, store := newOrchestrator(t, client.FromHTTP(bot))
		store.Dispatch(state.SetCanSendMessage(false))

		resp, accepted, err := o.SendMessage(ctx, "hello", domain.SourceUser, false)
		require.NoError(t, err)
		assert.Nil(t, resp)
		assert.False(t, accepted)
		assert.Zero(t, bot.calls())
	})

	t.Run("Bot reply", func(t *testing.T) {
		o, _ := newOrchestrator(t, client.FromHTTP(&fakeBot{reply: reply("hi")}))

		resp, accepted, err := o.SendMessage(ctx, "hello", domain.SourceUser, false)
		require.NoError(t, err)
		assert.True(t, accepted)
		require.NotNil(t, resp)
	})

	t.Run("Event client", func(t *testing.T) {
		agent := &fakeAgent{}
		o, _ := newOrchestrator(t, client.FromEvent(agent))

		resp, accepted, err := o.SendMessage(ctx, "hello", domain.SourceUser, false)
		require.NoError(t, err)
		assert.True(t, accepted)
		assert.Nil(t, resp)
		assert.Len(t, agent.processed, 1)
	})

	t.Run("Transport error still counts as accepted", func(t *testing.T) {
		bot := &fakeBot{reply: func(context.Context, domain.MessageRequest) (*domain.MessageResponse, error) {
			return nil, errors.New("down")
		}}
		o, _ := newOrchestrator(t, client.FromHTTP(bot))

		_, accepted, err := o.SendMessage(ctx, "hello", domain.SourceUser, false)
		assert.Error(t, err)
		assert.True(t, accepted)
	})
}

func TestRestart_WithoutAgentWarns(t *testing.T) {
	var buf bytes.Buffer
	o, store := newOrchestrator(t, client.FromHTTP(&fakeBot{reply: reply("hi")}),
		runtime.WithLogger(logging.NewWithWriter(&buf, slog.LevelWarn, "text")))

	_, err := o.GetNextMessage(context.Background(), "hello", domain.SourceUser)
	require.NoError(t, err)

	o.Restart(context.Background())
	assert.Contains(t, buf.String(), "No next client available during conversation reset.")
	assert.Empty(t, store.GetState().Conversation.Messages)
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	durable := memory.NewStore()
	policies := []persistence.Policy{persistence.Durable(durable)}
	key := persistence.Key(persistence.StateNamespace, "localhost", "bot-1")

	o, store := newOrchestrator(t, client.FromHTTP(&fakeBot{reply: reply("Hi!")}))
	unbind := persistence.NewPersister(key, policies).Bind(ctx, store)
	defer unbind()

	_, err := o.GetNextMessage(ctx, "hello", domain.SourceUser)
	require.NoError(t, err)

	restored, ok := persistence.NewPersister(key, policies).Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "conv-1", restored.ConversationID)
	require.Len(t, restored.Messages, 2)
	assert.Equal(t, "Hi!", restored.Messages[1].Text)
}

func TestLifecycleHooks(t *testing.T) {
	var requests []*domain.RequestEvent
	var responses []*domain.ResponseEvent
	hooks := domain.LifecycleHooks{
		OnRequest:  func(_ context.Context, e *domain.RequestEvent) { requests = append(requests, e) },
		OnResponse: func(_ context.Context, e *domain.ResponseEvent) { responses = append(responses, e) },
	}
	o, _ := newOrchestrator(t, client.FromHTTP(&fakeBot{reply: reply("hi")}), runtime.WithLifecycleHooks(hooks))

	_, err := o.GetNextMessage(context.Background(), "hello", domain.SourceUser)
	require.NoError(t, err)

	require.Len(t, requests, 1)
	assert.Equal(t, "hello", requests[0].Text)
	assert.Equal(t, domain.ClientBot, requests[0].Client)
	assert.False(t, requests[0].Streaming)

	require.Len(t, responses, 1)
	assert.Equal(t, "conv-1", responses[0].ConversationID)
	assert.Equal(t, "resp-1", responses[0].ResponseID)
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

/*
Package headless is a stateful chat conversation SDK with bot to agent handoff.

It keeps an observable conversation state, routes every user message to the
active chat client and moves the conversation between a request/response bot
and an event-driven human agent when the bot asks for it or the agent leaves.

# Concept

A Headless instance owns three things: the conversation state, the two chat
clients and the persistence of both the conversation and the agent session.
Consumers read the state through listeners and drive the conversation with
GetNextMessage or StreamNextMessage. Everything else (loading flags, handoff,
persistence, analytics) follows from those calls.

# Usage

	h, err := headless.New(headless.Config{
		BotID:  "my-bot",
		APIKey: os.Getenv("HEADLESS_API_KEY"),
	}, headless.WithAgentClient(client.FromEvent(websocket.New("wss://desk.example.com/ws"))))
	if err != nil {
		log.Fatal(err)
	}
	defer h.Close()

	state.Watch(h, state.Messages, func(msgs []domain.Message) {
		render(msgs)
	})

	if _, err := h.GetNextMessage(ctx, "hello", domain.SourceUser); err != nil {
		log.Printf("send failed: %v", err)
	}

# Persistence

The conversation is saved on every change under a key scoped by hostname and
bot id. The durable policy keeps it for 24 hours after the last message; the
session policy keeps it for the life of the session store. Handoff
credentials always use the session store so that a restarted process can
resume an agent session.

# Observability

LifecycleHooks receive request, response, handoff and error events.
pkg/observability turns them into Prometheus metrics or debug logs.
*/
package headless

package persistence_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/headless/pkg/adapters/memory"
	"github.com/aretw0/headless/pkg/domain"
	"github.com/aretw0/headless/pkg/persistence"
	"github.com/aretw0/headless/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	key   = persistence.Key(persistence.StateNamespace, "example.com", "bot-1")
	clock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func at(d time.Duration) string {
	return clock.Add(-d).Format(time.RFC3339Nano)
}

func seed(t *testing.T, store *memory.Store, conv domain.ConversationState) {
	t.Helper()
	data, err := json.Marshal(conv)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), key, data))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "headless_chat_state__example.com__bot-1", key)

	ns, host, bot, ok := persistence.ParseKey(key)
	require.True(t, ok)
	assert.Equal(t, persistence.StateNamespace, ns)
	assert.Equal(t, "example.com", host)
	assert.Equal(t, "bot-1", bot)

	_, _, _, ok = persistence.ParseKey("nope")
	assert.False(t, ok)
}

func TestResolveHostname(t *testing.T) {
	host, err := persistence.ResolveHostname("configured.example")
	require.NoError(t, err)
	assert.Equal(t, "configured.example", host)
}

func TestPersister_DurableFreshness(t *testing.T) {
	ctx := context.Background()

	t.Run("Fresh entry is loaded", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, domain.ConversationState{
			ConversationID: "c1",
			Messages:       []domain.Message{{Text: "hi", Source: domain.SourceUser, Timestamp: at(23 * time.Hour)}},
		})

		p := persistence.NewPersister(key, []persistence.Policy{persistence.Durable(store)}, persistence.WithClock(func() time.Time { return clock }))
		conv, ok := p.Load(ctx)
		require.True(t, ok)
		assert.Equal(t, "c1", conv.ConversationID)
	})

	t.Run("Stale entry is discarded and removed", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, domain.ConversationState{
			Messages: []domain.Message{{Text: "hi", Timestamp: at(25 * time.Hour)}},
		})

		p := persistence.NewPersister(key, []persistence.Policy{persistence.Durable(store)}, persistence.WithClock(func() time.Time { return clock }))
		conv, ok := p.Load(ctx)
		assert.False(t, ok)
		assert.Empty(t, conv.Messages)
		assert.True(t, conv.CanSendMessage)

		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Missing timestamp counts as stale", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, domain.ConversationState{Messages: []domain.Message{{Text: "hi"}}})

		p := persistence.NewPersister(key, []persistence.Policy{persistence.Durable(store)}, persistence.WithClock(func() time.Time { return clock }))
		_, ok := p.Load(ctx)
		assert.False(t, ok)
	})

	t.Run("Empty messages load as initial state", func(t *testing.T) {
		store := memory.NewStore()
		seed(t, store, domain.ConversationState{ConversationID: "c1", Messages: []domain.Message{}})

		p := persistence.NewPersister(key, []persistence.Policy{persistence.Durable(store)})
		conv, ok := p.Load(ctx)
		assert.False(t, ok)
		assert.Empty(t, conv.ConversationID)
	})
}

func TestPersister_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Set(ctx, key, []byte("{not json")))

	p := persistence.NewPersister(key, []persistence.Policy{persistence.Durable(store)})
	conv, ok := p.Load(ctx)

	assert.False(t, ok)
	assert.Equal(t, domain.NewConversationState(), conv)
	_, err := store.Get(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNotFound, "corrupt entries are removed")
}

func TestPersister_SessionFirst(t *testing.T) {
	ctx := context.Background()
	durable, sess := memory.NewStore(), memory.NewStore()

	seed(t, durable, domain.ConversationState{
		ConversationID: "from-durable",
		Messages:       []domain.Message{{Text: "a", Timestamp: at(time.Minute)}},
	})
	seed(t, sess, domain.ConversationState{ConversationID: "from-session", Messages: []domain.Message{}})

	p := persistence.NewPersister(key,
		[]persistence.Policy{persistence.Session(sess), persistence.Durable(durable)},
		persistence.WithClock(func() time.Time { return clock }),
	)

	conv, ok := p.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "from-session", conv.ConversationID, "session scope has no freshness check")
}

func TestPersister_NoStores(t *testing.T) {
	p := persistence.NewPersister(key, []persistence.Policy{persistence.Durable(nil)})
	assert.False(t, p.Enabled())

	_, ok := p.Load(context.Background())
	assert.False(t, ok)
	assert.NoError(t, p.Save(context.Background(), domain.NewConversationState()))
}

func TestPersister_BindRoundTrip(t *testing.T) {
	ctx := context.Background()
	durable, sess := memory.NewStore(), memory.NewStore()
	policies := []persistence.Policy{persistence.Session(sess), persistence.Durable(durable)}

	store := state.NewStore(domain.NewState())
	p := persistence.NewPersister(key, policies)
	unbind := p.Bind(ctx, store)

	store.Dispatch(state.SetConversationID("c1"))
	store.Dispatch(state.AddMessage(domain.NewMessage("hello", domain.SourceUser)))
	store.Dispatch(state.SetNotes{"currentGoal": "ORDER"})
	unbind()
	store.Dispatch(state.AddMessage(domain.NewMessage("not saved", domain.SourceUser)))

	for _, s := range []*memory.Store{durable, sess} {
		data, err := s.Get(ctx, key)
		require.NoError(t, err)

		var conv domain.ConversationState
		require.NoError(t, json.Unmarshal(data, &conv))
		assert.Equal(t, "c1", conv.ConversationID)
		assert.Len(t, conv.Messages, 1)
		assert.Equal(t, "ORDER", conv.Notes["currentGoal"])
	}

	restored, ok := persistence.NewPersister(key, policies).Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "hello", restored.Messages[0].Text)
}

func TestPersister_Clear(t *testing.T) {
	ctx := context.Background()
	durable := memory.NewStore()
	p := persistence.NewPersister(key, []persistence.Policy{persistence.Durable(durable)})

	require.NoError(t, p.Save(ctx, domain.NewConversationState()))
	require.NoError(t, p.Clear(ctx))

	_, err := durable.Get(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPersister_BindKeepsLatestUnderConcurrentDispatch(t *testing.T) {
	ctx := context.Background()
	durable := memory.NewStore()
	store := state.NewStore(domain.NewState())

	// A slow listener ahead of the persister holds the first transition back.
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	store.AddListener(state.Listener{Callback: func(_ any, st domain.State) {
		if len(st.Conversation.Messages) == 1 {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
	}})
	unbind := persistence.NewPersister(key, []persistence.Policy{persistence.Durable(durable)}).Bind(ctx, store)
	defer unbind()

	done := make(chan struct{})
	go func() {
		defer close(done)
		store.Dispatch(state.AddMessage(domain.NewMessage("hello", domain.SourceUser)))
	}()
	<-entered
	store.Dispatch(state.AddMessage(domain.NewMessage("agent says hi", domain.SourceAgent)))
	close(release)
	<-done

	data, err := durable.Get(ctx, key)
	require.NoError(t, err)
	var conv domain.ConversationState
	require.NoError(t, json.Unmarshal(data, &conv))
	assert.Len(t, conv.Messages, 2)
}

func TestPersister_LoadResetsInFlightFlags(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, domain.ConversationState{
		Messages:       []domain.Message{{Text: "hi", Timestamp: at(time.Minute)}},
		IsLoading:      true,
		CanSendMessage: false,
	})

	p := persistence.NewPersister(key, []persistence.Policy{persistence.Durable(store)}, persistence.WithClock(func() time.Time { return clock }))
	conv, ok := p.Load(context.Background())
	require.True(t, ok)
	assert.False(t, conv.IsLoading)
	assert.True(t, conv.CanSendMessage)
}

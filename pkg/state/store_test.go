package state_test

import (
	"sync"
	"testing"

	"github.com/aretw0/headless/pkg/domain"
	"github.com/aretw0/headless/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InitialState(t *testing.T) {
	s := state.NewStore(domain.NewState())
	got := s.GetState()

	assert.NotNil(t, got.Conversation.Messages)
	assert.Empty(t, got.Conversation.Messages)
	assert.True(t, got.Conversation.CanSendMessage)
	assert.False(t, got.Conversation.IsLoading)
}

func TestStore_GetStateIsACopy(t *testing.T) {
	s := state.NewStore(domain.NewState())
	s.Dispatch(state.AddMessage{Text: "hi", Source: domain.SourceUser})

	got := s.GetState()
	got.Conversation.Messages[0].Text = "mutated"

	assert.Equal(t, "hi", s.GetState().Conversation.Messages[0].Text)
}

func TestStore_Dispatch(t *testing.T) {
	s := state.NewStore(domain.NewState())

	s.Dispatch(state.SetConversationID("c1"))
	s.Dispatch(state.AddMessage{Text: "Hello", Source: domain.SourceUser})
	s.Dispatch(state.SetNotes{"currentGoal": "ORDER"})
	s.Dispatch(state.SetLoading(true))
	s.Dispatch(state.SetCanSendMessage(false))
	s.Dispatch(state.SetSuggestions{"yes", "no"})
	s.Dispatch(state.SetContext{Context: map[string]any{"page": "home"}})

	got := s.GetState()
	assert.Equal(t, "c1", got.Conversation.ConversationID)
	assert.Equal(t, "Hello", got.Conversation.Messages[0].Text)
	assert.Equal(t, "ORDER", got.Conversation.Notes["currentGoal"])
	assert.True(t, got.Conversation.IsLoading)
	assert.False(t, got.Conversation.CanSendMessage)
	assert.Equal(t, []string{"yes", "no"}, got.Conversation.MessageSuggestions)
	assert.Equal(t, map[string]any{"page": "home"}, got.Meta.Context)

	s.Dispatch(state.SetMessages{})
	assert.Empty(t, s.GetState().Conversation.Messages)
}

func TestStore_SetState(t *testing.T) {
	s := state.NewStore(domain.NewState())
	var calls int
	s.AddListener(state.Listener{Callback: func(any, domain.State) { calls++ }})

	next := domain.NewState()
	next.Conversation.ConversationID = "replaced"
	s.SetState(next)

	assert.Equal(t, "replaced", s.GetState().Conversation.ConversationID)
	assert.Equal(t, 1, calls)
}

func TestStore_ListenerFiresOnlyOnChange(t *testing.T) {
	s := state.NewStore(domain.NewState())

	var seen [][]domain.Message
	s.AddListener(state.Listener{
		Select: func(st domain.State) any { return st.Conversation.Messages },
		Callback: func(v any, _ domain.State) {
			seen = append(seen, v.([]domain.Message))
		},
	})

	s.Dispatch(state.SetLoading(true))
	s.Dispatch(state.AddMessage{Text: "a"})
	s.Dispatch(state.SetMessages{{Text: "a"}})
	s.Dispatch(state.AddMessage{Text: "b"})

	require.Len(t, seen, 2)
	assert.Len(t, seen[0], 1)
	assert.Len(t, seen[1], 2)
}

func TestStore_Unsubscribe(t *testing.T) {
	s := state.NewStore(domain.NewState())

	var a, b int
	unsubA := s.AddListener(state.Listener{Callback: func(any, domain.State) { a++ }})
	s.AddListener(state.Listener{Callback: func(any, domain.State) { b++ }})

	s.Dispatch(state.SetLoading(true))
	unsubA()
	unsubA()
	s.Dispatch(state.SetLoading(false))

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestStore_UnsubscribeDuringNotification(t *testing.T) {
	s := state.NewStore(domain.NewState())

	var second int
	var unsubSecond state.Unsubscribe
	s.AddListener(state.Listener{Callback: func(any, domain.State) { unsubSecond() }})
	unsubSecond = s.AddListener(state.Listener{Callback: func(any, domain.State) { second++ }})

	s.Dispatch(state.SetLoading(true))
	assert.Equal(t, 0, second, "a listener removed mid-pass must not fire")
}

func TestStore_ListenerMayDispatch(t *testing.T) {
	s := state.NewStore(domain.NewState())

	s.AddListener(state.Listener{
		Select: func(st domain.State) any { return st.Conversation.IsLoading },
		Callback: func(v any, _ domain.State) {
			if v.(bool) {
				s.Dispatch(state.SetCanSendMessage(false))
			}
		},
	})

	s.Dispatch(state.SetLoading(true))
	assert.False(t, s.GetState().Conversation.CanSendMessage)
}

func TestStore_DispatchIfIsExclusive(t *testing.T) {
	s := state.NewStore(domain.NewState())
	canSend := func(st domain.State) bool { return st.Conversation.CanSendMessage }

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.DispatchIf(canSend, state.SetCanSendMessage(false)) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestStore_Batch(t *testing.T) {
	s := state.NewStore(domain.NewState())
	var calls int
	s.AddListener(state.Listener{Callback: func(any, domain.State) { calls++ }})

	s.Dispatch(state.Batch{state.SetLoading(true), state.SetCanSendMessage(false)})

	assert.Equal(t, 1, calls)
	got := s.GetState()
	assert.True(t, got.Conversation.IsLoading)
	assert.False(t, got.Conversation.CanSendMessage)
}

func TestWatch(t *testing.T) {
	s := state.NewStore(domain.NewState())

	var ids []string
	unsub := state.Watch(s, func(st domain.State) string { return st.Conversation.ConversationID }, func(id string) {
		ids = append(ids, id)
	})

	s.Dispatch(state.SetConversationID("c1"))
	s.Dispatch(state.SetConversationID("c1"))
	s.Dispatch(state.SetConversationID("c2"))
	unsub()
	s.Dispatch(state.SetConversationID("c3"))

	assert.Equal(t, []string{"c1", "c2"}, ids)
}

func TestStore_ListenerSkipsSupersededTransition(t *testing.T) {
	s := state.NewStore(domain.NewState())

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.AddListener(state.Listener{Callback: func(_ any, st domain.State) {
		if len(st.Conversation.Messages) == 1 {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
	}})

	var mu sync.Mutex
	var seen []int
	state.Watch(s, state.Messages, func(msgs []domain.Message) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, len(msgs))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Dispatch(state.AddMessage(domain.NewMessage("hello", domain.SourceUser)))
	}()
	<-entered
	s.Dispatch(state.AddMessage(domain.NewMessage("agent says hi", domain.SourceAgent)))
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2}, seen, "the first transition arrived after the second and must be dropped")
	assert.Len(t, s.GetState().Conversation.Messages, 2)
}

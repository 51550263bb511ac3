package state

import "github.com/aretw0/headless/pkg/domain"

// Subscriber is anything that accepts state listeners.
type Subscriber interface {
	AddListener(Listener) Unsubscribe
}

// Source is a Subscriber that also exposes the current state.
type Source interface {
	Subscriber
	GetState() domain.State
}

// Watch registers a typed listener on sub.
func Watch[T any](sub Subscriber, selector func(domain.State) T, callback func(T)) Unsubscribe {
	return sub.AddListener(Listener{
		Select: func(s domain.State) any { return selector(s) },
		Callback: func(v any, _ domain.State) {
			t, _ := v.(T)
			callback(t)
		},
	})
}

// Conversation selects the conversation slice.
func Conversation(s domain.State) domain.ConversationState { return s.Conversation }

// Messages selects the message list.
func Messages(s domain.State) []domain.Message { return s.Conversation.Messages }

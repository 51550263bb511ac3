/*
Package state provides the observable conversation state container.

A Store holds one domain.State. It is mutated either by whole replacement
(SetState) or by named partial updates (Dispatch). Listeners are scoped to a
derived value: a listener fires after a transition only when its selected value
changed.

	unsubscribe := store.AddListener(state.Listener{
		Select:   func(s domain.State) any { return s.Conversation.Messages },
		Callback: func(_ any, s domain.State) { render(s.Conversation.Messages) },
	})
	defer unsubscribe()
*/
package state

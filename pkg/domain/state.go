package domain

import "maps"

// Notes is a backend-opaque bag of conversation metadata (goal, collected fields, query results).
// It is always replaced wholesale, never merged field by field.
type Notes map[string]any

// ConversationState holds the data for the current conversation.
type ConversationState struct {
	// ConversationID is assigned by the backend and cleared on restart.
	ConversationID string `json:"conversationId,omitempty"`

	// Messages are kept in conversation order. They are never reordered or deduplicated.
	Messages []Message `json:"messages"`

	Notes Notes `json:"notes,omitempty"`

	// IsLoading is true while a request is in flight or a response is streaming.
	IsLoading bool `json:"isLoading"`

	// CanSendMessage is false while a message is being processed.
	CanSendMessage bool `json:"canSendMessage"`

	MessageSuggestions []string `json:"messageSuggestions,omitempty"`
}

// MetaState holds consumer-owned metadata passed through to every backend request.
type MetaState struct {
	// Context may be any JSON-serializable value.
	Context any `json:"context,omitempty"`
}

// State is the aggregate observed by consumers.
type State struct {
	Conversation ConversationState `json:"conversation"`
	Meta         MetaState         `json:"meta"`
}

// NewConversationState creates the empty initial conversation state.
func NewConversationState() ConversationState {
	return ConversationState{
		Messages:       []Message{},
		CanSendMessage: true,
	}
}

// NewState creates a clean aggregate state.
func NewState() State {
	return State{Conversation: NewConversationState()}
}

// LastMessage returns the most recent message, if any.
func (c ConversationState) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Clone copies the slices and maps of the conversation so the copy can be
// handed out without aliasing the original.
func (c ConversationState) Clone() ConversationState {
	out := c
	out.Messages = append(make([]Message, 0, len(c.Messages)), c.Messages...)
	if c.Notes != nil {
		out.Notes = maps.Clone(c.Notes)
	}
	if c.MessageSuggestions != nil {
		out.MessageSuggestions = append([]string(nil), c.MessageSuggestions...)
	}
	return out
}

// Clone copies the aggregate state. Meta.Context is shared: it is consumer-owned.
func (s State) Clone() State {
	return State{
		Conversation: s.Conversation.Clone(),
		Meta:         s.Meta,
	}
}

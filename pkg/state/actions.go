package state

import "github.com/aretw0/headless/pkg/domain"

// Action is one named partial update of the state.
type Action interface {
	// Name identifies the action in logs.
	Name() string
	apply(s *domain.State)
}

// SetConversationID sets the backend conversation id.
type SetConversationID string

func (SetConversationID) Name() string { return "setConversationId" }
func (a SetConversationID) apply(s *domain.State) {
	s.Conversation.ConversationID = string(a)
}

// SetMessages replaces the message list.
type SetMessages []domain.Message

func (SetMessages) Name() string { return "setMessages" }
func (a SetMessages) apply(s *domain.State) {
	s.Conversation.Messages = append(make([]domain.Message, 0, len(a)), a...)
}

// AddMessage appends one message.
type AddMessage domain.Message

func (AddMessage) Name() string { return "addMessage" }
func (a AddMessage) apply(s *domain.State) {
	msgs := make([]domain.Message, 0, len(s.Conversation.Messages)+1)
	msgs = append(msgs, s.Conversation.Messages...)
	s.Conversation.Messages = append(msgs, domain.Message(a))
}

// SetNotes replaces the notes wholesale.
type SetNotes domain.Notes

func (SetNotes) Name() string { return "setNotes" }
func (a SetNotes) apply(s *domain.State) {
	s.Conversation.Notes = domain.Notes(a)
}

// SetLoading sets the loading flag.
type SetLoading bool

func (SetLoading) Name() string { return "setIsLoading" }
func (a SetLoading) apply(s *domain.State) {
	s.Conversation.IsLoading = bool(a)
}

// SetCanSendMessage sets the send flag.
type SetCanSendMessage bool

func (SetCanSendMessage) Name() string { return "setCanSendMessage" }
func (a SetCanSendMessage) apply(s *domain.State) {
	s.Conversation.CanSendMessage = bool(a)
}

// SetSuggestions replaces the message suggestions.
type SetSuggestions []string

func (SetSuggestions) Name() string { return "setMessageSuggestions" }
func (a SetSuggestions) apply(s *domain.State) {
	s.Conversation.MessageSuggestions = append([]string(nil), a...)
}

// SetContext replaces the consumer context.
type SetContext struct{ Context any }

func (SetContext) Name() string { return "setContext" }
func (a SetContext) apply(s *domain.State) {
	s.Meta.Context = a.Context
}

// ReplaceConversation replaces the whole conversation slice.
type ReplaceConversation domain.ConversationState

func (ReplaceConversation) Name() string { return "replaceConversation" }
func (a ReplaceConversation) apply(s *domain.State) {
	s.Conversation = domain.ConversationState(a).Clone()
}

// Batch applies several actions as a single transition.
type Batch []Action

func (Batch) Name() string { return "batch" }
func (b Batch) apply(s *domain.State) {
	for _, a := range b {
		a.apply(s)
	}
}

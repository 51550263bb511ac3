package domain

// IntegrationDetails instructs the SDK to hand the conversation off to another client.
// Its content is opaque; only its presence matters.
type IntegrationDetails map[string]any

// Credentials are returned by an event client's Init and are used to resume
// an existing agent session later.
type Credentials map[string]any

// MessageRequest is the uniform payload consumed by every chat client.
type MessageRequest struct {
	ConversationID string    `json:"conversationId,omitempty"`
	Messages       []Message `json:"messages"`
	Notes          Notes     `json:"notes,omitempty"`
	Context        any       `json:"context,omitempty"`
}

// MessageResponse is the reply to a MessageRequest.
type MessageResponse struct {
	ConversationID     string             `json:"conversationId,omitempty"`
	Message            Message            `json:"message"`
	Notes              Notes              `json:"notes,omitempty"`
	IntegrationDetails IntegrationDetails `json:"integrationDetails,omitempty"`
}

// HasIntegrationDetails reports whether the response asks for a handoff.
func (r *MessageResponse) HasIntegrationDetails() bool {
	return r != nil && r.IntegrationDetails != nil
}

// NewRequest builds a MessageRequest from the current state.
func NewRequest(s State) MessageRequest {
	c := s.Conversation.Clone()
	return MessageRequest{
		ConversationID: c.ConversationID,
		Messages:       c.Messages,
		Notes:          c.Notes,
		Context:        s.Meta.Context,
	}
}

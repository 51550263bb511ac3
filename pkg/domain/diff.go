package domain

import (
	"reflect"
	"slices"
)

// ConversationDiff represents the changes between two conversation states.
// It is designed to be serialized to JSON for partial updates on the client.
type ConversationDiff struct {
	ConversationID *string `json:"conversationId,omitempty"`
	IsLoading      *bool   `json:"isLoading,omitempty"`
	CanSendMessage *bool   `json:"canSendMessage,omitempty"`

	// Notes is sent whole because notes are replaced wholesale.
	Notes Notes `json:"notes,omitempty"`

	// Messages describes the message list change.
	Messages *MessagesDelta `json:"messages,omitempty"`

	MessageSuggestions []string `json:"messageSuggestions,omitempty"`
}

// MessagesDelta represents changes to the message list.
// Reset is true when the list was rewritten (restart, streamed token update)
// and Messages then carries the full list instead of the appended tail.
type MessagesDelta struct {
	Appended []Message `json:"appended,omitempty"`
	Reset    bool      `json:"reset,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
func Diff(oldState, newState *ConversationState) *ConversationDiff {
	if newState == nil {
		return nil
	}

	diff := &ConversationDiff{}

	// 1. Scalar fields
	if oldState == nil || oldState.ConversationID != newState.ConversationID {
		diff.ConversationID = &newState.ConversationID
	}
	if oldState == nil || oldState.IsLoading != newState.IsLoading {
		diff.IsLoading = &newState.IsLoading
	}
	if oldState == nil || oldState.CanSendMessage != newState.CanSendMessage {
		diff.CanSendMessage = &newState.CanSendMessage
	}

	// 2. Notes
	if oldState == nil || !reflect.DeepEqual(oldState.Notes, newState.Notes) {
		if newState.Notes == nil {
			diff.Notes = Notes{}
		} else {
			diff.Notes = newState.Notes
		}
		if oldState == nil && len(newState.Notes) == 0 {
			diff.Notes = nil
		}
	}

	// 3. Messages
	diff.Messages = diffMessages(oldState, newState)

	if oldState != nil && !slices.Equal(oldState.MessageSuggestions, newState.MessageSuggestions) {
		diff.MessageSuggestions = newState.MessageSuggestions
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// diffMessages assumes append-only behavior and falls back to a full reset
// when the old list is not a prefix of the new one.
func diffMessages(old, new *ConversationState) *MessagesDelta {
	if old == nil {
		if len(new.Messages) == 0 {
			return nil
		}
		return &MessagesDelta{Appended: new.Messages}
	}

	oldLen := len(old.Messages)
	newLen := len(new.Messages)

	if newLen >= oldLen && slices.Equal(old.Messages, new.Messages[:oldLen]) {
		if newLen == oldLen {
			return nil
		}
		return &MessagesDelta{Appended: new.Messages[oldLen:]}
	}

	return &MessagesDelta{Reset: true, Messages: new.Messages}
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *ConversationDiff) IsEmpty() bool {
	return d.ConversationID == nil &&
		d.IsLoading == nil &&
		d.CanSendMessage == nil &&
		d.Notes == nil &&
		d.Messages == nil &&
		d.MessageSuggestions == nil
}

package domain

import "time"

// MessageSource identifies who produced a message.
type MessageSource string

const (
	SourceUser  MessageSource = "USER"
	SourceBot   MessageSource = "BOT"
	SourceAgent MessageSource = "AGENT"
)

// Message is an immutable utterance in a conversation.
type Message struct {
	Text   string        `json:"text"`
	Source MessageSource `json:"source"`
	// Timestamp is an ISO-8601 string, optional.
	Timestamp  string `json:"timestamp,omitempty"`
	ResponseID string `json:"responseId,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(text string, source MessageSource) Message {
	return Message{
		Text:      text,
		Source:    source,
		Timestamp: Now(),
	}
}

// Time parses the message timestamp. It returns the zero time when the
// timestamp is missing or malformed.
func (m Message) Time() time.Time {
	if m.Timestamp == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Now returns the current time formatted the way message timestamps are stored.
func Now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

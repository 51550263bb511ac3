package domain

// Analytics actions emitted by the SDK itself.
const (
	ActionChatImpression = "CHAT_IMPRESSION"
	ActionChatResponse   = "CHAT_RESPONSE"
)

// ChatProps identifies the conversation an analytics event belongs to.
type ChatProps struct {
	BotID          string `json:"botId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	ResponseID     string `json:"responseId,omitempty"`
}

// AnalyticsEvent is the payload sent to the analytics service.
// Empty fields are omitted so that payloads can be layered.
type AnalyticsEvent struct {
	Action      string            `json:"action,omitempty"`
	Timestamp   string            `json:"timestamp,omitempty"`
	PageURL     string            `json:"pageUrl,omitempty"`
	ReferrerURL string            `json:"referrerUrl,omitempty"`
	SessionID   string            `json:"sessionId,omitempty"`
	Internal    bool              `json:"internalUser,omitempty"`
	ClientSDK   map[string]string `json:"clientSdk,omitempty"`
	Chat        ChatProps         `json:"chat"`
	Value       map[string]any    `json:"value,omitempty"`
	Options     map[string]any    `json:"options,omitempty"`
}

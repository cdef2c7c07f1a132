package models

// Message kinds
const (
	MessageKindText = "text"
)

// Message is an immutable entry in a conversation's log. ID is the log
// sort key and is unique within the conversation.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Timestamp      int64  `json:"ts"`
	SenderID       string `json:"senderId"`
	Text           string `json:"text"`
	Kind           string `json:"type"`
}

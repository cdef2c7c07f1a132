package models

// Conversation kinds
const (
	ConversationKindDirect = "direct"
	ConversationKindGroup  = "group"
)

// PreviewMaxLength is the number of characters kept from a message body
// when it is copied into a conversation or inbox preview.
const PreviewMaxLength = 80

// Conversation represents a direct or group chat, optionally tied to a ride
type Conversation struct {
	ID                 string   `json:"conversationId"`
	Kind               string   `json:"type"`
	Members            []string `json:"members"`
	RideID             *string  `json:"rideId"`
	CreatedAt          int64    `json:"createdAt"`
	LastMessageAt      int64    `json:"lastMessageAt"`
	LastMessagePreview string   `json:"lastMessagePreview"`
}

package models

// AccessRow is the authoritative membership record. Its existence alone
// authorizes a user to read and write the conversation.
type AccessRow struct {
	UserID         string  `json:"userId"`
	ConversationID string  `json:"conversationId"`
	RideID         *string `json:"rideId"`
}

// OrderRow places a conversation in a user's inbox. It is a denormalized
// copy and may carry a stale preview.
type OrderRow struct {
	UserID             string  `json:"userId"`
	ConversationID     string  `json:"conversationId"`
	RideID             *string `json:"rideId"`
	LastMessagePreview string  `json:"lastMessagePreview"`
	LastMessageAt      int64   `json:"lastMessageAt"`
	SortKey            string  `json:"sk"`
}

// InboxPointer records which order row is current for one conversation in
// a user's inbox
type InboxPointer struct {
	ConversationID string `json:"conversationId"`
	SortKey        string `json:"sk"`
	LastMessageAt  int64  `json:"lastMessageAt"`
}

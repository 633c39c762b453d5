package models

// Event types pushed over websocket connections.
const (
	EventFriends        = "friends"
	EventFriendRequests = "friend_requests"
	EventMessages       = "messages"
	EventAlert          = "alert"
)

// FriendsEvent carries the full sorted friend list.
type FriendsEvent struct {
	Type    string            `json:"type"`
	Entries []FriendListEntry `json:"entries"`
}

// FriendRequestsEvent carries the pending requests addressed to the user.
type FriendRequestsEvent struct {
	Type     string          `json:"type"`
	Requests []FriendRequest `json:"requests"`
}

// MessagesEvent carries a conversation's messages in ascending order.
type MessagesEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

// AlertEvent reports a failure the user has to see.
type AlertEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

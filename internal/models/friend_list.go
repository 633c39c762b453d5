package models

import "time"

const (
	// NoMessageYet is shown for a conversation without messages.
	NoMessageYet = "No message yet"
	// NoMessageText is shown when the latest message has no text.
	NoMessageText = "No message"
)

// Degraded sources of a friend-list entry.
const (
	DegradedProfile      = "profile"
	DegradedConversation = "conversation"
	DegradedLastMessage  = "last_message"
)

// LastMessage is the conversation preview of a friend-list entry.
type LastMessage struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Seen      bool      `json:"seen"`
}

// FriendListEntry is the composed view of one accepted friendship. It is
// never persisted.
type FriendListEntry struct {
	FriendID       string      `json:"friend_id"`
	RequestID      string      `json:"request_id"`
	ConversationID string      `json:"conversation_id"`
	Profile        User        `json:"profile"`
	LastMessage    LastMessage `json:"last_message"`
	Degraded       []string    `json:"degraded,omitempty"`
}

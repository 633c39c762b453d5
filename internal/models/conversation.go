package models

import "time"

// Conversation is the summary record of a two-party conversation.
//
// Seen is shared by both participants: whoever opened the conversation last
// flips it. SeenBy records which viewers have opened it since the last send
// and is not used to derive the visible seen state.
type Conversation struct {
	ID            string    `doc:"-" json:"id"`
	UserIDs       []string  `doc:"userIds" json:"user_ids"`
	LastMessage   string    `doc:"lastMessage" json:"last_message"`
	LastTimestamp time.Time `doc:"lastTimestamp" json:"last_timestamp"`
	Seen          bool      `doc:"seen" json:"seen"`
	SeenBy        []string  `doc:"seenBy" json:"seen_by,omitempty"`
}

// Message belongs to exactly one conversation and is immutable.
// IsSender is stamped from the sender's perspective at write time.
type Message struct {
	ID                  string    `doc:"-" json:"id"`
	ConversationID      string    `doc:"-" json:"conversation_id"`
	SenderID            string    `doc:"senderId" json:"sender_id"`
	SenderProfilePicURL string    `doc:"senderProfilePicUrl" json:"sender_profile_pic_url"`
	Text                string    `doc:"text" json:"text"`
	Timestamp           time.Time `doc:"timestamp" json:"timestamp"`
	IsSender            bool      `doc:"isSender" json:"is_sender"`
}

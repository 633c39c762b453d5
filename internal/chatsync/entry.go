package chatsync

import (
	"chat-sync/internal/docstore"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// entryHandle is one friend's slot in the list. It exclusively owns the
// conversation and latest-message subscriptions of that friend.
type entryHandle struct {
	friendID       string
	requestID      string
	conversationID string

	conv   docstore.Subscription
	latest docstore.Subscription

	profile       models.User
	profileFailed bool

	seen         bool
	convReported bool
	convFailed   bool

	lastMessage    *models.Message
	latestReported bool
	latestFailed   bool
}

func (h *entryHandle) stop() {
	if h.conv != nil {
		h.conv.Stop()
		observability.AddSubscriptions(-1)
		h.conv = nil
	}
	if h.latest != nil {
		h.latest.Stop()
		observability.AddSubscriptions(-1)
		h.latest = nil
	}
}

func (h *entryHandle) compose() models.FriendListEntry {
	entry := models.FriendListEntry{
		FriendID:       h.friendID,
		RequestID:      h.requestID,
		ConversationID: h.conversationID,
		Profile:        h.profile,
		LastMessage: models.LastMessage{
			Text: models.NoMessageYet,
			Seen: h.seen,
		},
	}
	if entry.Profile.ID == "" {
		entry.Profile = models.User{ID: h.friendID, ProfilePicURL: models.DefaultProfilePicURL}
	}
	if h.lastMessage != nil {
		entry.LastMessage.Text = h.lastMessage.Text
		if entry.LastMessage.Text == "" {
			entry.LastMessage.Text = models.NoMessageText
		}
		entry.LastMessage.Timestamp = h.lastMessage.Timestamp
	}

	if h.profileFailed {
		entry.Degraded = append(entry.Degraded, models.DegradedProfile)
	}
	if h.convFailed {
		entry.Degraded = append(entry.Degraded, models.DegradedConversation)
	}
	if h.latestFailed {
		entry.Degraded = append(entry.Degraded, models.DegradedLastMessage)
	}
	return entry
}

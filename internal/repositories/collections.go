package repositories

import "chat-sync/internal/docstore"

// Collection names in the document store.
const (
	UsersCollection          = "users"
	FriendRequestsCollection = "friendRequests"
	FriendsCollection        = "friends"
	ConversationsCollection  = "conversations"
	MessagesCollection       = "messages"
)

// MessagesPath is the message sub-collection of a conversation.
func MessagesPath(conversationID string) string {
	return docstore.Path(ConversationsCollection, conversationID, MessagesCollection)
}

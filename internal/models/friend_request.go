package models

import "time"

// RequestStatus is the lifecycle state of a friend request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// Terminal reports whether no transition leaves the status.
func (s RequestStatus) Terminal() bool {
	return s == RequestAccepted || s == RequestRejected
}

// CanTransition reports whether moving from s to next is allowed.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	return s == RequestPending && next.Terminal()
}

// FriendRequest is keyed by (sender, receiver). An accepted request doubles
// as the friendship record the friend list is rebuilt from.
type FriendRequest struct {
	ID         string        `doc:"-" json:"id"`
	SenderID   string        `doc:"senderId" json:"sender_id"`
	ReceiverID string        `doc:"receiverId" json:"receiver_id"`
	Status     RequestStatus `doc:"status" json:"status"`
}

// Counterpart returns the participant that is not userID.
func (r FriendRequest) Counterpart(userID string) string {
	if r.SenderID == userID {
		return r.ReceiverID
	}
	return r.SenderID
}

// Friendship is materialized when a request is accepted. It is never deleted.
type Friendship struct {
	ID    string    `doc:"-" json:"id"`
	User1 string    `doc:"user1" json:"user1"`
	User2 string    `doc:"user2" json:"user2"`
	Since time.Time `doc:"friendshipSince" json:"friendship_since"`
}

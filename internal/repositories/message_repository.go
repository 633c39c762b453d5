package repositories

import (
	"context"

	"chat-sync/internal/docstore"
	"chat-sync/internal/models"
)

// MessageRepository reads the message sub-collection of a conversation.
type MessageRepository interface {
	History(ctx context.Context, conversationID string) ([]models.Message, error)
	WatchAll(ctx context.Context, conversationID string, fn func([]models.Message, error)) (docstore.Subscription, error)
	WatchLatest(ctx context.Context, conversationID string, fn func(*models.Message, error)) (docstore.Subscription, error)
}

// MessageRepo is a docstore implementation of MessageRepository.
type MessageRepo struct {
	store docstore.Store
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(store docstore.Store) *MessageRepo {
	return &MessageRepo{store: store}
}

// LatestMessageQuery selects the newest message of a conversation.
func LatestMessageQuery(conversationID string) docstore.Query {
	return docstore.Query{Collection: MessagesPath(conversationID)}.Order("timestamp", docstore.Desc).Take(1)
}

func historyQuery(conversationID string) docstore.Query {
	return docstore.Query{Collection: MessagesPath(conversationID)}.Order("timestamp", docstore.Asc)
}

// History returns the messages of a conversation, oldest first.
func (r *MessageRepo) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	docs, err := r.store.Query(ctx, historyQuery(conversationID))
	if err != nil {
		return nil, err
	}
	return decodeMessages(conversationID, docs)
}

// WatchAll streams the full ascending message list.
func (r *MessageRepo) WatchAll(ctx context.Context, conversationID string, fn func([]models.Message, error)) (docstore.Subscription, error) {
	return r.store.Subscribe(ctx, historyQuery(conversationID), func(snap docstore.Snapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(decodeMessages(conversationID, snap.Docs))
	})
}

// WatchLatest streams the newest message, nil while there is none.
func (r *MessageRepo) WatchLatest(ctx context.Context, conversationID string, fn func(*models.Message, error)) (docstore.Subscription, error) {
	return r.store.Subscribe(ctx, LatestMessageQuery(conversationID), func(snap docstore.Snapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		if snap.Empty() {
			fn(nil, nil)
			return
		}
		msgs, err := decodeMessages(conversationID, snap.Docs[:1])
		if err != nil {
			fn(nil, err)
			return
		}
		fn(&msgs[0], nil)
	})
}

func decodeMessages(conversationID string, docs []docstore.Document) ([]models.Message, error) {
	out := make([]models.Message, 0, len(docs))
	for _, doc := range docs {
		var msg models.Message
		if err := docstore.Decode(doc.Data, &msg); err != nil {
			return nil, err
		}
		msg.ID = doc.ID
		msg.ConversationID = conversationID
		out = append(out, msg)
	}
	return out, nil
}

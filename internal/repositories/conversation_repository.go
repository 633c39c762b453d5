package repositories

import (
	"context"

	"chat-sync/internal/docstore"
	"chat-sync/internal/models"
)

// ConversationRepository abstracts the conversation summary records.
type ConversationRepository interface {
	Get(ctx context.Context, conversationID string) (models.Conversation, error)
	Watch(ctx context.Context, conversationID string, fn func(models.Conversation, error)) (docstore.Subscription, error)
	RecordMessage(ctx context.Context, conversationID string, userIDs []string, msg models.Message) (models.Message, error)
	MarkSeen(ctx context.Context, conversationID, viewerID string) (bool, error)
}

// ConversationRepo is a docstore implementation of ConversationRepository.
type ConversationRepo struct {
	store docstore.Store
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(store docstore.Store) *ConversationRepo {
	return &ConversationRepo{store: store}
}

// Get returns docstore.ErrNotFound for a conversation without messages.
func (r *ConversationRepo) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	doc, err := r.store.Get(ctx, ConversationsCollection, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	return decodeConversation(doc)
}

// Watch streams the conversation record. A missing record is reported as
// docstore.ErrNotFound and the watch continues.
func (r *ConversationRepo) Watch(ctx context.Context, conversationID string, fn func(models.Conversation, error)) (docstore.Subscription, error) {
	return r.store.Watch(ctx, ConversationsCollection, conversationID, func(doc docstore.Document, err error) {
		if err != nil {
			fn(models.Conversation{}, err)
			return
		}
		fn(decodeConversation(doc))
	})
}

// RecordMessage appends msg and refreshes the conversation summary in one
// transaction. Both carry msg.Timestamp.
func (r *ConversationRepo) RecordMessage(ctx context.Context, conversationID string, userIDs []string, msg models.Message) (models.Message, error) {
	msg.ConversationID = conversationID
	path := MessagesPath(conversationID)
	err := r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		id, err := tx.Append(path, docstore.Fields{
			"senderId":            msg.SenderID,
			"senderProfilePicUrl": msg.SenderProfilePicURL,
			"text":                msg.Text,
			"timestamp":           msg.Timestamp,
			"isSender":            msg.IsSender,
		})
		if err != nil {
			return err
		}
		msg.ID = id

		return tx.Upsert(ConversationsCollection, conversationID, docstore.Fields{
			"userIds":       userIDs,
			"lastMessage":   msg.Text,
			"lastTimestamp": msg.Timestamp,
			"seen":          false,
			"seenBy":        []string{},
		}, true)
	})
	if err != nil {
		return models.Message{}, docstore.WrapWrite("send message", ConversationsCollection, conversationID, err)
	}
	return msg, nil
}

// MarkSeen flips the shared seen flag and records the viewer. It reports
// false without writing when the conversation does not exist.
func (r *ConversationRepo) MarkSeen(ctx context.Context, conversationID, viewerID string) (bool, error) {
	found := false
	err := r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(ConversationsCollection, conversationID)
		if docstore.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		conv, err := decodeConversation(doc)
		if err != nil {
			return err
		}
		found = true
		return tx.Update(ConversationsCollection, conversationID, docstore.Fields{
			"seen":   true,
			"seenBy": addViewer(conv.SeenBy, viewerID),
		})
	})
	if err != nil {
		return false, docstore.WrapWrite("mark seen", ConversationsCollection, conversationID, err)
	}
	return found, nil
}

func addViewer(seenBy []string, viewerID string) []string {
	out := make([]string, 0, len(seenBy)+1)
	for _, id := range seenBy {
		if id == viewerID {
			return append(out, seenBy...)
		}
	}
	out = append(out, seenBy...)
	return append(out, viewerID)
}

func decodeConversation(doc docstore.Document) (models.Conversation, error) {
	var conv models.Conversation
	if err := docstore.Decode(doc.Data, &conv); err != nil {
		return models.Conversation{}, err
	}
	conv.ID = doc.ID
	return conv, nil
}

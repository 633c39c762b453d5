// Package conversation sends messages, keeps the shared unread flag and
// serves message history for two-party conversations.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-sync/internal/convid"
	"chat-sync/internal/docstore"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
)

var ErrEmptyMessage = errors.New("message text is empty")

const defaultWriteTimeout = 10 * time.Second

// Service writes and reads conversations.
type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	events        *telemetry.Emitter
	log           logrus.FieldLogger
	timeout       time.Duration
	now           func() time.Time
}

type Option func(*Service)

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces the clock that stamps messages.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithEmitter(e *telemetry.Emitter) Option {
	return func(s *Service) { s.events = e }
}

func NewService(conversations repositories.ConversationRepository, messages repositories.MessageRepository, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		conversations: conversations,
		messages:      messages,
		log:           log,
		timeout:       defaultWriteTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessage appends a message from sender to friendID and refreshes the
// conversation summary with the same timestamp, leaving it unseen.
func (s *Service) SendMessage(ctx context.Context, sender models.User, friendID, text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	key, err := convid.Key(sender.ID, friendID)
	if err != nil {
		return models.Message{}, err
	}
	first, second, err := convid.Participants(key)
	if err != nil {
		return models.Message{}, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "conversation.SendMessage", trace.WithAttributes(
		attribute.String("conversation_id", key),
		attribute.String("sender_id", sender.ID),
	))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := models.Message{
		SenderID:            sender.ID,
		SenderProfilePicURL: sender.ProfilePicURL,
		Text:                text,
		Timestamp:           s.now().UTC(),
		IsSender:            true,
	}
	msg, err = s.conversations.RecordMessage(ctx, key, []string{first, second}, msg)
	if err != nil {
		s.fail(span, "send_message", err)
		return models.Message{}, err
	}

	s.log.WithFields(logrus.Fields{"conversation_id": key, "sender_id": sender.ID, "message_id": msg.ID}).Debug("message sent")
	s.events.Emit(ctx, telemetry.EventMessageSent, sender.ID, msg)
	return msg, nil
}

// Compose sends text through the draft buffer. The draft is stashed before
// the write and dropped once it succeeds; on failure it is kept and returned
// so the caller can put it back in front of the user.
func (s *Service) Compose(ctx context.Context, drafts *Drafts, sender models.User, friendID, text string) (models.Message, string, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, "", ErrEmptyMessage
	}
	key, err := convid.Key(sender.ID, friendID)
	if err != nil {
		return models.Message{}, "", err
	}
	drafts.Stash(key, text)

	msg, err := s.SendMessage(ctx, sender, friendID, text)
	if err != nil {
		draft, _ := drafts.Restore(key)
		return models.Message{}, draft, err
	}
	drafts.Clear(key)
	return msg, "", nil
}

// MarkSeen sets the shared seen flag of a conversation. Nothing is written
// when the conversation does not exist yet.
func (s *Service) MarkSeen(ctx context.Context, conversationID, viewerID string) error {
	ctx, span := telemetry.Tracer().Start(ctx, "conversation.MarkSeen", trace.WithAttributes(
		attribute.String("conversation_id", conversationID),
		attribute.String("viewer_id", viewerID),
	))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	found, err := s.conversations.MarkSeen(ctx, conversationID, viewerID)
	if err != nil {
		s.fail(span, "mark_seen", err)
		return err
	}
	if found {
		s.events.Emit(ctx, telemetry.EventConversationSeen, viewerID, map[string]string{"conversation_id": conversationID})
	}
	return nil
}

// History returns the messages of a conversation in ascending order.
func (s *Service) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.messages.History(ctx, conversationID)
}

// WatchMessages streams the ascending message list of a conversation.
func (s *Service) WatchMessages(ctx context.Context, conversationID string, fn func([]models.Message, error)) (docstore.Subscription, error) {
	return s.messages.WatchAll(ctx, conversationID, fn)
}

func (s *Service) fail(span trace.Span, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, docstore.ErrWriteFailure) {
		observability.IncWriteFailure(op)
		s.log.WithError(err).WithField("op", op).Error("write failed")
	}
}

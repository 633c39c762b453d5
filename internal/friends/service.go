// Package friends implements the friend request workflow: sending, accepting
// and rejecting requests, and the live pending-request view.
package friends

import (
	"context"
	"errors"
	"fmt"
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

var ErrSelfRequest = errors.New("cannot send a friend request to yourself")

const defaultWriteTimeout = 10 * time.Second

// Service runs the friend request state machine against the store.
type Service struct {
	requests repositories.FriendRequestRepository
	events   *telemetry.Emitter
	log      logrus.FieldLogger
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Service)

// WithWriteTimeout bounds every write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces the clock that stamps friendships.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithEmitter(e *telemetry.Emitter) Option {
	return func(s *Service) { s.events = e }
}

func NewService(requests repositories.FriendRequestRepository, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		log:      log,
		timeout:  defaultWriteTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendRequest writes a pending request from requesterID to targetID. Sending
// again overwrites the stored request, whatever its state.
func (s *Service) SendRequest(ctx context.Context, requesterID, targetID string) (models.FriendRequest, error) {
	if err := convid.Validate(requesterID); err != nil {
		return models.FriendRequest{}, fmt.Errorf("requester %q: %w", requesterID, err)
	}
	if err := convid.Validate(targetID); err != nil {
		return models.FriendRequest{}, fmt.Errorf("target %q: %w", targetID, err)
	}
	if requesterID == targetID {
		return models.FriendRequest{}, ErrSelfRequest
	}

	ctx, span := s.start(ctx, "friends.SendRequest", attribute.String("sender_id", requesterID), attribute.String("receiver_id", targetID))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := s.requests.Put(ctx, models.FriendRequest{SenderID: requesterID, ReceiverID: targetID})
	if err != nil {
		s.fail(span, "send_friend_request", err)
		return models.FriendRequest{}, err
	}

	s.log.WithFields(logrus.Fields{"request_id": req.ID, "sender_id": requesterID, "receiver_id": targetID}).Info("friend request sent")
	s.events.Emit(ctx, telemetry.EventFriendRequestSent, requesterID, req)
	return req, nil
}

// Accept moves a pending request to accepted and materializes the friendship
// in the same transaction.
func (s *Service) Accept(ctx context.Context, requestID string) (models.FriendRequest, error) {
	return s.resolve(ctx, requestID, models.RequestAccepted, telemetry.EventFriendRequestAccepted)
}

// Reject moves a pending request to rejected. The record is kept.
func (s *Service) Reject(ctx context.Context, requestID string) (models.FriendRequest, error) {
	return s.resolve(ctx, requestID, models.RequestRejected, telemetry.EventFriendRequestRejected)
}

func (s *Service) resolve(ctx context.Context, requestID string, next models.RequestStatus, event string) (models.FriendRequest, error) {
	ctx, span := s.start(ctx, "friends."+string(next), attribute.String("request_id", requestID))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := s.requests.Transition(ctx, requestID, next, s.now())
	if err != nil {
		s.fail(span, string(next)+"_friend_request", err)
		return models.FriendRequest{}, err
	}

	s.log.WithFields(logrus.Fields{"request_id": requestID, "status": next}).Info("friend request resolved")
	s.events.Emit(ctx, event, req.ReceiverID, req)
	return req, nil
}

// Get returns a request by its composite key.
func (s *Service) Get(ctx context.Context, requestID string) (models.FriendRequest, error) {
	return s.requests.Get(ctx, requestID)
}

// ListPending returns the pending requests addressed to userID.
func (s *Service) ListPending(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	return s.requests.ListPending(ctx, userID)
}

// WatchPending streams the pending requests addressed to userID until the
// subscription is stopped or ctx ends.
func (s *Service) WatchPending(ctx context.Context, userID string, fn func([]models.FriendRequest, error)) (docstore.Subscription, error) {
	return s.requests.WatchPending(ctx, userID, fn)
}

func (s *Service) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) fail(span trace.Span, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, docstore.ErrWriteFailure) {
		observability.IncWriteFailure(op)
		s.log.WithError(err).WithField("op", op).Error("write failed")
	}
}

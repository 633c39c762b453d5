package telemetry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"chat-sync/internal/observability"
)

// Routing keys of domain events.
const (
	EventFriendRequestSent     = "friend_request.sent"
	EventFriendRequestAccepted = "friend_request.accepted"
	EventFriendRequestRejected = "friend_request.rejected"
	EventMessageSent           = "message.sent"
	EventConversationSeen      = "conversation.seen"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// Emitter wraps domain events in an Envelope and publishes them.
type Emitter struct {
	publisher   Publisher
	service     string
	environment string
	log         logrus.FieldLogger
}

type Envelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	RequestID     string `json:"request_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	Payload       any    `json:"payload"`
}

type requestIDKey struct{}

// WithRequestID stores the request id events emitted under ctx carry.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func NewEmitter(publisher Publisher, service, environment string, log logrus.FieldLogger) *Emitter {
	return &Emitter{
		publisher:   publisher,
		service:     service,
		environment: environment,
		log:         log,
	}
}

// Emit publishes an event. Failures are logged and counted, never returned.
func (e *Emitter) Emit(ctx context.Context, eventType, userID string, payload any) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := Envelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     RequestID(ctx),
		UserID:        userID,
		Payload:       payload,
	}

	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	headers := observability.BuildHeaders(envelope.RequestID, traceID)

	if err := e.publisher.Publish(ctx, eventType, envelope, headers); err != nil {
		observability.IncAMQPPublishError()
		if e.log != nil {
			e.log.WithError(err).WithField("event_type", eventType).Warn("event publish failed")
		}
	}
}

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/logging"
)

type recordingPublisher struct {
	keys    []string
	events  []any
	headers []map[string]string
	err     error
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	p.keys = append(p.keys, routingKey)
	p.events = append(p.events, event)
	p.headers = append(p.headers, headers)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func TestEmitWrapsPayload(t *testing.T) {
	pub := &recordingPublisher{}
	emitter := NewEmitter(pub, "chat-sync", "test", logging.Discard())

	ctx := WithRequestID(context.Background(), "req-1")
	emitter.Emit(ctx, EventMessageSent, "1", map[string]string{"conversation_id": "1_2"})

	require.Len(t, pub.events, 1)
	assert.Equal(t, EventMessageSent, pub.keys[0])
	envelope, ok := pub.events[0].(Envelope)
	require.True(t, ok)
	assert.Equal(t, 1, envelope.SchemaVersion)
	assert.Equal(t, "chat-sync", envelope.Service)
	assert.Equal(t, "req-1", envelope.RequestID)
	assert.Equal(t, "1", envelope.UserID)
	assert.Equal(t, "req-1", pub.headers[0]["x-request-id"])
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	emitter := NewEmitter(pub, "chat-sync", "test", logging.Discard())

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), EventConversationSeen, "2", nil)
	})
	assert.Len(t, pub.events, 1)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *Emitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), EventMessageSent, "", nil)
	})
}

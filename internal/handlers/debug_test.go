package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/friends"
	"chat-sync/internal/logging"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/telemetry"
)

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterDebugRoutes(router, nil, false)

	rec := serve(router, http.MethodPost, "/debug/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugEventPublishes(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewEmitter(publisher, "chat-sync", "test", logging.Discard())

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(observability.RequestLogger(logging.Discard()))
	RegisterDebugRoutes(router, emitter, true)

	publisher.On("Publish", mock.Anything, "debug.test", mock.MatchedBy(func(env telemetry.Envelope) bool {
		return env.EventType == "debug.test" && env.RequestID != ""
	}), mock.Anything).Return(nil).Once()

	rec := serve(router, http.MethodPost, "/debug/events", "")

	require.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)
}

func TestSendFriendRequestEmitsEvent(t *testing.T) {
	_, sess := newTestSession(t, "3")
	repo := new(mocks.FriendRequestRepositoryMock)
	publisher := new(mocks.PublisherMock)
	service := friends.NewService(repo, logging.Discard(),
		friends.WithEmitter(telemetry.NewEmitter(publisher, "chat-sync", "test", logging.Discard())))
	handler := NewFriendRequestHandler(service)
	router := setupRouter(sess, func(r *gin.Engine) { r.POST("/friend-requests", handler.Send) })

	repo.On("Put", mock.Anything, mock.Anything).
		Return(models.FriendRequest{ID: "3_7", SenderID: "3", ReceiverID: "7", Status: models.RequestPending}, nil).Once()
	publisher.On("Publish", mock.Anything, telemetry.EventFriendRequestSent, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	rec := serve(router, http.MethodPost, "/friend-requests", `{"target_id":"7"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

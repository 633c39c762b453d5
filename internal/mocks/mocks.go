package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/docstore"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) EnsureProfile(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) FindByEmail(ctx context.Context, email string) ([]models.User, error) {
	args := m.Called(ctx, email)
	var out []models.User
	if val := args.Get(0); val != nil {
		out = val.([]models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) UpdateProfilePicture(ctx context.Context, userID string, url string) error {
	args := m.Called(ctx, userID, url)
	return args.Error(0)
}

type FriendRequestRepositoryMock struct {
	mock.Mock
}

func (m *FriendRequestRepositoryMock) Put(ctx context.Context, req models.FriendRequest) (models.FriendRequest, error) {
	args := m.Called(ctx, req)
	var out models.FriendRequest
	if val := args.Get(0); val != nil {
		out = val.(models.FriendRequest)
	}
	return out, args.Error(1)
}

func (m *FriendRequestRepositoryMock) Get(ctx context.Context, requestID string) (models.FriendRequest, error) {
	args := m.Called(ctx, requestID)
	var out models.FriendRequest
	if val := args.Get(0); val != nil {
		out = val.(models.FriendRequest)
	}
	return out, args.Error(1)
}

func (m *FriendRequestRepositoryMock) Transition(ctx context.Context, requestID string, next models.RequestStatus, at time.Time) (models.FriendRequest, error) {
	args := m.Called(ctx, requestID, next, at)
	var out models.FriendRequest
	if val := args.Get(0); val != nil {
		out = val.(models.FriendRequest)
	}
	return out, args.Error(1)
}

func (m *FriendRequestRepositoryMock) GetFriendship(ctx context.Context, friendshipID string) (models.Friendship, error) {
	args := m.Called(ctx, friendshipID)
	var out models.Friendship
	if val := args.Get(0); val != nil {
		out = val.(models.Friendship)
	}
	return out, args.Error(1)
}

func (m *FriendRequestRepositoryMock) ListPending(ctx context.Context, receiverID string) ([]models.FriendRequest, error) {
	args := m.Called(ctx, receiverID)
	var out []models.FriendRequest
	if val := args.Get(0); val != nil {
		out = val.([]models.FriendRequest)
	}
	return out, args.Error(1)
}

func (m *FriendRequestRepositoryMock) WatchPending(ctx context.Context, receiverID string, fn func([]models.FriendRequest, error)) (docstore.Subscription, error) {
	args := m.Called(ctx, receiverID, fn)
	var sub docstore.Subscription
	if val := args.Get(0); val != nil {
		sub = val.(docstore.Subscription)
	}
	return sub, args.Error(1)
}

func (m *FriendRequestRepositoryMock) WatchAccepted(ctx context.Context, userID string, fn func([]models.FriendRequest, error)) (docstore.Subscription, error) {
	args := m.Called(ctx, userID, fn)
	var sub docstore.Subscription
	if val := args.Get(0); val != nil {
		sub = val.(docstore.Subscription)
	}
	return sub, args.Error(1)
}

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var out models.Conversation
	if val := args.Get(0); val != nil {
		out = val.(models.Conversation)
	}
	return out, args.Error(1)
}

func (m *ConversationRepositoryMock) Watch(ctx context.Context, conversationID string, fn func(models.Conversation, error)) (docstore.Subscription, error) {
	args := m.Called(ctx, conversationID, fn)
	var sub docstore.Subscription
	if val := args.Get(0); val != nil {
		sub = val.(docstore.Subscription)
	}
	return sub, args.Error(1)
}

func (m *ConversationRepositoryMock) RecordMessage(ctx context.Context, conversationID string, userIDs []string, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, conversationID, userIDs, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *ConversationRepositoryMock) MarkSeen(ctx context.Context, conversationID, viewerID string) (bool, error) {
	args := m.Called(ctx, conversationID, viewerID)
	return args.Bool(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var out []models.Message
	if val := args.Get(0); val != nil {
		out = val.([]models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) WatchAll(ctx context.Context, conversationID string, fn func([]models.Message, error)) (docstore.Subscription, error) {
	args := m.Called(ctx, conversationID, fn)
	var sub docstore.Subscription
	if val := args.Get(0); val != nil {
		sub = val.(docstore.Subscription)
	}
	return sub, args.Error(1)
}

func (m *MessageRepositoryMock) WatchLatest(ctx context.Context, conversationID string, fn func(*models.Message, error)) (docstore.Subscription, error) {
	args := m.Called(ctx, conversationID, fn)
	var sub docstore.Subscription
	if val := args.Get(0); val != nil {
		sub = val.(docstore.Subscription)
	}
	return sub, args.Error(1)
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.FriendRequestRepository = (*FriendRequestRepositoryMock)(nil)
var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)

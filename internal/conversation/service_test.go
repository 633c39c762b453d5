package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/convid"
	"chat-sync/internal/docstore"
	"chat-sync/internal/docstore/memstore"
	"chat-sync/internal/logging"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(repositories.NewConversationRepo(store), repositories.NewMessageRepo(store), logging.Discard(),
		WithClock(c.Now))
	return svc, store
}

var (
	alice = models.User{ID: "1", DisplayName: "A", ProfilePicURL: "https://pics/a.png"}
	bob   = models.User{ID: "2", DisplayName: "B", ProfilePicURL: "https://pics/b.png"}
)

func TestSendMessageCreatesConversationAndMessage(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	convs := repositories.NewConversationRepo(store)

	msg, err := svc.SendMessage(ctx, alice, "2", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "1_2", msg.ConversationID)

	conv, err := convs.Get(ctx, "1_2")
	require.NoError(t, err)
	assert.Equal(t, "hello", conv.LastMessage)
	assert.False(t, conv.Seen)
	assert.Equal(t, []string{"1", "2"}, conv.UserIDs)
	assert.True(t, msg.Timestamp.Equal(conv.LastTimestamp))

	history, err := svc.History(ctx, "1_2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, "1", history[0].SenderID)
	assert.Equal(t, alice.ProfilePicURL, history[0].SenderProfilePicURL)
	assert.True(t, history[0].IsSender)
}

func TestSendMessageResetsSeen(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	convs := repositories.NewConversationRepo(store)

	_, err := svc.SendMessage(ctx, alice, "2", "hello")
	require.NoError(t, err)
	require.NoError(t, svc.MarkSeen(ctx, "1_2", "2"))

	conv, err := convs.Get(ctx, "1_2")
	require.NoError(t, err)
	assert.True(t, conv.Seen)
	assert.Equal(t, []string{"2"}, conv.SeenBy)

	second, err := svc.SendMessage(ctx, bob, "1", "hi back")
	require.NoError(t, err)

	conv, err = convs.Get(ctx, "1_2")
	require.NoError(t, err)
	assert.False(t, conv.Seen)
	assert.Empty(t, conv.SeenBy)
	assert.Equal(t, "hi back", conv.LastMessage)
	assert.True(t, second.Timestamp.Equal(conv.LastTimestamp))
	assert.Equal(t, []string{"1", "2"}, conv.UserIDs)
}

func TestSendMessageValidation(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, alice, "2", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.SendMessage(ctx, alice, "bob", "hello")
	assert.ErrorIs(t, err, convid.ErrInvalidIdentifier)

	assert.Zero(t, store.Count(repositories.ConversationsCollection))
}

func TestMarkSeenOnMissingConversationIsNoop(t *testing.T) {
	svc, store := newService(t)

	require.NoError(t, svc.MarkSeen(context.Background(), "1_2", "1"))
	assert.Zero(t, store.Count(repositories.ConversationsCollection))
}

func TestMarkSeenIsSharedAndIdempotent(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, alice, "2", "hello")
	require.NoError(t, err)

	// The sender opening the conversation flips the shared flag too.
	require.NoError(t, svc.MarkSeen(ctx, "1_2", "1"))
	require.NoError(t, svc.MarkSeen(ctx, "1_2", "1"))

	conv, err := repositories.NewConversationRepo(store).Get(ctx, "1_2")
	require.NoError(t, err)
	assert.True(t, conv.Seen)
	assert.Equal(t, []string{"1"}, conv.SeenBy)
}

func TestComposeKeepsDraftOnFailure(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	drafts := NewDrafts()

	store.FailWrites(errors.New("offline"))
	_, draft, err := svc.Compose(ctx, drafts, alice, "2", "hello")
	assert.ErrorIs(t, err, docstore.ErrWriteFailure)
	assert.Equal(t, "hello", draft)
	restored, ok := drafts.Restore("1_2")
	assert.True(t, ok)
	assert.Equal(t, "hello", restored)
	assert.Zero(t, store.Count(repositories.ConversationsCollection))
	assert.Zero(t, store.Count(repositories.MessagesPath("1_2")))

	store.FailWrites(nil)
	msg, draft, err := svc.Compose(ctx, drafts, alice, "2", "hello")
	require.NoError(t, err)
	assert.Empty(t, draft)
	assert.Equal(t, "hello", msg.Text)
	_, ok = drafts.Restore("1_2")
	assert.False(t, ok)
}

func TestComposeBlankTextLeavesNoDraft(t *testing.T) {
	svc, store := newService(t)
	drafts := NewDrafts()

	_, draft, err := svc.Compose(context.Background(), drafts, alice, "2", "  \n ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, draft)
	_, ok := drafts.Restore("1_2")
	assert.False(t, ok)
	assert.Zero(t, store.Count(repositories.ConversationsCollection))
}

func TestWatchMessagesStreamsAscending(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		texts []string
	)
	sub, err := svc.WatchMessages(ctx, "1_2", func(msgs []models.Message, err error) {
		assert.NoError(t, err)
		mu.Lock()
		defer mu.Unlock()
		texts = texts[:0]
		for _, m := range msgs {
			texts = append(texts, m.Text)
		}
	})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, alice, "2", "one")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, bob, "1", "two")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(texts) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"one", "two"}, texts)
	mu.Unlock()

	sub.Stop()
	assert.Zero(t, store.ActiveSubscriptions())
}

func TestDraftsClose(t *testing.T) {
	drafts := NewDrafts()
	drafts.Stash("1_2", "hey")
	require.NoError(t, drafts.Close())
	_, ok := drafts.Restore("1_2")
	assert.False(t, ok)
}

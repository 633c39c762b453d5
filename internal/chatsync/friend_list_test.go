package chatsync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/conversation"
	"chat-sync/internal/docstore"
	"chat-sync/internal/docstore/memstore"
	"chat-sync/internal/friends"
	"chat-sync/internal/logging"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
	"chat-sync/internal/session"
)

const waitFor = 2 * time.Second

type fixture struct {
	t        *testing.T
	store    *memstore.Store
	deps     Deps
	sessions *session.Manager
	friends  *friends.Service
	convs    *conversation.Service
	clock    time.Time
	mu       sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{t: t, store: store, clock: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	log := logging.Discard()
	requests := repositories.NewFriendRequestRepo(store)
	users := repositories.NewUserRepo(store)
	conversations := repositories.NewConversationRepo(store)
	messages := repositories.NewMessageRepo(store)

	f.deps = Deps{Requests: requests, Users: users, Conversations: conversations, Messages: messages, Log: log}
	f.sessions = session.NewManager(users, log, 100, 100)
	f.friends = friends.NewService(requests, log)
	f.convs = conversation.NewService(conversations, messages, log, conversation.WithClock(f.tick))
	return f
}

func (f *fixture) tick() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *fixture) login(id string) *session.Session {
	f.t.Helper()
	sess, err := f.sessions.Login(context.Background(), session.Identity{UserID: id, Email: "user" + id + "@example.com", DisplayName: "User " + id})
	require.NoError(f.t, err)
	return sess
}

func (f *fixture) befriend(sender, receiver string) {
	f.t.Helper()
	ctx := context.Background()
	req, err := f.friends.SendRequest(ctx, sender, receiver)
	require.NoError(f.t, err)
	_, err = f.friends.Accept(ctx, req.ID)
	require.NoError(f.t, err)
}

func (f *fixture) send(from *session.Session, to, text string) {
	f.t.Helper()
	_, err := f.convs.SendMessage(context.Background(), from.Profile(), to, text)
	require.NoError(f.t, err)
}

func (f *fixture) open(sess *session.Session) (*FriendList, *int64) {
	f.t.Helper()
	var changes int64
	list, err := Open(context.Background(), sess, f.deps, func([]models.FriendListEntry) {
		atomic.AddInt64(&changes, 1)
	})
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = list.Close() })
	return list, &changes
}

func friendIDs(entries []models.FriendListEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.FriendID)
	}
	return ids
}

func waitForList(t *testing.T, list *FriendList, cond func([]models.FriendListEntry) bool) []models.FriendListEntry {
	t.Helper()
	var last []models.FriendListEntry
	ok := assert.Eventually(t, func() bool {
		last = list.Snapshot()
		return cond(last)
	}, waitFor, 5*time.Millisecond)
	if !ok {
		t.Logf("last snapshot: %+v", last)
	}
	return last
}

func TestFriendListComposesAcceptedFriendsOnBothSides(t *testing.T) {
	f := newFixture(t)
	me := f.login("1")
	f.login("2")
	f.login("3")
	f.befriend("1", "2")
	f.befriend("3", "1")
	_, err := f.friends.SendRequest(context.Background(), "1", "4")
	require.NoError(t, err)

	list, _ := f.open(me)
	entries := waitForList(t, list, func(e []models.FriendListEntry) bool {
		return len(e) == 2 && e[0].Profile.DisplayName != "" && e[1].Profile.DisplayName != ""
	})

	assert.ElementsMatch(t, []string{"2", "3"}, friendIDs(entries))
	for _, e := range entries {
		assert.Equal(t, models.NoMessageYet, e.LastMessage.Text)
		assert.False(t, e.LastMessage.Seen)
		assert.Empty(t, e.Degraded)
		assert.Equal(t, "User "+e.FriendID, e.Profile.DisplayName)
	}
}

func TestFriendListSortsByLatestMessage(t *testing.T) {
	f := newFixture(t)
	me := f.login("1")
	f.login("2")
	f.login("3")
	f.befriend("1", "2")
	f.befriend("1", "3")

	f.send(me, "2", "older")
	f.send(me, "3", "newer")

	list, _ := f.open(me)
	entries := waitForList(t, list, func(e []models.FriendListEntry) bool {
		return len(e) == 2 && e[0].FriendID == "3"
	})
	assert.Equal(t, []string{"3", "2"}, friendIDs(entries))
	assert.Equal(t, "newer", entries[0].LastMessage.Text)
	assert.True(t, entries[0].LastMessage.Timestamp.After(entries[1].LastMessage.Timestamp))

	f.send(me, "2", "newest")
	entries = waitForList(t, list, func(e []models.FriendListEntry) bool {
		return len(e) == 2 && e[0].FriendID == "2"
	})
	assert.Equal(t, []string{"2", "3"}, friendIDs(entries))
	assert.Equal(t, "newest", entries[0].LastMessage.Text)
}

func TestFriendListReflectsSeen(t *testing.T) {
	f := newFixture(t)
	me := f.login("1")
	friend := f.login("2")
	f.befriend("1", "2")
	f.send(friend, "1", "hello")

	list, _ := f.open(me)
	waitForList(t, list, func(e []models.FriendListEntry) bool {
		return len(e) == 1 && e[0].LastMessage.Text == "hello" && !e[0].LastMessage.Seen
	})

	require.NoError(t, f.convs.MarkSeen(context.Background(), "1_2", "1"))
	waitForList(t, list, func(e []models.FriendListEntry) bool {
		return len(e) == 1 && e[0].LastMessage.Seen
	})

	f.send(friend, "1", "again")
	waitForList(t, list, func(e []models.FriendListEntry) bool {
		return len(e) == 1 && e[0].LastMessage.Text == "again" && !e[0].LastMessage.Seen
	})
}

func TestFriendListAddsNewFriendsLive(t *testing.T) {
	f := newFixture(t)
	me := f.login("1")
	f.login("2")

	list, _ := f.open(me)
	// Both sides of the friendship query are live before any friend shows up.
	require.Eventually(t, func() bool { return f.store.ActiveSubscriptions() == 2 }, waitFor, 5*time.Millisecond)

	f.befriend("2", "1")
	waitForList(t, list, func(e []models.FriendListEntry) bool {
		return len(e) == 1 && e[0].FriendID == "2" && e[0].ConversationID == "1_2"
	})
	assert.Equal(t, 4, f.store.ActiveSubscriptions())
}

func TestFriendListDeduplicatesMutualRequests(t *testing.T) {
	f := newFixture(t)
	me := f.login("1")
	f.login("2")
	ctx := context.Background()
	_, err := f.friends.SendRequest(ctx, "1", "2")
	require.NoError(t, err)
	_, err = f.friends.SendRequest(ctx, "2", "1")
	require.NoError(t, err)
	_, err = f.friends.Accept(ctx, "1_2")
	require.NoError(t, err)
	_, err = f.friends.Accept(ctx, "2_1")
	require.NoError(t, err)

	list, _ := f.open(me)
	waitForList(t, list, func(e []models.FriendListEntry) bool { return len(e) == 1 })

	// Give every stream time to emit; the entry must never duplicate.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, list.Snapshot(), 1)
	assert.Equal(t, 4, f.store.ActiveSubscriptions())
}

func TestFriendListMarksDegradedSources(t *testing.T) {
	f := newFixture(t)
	me := f.login("1")
	ctx := context.Background()

	// Friend 5 never logged in, so there is no profile to read.
	f.befriend("1", "5")
	// A friendship with an id that cannot form a conversation key.
	require.NoError(t, f.store.Upsert(ctx, repositories.FriendRequestsCollection, "1_bob", docstore.Fields{
		"senderId":   "1",
		"receiverId": "bob",
		"status":     string(models.RequestAccepted),
	}, false))

	list, _ := f.open(me)
	entries := waitForList(t, list, func(e []models.FriendListEntry) bool {
		if len(e) != 2 {
			return false
		}
		for _, entry := range e {
			if len(entry.Degraded) == 0 {
				return false
			}
		}
		return true
	})

	byID := map[string]models.FriendListEntry{}
	for _, e := range entries {
		byID[e.FriendID] = e
	}
	assert.Contains(t, byID["5"].Degraded, models.DegradedProfile)
	assert.Equal(t, models.DefaultProfilePicURL, byID["5"].Profile.ProfilePicURL)
	assert.Equal(t, models.NoMessageYet, byID["5"].LastMessage.Text)

	assert.Contains(t, byID["bob"].Degraded, models.DegradedConversation)
	assert.Contains(t, byID["bob"].Degraded, models.DegradedLastMessage)
	assert.Empty(t, byID["bob"].ConversationID)
}

func TestFriendListShowsPlaceholderForEmptyText(t *testing.T) {
	f := newFixture(t)
	me := f.login("1")
	f.login("2")
	f.befriend("1", "2")

	_, err := f.deps.Conversations.RecordMessage(context.Background(), "1_2", []string{"1", "2"}, models.Message{
		SenderID:  "2",
		Timestamp: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	list, _ := f.open(me)
	waitForList(t, list, func(e []models.FriendListEntry) bool {
		return len(e) == 1 && e[0].LastMessage.Text == models.NoMessageText
	})
}

func TestFriendListCloseReleasesEverySubscription(t *testing.T) {
	f := newFixture(t)
	me := f.login("1")
	f.login("2")
	f.login("3")
	f.befriend("1", "2")
	f.befriend("1", "3")

	list, changes := f.open(me)
	waitForList(t, list, func(e []models.FriendListEntry) bool { return len(e) == 2 })
	require.Eventually(t, func() bool { return f.store.ActiveSubscriptions() == 6 }, waitFor, 5*time.Millisecond)

	require.NoError(t, list.Close())
	require.NoError(t, list.Close())
	assert.Zero(t, f.store.ActiveSubscriptions())

	before := atomic.LoadInt64(changes)
	snapshot := list.Snapshot()
	f.send(me, "2", "after close")
	f.befriend("1", "4")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, atomic.LoadInt64(changes))
	assert.Equal(t, snapshot, list.Snapshot())
}

func TestLogoutClosesFriendList(t *testing.T) {
	f := newFixture(t)
	me := f.login("1")
	f.login("2")
	f.befriend("1", "2")

	list, _ := f.open(me)
	waitForList(t, list, func(e []models.FriendListEntry) bool { return len(e) == 1 })

	require.NoError(t, f.sessions.Logout(me.Token))
	assert.Zero(t, f.store.ActiveSubscriptions())
}

func TestFriendListClosesWithContext(t *testing.T) {
	f := newFixture(t)
	me := f.login("1")
	f.login("2")
	f.befriend("1", "2")

	ctx, cancel := context.WithCancel(context.Background())
	list, err := Open(ctx, me, f.deps, nil)
	require.NoError(t, err)
	waitForList(t, list, func(e []models.FriendListEntry) bool { return len(e) == 1 })

	cancel()
	require.Eventually(t, func() bool { return f.store.ActiveSubscriptions() == 0 }, waitFor, 5*time.Millisecond)
	require.NoError(t, list.Close())
}

func TestFriendListOpenWithCancelledContext(t *testing.T) {
	f := newFixture(t)
	me := f.login("1")
	f.login("2")
	f.befriend("1", "2")

	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		list, err := Open(ctx, me, f.deps, nil)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return f.store.ActiveSubscriptions() == 0 }, waitFor, time.Millisecond)
		require.NoError(t, list.Close())
	}
}

func TestFriendListDropsFriendWhenRequestNoLongerAccepted(t *testing.T) {
	f := newFixture(t)
	me := f.login("1")
	f.login("2")
	f.login("3")
	f.befriend("1", "2")
	f.befriend("1", "3")

	list, _ := f.open(me)
	waitForList(t, list, func(e []models.FriendListEntry) bool { return len(e) == 2 })
	require.Eventually(t, func() bool { return f.store.ActiveSubscriptions() == 6 }, waitFor, 5*time.Millisecond)

	// another writer of the shared store moves the request out of accepted
	err := f.store.Update(context.Background(), repositories.FriendRequestsCollection, "1_3", docstore.Fields{"status": string(models.RequestRejected)})
	require.NoError(t, err)

	entries := waitForList(t, list, func(e []models.FriendListEntry) bool { return len(e) == 1 })
	assert.Equal(t, []string{"2"}, friendIDs(entries))
	require.Eventually(t, func() bool { return f.store.ActiveSubscriptions() == 4 }, waitFor, 5*time.Millisecond)
}

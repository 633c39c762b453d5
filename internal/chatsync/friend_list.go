// Package chatsync composes the live friend list: accepted friendships joined
// with profiles, conversation seen state and the latest message, kept sorted
// by recency while every source keeps streaming.
package chatsync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chat-sync/internal/convid"
	"chat-sync/internal/docstore"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/repositories"
	"chat-sync/internal/session"
)

const defaultProfileTimeout = 5 * time.Second

// Deps are the sources a friend list reads from.
type Deps struct {
	Requests       repositories.FriendRequestRepository
	Users          repositories.UserRepository
	Conversations  repositories.ConversationRepository
	Messages       repositories.MessageRepository
	Log            logrus.FieldLogger
	ProfileTimeout time.Duration
}

// FriendList is the live, sorted friend list of one session. All state
// changes run on its event loop; onChange is called from that loop with a
// copy of the list after every change and must not call Close.
type FriendList struct {
	userID   string
	sess     *session.Session
	deps     Deps
	log      logrus.FieldLogger
	onChange func([]models.FriendListEntry)

	ctx       context.Context
	cancel    context.CancelFunc
	loop      *eventLoop
	closeOnce sync.Once

	// Loop-owned.
	top     docstore.Subscription
	handles map[string]*entryHandle
	entries []models.FriendListEntry
	closed  bool

	mu       sync.RWMutex
	snapshot []models.FriendListEntry
}

// Open subscribes to the accepted friendships of the session's user and
// starts composing the list. The list is owned by the session and closes at
// logout, when ctx ends, or on Close.
func Open(ctx context.Context, sess *session.Session, deps Deps, onChange func([]models.FriendListEntry)) (*FriendList, error) {
	if deps.ProfileTimeout <= 0 {
		deps.ProfileTimeout = defaultProfileTimeout
	}
	ctx, cancel := context.WithCancel(ctx)
	l := &FriendList{
		userID:   sess.UserID,
		sess:     sess,
		deps:     deps,
		log:      deps.Log.WithField("user_id", sess.UserID),
		onChange: onChange,
		ctx:      ctx,
		cancel:   cancel,
		loop:     newEventLoop(),
		handles:  make(map[string]*entryHandle),
	}

	top, err := deps.Requests.WatchAccepted(ctx, l.userID, func(reqs []models.FriendRequest, err error) {
		l.loop.post(func() { l.applyFriends(reqs, err) })
	})
	if err != nil {
		l.loop.stop()
		cancel()
		return nil, err
	}
	observability.AddSubscriptions(1)
	l.loop.post(func() { l.top = top })

	// Close cancels ctx itself, so this also fires after an explicit Close;
	// closeOnce makes that second call a no-op.
	context.AfterFunc(ctx, func() { _ = l.Close() })
	if err := sess.Own(l); err != nil {
		return nil, err
	}
	return l, nil
}

// Snapshot returns the current sorted list.
func (l *FriendList) Snapshot() []models.FriendListEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.FriendListEntry, len(l.snapshot))
	copy(out, l.snapshot)
	return out
}

// Close releases the friendship subscription and every entry's nested pair
// as one unit. No callback touches the list once Close returns.
func (l *FriendList) Close() error {
	l.closeOnce.Do(func() {
		done := make(chan struct{})
		if l.loop.post(func() {
			l.teardown()
			close(done)
		}) {
			<-done
		}
		l.loop.stop()
		l.cancel()
		l.sess.Release(l)
	})
	return nil
}

func (l *FriendList) teardown() {
	l.closed = true
	if l.top != nil {
		l.top.Stop()
		observability.AddSubscriptions(-1)
		l.top = nil
	}
	for id, h := range l.handles {
		h.stop()
		delete(l.handles, id)
	}
}

func (l *FriendList) applyFriends(reqs []models.FriendRequest, err error) {
	if l.closed {
		return
	}
	if err != nil {
		l.log.WithError(err).Warn("friendship subscription failed")
		return
	}

	want := make(map[string]string, len(reqs))
	for _, req := range reqs {
		friendID := req.Counterpart(l.userID)
		if friendID == "" || friendID == l.userID {
			continue
		}
		if _, dup := want[friendID]; !dup {
			want[friendID] = req.ID
		}
	}

	removed := false
	for friendID, h := range l.handles {
		if _, ok := want[friendID]; ok {
			continue
		}
		h.stop()
		delete(l.handles, friendID)
		l.remove(friendID)
		removed = true
	}
	for friendID, requestID := range want {
		if _, ok := l.handles[friendID]; !ok {
			l.handles[friendID] = l.openEntry(friendID, requestID)
		}
	}
	if removed {
		l.publish()
	}
}

func (l *FriendList) openEntry(friendID, requestID string) *entryHandle {
	h := &entryHandle{friendID: friendID, requestID: requestID}
	log := l.log.WithField("friend_id", friendID)

	key, err := convid.Key(l.userID, friendID)
	if err != nil {
		log.WithError(err).Warn("no conversation key for friend")
		h.convFailed, h.convReported = true, true
		h.latestFailed, h.latestReported = true, true
	} else {
		h.conversationID = key
		h.conv, err = l.deps.Conversations.Watch(l.ctx, key, func(conv models.Conversation, err error) {
			l.loop.post(func() { l.onConversation(h, conv, err) })
		})
		if err != nil {
			log.WithError(err).Warn("conversation subscription failed")
			h.convFailed, h.convReported = true, true
		} else {
			observability.AddSubscriptions(1)
		}

		h.latest, err = l.deps.Messages.WatchLatest(l.ctx, key, func(msg *models.Message, err error) {
			l.loop.post(func() { l.onLatest(h, msg, err) })
		})
		if err != nil {
			log.WithError(err).Warn("last message subscription failed")
			h.latestFailed, h.latestReported = true, true
		} else {
			observability.AddSubscriptions(1)
		}
	}

	go l.fetchProfile(h)
	l.splice(h)
	return h
}

// fetchProfile reads the friend's profile once. Later profile edits show up
// only on the next login.
func (l *FriendList) fetchProfile(h *entryHandle) {
	ctx, cancel := context.WithTimeout(l.ctx, l.deps.ProfileTimeout)
	defer cancel()
	user, err := l.deps.Users.GetUser(ctx, h.friendID)
	l.loop.post(func() { l.onProfile(h, user, err) })
}

func (l *FriendList) live(h *entryHandle) bool {
	return !l.closed && l.handles[h.friendID] == h
}

func (l *FriendList) onProfile(h *entryHandle, user models.User, err error) {
	if !l.live(h) {
		return
	}
	if err != nil {
		l.log.WithError(err).WithField("friend_id", h.friendID).Warn("friend profile unavailable")
		h.profileFailed = true
	} else {
		h.profile = user
		h.profileFailed = false
	}
	l.splice(h)
}

func (l *FriendList) onConversation(h *entryHandle, conv models.Conversation, err error) {
	if !l.live(h) {
		return
	}
	h.convReported = true
	switch {
	case err == nil:
		h.seen, h.convFailed = conv.Seen, false
	case docstore.IsNotFound(err):
		h.seen, h.convFailed = false, false
	default:
		l.log.WithError(err).WithField("conversation_id", h.conversationID).Warn("conversation read failed")
		h.seen, h.convFailed = false, true
	}
	l.splice(h)
}

func (l *FriendList) onLatest(h *entryHandle, msg *models.Message, err error) {
	if !l.live(h) {
		return
	}
	h.latestReported = true
	if err != nil {
		l.log.WithError(err).WithField("conversation_id", h.conversationID).Warn("last message read failed")
		h.lastMessage, h.latestFailed = nil, true
	} else {
		h.lastMessage, h.latestFailed = msg, false
	}
	l.splice(h)
}

// splice replaces the friend's entry, or adds it, and re-sorts the list.
// Entries stay hidden until both nested sources have reported once.
func (l *FriendList) splice(h *entryHandle) {
	if !h.convReported || !h.latestReported {
		return
	}
	entry := h.compose()

	replaced := false
	for i := range l.entries {
		if l.entries[i].FriendID == entry.FriendID {
			l.entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		l.entries = append(l.entries, entry)
	}
	sort.SliceStable(l.entries, func(i, j int) bool {
		return l.entries[i].LastMessage.Timestamp.After(l.entries[j].LastMessage.Timestamp)
	})
	observability.IncSplice()
	l.publish()
}

func (l *FriendList) remove(friendID string) {
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.FriendID != friendID {
			kept = append(kept, e)
		}
	}
	l.entries = kept
}

func (l *FriendList) publish() {
	out := make([]models.FriendListEntry, len(l.entries))
	copy(out, l.entries)

	l.mu.Lock()
	l.snapshot = out
	l.mu.Unlock()

	if l.onChange != nil {
		view := make([]models.FriendListEntry, len(out))
		copy(view, out)
		l.onChange(view)
	}
}

package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/convid"
	"chat-sync/internal/docstore/memstore"
	"chat-sync/internal/logging"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

type closer struct {
	fn func() error
}

func (c *closer) Close() error { return c.fn() }

func newCloser(fn func() error) *closer {
	return &closer{fn: fn}
}

func newManager(t *testing.T) (*Manager, *repositories.UserRepo) {
	t.Helper()
	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	users := repositories.NewUserRepo(store)
	return NewManager(users, logging.Discard(), 5, 10), users
}

func TestLoginCreatesProfileWithDefaultPicture(t *testing.T) {
	mgr, users := newManager(t)
	ctx := context.Background()

	sess, err := mgr.Login(ctx, Identity{UserID: "1", Email: "a@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "1", sess.UserID)
	assert.Equal(t, models.DefaultProfilePicURL, sess.Profile().ProfilePicURL)
	assert.Equal(t, "a@example.com", sess.Profile().DisplayName)

	stored, err := users.GetUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, sess.Profile(), stored)

	found, ok := mgr.Lookup(sess.Token)
	assert.True(t, ok)
	assert.Same(t, sess, found)
}

func TestLoginKeepsExistingProfile(t *testing.T) {
	mgr, users := newManager(t)
	ctx := context.Background()

	_, err := mgr.Login(ctx, Identity{UserID: "1", Email: "a@example.com"})
	require.NoError(t, err)
	require.NoError(t, users.UpdateProfilePicture(ctx, "1", "https://pics/new.png"))

	sess, err := mgr.Login(ctx, Identity{UserID: "1", Email: "a@example.com", DisplayName: "Other"})
	require.NoError(t, err)
	assert.Equal(t, "https://pics/new.png", sess.Profile().ProfilePicURL)
	assert.Equal(t, "a@example.com", sess.Profile().DisplayName)
}

func TestLoginRejectsInvalidUserID(t *testing.T) {
	mgr, _ := newManager(t)

	_, err := mgr.Login(context.Background(), Identity{UserID: "abc", Email: "a@example.com"})
	assert.ErrorIs(t, err, convid.ErrInvalidIdentifier)
}

func TestLogoutClosesOwnedResources(t *testing.T) {
	mgr, _ := newManager(t)
	sess, err := mgr.Login(context.Background(), Identity{UserID: "1", Email: "a@example.com"})
	require.NoError(t, err)

	var order []string
	require.NoError(t, sess.Own(newCloser(func() error { order = append(order, "first"); return nil })))
	require.NoError(t, sess.Own(newCloser(func() error { order = append(order, "second"); return nil })))
	sess.Drafts().Stash("1_2", "draft")

	require.NoError(t, mgr.Logout(sess.Token))
	assert.Equal(t, []string{"second", "first"}, order)
	_, ok := sess.Drafts().Restore("1_2")
	assert.False(t, ok)
	_, ok = mgr.Lookup(sess.Token)
	assert.False(t, ok)

	select {
	case <-sess.Done():
	default:
		t.Fatal("session not done after logout")
	}

	assert.ErrorIs(t, mgr.Logout(sess.Token), ErrUnknownSession)
}

func TestOwnOnClosedSessionClosesImmediately(t *testing.T) {
	mgr, _ := newManager(t)
	sess, err := mgr.Login(context.Background(), Identity{UserID: "1", Email: "a@example.com"})
	require.NoError(t, err)
	require.NoError(t, mgr.Logout(sess.Token))

	closed := false
	err = sess.Own(newCloser(func() error { closed = true; return nil }))
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.True(t, closed)
}

func TestReleaseAndCloseErrors(t *testing.T) {
	mgr, _ := newManager(t)
	sess, err := mgr.Login(context.Background(), Identity{UserID: "1", Email: "a@example.com"})
	require.NoError(t, err)

	released := newCloser(func() error { t.Fatal("released closer was closed"); return nil })
	require.NoError(t, sess.Own(released))
	sess.Release(released)

	boom := errors.New("boom")
	require.NoError(t, sess.Own(newCloser(func() error { return boom })))
	assert.ErrorIs(t, mgr.Close(), boom)
}

func TestLimiterAllowsBurst(t *testing.T) {
	mgr, _ := newManager(t)
	sess, err := mgr.Login(context.Background(), Identity{UserID: "1", Email: "a@example.com"})
	require.NoError(t, err)

	allowed := 0
	for i := 0; i < 20; i++ {
		if sess.Limiter().Allow() {
			allowed++
		}
	}
	assert.GreaterOrEqual(t, allowed, 10)
	assert.Less(t, allowed, 20)
}

package fsstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chat-sync/internal/docstore"
)

func TestMapErrNotFound(t *testing.T) {
	err := mapErr(status.Error(codes.NotFound, "no such document"))
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.True(t, docstore.IsNotFound(err))
}

func TestMapErrPassesOtherErrors(t *testing.T) {
	cause := status.Error(codes.Unavailable, "backend down")
	assert.Equal(t, cause, mapErr(cause))
	assert.Nil(t, mapErr(nil))
}

func TestIsEnd(t *testing.T) {
	assert.True(t, isEnd(iterator.Done))
	assert.True(t, isEnd(context.Canceled))
	assert.True(t, isEnd(status.Error(codes.Canceled, "stopped")))
	assert.False(t, isEnd(errors.New("other")))
}

func TestUpdatesCoverEveryField(t *testing.T) {
	ups := updates(docstore.Fields{"seen": true, "seenBy": []string{"1"}})
	paths := map[string]bool{}
	for _, u := range ups {
		paths[u.Path] = true
	}
	assert.Equal(t, map[string]bool{"seen": true, "seenBy": true}, paths)
}

func TestSubscriptionStopWaitsForListener(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	stoppedIt := false
	sub := newSubscription(cancel, func() { stoppedIt = true })
	go close(sub.exited)

	sub.Stop()
	assert.True(t, stoppedIt)
	assert.True(t, sub.stopping())
	sub.Stop()
}

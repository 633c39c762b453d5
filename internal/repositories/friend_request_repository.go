package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-sync/internal/convid"
	"chat-sync/internal/docstore"
	"chat-sync/internal/models"
)

var (
	ErrRequestNotFound   = fmt.Errorf("friend request: %w", docstore.ErrNotFound)
	ErrInvalidTransition = errors.New("friend request already resolved")
	ErrAlreadyFriends    = errors.New("already friends")
)

// FriendRequestRepository abstracts friend request and friendship persistence.
type FriendRequestRepository interface {
	Put(ctx context.Context, req models.FriendRequest) (models.FriendRequest, error)
	Get(ctx context.Context, requestID string) (models.FriendRequest, error)
	Transition(ctx context.Context, requestID string, next models.RequestStatus, at time.Time) (models.FriendRequest, error)
	GetFriendship(ctx context.Context, friendshipID string) (models.Friendship, error)
	ListPending(ctx context.Context, receiverID string) ([]models.FriendRequest, error)
	WatchPending(ctx context.Context, receiverID string, fn func([]models.FriendRequest, error)) (docstore.Subscription, error)
	WatchAccepted(ctx context.Context, userID string, fn func([]models.FriendRequest, error)) (docstore.Subscription, error)
}

// FriendRequestRepo is a docstore implementation of FriendRequestRepository.
type FriendRequestRepo struct {
	store docstore.Store
}

// NewFriendRequestRepo constructs a FriendRequestRepo.
func NewFriendRequestRepo(store docstore.Store) *FriendRequestRepo {
	return &FriendRequestRepo{store: store}
}

// PendingQuery selects the pending requests addressed to receiverID.
func PendingQuery(receiverID string) docstore.Query {
	return docstore.Query{Collection: FriendRequestsCollection}.
		Where("receiverId", receiverID).
		Where("status", string(models.RequestPending))
}

// AcceptedQueries select the accepted requests sent and received by userID.
func AcceptedQueries(userID string) (sent, received docstore.Query) {
	base := docstore.Query{Collection: FriendRequestsCollection}.Where("status", string(models.RequestAccepted))
	return base.Where("senderId", userID), base.Where("receiverId", userID)
}

// Put writes a pending request at its composite key, replacing a pending or
// rejected request stored there. Accepted requests are permanent: when either
// direction is accepted Put fails with ErrAlreadyFriends.
func (r *FriendRequestRepo) Put(ctx context.Context, req models.FriendRequest) (models.FriendRequest, error) {
	req.ID = convid.RequestKey(req.SenderID, req.ReceiverID)
	req.Status = models.RequestPending
	reverseID := convid.RequestKey(req.ReceiverID, req.SenderID)

	err := r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		for _, id := range []string{req.ID, reverseID} {
			doc, err := tx.Get(FriendRequestsCollection, id)
			if docstore.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			existing, err := decodeRequest(doc)
			if err != nil {
				return err
			}
			if existing.Status == models.RequestAccepted {
				return ErrAlreadyFriends
			}
		}
		return tx.Upsert(FriendRequestsCollection, req.ID, docstore.Fields{
			"senderId":   req.SenderID,
			"receiverId": req.ReceiverID,
			"status":     string(req.Status),
		}, false)
	})
	if errors.Is(err, ErrAlreadyFriends) {
		return models.FriendRequest{}, err
	}
	if err != nil {
		return models.FriendRequest{}, docstore.WrapWrite("send friend request", FriendRequestsCollection, req.ID, err)
	}
	return req, nil
}

func (r *FriendRequestRepo) Get(ctx context.Context, requestID string) (models.FriendRequest, error) {
	doc, err := r.store.Get(ctx, FriendRequestsCollection, requestID)
	if docstore.IsNotFound(err) {
		return models.FriendRequest{}, ErrRequestNotFound
	}
	if err != nil {
		return models.FriendRequest{}, err
	}
	return decodeRequest(doc)
}

// Transition resolves a pending request in one transaction. Accepting also
// creates the friendship record under the request's key.
func (r *FriendRequestRepo) Transition(ctx context.Context, requestID string, next models.RequestStatus, at time.Time) (models.FriendRequest, error) {
	var out models.FriendRequest
	err := r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(FriendRequestsCollection, requestID)
		if docstore.IsNotFound(err) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		req, err := decodeRequest(doc)
		if err != nil {
			return err
		}
		if !req.Status.CanTransition(next) {
			return ErrInvalidTransition
		}

		if err := tx.Update(FriendRequestsCollection, requestID, docstore.Fields{"status": string(next)}); err != nil {
			return err
		}
		if next == models.RequestAccepted {
			friendshipID := convid.RequestKey(req.SenderID, req.ReceiverID)
			err := tx.Upsert(FriendsCollection, friendshipID, docstore.Fields{
				"user1":           req.SenderID,
				"user2":           req.ReceiverID,
				"friendshipSince": at.UTC(),
			}, false)
			if err != nil {
				return err
			}
		}
		req.Status = next
		out = req
		return nil
	})
	if errors.Is(err, ErrInvalidTransition) {
		return models.FriendRequest{}, err
	}
	if err != nil {
		return models.FriendRequest{}, docstore.WrapWrite(string(next)+" friend request", FriendRequestsCollection, requestID, err)
	}
	return out, nil
}

func (r *FriendRequestRepo) GetFriendship(ctx context.Context, friendshipID string) (models.Friendship, error) {
	doc, err := r.store.Get(ctx, FriendsCollection, friendshipID)
	if err != nil {
		return models.Friendship{}, err
	}
	var f models.Friendship
	if err := docstore.Decode(doc.Data, &f); err != nil {
		return models.Friendship{}, err
	}
	f.ID = doc.ID
	return f, nil
}

func (r *FriendRequestRepo) ListPending(ctx context.Context, receiverID string) ([]models.FriendRequest, error) {
	docs, err := r.store.Query(ctx, PendingQuery(receiverID))
	if err != nil {
		return nil, err
	}
	return decodeRequests(docs)
}

// WatchPending streams the pending requests addressed to receiverID.
func (r *FriendRequestRepo) WatchPending(ctx context.Context, receiverID string, fn func([]models.FriendRequest, error)) (docstore.Subscription, error) {
	return r.store.Subscribe(ctx, PendingQuery(receiverID), func(snap docstore.Snapshot, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(decodeRequests(snap.Docs))
	})
}

// WatchAccepted streams the union of accepted requests on both sides of
// userID. Each emission carries the full union.
func (r *FriendRequestRepo) WatchAccepted(ctx context.Context, userID string, fn func([]models.FriendRequest, error)) (docstore.Subscription, error) {
	sentQ, receivedQ := AcceptedQueries(userID)
	u := &acceptedUnion{fn: fn}

	sent, err := r.store.Subscribe(ctx, sentQ, func(snap docstore.Snapshot, err error) {
		u.update(0, snap, err)
	})
	if err != nil {
		return nil, err
	}
	received, err := r.store.Subscribe(ctx, receivedQ, func(snap docstore.Snapshot, err error) {
		u.update(1, snap, err)
	})
	if err != nil {
		sent.Stop()
		return nil, err
	}
	return docstore.Subscriptions{sent, received}, nil
}

type acceptedUnion struct {
	mu    sync.Mutex
	sides [2][]models.FriendRequest
	fn    func([]models.FriendRequest, error)
}

func (u *acceptedUnion) update(side int, snap docstore.Snapshot, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err != nil {
		u.fn(nil, err)
		return
	}
	reqs, err := decodeRequests(snap.Docs)
	if err != nil {
		u.fn(nil, err)
		return
	}
	u.sides[side] = reqs
	all := make([]models.FriendRequest, 0, len(u.sides[0])+len(u.sides[1]))
	all = append(all, u.sides[0]...)
	all = append(all, u.sides[1]...)
	u.fn(all, nil)
}

func decodeRequest(doc docstore.Document) (models.FriendRequest, error) {
	var req models.FriendRequest
	if err := docstore.Decode(doc.Data, &req); err != nil {
		return models.FriendRequest{}, err
	}
	req.ID = doc.ID
	return req, nil
}

func decodeRequests(docs []docstore.Document) ([]models.FriendRequest, error) {
	out := make([]models.FriendRequest, 0, len(docs))
	for _, doc := range docs {
		req, err := decodeRequest(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

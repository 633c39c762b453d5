// Package fsstore implements docstore.Store on Google Cloud Firestore
// through the Firebase Admin SDK.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chat-sync/internal/docstore"
)

// Config selects the Firebase project and credentials.
type Config struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON []byte
}

// Store is a Firestore-backed docstore.Store.
type Store struct {
	client *firestore.Client
	log    logrus.FieldLogger
}

var _ docstore.Store = (*Store)(nil)

// New connects to Firestore. Credentials fall back to application default
// credentials when neither a file nor JSON is configured.
func New(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Store, error) {
	opts := []option.ClientOption{
		option.WithGRPCDialOption(grpc.WithStatsHandler(otelgrpc.NewClientHandler())),
	}
	switch {
	case len(cfg.CredentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore client: %w", err)
	}
	log.WithField("project_id", cfg.ProjectID).Info("firestore connected")
	return &Store{client: client, log: log}, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return docstore.Document{Collection: collection, ID: id}, mapErr(err)
	}
	return toDocument(collection, snap), nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	snaps, err := s.query(q).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q, mapErr(err))
	}
	return toDocuments(q.Collection, snaps), nil
}

func (s *Store) Upsert(ctx context.Context, collection, id string, fields docstore.Fields, merge bool) error {
	ref := s.client.Collection(collection).Doc(id)
	var err error
	if merge {
		_, err = ref.Set(ctx, map[string]interface{}(fields), firestore.MergeAll)
	} else {
		_, err = ref.Set(ctx, map[string]interface{}(fields))
	}
	return docstore.WrapWrite("upsert", collection, id, mapErr(err))
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, updates(fields))
	return docstore.WrapWrite("update", collection, id, mapErr(err))
}

func (s *Store) Append(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, map[string]interface{}(fields))
	if err != nil {
		return "", docstore.WrapWrite("append", collection, "", mapErr(err))
	}
	return ref.ID, nil
}

func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(&fsTx{client: s.client, tx: tx})
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return docstore.WrapWrite("transaction", "", "", err)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		return docstore.WrapWrite("transaction", "", "", err)
	}
	return err
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn docstore.QueryListener) (docstore.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.query(q).Snapshots(ctx)
	sub := newSubscription(cancel, it.Stop)
	go func() {
		defer close(sub.exited)
		for {
			qs, err := it.Next()
			if sub.stopping() {
				return
			}
			if err != nil {
				if !isEnd(err) {
					s.log.WithError(err).WithField("query", q.String()).Warn("firestore query listener ended")
					fn(docstore.Snapshot{}, mapErr(err))
				}
				return
			}
			snaps, err := qs.Documents.GetAll()
			if err != nil {
				fn(docstore.Snapshot{}, mapErr(err))
				continue
			}
			fn(docstore.Snapshot{Docs: toDocuments(q.Collection, snaps)}, nil)
		}
	}()
	return sub, nil
}

func (s *Store) Watch(ctx context.Context, collection, id string, fn docstore.DocListener) (docstore.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.client.Collection(collection).Doc(id).Snapshots(ctx)
	sub := newSubscription(cancel, it.Stop)
	go func() {
		defer close(sub.exited)
		for {
			snap, err := it.Next()
			if sub.stopping() {
				return
			}
			if err != nil {
				if !isEnd(err) {
					s.log.WithError(err).WithField("doc", collection+"/"+id).Warn("firestore doc listener ended")
					fn(docstore.Document{Collection: collection, ID: id}, mapErr(err))
				}
				return
			}
			if !snap.Exists() {
				fn(docstore.Document{Collection: collection, ID: id}, docstore.ErrNotFound)
				continue
			}
			fn(toDocument(collection, snap), nil)
		}
	}()
	return sub, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) query(q docstore.Query) firestore.Query {
	fq := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, "==", f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Direction == docstore.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

type fsTx struct {
	client *firestore.Client
	tx     *firestore.Transaction
}

func (t *fsTx) Get(collection, id string) (docstore.Document, error) {
	snap, err := t.tx.Get(t.client.Collection(collection).Doc(id))
	if err != nil {
		return docstore.Document{Collection: collection, ID: id}, mapErr(err)
	}
	return toDocument(collection, snap), nil
}

func (t *fsTx) Upsert(collection, id string, fields docstore.Fields, merge bool) error {
	ref := t.client.Collection(collection).Doc(id)
	if merge {
		return t.tx.Set(ref, map[string]interface{}(fields), firestore.MergeAll)
	}
	return t.tx.Set(ref, map[string]interface{}(fields))
}

func (t *fsTx) Update(collection, id string, fields docstore.Fields) error {
	return t.tx.Update(t.client.Collection(collection).Doc(id), updates(fields))
}

func (t *fsTx) Append(collection string, fields docstore.Fields) (string, error) {
	ref := t.client.Collection(collection).NewDoc()
	if err := t.tx.Create(ref, map[string]interface{}(fields)); err != nil {
		return "", err
	}
	return ref.ID, nil
}

// subscription stops a snapshot iterator and waits for its goroutine.
type subscription struct {
	cancel   context.CancelFunc
	stopIt   func()
	exited   chan struct{}
	mu       sync.Mutex
	stopped  bool
	stopOnce sync.Once
}

func newSubscription(cancel context.CancelFunc, stopIt func()) *subscription {
	return &subscription{cancel: cancel, stopIt: stopIt, exited: make(chan struct{})}
}

func (s *subscription) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Stop must not be called from inside the listener.
func (s *subscription) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.stopIt()
		s.cancel()
	})
	<-s.exited
}

func updates(fields docstore.Fields) []firestore.Update {
	out := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		out = append(out, firestore.Update{Path: k, Value: v})
	}
	return out
}

func toDocument(collection string, snap *firestore.DocumentSnapshot) docstore.Document {
	return docstore.Document{Collection: collection, ID: snap.Ref.ID, Data: docstore.Fields(snap.Data())}
}

func toDocuments(collection string, snaps []*firestore.DocumentSnapshot) []docstore.Document {
	docs := make([]docstore.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, toDocument(collection, snap))
	}
	return docs
}

func isEnd(err error) bool {
	return errors.Is(err, iterator.Done) || errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled
}

// mapErr turns the gRPC not-found status into docstore.ErrNotFound.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %v", docstore.ErrNotFound, err)
	}
	return err
}

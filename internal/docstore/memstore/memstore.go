// Package memstore is an in-process docstore.Store. Live queries are
// re-evaluated on every write to their collection and delivered on a
// per-subscription goroutine that only ever hands over the latest state.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"chat-sync/internal/docstore"
)

var ErrClosed = errors.New("memstore: closed")

// Store keeps every collection in memory.
type Store struct {
	mu        sync.Mutex
	docs      map[string]map[string]docstore.Fields
	listeners map[uint64]*listener
	nextID    uint64
	writeErr  error
	closed    bool
}

var _ docstore.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		docs:      make(map[string]map[string]docstore.Fields),
		listeners: make(map[uint64]*listener),
	}
}

// FailWrites makes every following write fail with err until called with nil.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// ActiveSubscriptions returns the number of live listeners.
func (s *Store) ActiveSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Count returns the number of documents in a collection.
func (s *Store) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[collection])
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(collection, id)
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked(q), nil
}

func (s *Store) Upsert(ctx context.Context, collection, id string, fields docstore.Fields, merge bool) error {
	return s.write(ctx, "upsert", collection, id, func() error {
		s.upsertLocked(collection, id, fields, merge)
		return nil
	})
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	return s.write(ctx, "update", collection, id, func() error {
		if _, ok := s.docs[collection][id]; !ok {
			return docstore.ErrNotFound
		}
		s.upsertLocked(collection, id, fields, true)
		return nil
	})
}

func (s *Store) Append(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id := docstore.NewID()
	err := s.write(ctx, "append", collection, id, func() error {
		s.upsertLocked(collection, id, fields, false)
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) write(ctx context.Context, op, collection, id string, apply func() error) error {
	if err := ctx.Err(); err != nil {
		return docstore.WrapWrite(op, collection, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.WrapWrite(op, collection, id, ErrClosed)
	}
	if s.writeErr != nil {
		return docstore.WrapWrite(op, collection, id, s.writeErr)
	}
	if err := apply(); err != nil {
		return docstore.WrapWrite(op, collection, id, err)
	}
	s.notifyLocked(collection, id)
	return nil
}

func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return docstore.WrapWrite("transaction", "", "", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.WrapWrite("transaction", "", "", ErrClosed)
	}

	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	if s.writeErr != nil {
		return docstore.WrapWrite("commit", "", "", s.writeErr)
	}
	if err := ctx.Err(); err != nil {
		return docstore.WrapWrite("commit", "", "", err)
	}
	for _, w := range tx.writes {
		if w.mustExist {
			if _, ok := s.docs[w.collection][w.id]; !ok {
				return docstore.ErrNotFound
			}
		}
	}
	for _, w := range tx.writes {
		s.upsertLocked(w.collection, w.id, w.fields, w.merge)
	}
	for _, w := range tx.writes {
		s.notifyLocked(w.collection, w.id)
	}
	return nil
}

// Close stops every listener and rejects further writes.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	listeners := make([]*listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l.Stop()
	}
	return nil
}

func (s *Store) getLocked(collection, id string) (docstore.Document, error) {
	fields, ok := s.docs[collection][id]
	if !ok {
		return docstore.Document{Collection: collection, ID: id}, docstore.ErrNotFound
	}
	return docstore.Document{Collection: collection, ID: id, Data: docstore.Clone(fields)}, nil
}

func (s *Store) upsertLocked(collection, id string, fields docstore.Fields, merge bool) {
	col, ok := s.docs[collection]
	if !ok {
		col = make(map[string]docstore.Fields)
		s.docs[collection] = col
	}
	col[id] = docstore.Merge(col[id], fields, merge)
}

func (s *Store) queryLocked(q docstore.Query) []docstore.Document {
	col := s.docs[q.Collection]
	ids := make([]string, 0, len(col))
	for id, fields := range col {
		if docstore.Matches(q, fields) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	docs := make([]docstore.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, docstore.Document{Collection: q.Collection, ID: id, Data: docstore.Clone(col[id])})
	}
	if q.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			c := docstore.Compare(docs[i].Data[q.OrderBy], docs[j].Data[q.OrderBy])
			if q.Direction == docstore.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}

type pendingWrite struct {
	collection string
	id         string
	fields     docstore.Fields
	merge      bool
	mustExist  bool
}

// memTx runs with the store lock held; writes are applied on commit.
type memTx struct {
	store  *Store
	writes []pendingWrite
}

func (t *memTx) Get(collection, id string) (docstore.Document, error) {
	return t.store.getLocked(collection, id)
}

func (t *memTx) Upsert(collection, id string, fields docstore.Fields, merge bool) error {
	t.writes = append(t.writes, pendingWrite{collection: collection, id: id, fields: docstore.Clone(fields), merge: merge})
	return nil
}

func (t *memTx) Update(collection, id string, fields docstore.Fields) error {
	t.writes = append(t.writes, pendingWrite{collection: collection, id: id, fields: docstore.Clone(fields), merge: true, mustExist: true})
	return nil
}

func (t *memTx) Append(collection string, fields docstore.Fields) (string, error) {
	id := docstore.NewID()
	t.writes = append(t.writes, pendingWrite{collection: collection, id: id, fields: docstore.Clone(fields)})
	return id, nil
}

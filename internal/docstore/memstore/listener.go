package memstore

import (
	"context"
	"sync"

	"chat-sync/internal/docstore"
)

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn docstore.QueryListener) (docstore.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	l := s.newListenerLocked()
	l.query = q
	l.onQuery = fn
	l.refreshLocked()
	go l.run(ctx)
	return l, nil
}

func (s *Store) Watch(ctx context.Context, collection, id string, fn docstore.DocListener) (docstore.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	l := s.newListenerLocked()
	l.watch = true
	l.collection = collection
	l.docID = id
	l.onDoc = fn
	l.refreshLocked()
	go l.run(ctx)
	return l, nil
}

func (s *Store) newListenerLocked() *listener {
	s.nextID++
	l := &listener{
		store:  s,
		id:     s.nextID,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	s.listeners[l.id] = l
	return l
}

func (s *Store) notifyLocked(collection, id string) {
	for _, l := range s.listeners {
		if l.watch {
			if l.collection == collection && l.docID == id {
				l.refreshLocked()
			}
			continue
		}
		if l.query.Collection == collection {
			l.refreshLocked()
		}
	}
}

// listener delivers only the most recent state; intermediate states that
// arrive while a callback runs are coalesced.
type listener struct {
	store *Store
	id    uint64

	watch      bool
	query      docstore.Query
	collection string
	docID      string
	onQuery    docstore.QueryListener
	onDoc      docstore.DocListener

	mu      sync.Mutex
	snap    docstore.Snapshot
	doc     docstore.Document
	docErr  error
	pending bool

	signal   chan struct{}
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// refreshLocked must be called with the store lock held.
func (l *listener) refreshLocked() {
	l.mu.Lock()
	if l.watch {
		l.doc, l.docErr = l.store.getLocked(l.collection, l.docID)
	} else {
		l.snap = docstore.Snapshot{Docs: l.store.queryLocked(l.query)}
	}
	l.pending = true
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *listener) run(ctx context.Context) {
	defer close(l.exited)
	for {
		select {
		case <-l.done:
			return
		case <-ctx.Done():
			l.detach()
			return
		case <-l.signal:
		}

		l.mu.Lock()
		pending, snap, doc, docErr := l.pending, l.snap, l.doc, l.docErr
		l.pending = false
		l.mu.Unlock()
		if !pending {
			continue
		}

		select {
		case <-l.done:
			return
		default:
		}
		if l.watch {
			l.onDoc(doc, docErr)
		} else {
			l.onQuery(snap, nil)
		}
	}
}

// Stop must not be called from inside the listener.
func (l *listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.detach()
	})
	<-l.exited
}

func (l *listener) detach() {
	l.store.mu.Lock()
	delete(l.store.listeners, l.id)
	l.store.mu.Unlock()
}

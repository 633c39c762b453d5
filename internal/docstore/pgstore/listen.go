package pgstore

import (
	"context"
	"sync"
	"time"

	"chat-sync/internal/docstore"
)

type change struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn docstore.QueryListener) (docstore.Subscription, error) {
	if _, _, err := buildSelect(q, false); err != nil {
		return nil, err
	}
	sub := s.register(ctx, &subscription{query: q, onQuery: fn})
	return sub, nil
}

func (s *Store) Watch(ctx context.Context, collection, id string, fn docstore.DocListener) (docstore.Subscription, error) {
	sub := s.register(ctx, &subscription{watch: true, collection: collection, docID: id, onDoc: fn})
	return sub, nil
}

func (s *Store) register(ctx context.Context, sub *subscription) *subscription {
	sub.store = s
	sub.signal = make(chan struct{}, 1)
	sub.done = make(chan struct{})
	sub.exited = make(chan struct{})

	s.mu.Lock()
	s.nextID++
	sub.id = s.nextID
	s.subs[sub.id] = sub
	s.mu.Unlock()

	sub.poke()
	go sub.run(ctx)
	return sub
}

// dispatch fans notifications out to the subscriptions of the changed
// collection. A nil notification follows a reconnect and refreshes all.
func (s *Store) dispatch() {
	defer s.wg.Done()
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				s.pokeAll(func(*subscription) bool { return true })
				continue
			}
			var c change
			if err := json.Unmarshal([]byte(n.Extra), &c); err != nil {
				s.log.WithError(err).WithField("payload", n.Extra).Warn("bad change notification")
				continue
			}
			s.pokeAll(func(sub *subscription) bool { return sub.interested(c) })
		case <-ping.C:
			go s.listener.Ping()
		}
	}
}

func (s *Store) pokeAll(match func(*subscription) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if match(sub) {
			sub.poke()
		}
	}
}

type subscription struct {
	store *Store
	id    uint64

	watch      bool
	query      docstore.Query
	collection string
	docID      string
	onQuery    docstore.QueryListener
	onDoc      docstore.DocListener

	signal   chan struct{}
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

func (sub *subscription) interested(c change) bool {
	if sub.watch {
		return sub.collection == c.Collection && sub.docID == c.ID
	}
	return sub.query.Collection == c.Collection
}

func (sub *subscription) poke() {
	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

func (sub *subscription) run(ctx context.Context) {
	defer close(sub.exited)
	for {
		select {
		case <-sub.done:
			return
		case <-ctx.Done():
			sub.detach()
			return
		case <-sub.signal:
		}
		sub.deliver(ctx)
	}
}

func (sub *subscription) deliver(ctx context.Context) {
	readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if sub.watch {
		doc, err := sub.store.Get(readCtx, sub.collection, sub.docID)
		if sub.stopped() {
			return
		}
		sub.onDoc(doc, err)
		return
	}
	docs, err := sub.store.Query(readCtx, sub.query)
	if sub.stopped() {
		return
	}
	if err != nil {
		// transient read failures are reported without ending the subscription
		sub.onQuery(docstore.Snapshot{}, err)
		return
	}
	sub.onQuery(docstore.Snapshot{Docs: docs}, nil)
}

func (sub *subscription) stopped() bool {
	select {
	case <-sub.done:
		return true
	default:
		return false
	}
}

// Stop must not be called from inside the listener.
func (sub *subscription) Stop() {
	sub.stopOnce.Do(func() {
		close(sub.done)
		sub.detach()
	})
	<-sub.exited
}

func (sub *subscription) detach() {
	sub.store.mu.Lock()
	delete(sub.store.subs, sub.id)
	sub.store.mu.Unlock()
}

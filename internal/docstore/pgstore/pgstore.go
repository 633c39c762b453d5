// Package pgstore implements docstore.Store on PostgreSQL. Documents are
// jsonb rows; a trigger announces every write over LISTEN/NOTIFY and live
// queries re-run when their collection changes.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"chat-sync/internal/db"
	"chat-sync/internal/docstore"
)

// Store is a Postgres-backed docstore.Store.
type Store struct {
	db       *sqlx.DB
	listener *pq.Listener
	log      logrus.FieldLogger

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64

	done chan struct{}
	wg   sync.WaitGroup
}

var _ docstore.Store = (*Store)(nil)

// New starts listening for document changes on a dedicated connection.
func New(database *sqlx.DB, dsn string, log logrus.FieldLogger) (*Store, error) {
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.WithError(err).Warn("postgres listener event")
		}
	})
	if err := listener.Listen(db.ChangeChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("listen %s: %w", db.ChangeChannel, err)
	}

	s := &Store{
		db:       database,
		listener: listener,
		log:      log,
		subs:     make(map[uint64]*subscription),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.dispatch()
	return s, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	return getDoc(ctx, s.db, collection, id, false)
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	query, args, err := buildSelect(q, false)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, docstore.Document{Collection: q.Collection, ID: id, Data: fields})
	}
	return docs, rows.Err()
}

func (s *Store) Upsert(ctx context.Context, collection, id string, fields docstore.Fields, merge bool) error {
	return docstore.WrapWrite("upsert", collection, id, upsert(ctx, s.db, collection, id, fields, merge))
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	return docstore.WrapWrite("update", collection, id, update(ctx, s.db, collection, id, fields))
}

func (s *Store) Append(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id := docstore.NewID()
	if err := upsert(ctx, s.db, collection, id, fields, false); err != nil {
		return "", docstore.WrapWrite("append", collection, id, err)
	}
	return id, nil
}

func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return docstore.WrapWrite("begin", "", "", err)
	}
	if err = fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return docstore.WrapWrite("commit", "", "", err)
	}
	return nil
}

// Close stops all subscriptions and the change listener. The database
// handle stays open; its owner closes it.
func (s *Store) Close() error {
	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Stop()
	}

	close(s.done)
	err := s.listener.Close()
	s.wg.Wait()
	return errors.Join(err, s.db.Close())
}

type execer interface {
	sqlx.ExtContext
}

func getDoc(ctx context.Context, q sqlx.QueryerContext, collection, id string, forUpdate bool) (docstore.Document, error) {
	query := `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var raw []byte
	err := q.QueryRowxContext(ctx, query, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{Collection: collection, ID: id}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{Collection: collection, ID: id}, err
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return docstore.Document{Collection: collection, ID: id}, err
	}
	return docstore.Document{Collection: collection, ID: id, Data: fields}, nil
}

func upsert(ctx context.Context, ex execer, collection, id string, fields docstore.Fields, merge bool) error {
	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}
	set := `EXCLUDED.data`
	if merge {
		set = `documents.data || EXCLUDED.data`
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
        ON CONFLICT (collection, id) DO UPDATE SET data = `+set+`, updated_at = NOW()`, collection, id, string(raw))
	return err
}

func update(ctx context.Context, ex execer, collection, id string, fields docstore.Fields) error {
	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}
	res, err := ex.ExecContext(ctx, `UPDATE documents SET data = data || $3::jsonb, updated_at = NOW() WHERE collection = $1 AND id = $2`, collection, id, string(raw))
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

type pgTx struct {
	ctx context.Context
	tx  *sqlx.Tx
}

func (t *pgTx) Get(collection, id string) (docstore.Document, error) {
	return getDoc(t.ctx, t.tx, collection, id, true)
}

func (t *pgTx) Upsert(collection, id string, fields docstore.Fields, merge bool) error {
	return upsert(t.ctx, t.tx, collection, id, fields, merge)
}

func (t *pgTx) Update(collection, id string, fields docstore.Fields) error {
	return update(t.ctx, t.tx, collection, id, fields)
}

func (t *pgTx) Append(collection string, fields docstore.Fields) (string, error) {
	id := docstore.NewID()
	if err := upsert(t.ctx, t.tx, collection, id, fields, false); err != nil {
		return "", err
	}
	return id, nil
}

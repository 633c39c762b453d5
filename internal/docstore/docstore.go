// Package docstore is the contract of the real-time document store the
// chat core runs on: keyed point reads and writes, merge upserts, equality
// queries with ordering and limits, live subscriptions and transactions.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrWriteFailure = errors.New("write failed")
)

// Fields is the content of a document.
type Fields map[string]any

// Document is a stored record.
type Document struct {
	Collection string
	ID         string
	Data       Fields
}

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter is an equality predicate on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Query selects documents of one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Direction  Direction
	Limit      int
}

// Where returns a copy of q with an extra equality filter.
func (q Query) Where(field string, value any) Query {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, Filter{Field: field, Value: value})
	return q
}

// Order returns a copy of q ordered by field.
func (q Query) Order(field string, dir Direction) Query {
	q.OrderBy = field
	q.Direction = dir
	return q
}

// Take returns a copy of q limited to n documents.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " %s==%v", f.Field, f.Value)
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Direction == Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, " order by %s %s", q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " limit %d", q.Limit)
	}
	return b.String()
}

// Snapshot is the full result set of a live query at one point in time.
type Snapshot struct {
	Docs []Document
}

// Empty reports whether the snapshot matched nothing.
func (s Snapshot) Empty() bool {
	return len(s.Docs) == 0
}

// QueryListener receives every snapshot of a live query, or the error that
// ended the subscription.
type QueryListener func(Snapshot, error)

// DocListener receives every state of a watched document. A missing document
// is reported as ErrNotFound and does not end the subscription.
type DocListener func(Document, error)

// Subscription is a standing query. Stop is synchronous: once it returns the
// listener is not invoked again.
type Subscription interface {
	Stop()
}

// Tx is the view of the store inside a transaction. All reads must happen
// before the first write.
type Tx interface {
	Get(collection, id string) (Document, error)
	Upsert(collection, id string, fields Fields, merge bool) error
	Update(collection, id string, fields Fields) error
	Append(collection string, fields Fields) (string, error)
}

// Store is a real-time document store.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Upsert(ctx context.Context, collection, id string, fields Fields, merge bool) error
	Update(ctx context.Context, collection, id string, fields Fields) error
	Append(ctx context.Context, collection string, fields Fields) (string, error)
	Subscribe(ctx context.Context, q Query, fn QueryListener) (Subscription, error)
	Watch(ctx context.Context, collection, id string, fn DocListener) (Subscription, error)
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Path joins collection and document ids into a collection path, e.g.
// Path("conversations", "1_2", "messages").
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}

// Subscriptions stops several subscriptions as one.
type Subscriptions []Subscription

func (s Subscriptions) Stop() {
	for _, sub := range s {
		if sub != nil {
			sub.Stop()
		}
	}
}

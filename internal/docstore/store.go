// Package docstore is a small document store: named collections of
// schemaless JSON documents with create/update/delete, compare-and-swap
// updates, and live query subscriptions that push a full snapshot after
// every committed change.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned by UpdateIf when the stored version has moved on.
	ErrConflict = errors.New("document version conflict")
)

// Fields is a document body: top-level field name to value.
type Fields map[string]any

// Document is a stored document with its store-assigned metadata.
type Document struct {
	ID      string
	Seq     int64 // insertion order, stable for the life of the document
	Version int64 // incremented on every update
	Fields  Fields
}

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

// Store defines the record store adapter used by the repositories.
type Store interface {
	List(ctx context.Context, collection string) ([]Document, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	Update(ctx context.Context, collection, id string, fields Fields) error
	UpdateIf(ctx context.Context, collection, id string, version int64, fields Fields) error
	Delete(ctx context.Context, collection, id string) error

	// Subscribe delivers the query result immediately and again after every
	// change to the collection. Callbacks for one subscription never overlap.
	Subscribe(ctx context.Context, q Query, onChange func([]Document)) (Unsubscribe, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Bus carries change signals between processes that share one database.
type Bus interface {
	Publish(ctx context.Context, collection string) error
	// Listen blocks until ctx is done, calling onChange for every change
	// signal published by another process.
	Listen(ctx context.Context, onChange func(collection string)) error
	Close() error
}

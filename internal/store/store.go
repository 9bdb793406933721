// Package store defines the abstract document-collection API the controller
// and reconciler are built against: per-collection upserts keyed by URL,
// atomic find-one-and-update, and monotonic named sequences. It is treated as
// an external collaborator — the controller core depends only on the Store
// interface, never on a concrete backend.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by FindByURL when no document in the collection has
// the given URL.
var ErrNotFound = errors.New("store: document not found")

// Document is a loosely-typed record in a collection. Every document carries
// an "_id" key (assigned on first insert) and a "url" key (the collection's
// unique lookup key); callers own the rest of the shape.
type Document map[string]any

// Clone returns a deep-enough copy of the document for safe mutation —
// top-level keys are copied; nested maps/slices are shared, matching the
// copy-on-write discipline the reconciler's redirect handling relies on
// (it overwrites top-level keys like "url" and "is_redirect" after cloning).
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ID returns the document's "_id" field, or zero if unset/not an int64.
func (d Document) ID() int64 {
	id, _ := d["_id"].(int64)
	return id
}

// Update describes a find-one-and-update operation: Set overwrites fields,
// Inc atomically increments numeric counters (e.g. stats.success_count).
type Update struct {
	Set map[string]any
	Inc map[string]int64
}

// IsEmpty reports whether the update carries no field changes at all.
func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Inc) == 0
}

// Filter decides whether a document should be included in a Scan result.
type Filter func(Document) bool

// Store is the abstract collection API every collection-backed component
// (scheduler, reconciler, event-stream persistence) is written against.
// Collections are named by string ("feeds", "articles", "images", "sites",
// "recsystems", "article_interactions") and hold arbitrary Documents; the
// caller is responsible for marshaling to/from domain entities.
type Store interface {
	// FindByURL returns the document in collection with the given url, or
	// ErrNotFound if none exists.
	FindByURL(ctx context.Context, collection, url string) (Document, error)

	// Upsert inserts doc under url if absent, or replaces the existing
	// document's fields with doc's if present. Returns the stored document's
	// assigned _id.
	Upsert(ctx context.Context, collection, url string, doc Document) (int64, error)

	// FindOneAndUpdate atomically applies upd to the document with the given
	// url, returning the post-update document. Returns ErrNotFound if no such
	// document exists — callers must not use this to create documents.
	FindOneAndUpdate(ctx context.Context, collection, url string, upd Update) (Document, error)

	// Scan returns every document in collection for which filter returns
	// true. Result order is unspecified except where a concrete backend
	// documents otherwise.
	Scan(ctx context.Context, collection string, filter Filter) ([]Document, error)

	// Delete removes the document with the given url from collection. It is
	// not an error if no such document exists.
	Delete(ctx context.Context, collection, url string) error

	// NextSeq atomically increments and returns the named sequence counter,
	// starting at 0 for a sequence never seen before.
	NextSeq(ctx context.Context, name string) (int64, error)
}

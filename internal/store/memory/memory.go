// Package memory implements store.Store entirely in process memory. It backs
// every core unit test in this module (the document store is explicitly an
// external collaborator, out of core scope) and is safe for concurrent use.
package memory

import (
	"context"
	"sync"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/store"
)

type collection struct {
	byURL  map[string]store.Document
	nextID int64
}

// Store is a thread-safe in-memory implementation of store.Store. The zero
// value is not usable; construct with New.
type Store struct {
	mu          sync.Mutex
	collections map[string]*collection
	sequences   map[string]*entity.Sequence
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]*collection),
		sequences:   make(map[string]*entity.Sequence),
	}
}

func (s *Store) collectionFor(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{byURL: make(map[string]store.Document)}
		s.collections[name] = c
	}
	return c
}

// FindByURL implements store.Store.
func (s *Store) FindByURL(ctx context.Context, collectionName, url string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collectionFor(collectionName)
	doc, ok := c.byURL[url]
	if !ok {
		return nil, store.ErrNotFound
	}
	return doc.Clone(), nil
}

// Upsert implements store.Store.
func (s *Store) Upsert(ctx context.Context, collectionName, url string, doc store.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collectionFor(collectionName)
	stored := doc.Clone()
	stored["url"] = url

	existing, ok := c.byURL[url]
	if ok {
		stored["_id"] = existing["_id"]
	} else {
		c.nextID++
		stored["_id"] = c.nextID
	}
	c.byURL[url] = stored
	return stored.ID(), nil
}

// FindOneAndUpdate implements store.Store.
func (s *Store) FindOneAndUpdate(ctx context.Context, collectionName, url string, upd store.Update) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collectionFor(collectionName)
	doc, ok := c.byURL[url]
	if !ok {
		return nil, store.ErrNotFound
	}

	updated := doc.Clone()
	for k, v := range upd.Set {
		updated[k] = v
	}
	for k, delta := range upd.Inc {
		cur, _ := updated[k].(int64)
		updated[k] = cur + delta
	}
	c.byURL[url] = updated
	return updated.Clone(), nil
}

// Scan implements store.Store.
func (s *Store) Scan(ctx context.Context, collectionName string, filter store.Filter) ([]store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collectionFor(collectionName)
	result := make([]store.Document, 0, len(c.byURL))
	for _, doc := range c.byURL {
		clone := doc.Clone()
		if filter == nil || filter(clone) {
			result = append(result, clone)
		}
	}
	return result, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, collectionName, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collectionFor(collectionName)
	delete(c.byURL, url)
	return nil
}

// NextSeq implements store.Store, issuing sequence values from an
// entity.Sequence counter per name (article_id's generator, per spec §3).
func (s *Store) NextSeq(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[name]
	if !ok {
		seq = &entity.Sequence{ID: name}
		s.sequences[name] = seq
	}
	issued := seq.Seq
	seq.Seq++
	return issued, nil
}

// Package inflight implements the controller's process-local in-flight dedup
// set (spec §4.4/§9): "a plain set keyed by resource id, guarded by a mutex
// if the implementation uses parallel threads." Cron entries in
// internal/controller/scheduler run on cron's own goroutine pool, which is
// parallel threads by the spec's own test, so every Set is mutex-guarded.
package inflight

import (
	"strconv"
	"sync"
)

// Key builds the "<action>_<collection>:<id>" dedup key spec §4.4/§4.5 use —
// action is e.g. "crawl_feeds" or "scrape_articles", id is the resource
// document's _id.
func Key(action string, id int64) string {
	return action + ":" + strconv.FormatInt(id, 10)
}

// Set is a mutex-guarded set of in-flight keys, one per (action, collection)
// pair the scheduler/reconciler share. The zero value is ready to use.
type Set struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// TryAdd adds key to the set and reports true if it was newly added. If key
// was already present, it reports false and leaves the set unchanged — the
// scheduler uses this to skip publishing a duplicate crawl/scrape for a
// resource that's already queued.
func (s *Set) TryAdd(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Remove deletes key from the set, if present. The reconciler calls this
// once an update_resource for key has been fully applied.
func (s *Set) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// Contains reports whether key is currently in the set.
func (s *Set) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Len reports the number of keys currently in the set.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Package normalize merges the per-agency adapter outputs into one
// consistent train collection. The store keeps the latest immutable
// batch per agency and refuses to move backwards: a slow poll that
// lands after a fresher one is discarded, ordered by the feed's own
// updated timestamps rather than by arrival order.
package normalize

import (
	"sort"
	"sync"
	"time"

	"trainwatch/model"
)

type batch struct {
	trains []model.Train
	newest time.Time
}

// Store holds the latest batch per agency. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	batches map[model.Agency]batch
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{batches: map[model.Agency]batch{}}
}

// Apply installs a new batch for an agency. Returns false when the
// batch is stale, i.e. it carries timestamps and its newest one is
// older than what the store already holds for that agency. An empty or
// untimestamped batch is the current cycle's truth and always lands:
// trains disappear from the snapshot as they stop appearing upstream.
func (s *Store) Apply(agency model.Agency, trains []model.Train) bool {
	newest := newestUpdate(trains)

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.batches[agency]; ok && newest.Before(cur.newest) {
		if !newest.IsZero() {
			return false
		}
		// Keep the high-water mark across empty cycles so a late batch
		// from before the agency emptied out still loses.
		newest = cur.newest
	}
	s.batches[agency] = batch{trains: trains, newest: newest}
	return true
}

// newestUpdate finds the most recent updated timestamp in a batch; zero
// when the batch is empty or carries no timestamps at all.
func newestUpdate(trains []model.Train) time.Time {
	var newest time.Time
	for i := range trains {
		if u := trains[i].Updated; u != nil && u.After(newest) {
			newest = *u
		}
	}
	return newest
}

// Snapshot merges all agencies into one collection sorted by train id.
// The returned slice is a copy; callers may not see later applies.
func (s *Store) Snapshot() []model.Train {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Train
	for _, b := range s.batches {
		out = append(out, b.trains...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Train looks one train up by its agency-scoped id.
func (s *Store) Train(id string) (model.Train, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.batches {
		for i := range b.trains {
			if b.trains[i].ID == id {
				return b.trains[i], true
			}
		}
	}
	return model.Train{}, false
}

// Count reports the number of live trains across all agencies.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.batches {
		n += len(b.trains)
	}
	return n
}

package settings

import "sync/atomic"

// Store holds the current snapshot of a plugin's settings.
//
// Readers always observe a complete record; Update swaps in a freshly merged
// record and never edits the published one.
type Store struct {
	cur atomic.Pointer[Settings]
}

// NewStore creates a store seeded with initial.
func NewStore(initial Settings) *Store {
	s := &Store{}
	s.cur.Store(&initial)

	return s
}

// Snapshot returns the current settings.
func (s *Store) Snapshot() Settings {
	p := s.cur.Load()
	if p == nil {
		return Settings{}
	}

	return *p
}

// Update merges patch into the current snapshot and publishes the result.
// It returns the published snapshot and the keys that changed.
func (s *Store) Update(patch Patch) (Settings, []string) {
	for {
		prev := s.cur.Load()

		var base Settings
		if prev != nil {
			base = *prev
		}

		next, changed := Merge(base, patch)
		if len(changed) == 0 {
			return base, nil
		}

		if s.cur.CompareAndSwap(prev, &next) {
			return next, changed
		}
	}
}

// Replace publishes next as the current snapshot.
func (s *Store) Replace(next Settings) {
	s.cur.Store(&next)
}

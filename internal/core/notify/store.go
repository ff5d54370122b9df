package notify

import "sync"

// DefaultCapacity is the default maximum number of notifications retained
// in a Store.
const DefaultCapacity = 20

// Store is a bounded, newest-first collection of notifications with
// read/unread bookkeeping. Inserting a duplicate ID upserts in place and
// preserves the existing read flag, so at-least-once delivery of backend
// events is safe.
type Store struct {
	mu       sync.Mutex
	capacity int
	entries  []Notification // newest first
}

// NewStore creates a store holding at most capacity entries.
// A capacity <= 0 falls back to DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

// Capacity returns the maximum number of entries the store retains.
func (s *Store) Capacity() int {
	return s.capacity
}

// Insert adds n as the newest entry, or, when an entry with the same ID
// already exists, refreshes its payload and timestamp in place while
// preserving its read flag. The store is then truncated to capacity,
// silently discarding the oldest excess entries.
func (s *Store) Insert(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == n.ID {
			read := s.entries[i].Read
			s.entries[i] = n
			s.entries[i].Read = read
			return
		}
	}

	s.entries = append([]Notification{n}, s.entries...)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[:s.capacity]
	}
}

// MarkRead marks the entry with the given ID as read. Returns true only
// when the entry existed and was previously unread.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == id {
			if s.entries[i].Read {
				return false
			}
			s.entries[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead marks every entry as read and returns how many changed.
func (s *Store) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range s.entries {
		if !s.entries[i].Read {
			s.entries[i].Read = true
			changed++
		}
	}
	return changed
}

// Remove deletes the entry with the given ID. No-op when absent.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// ClearAll empties the store.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// UnreadCount returns the number of entries with Read == false.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for i := range s.entries {
		if !s.entries[i].Read {
			count++
		}
	}
	return count
}

// Len returns the number of entries currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Get returns the entry with the given ID.
func (s *Store) Get(id string) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == id {
			return s.entries[i], true
		}
	}
	return Notification{}, false
}

// List returns a copy of all entries, newest first.
func (s *Store) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, len(s.entries))
	copy(out, s.entries)
	return out
}

// Replace swaps the store contents for the given entries (newest first),
// truncated to capacity. Used when restoring a persisted snapshot.
func (s *Store) Replace(entries []Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(entries) > s.capacity {
		entries = entries[:s.capacity]
	}
	s.entries = make([]Notification, len(entries))
	copy(s.entries, entries)
}

// Package recent keeps the bounded most-recently-used list of snippet ids.
package recent

import (
	"sync"
	"time"

	"github.com/starford/snix/internal/models"
)

// DefaultCapacity is the number of entries kept when none is configured.
const DefaultCapacity = 50

// List is a bounded MRU list, most recent first, without duplicate ids.
// The mutating helpers return new slices so callers can commit them
// before calling Replace.
type List struct {
	mu       sync.RWMutex
	capacity int
	entries  []models.RecentEntry
}

// New returns an empty list holding at most capacity entries.
func New(capacity int) *List {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &List{capacity: capacity}
}

// Capacity returns the maximum number of entries.
func (l *List) Capacity() int { return l.capacity }

// Entries returns a copy of the list, most recent first.
func (l *List) Entries() []models.RecentEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.RecentEntry(nil), l.entries...)
}

// Len returns the number of entries.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Head returns the most recent entry.
func (l *List) Head() (models.RecentEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return models.RecentEntry{}, false
	}
	return l.entries[0], true
}

// WithAccess returns the list as it would be after id is accessed at t:
// id moved (or added) to the front, the oldest entry evicted on overflow.
func (l *List) WithAccess(id string, t time.Time) []models.RecentEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.RecentEntry, 0, min(len(l.entries)+1, l.capacity))
	out = append(out, models.RecentEntry{SnippetID: id, AccessedAt: t})
	for _, e := range l.entries {
		if len(out) == l.capacity {
			break
		}
		if e.SnippetID != id {
			out = append(out, e)
		}
	}
	return out
}

// Without returns the list with every entry for ids removed, and whether
// anything was removed.
func (l *List) Without(ids ...string) ([]models.RecentEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := make([]models.RecentEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if _, ok := drop[e.SnippetID]; !ok {
			out = append(out, e)
		}
	}
	return out, len(out) != len(l.entries)
}

// Replace swaps in committed entries, truncated to capacity.
func (l *List) Replace(entries []models.RecentEntry) {
	if len(entries) > l.capacity {
		entries = entries[:l.capacity]
	}
	cp := append([]models.RecentEntry(nil), entries...)
	l.mu.Lock()
	l.entries = cp
	l.mu.Unlock()
}

package collection

import (
	"sort"
	"sync"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// entry pairs a record with its arrival sequence so ties on CreatedAt keep
// arrival order.
type entry struct {
	bookmark domain.Bookmark
	arrival  uint64
}

// Collection is the in-memory ordered set of one identity's bookmarks.
// It is kept sorted by CreatedAt descending, ties in arrival order.
// Records owned by anyone else are refused by every write.
type Collection struct {
	mu      sync.RWMutex
	owner   string
	entries []entry
	byID    map[string]struct{}
	arrival uint64
}

// New creates an empty collection for owner.
func New(owner string) *Collection {
	return &Collection{
		owner: owner,
		byID:  make(map[string]struct{}),
	}
}

// ReplaceAll discards the current contents and rebuilds from records.
// Foreign and duplicate records are dropped.
func (c *Collection) ReplaceAll(records []domain.Bookmark) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make([]entry, 0, len(records))
	c.byID = make(map[string]struct{}, len(records))
	for _, b := range records {
		if b.Owner != c.owner || b.ID == "" {
			continue
		}
		if _, dup := c.byID[b.ID]; dup {
			continue
		}
		c.arrival++
		c.entries = append(c.entries, entry{bookmark: b, arrival: c.arrival})
		c.byID[b.ID] = struct{}{}
	}

	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].bookmark.CreatedAt.After(c.entries[j].bookmark.CreatedAt)
	})
}

// InsertIfAbsent adds b unless a record with the same ID is already present.
// Returns true if the collection changed.
func (c *Collection) InsertIfAbsent(b domain.Bookmark) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b.Owner != c.owner || b.ID == "" {
		return false
	}
	if _, ok := c.byID[b.ID]; ok {
		return false
	}

	c.arrival++
	c.insertLocked(entry{bookmark: b, arrival: c.arrival})
	c.byID[b.ID] = struct{}{}
	return true
}

// UpdateIfPresent fully replaces the record with b's ID.
// Absent records are ignored. Returns true if the collection changed.
func (c *Collection) UpdateIfPresent(b domain.Bookmark) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b.Owner != c.owner {
		return false
	}
	i := c.indexLocked(b.ID)
	if i < 0 {
		return false
	}

	current := c.entries[i]
	if current.bookmark == b {
		return false
	}
	if current.bookmark.CreatedAt.Equal(b.CreatedAt) {
		c.entries[i].bookmark = b
		return true
	}

	// CreatedAt moved: reposition, keeping its arrival slot.
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	c.insertLocked(entry{bookmark: b, arrival: current.arrival})
	return true
}

// RemoveByID drops the record with id. Removing an absent id is a no-op.
// Returns true if the collection changed.
func (c *Collection) RemoveByID(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return false
	}
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	delete(c.byID, id)
	return true
}

// Len returns the number of records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Snapshot returns a copy of the records in display order.
func (c *Collection) Snapshot() []domain.Bookmark {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Bookmark, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.bookmark
	}
	return out
}

// insertLocked places e after every entry that sorts before or ties with it.
func (c *Collection) insertLocked(e entry) {
	pos := sort.Search(len(c.entries), func(i int) bool {
		cur := c.entries[i]
		if cur.bookmark.CreatedAt.Equal(e.bookmark.CreatedAt) {
			return cur.arrival > e.arrival
		}
		return cur.bookmark.CreatedAt.Before(e.bookmark.CreatedAt)
	})
	c.entries = append(c.entries, entry{})
	copy(c.entries[pos+1:], c.entries[pos:])
	c.entries[pos] = e
}

func (c *Collection) indexLocked(id string) int {
	if _, ok := c.byID[id]; !ok {
		return -1
	}
	for i := range c.entries {
		if c.entries[i].bookmark.ID == id {
			return i
		}
	}
	return -1
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// Store is an in-process remote store shared by any number of engines.
// Change events are delivered synchronously, on the goroutine that made the
// change, to every subscription on the store's topic, in subscription order.
//
// Writes are serialized together with their event delivery, so every
// subscriber sees events in commit order. Handlers may read from the store
// but must not write to it.
type Store struct {
	topic string
	now   func() time.Time

	// writeMu orders a write and its event delivery against other writes.
	writeMu sync.Mutex

	mu      sync.Mutex
	records map[string]domain.Bookmark
	last    time.Time
	subs    map[uint64]*subscription
	nextSub uint64
}

// Option customizes a Store.
type Option func(*Store)

// WithTopic sets the topic change events are published on.
func WithTopic(topic string) Option {
	return func(s *Store) { s.topic = topic }
}

// WithClock replaces time.Now for CreatedAt assignment.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		topic:   domain.DefaultTopic,
		now:     time.Now,
		records: make(map[string]domain.Bookmark),
		subs:    make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchAll returns owner's bookmarks, CreatedAt descending.
func (s *Store) FetchAll(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch bookmarks: %w", err)
	}

	s.mu.Lock()
	out := make([]domain.Bookmark, 0, len(s.records))
	for _, b := range s.records {
		if b.Owner == owner {
			out = append(out, b)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Insert stores a new bookmark and publishes an insert event.
func (s *Store) Insert(ctx context.Context, owner, title, url string) (domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to insert bookmark: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	b := domain.Bookmark{
		ID:        uuid.NewString(),
		Owner:     owner,
		Title:     title,
		URL:       url,
		CreatedAt: s.nextTimeLocked(),
	}
	s.records[b.ID] = b
	s.mu.Unlock()

	created := b
	s.publish(domain.ChangeEvent{Kind: domain.EventInsert, New: &created})
	return b, nil
}

// Replace overwrites an existing bookmark as a whole and publishes an
// update event carrying both states.
func (s *Store) Replace(ctx context.Context, b domain.Bookmark) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to replace bookmark: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	old, ok := s.records[b.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("bookmark not found: %s", b.ID)
	}
	if old.Owner != b.Owner {
		s.mu.Unlock()
		return fmt.Errorf("failed to replace bookmark %s: %w", b.ID, domain.ErrNotOwner)
	}
	s.records[b.ID] = b
	s.mu.Unlock()

	updated := b
	s.publish(domain.ChangeEvent{Kind: domain.EventUpdate, New: &updated, Old: &old})
	return nil
}

// Delete removes id if owner owns it. An absent id is already deleted and
// is not an error. The published event carries only the id.
func (s *Store) Delete(ctx context.Context, id, owner string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	b, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if b.Owner != owner {
		s.mu.Unlock()
		return fmt.Errorf("failed to delete bookmark %s: %w", id, domain.ErrNotOwner)
	}
	delete(s.records, id)
	s.mu.Unlock()

	s.publish(domain.ChangeEvent{Kind: domain.EventDelete, Old: &domain.Bookmark{ID: id}})
	return nil
}

// Len returns the number of stored bookmarks across all owners.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// nextTimeLocked returns a strictly increasing timestamp, so CreatedAt order
// always matches insertion order.
func (s *Store) nextTimeLocked() time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

package redis

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, opts...), mr
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type eventSink struct {
	mu       sync.Mutex
	events   []domain.ChangeEvent
	statuses []domain.ChannelStatus
}

func (s *eventSink) event(ev domain.ChangeEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *eventSink) status(st domain.ChannelStatus, _ error) {
	s.mu.Lock()
	s.statuses = append(s.statuses, st)
	s.mu.Unlock()
}

func (s *eventSink) snapshot() ([]domain.ChangeEvent, []domain.ChannelStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChangeEvent(nil), s.events...), append([]domain.ChannelStatus(nil), s.statuses...)
}

func (s *eventSink) hasStatus(want domain.ChannelStatus) bool {
	return s.countStatus(want) > 0
}

func (s *eventSink) countStatus(want domain.ChannelStatus) int {
	_, statuses := s.snapshot()
	n := 0
	for _, st := range statuses {
		if st == want {
			n++
		}
	}
	return n
}

// afterRecordWrite runs fn once, right after the first transaction that
// writes a bookmark record has been executed.
type afterRecordWrite struct {
	once sync.Once
	fn   func(id string)
}

func (h *afterRecordWrite) DialHook(next redis.DialHook) redis.DialHook          { return next }
func (h *afterRecordWrite) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (h *afterRecordWrite) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		for _, cmd := range cmds {
			args := cmd.Args()
			if cmd.Name() != "set" || len(args) < 2 {
				continue
			}
			if key, ok := args[1].(string); ok && strings.HasPrefix(key, KeyPrefixBookmark) {
				h.once.Do(func() { h.fn(strings.TrimPrefix(key, KeyPrefixBookmark)) })
			}
		}
		return err
	}
}

func TestInsertAndFetchAll(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, WithClock(steppingClock()))

	first, err := store.Insert(ctx, "alice", "One", "https://one.example.com")
	require.NoError(t, err)
	second, err := store.Insert(ctx, "alice", "Two", "https://two.example.com")
	require.NoError(t, err)
	_, err = store.Insert(ctx, "bob", "Other", "https://other.example.com")
	require.NoError(t, err)

	got, err := store.FetchAll(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, "https://two.example.com", got[0].URL)
	assert.True(t, got[0].CreatedAt.Equal(second.CreatedAt))

	empty, err := store.FetchAll(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFetchAllSkipsDanglingIndex(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	b, err := store.Insert(ctx, "alice", "One", "https://one.example.com")
	require.NoError(t, err)
	mr.Del(BookmarkKey(b.ID))

	got, err := store.FetchAll(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	b, err := store.Insert(ctx, "alice", "One", "https://one.example.com")
	require.NoError(t, err)

	err = store.Delete(ctx, b.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrNotOwner)
	assert.True(t, mr.Exists(BookmarkKey(b.ID)))

	require.NoError(t, store.Delete(ctx, b.ID, "alice"))
	assert.False(t, mr.Exists(BookmarkKey(b.ID)))

	got, err := store.FetchAll(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.NoError(t, store.Delete(ctx, b.ID, "alice"), "absent id is already deleted")
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	b, err := store.Insert(ctx, "alice", "One", "https://one.example.com")
	require.NoError(t, err)

	b.Title = "Renamed"
	require.NoError(t, store.Replace(ctx, b))

	got, err := store.FetchAll(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Renamed", got[0].Title)

	foreign := b
	foreign.Owner = "bob"
	assert.ErrorIs(t, store.Replace(ctx, foreign), domain.ErrNotOwner)

	missing := b
	missing.ID = "missing"
	assert.ErrorIs(t, store.Replace(ctx, missing), errNotFound)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	sink := &eventSink{}

	sub, err := store.Subscribe(ctx, domain.DefaultTopic, domain.EventFilter{}, sink.event, sink.status)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	require.Eventually(t, func() bool { return sink.hasStatus(domain.ChannelSubscribed) },
		2*time.Second, 10*time.Millisecond)

	b, err := store.Insert(ctx, "alice", "One", "https://one.example.com")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, b.ID, "alice"))

	require.Eventually(t, func() bool {
		events, _ := sink.snapshot()
		return len(events) == 2
	}, 2*time.Second, 10*time.Millisecond)

	events, _ := sink.snapshot()
	assert.Equal(t, domain.EventInsert, events[0].Kind)
	require.NotNil(t, events[0].New)
	assert.Equal(t, "alice", events[0].New.Owner)
	assert.Equal(t, domain.EventDelete, events[1].Kind)
	assert.Equal(t, b.ID, events[1].OldID())
	assert.Empty(t, events[1].Old.Owner)
}

func TestSubscribeFilter(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	sink := &eventSink{}

	sub, err := store.Subscribe(ctx, domain.DefaultTopic,
		domain.EventFilter{Kinds: []domain.EventKind{domain.EventDelete}}, sink.event, sink.status)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	require.Eventually(t, func() bool { return sink.hasStatus(domain.ChannelSubscribed) },
		2*time.Second, 10*time.Millisecond)

	b, err := store.Insert(ctx, "alice", "One", "https://one.example.com")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, b.ID, "alice"))

	require.Eventually(t, func() bool {
		events, _ := sink.snapshot()
		return len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)
	events, _ := sink.snapshot()
	assert.Equal(t, domain.EventDelete, events[0].Kind)
}

func TestSubscriptionClose(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	sink := &eventSink{}

	sub, err := store.Subscribe(ctx, domain.DefaultTopic, domain.EventFilter{}, sink.event, sink.status)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sink.hasStatus(domain.ChannelSubscribed) },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, sub.Close())
	_ = sub.Close()

	select {
	case <-sub.(*subscription).done:
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not exit after Close")
	}
	assert.True(t, sink.hasStatus(domain.ChannelClosed))
}

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent(`{"type":"delete","old":{"id":"abc"}}`)
	require.NoError(t, err)
	assert.Equal(t, domain.EventDelete, ev.Kind)
	assert.Equal(t, "abc", ev.OldID())

	_, err = decodeEvent(`{"type":"TRUNCATE"}`)
	assert.Error(t, err)

	_, err = decodeEvent(`not json`)
	assert.Error(t, err)
}

func TestEventsFollowCommitOrder(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	// Another client deletes the record as soon as the insert has committed.
	other := NewStore(newClient())
	writerClient := newClient()
	writerClient.AddHook(&afterRecordWrite{fn: func(id string) {
		assert.NoError(t, other.Delete(ctx, id, "alice"))
	}})
	writer := NewStore(writerClient)

	observer := NewStore(newClient())
	sink := &eventSink{}
	sub, err := observer.Subscribe(ctx, domain.DefaultTopic, domain.EventFilter{}, sink.event, sink.status)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	require.Eventually(t, func() bool { return sink.hasStatus(domain.ChannelSubscribed) },
		2*time.Second, 10*time.Millisecond)

	b, err := writer.Insert(ctx, "alice", "One", "https://one.example.com")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, _ := sink.snapshot()
		return len(events) == 2
	}, 2*time.Second, 10*time.Millisecond)

	events, _ := sink.snapshot()
	assert.Equal(t, domain.EventInsert, events[0].Kind)
	assert.Equal(t, domain.EventDelete, events[1].Kind)
	assert.Equal(t, b.ID, events[1].OldID())

	remote, err := observer.FetchAll(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, remote)
}

func TestSubscriptionReportsConnectionLoss(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	sink := &eventSink{}

	sub, err := store.Subscribe(ctx, domain.DefaultTopic, domain.EventFilter{}, sink.event, sink.status)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	require.Eventually(t, func() bool { return sink.hasStatus(domain.ChannelSubscribed) },
		2*time.Second, 10*time.Millisecond)

	mr.Close()
	require.Eventually(t, func() bool { return sink.hasStatus(domain.ChannelError) },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, sink.countStatus(domain.ChannelError), "an outage is reported once")

	require.NoError(t, mr.Restart())
	require.Eventually(t, func() bool { return sink.countStatus(domain.ChannelSubscribed) == 2 },
		5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := store.Insert(ctx, "alice", "One", "https://one.example.com")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		events, _ := sink.snapshot()
		return len(events) >= 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, sink.hasStatus(domain.ChannelClosed))
}

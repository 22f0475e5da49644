package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

type subscription struct {
	store    *Store
	id       uint64
	topic    string
	filter   domain.EventFilter
	onEvent  domain.EventHandler
	onStatus domain.StatusHandler
	once     sync.Once
}

// Close unregisters the subscription and reports CLOSED.
func (sub *subscription) Close() error {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		delete(sub.store.subs, sub.id)
		sub.store.mu.Unlock()

		if sub.onStatus != nil {
			sub.onStatus(domain.ChannelClosed, nil)
		}
	})
	return nil
}

// Subscribe registers handlers for topic. SUBSCRIBED is reported before
// Subscribe returns.
func (s *Store) Subscribe(
	ctx context.Context,
	topic string,
	filter domain.EventFilter,
	onEvent domain.EventHandler,
	onStatus domain.StatusHandler,
) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	s.mu.Lock()
	s.nextSub++
	sub := &subscription{
		store:    s,
		id:       s.nextSub,
		topic:    topic,
		filter:   filter,
		onEvent:  onEvent,
		onStatus: onStatus,
	}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	if onStatus != nil {
		onStatus(domain.ChannelSubscribed, nil)
	}
	return sub, nil
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.subs)
}

// publish fans ev out to matching subscriptions outside the store lock, so
// handlers may read from the store. Callers hold writeMu.
func (s *Store) publish(ev domain.ChangeEvent) {
	s.mu.Lock()
	targets := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.topic == s.topic && sub.filter.Allows(ev.Kind) {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })
	for _, sub := range targets {
		sub.onEvent(copyEvent(ev))
	}
}

// copyEvent gives every subscriber its own payloads.
func copyEvent(ev domain.ChangeEvent) domain.ChangeEvent {
	out := domain.ChangeEvent{Kind: ev.Kind}
	if ev.New != nil {
		n := *ev.New
		out.New = &n
	}
	if ev.Old != nil {
		o := *ev.Old
		out.Old = &o
	}
	return out
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

const (
	resubscribeMinDelay = 100 * time.Millisecond
	resubscribeMaxDelay = 5 * time.Second
)

// subscription wraps one go-redis PubSub connection.
type subscription struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
	closed atomic.Bool
	once   sync.Once
	err    error
	done   chan struct{}
}

// Close unsubscribes and releases the connection. Safe to call repeatedly.
func (sub *subscription) Close() error {
	sub.once.Do(func() {
		sub.closed.Store(true)
		sub.err = sub.ps.Close()
		sub.cancel()
	})
	return sub.err
}

// Subscribe opens a pub/sub subscription on topic. Confirmation, failures
// and closure are reported through onStatus from a background goroutine;
// events are delivered, in publish order, on that same goroutine.
//
// A lost connection is reported once as ChannelError and retried with
// backoff; a successful resubscribe is reported as ChannelSubscribed again.
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
	if onStatus == nil {
		onStatus = func(domain.ChannelStatus, error) {}
	}

	// The subscription outlives the call that created it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{
		ps:     s.client.Subscribe(runCtx, topic),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.receive(runCtx, sub, topic, filter, onEvent, onStatus)
	return sub, nil
}

func (s *Store) receive(
	ctx context.Context,
	sub *subscription,
	topic string,
	filter domain.EventFilter,
	onEvent domain.EventHandler,
	onStatus domain.StatusHandler,
) {
	defer close(sub.done)

	// Receive, unlike Channel, surfaces connection loss. go-redis redials and
	// resubscribes on the next call, and the new confirmation arrives as a
	// *redis.Subscription message.
	live := false
	failing := false
	delay := resubscribeMinDelay
	for {
		msg, err := sub.ps.Receive(ctx)
		if err != nil {
			if sub.closed.Load() || ctx.Err() != nil {
				break
			}
			if !failing {
				failing = true
				live = false
				onStatus(domain.ChannelError, fmt.Errorf("subscription %s: %w", topic, err))
			}
			s.logger.Debug("change-event channel down, retrying",
				logger.String("topic", topic),
				logger.Duration("retry_in", delay),
				logger.Error(err))
			if !sleepCtx(ctx, delay) {
				break
			}
			delay = min(delay*2, resubscribeMaxDelay)
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind != "subscribe" || m.Channel != topic || live {
				continue
			}
			live, failing = true, false
			delay = resubscribeMinDelay
			s.logger.Debug("subscribed to change events", logger.String("topic", topic))
			onStatus(domain.ChannelSubscribed, nil)

		case *redis.Message:
			ev, err := decodeEvent(m.Payload)
			if err != nil {
				s.logger.Warn("dropping malformed change event",
					logger.String("topic", topic),
					logger.Error(err))
				continue
			}
			if !filter.Allows(ev.Kind) {
				continue
			}
			onEvent(ev)
		}
	}

	onStatus(domain.ChannelClosed, nil)
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func decodeEvent(payload string) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("failed to unmarshal change event: %w", err)
	}
	kind, ok := domain.ParseEventKind(string(ev.Kind))
	if !ok {
		return domain.ChangeEvent{}, fmt.Errorf("unknown change event type %q", ev.Kind)
	}
	ev.Kind = kind
	return ev, nil
}

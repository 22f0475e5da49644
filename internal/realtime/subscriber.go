package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// DefaultTopic is the change-event topic used when none is configured.
const DefaultTopic = domain.DefaultTopic

// Source is the subscribe half of a remote gateway.
type Source interface {
	Subscribe(
		ctx context.Context,
		topic string,
		filter domain.EventFilter,
		onEvent domain.EventHandler,
		onStatus domain.StatusHandler,
	) (domain.Subscription, error)
}

// Config configures a Subscriber.
type Config struct {
	Topic  string             // change-event topic (default: DefaultTopic)
	Filter domain.EventFilter // kinds to deliver (empty = all)
	Logger logger.Logger      // defaults to a no-op logger
	// OnStatus is called, outside any lock, after every status change.
	OnStatus func(Status)
	// OnResubscribe is called when a failed channel is confirmed live again.
	// Events published during the outage were lost.
	OnResubscribe func()
}

// Subscriber owns at most one live subscription, bound to one identity.
//
// Every Acquire bumps a generation counter; events and status reports from
// an older generation are dropped, so a subscription being torn down can
// never leak into its successor.
type Subscriber struct {
	source   Source
	topic    string
	filter   domain.EventFilter
	log      logger.Logger
	onStatus func(Status)
	onResub  func()

	mu     sync.Mutex
	status Status
	gen    uint64
	handle domain.Subscription
}

// New creates a disabled subscriber.
func New(src Source, cfg Config) *Subscriber {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Subscriber{
		source:   src,
		topic:    cfg.Topic,
		filter:   cfg.Filter,
		log:      cfg.Logger,
		onStatus: cfg.OnStatus,
		onResub:  cfg.OnResubscribe,
		status:   StatusDisabled,
	}
}

// Status returns the current connection status.
func (s *Subscriber) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// Acquire tears down any previous subscription and opens a new one for owner.
// Events are passed to handler until the next Acquire or Release.
func (s *Subscriber) Acquire(ctx context.Context, owner string, handler domain.EventHandler) error {
	if owner == "" {
		return domain.ErrNoIdentity
	}

	s.mu.Lock()
	prev := s.handle
	s.handle = nil
	s.gen++
	gen := s.gen
	var changed []Status
	if s.setLocked(StatusDisabled) {
		changed = append(changed, StatusDisabled)
	}
	if s.setLocked(StatusConnecting) {
		changed = append(changed, StatusConnecting)
	}
	s.mu.Unlock()

	if prev != nil {
		s.closeHandle(prev)
	}
	s.emit(changed...)

	s.log.Debug("subscribing to change events",
		logger.String("topic", s.topic),
		logger.String("owner", owner),
		logger.Uint64("generation", gen))

	onEvent := func(ev domain.ChangeEvent) {
		if !s.isCurrent(gen) {
			s.log.Debug("dropping event from stale subscription",
				logger.String("kind", string(ev.Kind)),
				logger.Uint64("generation", gen))
			return
		}
		handler(ev)
	}
	onStatus := func(st domain.ChannelStatus, err error) {
		s.channelStatus(gen, st, err)
	}

	handle, err := s.source.Subscribe(ctx, s.topic, s.filter, onEvent, onStatus)
	if err != nil {
		s.mu.Lock()
		var failed bool
		if s.gen == gen {
			failed = s.setLocked(StatusError)
		}
		s.mu.Unlock()
		if failed {
			s.emit(StatusError)
		}
		s.log.Error("failed to subscribe to change events",
			logger.String("topic", s.topic),
			logger.Error(err))
		return fmt.Errorf("failed to subscribe to %s: %w", s.topic, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		// Released or re-acquired while Subscribe was in flight.
		s.mu.Unlock()
		s.closeHandle(handle)
		return nil
	}
	s.handle = handle
	s.mu.Unlock()

	return nil
}

// Release closes the live subscription, if any, and moves to disabled.
// Safe to call at any time, any number of times.
func (s *Subscriber) Release() {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.gen++
	changed := s.setLocked(StatusDisabled)
	s.mu.Unlock()

	if h != nil {
		s.closeHandle(h)
	}
	if changed {
		s.emit(StatusDisabled)
	}
}

func (s *Subscriber) channelStatus(gen uint64, st domain.ChannelStatus, err error) {
	var target Status
	switch st {
	case domain.ChannelSubscribed:
		target = StatusEnabled
	case domain.ChannelError:
		target = StatusError
	case domain.ChannelClosed:
		target = StatusDisabled
	default:
		s.log.Warn("unknown channel status", logger.String("status", string(st)))
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.log.Debug("ignoring status from stale subscription",
			logger.String("status", string(st)),
			logger.Uint64("generation", gen))
		return
	}
	var changed []Status
	recovering := target == StatusEnabled && s.status == StatusError
	if recovering && s.setLocked(StatusConnecting) {
		changed = append(changed, StatusConnecting)
	}
	if s.setLocked(target) {
		changed = append(changed, target)
	}
	s.mu.Unlock()

	if target == StatusError {
		if err == nil {
			err = errors.New("channel error")
		}
		s.log.Error("change-event channel failed",
			logger.String("topic", s.topic),
			logger.Error(err))
	}
	s.emit(changed...)

	if recovering && len(changed) == 2 {
		s.log.Info("change-event channel recovered", logger.String("topic", s.topic))
		if s.onResub != nil {
			s.onResub()
		}
	}
}

// setLocked applies a transition if the state machine allows it.
func (s *Subscriber) setLocked(to Status) bool {
	if !canTransition(s.status, to) {
		if s.status != to {
			s.log.Debug("ignoring status transition",
				logger.String("from", string(s.status)),
				logger.String("to", string(to)))
		}
		return false
	}
	s.status = to
	return true
}

func (s *Subscriber) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.gen == gen
}

func (s *Subscriber) closeHandle(h domain.Subscription) {
	if err := h.Close(); err != nil {
		s.log.Warn("failed to close subscription", logger.Error(err))
	}
}

func (s *Subscriber) emit(changes ...Status) {
	if s.onStatus == nil {
		return
	}
	for _, st := range changes {
		s.onStatus(st)
	}
}

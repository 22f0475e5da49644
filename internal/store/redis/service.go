package redis

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// Store is the Redis-backed remote store.
//
// Each bookmark is a JSON string under BookmarkKey, indexed per owner in a
// sorted set scored by CreatedAt. Every committed change is published as a
// JSON change event on a single topic shared by all owners.
type Store struct {
	client *redis.Client
	topic  string
	logger logger.Logger
	now    func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithTopic sets the pub/sub channel change events are published on.
func WithTopic(topic string) Option {
	return func(s *Store) { s.topic = topic }
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now for CreatedAt assignment.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		topic:  domain.DefaultTopic,
		logger: logger.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

package engine

import (
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

type options struct {
	logger logger.Logger
	topic  string
	filter domain.EventFilter
}

// Option customizes an Engine.
type Option func(*options)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTopic sets the change-event topic to subscribe to.
func WithTopic(topic string) Option {
	return func(o *options) { o.topic = topic }
}

// WithEventFilter restricts which event kinds are delivered.
func WithEventFilter(f domain.EventFilter) Option {
	return func(o *options) { o.filter = f }
}

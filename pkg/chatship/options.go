package chatship

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EventHandler receives connection-level notifications. Methods run
// synchronously on the connection goroutine; implementations should return
// quickly and must not call Connect or Disconnect.
type EventHandler interface {
	// OnConnected fires on each successful connect with the authoritative
	// offset acknowledged by the remote.
	OnConnected(offset uint64)

	// OnStreamError fires once when the reconnect retry budget is spent.
	// The error wraps the retry-exhaustion sentinel; a fresh Connect is
	// required to resume.
	OnStreamError(err error)
}

// Option configures optional behavior of a Client.
type Option func(*options)

// options holds the optional configuration for a Client instance.
type options struct {
	logger       Logger
	eventHandler EventHandler
	registry     prometheus.Registerer
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() options {
	return options{}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for connection-level notifications.
// If not provided, no notifications are emitted.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithMetricsRegistry registers the client's stream and upload metrics with
// reg. If not provided, metrics collection is disabled.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = reg
	}
}

package consensus

import (
	"time"

	"github.com/relab/solid/logging"
	"github.com/relab/solid/metrics"
)

type Option func(*Core)

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger logging.Logger) Option {
	return func(c *Core) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics the core reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Core) {
		c.metrics = m
	}
}

// WithClock overrides the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(c *Core) {
		c.now = now
	}
}

package replica

import (
	"time"

	"github.com/relab/solid/logging"
	"github.com/relab/solid/metrics"
)

type replicaOptions struct {
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func newDefaultOpts() *replicaOptions {
	return &replicaOptions{
		logger: logging.Nop(),
		now:    time.Now,
	}
}

// Option configures a Replica.
type Option func(*replicaOptions)

// WithLogger sets the logger used by the replica and its consensus core.
func WithLogger(logger logging.Logger) Option {
	return func(ro *replicaOptions) {
		ro.logger = logger
	}
}

// WithMetrics sets the metrics that the replica and its consensus core report to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ro *replicaOptions) {
		ro.metrics = m
	}
}

// WithClock overrides the source of the current time.
// Timers still fire on the wall clock; hosts that drive time themselves call Tick.
func WithClock(now func() time.Time) Option {
	return func(ro *replicaOptions) {
		ro.now = now
	}
}

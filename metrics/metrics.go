// Package metrics exposes the consensus core's counters and gauges to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const namespace = "solid"

// Rejection reasons used as label values.
const (
	ReasonDuplicate = "duplicate"
	ReasonInvalid   = "invalid"
	ReasonTooLow    = "height_too_low"
)

// Metrics records consensus progress. A nil *Metrics discards all updates.
type Metrics struct {
	height             prometheus.Gauge
	maxSeenHeight      prometheus.Gauge
	proposalsReceived  prometheus.Counter
	proposalsRejected  *prometheus.CounterVec
	acceptsReceived    prometheus.Counter
	commits            prometheus.Counter
	skips              prometheus.Counter
	outOfSync          prometheus.Counter
	eventsEmitted      *prometheus.CounterVec
	eventsDropped      prometheus.Counter
	orphanAcceptsTotal prometheus.Counter
}

// New creates the metrics and registers them with registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "height",
			Help:      "Height of the last confirmed manifest",
		}),
		maxSeenHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_seen_height",
			Help:      "Highest manifest height referenced by any received message",
		}),
		proposalsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_received_total",
			Help:      "Number of manifests received",
		}),
		proposalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_rejected_total",
			Help:      "Number of manifests rejected, by reason",
		}, []string{"reason"}),
		acceptsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accepts_received_total",
			Help:      "Number of accepts received",
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Number of manifests confirmed",
		}),
		skips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skips_total",
			Help:      "Number of times the local node skipped a leader",
		}),
		outOfSync: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "out_of_sync_total",
			Help:      "Number of out of sync events emitted",
		}),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Number of events queued for the host, by kind",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Number of events dropped because the queue was full",
		}),
		orphanAcceptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_accepts_total",
			Help:      "Number of accepts received for unknown manifests",
		}),
	}

	var err error
	for _, c := range []prometheus.Collector{
		m.height, m.maxSeenHeight, m.proposalsReceived, m.proposalsRejected,
		m.acceptsReceived, m.commits, m.skips, m.outOfSync,
		m.eventsEmitted, m.eventsDropped, m.orphanAcceptsTotal,
	} {
		err = multierr.Append(err, registerer.Register(c))
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SetHeight records the confirmed height.
func (m *Metrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

// SetMaxSeenHeight records the highest height seen.
func (m *Metrics) SetMaxSeenHeight(height uint64) {
	if m == nil {
		return
	}
	m.maxSeenHeight.Set(float64(height))
}

// ProposalReceived counts a received manifest.
func (m *Metrics) ProposalReceived() {
	if m == nil {
		return
	}
	m.proposalsReceived.Inc()
}

// ProposalRejected counts a rejected manifest.
func (m *Metrics) ProposalRejected(reason string) {
	if m == nil {
		return
	}
	m.proposalsRejected.WithLabelValues(reason).Inc()
}

// AcceptReceived counts a received accept.
func (m *Metrics) AcceptReceived() {
	if m == nil {
		return
	}
	m.acceptsReceived.Inc()
}

// OrphanAccept counts an accept for a manifest that is not known.
func (m *Metrics) OrphanAccept() {
	if m == nil {
		return
	}
	m.orphanAcceptsTotal.Inc()
}

// Committed counts a confirmed manifest.
func (m *Metrics) Committed() {
	if m == nil {
		return
	}
	m.commits.Inc()
}

// Skipped counts a leader skip.
func (m *Metrics) Skipped() {
	if m == nil {
		return
	}
	m.skips.Inc()
}

// OutOfSync counts an out of sync event.
func (m *Metrics) OutOfSync() {
	if m == nil {
		return
	}
	m.outOfSync.Inc()
}

// EventQueued counts an event of the given kind handed to the host.
func (m *Metrics) EventQueued(kind string) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(kind).Inc()
}

// EventDropped counts an event lost to a full queue.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

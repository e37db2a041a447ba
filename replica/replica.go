// Package replica provides the host-facing facade of a validator.
//
// A Replica guards the consensus core with a single mutex, turns the core's
// events into a stream the host consumes with Next, and drives the skip and
// proposal timers.
package replica

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relab/solid"
	"github.com/relab/solid/consensus"
	"github.com/relab/solid/eventloop"
	"github.com/relab/solid/logging"
	"github.com/relab/solid/metrics"
	"github.com/relab/solid/synchronizer"
	"golang.org/x/time/rate"
)

// ErrStopped is returned by Next once the replica has been stopped.
var ErrStopped = errors.New("replica stopped")

// Replica is a participant in the consensus protocol.
type Replica struct {
	mut sync.Mutex

	app    solid.App
	signer solid.Signer
	cfg    solid.Config

	core         *consensus.Core
	events       *eventloop.Queue
	synchronizer *synchronizer.Synchronizer
	outOfSync    *rate.Limiter

	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// New returns a replica whose confirmed tip is lastConfirmed.
// It panics if lastConfirmed has no validators.
func New(app solid.App, signer solid.Signer, lastConfirmed *solid.Manifest, cfg solid.Config, opts ...Option) (*Replica, error) {
	if len(lastConfirmed.Validators) == 0 {
		panic("replica: must have at least one validator")
	}
	rOpt := newDefaultOpts()
	for _, opt := range opts {
		opt(rOpt)
	}

	r := &Replica{
		app:       app,
		signer:    signer,
		cfg:       cfg,
		events:    eventloop.NewQueue(cfg.EventQueueSize),
		outOfSync: newOutOfSyncLimiter(cfg),
		logger:    rOpt.logger,
		metrics:   rOpt.metrics,
		now:       rOpt.now,
		done:      make(chan struct{}),
	}
	core, err := r.newCore(app, lastConfirmed)
	if err != nil {
		return nil, err
	}
	r.core = core
	r.synchronizer = synchronizer.New(cfg.SkipTimeout, r.onTimeout, synchronizer.WithClock(r.now))
	return r, nil
}

// NewGenesis returns a replica that starts from the genesis manifest of validators.
func NewGenesis(app solid.App, signer solid.Signer, validators []solid.Peer, cfg solid.Config, opts ...Option) (*Replica, error) {
	return New(app, signer, solid.GenesisManifest(app, validators), cfg, opts...)
}

func (r *Replica) newCore(app solid.App, lastConfirmed *solid.Manifest) (*consensus.Core, error) {
	core, err := consensus.New(app, r.signer, lastConfirmed, r.cfg,
		consensus.WithLogger(r.logger),
		consensus.WithMetrics(r.metrics),
		consensus.WithClock(r.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consensus core: %w", err)
	}
	return core, nil
}

func newOutOfSyncLimiter(cfg solid.Config) *rate.Limiter {
	if cfg.OutOfSyncTimeout <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(cfg.OutOfSyncTimeout), 1)
}

// Start arms the timers and queues the initial events.
// The timers stop when ctx is cancelled or Stop is called.
func (r *Replica) Start(ctx context.Context) {
	r.synchronizer.Start(ctx)

	r.mut.Lock()
	defer r.mut.Unlock()
	r.drain()
}

// Stop disarms the timers and wakes every caller blocked in Next.
func (r *Replica) Stop() {
	r.synchronizer.Stop()
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

// Next returns the next event, blocking while there is none.
func (r *Replica) Next(ctx context.Context) (solid.Event, error) {
	for {
		if event, ok := r.events.Pop(); ok {
			return event, nil
		}
		select {
		case <-r.events.Ready():
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.done:
			return nil, ErrStopped
		}
	}
}

// TryNext returns the next event if there is one.
func (r *Replica) TryNext() (solid.Event, bool) {
	return r.events.Pop()
}

// Pending returns the number of events waiting to be consumed.
func (r *Replica) Pending() int {
	return r.events.Len()
}

// ReceiveProposal validates m and queues the events it leads to.
// A manifest that is already known queues a DuplicateProposalEvent in addition to
// returning the *solid.ProposalAlreadyExistsError.
func (r *Replica) ReceiveProposal(m *solid.Manifest) error {
	r.mut.Lock()
	defer r.mut.Unlock()

	if err := r.core.ReceiveProposal(m); err != nil {
		var dup *solid.ProposalAlreadyExistsError
		if errors.As(err, &dup) {
			r.emit(solid.DuplicateProposalEvent{ProposalHash: dup.Hash})
		}
		r.logger.Debugf("ReceiveProposal: rejected %s: %v", m, err)
		return err
	}
	r.drain()
	return nil
}

// ReceiveAccept validates accept and queues the events it leads to.
func (r *Replica) ReceiveAccept(accept solid.Accept) error {
	r.mut.Lock()
	defer r.mut.Unlock()

	event, err := r.core.ReceiveAccept(accept)
	if err != nil {
		r.logger.Debugf("ReceiveAccept: rejected %s: %v", accept, err)
		return err
	}
	if event != nil && !r.handle(event) {
		return nil
	}
	r.drain()
	return nil
}

// Tick runs the timer checks at now: if the skip deadline has passed, the local
// node votes to skip the expected leader. A deferred Propose that is due is queued,
// as is OutOfSync for an accept whose manifest is still missing.
// The timers call it on their own; hosts that drive time themselves may call it directly.
func (r *Replica) Tick(now time.Time) {
	r.mut.Lock()
	defer r.mut.Unlock()

	if r.synchronizer.SkipDue(now) {
		r.synchronizer.ClearSkip()
		if event := r.core.Skip(); event != nil && !r.handle(event) {
			return
		}
	}
	if r.synchronizer.OrphanDue(now) {
		r.synchronizer.ClearOrphan()
	}
	r.drain()
}

func (r *Replica) onTimeout() {
	r.Tick(r.now())
}

// Reset replaces the consensus state with one whose confirmed tip is lastConfirmed,
// for example after the host has fetched missing manifests out of band.
// Queued events are dropped.
func (r *Replica) Reset(lastConfirmed *solid.Manifest, app solid.App) error {
	r.mut.Lock()
	defer r.mut.Unlock()

	core, err := r.newCore(app, lastConfirmed)
	if err != nil {
		return err
	}
	r.app = app
	r.core = core
	r.events.Clear()
	r.outOfSync = newOutOfSyncLimiter(r.cfg)
	r.synchronizer.ClearProposal()
	r.synchronizer.ClearOrphan()
	r.synchronizer.ResetSkip()
	r.logger.Infof("Reset[height=%d]: %s", lastConfirmed.Height, app.Hash(&lastConfirmed.ManifestContent).Short())
	return nil
}

// drain moves the core's events to the queue until the core has nothing more to do.
// r.mut must be held.
func (r *Replica) drain() {
	for {
		event := r.core.NextEvent()
		if event == nil {
			break
		}
		if !r.handle(event) {
			break
		}
	}
	if due, ok := r.core.ProposeDeadline(); ok {
		r.synchronizer.ScheduleProposal(due)
	} else {
		r.synchronizer.ClearProposal()
	}
	if at, ok := r.core.OrphanDeadline(); ok {
		r.synchronizer.ScheduleOrphan(at)
	} else {
		r.synchronizer.ClearOrphan()
	}
}

// handle applies the timer policy for event and queues it.
// It reports whether draining should continue.
func (r *Replica) handle(event solid.Event) bool {
	switch e := event.(type) {
	case solid.CommitEvent:
		r.synchronizer.ResetSkip()
	case solid.ProposeEvent:
		// the local node is the leader, so there is nobody to skip
		r.synchronizer.ClearSkip()
	case solid.OutOfSyncEvent:
		r.synchronizer.ClearSkip()
		if !r.outOfSync.AllowN(r.now(), 1) {
			return false
		}
		r.logger.Infof("OutOfSync[height=%d]: network is at height %d", e.Height, e.MaxSeenHeight)
		r.emit(event)
		return false
	case solid.AcceptEvent:
		r.outOfSync = newOutOfSyncLimiter(r.cfg)
		r.synchronizer.ResetSkip()
		// already counted by the core
		if solid.SamePeer(e.Accept.LeaderID, r.signer.Peer()) {
			return true
		}
	}
	r.emit(event)
	return true
}

// emit queues event, dropping the oldest queued event if the queue is full.
func (r *Replica) emit(event solid.Event) {
	r.metrics.EventQueued(eventKind(event))
	if r.events.Push(event) {
		r.metrics.EventDropped()
		r.logger.Warnf("event queue full, dropped the oldest event")
	}
}

func eventKind(event solid.Event) string {
	switch event.(type) {
	case solid.ProposeEvent:
		return "propose"
	case solid.CommitEvent:
		return "commit"
	case solid.AcceptEvent:
		return "accept"
	case solid.OutOfSyncEvent:
		return "out_of_sync"
	case solid.DuplicateProposalEvent:
		return "duplicate_proposal"
	default:
		return "unknown"
	}
}

// Height returns the height of the last confirmed manifest.
func (r *Replica) Height() uint64 {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.core.Height()
}

// Hash returns the hash of the last confirmed manifest.
func (r *Replica) Hash() solid.ProposalHash {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.core.Hash()
}

// LastConfirmed returns the last confirmed manifest.
func (r *Replica) LastConfirmed() *solid.Manifest {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.core.LastConfirmed()
}

// MaxHeight returns the highest height seen in any manifest or accept.
func (r *Replica) MaxHeight() uint64 {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.core.MaxHeight()
}

// IsOutOfSync reports whether the network is more than one manifest ahead.
func (r *Replica) IsOutOfSync() bool {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.core.IsOutOfSync()
}

// Exists reports whether the manifest with the given hash is held.
func (r *Replica) Exists(hash solid.ProposalHash) bool {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.core.Exists(hash)
}

// Proposal returns the held manifest with the given hash.
func (r *Replica) Proposal(hash solid.ProposalHash) (*solid.Manifest, bool) {
	r.mut.Lock()
	defer r.mut.Unlock()
	p, ok := r.core.Proposal(hash)
	if !ok {
		return nil, false
	}
	return p.Manifest(), true
}

// CurrentProposal returns the manifest the local node is voting for.
func (r *Replica) CurrentProposal() *solid.Manifest {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.core.CurrentProposal().Manifest()
}

// ConfirmedProposalsFrom returns the retained confirmed manifests from height up to the tip.
func (r *Replica) ConfirmedProposalsFrom(height uint64) []*solid.Manifest {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.core.ConfirmedProposalsFrom(height)
}

// Descendants returns the manifests after ancestor up to and including head, lowest first.
func (r *Replica) Descendants(ancestor, head solid.ProposalHash) []*solid.Manifest {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.core.Descendants(ancestor, head)
}

// SkipDeadline returns when the local node will vote to skip the expected leader.
func (r *Replica) SkipDeadline() (time.Time, bool) {
	return r.synchronizer.SkipDeadline()
}

// Package synchronizer keeps the deadlines that move a replica forward when
// the network is silent. After the skip deadline the local node votes to skip
// the expected leader. After the proposal deadline a deferred Propose becomes
// due. After the orphan deadline an accept whose manifest never arrived
// marks the local node as out of sync.
package synchronizer

import (
	"context"
	"sync"
	"time"
)

// Synchronizer arms a single timer for the earliest of its deadlines.
// When the timer fires, the handler passed to New is called; the handler
// is expected to check which deadlines are due with SkipDue, ProposalDue and
// OrphanDue.
type Synchronizer struct {
	mut sync.Mutex

	skipTimeout time.Duration
	now         func() time.Time
	onTimeout   func()

	skipAt    time.Time
	proposeAt time.Time
	orphanAt  time.Time

	timer   *time.Timer
	running bool
	done    chan struct{}
}

// New returns a synchronizer that calls onTimeout when a deadline expires.
// The handler is called from the timer goroutine, without any lock held.
func New(skipTimeout time.Duration, onTimeout func(), opts ...Option) *Synchronizer {
	s := &Synchronizer{
		skipTimeout: skipTimeout,
		now:         time.Now,
		onTimeout:   onTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock overrides the source of the current time used to compute deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// Start arms the timer. It is stopped when ctx is cancelled or Stop is called.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mut.Lock()
	if s.running {
		s.mut.Unlock()
		return
	}
	s.running = true
	done := make(chan struct{})
	s.done = done
	s.rearm()
	s.mut.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-done:
		}
	}()
}

// Stop disarms the timer. Deadlines are kept, and are re-armed by the next Start.
func (s *Synchronizer) Stop() {
	s.mut.Lock()
	defer s.mut.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	close(s.done)
}

// ResetSkip sets the skip deadline to one skip timeout from now.
func (s *Synchronizer) ResetSkip() {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.skipAt = s.now().Add(s.skipTimeout)
	s.rearm()
}

// ClearSkip removes the skip deadline.
func (s *Synchronizer) ClearSkip() {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.skipAt = time.Time{}
	s.rearm()
}

// SkipDeadline returns the skip deadline, if one is set.
func (s *Synchronizer) SkipDeadline() (time.Time, bool) {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.skipAt, !s.skipAt.IsZero()
}

// SkipDue reports whether the skip deadline has passed at now.
func (s *Synchronizer) SkipDue(now time.Time) bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	return !s.skipAt.IsZero() && !now.Before(s.skipAt)
}

// ScheduleProposal sets the proposal deadline to at.
func (s *Synchronizer) ScheduleProposal(at time.Time) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.proposeAt = at
	s.rearm()
}

// ClearProposal removes the proposal deadline.
func (s *Synchronizer) ClearProposal() {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.proposeAt = time.Time{}
	s.rearm()
}

// ProposalDue reports whether the proposal deadline has passed at now.
func (s *Synchronizer) ProposalDue(now time.Time) bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	return !s.proposeAt.IsZero() && !now.Before(s.proposeAt)
}

// ScheduleOrphan sets the orphan deadline to at.
func (s *Synchronizer) ScheduleOrphan(at time.Time) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.orphanAt = at
	s.rearm()
}

// ClearOrphan removes the orphan deadline.
func (s *Synchronizer) ClearOrphan() {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.orphanAt = time.Time{}
	s.rearm()
}

// OrphanDue reports whether the orphan deadline has passed at now.
func (s *Synchronizer) OrphanDue(now time.Time) bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	return !s.orphanAt.IsZero() && !now.Before(s.orphanAt)
}

// rearm replaces the timer with one for the earliest deadline.
// s.mut must be held.
func (s *Synchronizer) rearm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.running {
		return
	}
	next := earliest(s.skipAt, s.proposeAt, s.orphanAt)
	if next.IsZero() {
		return
	}
	d := next.Sub(s.now())
	if d < 0 {
		d = 0
	}
	s.timer = time.AfterFunc(d, s.onTimeout)
}

func earliest(deadlines ...time.Time) time.Time {
	var next time.Time
	for _, t := range deadlines {
		if t.IsZero() {
			continue
		}
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}

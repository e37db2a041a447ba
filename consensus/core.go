// Package consensus implements the proposal/accept/commit state machine.
//
// The core consumes manifests and accepts and produces events for the host.
// A manifest is confirmed once a successor carrying a quorum of accepts for it
// has been received and validated; every validator votes for the current
// pending manifest by sending an accept to the leader of the next slot.
package consensus

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/relab/solid"
	"github.com/relab/solid/logging"
	"github.com/relab/solid/metrics"
	"github.com/relab/solid/register"
)

// Core is the consensus state of one validator.
// It is not safe for concurrent use.
type Core struct {
	app     solid.App
	signer  solid.Signer
	cfg     solid.Config
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	proposals *register.Register
	// accepts for manifests that have not been received yet
	orphans   *lru.Cache
	maxHeight uint64

	pending *deferredPropose
}

type orphan struct {
	height    uint64
	skips     uint64
	firstSeen time.Time
	accepts   []solid.Accept
	// OutOfSync has been reported for the expired orphan
	reported bool
}

// deferredPropose is a quorum that was reached before the manifest it votes
// for had been active for the minimum proposal duration.
type deferredPropose struct {
	hash   solid.ProposalHash
	height uint64
	skips  uint64
	due    time.Time
}

// New returns a core whose confirmed tip is lastConfirmed.
func New(app solid.App, signer solid.Signer, lastConfirmed *solid.Manifest, cfg solid.Config, opts ...Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	orphans, err := lru.New(cfg.OrphanCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create orphan cache: %w", err)
	}
	c := &Core{
		app:       app,
		signer:    signer,
		cfg:       cfg,
		logger:    logging.Nop(),
		now:       time.Now,
		orphans:   orphans,
		maxHeight: lastConfirmed.Height,
	}
	for _, opt := range opts {
		opt(c)
	}

	tip := register.NewProposal(app, lastConfirmed)
	tip.Validated = true
	tip.ActivatedAt = c.now()
	c.proposals = register.New(tip, cfg.MaxProposalHistory)

	c.metrics.SetHeight(lastConfirmed.Height)
	c.metrics.SetMaxSeenHeight(lastConfirmed.Height)
	return c, nil
}

// Height returns the height of the last confirmed manifest.
func (c *Core) Height() uint64 {
	return c.proposals.Height()
}

// Hash returns the hash of the last confirmed manifest.
func (c *Core) Hash() solid.ProposalHash {
	return c.proposals.LastConfirmed().Hash()
}

// LastConfirmed returns the last confirmed manifest.
func (c *Core) LastConfirmed() *solid.Manifest {
	return c.proposals.LastConfirmed().Manifest()
}

// MaxHeight returns the highest height referenced by any manifest or accept received.
func (c *Core) MaxHeight() uint64 {
	return c.maxHeight
}

// IsOutOfSync reports whether the network is more than one manifest ahead of the confirmed tip.
func (c *Core) IsOutOfSync() bool {
	return c.maxHeight > c.Height()+1
}

// Exists reports whether the manifest is held. Confirmed manifests below the
// tip are only held while they are within the proposal history.
func (c *Core) Exists(hash solid.ProposalHash) bool {
	return c.proposals.Contains(hash)
}

// Proposal returns the held proposal with the given hash.
func (c *Core) Proposal(hash solid.ProposalHash) (*register.Proposal, bool) {
	return c.proposals.Get(hash)
}

// CurrentProposal returns the proposal the local node is voting for.
func (c *Core) CurrentProposal() *register.Proposal {
	c.validatePending()
	return c.currentProposal()
}

// ConfirmedProposalsFrom returns the retained confirmed manifests from height up to the tip, oldest first.
func (c *Core) ConfirmedProposalsFrom(height uint64) []*solid.Manifest {
	return manifests(c.proposals.ConfirmedFrom(height))
}

// Descendants returns the manifests after ancestor up to and including head,
// lowest first, or nil if head does not extend ancestor.
func (c *Core) Descendants(ancestor, head solid.ProposalHash) []*solid.Manifest {
	return manifests(c.proposals.Descendants(ancestor, head))
}

// InverseExceeded reports whether the accepts seen for the manifest at the given
// skips are enough that no competing quorum can form without those voters.
// It is advisory; the host may use it to alert on conflicting votes.
func (c *Core) InverseExceeded(hash solid.ProposalHash, skips uint64) bool {
	p, ok := c.proposals.Get(hash)
	if !ok {
		return false
	}
	return c.cfg.AcceptThreshold.InverseExceeded(p.AcceptCount(skips), len(p.OrderedValidators()))
}

// ProposeDeadline returns when a deferred Propose becomes due.
// A Propose waiting for its manifest to be validated has no deadline.
func (c *Core) ProposeDeadline() (time.Time, bool) {
	if c.pending == nil {
		return time.Time{}, false
	}
	if p, ok := c.proposals.Get(c.pending.hash); ok && !p.Validated {
		return time.Time{}, false
	}
	return c.pending.due, true
}

// ReceiveProposal validates m and adds it to the register.
// The events it leads to are returned by NextEvent.
func (c *Core) ReceiveProposal(m *solid.Manifest) error {
	c.metrics.ProposalReceived()
	p := register.NewProposal(c.app, m)
	hash := p.Hash()

	if err := p.ValidateStructure(c.app, c.cfg.AcceptThreshold); err != nil {
		c.metrics.ProposalRejected(metrics.ReasonInvalid)
		return err
	}

	if c.proposals.Contains(hash) {
		c.metrics.ProposalRejected(metrics.ReasonDuplicate)
		return &solid.ProposalAlreadyExistsError{Hash: hash}
	}

	height := c.Height()
	if p.Height() <= height {
		c.metrics.ProposalRejected(metrics.ReasonTooLow)
		return solid.ErrProposalHeightTooLow
	}
	if p.Height() == height+1 && p.LastHash() != c.Hash() {
		c.metrics.ProposalRejected(metrics.ReasonInvalid)
		return solid.ErrProposalInvalidDecendent
	}

	parent, hasParent := c.proposals.Get(p.LastHash())
	if !hasParent && p.Height()-height > c.cfg.MaxProposalHistory {
		// too far ahead to be held until the gap is filled
		c.observeHeight(p.Height())
		c.logger.Debugf("ReceiveProposal[height=%d]: %s is beyond the proposal history", height, p.Header())
		return nil
	}

	if hasParent && parent.Validated {
		if err := p.ValidateContents(c.app, parent, c.cfg.AcceptThreshold); err != nil {
			c.metrics.ProposalRejected(metrics.ReasonInvalid)
			return err
		}
		p.Validated = true
	}

	c.observeHeight(p.Height())

	p.ActivatedAt = c.now()

	if v, ok := c.orphans.Get(hash); ok {
		c.orphans.Remove(hash)
		for _, accept := range v.(*orphan).accepts {
			if p.AddAccept(accept, c.cfg.AcceptThreshold) && solid.SamePeer(accept.LeaderID, c.signer.Peer()) {
				c.deferPropose(p, accept.Skips)
			}
		}
	}

	c.proposals.Insert(p)
	if !p.Validated {
		c.validatePending()
		for _, evicted := range c.proposals.TrimHeld(c.cfg.MaxProposalHistory) {
			c.logger.Debugf("ReceiveProposal[height=%d]: dropping held %s", height, evicted.Header())
		}
	}

	c.logger.Debugf("ReceiveProposal[height=%d]: %s from %s (validated: %t)", height, p.Header(), m.LeaderID, p.Validated)
	return nil
}

// NextEvent returns the next event for the host, or nil if there is nothing to do.
// The host should call it until it returns nil after every other operation.
func (c *Core) NextEvent() solid.Event {
	c.validatePending()

	if next := c.proposals.NextPending(0); next != nil {
		if confirmedBy := c.proposals.NextPending(1); confirmedBy != nil {
			c.confirm(next)
			return solid.CommitEvent{
				Manifest:    next.Manifest(),
				ConfirmedBy: confirmedBy.Manifest(),
			}
		}
	}

	if c.IsOutOfSync() {
		c.metrics.OutOfSync()
		return solid.OutOfSyncEvent{Height: c.Height(), MaxSeenHeight: c.maxHeight}
	}

	if e := c.expiredOrphan(); e != nil {
		return e
	}

	if e := c.duePropose(); e != nil {
		return e
	}

	if !c.currentProposal().InitialAcceptSent {
		return c.nextAcceptEvent(false)
	}

	return nil
}

// Skip is called when no manifest from the expected leader arrived in time.
// It returns the accept that moves the local vote to the next leader.
func (c *Core) Skip() solid.Event {
	c.validatePending()
	if c.IsOutOfSync() {
		return nil
	}
	c.metrics.Skipped()
	return c.nextAcceptEvent(true)
}

// ReceiveAccept validates accept and counts it. It returns the event the accept
// leads to: a Propose when it completes a quorum addressed to the local node,
// an Accept when the local node changes its vote, or OutOfSync.
func (c *Core) ReceiveAccept(accept solid.Accept) (solid.Event, error) {
	c.metrics.AcceptReceived()
	if accept.Skips > solid.MaxSkips {
		return nil, solid.ErrSkipsOutOfRange
	}
	if err := accept.VerifySignature(); err != nil {
		return nil, err
	}

	c.validatePending()
	current := c.currentProposal().Hash()

	c.observeHeight(accept.Proposal.Height)

	if p, ok := c.proposals.Get(accept.Proposal.Hash); ok {
		if err := p.ValidateAccept(&accept); err != nil {
			return nil, err
		}
	}

	if e := c.addAccept(accept); e != nil {
		return e, nil
	}

	// enough of the network has skipped that the local node follows
	if c.currentProposal().Hash() != current {
		return c.nextAcceptEvent(false), nil
	}
	return nil, nil
}

func (c *Core) addAccept(accept solid.Accept) solid.Event {
	header := accept.Proposal
	if c.Height() > header.Height {
		return nil
	}

	outOfSync := c.IsOutOfSync()
	current := c.currentProposal()

	p, ok := c.proposals.Get(header.Hash)
	if !ok {
		return c.addOrphan(accept, current)
	}

	if p.AddAccept(accept, c.cfg.AcceptThreshold) &&
		solid.SamePeer(p.LeaderForSkip(accept.Skips), c.signer.Peer()) &&
		!outOfSync {
		return c.propose(p, accept.Skips)
	}

	// follow a higher skip for the proposal being voted for once no quorum
	// can form at the skips below it
	if current.Hash() == header.Hash {
		if highest, ok := p.HighestSkipWithInverse(c.cfg.AcceptThreshold); ok && highest > p.SkipsSent {
			p.SkipsSent = highest
			return c.nextAcceptEvent(false)
		}
	}

	return nil
}

func (c *Core) addOrphan(accept solid.Accept, current *register.Proposal) solid.Event {
	c.metrics.OrphanAccept()
	header := accept.Proposal
	now := c.now()

	var o *orphan
	if v, ok := c.orphans.Get(header.Hash); ok {
		o = v.(*orphan)
		// voters cannot be checked until the manifest arrives
		if !o.has(accept) && len(o.accepts) < c.cfg.OrphanCacheSize {
			o.accepts = append(o.accepts, accept)
		}
	} else {
		o = &orphan{height: header.Height, skips: header.Skips, firstSeen: now, accepts: []solid.Accept{accept}}
		c.orphans.Add(header.Hash, o)
	}

	// an accept one height ahead is normal: a manifest may reach other validators first
	missingMany := header.Height > current.Height()+1

	if missingMany || (c.expired(o, now) && o.ahead(current)) {
		o.reported = true
		c.metrics.OutOfSync()
		return solid.OutOfSyncEvent{Height: c.Height(), MaxSeenHeight: header.Height}
	}
	return nil
}

func (c *Core) expired(o *orphan, now time.Time) bool {
	return now.Sub(o.firstSeen) > c.cfg.MissingProposalTimeout
}

// ahead reports whether the orphan votes for a manifest past the current proposal.
func (o *orphan) ahead(current *register.Proposal) bool {
	return o.height > current.Height() || o.skips > current.Skips()
}

// OrphanDeadline returns when the earliest unreported accept for a missing manifest
// past the current proposal expires, after which NextEvent reports OutOfSync.
// There is none while the node is already out of sync.
func (c *Core) OrphanDeadline() (time.Time, bool) {
	if c.IsOutOfSync() {
		return time.Time{}, false
	}
	current := c.currentProposal()
	var earliest time.Time
	for _, k := range c.orphans.Keys() {
		v, ok := c.orphans.Peek(k)
		if !ok {
			continue
		}
		o := v.(*orphan)
		if o.reported || !o.ahead(current) {
			continue
		}
		// expiry is strictly after the timeout
		at := o.firstSeen.Add(c.cfg.MissingProposalTimeout + time.Nanosecond)
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
		}
	}
	return earliest, !earliest.IsZero()
}

// expiredOrphan reports OutOfSync for the first expired accept for a missing manifest
// past the current proposal. Each orphan is reported once.
func (c *Core) expiredOrphan() solid.Event {
	current := c.currentProposal()
	now := c.now()
	for _, k := range c.orphans.Keys() {
		v, ok := c.orphans.Peek(k)
		if !ok {
			continue
		}
		o := v.(*orphan)
		if o.reported || !o.ahead(current) || !c.expired(o, now) {
			continue
		}
		o.reported = true
		c.metrics.OutOfSync()
		c.logger.Debugf("OutOfSync[height=%d]: manifest %d.%d still missing", c.Height(), o.height, o.skips)
		return solid.OutOfSyncEvent{Height: c.Height(), MaxSeenHeight: o.height}
	}
	return nil
}

func (o *orphan) has(accept solid.Accept) bool {
	for _, a := range o.accepts {
		if a.Skips == accept.Skips && solid.SamePeer(a.From, accept.From) {
			return true
		}
	}
	return false
}

// nextAcceptEvent signs the accept for the current proposal and counts it locally.
func (c *Core) nextAcceptEvent(skip bool) solid.Event {
	current := c.currentProposal()
	skips := current.NextAcceptSkip(c.cfg.AcceptThreshold, skip)

	accept, err := solid.NewAccept(c.signer, current.Header(), skips, current.LeaderForSkip(skips))
	if err != nil {
		c.logger.Errorf("Accept[height=%d, skips=%d]: %v", current.Height(), skips, err)
		return nil
	}

	current.SkipsSent = skips
	current.InitialAcceptSent = true

	c.logger.Debugf("Accept[height=%d]: %s", c.Height(), accept)

	if e := c.addAccept(accept); e != nil {
		return e
	}
	return solid.AcceptEvent{Accept: accept}
}

// propose returns the Propose for the quorum on p at skips, or defers it
// until p is validated and has been active for the minimum proposal duration.
func (c *Core) propose(p *register.Proposal, skips uint64) solid.Event {
	if p.Validated && !c.now().Before(p.ActivatedAt.Add(c.cfg.MinProposalDuration)) {
		return proposeEvent(p, skips)
	}
	c.deferPropose(p, skips)
	return nil
}

func (c *Core) deferPropose(p *register.Proposal, skips uint64) {
	due := p.ActivatedAt.Add(c.cfg.MinProposalDuration)
	c.pending = &deferredPropose{hash: p.Hash(), height: p.Height(), skips: skips, due: due}
	c.logger.Debugf("Propose[height=%d, skips=%d]: deferred until %s", p.Height()+1, skips, due.Format(time.RFC3339Nano))
}

// duePropose releases the deferred Propose once it is due.
func (c *Core) duePropose() solid.Event {
	d := c.pending
	if d == nil || c.now().Before(d.due) {
		return nil
	}
	p, ok := c.proposals.Get(d.hash)
	if !ok || p.Height() < c.Height() {
		c.pending = nil
		return nil
	}
	if !p.Validated {
		return nil
	}
	c.pending = nil
	return proposeEvent(p, d.skips)
}

func proposeEvent(p *register.Proposal, skips uint64) solid.Event {
	return solid.ProposeEvent{
		LastProposalHash: p.Hash(),
		Height:           p.Height() + 1,
		Skips:            skips,
		Accepts:          p.AcceptsForSkip(skips),
	}
}

// currentProposal returns the proposal the local node votes for: the next
// pending proposal, unless the network or the local node has already skipped
// past its leader, in which case the confirmed tip.
func (c *Core) currentProposal() *register.Proposal {
	tip := c.proposals.LastConfirmed()
	next := c.proposals.NextPending(0)
	if next == nil {
		return tip
	}
	if highest, ok := tip.HighestSkipWithInverse(c.cfg.AcceptThreshold); ok && highest > next.Skips() {
		return tip
	}
	if tip.SkipsSent > next.Skips() {
		return tip
	}
	return next
}

// validatePending validates held proposals whose predecessor has been validated,
// lowest first, and drops those that fail.
func (c *Core) validatePending() {
	for _, p := range c.proposals.Pending() {
		if p.Validated {
			continue
		}
		parent, ok := c.proposals.Get(p.LastHash())
		if !ok || !parent.Validated {
			continue
		}
		if err := p.ValidateContents(c.app, parent, c.cfg.AcceptThreshold); err != nil {
			c.logger.Infof("ReceiveProposal[height=%d]: dropping %s: %v", c.Height(), p.Header(), err)
			c.metrics.ProposalRejected(metrics.ReasonInvalid)
			c.proposals.Remove(p.Hash())
			continue
		}
		p.Validated = true
	}
}

func (c *Core) confirm(p *register.Proposal) {
	c.proposals.Confirm(p.Hash())
	height := c.Height()

	for _, k := range c.orphans.Keys() {
		if v, ok := c.orphans.Peek(k); ok && v.(*orphan).height <= height {
			c.orphans.Remove(k)
		}
	}
	// the successor of the new tip already exists
	if c.pending != nil && c.pending.height <= height {
		c.pending = nil
	}

	c.metrics.Committed()
	c.metrics.SetHeight(height)
	c.logger.Infof("Commit[height=%d, skips=%d]: %s", height, p.Skips(), p.Hash().Short())
}

func (c *Core) observeHeight(height uint64) {
	if height > c.maxHeight {
		c.maxHeight = height
		c.metrics.SetMaxSeenHeight(height)
	}
}

func manifests(proposals []*register.Proposal) []*solid.Manifest {
	if proposals == nil {
		return nil
	}
	out := make([]*solid.Manifest, len(proposals))
	for i, p := range proposals {
		out[i] = p.Manifest()
	}
	return out
}

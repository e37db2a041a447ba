package register

import (
	"time"

	"github.com/relab/solid"
	"github.com/relab/solid/leaderrotation"
	"golang.org/x/exp/slices"
)

// Proposal is a manifest together with the local voting state for it.
type Proposal struct {
	manifest *solid.Manifest
	hash     solid.ProposalHash
	ordered  []solid.Peer
	accepts  map[uint64]map[string]solid.Accept // skips -> voter -> accept

	// InitialAcceptSent is set once the local node has voted for this proposal.
	InitialAcceptSent bool
	// SkipsSent is the highest skip count the local node has voted with.
	SkipsSent uint64
	// Validated is set once the proposal has been checked against its predecessor.
	Validated bool
	// ActivatedAt is when the proposal was received, or when the register was created for the tip.
	ActivatedAt time.Time

	// insertion order in the register
	seq uint64
}

// NewProposal wraps m. The hash is computed once with app.
func NewProposal(app solid.App, m *solid.Manifest) *Proposal {
	return &Proposal{
		manifest: m,
		hash:     app.Hash(&m.ManifestContent),
		ordered:  m.OrderedValidators(),
		accepts:  make(map[uint64]map[string]solid.Accept),
	}
}

// Manifest returns the wrapped manifest.
func (p *Proposal) Manifest() *solid.Manifest { return p.manifest }

// Hash returns the hash of the manifest.
func (p *Proposal) Hash() solid.ProposalHash { return p.hash }

// LastHash returns the hash of the predecessor.
func (p *Proposal) LastHash() solid.ProposalHash { return p.manifest.LastProposalHash }

// Height returns the height of the manifest.
func (p *Proposal) Height() uint64 { return p.manifest.Height }

// Skips returns the skip count of the manifest.
func (p *Proposal) Skips() uint64 { return p.manifest.Skips }

// Header returns the header identifying the proposal.
func (p *Proposal) Header() solid.ProposalHeader {
	return solid.ProposalHeader{Hash: p.hash, Height: p.Height(), Skips: p.Skips()}
}

// OrderedValidators returns the validators in schedule order for this proposal's slot.
func (p *Proposal) OrderedValidators() []solid.Peer { return p.ordered }

// LeaderForSkip returns the validator that may propose the successor at the given skips,
// or nil if the manifest has no validators.
func (p *Proposal) LeaderForSkip(skips uint64) solid.Peer {
	if len(p.ordered) == 0 {
		return nil
	}
	return leaderrotation.LeaderForSkip(skips, p.ordered)
}

// AddAccept records a valid accept. It reports whether this accept made the
// count for its skip reach the quorum exactly, which happens at most once per skip.
func (p *Proposal) AddAccept(accept solid.Accept, threshold solid.Threshold) bool {
	if err := p.ValidateAccept(&accept); err != nil {
		return false
	}
	voters, ok := p.accepts[accept.Skips]
	if !ok {
		voters = make(map[string]solid.Accept)
		p.accepts[accept.Skips] = voters
	}
	key := solid.PeerKey(accept.From)
	if _, dup := voters[key]; dup {
		return false
	}
	voters[key] = accept
	return threshold.IsExactBreach(len(voters), len(p.ordered))
}

// AcceptCount returns the number of distinct voters seen for the given skips.
func (p *Proposal) AcceptCount(skips uint64) int {
	return len(p.accepts[skips])
}

// AcceptsForSkip returns the accepts seen for the given skips, ordered by voter.
func (p *Proposal) AcceptsForSkip(skips uint64) []solid.Accept {
	voters := p.accepts[skips]
	keys := make([]string, 0, len(voters))
	for k := range voters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	accepts := make([]solid.Accept, 0, len(keys))
	for _, k := range keys {
		accepts = append(accepts, voters[k])
	}
	return accepts
}

// HighestSkipWithInverse returns the highest skip count for which enough validators
// have voted that no quorum can form without them.
func (p *Proposal) HighestSkipWithInverse(threshold solid.Threshold) (uint64, bool) {
	skips := make([]uint64, 0, len(p.accepts))
	for s := range p.accepts {
		skips = append(skips, s)
	}
	slices.Sort(skips)

	peers := len(p.ordered)
	if peers < 1 {
		peers = 1
	}
	for i := len(skips) - 1; i >= 0; i-- {
		if threshold.InverseExceeded(len(p.accepts[skips[i]]), peers) {
			return skips[i], true
		}
	}
	return 0, false
}

// NextAcceptSkip returns the skip count the local node should vote with next.
// If skip is set, the node moves past the skip count it last voted with, up to solid.MaxSkips.
// The node follows a higher skip once enough validators have moved to it that
// the lower skips can no longer reach a quorum.
func (p *Proposal) NextAcceptSkip(threshold solid.Threshold, skip bool) uint64 {
	if !p.InitialAcceptSent && p.SkipsSent == 0 {
		return 0
	}
	next := p.SkipsSent
	if skip && next < solid.MaxSkips {
		next++
	}
	if highest, ok := p.HighestSkipWithInverse(threshold); ok && highest > next {
		return highest
	}
	return next
}

// ValidateStructure checks everything that does not depend on the predecessor:
// the number of embedded accepts, the leader signature, the accepts' signatures,
// addressee and target, and the application structure rules.
func (p *Proposal) ValidateStructure(app solid.App, threshold solid.Threshold) error {
	m := p.manifest
	if m.Skips > solid.MaxSkips {
		return solid.ErrSkipsOutOfRange
	}
	if !threshold.IsExceeded(len(m.Accepts), len(p.ordered)) {
		return solid.ErrInsufficientAcceptsForProposal
	}
	if !m.Verify(app) {
		return solid.ErrInvalidProposalSignature
	}
	for i := range m.Accepts {
		accept := &m.Accepts[i]
		if accept.Skips > solid.MaxSkips {
			return solid.ErrSkipsOutOfRange
		}
		if err := accept.VerifySignature(); err != nil {
			return err
		}
		if !solid.SamePeer(accept.LeaderID, m.LeaderID) {
			return solid.NewInvalidAcceptLeaderError(m.LeaderID, accept.LeaderID)
		}
		if accept.Proposal.Hash != m.LastProposalHash {
			return solid.ErrInvalidAcceptProposalHash
		}
	}
	if !app.ValidateStructure(&m.ManifestContent) {
		return solid.ErrProposalInvalidAppStructure
	}
	return nil
}

// ValidateContents checks the proposal against its predecessor parent.
func (p *Proposal) ValidateContents(app solid.App, parent *Proposal, threshold solid.Threshold) error {
	m := p.manifest
	if parent.hash != m.LastProposalHash || parent.Height()+1 != m.Height {
		return solid.ErrProposalInvalidDecendent
	}
	if !solid.SamePeer(parent.LeaderForSkip(m.Skips), m.LeaderID) {
		return solid.ErrInvalidProposalLeader
	}
	parentValidators := parent.manifest.Validators
	voters := make(map[string]struct{}, len(m.Accepts))
	for i := range m.Accepts {
		accept := &m.Accepts[i]
		if accept.Proposal.Height != parent.Height() || accept.Proposal.Skips != parent.Skips() {
			return solid.ErrInvalidAcceptProposalHash
		}
		if !solid.ContainsPeer(parentValidators, accept.From) {
			return solid.ErrInvalidAcceptValidator
		}
		if expected := parent.LeaderForSkip(accept.Skips); !solid.SamePeer(expected, accept.LeaderID) {
			return solid.NewInvalidAcceptLeaderError(expected, accept.LeaderID)
		}
		voters[solid.PeerKey(accept.From)] = struct{}{}
	}
	if !threshold.IsExceeded(len(voters), len(parentValidators)) {
		return solid.ErrProposalPeerThresholdNotMet
	}
	if !app.ValidateContents(&m.ManifestContent, &parent.manifest.ManifestContent) {
		return solid.ErrProposalInvalidAppContent
	}
	return nil
}

// ValidateAccept checks an accept that votes for this proposal.
func (p *Proposal) ValidateAccept(accept *solid.Accept) error {
	if accept.Skips > solid.MaxSkips {
		return solid.ErrSkipsOutOfRange
	}
	if err := accept.VerifySignature(); err != nil {
		return err
	}
	if accept.Proposal.Hash != p.hash || accept.Proposal.Height != p.Height() {
		return solid.ErrInvalidAcceptProposalHash
	}
	if expected := p.LeaderForSkip(accept.Skips); !solid.SamePeer(expected, accept.LeaderID) {
		return solid.NewInvalidAcceptLeaderError(expected, accept.LeaderID)
	}
	if !solid.ContainsPeer(p.manifest.Validators, accept.From) {
		return solid.ErrInvalidAcceptValidator
	}
	return nil
}

// Package register keeps the last confirmed manifest and the bounded set of
// manifests that have been received but not yet confirmed.
//
// The register is not safe for concurrent use; the consensus core owns it and
// is itself guarded by the replica.
package register

import (
	"bytes"

	"github.com/google/btree"
	"github.com/relab/solid"
	"golang.org/x/exp/slices"
)

const treeDegree = 8

// Register stores the confirmed tip and the pending proposals above it,
// indexed by hash and ordered by (height, skips, hash).
type Register struct {
	tip       solid.ProposalHash
	proposals map[solid.ProposalHash]*Proposal
	index     *btree.BTreeG[*Proposal]
	capacity  uint64
	inserted  uint64
}

func less(a, b *Proposal) bool {
	if a.Height() != b.Height() {
		return a.Height() < b.Height()
	}
	if a.Skips() != b.Skips() {
		return a.Skips() < b.Skips()
	}
	return bytes.Compare(a.hash[:], b.hash[:]) < 0
}

// New returns a register whose tip is lastConfirmed. Confirmed proposals more than
// capacity heights below the tip are dropped.
func New(lastConfirmed *Proposal, capacity uint64) *Register {
	r := &Register{
		tip:       lastConfirmed.Hash(),
		proposals: make(map[solid.ProposalHash]*Proposal),
		index:     btree.NewG(treeDegree, less),
		capacity:  capacity,
	}
	r.Insert(lastConfirmed)
	return r
}

// Height returns the confirmed height.
func (r *Register) Height() uint64 {
	return r.LastConfirmed().Height()
}

// LastConfirmed returns the confirmed tip.
func (r *Register) LastConfirmed() *Proposal {
	return r.proposals[r.tip]
}

// Len returns the number of proposals held, the tip and its retained ancestors included.
func (r *Register) Len() int {
	return len(r.proposals)
}

// Contains reports whether a proposal with the given hash is held.
func (r *Register) Contains(hash solid.ProposalHash) bool {
	_, ok := r.proposals[hash]
	return ok
}

// Get returns the proposal with the given hash.
func (r *Register) Get(hash solid.ProposalHash) (*Proposal, bool) {
	p, ok := r.proposals[hash]
	return p, ok
}

// Insert adds p, replacing any proposal with the same hash.
func (r *Register) Insert(p *Proposal) {
	if old, ok := r.proposals[p.Hash()]; ok {
		r.index.Delete(old)
	}
	r.inserted++
	p.seq = r.inserted
	r.proposals[p.Hash()] = p
	r.index.ReplaceOrInsert(p)
}

// Remove drops the proposal with the given hash. The tip is never removed.
func (r *Register) Remove(hash solid.ProposalHash) {
	if hash == r.tip {
		return
	}
	if p, ok := r.proposals[hash]; ok {
		r.index.Delete(p)
		delete(r.proposals, hash)
	}
}

// TrimHeld removes the earliest inserted proposals above the tip that have not been
// validated, until at most limit remain. It returns the removed proposals.
func (r *Register) TrimHeld(limit uint64) []*Proposal {
	var held []*Proposal
	for _, p := range r.Pending() {
		if !p.Validated {
			held = append(held, p)
		}
	}
	if uint64(len(held)) <= limit {
		return nil
	}
	slices.SortFunc(held, func(a, b *Proposal) bool { return a.seq < b.seq })
	evicted := held[:uint64(len(held))-limit]
	for _, p := range evicted {
		r.Remove(p.Hash())
	}
	return evicted
}

// Pending returns the proposals above the confirmed height in (height, skips) order.
func (r *Register) Pending() []*Proposal {
	var pending []*Proposal
	r.index.AscendGreaterOrEqual(&Proposal{manifest: &solid.Manifest{ManifestContent: solid.ManifestContent{Height: r.Height() + 1}}}, func(p *Proposal) bool {
		pending = append(pending, p)
		return true
	})
	return pending
}

// ConfirmedFrom returns the confirmed proposals from the given height up to the tip,
// oldest first. Proposals that have been pruned are not included.
func (r *Register) ConfirmedFrom(height uint64) []*Proposal {
	var confirmed []*Proposal
	p := r.LastConfirmed()
	for p != nil && p.Height() >= height {
		confirmed = append(confirmed, p)
		if p.Height() == 0 {
			break
		}
		p = r.proposals[p.LastHash()]
	}
	for i, j := 0, len(confirmed)-1; i < j; i, j = i+1, j-1 {
		confirmed[i], confirmed[j] = confirmed[j], confirmed[i]
	}
	return confirmed
}

// NextPending returns the proposal at height confirmed+1+offset on the highest
// validated chain that extends the tip, or nil if there is none.
// Offset 0 is the proposal to vote for; offset 1 is the one that confirms it.
func (r *Register) NextPending(offset uint64) *Proposal {
	p := r.maxContinuous()
	if p == nil {
		return nil
	}
	target := r.Height() + 1 + offset
	if p.Height() < target {
		return nil
	}
	for p.Height() > target {
		parent, ok := r.proposals[p.LastHash()]
		if !ok {
			return nil
		}
		p = parent
	}
	return p
}

// maxContinuous returns the highest (height, skips) proposal whose whole chain
// down to the tip is held and validated.
func (r *Register) maxContinuous() *Proposal {
	height := r.Height()
	var found *Proposal
	r.index.Descend(func(p *Proposal) bool {
		if p.Height() <= height {
			return false
		}
		if r.isValidatedChain(p) {
			found = p
			return false
		}
		return true
	})
	return found
}

func (r *Register) isValidatedChain(p *Proposal) bool {
	height := r.Height()
	for p.Height() > height {
		if !p.Validated {
			return false
		}
		parent, ok := r.proposals[p.LastHash()]
		if !ok || parent.Height()+1 != p.Height() {
			return false
		}
		p = parent
	}
	return p.Hash() == r.tip
}

// IsDescendant reports whether the proposal head extends the proposal ancestor,
// following parent links one height at a time. A proposal is its own descendant.
func (r *Register) IsDescendant(ancestor, head solid.ProposalHash) bool {
	p, ok := r.proposals[head]
	if !ok {
		return false
	}
	for {
		if p.Hash() == ancestor {
			return true
		}
		parent, ok := r.proposals[p.LastHash()]
		if !ok || parent.Height()+1 != p.Height() {
			return false
		}
		p = parent
	}
}

// Descendants returns the proposals strictly above ancestor up to and including head,
// lowest first. It returns nil if head does not extend ancestor.
func (r *Register) Descendants(ancestor, head solid.ProposalHash) []*Proposal {
	var chain []*Proposal
	p, ok := r.proposals[head]
	if !ok {
		return nil
	}
	for p.Hash() != ancestor {
		chain = append(chain, p)
		parent, ok := r.proposals[p.LastHash()]
		if !ok || parent.Height()+1 != p.Height() {
			return nil
		}
		p = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Confirm moves the tip to hash and purges proposals that can no longer be confirmed.
func (r *Register) Confirm(hash solid.ProposalHash) {
	if !r.Contains(hash) {
		return
	}
	r.tip = hash
	r.purge()
}

// purge removes confirmed proposals older than the history capacity, proposals
// above the tip that do not extend it, and competing proposals at the tip height.
func (r *Register) purge() {
	height := r.Height()
	var stale []*Proposal
	r.index.Ascend(func(p *Proposal) bool {
		switch {
		case p.Height() < height:
			if height-p.Height() > r.capacity {
				stale = append(stale, p)
			}
		case p.Height() > height:
			if !r.IsDescendant(r.tip, p.Hash()) {
				stale = append(stale, p)
			}
		default:
			if p.Hash() != r.tip {
				stale = append(stale, p)
			}
		}
		return true
	})
	for _, p := range stale {
		r.index.Delete(p)
		delete(r.proposals, p.Hash())
	}
}

package solid

import "fmt"

// Event is emitted by the consensus core for the host to act on.
// It is one of ProposeEvent, CommitEvent, AcceptEvent, OutOfSyncEvent or DuplicateProposalEvent.
type Event interface {
	fmt.Stringer
	isEvent()
}

// ProposeEvent asks the host to build, sign and broadcast the next manifest.
// The local validator is its leader, and Accepts must be embedded in it.
type ProposeEvent struct {
	LastProposalHash ProposalHash
	Height           uint64
	Skips            uint64
	Accepts          []Accept
}

func (e ProposeEvent) String() string {
	return fmt.Sprintf("Propose{height: %d, skips: %d, last: %s, accepts: %d}", e.Height, e.Skips, e.LastProposalHash.Short(), len(e.Accepts))
}

// CommitEvent reports that Manifest is confirmed by its successor ConfirmedBy.
type CommitEvent struct {
	Manifest    *Manifest
	ConfirmedBy *Manifest
}

func (e CommitEvent) String() string {
	return fmt.Sprintf("Commit{height: %d, skips: %d}", e.Manifest.Height, e.Manifest.Skips)
}

// AcceptEvent asks the host to send Accept to its leader.
type AcceptEvent struct {
	Accept Accept
}

func (e AcceptEvent) String() string {
	return fmt.Sprintf("Accept{%s}", e.Accept)
}

// OutOfSyncEvent reports that the network is ahead of the local node,
// which must fetch the missing manifests out of band.
type OutOfSyncEvent struct {
	Height        uint64
	MaxSeenHeight uint64
}

func (e OutOfSyncEvent) String() string {
	return fmt.Sprintf("OutOfSync{height: %d, max seen: %d}", e.Height, e.MaxSeenHeight)
}

// DuplicateProposalEvent reports that a known manifest was received again.
type DuplicateProposalEvent struct {
	ProposalHash ProposalHash
}

func (e DuplicateProposalEvent) String() string {
	return fmt.Sprintf("DuplicateProposal{%s}", e.ProposalHash.Short())
}

func (ProposeEvent) isEvent()           {}
func (CommitEvent) isEvent()            {}
func (AcceptEvent) isEvent()            {}
func (OutOfSyncEvent) isEvent()         {}
func (DuplicateProposalEvent) isEvent() {}

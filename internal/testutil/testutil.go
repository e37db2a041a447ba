// Package testutil provides helpers for tests: an application, peers without
// real signatures, and builders for chains of manifests.
package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
	"github.com/relab/solid"
	"github.com/relab/solid/leaderrotation"
	"github.com/relab/solid/wire"
)

// Peer is an identity whose signatures are never checked.
type Peer []byte

var _ solid.Peer = Peer(nil)

// NewPeer returns the peer with the single byte id.
func NewPeer(id byte) Peer {
	return Peer{id}
}

// Bytes returns the identity bytes.
func (p Peer) Bytes() []byte { return p }

// U256 reads the identity as a little-endian integer.
func (p Peer) U256() *uint256.Int { return leaderrotation.FromLittleEndian(p) }

// Verify accepts every signature.
func (p Peer) Verify([]byte, [32]byte) bool { return true }

func (p Peer) String() string { return base58.Encode(p) }

// DecodePeer is a wire.PeerDecoder for Peer.
func DecodePeer(b []byte) (solid.Peer, error) {
	return Peer(append([]byte(nil), b...)), nil
}

// Signer signs everything with an empty signature.
type Signer struct {
	Self solid.Peer
}

var _ solid.Signer = (*Signer)(nil)

// NewSigner returns a signer for the peer with the single byte id.
func NewSigner(id byte) *Signer {
	return &Signer{Self: NewPeer(id)}
}

// Sign returns an empty signature.
func (s *Signer) Sign([32]byte) ([]byte, error) { return nil, nil }

// Peer returns the signer identity.
func (s *Signer) Peer() solid.Peer { return s.Self }

// App accepts every manifest unless one of the hooks says otherwise.
// Manifests are hashed with the wire encoding.
type App struct {
	StructureOK func(m *solid.ManifestContent) bool
	ContentsOK  func(m, last *solid.ManifestContent) bool
}

var _ solid.App = (*App)(nil)

// Genesis returns an empty state.
func (a *App) Genesis() []byte { return nil }

// ValidateStructure consults StructureOK if set.
func (a *App) ValidateStructure(m *solid.ManifestContent) bool {
	if a.StructureOK == nil {
		return true
	}
	return a.StructureOK(m)
}

// ValidateContents consults ContentsOK if set.
func (a *App) ValidateContents(m, last *solid.ManifestContent) bool {
	if a.ContentsOK == nil {
		return true
	}
	return a.ContentsOK(m, last)
}

// Hash hashes the wire encoding of m.
func (a *App) Hash(m *solid.ManifestContent) solid.ProposalHash {
	return wire.HashContent(m)
}

// Peers returns the peers with ids 1 through n.
func Peers(n int) []solid.Peer {
	peers := make([]solid.Peer, n)
	for i := range peers {
		peers[i] = NewPeer(byte(i + 1))
	}
	return peers
}

// AcceptFor returns an unsigned accept for m at the given skips from voter to leader.
func AcceptFor(app solid.App, m *solid.Manifest, skips uint64, leader, from solid.Peer) solid.Accept {
	return solid.Accept{
		LeaderID: leader,
		Proposal: m.Header(app),
		Skips:    skips,
		From:     from,
	}
}

// Next returns the manifest that the scheduled leader for skips would build on parent,
// embedding accepts from voters. The state payload is the height in decimal.
func Next(app solid.App, parent *solid.Manifest, skips uint64, voters ...solid.Peer) *solid.Manifest {
	return NextWithLeader(app, parent, skips, parent.LeaderForSkip(skips), voters...)
}

// NextWithLeader is like Next, but the manifest claims to come from leader.
// The accepts are addressed to leader as well.
func NextWithLeader(app solid.App, parent *solid.Manifest, skips uint64, leader solid.Peer, voters ...solid.Peer) *solid.Manifest {
	accepts := make([]solid.Accept, len(voters))
	for i, v := range voters {
		accepts[i] = AcceptFor(app, parent, skips, leader, v)
	}
	return &solid.Manifest{
		ManifestContent: solid.ManifestContent{
			LastProposalHash: app.Hash(&parent.ManifestContent),
			Skips:            skips,
			Height:           parent.Height + 1,
			LeaderID:         leader,
			State:            []byte(fmt.Sprint(parent.Height + 1)),
			Validators:       parent.Validators,
			Accepts:          accepts,
		},
	}
}

// Chain returns n manifests that follow genesis, each embedding accepts from all validators at skip 0.
func Chain(app solid.App, genesis *solid.Manifest, n int) []*solid.Manifest {
	chain := make([]*solid.Manifest, 0, n)
	parent := genesis
	for i := 0; i < n; i++ {
		m := Next(app, parent, 0, genesis.Validators...)
		chain = append(chain, m)
		parent = m
	}
	return chain
}

// Config returns a configuration suited for tests: no proposal pacing and long timeouts.
func Config() solid.Config {
	cfg := solid.DefaultConfig()
	cfg.MinProposalDuration = 0
	return cfg
}

// Clock is a time source that only moves when advanced.
type Clock struct {
	mut sync.Mutex
	now time.Time
}

// NewClock returns a clock set to a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Unix(1_700_000_000, 0)}
}

// Now returns the current time of the clock.
func (c *Clock) Now() time.Time {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.now = c.now.Add(d)
}

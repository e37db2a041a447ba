// Package solid defines the core types and capability interfaces of the solid consensus protocol.
//
// A validator set agrees on a chain of manifests. Each manifest is proposed by the
// validator that the leader schedule designates for its (height, skips) slot, and
// carries the accepts that justify its predecessor:
//
//	      accepts for m(h-1)          accepts for m(h)
//	m(h-1) <------------------ m(h) <------------------ m(h+1)
//	   ^                                                   |
//	   +--------------- Commit{m(h-1), by m(h)} -----------+ (when m(h+1) arrives, m(h) is confirmed)
//
// The host application supplies the state payload and its validation through App,
// identities through Peer, and signatures through Signer. The core never sends
// messages itself; it emits events that the host acts on.
package solid

import (
	"bytes"
	"fmt"

	"github.com/holiman/uint256"
)

//go:generate mockgen -destination=internal/mocks/app_mock.go -package=mocks . App

// App is the host application whose state transitions are ordered by consensus.
type App interface {
	// Genesis returns the state payload of the genesis manifest.
	Genesis() []byte
	// ValidateStructure checks the manifest without any chain context.
	ValidateStructure(m *ManifestContent) bool
	// ValidateContents checks the manifest against its confirmed predecessor.
	ValidateContents(m, lastConfirmed *ManifestContent) bool
	// Hash returns the content address of the manifest. It must be deterministic.
	Hash(m *ManifestContent) ProposalHash
}

//go:generate mockgen -destination=internal/mocks/peer_mock.go -package=mocks . Peer

// Peer is the identity of a validator.
type Peer interface {
	fmt.Stringer
	// Bytes returns the canonical byte form of the identity.
	Bytes() []byte
	// U256 returns the identity as an integer for the leader schedule.
	U256() *uint256.Int
	// Verify checks a signature made by this peer over digest.
	Verify(signature []byte, digest [32]byte) bool
}

//go:generate mockgen -destination=internal/mocks/signer_mock.go -package=mocks . Signer

// Signer signs digests on behalf of the local validator.
type Signer interface {
	Sign(digest [32]byte) ([]byte, error)
	Peer() Peer
}

// SamePeer reports whether a and b are the same identity.
func SamePeer(a, b Peer) bool {
	if a == nil || b == nil {
		return a == b
	}
	return bytes.Equal(a.Bytes(), b.Bytes())
}

// PeerKey returns a comparable key for p, suitable for use in maps.
func PeerKey(p Peer) string {
	if p == nil {
		return ""
	}
	return string(p.Bytes())
}

// ContainsPeer reports whether p is one of peers.
func ContainsPeer(peers []Peer, p Peer) bool {
	for _, q := range peers {
		if SamePeer(p, q) {
			return true
		}
	}
	return false
}

func peerString(p Peer) string {
	if p == nil {
		return "<nil>"
	}
	return p.String()
}

// Package demo runs a network of validators in one process. The validators
// agree on a counter that every manifest increments by one, and exchange
// manifests and accepts over an in-memory bus.
package demo

import (
	"encoding/binary"

	"github.com/relab/solid"
	"github.com/relab/solid/wire"
)

// CounterApp is an application whose state is a counter.
type CounterApp struct{}

var _ solid.App = CounterApp{}

// Genesis returns a counter of zero.
func (CounterApp) Genesis() []byte {
	return EncodeCounter(0)
}

// ValidateStructure checks that the state holds a counter.
func (CounterApp) ValidateStructure(m *solid.ManifestContent) bool {
	return len(m.State) == 8
}

// ValidateContents checks that the counter is one more than in the predecessor.
func (CounterApp) ValidateContents(m, last *solid.ManifestContent) bool {
	return DecodeCounter(m.State) == DecodeCounter(last.State)+1
}

// Hash hashes the wire encoding of m.
func (CounterApp) Hash(m *solid.ManifestContent) solid.ProposalHash {
	return wire.HashContent(m)
}

// EncodeCounter returns the state holding n.
func EncodeCounter(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// DecodeCounter returns the counter held in state, or zero if state is malformed.
func DecodeCounter(state []byte) uint64 {
	if len(state) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(state)
}

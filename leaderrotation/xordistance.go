// Package leaderrotation implements the XOR-distance leader schedule.
//
// For a given (height, skips) pair, every validator is assigned a distance to a
// seed derived from sha256(height || skips). Validators are ordered by that
// distance, and the leader for skip s is the validator at position s modulo the
// number of validators. The schedule is deterministic and can be re-derived by
// anyone holding the validator set. It does not hide the next leaders: anyone
// can compute who leads the following skips of a height.
package leaderrotation

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"
)

// Identity is implemented by anything that can be placed in the schedule.
type Identity interface {
	U256() *uint256.Int
}

// OrderingSeed returns the seed used to order validators at the given height and skip count.
// The seed is the sha256 digest of the big-endian height and skips, read as a little-endian integer.
func OrderingSeed(height, skips uint64) *uint256.Int {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], height)
	binary.BigEndian.PutUint64(buf[8:], skips)
	sum := sha256.Sum256(buf[:])
	return FromLittleEndian(sum[:])
}

// FromLittleEndian interprets b as a little-endian unsigned integer.
// Only the first 32 bytes are used.
func FromLittleEndian(b []byte) *uint256.Int {
	if len(b) > 32 {
		b = b[:32]
	}
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	return new(uint256.Int).SetBytes(be)
}

// Distance returns the XOR distance between id and seed.
func Distance(id Identity, seed *uint256.Int) *uint256.Int {
	return new(uint256.Int).Xor(id.U256(), seed)
}

// Order returns a copy of validators sorted by ascending distance to the ordering seed of (height, skips).
func Order[P Identity](height, skips uint64, validators []P) []P {
	seed := OrderingSeed(height, skips)

	type entry struct {
		id       P
		distance *uint256.Int
	}
	entries := make([]entry, len(validators))
	for i, v := range validators {
		entries[i] = entry{id: v, distance: Distance(v, seed)}
	}
	slices.SortFunc(entries, func(a, b entry) bool {
		return a.distance.Lt(b.distance)
	})

	ordered := make([]P, len(entries))
	for i, e := range entries {
		ordered[i] = e.id
	}
	return ordered
}

// LeaderForSkip returns the leader for the given skip count from an ordered validator list.
// It panics if ordered is empty.
func LeaderForSkip[P any](skip uint64, ordered []P) P {
	return ordered[skip%uint64(len(ordered))]
}

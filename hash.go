package solid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ProposalHash is the content address of a manifest.
type ProposalHash [32]byte

// GenesisHash returns the all-zero hash that the genesis manifest points back to.
func GenesisHash() ProposalHash {
	return ProposalHash{}
}

// HashBytes returns the sha256 digest of b as a ProposalHash.
func HashBytes(b []byte) ProposalHash {
	return sha256.Sum256(b)
}

// IsGenesis reports whether h is the genesis sentinel.
func (h ProposalHash) IsGenesis() bool {
	return h == ProposalHash{}
}

func (h ProposalHash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 4 bytes of the hash in hex, for logging.
func (h ProposalHash) Short() string {
	return hex.EncodeToString(h[:4])
}

// ProposalHeader identifies a manifest without carrying its payload.
type ProposalHeader struct {
	Hash   ProposalHash
	Height uint64
	Skips  uint64
}

func (h ProposalHeader) String() string {
	return fmt.Sprintf("%d.%d (%s)", h.Height, h.Skips, h.Hash.Short())
}

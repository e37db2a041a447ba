package solid

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/crypto/sha3"
)

// MaxSkips is the highest skip count that is voted with. Messages beyond it are
// rejected, and skipping stops at it.
const MaxSkips uint64 = math.MaxUint32

// Accept is a validator's vote for a manifest, addressed to the validator
// expected to propose the next one.
type Accept struct {
	LeaderID  Peer
	Proposal  ProposalHeader
	Skips     uint64
	From      Peer
	Signature []byte
}

// AcceptDigest returns the digest signed by the voter of an accept for the given header and skips.
func AcceptDigest(proposal ProposalHeader, skips uint64) [32]byte {
	var skipBytes [8]byte
	binary.BigEndian.PutUint64(skipBytes[:], skips)

	hasher := sha3.NewLegacyKeccak256()
	_, _ = hasher.Write(proposal.Hash[:])
	_, _ = hasher.Write(skipBytes[:])

	var digest [32]byte
	hasher.Sum(digest[:0])
	return digest
}

// NewAccept creates and signs an accept for proposal at the given skips.
func NewAccept(signer Signer, proposal ProposalHeader, skips uint64, leader Peer) (Accept, error) {
	sig, err := signer.Sign(AcceptDigest(proposal, skips))
	if err != nil {
		return Accept{}, fmt.Errorf("failed to sign accept: %w", err)
	}
	return Accept{
		LeaderID:  leader,
		Proposal:  proposal,
		Skips:     skips,
		From:      signer.Peer(),
		Signature: sig,
	}, nil
}

// VerifySignature checks that the accept was signed by its voter.
func (a *Accept) VerifySignature() error {
	if a.From == nil || !a.From.Verify(a.Signature, AcceptDigest(a.Proposal, a.Skips)) {
		return ErrInvalidAcceptSignature
	}
	return nil
}

func (a Accept) String() string {
	return fmt.Sprintf("accept %s skips=%d from=%s to=%s", a.Proposal, a.Skips, peerString(a.From), peerString(a.LeaderID))
}

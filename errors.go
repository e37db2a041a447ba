package solid

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAcceptSignature is returned when an accept is not signed by its voter.
	ErrInvalidAcceptSignature = errors.New("invalid signature for accept")

	// ErrInvalidAcceptProposalHash is returned when an accept does not reference the expected proposal.
	ErrInvalidAcceptProposalHash = errors.New("invalid accept for proposal")

	// ErrInvalidAcceptValidator is returned when an accept comes from a peer outside the validator set.
	ErrInvalidAcceptValidator = errors.New("invalid validator accept in proposal")

	// ErrInvalidProposalLeader is returned when a manifest is not signed by the scheduled leader.
	ErrInvalidProposalLeader = errors.New("invalid proposal leader")

	// ErrInvalidAcceptLeader is returned when an accept is addressed to the wrong leader.
	// The returned error is an *InvalidAcceptLeaderError that matches this value.
	ErrInvalidAcceptLeader = errors.New("invalid accept leader")

	// ErrInsufficientAcceptsForProposal is returned when a manifest embeds fewer accepts than a quorum.
	ErrInsufficientAcceptsForProposal = errors.New("insufficient accepts for proposal")

	// ErrInvalidProposalSignature is returned when the leader signature of a manifest does not verify.
	ErrInvalidProposalSignature = errors.New("invalid signature for proposal")

	// ErrProposalAlreadyExists is returned for a manifest that is already known.
	// The returned error is a *ProposalAlreadyExistsError that matches this value.
	ErrProposalAlreadyExists = errors.New("proposal already exists")

	// ErrProposalHeightTooLow is returned for a manifest at or below the confirmed height.
	ErrProposalHeightTooLow = errors.New("proposal height too low")

	// ErrProposalPeerThresholdNotMet is returned when the distinct voters of a manifest's accepts
	// do not make a quorum of its predecessor's validators.
	ErrProposalPeerThresholdNotMet = errors.New("proposal peer threshold not met")

	// ErrProposalInvalidDecendent is returned when a manifest does not extend its predecessor.
	ErrProposalInvalidDecendent = errors.New("confirmed proposal is not a decendent")

	// ErrProposalInvalidAppStructure is returned when the application rejects a manifest's structure.
	ErrProposalInvalidAppStructure = errors.New("proposal invalid structure")

	// ErrProposalInvalidAppContent is returned when the application rejects a manifest's contents.
	ErrProposalInvalidAppContent = errors.New("proposal invalid content")

	// ErrSkipsOutOfRange is returned for an accept or manifest whose skip count exceeds MaxSkips.
	ErrSkipsOutOfRange = errors.New("skips out of range")
)

// InvalidAcceptLeaderError reports the leader an accept should have been addressed to.
type InvalidAcceptLeaderError struct {
	Expected string
	Got      string
}

func (e *InvalidAcceptLeaderError) Error() string {
	return fmt.Sprintf("invalid accept leader, expected: %s, got: %s", e.Expected, e.Got)
}

// Is makes errors.Is(err, ErrInvalidAcceptLeader) hold.
func (e *InvalidAcceptLeaderError) Is(target error) bool {
	return target == ErrInvalidAcceptLeader
}

// NewInvalidAcceptLeaderError returns an *InvalidAcceptLeaderError for the given peers.
func NewInvalidAcceptLeaderError(expected, got Peer) error {
	return &InvalidAcceptLeaderError{Expected: peerString(expected), Got: peerString(got)}
}

// ProposalAlreadyExistsError carries the hash of the duplicate manifest.
type ProposalAlreadyExistsError struct {
	Hash ProposalHash
}

func (e *ProposalAlreadyExistsError) Error() string {
	return fmt.Sprintf("proposal already exists: %s", e.Hash)
}

// Is makes errors.Is(err, ErrProposalAlreadyExists) hold.
func (e *ProposalAlreadyExistsError) Is(target error) bool {
	return target == ErrProposalAlreadyExists
}

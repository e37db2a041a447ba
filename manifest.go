package solid

import (
	"fmt"

	"github.com/relab/solid/leaderrotation"
)

// ManifestContent is the signed body of a proposal.
type ManifestContent struct {
	LastProposalHash ProposalHash
	Skips            uint64
	Height           uint64
	LeaderID         Peer
	State            []byte
	Validators       []Peer
	// Accepts justify the manifest at LastProposalHash.
	Accepts []Accept
}

// Manifest is a proposal signed by its leader.
type Manifest struct {
	ManifestContent
	Signature []byte
}

// GenesisManifest returns the genesis manifest for the given validators.
// The first validator is recorded as its leader.
func GenesisManifest(app App, validators []Peer) *Manifest {
	var leader Peer
	if len(validators) > 0 {
		leader = validators[0]
	}
	return &Manifest{
		ManifestContent: ManifestContent{
			LastProposalHash: GenesisHash(),
			LeaderID:         leader,
			State:            app.Genesis(),
			Validators:       validators,
		},
	}
}

// NewManifest signs content with signer and returns the resulting manifest.
func NewManifest(app App, signer Signer, content ManifestContent) (*Manifest, error) {
	sig, err := content.Sign(app, signer)
	if err != nil {
		return nil, err
	}
	return &Manifest{ManifestContent: content, Signature: sig}, nil
}

// Sign returns the leader signature over the content hash.
func (c *ManifestContent) Sign(app App, signer Signer) ([]byte, error) {
	hash := app.Hash(c)
	sig, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign manifest %s: %w", hash.Short(), err)
	}
	return sig, nil
}

// OrderedValidators returns the validators ordered by the leader schedule of this manifest's slot.
func (c *ManifestContent) OrderedValidators() []Peer {
	return leaderrotation.Order(c.Height, c.Skips, c.Validators)
}

// LeaderForSkip returns the validator that may propose the successor of this manifest at the given skips.
// It returns nil if there are no validators.
func (c *ManifestContent) LeaderForSkip(skips uint64) Peer {
	if len(c.Validators) == 0 {
		return nil
	}
	return leaderrotation.LeaderForSkip(skips, c.OrderedValidators())
}

// Verify checks the leader signature of the manifest.
func (m *Manifest) Verify(app App) bool {
	if m.LeaderID == nil {
		return false
	}
	return m.LeaderID.Verify(m.Signature, app.Hash(&m.ManifestContent))
}

// Header returns the header identifying m.
func (m *Manifest) Header(app App) ProposalHeader {
	return ProposalHeader{
		Hash:   app.Hash(&m.ManifestContent),
		Height: m.Height,
		Skips:  m.Skips,
	}
}

func (m *Manifest) String() string {
	return fmt.Sprintf("manifest %d.%d leader=%s accepts=%d", m.Height, m.Skips, peerString(m.LeaderID), len(m.Accepts))
}

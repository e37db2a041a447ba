// Package wire provides a deterministic msgpack encoding of manifests and accepts.
//
// The consensus core does not prescribe a wire format. Hosts may use this
// encoding both to hash manifest contents and to move messages between nodes.
package wire

import (
	"crypto/sha256"
	"fmt"

	"github.com/hashicorp/go-msgpack/codec"
	"github.com/relab/solid"
)

var handle = &codec.MsgpackHandle{}

// PeerDecoder reconstructs a peer identity from its byte form.
type PeerDecoder func(b []byte) (solid.Peer, error)

type header struct {
	Hash   []byte
	Height uint64
	Skips  uint64
}

type accept struct {
	Leader    []byte
	Proposal  header
	Skips     uint64
	From      []byte
	Signature []byte
}

type content struct {
	LastProposalHash []byte
	Skips            uint64
	Height           uint64
	Leader           []byte
	State            []byte
	Validators       [][]byte
	Accepts          []accept
}

type manifest struct {
	Content   content
	Signature []byte
}

func peerBytes(p solid.Peer) []byte {
	if p == nil {
		return nil
	}
	return p.Bytes()
}

func fromAccept(a *solid.Accept) accept {
	return accept{
		Leader: peerBytes(a.LeaderID),
		Proposal: header{
			Hash:   a.Proposal.Hash[:],
			Height: a.Proposal.Height,
			Skips:  a.Proposal.Skips,
		},
		Skips:     a.Skips,
		From:      peerBytes(a.From),
		Signature: a.Signature,
	}
}

func fromContent(c *solid.ManifestContent) content {
	validators := make([][]byte, len(c.Validators))
	for i, v := range c.Validators {
		validators[i] = peerBytes(v)
	}
	accepts := make([]accept, len(c.Accepts))
	for i := range c.Accepts {
		accepts[i] = fromAccept(&c.Accepts[i])
	}
	return content{
		LastProposalHash: c.LastProposalHash[:],
		Skips:            c.Skips,
		Height:           c.Height,
		Leader:           peerBytes(c.LeaderID),
		State:            c.State,
		Validators:       validators,
		Accepts:          accepts,
	}
}

func encode(v interface{}) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, handle).Encode(v); err != nil {
		return nil, err
	}
	return b, nil
}

func decode(b []byte, v interface{}) error {
	return codec.NewDecoderBytes(b, handle).Decode(v)
}

// EncodeContent returns the canonical encoding of c.
func EncodeContent(c *solid.ManifestContent) ([]byte, error) {
	return encode(fromContent(c))
}

// HashContent returns the sha256 digest of the canonical encoding of c.
// It panics if c cannot be encoded, which only happens for invalid peers.
func HashContent(c *solid.ManifestContent) solid.ProposalHash {
	b, err := EncodeContent(c)
	if err != nil {
		panic(fmt.Sprintf("wire: cannot encode manifest content: %v", err))
	}
	return sha256.Sum256(b)
}

// EncodeManifest encodes a signed manifest.
func EncodeManifest(m *solid.Manifest) ([]byte, error) {
	return encode(manifest{Content: fromContent(&m.ManifestContent), Signature: m.Signature})
}

// EncodeAccept encodes an accept.
func EncodeAccept(a *solid.Accept) ([]byte, error) {
	return encode(fromAccept(a))
}

// Decoder decodes messages produced by EncodeManifest and EncodeAccept.
type Decoder struct {
	Peer PeerDecoder
}

func (d Decoder) peer(b []byte) (solid.Peer, error) {
	if b == nil {
		return nil, nil
	}
	return d.Peer(b)
}

func toHash(b []byte) (h solid.ProposalHash, err error) {
	if len(b) != len(h) {
		return h, fmt.Errorf("invalid hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (d Decoder) toAccept(w accept) (a solid.Accept, err error) {
	if a.LeaderID, err = d.peer(w.Leader); err != nil {
		return a, err
	}
	if a.From, err = d.peer(w.From); err != nil {
		return a, err
	}
	if a.Proposal.Hash, err = toHash(w.Proposal.Hash); err != nil {
		return a, err
	}
	a.Proposal.Height = w.Proposal.Height
	a.Proposal.Skips = w.Proposal.Skips
	a.Skips = w.Skips
	a.Signature = w.Signature
	return a, nil
}

// DecodeAccept decodes an accept.
func (d Decoder) DecodeAccept(b []byte) (solid.Accept, error) {
	var w accept
	if err := decode(b, &w); err != nil {
		return solid.Accept{}, fmt.Errorf("failed to decode accept: %w", err)
	}
	return d.toAccept(w)
}

// DecodeManifest decodes a signed manifest.
func (d Decoder) DecodeManifest(b []byte) (*solid.Manifest, error) {
	var w manifest
	if err := decode(b, &w); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	var (
		m   solid.Manifest
		err error
	)
	c := &m.ManifestContent
	if c.LastProposalHash, err = toHash(w.Content.LastProposalHash); err != nil {
		return nil, err
	}
	if c.LeaderID, err = d.peer(w.Content.Leader); err != nil {
		return nil, err
	}
	c.Skips = w.Content.Skips
	c.Height = w.Content.Height
	c.State = w.Content.State
	for _, v := range w.Content.Validators {
		p, err := d.peer(v)
		if err != nil {
			return nil, err
		}
		c.Validators = append(c.Validators, p)
	}
	for _, wa := range w.Content.Accepts {
		a, err := d.toAccept(wa)
		if err != nil {
			return nil, err
		}
		c.Accepts = append(c.Accepts, a)
	}
	m.Signature = w.Signature
	return &m, nil
}

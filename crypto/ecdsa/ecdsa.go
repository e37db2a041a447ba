// Package ecdsa provides validator identities and signers for solid using Go's 'crypto/ecdsa' package.
//
// A peer is identified by its compressed P-256 public key. Signatures are ASN.1 encoded.
package ecdsa

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
	"github.com/relab/solid"
	"github.com/relab/solid/leaderrotation"
)

// ErrInvalidPublicKey is returned when bytes do not hold a compressed P-256 point.
var ErrInvalidPublicKey = errors.New("invalid compressed P-256 public key")

// Peer is a validator identity backed by an ECDSA P-256 public key.
type Peer struct {
	key *ecdsa.PublicKey
	id  []byte

	// signature/digest pairs that have already been verified; may be nil
	verified *lru.Cache
}

var _ solid.Peer = (*Peer)(nil)

// NewPeer returns the identity of key.
func NewPeer(key *ecdsa.PublicKey) *Peer {
	return &Peer{
		key: key,
		id:  elliptic.MarshalCompressed(key.Curve, key.X, key.Y),
	}
}

// NewCachedPeer returns the identity of key that remembers up to capacity verified signatures.
// Verifying the same accept repeatedly, as happens when it is embedded in a manifest
// after being received on its own, then skips the curve arithmetic.
func NewCachedPeer(key *ecdsa.PublicKey, capacity int) (*Peer, error) {
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create signature cache: %w", err)
	}
	p := NewPeer(key)
	p.verified = cache
	return p, nil
}

// DecodePeer reconstructs a peer from its compressed public key.
func DecodePeer(b []byte) (solid.Peer, error) {
	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), b)
	if x == nil {
		return nil, ErrInvalidPublicKey
	}
	return NewPeer(&ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}), nil
}

// PublicKey returns the public key of the peer.
func (p *Peer) PublicKey() *ecdsa.PublicKey {
	return p.key
}

// Bytes returns the compressed public key.
func (p *Peer) Bytes() []byte {
	return p.id
}

// U256 reads the x coordinate of the public key as a little-endian integer.
func (p *Peer) U256() *uint256.Int {
	return leaderrotation.FromLittleEndian(p.id[1:])
}

// Verify checks an ASN.1 encoded signature over digest.
func (p *Peer) Verify(signature []byte, digest [32]byte) bool {
	if p.verified == nil {
		return ecdsa.VerifyASN1(p.key, digest[:], signature)
	}
	k := string(signature) + string(digest[:])
	if p.verified.Contains(k) {
		return true
	}
	if !ecdsa.VerifyASN1(p.key, digest[:], signature) {
		return false
	}
	p.verified.Add(k, struct{}{})
	return true
}

func (p *Peer) String() string {
	return base58.Encode(p.id)
}

// Signer signs digests with an ECDSA private key.
type Signer struct {
	key  *ecdsa.PrivateKey
	peer *Peer
}

var _ solid.Signer = (*Signer)(nil)

// NewSigner returns a signer for key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, peer: NewPeer(&key.PublicKey)}
}

// Sign returns an ASN.1 encoded signature over digest.
func (s *Signer) Sign(digest [32]byte) ([]byte, error) {
	sig, err := ecdsa.SignASN1(rand.Reader, s.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("ecdsa: failed to sign: %w", err)
	}
	return sig, nil
}

// Peer returns the identity of the signer.
func (s *Signer) Peer() solid.Peer {
	return s.peer
}

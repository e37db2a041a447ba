// Package bls12 provides validator identities and signers for solid using curve BLS12-381.
//
// A peer is identified by its compressed G1 public key. Signatures are compressed
// G2 points over the digest hashed to the curve.
package bls12

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	bls12 "github.com/kilic/bls12-381"
	"github.com/mr-tron/base58"
	"github.com/relab/solid"
	"github.com/relab/solid/leaderrotation"
)

var domain = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

// the order r of G1
var curveOrder, _ = new(big.Int).SetString("73eda753299d7d483339d80809a1d80553bda402fffe5bfeffffffff00000001", 16)

var (
	// ErrInvalidPublicKey is returned when bytes do not hold a compressed G1 point of the right subgroup.
	ErrInvalidPublicKey = errors.New("invalid compressed BLS12-381 public key")
	// ErrInvalidPrivateKey is returned when bytes do not hold a scalar in [1, r).
	ErrInvalidPrivateKey = errors.New("invalid BLS12-381 private key")
)

// PrivateKey is a bls12-381 private key.
type PrivateKey struct {
	p *big.Int
}

// GeneratePrivateKey generates a new private key.
func GeneratePrivateKey() (*PrivateKey, error) {
	for {
		// uniformly random in [0, r); zero has no usable public key
		k, err := rand.Int(rand.Reader, curveOrder)
		if err != nil {
			return nil, fmt.Errorf("bls12: failed to generate private key: %w", err)
		}
		if k.Sign() > 0 {
			return &PrivateKey{p: k}, nil
		}
	}
}

// PrivateKeyFromBytes unmarshals a big-endian private key.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	k := new(big.Int).SetBytes(b)
	if k.Sign() <= 0 || k.Cmp(curveOrder) >= 0 {
		return nil, ErrInvalidPrivateKey
	}
	return &PrivateKey{p: k}, nil
}

// Bytes marshals the private key as 32 big-endian bytes.
func (priv *PrivateKey) Bytes() []byte {
	return priv.p.FillBytes(make([]byte, 32))
}

// Public returns the public key associated with this private key.
func (priv *PrivateKey) Public() *PublicKey {
	p := &bls12.PointG1{}
	// the public key is the secret key multiplied by the generator G1
	return &PublicKey{p: bls12.NewG1().MulScalarBig(p, &bls12.G1One, priv.p)}
}

// Equal reports whether priv and other hold the same scalar.
func (priv *PrivateKey) Equal(other *PrivateKey) bool {
	return priv.p.Cmp(other.p) == 0
}

// PublicKey is a bls12-381 public key.
type PublicKey struct {
	p *bls12.PointG1
}

// PublicKeyFromBytes unmarshals a compressed public key.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	g1 := bls12.NewG1()
	p, err := g1.FromCompressed(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if g1.IsZero(p) || !g1.InCorrectSubgroup(p) {
		return nil, ErrInvalidPublicKey
	}
	return &PublicKey{p: p}, nil
}

// Bytes marshals the public key in compressed form.
func (pub *PublicKey) Bytes() []byte {
	return bls12.NewG1().ToCompressed(pub.p)
}

// Equal reports whether pub and other are the same point.
func (pub *PublicKey) Equal(other *PublicKey) bool {
	return bls12.NewG1().Equal(pub.p, other.p)
}

// Peer is a validator identity backed by a BLS12-381 public key.
type Peer struct {
	key *PublicKey
	id  []byte
}

var _ solid.Peer = (*Peer)(nil)

// NewPeer returns the identity of key.
func NewPeer(key *PublicKey) *Peer {
	return &Peer{key: key, id: key.Bytes()}
}

// DecodePeer reconstructs a peer from its compressed public key.
func DecodePeer(b []byte) (solid.Peer, error) {
	key, err := PublicKeyFromBytes(b)
	if err != nil {
		return nil, err
	}
	return NewPeer(key), nil
}

// PublicKey returns the public key of the peer.
func (p *Peer) PublicKey() *PublicKey {
	return p.key
}

// Bytes returns the compressed public key.
func (p *Peer) Bytes() []byte {
	return p.id
}

// U256 reads the compressed key as a little-endian integer, without the flag byte.
func (p *Peer) U256() *uint256.Int {
	return leaderrotation.FromLittleEndian(p.id[1:])
}

// Verify checks a compressed G2 signature over digest with a pairing.
func (p *Peer) Verify(signature []byte, digest [32]byte) bool {
	g2 := bls12.NewG2()
	sig, err := g2.FromCompressed(signature)
	if err != nil || !g2.InCorrectSubgroup(sig) {
		return false
	}
	h, err := g2.HashToCurve(digest[:], domain)
	if err != nil {
		return false
	}
	engine := bls12.NewEngine()
	engine.AddPairInv(&bls12.G1One, sig)
	engine.AddPair(p.key.p, h)
	return engine.Result().IsOne()
}

func (p *Peer) String() string {
	return base58.Encode(p.id)
}

// Signer signs digests with a BLS12-381 private key.
type Signer struct {
	key  *PrivateKey
	peer *Peer
}

var _ solid.Signer = (*Signer)(nil)

// NewSigner returns a signer for key.
func NewSigner(key *PrivateKey) *Signer {
	return &Signer{key: key, peer: NewPeer(key.Public())}
}

// Sign returns the compressed signature over digest.
func (s *Signer) Sign(digest [32]byte) ([]byte, error) {
	g2 := bls12.NewG2()
	p, err := g2.HashToCurve(digest[:], domain)
	if err != nil {
		return nil, fmt.Errorf("bls12: hash to curve failed: %w", err)
	}
	g2.MulScalarBig(p, p, s.key.p)
	return g2.ToCompressed(p), nil
}

// Peer returns the identity of the signer.
func (s *Signer) Peer() solid.Peer {
	return s.peer
}

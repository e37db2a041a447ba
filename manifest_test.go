package solid_test

import (
	"errors"
	"testing"

	"github.com/relab/solid"
	"github.com/relab/solid/crypto/ecdsa"
	"github.com/relab/solid/internal/testutil"
	"github.com/stretchr/testify/require"
)

func newSigner(t *testing.T) *ecdsa.Signer {
	t.Helper()
	key, err := ecdsa.GeneratePrivateKey()
	require.NoError(t, err)
	return ecdsa.NewSigner(key)
}

func TestGenesisManifest(t *testing.T) {
	peers := testutil.Peers(4)
	g := solid.GenesisManifest(&testutil.App{}, peers)

	require.Equal(t, uint64(0), g.Height)
	require.Equal(t, uint64(0), g.Skips)
	require.True(t, g.LastProposalHash.IsGenesis())
	require.True(t, solid.SamePeer(peers[0], g.LeaderID))
	require.Empty(t, g.Accepts)
	// the leader schedule of the genesis slot for peers 1 to 4
	for skips, want := range []byte{4, 3, 2, 1, 4} {
		require.True(t, solid.SamePeer(testutil.NewPeer(want), g.LeaderForSkip(uint64(skips))), "skips=%d", skips)
	}
}

func TestLeaderForSkipWithoutValidators(t *testing.T) {
	g := solid.GenesisManifest(&testutil.App{}, nil)
	require.Nil(t, g.LeaderID)
	require.Nil(t, g.LeaderForSkip(0))
}

func TestManifestSignature(t *testing.T) {
	app := &testutil.App{}
	signer := newSigner(t)
	genesis := solid.GenesisManifest(app, []solid.Peer{signer.Peer()})

	content := testutil.Next(app, genesis, 0, signer.Peer()).ManifestContent
	m, err := solid.NewManifest(app, signer, content)
	require.NoError(t, err)
	require.True(t, m.Verify(app))

	forged := *m
	forged.State = []byte("forged")
	require.False(t, forged.Verify(app))

	anonymous := *m
	anonymous.LeaderID = nil
	require.False(t, anonymous.Verify(app))
}

func TestManifestHeader(t *testing.T) {
	app := &testutil.App{}
	genesis := solid.GenesisManifest(app, testutil.Peers(4))
	m := testutil.Next(app, genesis, 2)

	h := m.Header(app)
	require.Equal(t, app.Hash(&m.ManifestContent), h.Hash)
	require.Equal(t, uint64(1), h.Height)
	require.Equal(t, uint64(2), h.Skips)
}

func TestAcceptSignature(t *testing.T) {
	app := &testutil.App{}
	voter := newSigner(t)
	genesis := solid.GenesisManifest(app, []solid.Peer{voter.Peer()})
	header := genesis.Header(app)

	a, err := solid.NewAccept(voter, header, 1, voter.Peer())
	require.NoError(t, err)
	require.NoError(t, a.VerifySignature())

	// the skips are covered by the signature
	a.Skips = 2
	require.ErrorIs(t, a.VerifySignature(), solid.ErrInvalidAcceptSignature)

	a.Skips = 1
	a.From = newSigner(t).Peer()
	require.ErrorIs(t, a.VerifySignature(), solid.ErrInvalidAcceptSignature)

	a.From = nil
	require.ErrorIs(t, a.VerifySignature(), solid.ErrInvalidAcceptSignature)
}

func TestAcceptDigest(t *testing.T) {
	header := solid.ProposalHeader{Hash: solid.HashBytes([]byte("manifest")), Height: 3}
	require.Equal(t, solid.AcceptDigest(header, 0), solid.AcceptDigest(header, 0))
	require.NotEqual(t, solid.AcceptDigest(header, 0), solid.AcceptDigest(header, 1))

	other := header
	other.Hash = solid.HashBytes([]byte("other"))
	require.NotEqual(t, solid.AcceptDigest(header, 0), solid.AcceptDigest(other, 0))
}

func TestSigningFailure(t *testing.T) {
	errSign := errors.New("no key")
	_, err := solid.NewAccept(failingSigner{errSign}, solid.ProposalHeader{}, 0, nil)
	require.ErrorIs(t, err, errSign)

	app := &testutil.App{}
	_, err = solid.NewManifest(app, failingSigner{errSign}, solid.ManifestContent{})
	require.ErrorIs(t, err, errSign)
}

type failingSigner struct{ err error }

func (s failingSigner) Sign([32]byte) ([]byte, error) { return nil, s.err }
func (s failingSigner) Peer() solid.Peer               { return testutil.NewPeer(1) }

func TestPeerHelpers(t *testing.T) {
	peers := testutil.Peers(3)
	require.True(t, solid.SamePeer(peers[0], testutil.NewPeer(1)))
	require.False(t, solid.SamePeer(peers[0], peers[1]))
	require.False(t, solid.SamePeer(peers[0], nil))
	require.True(t, solid.SamePeer(nil, nil))

	require.True(t, solid.ContainsPeer(peers, testutil.NewPeer(3)))
	require.False(t, solid.ContainsPeer(peers, testutil.NewPeer(4)))

	require.Equal(t, solid.PeerKey(peers[1]), solid.PeerKey(testutil.NewPeer(2)))
	require.Empty(t, solid.PeerKey(nil))
}

func TestProposalHash(t *testing.T) {
	require.True(t, solid.GenesisHash().IsGenesis())
	h := solid.HashBytes([]byte("manifest"))
	require.False(t, h.IsGenesis())
	require.Len(t, h.Short(), 8)
	require.Contains(t, h.String(), h.Short())
}

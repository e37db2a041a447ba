package wire_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/relab/solid"
	"github.com/relab/solid/internal/testutil"
	"github.com/relab/solid/wire"
)

var decoder = wire.Decoder{Peer: testutil.DecodePeer}

func testManifest() *solid.Manifest {
	peers := testutil.Peers(4)
	app := &testutil.App{}
	genesis := solid.GenesisManifest(app, peers)
	return testutil.Next(app, genesis, 1, peers[0], peers[1], peers[2])
}

func TestManifestRoundTrip(t *testing.T) {
	want := testManifest()
	want.State = []byte("state")
	want.Signature = []byte("signature")

	b, err := wire.EncodeManifest(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decoder.DecodeManifest(b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("DecodeManifest() mismatch (-want +got):\n%s", diff)
	}
}

func TestAcceptRoundTrip(t *testing.T) {
	want := testManifest().Accepts[0]
	want.Signature = []byte{1, 2, 3}

	b, err := wire.EncodeAccept(&want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decoder.DecodeAccept(b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("DecodeAccept() mismatch (-want +got):\n%s", diff)
	}
}

func TestHashContent(t *testing.T) {
	m := testManifest()
	h := wire.HashContent(&m.ManifestContent)
	if h != wire.HashContent(&m.ManifestContent) {
		t.Fatal("HashContent is not deterministic")
	}

	tests := []struct {
		name   string
		modify func(c *solid.ManifestContent)
	}{
		{"height", func(c *solid.ManifestContent) { c.Height++ }},
		{"skips", func(c *solid.ManifestContent) { c.Skips++ }},
		{"state", func(c *solid.ManifestContent) { c.State = []byte{1} }},
		{"leader", func(c *solid.ManifestContent) { c.LeaderID = testutil.NewPeer(9) }},
		{"accepts", func(c *solid.ManifestContent) { c.Accepts = c.Accepts[:1] }},
		{"validators", func(c *solid.ManifestContent) { c.Validators = c.Validators[1:] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testManifest().ManifestContent
			tt.modify(&c)
			if wire.HashContent(&c) == h {
				t.Errorf("changing the %s did not change the hash", tt.name)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	errPeer := errors.New("bad peer")
	failing := wire.Decoder{Peer: func([]byte) (solid.Peer, error) { return nil, errPeer }}

	b, err := wire.EncodeManifest(testManifest())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := failing.DecodeManifest(b); !errors.Is(err, errPeer) {
		t.Errorf("DecodeManifest() error = %v, want %v", err, errPeer)
	}
	if _, err := decoder.DecodeManifest([]byte{0xc1}); err == nil {
		t.Error("DecodeManifest() of garbage succeeded")
	}
	if _, err := decoder.DecodeAccept([]byte("garbage")); err == nil {
		t.Error("DecodeAccept() of garbage succeeded")
	}
}

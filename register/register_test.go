package register_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/relab/solid"
	"github.com/relab/solid/internal/testutil"
	"github.com/relab/solid/register"
	"github.com/stretchr/testify/require"
)

func newProposal(app solid.App, height, skips uint64, last solid.ProposalHash) *register.Proposal {
	m := &solid.Manifest{ManifestContent: solid.ManifestContent{
		LastProposalHash: last,
		Height:           height,
		Skips:            skips,
		LeaderID:         testutil.NewPeer(1),
		Validators:       testutil.Peers(3),
	}}
	p := register.NewProposal(app, m)
	p.Validated = true
	return p
}

func TestNewRegister(t *testing.T) {
	app := &testutil.App{}
	genesis := newProposal(app, 0, 0, solid.GenesisHash())
	r := register.New(genesis, 1000)

	require.Equal(t, 1, r.Len())
	require.Equal(t, uint64(0), r.Height())
	require.Same(t, genesis, r.LastConfirmed())
	require.True(t, r.Contains(genesis.Hash()))
}

func TestInsertAndConfirm(t *testing.T) {
	app := &testutil.App{}
	genesis := newProposal(app, 0, 0, solid.GenesisHash())
	r := register.New(genesis, 1000)

	p1 := newProposal(app, 1, 0, genesis.Hash())
	r.Insert(p1)
	require.Equal(t, 2, r.Len())
	require.Equal(t, uint64(0), r.Height())

	r.Confirm(p1.Hash())
	require.Equal(t, 2, r.Len())
	require.Equal(t, uint64(1), r.Height())
	require.Same(t, p1, r.LastConfirmed())
}

func TestIsDescendant(t *testing.T) {
	app := &testutil.App{}
	genesis := newProposal(app, 0, 0, solid.GenesisHash())
	r := register.New(genesis, 1000)

	p1 := newProposal(app, 1, 0, genesis.Hash())
	p2 := newProposal(app, 2, 0, p1.Hash())
	p3 := newProposal(app, 3, 0, genesis.Hash())
	r.Insert(p1)
	r.Insert(p2)
	r.Insert(p3)

	require.True(t, r.IsDescendant(genesis.Hash(), p2.Hash()), "p2 extends genesis")
	require.False(t, r.IsDescendant(genesis.Hash(), p3.Hash()), "p3 skips a height")
	require.False(t, r.IsDescendant(p2.Hash(), genesis.Hash()), "genesis does not extend p2")
	require.False(t, r.IsDescendant(p1.Hash(), p3.Hash()), "p3 does not extend p1")
}

func TestPurge(t *testing.T) {
	app := &testutil.App{}
	genesis := newProposal(app, 0, 0, solid.GenesisHash())
	r := register.New(genesis, 1000)

	p1a := newProposal(app, 1, 0, genesis.Hash())
	p1b := newProposal(app, 1, 1, solid.HashBytes([]byte{1}))
	r.Insert(p1a)
	r.Insert(p1b)
	require.Equal(t, 3, r.Len())

	// confirming the tip again purges everything that does not extend it
	r.Confirm(genesis.Hash())
	require.Equal(t, 2, r.Len())
	require.True(t, r.Contains(p1a.Hash()), "p1a should not be purged")
	require.False(t, r.Contains(p1b.Hash()), "p1b should be purged")

	last := p1a.Hash()
	for height := uint64(2); height < 1010; height++ {
		p := newProposal(app, height, 0, last)
		r.Insert(p)
		last = p.Hash()
	}
	r.Confirm(last)
	// heights 9 through 1009 are within the history capacity
	require.Equal(t, 1001, r.Len())
}

func TestPurgeCompetingAtTipHeight(t *testing.T) {
	app := &testutil.App{}
	genesis := newProposal(app, 0, 0, solid.GenesisHash())
	r := register.New(genesis, 1000)

	p10 := newProposal(app, 1, 0, genesis.Hash())
	p11 := newProposal(app, 1, 1, genesis.Hash())
	p20 := newProposal(app, 2, 0, p11.Hash())
	r.Insert(p10)
	r.Insert(p11)
	r.Insert(p20)

	r.Confirm(p11.Hash())
	require.False(t, r.Contains(p10.Hash()))
	require.True(t, r.Contains(p20.Hash()))
	require.Equal(t, []*register.Proposal{p20}, r.Pending())
}

func TestNextPending(t *testing.T) {
	app := &testutil.App{}
	genesis := newProposal(app, 0, 0, solid.GenesisHash())
	r := register.New(genesis, 1000)

	require.Nil(t, r.NextPending(0))

	p1 := newProposal(app, 1, 0, genesis.Hash())
	p2a := newProposal(app, 2, 0, p1.Hash())
	p2b := newProposal(app, 2, 1, p1.Hash())
	r.Insert(p1)
	require.Same(t, p1, r.NextPending(0))
	require.Nil(t, r.NextPending(1))

	r.Insert(p2a)
	r.Insert(p2b)
	require.Same(t, p1, r.NextPending(0))
	// the highest skip wins at the same height
	require.Same(t, p2b, r.NextPending(1))
	require.Nil(t, r.NextPending(2))
}

func TestNextPendingSkipsUnvalidated(t *testing.T) {
	app := &testutil.App{}
	genesis := newProposal(app, 0, 0, solid.GenesisHash())
	r := register.New(genesis, 1000)

	p1 := newProposal(app, 1, 0, genesis.Hash())
	p2 := newProposal(app, 2, 0, p1.Hash())
	p2.Validated = false
	r.Insert(p1)
	r.Insert(p2)

	require.Same(t, p1, r.NextPending(0))
	require.Nil(t, r.NextPending(1))
}

func TestNextPendingWithGap(t *testing.T) {
	app := &testutil.App{}
	genesis := newProposal(app, 0, 0, solid.GenesisHash())
	r := register.New(genesis, 1000)

	p1 := newProposal(app, 1, 0, genesis.Hash())
	p2 := newProposal(app, 2, 0, p1.Hash())
	r.Insert(p2)
	require.Nil(t, r.NextPending(0), "p2 cannot be reached without p1")

	r.Insert(p1)
	require.Same(t, p1, r.NextPending(0))
	require.Same(t, p2, r.NextPending(1))
}

func TestConfirmedFromAndDescendants(t *testing.T) {
	app := &testutil.App{}
	genesis := newProposal(app, 0, 0, solid.GenesisHash())
	r := register.New(genesis, 1000)

	chain := []*register.Proposal{genesis}
	for height := uint64(1); height <= 4; height++ {
		p := newProposal(app, height, 0, chain[len(chain)-1].Hash())
		r.Insert(p)
		chain = append(chain, p)
	}
	r.Confirm(chain[3].Hash())

	require.Equal(t, chain[1:4], r.ConfirmedFrom(1))
	require.Equal(t, chain[:4], r.ConfirmedFrom(0))
	require.Equal(t, chain[2:5], r.Descendants(chain[1].Hash(), chain[4].Hash()))
	require.Nil(t, r.Descendants(chain[4].Hash(), chain[1].Hash()))
}

func TestRemoveKeepsTip(t *testing.T) {
	app := &testutil.App{}
	genesis := newProposal(app, 0, 0, solid.GenesisHash())
	r := register.New(genesis, 1000)

	r.Remove(genesis.Hash())
	require.True(t, r.Contains(genesis.Hash()))
}

func TestTrimHeld(t *testing.T) {
	app := &testutil.App{}
	genesis := newProposal(app, 0, 0, solid.GenesisHash())
	r := register.New(genesis, 1000)

	p1 := newProposal(app, 1, 0, genesis.Hash())
	r.Insert(p1)

	var held []*register.Proposal
	for i := 0; i < 6; i++ {
		p := newProposal(app, 2, 0, solid.HashBytes([]byte(fmt.Sprint(i))))
		p.Validated = false
		r.Insert(p)
		held = append(held, p)
	}

	require.Nil(t, r.TrimHeld(6))
	require.Equal(t, held[:2], r.TrimHeld(4))
	for _, p := range held[:2] {
		require.False(t, r.Contains(p.Hash()))
	}
	for _, p := range held[2:] {
		require.True(t, r.Contains(p.Hash()))
	}
	require.True(t, r.Contains(p1.Hash()), "validated proposals are not trimmed")

	require.Len(t, r.TrimHeld(0), 4)
	require.Equal(t, []*register.Proposal{p1}, r.Pending())
}

func TestPurgeWithUnboundedHistory(t *testing.T) {
	app := &testutil.App{}
	genesis := newProposal(app, 0, 0, solid.GenesisHash())
	r := register.New(genesis, math.MaxUint64)

	chain := []*register.Proposal{genesis}
	for height := uint64(1); height <= 5; height++ {
		p := newProposal(app, height, 0, chain[len(chain)-1].Hash())
		r.Insert(p)
		chain = append(chain, p)
	}
	r.Confirm(chain[5].Hash())

	require.Equal(t, 6, r.Len())
	require.Equal(t, chain, r.ConfirmedFrom(0))
}

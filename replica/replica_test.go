package replica_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/relab/solid"
	"github.com/relab/solid/internal/testutil"
	"github.com/relab/solid/replica"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	p1 = testutil.NewPeer(1)
	p2 = testutil.NewPeer(2)
	p3 = testutil.NewPeer(3)
	p4 = testutil.NewPeer(4)
)

func newReplica(t *testing.T, self byte, n int, opts ...replica.Option) (*replica.Replica, *testutil.App, *solid.Manifest) {
	t.Helper()
	return newReplicaWithConfig(t, self, n, testutil.Config(), opts...)
}

func newReplicaWithConfig(t *testing.T, self byte, n int, cfg solid.Config, opts ...replica.Option) (*replica.Replica, *testutil.App, *solid.Manifest) {
	t.Helper()
	app := &testutil.App{}
	genesis := solid.GenesisManifest(app, testutil.Peers(n))
	r, err := replica.New(app, testutil.NewSigner(self), genesis, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Stop)
	return r, app, genesis
}

func next(t *testing.T, r *replica.Replica) solid.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	event, err := r.Next(ctx)
	require.NoError(t, err)
	return event
}

func requireEvent(t *testing.T, want solid.Event, got solid.Event) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestFirstProposalSinglePeer(t *testing.T) {
	r, app, genesis := newReplica(t, 1, 1)
	r.Start(context.Background())

	requireEvent(t, solid.ProposeEvent{
		LastProposalHash: app.Hash(&genesis.ManifestContent),
		Height:           1,
		Skips:            0,
		Accepts:          []solid.Accept{testutil.AcceptFor(app, genesis, 0, p1, p1)},
	}, next(t, r))

	m1 := testutil.Next(app, genesis, 0, p1)
	require.NoError(t, r.ReceiveProposal(m1))

	requireEvent(t, solid.ProposeEvent{
		LastProposalHash: app.Hash(&m1.ManifestContent),
		Height:           2,
		Skips:            0,
		Accepts:          []solid.Accept{testutil.AcceptFor(app, m1, 0, p1, p1)},
	}, next(t, r))
	require.Equal(t, 0, r.Pending())
}

func TestFirstProposalMultiPeer(t *testing.T) {
	r, app, genesis := newReplica(t, 2, 4)
	r.Start(context.Background())
	requireEvent(t, solid.AcceptEvent{Accept: testutil.AcceptFor(app, genesis, 0, p4, p2)}, next(t, r))

	m1 := testutil.Next(app, genesis, 0, p1, p2, p3)
	require.NoError(t, r.ReceiveProposal(m1))
	requireEvent(t, solid.AcceptEvent{Accept: testutil.AcceptFor(app, m1, 0, p1, p2)}, next(t, r))

	require.Equal(t, m1, r.CurrentProposal())
	require.True(t, r.Exists(app.Hash(&m1.ManifestContent)))
	require.Equal(t, uint64(0), r.Height())
}

func TestSelfAddressedAcceptIsNotEmitted(t *testing.T) {
	r, _, _ := newReplica(t, 4, 4)
	r.Start(context.Background())

	require.Equal(t, 0, r.Pending())
	_, ok := r.SkipDeadline()
	require.True(t, ok, "sending an accept must arm the skip deadline")
}

func TestReceiveAcceptProposes(t *testing.T) {
	r, app, genesis := newReplica(t, 4, 4)
	r.Start(context.Background())

	require.NoError(t, r.ReceiveAccept(testutil.AcceptFor(app, genesis, 0, p4, p1)))
	require.Equal(t, 0, r.Pending())
	require.NoError(t, r.ReceiveAccept(testutil.AcceptFor(app, genesis, 0, p4, p2)))

	requireEvent(t, solid.ProposeEvent{
		LastProposalHash: app.Hash(&genesis.ManifestContent),
		Height:           1,
		Skips:            0,
		Accepts: []solid.Accept{
			testutil.AcceptFor(app, genesis, 0, p4, p1),
			testutil.AcceptFor(app, genesis, 0, p4, p2),
			testutil.AcceptFor(app, genesis, 0, p4, p4),
		},
	}, next(t, r))

	_, ok := r.SkipDeadline()
	require.False(t, ok, "the leader must not skip itself")
}

func TestReceiveAcceptRejects(t *testing.T) {
	r, app, genesis := newReplica(t, 1, 4)
	err := r.ReceiveAccept(testutil.AcceptFor(app, genesis, 0, p3, p2))
	require.ErrorIs(t, err, solid.ErrInvalidAcceptLeader)
	require.Equal(t, 0, r.Pending())
}

func TestDuplicateProposalEvent(t *testing.T) {
	r, app, genesis := newReplica(t, 1, 4)
	r.Start(context.Background())
	next(t, r) // initial accept

	m1 := testutil.Next(app, genesis, 0, p1, p2, p3)
	require.NoError(t, r.ReceiveProposal(m1))
	// the accept for m1 is addressed to the local node
	require.Equal(t, 0, r.Pending())

	err := r.ReceiveProposal(m1)
	require.ErrorIs(t, err, solid.ErrProposalAlreadyExists)
	requireEvent(t, solid.DuplicateProposalEvent{ProposalHash: app.Hash(&m1.ManifestContent)}, next(t, r))
}

func TestCommit(t *testing.T) {
	r, app, genesis := newReplica(t, 2, 4)
	r.Start(context.Background())
	next(t, r)

	chain := testutil.Chain(app, genesis, 3)
	for _, m := range chain {
		require.NoError(t, r.ReceiveProposal(m))
	}

	var commits []solid.Event
	for {
		event, ok := r.TryNext()
		if !ok {
			break
		}
		if _, ok := event.(solid.CommitEvent); ok {
			commits = append(commits, event)
		}
	}
	want := []solid.Event{
		solid.CommitEvent{Manifest: chain[0], ConfirmedBy: chain[1]},
		solid.CommitEvent{Manifest: chain[1], ConfirmedBy: chain[2]},
	}
	if diff := cmp.Diff(want, commits); diff != "" {
		t.Errorf("commits mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, uint64(2), r.Height())
	require.Equal(t, chain[1], r.LastConfirmed())
	require.Equal(t, []*solid.Manifest{chain[0], chain[1]}, r.ConfirmedProposalsFrom(1))
}

func TestTickSkips(t *testing.T) {
	clock := testutil.NewClock()
	r, app, genesis := newReplica(t, 1, 4, replica.WithClock(clock.Now))

	// nothing is due before the replica has voted
	r.Tick(clock.Now())
	requireEvent(t, solid.AcceptEvent{Accept: testutil.AcceptFor(app, genesis, 0, p4, p1)}, next(t, r))

	deadline, ok := r.SkipDeadline()
	require.True(t, ok)
	require.Equal(t, clock.Now().Add(testutil.Config().SkipTimeout), deadline)

	r.Tick(clock.Now())
	require.Equal(t, 0, r.Pending(), "skipped before the deadline")

	clock.Advance(testutil.Config().SkipTimeout)
	r.Tick(clock.Now())
	requireEvent(t, solid.AcceptEvent{Accept: testutil.AcceptFor(app, genesis, 1, p3, p1)}, next(t, r))

	deadline, ok = r.SkipDeadline()
	require.True(t, ok)
	require.Equal(t, clock.Now().Add(testutil.Config().SkipTimeout), deadline)
}

func TestTimerSkips(t *testing.T) {
	cfg := testutil.Config()
	cfg.SkipTimeout = 20 * time.Millisecond
	r, app, genesis := newReplicaWithConfig(t, 1, 4, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	requireEvent(t, solid.AcceptEvent{Accept: testutil.AcceptFor(app, genesis, 0, p4, p1)}, next(t, r))
	requireEvent(t, solid.AcceptEvent{Accept: testutil.AcceptFor(app, genesis, 1, p3, p1)}, next(t, r))
}

func TestTickReportsMissingManifest(t *testing.T) {
	clock := testutil.NewClock()
	cfg := testutil.Config()
	cfg.MissingProposalTimeout = 200 * time.Millisecond
	r, app, genesis := newReplicaWithConfig(t, 1, 4, cfg, replica.WithClock(clock.Now))

	r.Tick(clock.Now())
	requireEvent(t, solid.AcceptEvent{Accept: testutil.AcceptFor(app, genesis, 0, p4, p1)}, next(t, r))

	m10 := testutil.Next(app, genesis, 0, p1, p2, p3)
	require.NoError(t, r.ReceiveAccept(testutil.AcceptFor(app, m10, 0, p1, p2)))
	require.Equal(t, 0, r.Pending())

	clock.Advance(time.Second)
	r.Tick(clock.Now())
	requireEvent(t, solid.OutOfSyncEvent{Height: 0, MaxSeenHeight: 1}, next(t, r))

	r.Tick(clock.Now())
	require.Equal(t, 0, r.Pending(), "missing manifest reported twice")
}

func TestOutOfSyncIsThrottled(t *testing.T) {
	clock := testutil.NewClock()
	cfg := testutil.Config()
	cfg.OutOfSyncTimeout = time.Minute
	r, app, genesis := newReplicaWithConfig(t, 1, 4, cfg, replica.WithClock(clock.Now))
	r.Start(context.Background())
	next(t, r)

	chain := testutil.Chain(app, genesis, 6)
	require.NoError(t, r.ReceiveProposal(chain[2]))
	requireEvent(t, solid.OutOfSyncEvent{Height: 0, MaxSeenHeight: 3}, next(t, r))
	_, ok := r.SkipDeadline()
	require.False(t, ok, "an out of sync node must not skip")

	require.NoError(t, r.ReceiveProposal(chain[3]))
	require.Equal(t, 0, r.Pending(), "OutOfSync repeated within the timeout")

	clock.Advance(time.Minute)
	require.NoError(t, r.ReceiveProposal(chain[4]))
	requireEvent(t, solid.OutOfSyncEvent{Height: 0, MaxSeenHeight: 5}, next(t, r))
	require.True(t, r.IsOutOfSync())
	require.Equal(t, uint64(5), r.MaxHeight())
}

func TestReset(t *testing.T) {
	r, app, genesis := newReplica(t, 1, 4)
	r.Start(context.Background())

	chain := testutil.Chain(app, genesis, 6)
	require.NoError(t, r.ReceiveProposal(chain[4]))
	require.NotZero(t, r.Pending())

	require.NoError(t, r.Reset(chain[3], app))
	require.Equal(t, 0, r.Pending())
	require.Equal(t, uint64(4), r.Height())
	require.Equal(t, app.Hash(&chain[3].ManifestContent), r.Hash())
	require.False(t, r.Exists(app.Hash(&chain[4].ManifestContent)))

	require.NoError(t, r.ReceiveProposal(chain[4]))
	require.NoError(t, r.ReceiveProposal(chain[5]))
	var committed bool
	for {
		event, ok := r.TryNext()
		if !ok {
			break
		}
		if c, ok := event.(solid.CommitEvent); ok {
			require.Equal(t, chain[4], c.Manifest)
			committed = true
		}
	}
	require.True(t, committed)
}

func TestEventQueueDropsOldest(t *testing.T) {
	cfg := testutil.Config()
	cfg.EventQueueSize = 1
	r, app, genesis := newReplicaWithConfig(t, 1, 4, cfg)

	m1 := testutil.Next(app, genesis, 0, p1, p2, p3)
	m2 := testutil.Next(app, m1, 0, p1, p2, p3)
	require.NoError(t, r.ReceiveProposal(m1))
	require.NoError(t, r.ReceiveProposal(m2))
	require.Error(t, r.ReceiveProposal(m1))
	require.Error(t, r.ReceiveProposal(m2))

	require.Equal(t, 1, r.Pending())
	requireEvent(t, solid.DuplicateProposalEvent{ProposalHash: app.Hash(&m2.ManifestContent)}, next(t, r))
}

func TestStopWakesNext(t *testing.T) {
	r, _, _ := newReplica(t, 4, 4)
	errc := make(chan error, 1)
	go func() {
		_, err := r.Next(context.Background())
		errc <- err
	}()

	r.Stop()
	select {
	case err := <-errc:
		require.True(t, errors.Is(err, replica.ErrStopped), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not return after Stop")
	}
}

func TestNextRespectsContext(t *testing.T) {
	r, _, _ := newReplica(t, 4, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewPanicsWithoutValidators(t *testing.T) {
	app := &testutil.App{}
	require.Panics(t, func() {
		_, _ = replica.NewGenesis(app, testutil.NewSigner(1), nil, testutil.Config())
	})
}

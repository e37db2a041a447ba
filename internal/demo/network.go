package demo

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relab/solid"
	"github.com/relab/solid/crypto/ecdsa"
	"github.com/relab/solid/logging"
	"github.com/relab/solid/metrics"
	"github.com/relab/solid/replica"
	"github.com/relab/solid/wire"
	"golang.org/x/sync/errgroup"
)

const (
	inboxSize       = 1024
	verifyCacheSize = 256
)

type networkOptions struct {
	registerer prometheus.Registerer
	onCommit   func(node int, height uint64)
}

// Option configures a Network.
type Option func(*networkOptions)

// WithRegisterer registers the metrics of every validator with registerer,
// labelled with the validator's index.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(o *networkOptions) {
		o.registerer = registerer
	}
}

// WithCommitHook calls f whenever a validator sees a manifest committed.
func WithCommitHook(f func(node int, height uint64)) Option {
	return func(o *networkOptions) {
		o.onCommit = f
	}
}

// Network is a set of validators connected by a Bus.
type Network struct {
	nodes []*Node
}

// NewNetwork creates n validators with fresh keys, starting from the same genesis.
func NewNetwork(n int, cfg solid.Config, opts ...Option) (*Network, error) {
	if n < 1 {
		return nil, fmt.Errorf("need at least one validator, got %d", n)
	}
	o := &networkOptions{}
	for _, opt := range opts {
		opt(o)
	}

	signers := make([]*ecdsa.Signer, n)
	validators := make([]solid.Peer, n)
	known := make(map[string]solid.Peer, n)
	for i := range signers {
		key, err := ecdsa.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		signers[i] = ecdsa.NewSigner(key)
		peer, err := ecdsa.NewCachedPeer(&key.PublicKey, verifyCacheSize)
		if err != nil {
			return nil, err
		}
		validators[i] = peer
		known[solid.PeerKey(peer)] = peer
	}
	decoder := wire.Decoder{Peer: knownPeers(known)}

	bus := NewBus()
	genesis := solid.GenesisManifest(CounterApp{}, validators)
	nw := &Network{}
	for i, signer := range signers {
		logger := logging.New(fmt.Sprintf("demo%d", i))
		ropts := []replica.Option{replica.WithLogger(logger)}
		if o.registerer != nil {
			labels := prometheus.Labels{"validator": fmt.Sprint(i)}
			m, err := metrics.New(prometheus.WrapRegistererWith(labels, o.registerer))
			if err != nil {
				return nil, err
			}
			ropts = append(ropts, replica.WithMetrics(m))
		}
		r, err := replica.New(CounterApp{}, signer, genesis, cfg, ropts...)
		if err != nil {
			return nil, err
		}
		node := &Node{
			signer:  signer,
			replica: r,
			bus:     bus,
			inbox:   bus.Join(signer.Peer(), inboxSize),
			decoder: decoder,
			logger:  logger,
		}
		if o.onCommit != nil {
			i := i
			node.onCommit = func(height uint64) { o.onCommit(i, height) }
		}
		nw.nodes = append(nw.nodes, node)
	}
	return nw, nil
}

// knownPeers returns a decoder that resolves validator identities to the shared peers in known,
// so that verified signatures are cached across messages.
func knownPeers(known map[string]solid.Peer) wire.PeerDecoder {
	return func(b []byte) (solid.Peer, error) {
		if p, ok := known[string(b)]; ok {
			return p, nil
		}
		return ecdsa.DecodePeer(b)
	}
}

// Nodes returns the validators of the network.
func (nw *Network) Nodes() []*Node {
	return nw.nodes
}

// Run starts every validator and blocks until ctx is cancelled or a validator fails.
func (nw *Network) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			for _, node := range nw.nodes {
				node.replica.Stop()
			}
		})
	}
	defer stop()

	for _, node := range nw.nodes {
		node := node
		g.Go(func() error { return node.receive(ctx) })
		g.Go(func() error { return node.run(ctx) })
	}
	for _, node := range nw.nodes {
		node.replica.Start(ctx)
	}
	g.Go(func() error {
		<-ctx.Done()
		stop()
		return nil
	})
	return g.Wait()
}

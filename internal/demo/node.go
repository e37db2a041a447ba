package demo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/relab/solid"
	"github.com/relab/solid/crypto/ecdsa"
	"github.com/relab/solid/logging"
	"github.com/relab/solid/replica"
	"github.com/relab/solid/wire"
)

// Node is one validator on the bus.
type Node struct {
	signer  *ecdsa.Signer
	replica *replica.Replica
	bus     *Bus
	inbox   <-chan message
	decoder wire.Decoder
	logger  logging.Logger

	mut       sync.Mutex
	committed []solid.ProposalHash
	onCommit  func(height uint64)
}

// ID returns the identity of the node.
func (n *Node) ID() solid.Peer {
	return n.signer.Peer()
}

// Replica returns the replica the node drives.
func (n *Node) Replica() *replica.Replica {
	return n.replica
}

// Committed returns the hashes of the manifests the node has seen committed, lowest height first.
// The manifest at index i has height i.
func (n *Node) Committed() []solid.ProposalHash {
	n.mut.Lock()
	defer n.mut.Unlock()
	return append([]solid.ProposalHash(nil), n.committed...)
}

// run consumes the replica's events until ctx is cancelled.
func (n *Node) run(ctx context.Context) error {
	for {
		event, err := n.replica.Next(ctx)
		if err != nil {
			if errors.Is(err, replica.ErrStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := n.handleEvent(ctx, event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (n *Node) handleEvent(ctx context.Context, event solid.Event) error {
	switch e := event.(type) {
	case solid.ProposeEvent:
		m, err := n.propose(e)
		if err != nil {
			return err
		}
		if m == nil {
			return nil
		}
		b, err := wire.EncodeManifest(m)
		if err != nil {
			return err
		}
		n.logger.Debugf("Propose[height=%d]: skips=%d accepts=%d", m.Height, m.Skips, len(m.Accepts))
		return n.bus.Broadcast(ctx, message{kind: kindManifest, payload: b})
	case solid.AcceptEvent:
		b, err := wire.EncodeAccept(&e.Accept)
		if err != nil {
			return err
		}
		return n.bus.Send(ctx, e.Accept.LeaderID, message{kind: kindAccept, payload: b})
	case solid.CommitEvent:
		n.commit(e.Manifest)
	case solid.OutOfSyncEvent:
		n.logger.Warnf("OutOfSync[height=%d]: network is at height %d", e.Height, e.MaxSeenHeight)
	case solid.DuplicateProposalEvent:
		n.logger.Debugf("duplicate manifest %s", e.ProposalHash.Short())
	}
	return nil
}

// propose builds the manifest asked for by e. It returns nil if the predecessor is no longer held.
func (n *Node) propose(e solid.ProposeEvent) (*solid.Manifest, error) {
	last, ok := n.replica.Proposal(e.LastProposalHash)
	if !ok {
		n.logger.Warnf("Propose[height=%d]: predecessor %s is gone", e.Height, e.LastProposalHash.Short())
		return nil, nil
	}
	content := solid.ManifestContent{
		LastProposalHash: e.LastProposalHash,
		Skips:            e.Skips,
		Height:           e.Height,
		LeaderID:         n.signer.Peer(),
		State:            EncodeCounter(DecodeCounter(last.State) + 1),
		Validators:       last.Validators,
		Accepts:          e.Accepts,
	}
	m, err := solid.NewManifest(CounterApp{}, n.signer, content)
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest: %w", err)
	}
	return m, nil
}

func (n *Node) commit(m *solid.Manifest) {
	n.mut.Lock()
	for uint64(len(n.committed)) < m.Height {
		// heights the node never saw committed, such as the genesis
		n.committed = append(n.committed, solid.ProposalHash{})
	}
	if uint64(len(n.committed)) == m.Height {
		n.committed = append(n.committed, CounterApp{}.Hash(&m.ManifestContent))
	}
	onCommit := n.onCommit
	n.mut.Unlock()

	n.logger.Infof("Commit[height=%d]: counter=%d", m.Height, DecodeCounter(m.State))
	if onCommit != nil {
		onCommit(m.Height)
	}
}

// receive hands messages from the inbox to the replica until ctx is cancelled.
func (n *Node) receive(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-n.inbox:
			n.deliver(msg)
		}
	}
}

func (n *Node) deliver(msg message) {
	switch msg.kind {
	case kindManifest:
		m, err := n.decoder.DecodeManifest(msg.payload)
		if err != nil {
			n.logger.Warnf("failed to decode manifest: %v", err)
			return
		}
		if err := n.replica.ReceiveProposal(m); err != nil {
			var dup *solid.ProposalAlreadyExistsError
			if !errors.As(err, &dup) {
				n.logger.Debugf("manifest %s rejected: %v", m, err)
			}
		}
	case kindAccept:
		a, err := n.decoder.DecodeAccept(msg.payload)
		if err != nil {
			n.logger.Warnf("failed to decode accept: %v", err)
			return
		}
		if err := n.replica.ReceiveAccept(a); err != nil {
			n.logger.Debugf("accept %s rejected: %v", a, err)
		}
	default:
		n.logger.Warnf("unknown message kind %d", msg.kind)
	}
}

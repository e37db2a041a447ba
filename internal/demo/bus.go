package demo

import (
	"context"
	"errors"
	"sync"

	"github.com/relab/solid"
)

// ErrUnknownPeer is returned when sending to a peer that has not joined the bus.
var ErrUnknownPeer = errors.New("unknown peer")

type messageKind byte

const (
	kindManifest messageKind = iota + 1
	kindAccept
)

type message struct {
	kind    messageKind
	payload []byte
}

// Bus delivers messages between validators in the same process.
type Bus struct {
	mut     sync.RWMutex
	inboxes map[string]chan message
	order   []string
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{inboxes: make(map[string]chan message)}
}

// Join registers p and returns its inbox.
func (b *Bus) Join(p solid.Peer, capacity int) <-chan message {
	b.mut.Lock()
	defer b.mut.Unlock()
	key := solid.PeerKey(p)
	inbox := make(chan message, capacity)
	if _, ok := b.inboxes[key]; !ok {
		b.order = append(b.order, key)
	}
	b.inboxes[key] = inbox
	return inbox
}

// Send delivers msg to p, blocking while its inbox is full.
func (b *Bus) Send(ctx context.Context, to solid.Peer, msg message) error {
	b.mut.RLock()
	inbox, ok := b.inboxes[solid.PeerKey(to)]
	b.mut.RUnlock()
	if !ok {
		return ErrUnknownPeer
	}
	select {
	case inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Broadcast delivers msg to every peer on the bus, the sender included.
func (b *Bus) Broadcast(ctx context.Context, msg message) error {
	b.mut.RLock()
	inboxes := make([]chan message, 0, len(b.order))
	for _, key := range b.order {
		inboxes = append(inboxes, b.inboxes[key])
	}
	b.mut.RUnlock()

	for _, inbox := range inboxes {
		select {
		case inbox <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

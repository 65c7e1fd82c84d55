// Package relaytest provides an in-process relay.Transport fan-out hub for
// exercising a full multi-party protocol run in tests, without a real
// network relay server.
package relaytest

import (
	"context"
	"sync"

	"github.com/silence-laboratories/dkls23/pkg/relay"
)

// transport is a relay.Transport bound to one party's slot in a Hub.
type transport struct {
	self int
	hub  *Hub
	in   chan []byte
}

func (t *transport) Send(ctx context.Context, frame []byte) error {
	return t.hub.broadcast(ctx, t.self, frame)
}

func (t *transport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case f := <-t.in:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *transport) Close() error { return nil }

// Hub fans out every PUB frame one party sends to every other party's
// inbox; ASK frames are dropped, since the subscription filtering they
// request already happens locally inside relay.FilteredRelay.
type Hub struct {
	mu    sync.Mutex
	peers []*transport
}

// NewHub builds a Hub wiring n parties together.
func NewHub(n int) *Hub {
	h := &Hub{peers: make([]*transport, n)}
	for i := range h.peers {
		h.peers[i] = &transport{self: i, hub: h, in: make(chan []byte, 4096)}
	}
	return h
}

// Transport returns the relay.Transport for party i.
func (h *Hub) Transport(i int) relay.Transport { return h.peers[i] }

func (h *Hub) broadcast(ctx context.Context, from int, frame []byte) error {
	kind, _, err := relay.DecodeFrame(frame)
	if err != nil {
		return err
	}
	if kind != relay.FramePub {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.peers {
		if i == from {
			continue
		}
		select {
		case p.in <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

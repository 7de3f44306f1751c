// Package membus provides an in-process fanout bus implementing
// core.Transport, standing in for a real relt exchange in tests. It
// gives every subscriber its own delivery channel and fans each publish
// out to all of them, including the publisher itself, matching the
// real transport's "no delivery-to-self suppression" contract (§4.1).
package membus

import (
	"context"
	"sync"

	"github.com/kasami/monitor/pkg/monitor/types"
)

// Bus is a shared in-memory fanout exchange. The zero value is an empty
// bus, which is what New returns.
type Bus struct {
	mutex       sync.Mutex
	subscribers []chan types.Message
}

// New returns an empty bus ready to hand out subscriber transports.
func New() *Bus {
	return &Bus{}
}

// Subscribe returns a Transport bound to this bus. Every message
// published by any subscriber (including this one) is delivered here.
func (b *Bus) Subscribe() *Transport {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	ch := make(chan types.Message, 256)
	b.subscribers = append(b.subscribers, ch)
	return &Transport{bus: b, inbox: ch}
}

func (b *Bus) fanout(message types.Message) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, sub := range b.subscribers {
		select {
		case sub <- message:
		default:
			// A full inbox means the test is intentionally slow to drain;
			// block instead of silently dropping, since the protocol
			// requires reliable, exactly-once delivery (§7).
			sub <- message
		}
	}
}

// Transport is one subscriber's handle on a Bus, implementing
// core.Transport without importing it (avoiding an import cycle between
// core and its own test support).
type Transport struct {
	bus    *Bus
	inbox  chan types.Message
	closed bool
	mutex  sync.Mutex
}

// Publish implements core.Transport.
func (t *Transport) Publish(_ context.Context, message types.Message) error {
	t.bus.fanout(message)
	return nil
}

// Listen implements core.Transport.
func (t *Transport) Listen() <-chan types.Message {
	return t.inbox
}

// Close implements core.Transport. The peer's own context cancellation
// is what actually stops its dispatch loop from reading Listen(); this
// just marks the handle so a second Close is harmless. The channel
// itself is left open and unreferenced for the garbage collector,
// since closing it here would race the bus's concurrent fanout sends.
func (t *Transport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.closed = true
	return nil
}

package core

import (
	"time"

	"github.com/kasami/monitor/pkg/monitor/types"
)

// Get implements the public get operation: returns the current local
// datum, synchronized by the peer's own lock (the caller is typically
// already holding the CS, but Get never requires it).
func (p *Peer) Get() []byte {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.datum
}

// Set implements the public set operation (§4.5): updates the local
// datum, broadcasts SET, then sleeps out the settling interval before
// returning so receivers have a chance to apply the update before the
// caller leaves the CS.
func (p *Peer) Set(value []byte) {
	p.mutex.Lock()
	p.datum = value
	p.mutex.Unlock()

	p.publish(types.Message{Type: types.SET, Data: value})

	interval := p.configuration.SettlingInterval
	if interval <= 0 {
		interval = types.DefaultSettlingInterval
	}
	time.Sleep(interval)
}

// handleSet applies an inbound SET unconditionally, last-writer-wins,
// ignoring the sender's own echo of its own write (§9 self-delivery
// filter).
func (p *Peer) handleSet(message types.Message) {
	if message.Pid == p.id {
		return
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.log.Debugf("peer %d applying replicated datum from %d", p.id, message.Pid)
	p.datum = message.Data
}

// Package monitor implements a distributed monitor: a process-group
// primitive providing mutual exclusion, condition-variable-style
// waiting, and a replicated shared datum across a fixed set of N peer
// processes communicating by asynchronous broadcast.
package monitor

import (
	"github.com/kasami/monitor/pkg/monitor/core"
	"github.com/kasami/monitor/pkg/monitor/definition"
	"github.com/kasami/monitor/pkg/monitor/types"
)

// Monitor is the public façade applications talk to. It is a thin
// wrapper over a core.Peer engine, so application code never reaches
// into the core package directly, mirroring the teacher's split between
// its façade and engine packages.
type Monitor struct {
	peer *core.Peer
}

// New boots a peer for the given configuration and connects it to the
// group's fanout transport. Only configuration.BootstrapID starts
// holding the token.
func New(configuration *types.Configuration) (*Monitor, error) {
	if configuration.Logger == nil {
		configuration.Logger = definition.NewDefaultLogger()
	}

	peer, err := core.NewPeer(configuration, configuration.Logger)
	if err != nil {
		return nil, err
	}

	return &Monitor{peer: peer}, nil
}

// NewWithTransport boots a peer the same way New does, but against an
// already-constructed Transport rather than dialing relt. Production
// callers should use New; this exists for tests and for alternate
// transports layered over the core engine.
func NewWithTransport(configuration *types.Configuration, trans core.Transport) (*Monitor, error) {
	if configuration.Logger == nil {
		configuration.Logger = definition.NewDefaultLogger()
	}

	peer, err := core.NewPeerWithTransport(configuration, trans, configuration.Logger)
	if err != nil {
		return nil, err
	}

	return &Monitor{peer: peer}, nil
}

// RequestCS blocks until this peer holds the critical section. A call
// while already inside the CS, or while already waiting, is a no-op.
func (m *Monitor) RequestCS() {
	m.peer.RequestCS()
}

// LeaveCS releases the critical section, forwarding the token to the
// next eligible waiter if any, or retaining it otherwise. A no-op if the
// peer is not currently in the CS.
func (m *Monitor) LeaveCS() {
	m.peer.LeaveCS()
}

// Wait releases the CS (as LeaveCS would) and suspends until a Pulse
// addressed to this peer (or a PulseAll) wakes it, transparently
// re-acquiring the CS before returning. A no-op outside the CS.
//
// Callers must re-check whatever application-level predicate they are
// waiting on in a loop around Wait: wake-ups are edge-triggered and may
// be spurious with respect to that predicate even though they are never
// spurious with respect to the protocol itself.
func (m *Monitor) Wait() {
	m.peer.Wait()
}

// Pulse wakes peer target if it is suspended in Wait.
func (m *Monitor) Pulse(target types.PeerID) {
	m.peer.Pulse(target)
}

// PulseAll wakes every peer suspended in Wait.
func (m *Monitor) PulseAll() {
	m.peer.PulseAll()
}

// Get returns the current local value of the replicated datum.
func (m *Monitor) Get() []byte {
	return m.peer.Get()
}

// Set updates the replicated datum, broadcasts the update, and blocks
// for the configured settling interval before returning.
func (m *Monitor) Set(value []byte) {
	m.peer.Set(value)
}

// Stop tears down this peer's dispatch loop and transport connection.
func (m *Monitor) Stop() {
	m.peer.Stop()
}

// Snapshot returns a point-in-time view of this peer's protocol state,
// for tests asserting on the invariants in §8 of the specification.
func (m *Monitor) Snapshot() core.Snapshot {
	return m.peer.Snapshot()
}

// Debugf traces an application-level message through this peer's
// logger at debug level, mirroring the original monitor's self.debug(text)
// pass-through used by the bounded-buffer demo to narrate its own
// request_cs/wait/leave_cs transitions.
func (m *Monitor) Debugf(format string, args ...interface{}) {
	m.peer.Debugf(format, args...)
}

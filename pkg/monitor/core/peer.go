package core

import (
	"context"
	"sync"

	"github.com/kasami/monitor/pkg/monitor/definition"
	"github.com/kasami/monitor/pkg/monitor/types"
)

// Peer is the engine behind a single group member: the Suzuki-Kasami
// mutual-exclusion automaton (C5), the monitor wait/pulse layer (C6) and
// the replicated datum channel (C7), all serialized behind one lock and
// one condition variable, as required by the concurrency model.
//
// Every exported method here is safe for concurrent use; internal
// handlers run on the dispatch goroutine started by NewPeer and acquire
// mutex themselves.
type Peer struct {
	mutex *sync.Mutex
	cond  *sync.Cond

	id            types.PeerID
	configuration *types.Configuration
	transport     Transport
	invoker       Invoker
	log           types.Logger

	// RN[j] is the highest request sequence number observed from peer j,
	// including this peer's own issued requests at RN[id].
	rn []uint64

	// state is the local automaton state (§4.7 of the spec).
	state types.State

	// token is the token record this peer currently holds, or nil.
	token *types.Token

	// datum is the replicated shared payload.
	datum []byte

	context context.Context
	cancel  context.CancelFunc
}

// NewPeer wires a transport and boots the peer's dispatch loop. Only the
// bootstrap id (configuration.BootstrapID) starts holding the token.
func NewPeer(configuration *types.Configuration, log types.Logger) (*Peer, error) {
	trans, err := NewTransport(configuration, definition.WithPeer(configuration.LocalID, log))
	if err != nil {
		return nil, err
	}
	return NewPeerWithTransport(configuration, trans, log)
}

// NewPeerWithTransport is split out from NewPeer so tests (and the
// bounded-buffer demo, if it chooses an alternate transport) can inject
// a Transport fake instead of dialing a real relt exchange.
func NewPeerWithTransport(configuration *types.Configuration, trans Transport, log types.Logger) (*Peer, error) {
	mutex := &sync.Mutex{}
	ctx, cancel := context.WithCancel(context.Background())

	p := &Peer{
		mutex:         mutex,
		cond:          sync.NewCond(mutex),
		id:            configuration.LocalID,
		configuration: configuration,
		transport:     trans,
		invoker:       NewInvoker(),
		log:           definition.WithPeer(configuration.LocalID, log),
		rn:            make([]uint64, configuration.Replication),
		state:         types.IDLE,
		context:       ctx,
		cancel:        cancel,
	}

	if configuration.LocalID == configuration.BootstrapID {
		p.token = &types.Token{
			LN: make([]uint64, configuration.Replication),
			Q:  nil,
		}
	}

	p.invoker.Spawn(p.poll)
	return p, nil
}

// poll is the single dispatch goroutine: it is the only reader of the
// transport's delivery channel, so handler work is naturally serialized
// with respect to message arrival order (per-sender). Handlers that must
// block (request_cs's own condvar wait, reentered from the PULSE handler)
// are spawned off this goroutine via p.invoker so the dispatch loop is
// never stalled (§5 deadlock avoidance).
func (p *Peer) poll() {
	defer p.log.Debugf("peer %d dispatch loop exiting", p.id)
	for {
		select {
		case <-p.context.Done():
			return
		case message, ok := <-p.transport.Listen():
			if !ok {
				return
			}
			p.dispatch(message)
		}
	}
}

// dispatch routes an inbound message by type. It runs on the dispatch
// goroutine and must do O(N) work at most per message.
//
// A message whose sender advertises an incompatible protocol version is
// rejected before it reaches any handler, mirroring the teacher's
// checkRPCHeader gate on every inbound RPC.
func (p *Peer) dispatch(message types.Message) {
	if message.Version != "" && !p.configuration.Compatible(message.Version) {
		p.log.Warnf("peer %d rejecting message from %d: incompatible protocol version %q (local %q)",
			p.id, message.Pid, message.Version, p.configuration.ProtocolVersion)
		return
	}

	switch message.Type {
	case types.REQUEST:
		p.handleRequest(message)
	case types.TOKEN:
		p.handleToken(message)
	case types.PULSE:
		p.handlePulse(message)
	case types.SET:
		p.handleSet(message)
	default:
		p.log.Warnf("peer %d received unknown message type %v", p.id, message.Type)
	}
}

// Stop cancels the dispatch loop, closes the transport and waits for all
// invoker-spawned goroutines to drain.
func (p *Peer) Stop() {
	p.cancel()
	if err := p.transport.Close(); err != nil {
		p.log.Errorf("peer %d failed closing transport: %v", p.id, err)
	}
	p.invoker.Stop()
}

// Snapshot is a point-in-time, lock-protected view of a peer's protocol
// state, used by property-based tests (§8) to assert on RN/LN
// monotonicity, queue hygiene and state-machine invariants without
// racing the dispatch goroutine.
type Snapshot struct {
	State    types.State
	HasToken bool
	TokenLN  []uint64
	TokenQ   []types.PeerID
	RN       []uint64
}

// Snapshot returns the peer's current protocol state.
func (p *Peer) Snapshot() Snapshot {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	rn := make([]uint64, len(p.rn))
	copy(rn, p.rn)

	s := Snapshot{State: p.state, RN: rn}
	if p.token != nil {
		s.HasToken = true
		s.TokenLN = append([]uint64(nil), p.token.LN...)
		s.TokenQ = append([]types.PeerID(nil), p.token.Q...)
	}
	return s
}

// Debugf traces an application-level message through this peer's logger.
func (p *Peer) Debugf(format string, args ...interface{}) {
	p.log.Debugf(format, args...)
}

// publish is a small helper every handler uses to broadcast, logging and
// swallowing the error per §7: transport faults are fatal to the group,
// not recoverable by a single send-site retry. Every outbound message is
// stamped with this peer's protocol version so dispatch can gate on it.
func (p *Peer) publish(message types.Message) {
	message.Pid = p.id
	message.Version = p.configuration.ProtocolVersion
	if err := p.transport.Publish(p.context, message); err != nil {
		p.log.Errorf("peer %d failed publishing %v message: %v", p.id, message.Type, err)
	}
}

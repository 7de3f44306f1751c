package core

import "github.com/kasami/monitor/pkg/monitor/types"

// Wait implements the public wait operation (§4.4): callable only while
// holding the CS. It performs the full leave_cs transition — releasing
// the token — then moves to IN_CS_WAITING and suspends on the condition
// variable until some PULSE wakes it and re-acquires the CS on its
// behalf.
func (p *Peer) Wait() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.state != types.IN_CS {
		p.log.Debugf("peer %d called wait outside cs, no-op", p.id)
		return
	}

	p.leaveCSLocked()
	p.state = types.IN_CS_WAITING

	// Wait for the full round trip back into the critical section, not
	// merely for the first transition out of IN_CS_WAITING: handlePulse's
	// reacquire only moves the state to WAITING_FOR_CS, it does not itself
	// grant the token, so returning as soon as IN_CS_WAITING is left would
	// hand control back before the CS is actually held again.
	for p.state != types.IN_CS {
		p.cond.Wait()
	}
}

// Pulse implements pulse(j): broadcasts a PULSE targeted at peer j.
func (p *Peer) Pulse(target types.PeerID) {
	p.publish(types.Message{Type: types.PULSE, Recipient: &target})
}

// PulseAll implements pulse_all: broadcasts an untargeted PULSE that
// every peer treats as addressed to it.
func (p *Peer) PulseAll() {
	p.publish(types.Message{Type: types.PULSE})
}

// handlePulse processes an inbound PULSE (§4.4). A message with a nil
// Recipient is a broadcast pulse that every peer matches.
//
// Per the deadlock-avoidance requirement (§5/§9), only the state check
// happens here on the dispatch goroutine; the whole of request_cs (its
// state transition, its REQUEST broadcast and its suspension on the
// condition variable) runs on a goroutine handed to the invoker, so this
// handler returns immediately and never stalls delivery of the TOKEN
// that would unblock it.
func (p *Peer) handlePulse(message types.Message) {
	if !message.RecipientIs(p.id) {
		return
	}

	p.mutex.Lock()
	p.cond.Broadcast()
	shouldReacquire := p.state == types.IN_CS_WAITING
	p.mutex.Unlock()

	if shouldReacquire {
		p.invoker.Spawn(p.RequestCS)
	}
}

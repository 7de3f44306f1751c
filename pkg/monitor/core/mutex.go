package core

import "github.com/kasami/monitor/pkg/monitor/types"

// RequestCS implements the public request_cs operation (§4.3).
//
// Re-entry from IN_CS and duplicate requests from WAITING_FOR_CS are
// silently rejected. Otherwise the peer moves to WAITING_FOR_CS; if it
// already holds the token it enters immediately, else it bumps its own
// request number, broadcasts REQUEST and blocks on the condition
// variable until a TOKEN delivery signals entry.
func (p *Peer) RequestCS() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.requestCSLocked()
}

// requestCSLocked is the body of RequestCS, run with the lock held. The
// PULSE handler does not call it directly; it spawns RequestCS instead.
func (p *Peer) requestCSLocked() {
	switch p.state {
	case types.IN_CS:
		p.log.Debugf("peer %d already in cs", p.id)
		return
	case types.WAITING_FOR_CS:
		p.log.Debugf("peer %d already waiting for cs", p.id)
		return
	}

	p.state = types.WAITING_FOR_CS
	// Broadcast the transition so every goroutine parked on the condition
	// variable re-checks its predicate (§5 predicate loop). Wait's loop,
	// which only returns once the state is IN_CS again, goes back to sleep.
	p.cond.Broadcast()
	if p.token != nil {
		p.enterCSLocked()
		return
	}

	p.rn[p.id]++
	sn := p.rn[p.id]
	p.log.Debugf("peer %d sending REQUEST sn=%d", p.id, sn)

	// publish must not be called while blocked on p.cond.Wait below, but
	// it is safe here: Wait releases the lock for the duration of the
	// suspension, so publishing first (still under lock) then waiting
	// preserves the happens-before relationship the protocol needs.
	p.publish(types.Message{Type: types.REQUEST, Sn: sn})

	for p.state == types.WAITING_FOR_CS {
		p.cond.Wait()
	}
}

// enterCSLocked is the internal enter_cs transition. Precondition: token
// present, lock held. Signals under the lock and re-checks state after
// wake, rather than relying on a single signal-consumes-wait (§9).
func (p *Peer) enterCSLocked() {
	if p.token == nil {
		p.log.Debugf("peer %d cannot enter cs without token", p.id)
		return
	}
	p.state = types.IN_CS
	p.cond.Broadcast()
}

// LeaveCS implements the public leave_cs operation (§4.3).
func (p *Peer) LeaveCS() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.leaveCSLocked()
}

// leaveCSLocked is the body of LeaveCS, also used by Wait (§4.4), which
// releases the token as part of its own transition.
func (p *Peer) leaveCSLocked() {
	if p.state != types.IN_CS || p.token == nil {
		p.log.Debugf("peer %d not in cs or has no token, leave_cs is a no-op", p.id)
		return
	}

	p.state = types.IDLE
	p.token.LN[p.id] = p.rn[p.id]

	for j := 0; j < p.configuration.Replication; j++ {
		jid := types.PeerID(j)
		if p.token.Contains(jid) {
			continue
		}
		if p.rn[j] == p.token.LN[j]+1 {
			p.token.Q = append(p.token.Q, jid)
		}
	}

	if len(p.token.Q) > 0 {
		next := p.token.Q[0]
		p.token.Q = p.token.Q[1:]
		toSend := p.token
		p.token = nil
		p.log.Debugf("peer %d forwarding token to %d", p.id, next)
		recipient := next
		p.publish(types.Message{Type: types.TOKEN, Token: toSend.Clone(), Recipient: &recipient})
	}
}

// handleRequest processes an inbound REQUEST from peer j (§4.3). The
// transport delivers every peer's own broadcasts back to itself, so
// self-requests are filtered out here per the self-delivery rule (§9).
func (p *Peer) handleRequest(message types.Message) {
	if message.Pid == p.id {
		return
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	j := message.Pid
	sn := message.Sn

	if sn > p.rn[j] {
		p.rn[j] = sn
	} else if sn < p.rn[j] {
		p.log.Debugf("peer %d dropping stale REQUEST sn=%d from %d (have %d)", p.id, sn, j, p.rn[j])
		return
	}

	if p.token != nil && p.state != types.IN_CS && p.rn[j] == p.token.LN[j]+1 {
		toSend := p.token
		p.token = nil
		recipient := j
		p.log.Debugf("peer %d granting token to %d", p.id, j)
		p.publish(types.Message{Type: types.TOKEN, Token: toSend.Clone(), Recipient: &recipient})
	}
}

// handleToken processes an inbound TOKEN (§4.3). Messages not addressed
// to this peer are ignored.
func (p *Peer) handleToken(message types.Message) {
	if message.Recipient == nil || *message.Recipient != p.id {
		return
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.log.Debugf("peer %d installing token from %d", p.id, message.Pid)
	p.token = message.Token.Clone()
	p.enterCSLocked()
}

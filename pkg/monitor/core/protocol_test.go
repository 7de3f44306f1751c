package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/kasami/monitor/internal/membus"
	"github.com/kasami/monitor/pkg/monitor/core"
	"github.com/kasami/monitor/pkg/monitor/definition"
	"github.com/kasami/monitor/pkg/monitor/types"
)

func newTestPeer(t *testing.T, bus *membus.Bus, n int, id types.PeerID) *core.Peer {
	t.Helper()
	configuration := types.DefaultConfiguration("test", n, id)
	transport := bus.Subscribe()
	peer, err := core.NewPeerWithTransport(configuration, transport, definition.NewDefaultLogger())
	if err != nil {
		t.Fatalf("failed creating peer %d: %v", id, err)
	}
	return peer
}

func waitForState(t *testing.T, peer *core.Peer, want types.State, timeout time.Duration) core.Snapshot {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		snap := peer.Snapshot()
		if snap.State == want {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("peer never reached state %v, last snapshot: %+v", want, peer.Snapshot())
	return core.Snapshot{}
}

// Scenario 1: two peers, bootstrap contention (§8).
func TestScenario_BootstrapContention(t *testing.T) {
	bus := membus.New()
	peer0 := newTestPeer(t, bus, 2, 0)
	peer1 := newTestPeer(t, bus, 2, 1)
	defer peer0.Stop()
	defer peer1.Stop()

	done := make(chan struct{})
	go func() {
		peer1.RequestCS()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("peer1 never entered the cs")
	}

	snap := peer1.Snapshot()
	if snap.State != types.IN_CS {
		t.Fatalf("expected peer1 in IN_CS, got %v", snap.State)
	}
	if !snap.HasToken {
		t.Fatalf("expected peer1 to hold the token")
	}
	if snap.RN[1] != 1 {
		t.Fatalf("expected peer1 RN=[_,1], got %v", snap.RN)
	}

	peer1.LeaveCS()
	snap = peer1.Snapshot()
	// peer1 retains the token since nobody else is waiting.
	if !snap.HasToken {
		t.Fatalf("expected peer1 to retain the token with no other waiters")
	}
	if snap.TokenLN[1] != 1 {
		t.Fatalf("expected token.LN=[0,1] after leave_cs, got %v", snap.TokenLN)
	}
}

// Scenario 2: FIFO ordering under contention (§8). N=3, peer0 holds the
// token and is in the CS; peers 1 and 2 request in that order. Peer 1
// must enter before peer 2, honoring the ascending-id tie-break.
func TestScenario_FIFOUnderContention(t *testing.T) {
	bus := membus.New()
	peer0 := newTestPeer(t, bus, 3, 0)
	peer1 := newTestPeer(t, bus, 3, 1)
	peer2 := newTestPeer(t, bus, 3, 2)
	defer peer0.Stop()
	defer peer1.Stop()
	defer peer2.Stop()

	peer0.RequestCS() // bypass, already holds token

	go peer1.RequestCS()
	go peer2.RequestCS()

	// Give both REQUESTs time to land on peer0 before it leaves the CS.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := peer0.Snapshot()
		if snap.RN[1] == 1 && snap.RN[2] == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	peer0.LeaveCS()

	waitForState(t, peer1, types.IN_CS, 2*time.Second)
	if peer2.Snapshot().State == types.IN_CS {
		t.Fatalf("peer2 must not enter before peer1")
	}

	peer1.LeaveCS()
	waitForState(t, peer2, types.IN_CS, 2*time.Second)
}

// Scenario 5: a stale REQUEST must never roll RN backwards, and must
// never trigger a grant (§7, §8).
func TestScenario_StaleRequestDropped(t *testing.T) {
	bus := membus.New()
	holder := newTestPeer(t, bus, 3, 0)
	defer holder.Stop()

	injector := bus.Subscribe()
	send := func(sn uint64) {
		_ = injector.Publish(context.Background(), types.Message{
			Pid:  2,
			Type: types.REQUEST,
			Sn:   sn,
		})
	}

	send(5)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && holder.Snapshot().RN[2] != 5 {
		time.Sleep(time.Millisecond)
	}
	if got := holder.Snapshot().RN[2]; got != 5 {
		t.Fatalf("expected RN[2]=5, got %d", got)
	}

	send(3) // stale, must be dropped
	time.Sleep(20 * time.Millisecond)
	if got := holder.Snapshot().RN[2]; got != 5 {
		t.Fatalf("stale REQUEST must not roll RN back, got RN[2]=%d", got)
	}
}

// An inbound message advertising an incompatible major protocol version
// must never reach a handler: RN stays untouched and no TOKEN is granted.
func TestScenario_IncompatibleVersionRejected(t *testing.T) {
	bus := membus.New()
	holder := newTestPeer(t, bus, 2, 0)
	defer holder.Stop()

	injector := bus.Subscribe()
	_ = injector.Publish(context.Background(), types.Message{
		Pid:     1,
		Type:    types.REQUEST,
		Sn:      1,
		Version: "2.0.0",
	})

	time.Sleep(20 * time.Millisecond)
	if got := holder.Snapshot().RN[1]; got != 0 {
		t.Fatalf("expected incompatible-version REQUEST to be dropped before updating RN, got RN[1]=%d", got)
	}

	_ = injector.Publish(context.Background(), types.Message{
		Pid:     1,
		Type:    types.REQUEST,
		Sn:      1,
		Version: "1.4.0",
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && holder.Snapshot().RN[1] != 1 {
		time.Sleep(time.Millisecond)
	}
	if got := holder.Snapshot().RN[1]; got != 1 {
		t.Fatalf("expected compatible-version REQUEST (same major) to be accepted, got RN[1]=%d", got)
	}
}

// Queue hygiene (§8 property 6): a token's Q never holds duplicates.
func TestProperty_QueueHasNoDuplicates(t *testing.T) {
	bus := membus.New()
	peer0 := newTestPeer(t, bus, 3, 0)
	peer1 := newTestPeer(t, bus, 3, 1)
	peer2 := newTestPeer(t, bus, 3, 2)
	defer peer0.Stop()
	defer peer1.Stop()
	defer peer2.Stop()

	peer0.RequestCS()
	go peer1.RequestCS()
	go peer2.RequestCS()
	time.Sleep(50 * time.Millisecond)

	peer0.LeaveCS()
	seen := map[types.PeerID]bool{}
	for _, id := range peer0.Snapshot().TokenQ {
		if seen[id] {
			t.Fatalf("duplicate id %d in token queue", id)
		}
		seen[id] = true
	}
}

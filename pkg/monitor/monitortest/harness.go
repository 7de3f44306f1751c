// Package monitortest provides a deterministic, in-process cluster
// harness for exercising the monitor protocol without a real relt
// exchange, mirroring the split the teacher draws between its
// production ReliableTransport and its own test package's cluster
// builder (test/testing.go's CreateCluster/UnityCluster).
package monitortest

import (
	"time"

	"github.com/kasami/monitor/internal/membus"
	"github.com/kasami/monitor/pkg/monitor"
	"github.com/kasami/monitor/pkg/monitor/types"
)

// Cluster is a fixed-size group of peers sharing one in-memory bus.
type Cluster struct {
	Peers []*monitor.Monitor
	bus   *membus.Bus
}

// NewCluster boots n peers against a shared in-memory bus, peer 0
// conventionally holding the token at birth, and a short settling
// interval so datum-propagation tests run quickly.
func NewCluster(n int) *Cluster {
	return NewClusterWithSettling(n, 5*time.Millisecond)
}

// NewClusterWithSettling is NewCluster with an explicit settling
// interval, for tests that need to observe the pre-settling window.
func NewClusterWithSettling(n int, settling time.Duration) *Cluster {
	bus := membus.New()
	cluster := &Cluster{bus: bus}

	for i := 0; i < n; i++ {
		configuration := types.DefaultConfiguration("test-group", n, types.PeerID(i))
		configuration.SettlingInterval = settling
		transport := bus.Subscribe()
		m, err := monitor.NewWithTransport(configuration, transport)
		if err != nil {
			panic(err)
		}
		cluster.Peers = append(cluster.Peers, m)
	}

	return cluster
}

// Shutdown stops every peer in the cluster.
func (c *Cluster) Shutdown() {
	for _, peer := range c.Peers {
		peer.Stop()
	}
}

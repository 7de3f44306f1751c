package types

import (
	"time"

	"github.com/hashicorp/go-version"
)

// DefaultProtocolVersion is the version advertised by this build of the
// monitor. Peers built against a different major version refuse each
// other's messages (see Configuration.Compatible).
const DefaultProtocolVersion = "1.0.0"

// DefaultSettlingInterval is the delay set() waits out after broadcasting,
// matching the original monitor's 100ms setter_delay.
const DefaultSettlingInterval = 100 * time.Millisecond

// Configuration holds the group-wide parameters every peer boots with.
// N (Replication) and BootstrapID are fixed for the lifetime of the group;
// dynamic membership is out of scope.
type Configuration struct {
	// Replication is N, the fixed group size.
	Replication int

	// LocalID is this peer's id, in [0, N).
	LocalID PeerID

	// BootstrapID is the peer born holding the token. Conventionally 0.
	BootstrapID PeerID

	// GroupAddress is the shared fanout exchange name every peer binds to.
	GroupAddress string

	// SettlingInterval is how long Set() blocks after broadcasting, giving
	// receivers a chance to apply the update before the caller leaves the CS.
	SettlingInterval time.Duration

	// ProtocolVersion is this peer's semantic version string, compared
	// against an inbound message's sender version with Compatible.
	ProtocolVersion string

	// Logger is used for all leveled logging. Defaults to definition.NewDefaultLogger().
	Logger Logger
}

// Compatible reports whether a peer advertising remoteVersion may be
// talked to by this peer, using semantic version comparison: a peer is
// compatible with another sharing the same major version, and a newer
// minor/patch never blocks an older one. Malformed versions are treated
// as incompatible rather than panicking.
func (c *Configuration) Compatible(remoteVersion string) bool {
	local, err := version.NewVersion(c.ProtocolVersion)
	if err != nil {
		return false
	}
	remote, err := version.NewVersion(remoteVersion)
	if err != nil {
		return false
	}
	return local.Segments()[0] == remote.Segments()[0]
}

// DefaultConfiguration returns a Configuration for a group of the given
// size, with this peer at localID, id 0 as the conventional bootstrap and
// a default settling interval. Logger is left nil; monitor.New and
// monitor.NewWithTransport fill in a default logger when it is unset.
func DefaultConfiguration(groupAddress string, replication int, localID PeerID) *Configuration {
	return &Configuration{
		Replication:      replication,
		LocalID:          localID,
		BootstrapID:      0,
		GroupAddress:     groupAddress,
		SettlingInterval: DefaultSettlingInterval,
		ProtocolVersion:  DefaultProtocolVersion,
	}
}

// Package packetio defines the boundary between the DUAL finite state
// machine and the outside world: the wire-level constants a session
// runs with, the envelope a received packet is turned into before it
// reaches the FSM, and the two collaborator interfaces (PacketLayer,
// RouteInstaller) the FSM calls out to instead of touching a socket or
// a RIB directly.
package packetio

import (
	"net/netip"
	"time"

	"github.com/eigrpd/eigrpd/metric"
	"github.com/eigrpd/eigrpd/neighbor"
	"github.com/eigrpd/eigrpd/topology"
)

// IPProtocolNumber is EIGRP's assigned IP protocol number.
const IPProtocolNumber = 88

// MulticastGroup is the all-EIGRP-routers multicast address packets
// are sent to on multi-access links.
var MulticastGroup = netip.MustParseAddr("224.0.0.10")

// Default hello/hold intervals: the first pair for multi-access and
// point-to-point links, the NBMA pair for NBMA links.
const (
	DefaultHelloInterval = 5 * time.Second
	DefaultHoldInterval  = 15 * time.Second

	DefaultHelloIntervalNBMA = 60 * time.Second
	DefaultHoldIntervalNBMA  = 180 * time.Second
)

// Opcode is an EIGRP packet's operation code. Values match the wire
// encoding except OpcodeInternal, which never appears on the wire: it
// tags an ActionMessage synthesized locally (a redistributed or
// statically configured prefix) rather than one decoded from a
// received packet.
type Opcode uint8

const (
	OpcodeInternal Opcode = 0
	OpcodeUpdate   Opcode = 1
	OpcodeRequest  Opcode = 2
	OpcodeQuery    Opcode = 3
	OpcodeReply    Opcode = 4
	OpcodeHello    Opcode = 5
	OpcodeProbe    Opcode = 7
	OpcodeSIAQuery Opcode = 10
	OpcodeSIAReply Opcode = 11
)

func (o Opcode) String() string {
	switch o {
	case OpcodeInternal:
		return "INTERNAL"
	case OpcodeUpdate:
		return "UPDATE"
	case OpcodeRequest:
		return "REQUEST"
	case OpcodeQuery:
		return "QUERY"
	case OpcodeReply:
		return "REPLY"
	case OpcodeHello:
		return "HELLO"
	case OpcodeProbe:
		return "PROBE"
	case OpcodeSIAQuery:
		return "SIA-QUERY"
	case OpcodeSIAReply:
		return "SIA-REPLY"
	default:
		return "UNKNOWN"
	}
}

// ActionMessage is the envelope the FSM consumes for one event. It
// carries everything a classifier and an action function need: which
// prefix and candidate entry are affected, which neighbor and packet
// triggered it, and the inputs UpdateDistance needs to fold the
// advertisement in. PacketType is OpcodeInternal for a locally
// originated prefix, where AdvRouter is the zero value, Link is
// neighbor.LocalLink, and there is no neighbor to attribute the
// change to.
type ActionMessage struct {
	PacketType Opcode

	// AS is the autonomous system the triggering packet arrived on.
	AS uint32

	Prefix    *topology.Prefix
	AdvRouter neighbor.ID
	Link      neighbor.Link

	// IncomingMetric is the composite metric reported by AdvRouter for
	// Prefix.Destination. The classifier folds it into the entry for
	// every packet type, REPLY included; a zero value is taken as a
	// real metric, and the entry's previous ReportedMetric is never
	// carried over in its place.
	IncomingMetric metric.Composite

	// Entry is filled in by the dispatcher once the Neighbor-Entry for
	// AdvRouter has been located or created.
	Entry *topology.NeighborEntry
}

// PacketLayer is the outbound half of the wire protocol: DUAL calls
// these to emit packets instead of owning a socket. Implementations
// are expected to actually transmit asynchronously; the FSM never
// blocks waiting on a reply.
type PacketLayer interface {
	// SendReply answers a QUERY from to about prefix's current metric.
	SendReply(to neighbor.ID, prefix *topology.Prefix) error
	// SendQuery fans a QUERY for prefix out to every neighbor in
	// prefix.Rij (populated by the caller before invoking this), other
	// than exclude. exclude is the neighbor whose own message started
	// this round (so re-querying it back would be pointless), or the
	// zero neighbor.ID for a locally triggered search with nothing to
	// exclude.
	SendQuery(prefix *topology.Prefix, exclude neighbor.ID) error
	// SendUpdate advertises prefix's current metric to every up
	// neighbor other than exclude, the neighbor the route was learned
	// from (split horizon), or the zero neighbor.ID if none applies.
	SendUpdate(prefix *topology.Prefix, exclude neighbor.ID) error
}

// RouteInstaller is the forwarding-plane half: DUAL calls these
// whenever a prefix's successor set changes, never touching the RIB
// directly.
type RouteInstaller interface {
	InstallRoute(prefix *topology.Prefix) error
	RemoveRoute(dest netip.Prefix) error
}

// Package neighbor implements the adjacency table DUAL reads link
// metrics from. Adjacency bring-up (hello/hold negotiation, reliable
// transport) lives in the packet layer, not here; this package owns
// only what DUAL is visible to: a neighbor's identity, its outbound
// interface link metric, and its negotiated hello/hold intervals. The
// hold timer itself, whose expiry leads to the "neighbor down" event
// that cascades into the topology table and FSM, runs in the packet
// layer.
package neighbor

import (
	"math"
	"net/netip"
	"sync"
	"time"

	"github.com/eigrpd/eigrpd/metric"
)

// ID identifies a neighbor for tie-breaking and rij membership. A
// Neighbor-Entry holds this ID rather than a pointer to its
// Neighbor — a weak handle, not a back-pointer, so the two tables
// stay independently owned. ID 0 is reserved: no real neighbor is
// ever assigned it, so it doubles as "no neighbor" for a locally
// originated Neighbor-Entry and as the zero-value exclusion in
// packetio.PacketLayer.
type ID uint32

// Interface is the local outbound interface DUAL composes a
// neighbor's reported metric against. One interface may carry many
// neighbors; the link metric belongs to the interface, not to any one
// neighbor.
type Interface struct {
	Name string
	// LinkMetric is composed with a neighbor's reported metric to
	// produce that neighbor's total metric and distance.
	LinkMetric Link
}

// Link is the composite metric of the local outbound interface,
// expressed with the same six EIGRP fields DUAL composes.
type Link struct {
	Bandwidth   uint32
	Delay       uint32
	Reliability uint8
	Load        uint8
	MTU         uint32
}

// LocalLink is the neutral element composed against a locally
// originated prefix's metric (redistributed or statically assigned
// rather than learned from a neighbor): every field is chosen so
// metric.Compose leaves the originated metric untouched other than
// the usual hop-count increment.
var LocalLink = Link{
	Bandwidth:   math.MaxUint32,
	Delay:       0,
	Reliability: 255,
	Load:        0,
	MTU:         math.MaxUint32,
}

// AsComposite converts a link's metric into the composite shape
// metric.Compose expects, with a zero hop-count: the link itself has
// not yet traversed any hop, it's only ever composed against an
// already-hop-counted neighbor report (metric.Compose increments hop
// count from the nbr argument, not the link argument).
func (l Link) AsComposite() metric.Composite {
	return metric.Composite{
		Bandwidth:   l.Bandwidth,
		Delay:       l.Delay,
		Reliability: l.Reliability,
		Load:        l.Load,
		MTU:         l.MTU,
	}
}

// Neighbor is one EIGRP adjacency.
type Neighbor struct {
	ID        ID
	Addr      netip.Addr
	Interface *Interface

	// HelloInterval and HoldInterval are what this adjacency was
	// negotiated with; the packet layer owns the timers themselves.
	HelloInterval time.Duration
	HoldInterval  time.Duration
}

// New creates a Neighbor on the given interface.
func New(id ID, addr netip.Addr, iface *Interface, hello, hold time.Duration) *Neighbor {
	return &Neighbor{
		ID:            id,
		Addr:          addr,
		Interface:     iface,
		HelloInterval: hello,
		HoldInterval:  hold,
	}
}

// Table is the adjacency table: all currently-up neighbors, keyed by
// ID. Exclusive owner of Neighbor values, mirroring the topology
// table's ownership of its own Prefix-Entry/Neighbor-Entry values.
type Table struct {
	mu        sync.RWMutex
	neighbors map[ID]*Neighbor
}

// NewTable creates an empty adjacency table.
func NewTable() *Table {
	return &Table{neighbors: make(map[ID]*Neighbor)}
}

// Add registers a neighbor, replacing any prior entry with the same ID.
func (t *Table) Add(n *Neighbor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.neighbors[n.ID] = n
}

// Remove tears down a neighbor and reports whether it was present.
// Callers are responsible for cascading the removal into the topology
// table (deleting its Neighbor-Entries) and the FSM (synthesizing
// last-reply events on any prefix awaiting its reply) — see
// eigrpd.Daemon.NeighborDown.
func (t *Table) Remove(id ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.neighbors[id]; !ok {
		return false
	}
	delete(t.neighbors, id)
	return true
}

// Get looks up a neighbor by ID.
func (t *Table) Get(id ID) (*Neighbor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.neighbors[id]
	return n, ok
}

// Count returns the number of currently-up neighbors. DUAL itself
// walks the table with All when seeding Rij; Count feeds eigrpd's
// neighbor gauge.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.neighbors)
}

// All calls f for every neighbor currently up. f must not mutate the
// table.
func (t *Table) All(f func(*Neighbor)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, n := range t.neighbors {
		f(n)
	}
}

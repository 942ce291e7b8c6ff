package topology

import (
	"github.com/eigrpd/eigrpd/metric"
	"github.com/eigrpd/eigrpd/neighbor"
)

// EntryFlag is the Neighbor-Entry flags bitset.
type EntryFlag uint8

const (
	// FlagSuccessor marks an entry selected for forwarding.
	FlagSuccessor EntryFlag = 1 << iota
	// FlagFeasibleSuccessor marks an entry that satisfies the
	// feasibility condition, whether or not it was also selected as a
	// successor.
	FlagFeasibleSuccessor
)

// NeighborEntry is one candidate route for a Prefix through a single
// advertising neighbor. It holds a weak handle (ID) to its Neighbor
// rather than a pointer: the Prefix owns the entry, the adjacency
// table owns the Neighbor.
type NeighborEntry struct {
	AdvRouter neighbor.ID

	// ReportedMetric/ReportedDistance are what the neighbor
	// advertised for this destination.
	ReportedMetric   metric.Composite
	ReportedDistance uint32

	// TotalMetric/Distance are ReportedMetric/ReportedDistance
	// composed with this router's outbound link metric to AdvRouter.
	TotalMetric metric.Composite
	Distance    uint32

	Flags EntryFlag
}

// Successor reports whether this entry is currently a successor.
func (e *NeighborEntry) Successor() bool {
	return e.Flags&FlagSuccessor != 0
}

// FeasibleSuccessor reports whether this entry satisfies the
// feasibility condition (whether or not it was chosen as a successor).
func (e *NeighborEntry) FeasibleSuccessor() bool {
	return e.Flags&FlagFeasibleSuccessor != 0
}

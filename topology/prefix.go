package topology

import (
	"net/netip"
	"sort"

	"github.com/eigrpd/eigrpd/metric"
	"github.com/eigrpd/eigrpd/neighbor"
)

// State is one of the five DUAL states.
type State uint8

const (
	Passive State = iota
	Active0
	Active1
	Active2
	Active3
)

func (s State) String() string {
	switch s {
	case Passive:
		return "PASSIVE"
	case Active0:
		return "ACTIVE_0"
	case Active1:
		return "ACTIVE_1"
	case Active2:
		return "ACTIVE_2"
	case Active3:
		return "ACTIVE_3"
	default:
		return "UNKNOWN"
	}
}

// Active reports whether s is any of the four active sub-states.
func (s State) Active() bool {
	return s != Passive
}

// ReqFlag is the Prefix-Entry's outbound-action bitset.
type ReqFlag uint8

const (
	NeedUpdate ReqFlag = 1 << iota
	NeedQuery
)

// Prefix is one destination's Prefix-Entry. The zero value is not
// valid; use NewPrefix.
type Prefix struct {
	Destination netip.Prefix

	State State

	// FDistance is the feasible distance the feasibility condition is
	// checked against. It is set to the best entry's Distance on going
	// active, on lr, and when keep-state sees a Passive prefix's best
	// metric change (so it can rise while Passive); lr_fcs only lowers
	// it.
	FDistance uint32
	// Distance is the current best entry's Distance.
	Distance uint32
	// RDistance is the distance this router reports to its peers.
	RDistance uint32
	// ReportedMetric is the composite metric this router reports to
	// its peers (the current successor's TotalMetric).
	ReportedMetric metric.Composite

	// Entries is kept sorted ascending by Distance, ties broken by
	// AdvRouter ascending.
	Entries []*NeighborEntry

	// Rij is the set of neighbors a REPLY is still outstanding from.
	// Non-empty iff State is one of the four active states.
	Rij map[neighbor.ID]struct{}

	ReqAction ReqFlag
}

// NewPrefix creates a Passive Prefix-Entry with no candidates and an
// infinite distance, ready to receive its first advertisement.
func NewPrefix(dest netip.Prefix) *Prefix {
	return &Prefix{
		Destination: dest,
		State:       Passive,
		FDistance:   metric.Infinity,
		Distance:    metric.Infinity,
		RDistance:   metric.Infinity,
		Rij:         make(map[neighbor.ID]struct{}),
	}
}

// Head returns the current best entry, or nil if there are none.
func (p *Prefix) Head() *NeighborEntry {
	if len(p.Entries) == 0 {
		return nil
	}
	return p.Entries[0]
}

// Empty reports whether the prefix carries no candidate routes and is
// therefore eligible for destruction once Passive.
func (p *Prefix) Empty() bool {
	return len(p.Entries) == 0
}

// entryFor returns the existing entry for advRouter, or nil.
func (p *Prefix) entryFor(advRouter neighbor.ID) *NeighborEntry {
	for _, e := range p.Entries {
		if e.AdvRouter == advRouter {
			return e
		}
	}
	return nil
}

// sortEntries re-sorts Entries ascending by Distance, ties broken by
// AdvRouter ascending, so that ordering is deterministic across runs.
func (p *Prefix) sortEntries() {
	sort.SliceStable(p.Entries, func(i, j int) bool {
		a, b := p.Entries[i], p.Entries[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.AdvRouter < b.AdvRouter
	})
}

// removeEntry deletes the entry for advRouter, if present, and
// reports whether one was removed. Used when a neighbor withdraws a
// prefix (reported metric Infinity) or is torn down.
func (p *Prefix) removeEntry(advRouter neighbor.ID) bool {
	for i, e := range p.Entries {
		if e.AdvRouter == advRouter {
			p.Entries = append(p.Entries[:i], p.Entries[i+1:]...)
			return true
		}
	}
	return false
}

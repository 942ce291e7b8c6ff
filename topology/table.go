// Package topology owns the topology table: the per-destination
// Prefix-Entries and their candidate Neighbor-Entries, the central
// update_distance mutation, successor selection, and node-flag
// maintenance.
package topology

import (
	"errors"
	"net/netip"

	"github.com/gaissmai/bart"

	"github.com/eigrpd/eigrpd/metric"
	"github.com/eigrpd/eigrpd/neighbor"
)

// ErrExists is returned by Insert when the prefix is already present.
var ErrExists = errors.New("topology: prefix already present")

// Config parameterizes node-flag computation: the K-values used to
// derive scalar distances, the unequal-cost variance multiplier, and
// the maximum number of successors installed for one prefix.
type Config struct {
	K        metric.KValues
	Variance uint32
	MaxPaths int
}

// DefaultConfig matches the wire-level EIGRP defaults: classic
// K-values, equal-cost only (variance 1), up to 4 paths.
var DefaultConfig = Config{
	K:        metric.DefaultKValues,
	Variance: 1,
	MaxPaths: 4,
}

// Table is the topology table: a mapping from IPv4 prefix to
// Prefix-Entry, backed by github.com/gaissmai/bart for exact-match
// storage.
type Table struct {
	store bart.Table[*Prefix]
	cfg   Config
}

// New creates an empty topology table with cfg. A zero Config has
// all-zero K-values (every finite distance computes to 0) and Variance
// 0 (only zero-distance entries can be successors), so callers should
// pass DefaultConfig unless overriding deliberately.
func New(cfg Config) *Table {
	return &Table{cfg: cfg}
}

// Config returns the table's metric/selection configuration.
func (t *Table) Config() Config { return t.cfg }

// Lookup returns the Prefix-Entry for dest, if present.
func (t *Table) Lookup(dest netip.Prefix) (*Prefix, bool) {
	return t.store.Get(dest.Masked())
}

// Insert adds p, failing if dest is already present.
func (t *Table) Insert(p *Prefix) error {
	dest := p.Destination.Masked()
	if _, ok := t.store.Get(dest); ok {
		return ErrExists
	}
	t.store.Insert(dest, p)
	return nil
}

// Delete removes the Prefix-Entry for dest, if present.
func (t *Table) Delete(dest netip.Prefix) {
	t.store.Delete(dest.Masked())
}

// All calls f for every Prefix-Entry currently in the table. Iteration
// order is whatever bart.Table.All yields (unspecified); callers must
// not rely on any ordering between prefixes.
func (t *Table) All(f func(*Prefix) bool) {
	for _, p := range t.store.All() {
		if !f(p) {
			return
		}
	}
}

// Size returns the number of prefixes currently tracked.
func (t *Table) Size() int { return t.store.Size() }

// UpdateDistance is the central mutation used by the FSM: it locates
// or creates the Neighbor-Entry for advRouter, recomputes
// its reported/total metric and distance from incoming composed with
// link, re-sorts Entries, and recomputes p.Distance from the new
// head. It returns the (possibly newly created) entry and whether
// p.Distance strictly increased relative to its pre-call value — the
// "distance increase" signal the classifier consumes for event 4
// (DINC).
func (t *Table) UpdateDistance(p *Prefix, advRouter neighbor.ID, link neighbor.Link, incoming metric.Composite) (entry *NeighborEntry, increased bool) {
	before := p.Distance

	e := p.entryFor(advRouter)
	if e == nil {
		e = &NeighborEntry{AdvRouter: advRouter}
		p.Entries = append(p.Entries, e)
	}

	e.ReportedMetric = incoming
	e.ReportedDistance = metric.D(incoming, t.cfg.K)
	e.TotalMetric = metric.Compose(link.AsComposite(), incoming)
	e.Distance = metric.D(e.TotalMetric, t.cfg.K)

	if e.ReportedDistance == metric.Infinity {
		// A withdrawal: the neighbor no longer reaches this
		// destination at all, so the candidate is gone.
		p.removeEntry(advRouter)
	}

	p.sortEntries()

	if h := p.Head(); h != nil {
		p.Distance = h.Distance
	} else {
		p.Distance = metric.Infinity
	}

	return e, p.Distance > before
}

// Successors returns the entries currently flagged as successors, in
// ascending-distance order. Infeasible entries are skipped, so the
// result is not necessarily a leading run of Entries.
func (t *Table) Successors(p *Prefix) []*NeighborEntry {
	out := make([]*NeighborEntry, 0, len(p.Entries))
	for _, e := range p.Entries {
		if e.Successor() {
			out = append(out, e)
		}
	}
	return out
}

// UpdateNodeFlags recomputes SUCCESSOR/FSUCCESSOR on every entry from
// the current Entries, FDistance, Variance and MaxPaths. An entry is
// a candidate successor iff it is feasible
// (ReportedDistance < FDistance); among feasible candidates, those
// within Variance×(best feasible distance) are flagged SUCCESSOR, up
// to MaxPaths of them; any other feasible entries are flagged
// FSUCCESSOR only.
func (t *Table) UpdateNodeFlags(p *Prefix) {
	for _, e := range p.Entries {
		e.Flags = 0
	}

	var bestFeasible uint32
	foundFeasible := false
	for _, e := range p.Entries { // Entries is sorted ascending by Distance
		if metric.Feasible(e.ReportedDistance, p.FDistance) {
			bestFeasible = e.Distance
			foundFeasible = true
			break
		}
	}
	if !foundFeasible {
		return
	}

	successors := 0
	maxPaths := t.cfg.MaxPaths
	if maxPaths <= 0 {
		maxPaths = 1
	}
	for _, e := range p.Entries {
		if !metric.Feasible(e.ReportedDistance, p.FDistance) {
			continue
		}
		e.Flags |= FlagFeasibleSuccessor
		withinVariance := uint64(e.Distance) <= uint64(t.cfg.Variance)*uint64(bestFeasible)
		if withinVariance && successors < maxPaths {
			e.Flags |= FlagSuccessor
			successors++
		}
	}
}

// DeleteEntriesOfNeighbor removes advRouter's Neighbor-Entry from
// every Prefix-Entry in the table on neighbor teardown and drops it
// from every Rij, returning the prefixes that had an entry removed or
// were awaiting its reply so the caller can drive the FSM's
// last-reply synthesis on each.
func (t *Table) DeleteEntriesOfNeighbor(advRouter neighbor.ID) []*Prefix {
	var affected []*Prefix
	t.All(func(p *Prefix) bool {
		removed := p.removeEntry(advRouter)
		_, awaited := p.Rij[advRouter]
		if !removed && !awaited {
			return true
		}
		if removed {
			if h := p.Head(); h != nil {
				p.Distance = h.Distance
			} else {
				p.Distance = metric.Infinity
			}
		}
		delete(p.Rij, advRouter)
		affected = append(affected, p)
		return true
	})
	return affected
}

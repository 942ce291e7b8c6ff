// Package dual implements the DUAL finite state machine: the
// classifier that turns one arriving packet into one of eight events,
// the 5x8 transition table those events are dispatched through, and
// the eight action functions that mutate a Prefix-Entry and drive its
// collaborators.
package dual

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/eigrpd/eigrpd/metric"
	"github.com/eigrpd/eigrpd/neighbor"
	"github.com/eigrpd/eigrpd/packetio"
	"github.com/eigrpd/eigrpd/topology"
)

// Event is one of the eight inputs the transition table is indexed by.
type Event uint8

const (
	EventNQFCN     Event = iota // 0: non-query input, FC not satisfied
	EventLR                     // 1: last reply, FD reset
	EventQFCN                   // 2: query input, FC not satisfied
	EventLRFCS                  // 3: last reply, FC satisfied with current FD
	EventDINC                   // 4: distance increase while active
	EventQACT                   // 5: query from successor while active
	EventLRFCN                  // 6: last reply, FC not satisfied with current FD
	EventKeepState              // 7: state unchanged
	eventCount
)

func (e Event) String() string {
	switch e {
	case EventNQFCN:
		return "NQ_FCN"
	case EventLR:
		return "LR"
	case EventQFCN:
		return "Q_FCN"
	case EventLRFCS:
		return "LR_FCS"
	case EventDINC:
		return "DINC"
	case EventQACT:
		return "QACT"
	case EventLRFCN:
		return "LR_FCN"
	case EventKeepState:
		return "KEEP_STATE"
	default:
		return "UNKNOWN"
	}
}

// ChangeSink receives a prefix that needs its pending request actions
// (NeedUpdate/NeedQuery) drained into outbound packets. The dispatch
// package implements this; dual depends only on the interface so the
// two packages don't import one another.
type ChangeSink interface {
	MarkChanged(p *topology.Prefix)
}

// action is one cell of the transition table: a function of the
// dispatcher and the triggering message.
type action func(d *Dispatcher, msg *packetio.ActionMessage)

// table[state][event] is the DUAL transition table: most cells are
// keepState, and only the cells a real state change occurs for differ.
//
// Populated in init() rather than via a package-level composite
// literal: actionDINC's body calls Dispatch, which reads table,
// which the compiler's initialization-cycle check treats as a cycle
// when table's value comes directly from a var initializer.
var table [5][eventCount]action

func init() {
	table = [5][eventCount]action{
		topology.Passive: {
			EventNQFCN:     actionNQFCN,
			EventLR:        actionKeepState,
			EventQFCN:      actionQFCN,
			EventLRFCS:     actionKeepState,
			EventDINC:      actionKeepState,
			EventQACT:      actionKeepState,
			EventLRFCN:     actionKeepState,
			EventKeepState: actionKeepState,
		},
		topology.Active0: {
			EventNQFCN:     actionKeepState,
			EventLR:        actionKeepState,
			EventQFCN:      actionKeepState,
			EventLRFCS:     actionLRFCS,
			EventDINC:      actionKeepState,
			EventQACT:      actionQACT,
			EventLRFCN:     actionLRFCN,
			EventKeepState: actionKeepState,
		},
		topology.Active1: {
			EventNQFCN:     actionKeepState,
			EventLR:        actionLR,
			EventQFCN:      actionKeepState,
			EventLRFCS:     actionKeepState,
			EventDINC:      actionDINC,
			EventQACT:      actionQACT,
			EventLRFCN:     actionKeepState,
			EventKeepState: actionKeepState,
		},
		topology.Active2: {
			EventNQFCN:     actionKeepState,
			EventLR:        actionKeepState,
			EventQFCN:      actionKeepState,
			EventLRFCS:     actionLRFCS,
			EventDINC:      actionKeepState,
			EventQACT:      actionKeepState,
			EventLRFCN:     actionLRFCN,
			EventKeepState: actionKeepState,
		},
		topology.Active3: {
			EventNQFCN:     actionKeepState,
			EventLR:        actionLR,
			EventQFCN:      actionKeepState,
			EventLRFCS:     actionKeepState,
			EventDINC:      actionDINC,
			EventQACT:      actionKeepState,
			EventLRFCN:     actionKeepState,
			EventKeepState: actionKeepState,
		},
	}
}

// Dispatcher wires the transition table to its collaborators. The
// zero value is not valid; use New.
type Dispatcher struct {
	Table     *topology.Table
	Neighbors *neighbor.Table
	Packets   packetio.PacketLayer
	Routes    packetio.RouteInstaller
	Changes   ChangeSink

	log         *logrus.Entry
	transitions *prometheus.CounterVec
}

// New creates a Dispatcher. log may be nil, in which case a
// standalone logrus entry is used. metrics may be nil to skip
// instrumentation entirely (tests typically pass nil).
func New(topo *topology.Table, neighbors *neighbor.Table, packets packetio.PacketLayer, routes packetio.RouteInstaller, changes ChangeSink, log *logrus.Entry, transitions *prometheus.CounterVec) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		Table:       topo,
		Neighbors:   neighbors,
		Packets:     packets,
		Routes:      routes,
		Changes:     changes,
		log:         log,
		transitions: transitions,
	}
}

// Dispatch runs one packet through the classifier and the transition
// table.
func (d *Dispatcher) Dispatch(msg *packetio.ActionMessage) {
	state := msg.Prefix.State
	event := d.Classify(msg)

	d.log.WithFields(logrus.Fields{
		"as":          msg.AS,
		"destination": msg.Prefix.Destination,
		"state":       state,
		"event":       event,
	}).Debug("dual: dispatching event")

	if d.transitions != nil {
		d.transitions.WithLabelValues(state.String(), event.String()).Inc()
	}

	table[state][event](d, msg)
}

// bestSuccessor returns the cheapest currently-flagged successor, or
// the cheapest entry of any kind if none is flagged (no entry was
// feasible when flags were last computed). Flags are not recomputed
// while active, so the result can be a successor from before the
// search began rather than the current head.
func bestSuccessor(t *topology.Table, p *topology.Prefix) *topology.NeighborEntry {
	if s := t.Successors(p); len(s) > 0 {
		return s[0]
	}
	return p.Head()
}

// entryDistance returns e's Distance/TotalMetric, or Infinity/the zero
// metric if e is nil — the last candidate route can be withdrawn out
// from under a search, and every action that reads the current best
// entry must tolerate there being none left.
func entryDistance(e *topology.NeighborEntry) (uint32, metric.Composite) {
	if e == nil {
		return metric.Infinity, metric.Composite{}
	}
	return e.Distance, e.TotalMetric
}

// markChanged records that p has a pending request action and hands
// it to the change sink, if one is configured.
func (d *Dispatcher) markChanged(p *topology.Prefix) {
	if d.Changes != nil {
		d.Changes.MarkChanged(p)
	}
}

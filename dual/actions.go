package dual

import (
	"github.com/eigrpd/eigrpd/metric"
	"github.com/eigrpd/eigrpd/neighbor"
	"github.com/eigrpd/eigrpd/packetio"
	"github.com/eigrpd/eigrpd/topology"
)

// seedRij replaces prefix.Rij with one entry per currently-up
// neighbor other than exclude, the set of routers a search's replies
// are awaited from. exclude is the neighbor whose own message started
// this round of diffusion (querying it back would be pointless: it
// already told us what we need to know), or the zero neighbor.ID for
// a locally triggered search.
func (d *Dispatcher) seedRij(prefix *topology.Prefix, exclude neighbor.ID) {
	prefix.Rij = make(map[neighbor.ID]struct{})
	d.Neighbors.All(func(n *neighbor.Neighbor) {
		if n.ID == exclude {
			return
		}
		prefix.Rij[n.ID] = struct{}{}
	})
}

// goActiveFromPassive is the shared body of nq_fcn and q_fcn: a
// Passive prefix whose best entry no longer satisfies the feasibility
// condition. FDistance resets to the new best distance, a fresh
// search starts if there are neighbors to ask, or the search
// concludes immediately if there are none.
func (d *Dispatcher) goActiveFromPassive(msg *packetio.ActionMessage, state topology.State) {
	prefix := msg.Prefix
	dist, tm := entryDistance(prefix.Head())

	prefix.State = state
	prefix.FDistance = dist
	prefix.Distance = dist
	prefix.RDistance = dist
	prefix.ReportedMetric = tm

	d.seedRij(prefix, msg.AdvRouter)
	if len(prefix.Rij) > 0 {
		prefix.ReqAction |= topology.NeedQuery
		d.markChanged(prefix)
	} else {
		actionLR(d, msg)
	}
}

// actionNQFCN is event 0: a non-query input found the current best
// entry infeasible. Go active from Passive, remembering this wasn't
// triggered by the successor's own query (Active1).
func actionNQFCN(d *Dispatcher, msg *packetio.ActionMessage) {
	d.goActiveFromPassive(msg, topology.Active1)
}

// actionQFCN is event 2: a query found the current best entry
// infeasible. Go active, remembering it was a query (Active3) so the
// eventual last reply must itself be answered.
func actionQFCN(d *Dispatcher, msg *packetio.ActionMessage) {
	d.goActiveFromPassive(msg, topology.Active3)
}

// actionKeepState is event 7: nothing about the state changes, but a
// Passive prefix whose best entry's metric genuinely changed still
// needs to re-seed its distances, flag itself NEED_UPDATE and
// recompute successors; and any query still gets answered regardless
// of state.
func actionKeepState(d *Dispatcher, msg *packetio.ActionMessage) {
	prefix := msg.Prefix

	if prefix.State == topology.Passive {
		head := prefix.Head()
		if head != nil && !metric.Same(prefix.ReportedMetric, head.TotalMetric) {
			prefix.RDistance = head.Distance
			prefix.FDistance = head.Distance
			prefix.Distance = head.Distance
			prefix.ReportedMetric = head.TotalMetric

			prefix.ReqAction |= topology.NeedUpdate
			d.markChanged(prefix)
		}
		d.Table.UpdateNodeFlags(prefix)
		if d.Routes != nil {
			d.Routes.InstallRoute(prefix)
		}
	}

	if msg.PacketType == packetio.OpcodeQuery && d.Packets != nil {
		d.Packets.SendReply(msg.AdvRouter, prefix)
	}
}

// actionLR is event 1: the last outstanding reply arrived and the
// feasible distance resets unconditionally. Settle back to Passive,
// replying to the current successor first if this search began as a
// query (Active3).
func actionLR(d *Dispatcher, msg *packetio.ActionMessage) {
	prefix := msg.Prefix
	prevState := prefix.State

	dist, tm := entryDistance(prefix.Head())
	prefix.FDistance = dist
	prefix.Distance = dist
	prefix.RDistance = dist
	prefix.ReportedMetric = tm

	if prevState == topology.Active3 {
		if best := bestSuccessor(d.Table, prefix); best != nil && d.Packets != nil {
			d.Packets.SendReply(best.AdvRouter, prefix)
		}
	}

	prefix.State = topology.Passive
	prefix.ReqAction |= topology.NeedUpdate
	d.markChanged(prefix)
	d.Table.UpdateNodeFlags(prefix)
	d.settleRoute(prefix)
}

// settleRoute reconciles the route installer and purges a Prefix-Entry
// that has settled back to Passive with no candidate routes left at
// all: it is no longer reachable by any neighbor, and withdrawing it
// frees the table entry rather than leaving a permanently-infinite
// placeholder behind.
func (d *Dispatcher) settleRoute(prefix *topology.Prefix) {
	if prefix.Empty() {
		if d.Routes != nil {
			d.Routes.RemoveRoute(prefix.Destination)
		}
		d.Table.Delete(prefix.Destination)
		return
	}
	if d.Routes != nil {
		d.Routes.InstallRoute(prefix)
	}
}

// actionDINC is event 4: the successor's distance increased while
// active. Drop back one sub-state (Active1->Active0, Active3->Active2)
// and, if no replies are still outstanding, immediately re-classify
// and re-dispatch — an active state never idles on a distance
// increase that already cleared Rij.
func actionDINC(d *Dispatcher, msg *packetio.ActionMessage) {
	prefix := msg.Prefix
	if prefix.State == topology.Active1 {
		prefix.State = topology.Active0
	} else {
		prefix.State = topology.Active2
	}
	prefix.Distance, _ = entryDistance(bestSuccessor(d.Table, prefix))

	if len(prefix.Rij) == 0 {
		d.Dispatch(msg)
	}
}

// actionLRFCS is event 3: the last reply arrived and the current best
// entry satisfies the feasibility condition against FDistance, so the
// search concludes without resetting FDistance upward. Settle back to
// Passive, replying to the current successor if this search was
// started by one (checked against the state held before this call
// overwrites it — checking afterward would always see Passive).
func actionLRFCS(d *Dispatcher, msg *packetio.ActionMessage) {
	prefix := msg.Prefix
	prevState := prefix.State

	dist, tm := entryDistance(prefix.Head())
	prefix.Distance = dist
	prefix.RDistance = dist
	prefix.ReportedMetric = tm
	if prefix.FDistance > prefix.Distance {
		prefix.FDistance = prefix.Distance
	}

	prefix.State = topology.Passive

	if prevState == topology.Active2 {
		if best := bestSuccessor(d.Table, prefix); best != nil && d.Packets != nil {
			d.Packets.SendReply(best.AdvRouter, prefix)
		}
	}

	prefix.ReqAction |= topology.NeedUpdate
	d.markChanged(prefix)
	d.Table.UpdateNodeFlags(prefix)
	d.settleRoute(prefix)
}

// actionLRFCN is event 6: the last reply arrived but the current best
// entry still doesn't satisfy FDistance. Escalate one sub-state
// (Active0->Active1, Active2->Active3) and start another round of
// queries, or settle if there are no neighbors left to ask. Unlike
// nq_fcn/q_fcn this does not reset FDistance: it stays as it is until
// lr_fcs lowers it or lr resets it.
func actionLRFCN(d *Dispatcher, msg *packetio.ActionMessage) {
	prefix := msg.Prefix
	next := topology.Active1
	if prefix.State != topology.Active0 {
		next = topology.Active3
	}
	dist, tm := entryDistance(bestSuccessor(d.Table, prefix))

	prefix.State = next
	prefix.RDistance = dist
	prefix.Distance = dist
	prefix.ReportedMetric = tm

	d.seedRij(prefix, msg.AdvRouter)
	if len(prefix.Rij) > 0 {
		prefix.ReqAction |= topology.NeedQuery
		d.markChanged(prefix)
	} else {
		actionLR(d, msg)
	}
}

// actionQACT is event 5: the successor itself queried this prefix
// while it was already active on a search of its own. Escalate to
// Active2 without touching Rij or starting a new round of queries.
func actionQACT(d *Dispatcher, msg *packetio.ActionMessage) {
	prefix := msg.Prefix
	prefix.State = topology.Active2
	prefix.Distance, _ = entryDistance(bestSuccessor(d.Table, prefix))
}

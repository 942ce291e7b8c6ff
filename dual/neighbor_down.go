package dual

import (
	"github.com/eigrpd/eigrpd/packetio"
	"github.com/eigrpd/eigrpd/topology"
)

// NotifyNeighborGone handles a prefix after topology.Table.DeleteEntriesOfNeighbor
// has already removed the dead neighbor's entry, cleared it from Rij
// and recomputed Distance. A neighbor that will never reply is
// functionally equivalent to one whose reply just arrived, so an
// active prefix with nothing left in Rij concludes its search exactly
// as it would on a real last reply — lr_fcs/lr_fcn/lr, chosen the same
// way Classify would choose them, just without re-running
// UpdateDistance (there is no new advertisement to fold in; the
// entry is already gone).
func (d *Dispatcher) NotifyNeighborGone(p *topology.Prefix) {
	if !p.State.Active() {
		d.Table.UpdateNodeFlags(p)
		d.settleRoute(p)
		return
	}
	if len(p.Rij) > 0 {
		return
	}

	msg := &packetio.ActionMessage{Prefix: p}
	switch p.State {
	case topology.Active0, topology.Active2:
		if head := p.Head(); head != nil && head.ReportedDistance < p.FDistance {
			actionLRFCS(d, msg)
		} else {
			actionLRFCN(d, msg)
		}
	case topology.Active1, topology.Active3:
		actionLR(d, msg)
	}
}

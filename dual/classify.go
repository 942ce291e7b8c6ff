package dual

import (
	"github.com/eigrpd/eigrpd/packetio"
	"github.com/eigrpd/eigrpd/topology"
)

// Classify folds the incoming advertisement into the topology table
// and decides which of the eight events occurred. It always runs
// UpdateDistance first (every state does), then branches on packet
// type, reply bookkeeping (Rij) and distance-increase. A locally
// originated change arrives as OpcodeInternal and is classified the
// same way an OpcodeUpdate would be: it can never carry a QUERY or
// REPLY, so it only ever drives the non-query/update branches.
func (d *Dispatcher) Classify(msg *packetio.ActionMessage) Event {
	prefix := msg.Prefix

	entry, changed := d.Table.UpdateDistance(prefix, msg.AdvRouter, msg.Link, msg.IncomingMetric)
	msg.Entry = entry

	switch prefix.State {
	case topology.Passive:
		head := prefix.Head()
		if head != nil && head.ReportedDistance < prefix.FDistance {
			return EventKeepState
		}
		if msg.PacketType == packetio.OpcodeQuery {
			return EventQFCN
		}
		return EventNQFCN

	case topology.Active0:
		switch {
		case msg.PacketType == packetio.OpcodeReply:
			delete(prefix.Rij, msg.AdvRouter)
			if len(prefix.Rij) > 0 {
				return EventKeepState
			}
			if head := prefix.Head(); head != nil && head.ReportedDistance < prefix.FDistance {
				return EventLRFCS
			}
			return EventLRFCN
		case msg.PacketType == packetio.OpcodeQuery && entry.Successor():
			return EventQACT
		default:
			return EventKeepState
		}

	case topology.Active1:
		switch {
		case msg.PacketType == packetio.OpcodeQuery && entry.Successor():
			return EventQACT
		case msg.PacketType == packetio.OpcodeReply:
			delete(prefix.Rij, msg.AdvRouter)
			if changed && entry.Successor() {
				return EventDINC
			}
			if len(prefix.Rij) > 0 {
				return EventKeepState
			}
			return EventLR
		case (msg.PacketType == packetio.OpcodeUpdate || msg.PacketType == packetio.OpcodeInternal) && changed && entry.Successor():
			return EventDINC
		default:
			return EventKeepState
		}

	case topology.Active2:
		if msg.PacketType == packetio.OpcodeReply {
			delete(prefix.Rij, msg.AdvRouter)
			if len(prefix.Rij) > 0 {
				return EventKeepState
			}
			if head := prefix.Head(); head != nil && head.ReportedDistance < prefix.FDistance {
				return EventLRFCS
			}
			return EventLRFCN
		}
		return EventKeepState

	case topology.Active3:
		switch {
		case msg.PacketType == packetio.OpcodeReply:
			delete(prefix.Rij, msg.AdvRouter)
			if changed && entry.Successor() {
				return EventDINC
			}
			if len(prefix.Rij) > 0 {
				return EventKeepState
			}
			return EventLR
		case (msg.PacketType == packetio.OpcodeUpdate || msg.PacketType == packetio.OpcodeInternal) && changed && entry.Successor():
			return EventDINC
		default:
			return EventKeepState
		}
	}

	return EventKeepState
}

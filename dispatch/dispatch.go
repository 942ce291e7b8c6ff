// Package dispatch implements the change dispatcher: the layer that
// decouples DUAL's table mutations from the packets those mutations
// eventually cause. Actions in package dual never touch the wire
// directly — they set NeedUpdate/NeedQuery on a Prefix and call
// MarkChanged; Flush is what actually turns the accumulated backlog
// into outbound UPDATEs and QUERYs, backed by an unbounded channel
// rather than a bounded queue so MarkChanged never blocks.
package dispatch

import (
	"net/netip"
	"sync"

	"github.com/eapache/channels"

	"github.com/eigrpd/eigrpd/neighbor"
	"github.com/eigrpd/eigrpd/packetio"
	"github.com/eigrpd/eigrpd/topology"
)

// Dispatcher holds the pending-change backlog for one address family
// and drains it into a PacketLayer. The zero value is not valid; use
// New.
type Dispatcher struct {
	packets packetio.PacketLayer

	mu      sync.Mutex
	pending map[netip.Prefix]struct{}
	queue   *channels.InfiniteChannel
}

// New creates a Dispatcher that flushes to packets.
func New(packets packetio.PacketLayer) *Dispatcher {
	return &Dispatcher{
		packets: packets,
		pending: make(map[netip.Prefix]struct{}),
		queue:   channels.NewInfiniteChannel(),
	}
}

// MarkChanged enqueues p for the next Flush. Calling it more than
// once for the same destination before a Flush drains it is a no-op
// the second time — the backlog holds at most one pending entry per
// destination, so draining never emits duplicate packets for changes
// that piled up between flushes.
func (d *Dispatcher) MarkChanged(p *topology.Prefix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, already := d.pending[p.Destination]; already {
		return
	}
	d.pending[p.Destination] = struct{}{}
	d.queue.In() <- p
}

// Pending reports how many distinct destinations are awaiting Flush.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// Flush drains every pending prefix, clearing its NeedUpdate/NeedQuery
// flags and sending the corresponding packets. Prefixes with no flags
// set (should not normally happen, but MarkChanged takes no flags
// argument to enforce) are skipped without emitting anything.
func (d *Dispatcher) Flush() {
	for {
		d.mu.Lock()
		if d.queue.Len() == 0 {
			d.mu.Unlock()
			return
		}
		item := <-d.queue.Out()
		p := item.(*topology.Prefix)
		delete(d.pending, p.Destination)
		d.mu.Unlock()

		d.drain(p)
	}
}

func (d *Dispatcher) drain(p *topology.Prefix) {
	action := p.ReqAction
	p.ReqAction = 0

	if action&topology.NeedQuery != 0 && d.packets != nil {
		// p.Rij was already seeded with the triggering neighbor
		// excluded, so there is nothing further to exclude here.
		d.packets.SendQuery(p, neighbor.ID(0))
	}
	if action&topology.NeedUpdate != 0 && d.packets != nil {
		var exclude neighbor.ID
		if head := p.Head(); head != nil {
			exclude = head.AdvRouter
		}
		d.packets.SendUpdate(p, exclude)
	}
}

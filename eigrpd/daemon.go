package eigrpd

import (
	"fmt"
	"net/netip"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/eigrpd/eigrpd/dispatch"
	"github.com/eigrpd/eigrpd/dual"
	"github.com/eigrpd/eigrpd/metric"
	"github.com/eigrpd/eigrpd/neighbor"
	"github.com/eigrpd/eigrpd/packetio"
	"github.com/eigrpd/eigrpd/topology"
)

// Daemon is one running EIGRP autonomous system: its topology table,
// its adjacency table, the change dispatcher draining into its
// packet layer, and the DUAL dispatcher tying them together.
type Daemon struct {
	Config Config

	Topology  *topology.Table
	Neighbors *neighbor.Table

	changes *dispatch.Dispatcher
	dual    *dual.Dispatcher

	log     *logrus.Entry
	metrics *Metrics
}

// NewDaemon builds a Daemon for cfg. packets and routes are the
// collaborators DUAL drives; log may be nil (a standalone logrus
// entry is used); metrics may be nil to run uninstrumented.
func NewDaemon(cfg Config, packets packetio.PacketLayer, routes packetio.RouteInstaller, log *logrus.Entry, metrics *Metrics) *Daemon {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("as", cfg.AS)

	tbl := topology.New(cfg.topologyConfig())
	nbrs := neighbor.NewTable()
	changes := dispatch.New(packets)

	d := &Daemon{
		Config:    cfg,
		Topology:  tbl,
		Neighbors: nbrs,
		changes:   changes,
		log:       log,
		metrics:   metrics,
	}
	d.dual = dual.New(tbl, nbrs, packets, routes, changes, log, d.transitionsVec())
	return d
}

// transitionsVec curries the shared Transitions CounterVec down to
// this daemon's AS, so dual.Dispatcher can increment it with just
// (state, event) and never needs to know about AS numbers at all.
func (d *Daemon) transitionsVec() *prometheus.CounterVec {
	if d.metrics == nil {
		return nil
	}
	return d.metrics.Transitions.MustCurryWith(prometheus.Labels{"as": d.asLabel()})
}

// AddNeighbor registers a neighbor on the adjacency table.
func (d *Daemon) AddNeighbor(n *neighbor.Neighbor) {
	d.Neighbors.Add(n)
	if d.metrics != nil {
		d.metrics.Neighbors.WithLabelValues(d.asLabel()).Set(float64(d.Neighbors.Count()))
	}
}

// NeighborDown tears a neighbor down: it leaves the adjacency table,
// every prefix that held a candidate route through it loses that
// entry, and any prefix left with nothing outstanding in Rij
// concludes its search exactly as if the neighbor had replied.
func (d *Daemon) NeighborDown(id neighbor.ID) {
	if !d.Neighbors.Remove(id) {
		return
	}
	d.log.WithField("neighbor", id).Info("eigrpd: neighbor down")

	affected := d.Topology.DeleteEntriesOfNeighbor(id)
	for _, p := range affected {
		d.dual.NotifyNeighborGone(p)
	}
	if d.metrics != nil {
		d.metrics.Neighbors.WithLabelValues(d.asLabel()).Set(float64(d.Neighbors.Count()))
	}
}

// HandlePacket runs one received packet through the DUAL dispatcher.
// Callers are responsible for turning wire bytes into msg (packetio
// TLV decoding) and resolving msg.AdvRouter/msg.Link beforehand.
func (d *Daemon) HandlePacket(msg *packetio.ActionMessage) {
	msg.AS = d.Config.AS
	d.dual.Dispatch(msg)
	if d.metrics != nil {
		d.metrics.Prefixes.WithLabelValues(d.asLabel()).Set(float64(d.Topology.Size()))
	}
}

// Flush drains the change dispatcher's backlog into the packet layer.
// Callers run this on whatever schedule their PacketLayer's batching
// policy wants (immediately after each HandlePacket, or periodically);
// DUAL itself never calls it, keeping FSM mutation decoupled from
// outbound packet emission.
func (d *Daemon) Flush() {
	d.changes.Flush()
}

// InsertPrefix seeds dest into the topology table with no candidates,
// ready to receive its first advertisement. It is a no-op (returning
// the existing entry) if dest is already tracked.
func (d *Daemon) InsertPrefix(dest netip.Prefix) *topology.Prefix {
	if p, ok := d.Topology.Lookup(dest); ok {
		return p
	}
	p := topology.NewPrefix(dest)
	if err := d.Topology.Insert(p); err != nil {
		// Lookup just reported it absent; a concurrent insert between
		// the two calls is the only way this fires, and Daemon's
		// contract is single-threaded.
		panic(fmt.Sprintf("eigrpd: race inserting %s: %v", dest, err))
	}
	return p
}

// OriginateLocal injects or refreshes a redistributed or statically
// assigned prefix that was never learned from a neighbor: dest is
// seeded if not already tracked, then run through the FSM as an
// OpcodeInternal Action Message carrying m as its originated metric.
// Withdraw it by calling OriginateLocal again with m.Bandwidth set to
// metric.Infinity.
func (d *Daemon) OriginateLocal(dest netip.Prefix, m metric.Composite) {
	p := d.InsertPrefix(dest)
	d.HandlePacket(&packetio.ActionMessage{
		PacketType:     packetio.OpcodeInternal,
		Prefix:         p,
		AdvRouter:      0,
		Link:           neighbor.LocalLink,
		IncomingMetric: m,
	})
}

func (d *Daemon) asLabel() string {
	return strconv.FormatUint(uint64(d.Config.AS), 10)
}

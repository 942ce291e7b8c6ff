package dual

import (
	"math"
	"net/netip"
	"testing"

	"github.com/eigrpd/eigrpd/metric"
	"github.com/eigrpd/eigrpd/neighbor"
	"github.com/eigrpd/eigrpd/packetio"
	"github.com/eigrpd/eigrpd/topology"
)

type fakePackets struct {
	replies        []neighbor.ID
	queries        int
	updates        int
	lastQueryRij   map[neighbor.ID]struct{}
	lastUpdateExcl neighbor.ID
}

func (f *fakePackets) SendReply(to neighbor.ID, _ *topology.Prefix) error {
	f.replies = append(f.replies, to)
	return nil
}
func (f *fakePackets) SendQuery(p *topology.Prefix, _ neighbor.ID) error {
	f.queries++
	f.lastQueryRij = p.Rij
	return nil
}
func (f *fakePackets) SendUpdate(_ *topology.Prefix, exclude neighbor.ID) error {
	f.updates++
	f.lastUpdateExcl = exclude
	return nil
}

type fakeRoutes struct {
	installed int
	removed   int
}

func (f *fakeRoutes) InstallRoute(*topology.Prefix) error { f.installed++; return nil }
func (f *fakeRoutes) RemoveRoute(netip.Prefix) error      { f.removed++; return nil }

type fakeChanges struct {
	marked []*topology.Prefix
}

func (f *fakeChanges) MarkChanged(p *topology.Prefix) { f.marked = append(f.marked, p) }

const (
	nbrA neighbor.ID = 1
	nbrB neighbor.ID = 2
)

// testLink never constrains bandwidth and adds 10 units of delay, so
// an entry's composed distance is its reported distance plus 10.
func testLink() neighbor.Link {
	return neighbor.Link{Bandwidth: math.MaxUint32, Delay: 10, Reliability: 255, Load: 1, MTU: 1500}
}

func mkMetric(bw uint32) metric.Composite {
	return metric.Composite{Bandwidth: bw, Delay: 10, Reliability: 255, Load: 1, MTU: 1500, HopCount: 1}
}

type harness struct {
	table   *topology.Table
	nbrs    *neighbor.Table
	packets *fakePackets
	routes  *fakeRoutes
	changes *fakeChanges
	d       *Dispatcher
	prefix  *topology.Prefix
}

func newHarness(t *testing.T, nbrCount int) *harness {
	t.Helper()
	tbl := topology.New(topology.DefaultConfig)
	nbrs := neighbor.NewTable()
	iface := &neighbor.Interface{Name: "eth0", LinkMetric: testLink()}
	for i := 0; i < nbrCount; i++ {
		nbrs.Add(neighbor.New(neighbor.ID(i+1), netip.MustParseAddr("192.0.2.1"), iface, 0, 0))
	}

	pfx := topology.NewPrefix(netip.MustParsePrefix("10.0.0.0/24"))
	if err := tbl.Insert(pfx); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	packets := &fakePackets{}
	routes := &fakeRoutes{}
	changes := &fakeChanges{}
	d := New(tbl, nbrs, packets, routes, changes, nil, nil)

	return &harness{table: tbl, nbrs: nbrs, packets: packets, routes: routes, changes: changes, d: d, prefix: pfx}
}

// An UPDATE that keeps the feasibility condition satisfied stays
// Passive and installs the route.
func TestFeasibleUpdateStaysPassiveAndInstallsRoute(t *testing.T) {
	h := newHarness(t, 2)
	msg := &packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: testLink(), IncomingMetric: mkMetric(100)}
	h.d.Dispatch(msg)

	if h.prefix.State != topology.Passive {
		t.Fatalf("State = %v, want Passive", h.prefix.State)
	}
	if h.routes.installed == 0 {
		t.Error("InstallRoute was never called")
	}
}

// A metric worsening past feasibility, with no neighbors up, goes
// active and immediately settles back to Passive (no one to query).
func TestInfeasibleUpdateWithNoNeighborsSettlesImmediately(t *testing.T) {
	h := newHarness(t, 0)
	msg := &packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: testLink(), IncomingMetric: mkMetric(100)}
	h.d.Dispatch(msg)
	if h.prefix.State != topology.Passive {
		t.Fatalf("State = %v, want Passive (seeded)", h.prefix.State)
	}

	worse := &packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: testLink(), IncomingMetric: mkMetric(100000)}
	h.d.Dispatch(worse)

	if h.prefix.State != topology.Passive {
		t.Fatalf("State = %v, want Passive after settling with no neighbors", h.prefix.State)
	}
	if h.packets.queries != 0 {
		t.Errorf("queries sent = %d, want 0 (no neighbors to ask)", h.packets.queries)
	}
}

// Going active with neighbors up excludes the neighbor whose own
// update triggered the search from Rij, then the last remaining
// reply arrives feasible and the prefix settles back to Passive.
func TestGoActiveExcludesTriggerThenLastReplyFeasible(t *testing.T) {
	h := newHarness(t, 2)
	seed := &packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: testLink(), IncomingMetric: mkMetric(100)}
	h.d.Dispatch(seed)
	second := &packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrB, Link: testLink(), IncomingMetric: mkMetric(150)}
	h.d.Dispatch(second)

	worse := &packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: testLink(), IncomingMetric: mkMetric(100000)}
	h.d.Dispatch(worse)

	if !h.prefix.State.Active() {
		t.Fatalf("State = %v, want an active sub-state after infeasible update", h.prefix.State)
	}
	if h.prefix.ReqAction&topology.NeedQuery == 0 {
		t.Error("NeedQuery was not set on going active with neighbors up")
	}
	if len(h.prefix.Rij) != 1 {
		t.Fatalf("len(Rij) = %d, want 1 (nbrA excluded as the update's source)", len(h.prefix.Rij))
	}
	if _, excluded := h.prefix.Rij[nbrA]; excluded {
		t.Error("nbrA is in Rij, want it excluded as the neighbor that triggered this search")
	}

	replyB := &packetio.ActionMessage{PacketType: packetio.OpcodeReply, Prefix: h.prefix, AdvRouter: nbrB, Link: testLink(), IncomingMetric: mkMetric(150)}
	h.d.Dispatch(replyB)

	if h.prefix.State != topology.Passive {
		t.Fatalf("State = %v, want Passive once the only outstanding reply is in", h.prefix.State)
	}
	if len(h.prefix.Rij) != 0 {
		t.Errorf("len(Rij) = %d after settling, want 0", len(h.prefix.Rij))
	}
}

// A distance increase on the current successor while active drops the
// sub-state back one level without waiting for a reply.
func TestDistanceIncreaseWhileActiveDropsSubState(t *testing.T) {
	h := newHarness(t, 2)
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: testLink(), IncomingMetric: mkMetric(100)})
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrB, Link: testLink(), IncomingMetric: mkMetric(150)})
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: testLink(), IncomingMetric: mkMetric(100000)})

	if h.prefix.State != topology.Active1 {
		t.Fatalf("State = %v, want Active1 after going active", h.prefix.State)
	}

	// nbrA triggered the search and is excluded from Rij, so a stray
	// reply from it is a no-op and nbrB's reply is still outstanding.
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeReply, Prefix: h.prefix, AdvRouter: nbrA, Link: testLink(), IncomingMetric: mkMetric(100000)})
	if !h.prefix.State.Active() {
		t.Fatalf("State = %v, want still active with nbrB outstanding", h.prefix.State)
	}
}

// A locally originated prefix (OpcodeInternal, no real AdvRouter)
// drives the same Passive-stays-Passive path a feasible UPDATE would,
// and a later locally originated withdrawal drives the same go-active
// path an infeasible UPDATE would.
func TestLocallyOriginatedPrefixClassifiesLikeUpdate(t *testing.T) {
	h := newHarness(t, 0)
	seed := &packetio.ActionMessage{PacketType: packetio.OpcodeInternal, Prefix: h.prefix, AdvRouter: 0, Link: neighbor.LocalLink, IncomingMetric: mkMetric(100)}
	h.d.Dispatch(seed)

	if h.prefix.State != topology.Passive {
		t.Fatalf("State = %v, want Passive after a local origination", h.prefix.State)
	}
	if h.routes.installed == 0 {
		t.Error("InstallRoute was never called for the locally originated prefix")
	}

	withdraw := &packetio.ActionMessage{PacketType: packetio.OpcodeInternal, Prefix: h.prefix, AdvRouter: 0, Link: neighbor.LocalLink, IncomingMetric: metric.Composite{Bandwidth: metric.Infinity}}
	h.d.Dispatch(withdraw)

	if h.prefix.State != topology.Passive {
		t.Fatalf("State = %v, want Passive once the local withdrawal settles with no neighbors", h.prefix.State)
	}
	if h.routes.removed == 0 {
		t.Error("RemoveRoute was never called after withdrawing the locally originated prefix")
	}
}

// wideLink never constrains bandwidth, so a neighbor's reported
// distance carries through and the composed distance is exactly the
// reported distance plus the link's 50 units of delay. That makes the
// arithmetic in the multi-neighbor scenarios below easy to follow:
// RD = bw, CD = bw + 50.
func wideLink() neighbor.Link {
	return neighbor.Link{Bandwidth: math.MaxUint32, Delay: 50, Reliability: 255, Load: 1, MTU: 1500}
}

func rdMetric(bw uint32) metric.Composite {
	return metric.Composite{Bandwidth: bw, Delay: 0, Reliability: 255, Load: 1, MTU: 1500, HopCount: 1}
}

// A successor whose metric worsens but stays feasible swaps nothing:
// the prefix remains Passive, re-baselines to the new best distance
// and flags itself for an outbound UPDATE without ever querying.
func TestFeasibleMetricChangeStaysPassive(t *testing.T) {
	h := newHarness(t, 2)
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: wideLink(), IncomingMetric: rdMetric(50)})
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrB, Link: wideLink(), IncomingMetric: rdMetric(150)})

	if h.prefix.FDistance != 100 {
		t.Fatalf("FDistance = %d after seeding, want 100", h.prefix.FDistance)
	}

	// nbrA worsens from RD 50 to RD 90: still feasible (90 < 100) and
	// still the best entry (140 < 200).
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: wideLink(), IncomingMetric: rdMetric(90)})

	if h.prefix.State != topology.Passive {
		t.Fatalf("State = %v, want Passive for a feasible metric change", h.prefix.State)
	}
	if head := h.prefix.Head(); head == nil || head.AdvRouter != nbrA || head.Distance != 140 {
		t.Fatalf("head = %+v, want nbrA at distance 140", head)
	}
	if h.packets.queries != 0 {
		t.Errorf("queries sent = %d, want 0 while the change stays feasible", h.packets.queries)
	}
	if len(h.changes.marked) == 0 {
		t.Error("prefix was never marked changed for an outbound UPDATE")
	}
}

// A QUERY from the current successor while the prefix is already
// active on its own search escalates Active1 to Active2, and the
// eventual last reply settles through lr_fcs, answering the successor
// that asked.
func TestQueryFromSuccessorWhileActiveEscalatesThenSettles(t *testing.T) {
	h := newHarness(t, 2)
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: wideLink(), IncomingMetric: rdMetric(50)})
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrB, Link: wideLink(), IncomingMetric: rdMetric(150)})

	// The successor worsens past feasibility: RD 200 is not < FD 100.
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: wideLink(), IncomingMetric: rdMetric(200)})
	if h.prefix.State != topology.Active1 {
		t.Fatalf("State = %v, want Active1 after losing feasibility", h.prefix.State)
	}

	// Now the successor itself queries the same destination.
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeQuery, Prefix: h.prefix, AdvRouter: nbrA, Link: wideLink(), IncomingMetric: rdMetric(200)})
	if h.prefix.State != topology.Active2 {
		t.Fatalf("State = %v, want Active2 after the successor's own query", h.prefix.State)
	}

	// The one outstanding reply arrives feasible: settle through
	// lr_fcs, answering the successor whose query escalated us.
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeReply, Prefix: h.prefix, AdvRouter: nbrB, Link: wideLink(), IncomingMetric: rdMetric(40)})

	if h.prefix.State != topology.Passive {
		t.Fatalf("State = %v, want Passive after the last reply", h.prefix.State)
	}
	if h.prefix.FDistance != 90 {
		t.Errorf("FDistance = %d, want 90 (the feasible reply's composed distance)", h.prefix.FDistance)
	}
	foundReplyToA := false
	for _, to := range h.packets.replies {
		if to == nbrA {
			foundReplyToA = true
		}
	}
	if !foundReplyToA {
		t.Error("no REPLY was sent to the successor whose query escalated the search")
	}
	if s := h.table.Successors(h.prefix); len(s) != 1 || s[0].AdvRouter != nbrB {
		t.Errorf("Successors = %+v, want exactly nbrB after settling", s)
	}
}

// The successor's distance increasing again mid-search (via UPDATE,
// with a reply still outstanding) drops Active1 back to Active0
// without waiting.
func TestSuccessorDistanceIncreaseWhileActiveDropsToActive0(t *testing.T) {
	h := newHarness(t, 2)
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: wideLink(), IncomingMetric: rdMetric(50)})
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrB, Link: wideLink(), IncomingMetric: rdMetric(400)})

	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: wideLink(), IncomingMetric: rdMetric(200)})
	if h.prefix.State != topology.Active1 {
		t.Fatalf("State = %v, want Active1 after losing feasibility", h.prefix.State)
	}

	// nbrA (still the head and the flagged successor) worsens again:
	// head distance rises 250 -> 350 with nbrB's reply outstanding.
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: wideLink(), IncomingMetric: rdMetric(300)})

	if h.prefix.State != topology.Active0 {
		t.Fatalf("State = %v, want Active0 after the successor's distance increased mid-search", h.prefix.State)
	}
	if len(h.prefix.Rij) == 0 {
		t.Error("Rij drained unexpectedly; nbrB's reply should still be outstanding")
	}
}

// Re-applying the same UPDATE is a no-op, and an UPDATE(M) UPDATE(M')
// UPDATE(M) round-trip converges to the same Prefix-Entry state as
// UPDATE(M) alone.
func TestReappliedUpdateRoundTrips(t *testing.T) {
	h := newHarness(t, 2)
	m := rdMetric(50)
	send := func(in metric.Composite) {
		h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: wideLink(), IncomingMetric: in})
	}

	send(m)
	wantFD, wantD, wantRD := h.prefix.FDistance, h.prefix.Distance, h.prefix.RDistance
	marked := len(h.changes.marked)

	send(m)
	if h.prefix.FDistance != wantFD || h.prefix.Distance != wantD || h.prefix.RDistance != wantRD {
		t.Errorf("distances changed on a repeated identical UPDATE: FD=%d D=%d RD=%d, want FD=%d D=%d RD=%d",
			h.prefix.FDistance, h.prefix.Distance, h.prefix.RDistance, wantFD, wantD, wantRD)
	}
	if len(h.changes.marked) != marked {
		t.Errorf("repeated identical UPDATE marked the prefix changed again: %d marks, want %d", len(h.changes.marked), marked)
	}

	send(rdMetric(90))
	send(m)
	if h.prefix.FDistance != wantFD || h.prefix.Distance != wantD || h.prefix.RDistance != wantRD {
		t.Errorf("UPDATE(M) UPDATE(M') UPDATE(M) did not round-trip: FD=%d D=%d RD=%d, want FD=%d D=%d RD=%d",
			h.prefix.FDistance, h.prefix.Distance, h.prefix.RDistance, wantFD, wantD, wantRD)
	}
	if h.prefix.State != topology.Passive {
		t.Errorf("State = %v, want Passive throughout feasible churn", h.prefix.State)
	}
}

// SIA-QUERY and SIA-REPLY are the packet layer's concern; DUAL folds
// their metric in like any non-query input but neither answers them
// nor treats them as replies.
func TestSIAPacketsFoldMetricWithoutReplying(t *testing.T) {
	h := newHarness(t, 2)
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeSIAQuery, Prefix: h.prefix, AdvRouter: nbrA, Link: wideLink(), IncomingMetric: rdMetric(50)})

	if h.prefix.State != topology.Passive {
		t.Fatalf("State = %v, want Passive", h.prefix.State)
	}
	if len(h.prefix.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1 (the SIA packet's metric still folds in)", len(h.prefix.Entries))
	}
	if len(h.packets.replies) != 0 {
		t.Errorf("replies sent = %d, want 0 for an SIA packet", len(h.packets.replies))
	}
}

func TestEventStringCoversAllValues(t *testing.T) {
	for e := EventNQFCN; e < eventCount; e++ {
		if got := e.String(); got == "UNKNOWN" {
			t.Errorf("Event(%d).String() = UNKNOWN, want a named event", e)
		}
	}
}

// The only candidate is withdrawn (reported metric Infinity) while
// active, so the last reply to arrive leaves zero entries behind.
// Settling must handle an empty Prefix-Entry instead of dereferencing
// a nil head, and the now-empty prefix must be withdrawn from the
// route installer and purged from the table.
func TestLastEntryWithdrawnWhileActiveSettlesToEmptyPrefix(t *testing.T) {
	h := newHarness(t, 2)
	dest := h.prefix.Destination

	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: testLink(), IncomingMetric: mkMetric(100)})
	if h.prefix.State != topology.Passive {
		t.Fatalf("State = %v, want Passive after the first advertisement", h.prefix.State)
	}

	withdraw := metric.Composite{Bandwidth: metric.Infinity}
	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeUpdate, Prefix: h.prefix, AdvRouter: nbrA, Link: testLink(), IncomingMetric: withdraw})
	if h.prefix.State != topology.Active1 {
		t.Fatalf("State = %v, want Active1 after the only entry is withdrawn", h.prefix.State)
	}
	if !h.prefix.Empty() {
		t.Fatalf("prefix still has %d entries after its only candidate was withdrawn", len(h.prefix.Entries))
	}

	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeReply, Prefix: h.prefix, AdvRouter: nbrA, Link: testLink(), IncomingMetric: withdraw})
	if !h.prefix.State.Active() {
		t.Fatalf("State = %v, want still active with nbrB outstanding", h.prefix.State)
	}

	h.d.Dispatch(&packetio.ActionMessage{PacketType: packetio.OpcodeReply, Prefix: h.prefix, AdvRouter: nbrB, Link: testLink(), IncomingMetric: withdraw})

	if h.prefix.State != topology.Passive {
		t.Fatalf("State = %v, want Passive once the last reply arrives with nothing left", h.prefix.State)
	}
	if h.prefix.Distance != metric.Infinity {
		t.Errorf("Distance = %d, want Infinity with no candidates left", h.prefix.Distance)
	}
	if h.routes.removed == 0 {
		t.Error("RemoveRoute was never called for the now-empty prefix")
	}
	if _, ok := h.table.Lookup(dest); ok {
		t.Error("empty Passive prefix was not purged from the topology table")
	}
}

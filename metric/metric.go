// Package metric implements the composite EIGRP metric arithmetic DUAL
// depends on: composition over a link, the scalar distance function D,
// and the feasibility test.
package metric

import "math"

// Infinity is the conventional EIGRP "unreachable" distance. Any
// composition that would overflow saturates to Infinity rather than
// wrapping, since an overflowed metric is itself a valid unreachable
// signal.
const Infinity uint32 = math.MaxUint32

// KValues are the six weights that parameterize D. Every router in an
// autonomous system must run with the same K-values, or adjacencies
// fail to form.
type KValues struct {
	K1, K2, K3, K4, K5, K6 uint32
}

// DefaultKValues are the classic-metric EIGRP defaults.
var DefaultKValues = KValues{K1: 1, K2: 0, K3: 1, K4: 0, K5: 0, K6: 0}

// Composite is the six-field EIGRP classic metric.
type Composite struct {
	Bandwidth   uint32 // scaled, smaller is faster
	Delay       uint32 // scaled, tens of microseconds
	Reliability uint8  // 1-255, 255 is most reliable
	Load        uint8  // 1-255, 255 is most loaded
	MTU         uint32 // bytes
	HopCount    uint8
}

// Same reports whether two composites are field-wise equal.
func Same(a, b Composite) bool {
	return a == b
}

func saturatingAdd(a, b uint32) uint32 {
	sum := a + b
	if sum < a { // overflow
		return Infinity
	}
	if sum > Infinity {
		return Infinity
	}
	return sum
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func minU8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}

// Compose yields the metric of reaching a destination over link with
// the neighbor's reported metric nbr: bandwidth becomes the min,
// delay sums (saturating to Infinity), reliability and load take the
// worse (numerically smaller/larger respectively is "worse" depending
// on field, see below), MTU becomes the min, and hop-count increments
// by one.
//
// Reliability and Load worsen in opposite directions: reliability
// worsens as it drops (so Compose takes the min), load worsens as it
// rises (so Compose takes the max).
func Compose(link, nbr Composite) Composite {
	hop := nbr.HopCount + 1
	if nbr.HopCount == math.MaxUint8 {
		hop = math.MaxUint8
	}
	return Composite{
		Bandwidth:   min32(link.Bandwidth, nbr.Bandwidth),
		Delay:       saturatingAdd(link.Delay, nbr.Delay),
		Reliability: minU8(link.Reliability, nbr.Reliability),
		Load:        maxU8(link.Load, nbr.Load),
		MTU:         min32(link.MTU, nbr.MTU),
		HopCount:    hop,
	}
}

func maxU8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

// D derives the scalar distance from a composite metric and a set of
// K-values. This is the classic EIGRP formula:
//
//	D = (K1*bandwidth + (K2*bandwidth)/(256-load) + K3*delay) * (K5/(reliability+K4))
//
// with the K5 term omitted (treated as 1) when K5 is zero, matching
// RFC-adjacent classic EIGRP convention. Bandwidth here is assumed to
// already be the inverted/scaled form (smaller is faster) used
// throughout this package; D saturates to Infinity rather than
// overflowing.
func D(m Composite, k KValues) uint32 {
	if m.Bandwidth == Infinity || m.Delay == Infinity {
		return Infinity
	}

	bwTerm := uint64(k.K1) * uint64(m.Bandwidth)
	if k.K2 != 0 {
		denom := uint64(256 - uint32(m.Load))
		if denom == 0 {
			denom = 1
		}
		bwTerm += (uint64(k.K2) * uint64(m.Bandwidth)) / denom
	}
	delayTerm := uint64(k.K3) * uint64(m.Delay)

	sum := bwTerm + delayTerm
	if sum > uint64(Infinity) {
		return Infinity
	}

	if k.K5 == 0 {
		return uint32(sum)
	}

	denom := uint64(m.Reliability) + uint64(k.K4)
	if denom == 0 {
		denom = 1
	}
	scaled := (sum * uint64(k.K5)) / denom
	if scaled > uint64(Infinity) {
		return Infinity
	}
	return uint32(scaled)
}

// Feasible implements the feasibility condition: a candidate's
// reported distance must be strictly less than the feasible distance
// fd recorded for the prefix.
func Feasible(reportedDistance, fd uint32) bool {
	return reportedDistance < fd
}

// Package eigrpd wires the topology table, adjacency table, change
// dispatcher and DUAL finite state machine into one running EIGRP
// process, and lets one binary run more than one such process (one
// per autonomous system) without any package-level state.
package eigrpd

import (
	"time"

	"github.com/eigrpd/eigrpd/metric"
	"github.com/eigrpd/eigrpd/packetio"
	"github.com/eigrpd/eigrpd/topology"
)

// Config parameterizes one Daemon: its autonomous system number, the
// K-values and selection policy its topology table uses, and the
// hello/hold timers new neighbors are created with.
type Config struct {
	AS uint32

	K        metric.KValues
	Variance uint32
	MaxPaths int

	HelloInterval time.Duration
	HoldInterval  time.Duration
}

// DefaultConfig matches packetio's wire-level defaults for a
// multi-access link running classic metrics.
func DefaultConfig(as uint32) Config {
	return Config{
		AS:            as,
		K:             metric.DefaultKValues,
		Variance:      1,
		MaxPaths:      4,
		HelloInterval: packetio.DefaultHelloInterval,
		HoldInterval:  packetio.DefaultHoldInterval,
	}
}

func (c Config) topologyConfig() topology.Config {
	return topology.Config{K: c.K, Variance: c.Variance, MaxPaths: c.MaxPaths}
}

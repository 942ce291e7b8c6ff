package eigrpd

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the Prometheus instrumentation shared by every Daemon a
// Master starts. Every metric carries an "as" label so one process's
// /metrics endpoint can serve several autonomous systems without
// colliding series.
type Metrics struct {
	Transitions *prometheus.CounterVec
	Prefixes    *prometheus.GaugeVec
	Neighbors   *prometheus.GaugeVec
}

// NewMetrics registers the metric vectors on reg. reg may be
// nil, in which case the returned Metrics is usable but unregistered
// (tests typically do this to avoid colliding with other tests'
// registrations of the same metric names).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eigrpd",
			Name:      "dual_transitions_total",
			Help:      "Number of DUAL finite state machine transitions, by prior state and event.",
		}, []string{"as", "state", "event"}),
		Prefixes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eigrpd",
			Name:      "topology_prefixes",
			Help:      "Number of prefixes currently held in the topology table.",
		}, []string{"as"}),
		Neighbors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eigrpd",
			Name:      "neighbors",
			Help:      "Number of neighbors currently up.",
		}, []string{"as"}),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.Prefixes, m.Neighbors)
	}
	return m
}

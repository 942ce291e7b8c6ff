package eigrpd

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/eigrpd/eigrpd/packetio"
)

// Master owns every Daemon running in one process, one per
// autonomous system number. It is deliberately not a package-level
// singleton: nothing in this package keeps state outside a Master or
// Daemon value, so a test or a multi-tenant host can run as many
// independent Masters as it wants.
type Master struct {
	log     *logrus.Entry
	metrics *Metrics

	mu      sync.RWMutex
	daemons map[uint32]*Daemon
}

// NewMaster creates an empty Master. log and reg may both be nil. The
// metric vectors are registered once here, not per Daemon: every AS
// this Master starts shares the same collectors, distinguished by the
// "as" label, so starting a second AS never collides with the first
// one's registration.
func NewMaster(log *logrus.Entry, reg prometheus.Registerer) *Master {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Master{
		log:     log,
		metrics: NewMetrics(reg),
		daemons: make(map[uint32]*Daemon),
	}
}

// Start creates and registers a Daemon for cfg.AS, failing if that AS
// is already running under this Master.
func (m *Master) Start(cfg Config, packets packetio.PacketLayer, routes packetio.RouteInstaller) (*Daemon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.daemons[cfg.AS]; exists {
		return nil, fmt.Errorf("eigrpd: AS %d is already running", cfg.AS)
	}

	d := NewDaemon(cfg, packets, routes, m.log, m.metrics)
	m.daemons[cfg.AS] = d
	return d, nil
}

// Stop removes AS's Daemon, if running.
func (m *Master) Stop(as uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.daemons, as)
}

// Daemon returns the running Daemon for AS, if any.
func (m *Master) Daemon(as uint32) (*Daemon, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.daemons[as]
	return d, ok
}

// All calls f for every running Daemon. f must not call Start or Stop.
func (m *Master) All(f func(*Daemon)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.daemons {
		f(d)
	}
}

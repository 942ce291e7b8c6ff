// Command eigrpd runs a minimal EIGRP process: one autonomous system,
// logging every packet DUAL would have sent and every route change it
// would have installed rather than touching a real socket or RIB.
package main

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eigrpd/eigrpd/eigrpd"
	"github.com/eigrpd/eigrpd/neighbor"
	"github.com/eigrpd/eigrpd/topology"
)

// loggingPacketLayer stands in for a real socket: every outbound
// packet DUAL would have emitted is logged instead of transmitted.
type loggingPacketLayer struct {
	log *logrus.Entry
}

func (l *loggingPacketLayer) SendReply(to neighbor.ID, p *topology.Prefix) error {
	l.log.WithFields(logrus.Fields{"to": to, "destination": p.Destination}).Info("would send REPLY")
	return nil
}

func (l *loggingPacketLayer) SendQuery(p *topology.Prefix, exclude neighbor.ID) error {
	l.log.WithFields(logrus.Fields{"destination": p.Destination, "exclude": exclude, "rij": len(p.Rij)}).Info("would send QUERY")
	return nil
}

func (l *loggingPacketLayer) SendUpdate(p *topology.Prefix, exclude neighbor.ID) error {
	l.log.WithFields(logrus.Fields{"destination": p.Destination, "exclude": exclude}).Info("would send UPDATE")
	return nil
}

// loggingRouteInstaller stands in for a real RIB.
type loggingRouteInstaller struct {
	log *logrus.Entry
}

func (l *loggingRouteInstaller) InstallRoute(p *topology.Prefix) error {
	successors := 0
	for _, e := range p.Entries {
		if e.Successor() {
			successors++
		}
	}
	l.log.WithFields(logrus.Fields{"destination": p.Destination, "distance": p.Distance, "successors": successors}).Info("would install route")
	return nil
}

func (l *loggingRouteInstaller) RemoveRoute(dest netip.Prefix) error {
	l.log.WithField("destination", dest).Info("would remove route")
	return nil
}

func newRootCmd() *cobra.Command {
	var asNumber uint32
	log := logrus.NewEntry(logrus.StandardLogger())

	cmd := &cobra.Command{
		Use:   "eigrpd",
		Short: "Run a minimal EIGRP DUAL process with logging-only collaborators",
		RunE: func(cmd *cobra.Command, args []string) error {
			master := eigrpd.NewMaster(log, nil)
			cfg := eigrpd.DefaultConfig(asNumber)

			daemon, err := master.Start(cfg, &loggingPacketLayer{log: log}, &loggingRouteInstaller{log: log})
			if err != nil {
				return fmt.Errorf("starting AS %d: %w", asNumber, err)
			}

			log.WithField("as", daemon.Config.AS).Info("eigrpd: process started, no neighbors configured")
			select {}
		},
	}

	cmd.Flags().Uint32Var(&asNumber, "as", 100, "autonomous system number")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("eigrpd: fatal")
		os.Exit(1)
	}
}

//go:build linux

// Command xenstored runs the in-hypervisor-guest XenStore daemon: it
// serves the hierarchical key/value tree described in pkg/store over one
// shared-memory ring per connected domain, using the default local/dev
// Mapper, EventChannel and Publisher (see pkg/domain/localdev_unix.go)
// in place of the real Xen hypercalls.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/firscity/zephyr-xenlib/pkg/base"
	"github.com/firscity/zephyr-xenlib/pkg/domain"
	"github.com/firscity/zephyr-xenlib/pkg/engine"
	"github.com/firscity/zephyr-xenlib/pkg/ring"
)

func main() {
	domMax := flag.Int("dom-max", 32, "maximum number of simultaneously connected domains")
	absPathMax := flag.Int("abs-path-max", 3072, "maximum absolute path length, including NUL terminator")
	ringSize := flag.Uint("ring-size", uint(ring.DefaultSize), "byte capacity of each direction of a newly mapped ring (must be a power of two)")
	debug := flag.Bool("d", false, "enable debug logging")
	trace := flag.Bool("trace", false, "enable trace logging (implies -d)")
	flag.Parse()

	logger := logrus.New()
	switch {
	case *trace:
		logger.SetLevel(logrus.TraceLevel)
	case *debug:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
	log := base.NewLogger(logger)

	cfg := engine.Config{DomMax: *domMax, AbsPathMax: *absPathMax}

	mapper := &domain.LocalMapper{RingSize: uint32(*ringSize)}
	evtchn := domain.NewLocalEventChannel()
	publisher := domain.NewLocalPublisher()

	eng := engine.New(cfg, mapper, evtchn, publisher, log)
	if err := seedWellKnownPaths(eng); err != nil {
		log.Fatalf("seed well-known paths: %v", err)
	}
	log.Infof("xenstored started (dom-max=%d abs-path-max=%d ring-size=%d)", *domMax, *absPathMax, *ringSize)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	log.Infof("xenstored shutting down")
}

// seedWellKnownPaths populates the handful of nodes every guest expects to
// find present at boot, the way the original daemon does before any
// domain has connected.
func seedWellKnownPaths(eng *engine.Engine) error {
	if err := eng.Write("/local/domain/0/name", []byte("Domain-0")); err != nil {
		return err
	}
	return eng.Write("/tool/xenstored", nil)
}

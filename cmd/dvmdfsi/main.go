// Command dvmdfsi bridges a P25 FNE peer network to DFSI endpoints
// (RTP or framed-serial), per spec.md. FNE peer registration, ping, and
// authentication are handled by the surrounding FNE transport library
// (spec.md §1 "explicitly out of scope"); this binary owns the Voice
// Path Scheduler and the two DFSI transports it talks to.
//
// Grounded on cmd/dmr-nexus/main.go's flag parsing, logger
// initialization, and signal-driven shutdown in the teacher repo.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DVMProject/dvmdfsi/pkg/config"
	"github.com/DVMProject/dvmdfsi/pkg/logger"
	"github.com/DVMProject/dvmdfsi/pkg/supervisor"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

// stubMasterSender logs outbound P25 messages instead of placing them
// on the wire. The real FNE peer library's send_master primitive is
// injected here in a production deployment; this binary only owns the
// DFSI-facing half of the bridge.
type stubMasterSender struct {
	log *logger.Logger
}

func (s stubMasterSender) SendMaster(funcProtocol, subFunc byte, payload []byte, pktSeq uint16, streamID uint32) error {
	s.log.Debug("send_master",
		logger.Int("bytes", len(payload)),
		logger.Uint32("stream_id", streamID))
	return nil
}

// CLI flags per spec.md §6: -h/--help, -c/--config <path>,
// -l/--log-on-console. Each short/long pair is registered twice onto
// the same variable, matching the teacher's habit of a tiny
// hand-rolled flag surface over a CLI framework.
func main() {
	var configFile string
	flag.StringVar(&configFile, "c", "", "Path to configuration file")
	flag.StringVar(&configFile, "config", "", "Path to configuration file")

	var logOnConsole bool
	flag.BoolVar(&logOnConsole, "l", false, "Also log to the console")
	flag.BoolVar(&logOnConsole, "log-on-console", false, "Also log to the console")

	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dvmdfsi %s (%s)\n", version, gitCommit)
		os.Exit(0)
	}

	bootLevel := "info"
	if logOnConsole {
		bootLevel = "debug"
	}
	log := logger.New(logger.Config{Level: bootLevel, Format: "text"})
	log.Info("starting dvmdfsi", logger.String("version", version))

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Error("failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	log = logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.Info("configuration loaded", logger.String("mode", string(cfg.Mode)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sup := supervisor.New(*cfg, stubMasterSender{log: log.WithComponent("send_master")}, log)
	if err := sup.Start(ctx); err != nil {
		log.Error("failed to start supervisor", logger.Error(err))
		os.Exit(1)
	}

	log.Info("dvmdfsi running")

	sig := <-sigChan
	log.Info("received shutdown signal", logger.String("signal", sig.String()))

	if err := sup.Stop(); err != nil {
		log.Error("error during shutdown", logger.Error(err))
	}

	log.Info("dvmdfsi stopped")
}

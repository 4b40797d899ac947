// Package supervisor wires the configured transports and the Voice
// Path Scheduler together and owns their lifecycle (spec.md §5
// "operating modes"): which pair of carriers feed the scheduler
// depends on config.Mode, but start/stop ordering and idempotence are
// uniform across all three modes.
//
// Grounded on cmd/dmr-nexus/main.go's wg-tracked goroutine-per-component
// startup and signal-driven shutdown in the teacher repo.
package supervisor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/DVMProject/dvmdfsi/pkg/config"
	"github.com/DVMProject/dvmdfsi/pkg/fsc"
	"github.com/DVMProject/dvmdfsi/pkg/logger"
	"github.com/DVMProject/dvmdfsi/pkg/peeradapter"
	"github.com/DVMProject/dvmdfsi/pkg/rtpcarrier"
	"github.com/DVMProject/dvmdfsi/pkg/serialcarrier"
	"github.com/DVMProject/dvmdfsi/pkg/voice"
)

// Supervisor owns the lifecycle of every component one bridge instance
// needs for its configured mode.
type Supervisor struct {
	cfg    config.Config
	log    *logger.Logger
	master peeradapter.MasterSender

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	rtp        *rtpcarrier.Carrier
	serial     *serialcarrier.Carrier
	fscSession *fsc.Session
}

// New creates a Supervisor for the given configuration. master is the
// FNE peer library's outbound primitive; it is unused in
// config.ModeSerialUDP, where no FNE peer connection exists.
func New(cfg config.Config, master peeradapter.MasterSender, log *logger.Logger) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		log:    log.WithComponent("supervisor"),
		master: master,
	}
}

// Start builds and launches every component cfg.Mode requires. Calling
// Start twice without an intervening Stop returns an error.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("supervisor: already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	var sink voice.FrameSink
	var peer voice.PeerSink

	needsRTP := s.cfg.Mode == config.ModeUDPDvm || s.cfg.Mode == config.ModeSerialUDP
	if needsRTP {
		rtp, err := rtpcarrier.New(rtpcarrier.Config{
			ListenAddr: s.cfg.RTP.ListenAddr,
			PeerAddr:   s.cfg.RTP.PeerAddr,
			SSRC:       s.cfg.Peer.ID,
		}, s.log)
		if err != nil {
			cancel()
			return fmt.Errorf("supervisor: start RTP carrier: %w", err)
		}
		s.rtp = rtp
	}

	needsSerial := s.cfg.Mode == config.ModeSerialDvm || s.cfg.Mode == config.ModeSerialUDP
	if needsSerial {
		serial, err := serialcarrier.New(serialcarrier.Config{
			Device:   s.cfg.Serial.Device,
			Baud:     s.cfg.Serial.Baud,
			TxJitter: time.Duration(s.cfg.Serial.TxJitterMS) * time.Millisecond,
		}, s.log)
		if err != nil {
			cancel()
			return fmt.Errorf("supervisor: start serial carrier: %w", err)
		}
		s.serial = serial
	}

	switch s.cfg.Mode {
	case config.ModeUDPDvm:
		sink = s.rtp
		adapter := peeradapter.New(s.cfg.Peer.ID, s.master, s.log)
		peer = adapter
		scheduler := voice.NewScheduler(voice.Config{Manufacturer: s.cfg.RTP.Manufacturer, SourceID: byte(s.cfg.Peer.ID)}, sink, peer, s.log)
		adapter.SetScheduler(scheduler)
		s.rtp.OnFrame(func(data []byte) {
			if err := scheduler.HandleFrameFromDFSI(data); err != nil {
				s.log.Error("failed to handle inbound DFSI frame", logger.Error(err))
			}
		})
		s.runGoroutine(func() error { return s.rtp.Listen(runCtx) })

	case config.ModeSerialDvm:
		sink = s.serial
		adapter := peeradapter.New(s.cfg.Peer.ID, s.master, s.log)
		peer = adapter
		scheduler := voice.NewScheduler(voice.Config{Manufacturer: s.cfg.Serial.Manufacturer, SourceID: byte(s.cfg.Peer.ID)}, sink, peer, s.log)
		adapter.SetScheduler(scheduler)
		s.serial.OnFrame(func(data []byte) {
			if err := scheduler.HandleFrameFromDFSI(data); err != nil {
				s.log.Error("failed to handle inbound DFSI frame", logger.Error(err))
			}
		})
		s.runGoroutine(func() error { return s.serial.Run(runCtx) })
		s.runGoroutine(func() error { return s.serial.Listen(runCtx) })

	case config.ModeSerialUDP:
		// Serial and RTP stand in for each other's carrier role; no FNE
		// peer connection exists, so a scheduler isn't meaningful here —
		// frames are relayed directly between the two carriers.
		s.rtp.OnFrame(func(data []byte) {
			if err := s.serial.SendFrame(data); err != nil {
				s.log.Error("failed to relay RTP frame to serial", logger.Error(err))
			}
		})
		s.serial.OnFrame(func(data []byte) {
			if err := s.rtp.SendFrame(data); err != nil {
				s.log.Error("failed to relay serial frame to RTP", logger.Error(err))
			}
		})
		s.runGoroutine(func() error { return s.rtp.Listen(runCtx) })
		s.runGoroutine(func() error { return s.serial.Run(runCtx) })
		s.runGoroutine(func() error { return s.serial.Listen(runCtx) })

	default:
		cancel()
		return fmt.Errorf("supervisor: unknown mode %q", s.cfg.Mode)
	}

	if s.cfg.FSC.Enabled && s.cfg.Mode != config.ModeSerialUDP {
		localVCPort, err := localPortOf(s.cfg.RTP.ListenAddr)
		if err != nil {
			cancel()
			return fmt.Errorf("supervisor: determine local VC base port: %w", err)
		}

		heartbeatPeriod := time.Duration(s.cfg.FSC.HeartbeatPeriod) * time.Second
		session, err := fsc.New(fsc.Config{
			PeerID:          s.cfg.Peer.ID,
			StationName:     s.cfg.Peer.StationName,
			ListenAddr:      s.cfg.FSC.ListenAddr,
			RemoteAddr:      s.cfg.FSC.RemoteAddr,
			HeartbeatPeriod: heartbeatPeriod,
			LocalVCBasePort: localVCPort,
		}, s.log)
		if err != nil {
			cancel()
			return fmt.Errorf("supervisor: start FSC session: %w", err)
		}
		s.fscSession = session

		// Retarget the RTP carrier at the remote's advertised
		// Voice-Conveyance base port once the FSC handshake completes
		// (spec.md §4.7).
		if s.rtp != nil {
			session.OnConnected(func(remoteVCBasePort uint16) {
				s.rtp.Retarget(int(remoteVCBasePort))
			})
		}

		if err := session.Connect(); err != nil {
			cancel()
			return fmt.Errorf("supervisor: FSC connect: %w", err)
		}
		s.runGoroutine(func() error { return session.Run(runCtx) })
	}

	s.started = true
	return nil
}

// localPortOf extracts the numeric port from a "host:port" address,
// used to tell the FSC session which Voice-Conveyance base port this
// endpoint is listening on.
func localPortOf(addr string) (uint16, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("split host/port: %w", err)
	}
	resolved, err := net.ResolveUDPAddr("udp", "127.0.0.1:"+portStr)
	if err != nil {
		return 0, fmt.Errorf("resolve port: %w", err)
	}
	return uint16(resolved.Port), nil
}

func (s *Supervisor) runGoroutine(fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(); err != nil && err != context.Canceled {
			s.log.Error("component stopped with error", logger.Error(err))
		}
	}()
}

// Stop cancels every running component and waits for them to exit.
// Calling Stop when not started, or calling it more than once, is a
// no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	if s.fscSession != nil {
		if err := s.fscSession.Disconnect(); err != nil {
			s.log.Warn("error disconnecting FSC session", logger.Error(err))
		}
	}

	s.cancel()
	s.wg.Wait()

	if s.rtp != nil {
		s.rtp.Close()
	}
	if s.serial != nil {
		s.serial.Close()
	}
	if s.fscSession != nil {
		s.fscSession.Close()
	}

	s.started = false
	return nil
}

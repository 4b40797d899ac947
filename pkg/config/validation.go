package config

import "fmt"

// validate rejects configurations that would leave the supervisor
// unable to start the components cfg.Mode requires (spec.md §5).
func validate(cfg *Config) error {
	switch cfg.Mode {
	case ModeUDPDvm, ModeSerialDvm, ModeSerialUDP:
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	if cfg.Peer.ID == 0 && cfg.Mode != ModeSerialUDP {
		return fmt.Errorf("peer.id must be set for mode %q", cfg.Mode)
	}

	needsRTP := cfg.Mode == ModeUDPDvm || cfg.Mode == ModeSerialUDP
	if needsRTP && cfg.RTP.ListenAddr == "" {
		return fmt.Errorf("rtp.listen_addr must be set for mode %q", cfg.Mode)
	}
	if needsRTP && cfg.RTP.PeerAddr == "" {
		return fmt.Errorf("rtp.peer_addr must be set for mode %q", cfg.Mode)
	}

	needsSerial := cfg.Mode == ModeSerialDvm || cfg.Mode == ModeSerialUDP
	if needsSerial && cfg.Serial.Device == "" {
		return fmt.Errorf("serial.device must be set for mode %q", cfg.Mode)
	}

	needsPeer := cfg.Mode == ModeUDPDvm || cfg.Mode == ModeSerialDvm
	if needsPeer && cfg.Peer.MasterAddr == "" {
		return fmt.Errorf("peer.master_addr must be set for mode %q", cfg.Mode)
	}
	if needsPeer && cfg.FSC.Enabled && cfg.FSC.RemoteAddr == "" {
		return fmt.Errorf("fsc.remote_addr must be set when fsc.enabled is true")
	}

	return nil
}

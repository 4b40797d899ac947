// Package config loads the bridge's configuration (spec.md §6) with
// viper: a YAML file merged with DVMDFSI_-prefixed environment
// variables, unmarshalled into typed structs and validated before the
// supervisor starts any component.
//
// Grounded on pkg/config/config.go's Load/setDefaults/validate shape in
// the teacher repo.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Mode selects which pair of transports the supervisor wires together
// (spec.md §5 "operating modes").
type Mode string

const (
	ModeUDPDvm    Mode = "udp_dvm"    // RTP carrier <-> FNE peer
	ModeSerialDvm Mode = "serial_dvm" // serial carrier <-> FNE peer
	ModeSerialUDP Mode = "serial_udp" // serial carrier <-> RTP carrier, no FNE peer
)

// Config is the bridge's top-level configuration.
type Config struct {
	Mode    Mode          `mapstructure:"mode"`
	Peer    PeerConfig    `mapstructure:"peer"`
	FSC     FSCConfig     `mapstructure:"fsc"`
	RTP     RTPConfig     `mapstructure:"rtp"`
	Serial  SerialConfig  `mapstructure:"serial"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// PeerConfig identifies this bridge instance to the FNE network.
type PeerConfig struct {
	ID          uint32 `mapstructure:"id"`
	StationName string `mapstructure:"station_name"`
	MasterAddr  string `mapstructure:"master_addr"`
}

// FSCConfig configures the Fixed Station Control session (spec.md §4.4).
type FSCConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ListenAddr      string `mapstructure:"listen_addr"`
	RemoteAddr      string `mapstructure:"remote_addr"`
	HeartbeatPeriod int    `mapstructure:"heartbeat_period_seconds"`
}

// RTPConfig configures the RTP-framed DFSI transport (spec.md §4.2).
type RTPConfig struct {
	ListenAddr   string `mapstructure:"listen_addr"`
	PeerAddr     string `mapstructure:"peer_addr"`
	Manufacturer bool   `mapstructure:"manufacturer_framing"`
}

// SerialConfig configures the framed-serial DFSI transport (spec.md §4.3).
type SerialConfig struct {
	Device       string `mapstructure:"device"`
	Baud         int    `mapstructure:"baud"`
	Manufacturer bool   `mapstructure:"manufacturer_framing"`
	// TxJitterMS is the jitter-buffer lookahead in milliseconds
	// (spec.md's `serialTxJitter`).
	TxJitterMS int `mapstructure:"tx_jitter_ms"`
}

// LoggingConfig mirrors the teacher's logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables.
func Load(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/dvmdfsi")
	}

	viper.SetEnvPrefix("DVMDFSI")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file is fine; defaults plus env vars apply.
		} else if os.IsNotExist(err) {
			// Explicitly named file that doesn't exist is also fine.
		} else {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("mode", string(ModeUDPDvm))

	viper.SetDefault("peer.station_name", "DVMDFSI")

	viper.SetDefault("fsc.enabled", true)
	viper.SetDefault("fsc.heartbeat_period_seconds", 5)

	viper.SetDefault("rtp.manufacturer_framing", false)

	viper.SetDefault("serial.baud", 115200)
	viper.SetDefault("serial.manufacturer_framing", false)
	viper.SetDefault("serial.tx_jitter_ms", 100)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

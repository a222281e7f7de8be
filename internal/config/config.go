// Package config loads pagershim settings from YAML, the environment and
// built-in defaults.
package config

import (
	"time"

	"pagershim/internal/agent"
	"pagershim/internal/daemon"
)

// Config is the complete runtime configuration.
type Config struct {
	Main        MainConfig    `mapstructure:"main" yaml:"main"`
	Capture     CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Daemon      DaemonConfig  `mapstructure:"daemon" yaml:"daemon"`
	Personality agent.Config  `mapstructure:"personality" yaml:"personality"`
	Lists       ListsConfig   `mapstructure:"lists" yaml:"lists"`
	API         APIConfig     `mapstructure:"api" yaml:"api"`
	Logging     LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Report      ReportConfig  `mapstructure:"report" yaml:"report"`
}

// MainConfig names the radio and the networks never to touch.
type MainConfig struct {
	Interface         string   `mapstructure:"iface" yaml:"iface" validate:"required"`
	MonitorInterfaces []string `mapstructure:"monitor_interfaces" yaml:"monitor_interfaces" validate:"min=1,dive,required"`
	MonStartCmd       string   `mapstructure:"mon_start_cmd" yaml:"mon_start_cmd"`
	NoRestart         bool     `mapstructure:"no_restart" yaml:"no_restart"`
	// RecoveryFile keeps scheduler state between restarts. Empty disables it.
	RecoveryFile string `mapstructure:"recovery_file" yaml:"recovery_file"`
	// Whitelist is a list of SSIDs merged into lists.whitelist.
	Whitelist []string `mapstructure:"whitelist" yaml:"whitelist"`
}

// CaptureConfig tunes the monitors.
type CaptureConfig struct {
	HandshakeDir string `mapstructure:"handshakes" yaml:"handshakes" validate:"required"`
	// FrameSource is "tcpdump" or "pcap".
	FrameSource   string   `mapstructure:"frame_source" yaml:"frame_source" validate:"oneof=tcpdump pcap"`
	PcapSnapLen   int      `mapstructure:"pcap_snaplen" yaml:"pcap_snaplen" validate:"min=0"`
	PcapFilter    string   `mapstructure:"pcap_filter" yaml:"pcap_filter"`
	ReconInterval int      `mapstructure:"recon_interval" yaml:"recon_interval" validate:"min=1"`
	WatchInterval int      `mapstructure:"watch_interval" yaml:"watch_interval" validate:"min=1"`
	ClientTTL     int      `mapstructure:"client_ttl" yaml:"client_ttl" validate:"min=1"`
	Silence       []string `mapstructure:"silence" yaml:"silence"`
}

// DaemonConfig controls whether pineapd is managed and how it is launched.
type DaemonConfig struct {
	Manage        bool `mapstructure:"manage" yaml:"manage"`
	daemon.Config `mapstructure:",squash" yaml:",inline"`
}

// ListsConfig holds the target lists.
type ListsConfig struct {
	Whitelist []agent.ListEntry `mapstructure:"whitelist" yaml:"whitelist"`
	Blacklist []agent.ListEntry `mapstructure:"blacklist" yaml:"blacklist"`
}

// APIConfig configures the bettercap-compatible REST surface.
type APIConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Address  string `mapstructure:"address" yaml:"address" validate:"required_if=Enabled true"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// ReportConfig controls the end-of-run artifacts. Empty paths disable them.
type ReportConfig struct {
	Dir   string `mapstructure:"dir" yaml:"dir"`
	APLog string `mapstructure:"ap_log" yaml:"ap_log"`
}

// DefaultConfig returns the settings used on the Pager.
func DefaultConfig() *Config {
	return &Config{
		Main: MainConfig{
			Interface:         "wlan1mon",
			MonitorInterfaces: []string{"wlan1mon", "wlan0mon", "wlan2mon"},
			RecoveryFile:      "/root/loot/pagershim/recovery.json",
		},
		Capture: CaptureConfig{
			HandshakeDir:  "/root/loot/handshakes",
			FrameSource:   "tcpdump",
			PcapSnapLen:   256,
			PcapFilter:    "type data",
			ReconInterval: 3,
			WatchInterval: 2,
			ClientTTL:     300,
			Silence: []string{
				"ble.device.new", "ble.device.lost", "ble.device.disconnected",
				"ble.device.connected", "ble.device.service.discovered",
				"ble.device.characteristic.discovered",
				"wifi.client.new", "wifi.client.lost", "wifi.client.probe",
				"wifi.ap.new", "wifi.ap.lost", "mod.started",
			},
		},
		Daemon: DaemonConfig{
			Manage: true,
			Config: daemon.DefaultConfig("wlan1mon", "/root/loot/handshakes"),
		},
		Personality: agent.DefaultConfig(),
		API: APIConfig{
			Address:  "127.0.0.1:8081",
			Username: "pwnagotchi",
			Password: "pwnagotchi",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Report: ReportConfig{
			Dir:   "/root/loot/pagershim",
			APLog: "/root/loot/pagershim/aps.jsonl",
		},
	}
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// ReconPeriod is the recon poll period.
func (c CaptureConfig) ReconPeriod() time.Duration { return secs(c.ReconInterval) }

// WatchPeriod is the artifact scan period.
func (c CaptureConfig) WatchPeriod() time.Duration { return secs(c.WatchInterval) }

// ClientExpiry is how long an unseen client stays associated.
func (c CaptureConfig) ClientExpiry() time.Duration { return secs(c.ClientTTL) }

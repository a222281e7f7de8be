package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"pagershim/internal/agent"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "wlan1mon", cfg.Main.Interface)
	assert.Equal(t, "/root/loot/handshakes", cfg.Capture.HandshakeDir)
	assert.Equal(t, "/root/loot/pagershim/recovery.json", cfg.Main.RecoveryFile)
	assert.Equal(t, 3*time.Second, cfg.Capture.ReconPeriod())
	assert.Equal(t, 5*time.Minute, cfg.Capture.ClientExpiry())
	assert.True(t, cfg.Daemon.Manage)
	assert.Equal(t, "/usr/sbin/pineapd", cfg.Daemon.Binary)

	p := cfg.Personality
	assert.Equal(t, 30, p.ReconTime)
	assert.Equal(t, 10, p.HopReconTime)
	assert.Equal(t, 5, p.MinReconTime)
	assert.Equal(t, 0.4, p.ThrottleA)
	assert.Equal(t, 0.9, p.ThrottleD)
	assert.Equal(t, 3, p.MaxInteractions)
	assert.Equal(t, 10, p.MaxMissesForRecon)
	assert.Equal(t, "127.0.0.1:8081", cfg.API.Address)
	assert.NoError(t, cfg.Validate())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
main:
  iface: wlan2mon
  whitelist: [HomeNet]
personality:
  recon_time: 15
  channels: [1, 6, 11]
  deauth: false
lists:
  blacklist:
    - ssid: Target
    - bssid: aa:bb:cc:dd:ee:ff
daemon:
  manage: false
  bands: "2"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wlan2mon", cfg.Main.Interface)
	assert.Equal(t, []string{"HomeNet"}, cfg.Main.Whitelist)
	assert.Equal(t, 15, cfg.Personality.ReconTime)
	assert.Equal(t, []int{1, 6, 11}, cfg.Personality.Channels)
	assert.False(t, cfg.Personality.Deauth)
	assert.True(t, cfg.Personality.Associate)
	assert.Equal(t, 0.9, cfg.Personality.ThrottleD)
	assert.Equal(t, []agent.ListEntry{{SSID: "Target"}, {BSSID: "aa:bb:cc:dd:ee:ff"}}, cfg.Lists.Blacklist)
	assert.False(t, cfg.Daemon.Manage)
	assert.Equal(t, "2", cfg.Daemon.Bands)
	assert.Equal(t, "/etc/init.d/pineapd", cfg.Daemon.InitScript)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadWithDefaultsMissingFile(t *testing.T) {
	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Personality, cfg.Personality)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PAGERSHIM_MAIN_IFACE", "wlan9mon")
	t.Setenv("PAGERSHIM_API_ENABLED", "true")
	cfg, err := LoadWithDefaults("")
	require.NoError(t, err)
	assert.Equal(t, "wlan9mon", cfg.Main.Interface)
	assert.True(t, cfg.API.Enabled)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name, content, want string
	}{
		{"interactions", "personality:\n  max_interactions: 0\n", "personality.max_interactions"},
		{"recon time", "personality:\n  recon_time: -1\n", "personality.recon_time"},
		{"interval", "capture:\n  recon_interval: 0\n", "capture.recon_interval"},
		{"interfaces", "main:\n  monitor_interfaces: []\n", "main.monitor_interfaces"},
		{"frame source", "capture:\n  frame_source: nfqueue\n", "capture.frame_source"},
		{"log level", "logging:\n  level: loud\n", "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	data, err := DefaultConfig().YAML()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Contains(t, raw, "personality")
	daemon := raw["daemon"].(map[string]any)
	assert.Equal(t, "/usr/sbin/pineapd", daemon["binary"])
	assert.Equal(t, true, daemon["manage"])
}

func TestFormatFieldPath(t *testing.T) {
	assert.Equal(t, "capture.recon_interval", formatFieldPath("Config.Capture.ReconInterval"))
	assert.Equal(t, "api.address", formatFieldPath("Config.API.Address"))
}

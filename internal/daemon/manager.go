// Package daemon makes sure the recon daemon runs with handshake capture
// enabled, displacing the system service when it does not, and puts things
// back on shutdown.
package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pagershim/internal/execx"
)

// Config describes how to launch our own pineapd instance.
type Config struct {
	Binary        string   `mapstructure:"binary" yaml:"binary"`
	InitScript    string   `mapstructure:"init_script" yaml:"init_script"`
	Interface     string   `mapstructure:"interface" yaml:"interface"`
	ReconPath     string   `mapstructure:"recon_path" yaml:"recon_path"`
	ReconName     string   `mapstructure:"recon_name" yaml:"recon_name"`
	HandshakePath string   `mapstructure:"handshake_path" yaml:"handshake_path"`
	Bands         string   `mapstructure:"bands" yaml:"bands"`
	Type          string   `mapstructure:"type" yaml:"type"`
	Hop           string   `mapstructure:"hop" yaml:"hop"`
	ExtraArgs     []string `mapstructure:"extra_args" yaml:"extra_args"`
}

// DefaultConfig returns the launch settings used on the Pager.
func DefaultConfig(iface, handshakeDir string) Config {
	if iface == "" {
		iface = "wlan1mon"
	}
	if handshakeDir == "" {
		handshakeDir = "/root/loot/handshakes/"
	}
	if !strings.HasSuffix(handshakeDir, "/") {
		handshakeDir += "/"
	}
	return Config{
		Binary:        "/usr/sbin/pineapd",
		InitScript:    "/etc/init.d/pineapd",
		Interface:     iface,
		ReconPath:     "/root/recon/",
		ReconName:     "pager",
		HandshakePath: handshakeDir,
		Bands:         "2,5,6",
		Type:          "max",
		Hop:           "fast",
	}
}

// Args builds the pineapd command line. Handshake capture is always on.
func (c Config) Args() []string {
	args := []string{
		"--recon=true",
		"--reconpath", c.ReconPath,
		"--reconname", c.ReconName,
		"--handshakepath", c.HandshakePath,
		"--handshakes=true",
		"--partialhandshakes=true",
		"--interface", c.Interface,
		"--band", c.Interface + ":" + c.Bands,
		"--type", c.Interface + ":" + c.Type,
		"--hop", c.Interface + ":" + c.Hop,
		"--primary", c.Interface,
		"--inject", c.Interface,
	}
	return append(args, c.ExtraArgs...)
}

// NeedsRestart reports whether a running instance, given its pgrep -a
// output, lacks handshake capture.
func NeedsRestart(cmdline string) bool {
	if strings.Contains(cmdline, "--handshakes=false") {
		return true
	}
	return strings.TrimSpace(cmdline) != "" && !strings.Contains(cmdline, "--handshakes=true")
}

// Manager owns the pineapd lifecycle. Every failure is logged as a warning
// and the sequence carries on; nothing here is fatal to the caller.
type Manager struct {
	runner execx.Runner
	cfg    Config
	logger *slog.Logger

	StopGrace time.Duration
	// Sleep waits between lifecycle steps; tests replace it.
	Sleep func(ctx context.Context, d time.Duration)

	opMu sync.Mutex // serializes Ensure and Stop

	mu        sync.Mutex
	proc      execx.Process
	displaced bool
}

// NewManager creates a Manager that launches pineapd per cfg.
func NewManager(runner execx.Runner, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		runner:    runner,
		cfg:       cfg,
		logger:    logger.With("component", "daemon"),
		StopGrace: 5 * time.Second,
		Sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// OwnsProcess reports whether we launched the running pineapd.
func (m *Manager) OwnsProcess() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proc != nil
}

// DisplacedService reports whether the system service was stopped to make
// room for our instance.
func (m *Manager) DisplacedService() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.displaced
}

func (m *Manager) ownAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.proc == nil {
		return false
	}
	select {
	case <-m.proc.Done():
		m.proc = nil
		return false
	default:
		return true
	}
}

// Ensure leaves a capture-enabled pineapd running.
func (m *Manager) Ensure(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.ownAlive() {
		return
	}

	res, err := m.runner.Run(ctx, 5*time.Second, "pgrep", "-a", "pineapd")
	if err != nil {
		m.logger.Warn("could not check pineapd", "error", err)
		return
	}
	cmdline := res.Stdout

	switch {
	case NeedsRestart(cmdline):
		m.logger.Info("pineapd running without handshakes, restarting with capture enabled")
		m.mu.Lock()
		m.displaced = true
		m.mu.Unlock()
		m.displace(ctx)
		m.launch(ctx)
	case strings.TrimSpace(cmdline) != "":
		m.logger.Info("pineapd already has handshake capture enabled")
	default:
		m.logger.Info("no pineapd running, starting with handshakes enabled")
		m.launch(ctx)
	}
}

// displace stops the service and any stragglers. procd does not always
// honour the init script, hence the escalation.
func (m *Manager) displace(ctx context.Context) {
	m.exec(ctx, 10*time.Second, m.cfg.InitScript, "stop")
	m.Sleep(ctx, time.Second)
	m.exec(ctx, 5*time.Second, "killall", "pineapd")
	m.Sleep(ctx, time.Second)

	res, err := m.runner.Run(ctx, 5*time.Second, "pgrep", "pineapd")
	if err == nil && res.OK() {
		m.exec(ctx, 5*time.Second, "killall", "-9", "pineapd")
		m.Sleep(ctx, time.Second)
	}
}

func (m *Manager) launch(ctx context.Context) {
	proc, err := m.runner.Start(m.cfg.Binary, m.cfg.Args(), false)
	if err != nil {
		m.logger.Warn("could not start pineapd", "error", err)
		return
	}
	m.mu.Lock()
	m.proc = proc
	m.mu.Unlock()

	m.Sleep(ctx, 2*time.Second)
	m.logger.Info("pineapd started with handshake capture enabled", "pid", proc.Pid())
}

func (m *Manager) exec(ctx context.Context, timeout time.Duration, name string, args ...string) {
	if _, err := m.runner.Run(ctx, timeout, name, args...); err != nil {
		m.logger.Warn("lifecycle step failed", "cmd", name, "args", args, "error", err)
	}
}

// Stop terminates our instance and restarts the service if we displaced it.
func (m *Manager) Stop(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	proc, displaced := m.proc, m.displaced
	m.proc, m.displaced = nil, false
	m.mu.Unlock()

	if proc != nil {
		m.logger.Info("stopping our pineapd", "pid", proc.Pid())
		if err := proc.Terminate(m.StopGrace); err != nil {
			m.logger.Warn("error stopping pineapd", "error", err)
		}
	}
	if displaced {
		m.logger.Info("restarting pineapd service")
		m.exec(ctx, 10*time.Second, m.cfg.InitScript, "start")
	}
}

package shim

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"pagershim/internal/daemon"
	"pagershim/internal/events"
	"pagershim/internal/execx"
	"pagershim/internal/frames"
	"pagershim/internal/handshakes"
	"pagershim/internal/models"
	"pagershim/internal/pineap"
	"pagershim/internal/session"
	"pagershim/internal/vendor"
)

// Frame sources accepted in Options.FrameSource.
const (
	FrameSourceTcpdump = "tcpdump"
	FrameSourcePcap    = "pcap"
)

// Options configures a Backend.
type Options struct {
	// Interface is the monitor interface reported by Session.
	Interface string
	// MonitorInterfaces are probed in order by the frame tracker and the
	// current-channel query.
	MonitorInterfaces []string
	HandshakeDir      string
	ClientTTL         time.Duration

	ManageDaemon bool
	Daemon       daemon.Config

	FrameSource string
	Pcap        *frames.PcapConfig

	ReconInterval time.Duration
	WatchInterval time.Duration
	// StopWait bounds how long Stop waits for monitors to exit.
	StopWait time.Duration
}

// DefaultOptions returns the settings used on the Pager.
func DefaultOptions() Options {
	return Options{
		Interface:         "wlan1mon",
		MonitorInterfaces: append([]string(nil), frames.CandidateInterfaces...),
		HandshakeDir:      "/root/loot/handshakes",
		ClientTTL:         session.DefaultClientTTL,
		ManageDaemon:      true,
		Daemon:            daemon.DefaultConfig("wlan1mon", "/root/loot/handshakes"),
		FrameSource:       FrameSourceTcpdump,
		ReconInterval:     3 * time.Second,
		WatchInterval:     2 * time.Second,
		StopWait:          3 * time.Second,
	}
}

// Backend owns the session store, the monitors that feed it, and the
// daemon they observe.
type Backend struct {
	opts   Options
	logger *slog.Logger

	store   *session.Store
	queue   *events.Queue
	client  *pineap.Client
	poller  *pineap.Poller
	watcher *handshakes.Watcher
	tracker *frames.Tracker
	daemon  *daemon.Manager

	lifeMu sync.Mutex // serializes Start and Stop

	mu       sync.RWMutex
	state    models.BackendState
	cancel   context.CancelFunc
	monitors sync.WaitGroup
	channel  int
	focused  string
	iface    string
	settings map[string]string
}

// NewBackend wires the monitors together. Artifacts already in the
// handshake directory are primed so they are counted but not reported.
func NewBackend(runner execx.Runner, opts Options, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.MonitorInterfaces) == 0 {
		opts.MonitorInterfaces = append([]string(nil), frames.CandidateInterfaces...)
	}

	store := session.NewStore()
	store.SetClientTTL(opts.ClientTTL)
	queue := events.NewQueue()

	client := pineap.NewClient(runner, logger)
	client.Interfaces = opts.MonitorInterfaces

	poller := pineap.NewPoller(client, store, logger)
	poller.VendorOf = vendor.Lookup
	if opts.ReconInterval > 0 {
		poller.Interval = opts.ReconInterval
	}

	watcher := handshakes.NewWatcher(opts.HandshakeDir, store, queue, logger)
	if opts.WatchInterval > 0 {
		watcher.Interval = opts.WatchInterval
	}

	var source frames.Source
	if opts.FrameSource == FrameSourcePcap {
		source = frames.NewPcapSource(opts.Pcap)
	} else {
		source = frames.NewTcpdumpSource(runner)
	}
	tracker := frames.NewTracker(runner, store, source, logger)
	tracker.Interfaces = opts.MonitorInterfaces
	tracker.VendorOf = vendor.Lookup

	b := &Backend{
		opts:     opts,
		logger:   logger.With("component", "backend"),
		store:    store,
		queue:    queue,
		client:   client,
		poller:   poller,
		watcher:  watcher,
		tracker:  tracker,
		daemon:   daemon.NewManager(runner, opts.Daemon, logger),
		iface:    opts.Interface,
		settings: make(map[string]string),
	}
	if n := watcher.Prime(); n > 0 {
		b.logger.Info("found existing handshakes", "count", n, "dir", opts.HandshakeDir)
	}
	return b
}

// Store returns the session store.
func (b *Backend) Store() *session.Store { return b.store }

// Queue returns the event queue monitors publish to.
func (b *Backend) Queue() *events.Queue { return b.queue }

// Daemon returns the lifecycle manager.
func (b *Backend) Daemon() *daemon.Manager { return b.daemon }

// State returns the lifecycle state.
func (b *Backend) State() models.BackendState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Running reports whether the monitors are running.
func (b *Backend) Running() bool { return b.State() == models.BackendRunning }

func (b *Backend) setState(s models.BackendState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// Start ensures the daemon, releases any channel lock and launches the
// monitors. It is a no-op when already running. Monitors outlive ctx; they
// stop with Stop.
func (b *Backend) Start(ctx context.Context) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	if b.State() == models.BackendRunning {
		return nil
	}
	b.setState(models.BackendStarting)

	if err := os.MkdirAll(b.watcher.Dir(), 0o755); err != nil {
		b.logger.Warn("could not create handshake directory", "dir", b.watcher.Dir(), "error", err)
	}
	if b.opts.ManageDaemon {
		b.daemon.Ensure(ctx)
	}
	if err := b.client.ExamineCancel(ctx); err != nil {
		b.logger.Debug("examine cancel failed", "error", err)
	}

	monCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	b.launch(monCtx, "recon", b.poller.Run)
	b.launch(monCtx, "handshakes", b.watcher.Run)
	b.launch(monCtx, "clients", func(ctx context.Context) {
		if err := b.tracker.Run(ctx); err != nil {
			b.logger.Warn("client tracker exited", "error", err)
		}
	})

	b.setState(models.BackendRunning)
	b.logger.Info("started reconnaissance with client tracking")
	return nil
}

func (b *Backend) launch(ctx context.Context, name string, run func(context.Context)) {
	b.monitors.Add(1)
	go func() {
		defer b.monitors.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("monitor panicked", "monitor", name, "panic", r)
			}
		}()
		run(ctx)
	}()
}

// Stop halts the monitors, releases the channel lock and restores the
// daemon to how it was found.
func (b *Backend) Stop(ctx context.Context) {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	// Shutdown usually arrives with ctx already cancelled; the restore
	// steps still have to run.
	ctx = context.WithoutCancel(ctx)

	b.mu.Lock()
	wasRunning := b.state == models.BackendRunning
	b.state = models.BackendStopping
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.tracker.Stop()
	if wasRunning {
		b.waitMonitors()
	}

	if err := b.client.ExamineCancel(ctx); err != nil {
		b.logger.Debug("examine cancel failed", "error", err)
	}
	b.daemon.Stop(ctx)

	b.mu.Lock()
	b.state = models.BackendStopped
	b.channel, b.focused = 0, ""
	b.mu.Unlock()
	b.logger.Info("stopped reconnaissance")
}

func (b *Backend) waitMonitors() {
	done := make(chan struct{})
	go func() {
		b.monitors.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(b.opts.StopWait):
		b.logger.Warn("monitors did not exit in time", "wait", b.opts.StopWait)
	}
}

// SetChannel locks the radio to channel, or resumes hopping for 0.
func (b *Backend) SetChannel(ctx context.Context, channel int) {
	b.mu.Lock()
	b.channel, b.focused = channel, ""
	b.mu.Unlock()

	var err error
	if channel == 0 {
		err = b.client.ExamineCancel(ctx)
	} else {
		err = b.client.ExamineChannel(ctx, channel)
	}
	if err != nil {
		b.logger.Debug("channel change failed", "channel", channel, "error", err)
	}
}

// ClearFocus drops any channel or BSSID lock and resumes hopping.
func (b *Backend) ClearFocus(ctx context.Context) {
	b.SetChannel(ctx, 0)
}

// FocusBSSID locks the radio to the channel of bssid. The current channel
// follows the AP when it is in the table.
func (b *Backend) FocusBSSID(ctx context.Context, bssid string) error {
	b.mu.Lock()
	b.focused = bssid
	b.mu.Unlock()

	err := b.client.ExamineBSSID(ctx, bssid)
	if ap, ok := b.store.AccessPoint(bssid); ok {
		b.mu.Lock()
		b.channel = ap.Channel
		b.mu.Unlock()
	}
	return err
}

// Deauth kicks station (broadcast when empty) off bssid on the AP's known
// channel, else the current channel, else 1.
func (b *Backend) Deauth(ctx context.Context, bssid, station string) error {
	channel := 0
	if ap, ok := b.store.AccessPoint(bssid); ok {
		channel = ap.Channel
	}
	if channel == 0 {
		b.mu.RLock()
		channel = b.channel
		b.mu.RUnlock()
	}
	if channel == 0 {
		channel = 1
	}
	return b.client.Deauth(ctx, bssid, station, channel)
}

// Channel returns the locked channel, 0 while hopping.
func (b *Backend) Channel() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.channel
}

// Focused returns the BSSID the radio is locked to, if any.
func (b *Backend) Focused() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.focused
}

// CurrentChannel formats the radio channel as "11(2G)", or "*" while
// hopping. The interface is asked first; the locked channel is the
// fallback.
func (b *Backend) CurrentChannel(ctx context.Context) string {
	locked := b.Channel()
	if locked == 0 {
		return "*"
	}
	ch, freq, err := b.client.InterfaceChannel(ctx)
	if err != nil {
		if !errors.Is(err, pineap.ErrNoChannel) {
			b.logger.Debug("channel query failed", "error", err)
		}
		return models.ChannelLabel(locked)
	}
	return models.FrequencyLabel(ch, freq)
}

// ClearAccessPoints empties the AP table.
func (b *Backend) ClearAccessPoints() { b.store.ClearAccessPoints() }

// SetHandshakeDir retargets the capture watcher.
func (b *Backend) SetHandshakeDir(dir string) { b.watcher.SetDir(dir) }

// HandshakeDir returns the watched directory.
func (b *Backend) HandshakeDir() string { return b.watcher.Dir() }

// SetInterface records the monitor interface reported by Session.
func (b *Backend) SetInterface(iface string) {
	b.mu.Lock()
	b.iface = iface
	b.mu.Unlock()
}

// Interfaces returns the configured interface followed by the other
// monitor candidates.
func (b *Backend) Interfaces() []string {
	b.mu.RLock()
	out := []string{b.iface}
	b.mu.RUnlock()
	for _, name := range b.opts.MonitorInterfaces {
		if name != out[0] {
			out = append(out, name)
		}
	}
	return out
}

// SetSetting stores a wifi.* setting that has no direct effect.
func (b *Backend) SetSetting(key, value string) {
	b.mu.Lock()
	b.settings[key] = value
	b.mu.Unlock()
}

// Setting returns a stored wifi.* setting.
func (b *Backend) Setting(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.settings[key]
	return v, ok
}

// TotalHandshakes counts every known artifact, including pre-existing ones.
func (b *Backend) TotalHandshakes() int {
	return b.store.KnownFileCount(handshakes.Extension)
}

// LatestHandshake returns the most recent record of this run.
func (b *Backend) LatestHandshake() (models.HandshakeRecord, bool) {
	return b.store.LatestHandshake()
}

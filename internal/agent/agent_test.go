package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagershim/internal/models"
	"pagershim/internal/shim"
)

type fakeShim struct {
	mu       sync.Mutex
	cmds     []string
	failures map[string]string
	snap     shim.Snapshot
}

func newFakeShim(aps ...models.AccessPoint) *fakeShim {
	return &fakeShim{
		failures: make(map[string]string),
		snap: shim.Snapshot{
			WiFi:       shim.WiFi{APs: aps},
			Interfaces: []shim.Interface{{Name: "wlan1mon"}},
			Modules:    []shim.Module{{Name: "wifi"}, {Name: "wifi.recon"}},
		},
	}
}

func (f *fakeShim) Run(_ context.Context, line string) shim.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, line)
	for prefix, msg := range f.failures {
		if strings.HasPrefix(line, prefix) {
			return shim.Result{Success: false, Error: msg}
		}
	}
	return shim.Result{Success: true}
}

func (f *fakeShim) Session() shim.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeShim) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (l *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	l.mu.Lock()
	l.waits = append(l.waits, d)
	l.mu.Unlock()
	return ctx.Err()
}

func newTestScheduler(f *fakeShim, mutate func(*Options)) (*Scheduler, *sleepLog) {
	opts := Options{
		Config:       DefaultConfig(),
		Interface:    "wlan1mon",
		HandshakeDir: "/root/loot/handshakes",
	}
	if mutate != nil {
		mutate(&opts)
	}
	s := NewScheduler(f, opts, nil)
	log := &sleepLog{}
	s.Sleep = log.sleep
	return s, log
}

func wpa(mac, ssid string, ch int) models.AccessPoint {
	return models.AccessPoint{MAC: mac, Hostname: ssid, Channel: ch, Encryption: models.EncryptionWPA2}
}

func TestGroupByChannel(t *testing.T) {
	a, b, c := wpa("A", "a", 1), wpa("B", "b", 1), wpa("C", "c", 6)
	groups := GroupByChannel([]models.AccessPoint{a, b, c}, nil)
	require.Len(t, groups, 2)
	assert.Equal(t, 1, groups[0].Channel)
	assert.Equal(t, []models.AccessPoint{a, b}, groups[0].APs)
	assert.Equal(t, 6, groups[1].Channel)
	assert.Equal(t, []models.AccessPoint{c}, groups[1].APs)
}

func TestGroupByChannelTiesAndRestriction(t *testing.T) {
	aps := []models.AccessPoint{wpa("A", "a", 11), wpa("B", "b", 6), wpa("C", "c", 1), wpa("D", "d", 36)}
	groups := GroupByChannel(aps, nil)
	var order []int
	for _, g := range groups {
		order = append(order, g.Channel)
	}
	assert.Equal(t, []int{1, 6, 11, 36}, order)

	groups = GroupByChannel(aps, []int{6, 36})
	require.Len(t, groups, 2)
	assert.Equal(t, 6, groups[0].Channel)
	assert.Equal(t, 36, groups[1].Channel)
}

func TestFilterTargets(t *testing.T) {
	home := wpa("AA:AA:AA:AA:AA:01", "Home", 11)
	office := wpa("AA:AA:AA:AA:AA:02", "Office", 1)
	cafe := wpa("AA:AA:AA:AA:AA:03", "Cafe", 6)
	open := models.AccessPoint{MAC: "AA:AA:AA:AA:AA:04", Hostname: "Free", Encryption: models.EncryptionOpen}
	blank := models.AccessPoint{MAC: "AA:AA:AA:AA:AA:05", Hostname: "Blank"}
	all := []models.AccessPoint{home, office, cafe, open, blank}

	tests := []struct {
		name    string
		targets Targets
		want    []models.AccessPoint
	}{
		{"no lists", Targets{}, []models.AccessPoint{office, cafe, home}},
		{"whitelist by ssid", Targets{Whitelist: []ListEntry{{SSID: "home"}}}, []models.AccessPoint{office, cafe}},
		{"whitelist by bssid", Targets{Whitelist: []ListEntry{{BSSID: "aa:aa:aa:aa:aa:02"}}}, []models.AccessPoint{cafe, home}},
		{"blacklist only", Targets{
			Whitelist: []ListEntry{{SSID: "Cafe"}},
			Blacklist: []ListEntry{{SSID: "CAFE"}},
		}, []models.AccessPoint{cafe}},
		{"blacklist open network", Targets{Blacklist: []ListEntry{{SSID: "Free"}}}, []models.AccessPoint{}},
		{"substring is not a match", Targets{Whitelist: []ListEntry{{SSID: "Hom"}}}, []models.AccessPoint{office, cafe, home}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterTargets(all, tt.targets))
		})
	}
}

func TestTargetsWithSSIDs(t *testing.T) {
	base := Targets{Whitelist: []ListEntry{{SSID: "Home"}}}
	got := base.WithSSIDs([]string{"home", "Lab", ""})
	assert.Equal(t, []ListEntry{{SSID: "Home"}, {SSID: "Lab"}}, got.Whitelist)
	assert.Len(t, base.Whitelist, 1)
}

func TestInteractionPolicy(t *testing.T) {
	p := NewInteractionPolicy(3)
	assert.True(t, p.ShouldInteract("AA"))
	assert.True(t, p.ShouldInteract("AA"))
	assert.False(t, p.ShouldInteract("AA"))
	assert.False(t, p.ShouldInteract("AA"))

	assert.True(t, p.AddHandshake("11:22:33:44:55:66 -> AA:BB:CC:DD:EE:FF"))
	assert.False(t, p.AddHandshake("11:22:33:44:55:66 -> AA:BB:CC:DD:EE:FF"))
	assert.False(t, p.ShouldInteract("aa:bb:cc:dd:ee:ff"))
	assert.False(t, p.ShouldInteract("11:22:33:44:55:66"))
	assert.True(t, p.HasHandshake("AA:BB:CC:DD:EE:FF"))
	assert.Equal(t, 1, p.Handshakes())
}

func TestEpochRewardAndStreaks(t *testing.T) {
	e := NewEpoch(DefaultConfig(), nil)
	e.TrackAssoc()
	e.TrackDeauth()
	e.TrackDeauth()
	e.TrackHandshakes(1)
	d := e.Next()
	assert.Equal(t, 0, d.Epoch)
	assert.Equal(t, 1, d.ActiveFor)
	assert.Equal(t, 13.0, d.Reward)
	assert.Equal(t, MoodMotivated, d.Mood)
	assert.False(t, e.AnyActivity())

	e.Next()
	d = e.Next()
	assert.Equal(t, 2, d.InactiveFor)
	assert.Equal(t, 0, d.ActiveFor)
	assert.Equal(t, -2.0, d.Reward)
	assert.Equal(t, 3, e.Number())
}

func TestEpochStaleAndMood(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMissesForRecon = 2
	e := NewEpoch(cfg, nil)
	e.TrackMiss()
	e.TrackMiss()
	assert.False(t, e.Stale())
	e.TrackMiss()
	assert.True(t, e.Stale())
	assert.Equal(t, MoodLonely, e.Next().Mood)
	assert.False(t, e.Stale())

	for i := 0; i < 4; i++ {
		e.TrackMiss()
	}
	assert.Equal(t, MoodAngry, e.Next().Mood)
}

func TestEpochBlindStreak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBlindEpochs = 2
	e := NewEpoch(cfg, nil)
	e.Observe(0)
	assert.Equal(t, 1, e.Next().BlindFor)
	e.Observe(0)
	assert.Equal(t, 2, e.Next().BlindFor)
	e.Observe(0)
	assert.Equal(t, 1, e.Next().BlindFor)
	e.Observe(4)
	assert.Equal(t, 0, e.Next().BlindFor)
}

func TestSetupStartsRecon(t *testing.T) {
	f := newFakeShim()
	s, _ := newTestScheduler(f, func(o *Options) { o.Silence = []string{"wifi.ap.new"} })
	require.NoError(t, s.Setup(context.Background()))
	assert.Equal(t, []string{
		"events.ignore wifi.ap.new",
		"events.clear",
		"set wifi.interface wlan1mon",
		"set wifi.ap.ttl 120",
		"set wifi.sta.ttl 300",
		"set wifi.rssi.min -200",
		"set wifi.handshakes.file /root/loot/handshakes",
		"set wifi.handshakes.aggregate false",
		"wifi.recon on",
	}, f.commands())
}

func TestSetupRestartsRunningRecon(t *testing.T) {
	f := newFakeShim()
	f.snap.Modules[0].Running = true
	f.snap.Interfaces = nil
	s, _ := newTestScheduler(f, func(o *Options) { o.MonStartCmd = "monstart" })
	require.NoError(t, s.Setup(context.Background()))
	cmds := f.commands()
	assert.Contains(t, cmds, "!monstart")
	assert.Equal(t, []string{"wifi.recon off; wifi.recon on", "wifi.clear"}, cmds[len(cmds)-2:])
}

func TestReconWindow(t *testing.T) {
	f := newFakeShim()
	s, sleeps := newTestScheduler(f, nil)
	ctx := context.Background()

	require.NoError(t, s.Recon(ctx))
	assert.Equal(t, []time.Duration{30 * time.Second}, sleeps.waits)
	assert.Equal(t, "wifi.recon.channel clear", f.commands()[0])

	s.NextEpoch()
	s.NextEpoch()
	require.NoError(t, s.Recon(ctx))
	assert.Equal(t, 60*time.Second, sleeps.waits[1])
}

func TestReconOnConfiguredChannels(t *testing.T) {
	f := newFakeShim()
	s, _ := newTestScheduler(f, func(o *Options) { o.Config.Channels = []int{1, 6, 11} })
	require.NoError(t, s.Recon(context.Background()))
	assert.Equal(t, []string{"wifi.recon.channel 1,6,11"}, f.commands())
}

func TestSetChannelWaits(t *testing.T) {
	f := newFakeShim()
	s, sleeps := newTestScheduler(f, nil)
	ctx := context.Background()

	require.NoError(t, s.SetChannel(ctx, 1))
	assert.Empty(t, sleeps.waits, "no wait when leaving the hopping state")

	s.Epoch().TrackAssoc()
	require.NoError(t, s.SetChannel(ctx, 6))
	assert.Equal(t, []time.Duration{5 * time.Second}, sleeps.waits)

	s.Epoch().TrackDeauth()
	require.NoError(t, s.SetChannel(ctx, 11))
	assert.Equal(t, 10*time.Second, sleeps.waits[1])

	require.NoError(t, s.SetChannel(ctx, 11))
	assert.Len(t, sleeps.waits, 2)
	assert.Equal(t, []string{"wifi.recon.channel 1", "wifi.recon.channel 6", "wifi.recon.channel 11"}, f.commands())
	assert.Equal(t, "11(2G)", s.Stats().Channel)
}

func TestAssociateAndDeauthRespectPolicy(t *testing.T) {
	f := newFakeShim()
	s, sleeps := newTestScheduler(f, nil)
	ctx := context.Background()
	ap := wpa("AA:BB:CC:DD:EE:FF", "Coffee", 6)
	sta := models.Client{MAC: "11:22:33:44:55:66"}

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Associate(ctx, ap))
	}
	require.NoError(t, s.Deauth(ctx, ap, sta))
	assert.Equal(t, []string{
		"wifi.assoc AA:BB:CC:DD:EE:FF",
		"wifi.assoc AA:BB:CC:DD:EE:FF",
		"wifi.deauth AA:BB:CC:DD:EE:FF 11:22:33:44:55:66",
	}, f.commands())
	assert.Equal(t, []time.Duration{400 * time.Millisecond, 400 * time.Millisecond, 900 * time.Millisecond}, sleeps.waits)
	assert.True(t, s.Epoch().DidAssociate())
	assert.True(t, s.Epoch().DidDeauth())
}

func TestDisabledClassesSendNothing(t *testing.T) {
	f := newFakeShim()
	s, _ := newTestScheduler(f, func(o *Options) {
		o.Config.Associate = false
		o.Config.Deauth = false
	})
	ctx := context.Background()
	ap := wpa("AA:BB:CC:DD:EE:FF", "Coffee", 6)
	require.NoError(t, s.Associate(ctx, ap))
	require.NoError(t, s.Deauth(ctx, ap, models.Client{MAC: "11:22:33:44:55:66"}))
	assert.Empty(t, f.commands())
}

func TestUnknownBSSIDCountsAsMissAndGoesStale(t *testing.T) {
	f := newFakeShim()
	f.failures["wifi.assoc"] = "AA:BB:CC:DD:EE:01 is an unknown BSSID"
	s, _ := newTestScheduler(f, func(o *Options) {
		o.Config.MaxMissesForRecon = 1
		o.Config.MaxInteractions = 10
	})
	ctx := context.Background()

	for _, mac := range []string{"AA:BB:CC:DD:EE:01", "AA:BB:CC:DD:EE:02", "AA:BB:CC:DD:EE:03"} {
		require.NoError(t, s.Associate(ctx, wpa(mac, "", 1)))
	}
	assert.Equal(t, 2, s.Epoch().Missed())
	assert.True(t, s.Epoch().Stale())
	assert.Len(t, f.commands(), 2)

	require.NoError(t, s.SetChannel(ctx, 6))
	assert.Len(t, f.commands(), 2)
}

func TestOtherErrorsAreNotMisses(t *testing.T) {
	f := newFakeShim()
	f.failures["wifi.deauth"] = "_pineap exited 1"
	s, _ := newTestScheduler(f, nil)
	require.NoError(t, s.Deauth(context.Background(), wpa("AA", "", 1), models.Client{MAC: "BB"}))
	assert.Zero(t, s.Epoch().Missed())
	assert.False(t, s.Epoch().DidDeauth())
}

func TestRunEpochSweepsChannels(t *testing.T) {
	ap1 := wpa("AA:00:00:00:00:01", "One", 1)
	ap1.Clients = []models.Client{{MAC: "CC:00:00:00:00:01"}}
	ap2 := wpa("AA:00:00:00:00:02", "Two", 1)
	ap3 := wpa("AA:00:00:00:00:03", "Three", 6)
	f := newFakeShim(ap3, ap1, ap2)

	s, _ := newTestScheduler(f, nil)
	var finished []EpochData
	s.OnEpoch = func(d EpochData) { finished = append(finished, d) }
	rec := &apRecorder{}
	s.APLog = rec

	require.NoError(t, s.RunEpoch(context.Background()))
	assert.Equal(t, []string{
		"wifi.recon.channel clear",
		"wifi.recon.channel 1",
		"wifi.assoc AA:00:00:00:00:01",
		"wifi.deauth AA:00:00:00:00:01 CC:00:00:00:00:01",
		"wifi.assoc AA:00:00:00:00:02",
		"wifi.recon.channel 6",
		"wifi.assoc AA:00:00:00:00:03",
	}, f.commands())
	require.Len(t, finished, 1)
	assert.Equal(t, 3, finished[0].Assocs)
	assert.Equal(t, 1, finished[0].Deauths)
	assert.Equal(t, 2, finished[0].Hops)
	assert.Equal(t, 3, finished[0].APs)
	assert.Equal(t, 3, rec.count)
}

type apRecorder struct{ count int }

func (r *apRecorder) LogAPs(aps []models.AccessPoint) { r.count += len(aps) }

func TestRunStopsOnCancel(t *testing.T) {
	f := newFakeShim()
	s := NewScheduler(f, Options{Config: DefaultConfig()}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestOnEventRecordsHandshake(t *testing.T) {
	ap := wpa("AA:BB:CC:DD:EE:FF", "Coffee", 6)
	f := newFakeShim(ap)
	s, _ := newTestScheduler(f, nil)
	ctx := context.Background()
	msg := `{"tag":"wifi.client.handshake","data":{"file":"/x.22000","station":"11:22:33:44:55:66","ap":"AA:BB:CC:DD:EE:FF","ap_name":"FromFile"}}`

	require.NoError(t, s.OnEvent(ctx, msg))
	require.NoError(t, s.OnEvent(ctx, msg))
	st := s.Stats()
	assert.Equal(t, 1, st.SessionHandshakes)
	assert.Equal(t, "Coffee", st.LastPwnd)
	assert.False(t, s.Policy().ShouldInteract("AA:BB:CC:DD:EE:FF"))
	assert.Equal(t, 1, s.NextEpoch().Handshakes)

	require.NoError(t, s.OnEvent(ctx, `{"tag":"wifi.ap.new","data":{}}`))
	assert.Error(t, s.OnEvent(ctx, "not json"))
}

func TestOnEventNameFallbacks(t *testing.T) {
	hidden := wpa("AA:BB:CC:DD:EE:01", "<hidden>", 6)
	f := newFakeShim(hidden)
	s, _ := newTestScheduler(f, nil)
	ctx := context.Background()

	require.NoError(t, s.OnEvent(ctx, `{"tag":"wifi.client.handshake","data":{"station":"","ap":"AA:BB:CC:DD:EE:01","ap_name":"Secret"}}`))
	assert.Equal(t, "Secret", s.Stats().LastPwnd)

	require.NoError(t, s.OnEvent(ctx, `{"tag":"wifi.client.handshake","data":{"station":"","ap":"AA:BB:CC:DD:EE:02","ap_name":""}}`))
	assert.Equal(t, "AA:BB:CC:DD:EE:02", s.Stats().LastPwnd)
}

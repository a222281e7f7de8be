package shim

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagershim/internal/execx"
	"pagershim/internal/execx/exectest"
	"pagershim/internal/models"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"wifi.recon on", ReconOn{}},
		{"  wifi.recon off ", ReconOff{}},
		{"wifi.recon.channel clear", ReconChannel{Clear: true}},
		{"wifi.recon.channel 6", ReconChannel{Channels: []int{6}}},
		{"wifi.recon.channel 1,6,11", ReconChannel{Channels: []int{1, 6, 11}}},
		{"wifi.recon.channel six", ReconChannel{}},
		{"wifi.recon.channel", ReconChannel{}},
		{"wifi.clear", WifiClear{}},
		{"wifi.assoc AA:BB:CC:DD:EE:FF", Assoc{MAC: "AA:BB:CC:DD:EE:FF"}},
		{"wifi.assoc", Assoc{}},
		{"wifi.deauth AA:BB:CC:DD:EE:FF", Deauth{BSSID: "AA:BB:CC:DD:EE:FF"}},
		{"wifi.deauth AA:BB:CC:DD:EE:FF 11:22:33:44:55:66", Deauth{BSSID: "AA:BB:CC:DD:EE:FF", Station: "11:22:33:44:55:66"}},
		{"set wifi.handshakes.file /tmp/hs", SetWifi{Key: "handshakes.file", Value: "/tmp/hs"}},
		{"set wifi.rssi.min -200", SetWifi{Key: "rssi.min", Value: "-200"}},
		{"events.ignore wifi.ap.new", Events{Verb: "ignore wifi.ap.new"}},
		{"events.clear", Events{Verb: "clear"}},
		{"!echo hi", Shell{Line: "echo hi"}},
		{"wifi.recon", Unknown{Raw: "wifi.recon"}},
		{"ble.recon on", Unknown{Raw: "ble.recon on"}},
		{"set net.sniff.verbose true", Unknown{Raw: "set net.sniff.verbose true"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommand(tt.in))
		})
	}
}

func TestSplitCommands(t *testing.T) {
	assert.Equal(t, []string{"wifi.recon off", "wifi.recon on"}, SplitCommands("wifi.recon off; wifi.recon on"))
	assert.Equal(t, []string{"!a; b"}, SplitCommands("!a; b"))
	assert.Empty(t, SplitCommands(" ; "))
}

type harness struct {
	runner  *exectest.Runner
	backend *Backend
	router  *Router
	dir     string
}

func newHarness(t *testing.T, manageDaemon bool) *harness {
	t.Helper()
	runner := exectest.New()
	opts := DefaultOptions()
	opts.HandshakeDir = t.TempDir()
	opts.ManageDaemon = manageDaemon
	opts.ReconInterval = 10 * time.Millisecond
	opts.WatchInterval = 10 * time.Millisecond
	b := NewBackend(runner, opts, nil)
	b.Daemon().Sleep = func(context.Context, time.Duration) {}
	t.Cleanup(func() { b.Stop(context.Background()) })
	return &harness{runner: runner, backend: b, router: NewRouter(b, runner, nil), dir: opts.HandshakeDir}
}

func TestChannelLockThenClearResumesHopping(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	require.True(t, h.router.Run(ctx, "wifi.recon.channel 6").Success)
	assert.Equal(t, 6, h.backend.Channel())
	assert.True(t, h.runner.Called("_pineap EXAMINE CHANNEL 6 300"))
	assert.Equal(t, "6(2G)", h.backend.CurrentChannel(ctx))

	require.True(t, h.router.Run(ctx, "wifi.recon.channel clear").Success)
	assert.Equal(t, 0, h.backend.Channel())
	assert.Empty(t, h.backend.Focused())
	assert.Equal(t, "*", h.backend.CurrentChannel(ctx))
}

func TestMultiChannelDoesNotLock(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.router.Run(ctx, "wifi.recon.channel 6")
	h.router.Run(ctx, "wifi.recon.channel 1,6,11")
	assert.Equal(t, 0, h.backend.Channel())
	assert.False(t, h.runner.Called("_pineap EXAMINE CHANNEL 1"))
}

func TestCurrentChannelPrefersInterface(t *testing.T) {
	h := newHarness(t, false)
	h.runner.On("iw dev wlan1mon info", execx.Result{Stdout: "\tchannel 36 (5180 MHz), width: 20 MHz"})
	ctx := context.Background()
	h.router.Run(ctx, "wifi.recon.channel 6")
	assert.Equal(t, "36(5G)", h.backend.CurrentChannel(ctx))
}

func TestCurrentChannelLabels6GHzByFrequency(t *testing.T) {
	h := newHarness(t, false)
	h.runner.On("iw dev wlan1mon info", execx.Result{Stdout: "\tchannel 5 (5975 MHz), width: 20 MHz"})
	ctx := context.Background()
	h.router.Run(ctx, "wifi.recon.channel 5")
	assert.Equal(t, "5(6G)", h.backend.CurrentChannel(ctx))
}

func TestAssocFocusesAndFollowsAPChannel(t *testing.T) {
	h := newHarness(t, false)
	h.backend.Store().ReplaceAccessPoints([]models.AccessPoint{{MAC: "AA:BB:CC:DD:EE:FF", Channel: 11}})

	res := h.router.Run(context.Background(), "wifi.assoc AA:BB:CC:DD:EE:FF")
	require.True(t, res.Success)
	assert.True(t, h.runner.Called("_pineap EXAMINE BSSID AA:BB:CC:DD:EE:FF 300"))
	assert.Equal(t, 11, h.backend.Channel())
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", h.backend.Focused())
}

func TestDeauthChannelResolution(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.backend.Store().ReplaceAccessPoints([]models.AccessPoint{{MAC: "AA:BB:CC:DD:EE:01", Channel: 11}})

	h.router.Run(ctx, "wifi.deauth AA:BB:CC:DD:EE:01 11:22:33:44:55:66")
	assert.True(t, h.runner.Called("_pineap DEAUTH AA:BB:CC:DD:EE:01 11:22:33:44:55:66 11"))

	h.router.Run(ctx, "wifi.deauth AA:BB:CC:DD:EE:02")
	assert.True(t, h.runner.Called("_pineap DEAUTH AA:BB:CC:DD:EE:02 FF:FF:FF:FF:FF:FF 1"))

	h.router.Run(ctx, "wifi.recon.channel 44")
	h.router.Run(ctx, "wifi.deauth AA:BB:CC:DD:EE:03")
	assert.True(t, h.runner.Called("_pineap DEAUTH AA:BB:CC:DD:EE:03 FF:FF:FF:FF:FF:FF 44"))
}

func TestDeauthFailureIsReported(t *testing.T) {
	h := newHarness(t, false)
	h.runner.On("_pineap DEAUTH", execx.Result{ExitCode: 1, Stderr: "AA:BB:CC:DD:EE:01 is an unknown BSSID"})
	res := h.router.Run(context.Background(), "wifi.deauth AA:BB:CC:DD:EE:01")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "is an unknown BSSID")
}

func TestAttackBareExitCodeSucceeds(t *testing.T) {
	h := newHarness(t, false)
	h.runner.On("_pineap DEAUTH", execx.Result{ExitCode: 1})
	h.runner.On("_pineap EXAMINE BSSID", execx.Result{ExitCode: 2})
	ctx := context.Background()

	assert.Equal(t, Result{Success: true}, h.router.Run(ctx, "wifi.deauth AA:BB:CC:DD:EE:01"))
	assert.Equal(t, Result{Success: true}, h.router.Run(ctx, "wifi.assoc AA:BB:CC:DD:EE:01"))
	assert.True(t, h.runner.Called("_pineap DEAUTH AA:BB:CC:DD:EE:01"))
}

func TestUnknownAndEventsAreNoOps(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	assert.Equal(t, Result{Success: true}, h.router.Run(ctx, "ble.recon on"))
	assert.Equal(t, Result{Success: true}, h.router.Run(ctx, "events.clear"))
	assert.Empty(t, h.runner.Calls())
}

func TestWifiClearKeepsAssociations(t *testing.T) {
	h := newHarness(t, false)
	store := h.backend.Store()
	store.ReplaceAccessPoints([]models.AccessPoint{{MAC: "AA:BB:CC:DD:EE:01"}})
	store.RecordClient("aa:bb:cc:dd:ee:01", "11:22:33:44:55:66", "")

	h.router.Run(context.Background(), "wifi.clear")
	assert.Zero(t, store.APCount())
	assert.Len(t, store.Clients("AA:BB:CC:DD:EE:01"), 1)
}

func TestSetWifi(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	dir := t.TempDir()

	h.router.Run(ctx, "set wifi.handshakes.file "+dir)
	assert.Equal(t, dir, h.backend.HandshakeDir())

	h.router.Run(ctx, "set wifi.interface wlan9mon")
	snap := h.router.Session()
	require.NotEmpty(t, snap.Interfaces)
	assert.Equal(t, "wlan9mon", snap.Interfaces[0].Name)

	h.router.Run(ctx, "set wifi.ap.ttl 120")
	v, ok := h.backend.Setting("ap.ttl")
	assert.True(t, ok)
	assert.Equal(t, "120", v)
}

func TestShellEscape(t *testing.T) {
	h := newHarness(t, false)
	h.runner.On("sh -c echo hi", execx.Result{Stdout: "hi\n"})
	h.runner.On("sh -c false", execx.Result{ExitCode: 1})
	h.runner.OnFunc("sh -c sleep", func([]string) (execx.Result, error) {
		return execx.Result{ExitCode: -1}, execx.ErrTimeout
	})
	ctx := context.Background()

	assert.Equal(t, Result{Success: true, Output: "hi\n"}, h.router.Run(ctx, "!echo hi"))
	assert.False(t, h.router.Run(ctx, "!false").Success)

	res := h.router.Run(ctx, "!sleep 60")
	assert.False(t, res.Success)
	assert.Equal(t, execx.ErrTimeout.Error(), res.Error)
}

func TestResultJSON(t *testing.T) {
	data, err := json.Marshal(Result{Success: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(data))
}

func TestSessionShape(t *testing.T) {
	h := newHarness(t, false)
	store := h.backend.Store()
	store.ReplaceAccessPoints([]models.AccessPoint{{MAC: "AA:BB:CC:DD:EE:01", Hostname: "Coffee", Channel: 6, RSSI: -40, Encryption: models.EncryptionWPA2}})
	store.RecordClient("AA:BB:CC:DD:EE:01", "11:22:33:44:55:66", "Acme")

	snap := h.router.Session()
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	aps := decoded["wifi"].(map[string]any)["aps"].([]any)
	require.Len(t, aps, 1)
	ap := aps[0].(map[string]any)
	assert.Equal(t, "Coffee", ap["hostname"])
	clients := ap["clients"].([]any)
	require.Len(t, clients, 1)
	assert.Equal(t, map[string]any{"mac": "11:22:33:44:55:66", "vendor": "Acme"}, clients[0])

	m, ok := snap.Module("wifi.recon")
	require.True(t, ok)
	assert.False(t, m.Running)

	// Mutating the snapshot does not reach the store.
	snap.WiFi.APs[0].Clients[0].MAC = "changed"
	assert.Equal(t, "11:22:33:44:55:66", store.Clients("AA:BB:CC:DD:EE:01")[0].MAC)
}

func TestReconOnOffLifecycle(t *testing.T) {
	h := newHarness(t, false)
	h.runner.On("_pineap RECON APS", execx.Result{Stdout: `[{"mac":"aa:bb:cc:dd:ee:01","signal":-40,"beacon":{"x":{"ssid":"Coffee","channel":6}}}]`})
	ctx := context.Background()

	require.True(t, h.router.Run(ctx, "wifi.recon on").Success)
	assert.Equal(t, models.BackendRunning, h.backend.State())
	assert.True(t, h.router.Session().Modules[1].Running)
	require.Eventually(t, func() bool { return h.backend.Store().APCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return h.runner.Called("start tcpdump") }, 2*time.Second, 10*time.Millisecond)

	require.True(t, h.router.Run(ctx, "wifi.recon off; wifi.recon on").Success)
	assert.Equal(t, models.BackendRunning, h.backend.State())

	h.router.Run(ctx, "wifi.recon off")
	assert.Equal(t, models.BackendStopped, h.backend.State())
	for _, p := range h.runner.Processes() {
		assert.True(t, p.Terminated(), p.Line)
	}
}

func TestHandshakeArtifactRaisesEvent(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	require.True(t, h.router.Run(ctx, "wifi.recon on").Success)

	line := "WPA*02*4d4943*aabbccddeeff*112233445566*436f66666565*00\n"
	tmp := filepath.Join(h.dir, "x.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(line), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(h.dir, "x.22000")))

	require.Eventually(t, func() bool { return h.backend.Queue().Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.backend.TotalHandshakes())
	rec, ok := h.backend.LatestHandshake()
	require.True(t, ok)
	assert.Equal(t, "Coffee", rec.APName)
}

func TestStopRestoresDisplacedService(t *testing.T) {
	h := newHarness(t, true)
	h.runner.On("pgrep -a pineapd", execx.Result{Stdout: "42 /usr/sbin/pineapd --recon=true\n"})
	h.runner.On("pgrep pineapd", execx.Result{ExitCode: 1})
	ctx := context.Background()

	require.True(t, h.router.Run(ctx, "wifi.recon on").Success)
	require.True(t, h.backend.Daemon().OwnsProcess())
	require.True(t, h.backend.Daemon().DisplacedService())

	h.router.Run(ctx, "wifi.recon off")
	var daemonProc *exectest.Process
	for _, p := range h.runner.Processes() {
		if strings.HasPrefix(p.Line, "/usr/sbin/pineapd") {
			daemonProc = p
		}
	}
	require.NotNil(t, daemonProc)
	assert.True(t, daemonProc.Terminated())
	assert.True(t, h.runner.Called("/etc/init.d/pineapd start"))
}

func TestPreExistingArtifactsAreCountedNotReported(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.22000"),
		[]byte("WPA*02*4d4943*aabbccddeeff*112233445566*436f66666565*00\n"), 0o644))

	opts := DefaultOptions()
	opts.HandshakeDir = dir
	b := NewBackend(exectest.New(), opts, nil)
	assert.Equal(t, 1, b.TotalHandshakes())
	_, ok := b.LatestHandshake()
	assert.False(t, ok)
	essid, ok := b.Store().Identity("AA:BB:CC:DD:EE:FF")
	assert.True(t, ok)
	assert.Equal(t, "Coffee", essid)
}

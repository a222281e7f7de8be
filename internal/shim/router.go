package shim

import (
	"context"
	"log/slog"
	"time"

	"pagershim/internal/execx"
	"pagershim/internal/models"
)

// Result is the outcome of a command, shaped like bettercap's reply.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok() Result { return Result{Success: true} }

func fail(err error) Result { return Result{Success: false, Error: err.Error()} }

// Snapshot is a point-in-time copy of the session.
type Snapshot struct {
	WiFi       WiFi        `json:"wifi"`
	Interfaces []Interface `json:"interfaces"`
	Modules    []Module    `json:"modules"`
}

type WiFi struct {
	APs []models.AccessPoint `json:"aps"`
}

type Interface struct {
	Name string `json:"name"`
}

type Module struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// Module returns the named module, if present.
func (s Snapshot) Module(name string) (Module, bool) {
	for _, m := range s.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}

// Router translates commands into backend operations. It is the only
// write path into the backend.
type Router struct {
	backend *Backend
	runner  execx.Runner
	logger  *slog.Logger

	ShellTimeout time.Duration
}

// NewRouter creates a Router over backend. runner executes shell escapes.
func NewRouter(backend *Backend, runner execx.Runner, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		backend:      backend,
		runner:       runner,
		logger:       logger.With("component", "router"),
		ShellTimeout: 30 * time.Second,
	}
}

// Backend returns the backend the router drives.
func (r *Router) Backend() *Backend { return r.backend }

// Run executes a command line. Several commands may be joined with ';';
// they run in order and the line fails if any of them fails. Unknown
// commands succeed without effect.
func (r *Router) Run(ctx context.Context, line string) Result {
	parts := SplitCommands(line)
	if len(parts) == 0 {
		return ok()
	}

	var last Result
	var failed *Result
	for _, part := range parts {
		r.logger.Debug("run", "cmd", part)
		last = r.Exec(ctx, ParseCommand(part))
		if !last.Success && failed == nil {
			res := last
			failed = &res
		}
	}
	if failed != nil {
		return *failed
	}
	return last
}

// Exec runs one parsed command.
func (r *Router) Exec(ctx context.Context, cmd Command) Result {
	b := r.backend
	switch c := cmd.(type) {
	case ReconOn:
		if err := b.Start(ctx); err != nil {
			return fail(err)
		}
	case ReconOff:
		b.Stop(ctx)
	case ReconChannel:
		switch {
		case c.Clear:
			b.ClearFocus(ctx)
		case len(c.Channels) == 1:
			b.SetChannel(ctx, c.Channels[0])
		case len(c.Channels) > 1:
			// The daemon's own hop schedule covers several bands.
			b.ClearFocus(ctx)
		}
	case WifiClear:
		b.ClearAccessPoints()
	case Assoc:
		if c.MAC == "" {
			break
		}
		r.logger.Info("focusing for PMKID capture", "ap", c.MAC)
		if err := b.FocusBSSID(ctx, c.MAC); err != nil {
			return fail(err)
		}
	case Deauth:
		if c.BSSID == "" {
			break
		}
		if err := b.Deauth(ctx, c.BSSID, c.Station); err != nil {
			return fail(err)
		}
	case SetWifi:
		r.set(c)
	case Events:
	case Shell:
		return r.shell(ctx, c.Line)
	case Unknown:
		r.logger.Debug("unhandled command", "cmd", c.Raw)
	}
	return ok()
}

func (r *Router) set(c SetWifi) {
	switch c.Key {
	case "handshakes.file", "handshakes":
		if c.Value != "" {
			r.backend.SetHandshakeDir(c.Value)
		}
	case "interface":
		if c.Value != "" {
			r.backend.SetInterface(c.Value)
		}
	default:
		r.backend.SetSetting(c.Key, c.Value)
	}
}

func (r *Router) shell(ctx context.Context, line string) Result {
	res, err := r.runner.Run(ctx, r.ShellTimeout, "sh", "-c", line)
	if err != nil {
		return fail(err)
	}
	return Result{Success: res.OK(), Output: res.Stdout}
}

// Session returns a deep copy of the session.
func (r *Router) Session() Snapshot {
	b := r.backend
	snap := Snapshot{WiFi: WiFi{APs: b.Store().Snapshot()}}
	for _, name := range b.Interfaces() {
		snap.Interfaces = append(snap.Interfaces, Interface{Name: name})
	}
	running := b.Running()
	snap.Modules = []Module{
		{Name: "wifi", Running: running},
		{Name: "wifi.recon", Running: running},
	}
	return snap
}

// KnownHandshakes returns handshakes found on disk at startup and those
// captured since.
func (r *Router) KnownHandshakes() []models.HandshakeRecord {
	st := r.backend.Store()
	return append(st.PriorHandshakes(), st.Handshakes()...)
}

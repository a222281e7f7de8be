package frames

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"pagershim/internal/execx"
	"pagershim/internal/models"
	"pagershim/internal/session"
)

// CandidateInterfaces are the monitor interfaces probed, in order.
var CandidateInterfaces = []string{"wlan1mon", "wlan0mon", "wlan2mon"}

// ErrNoInterface means none of the candidate interfaces exists.
var ErrNoInterface = errors.New("no monitor interface found")

// Source produces frame summaries from a monitor interface. The channel is
// closed when capture ends.
type Source interface {
	Name() string
	Open(ctx context.Context, iface string) (<-chan models.FrameSummary, error)
	Close() error
}

// TcpdumpSource runs tcpdump in line-buffered link-header mode and parses
// its text output.
type TcpdumpSource struct {
	runner execx.Runner
	Grace  time.Duration

	mu   sync.Mutex
	proc execx.Process
}

// NewTcpdumpSource returns a source that runs tcpdump through runner.
func NewTcpdumpSource(runner execx.Runner) *TcpdumpSource {
	return &TcpdumpSource{runner: runner, Grace: 2 * time.Second}
}

func (s *TcpdumpSource) Name() string { return "tcpdump" }

// Open starts tcpdump on iface.
func (s *TcpdumpSource) Open(ctx context.Context, iface string) (<-chan models.FrameSummary, error) {
	proc, err := s.runner.Start("tcpdump", []string{"-i", iface, "-e", "-n", "-l", "type", "data"}, true)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()

	out := make(chan models.FrameSummary, 64)
	go func() {
		defer close(out)
		stdout := proc.Stdout()
		if c, ok := stdout.(io.Closer); ok {
			defer c.Close()
		}
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case out <- Extract(line):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close terminates tcpdump.
func (s *TcpdumpSource) Close() error {
	s.mu.Lock()
	proc := s.proc
	s.proc = nil
	s.mu.Unlock()
	if proc == nil {
		return nil
	}
	return proc.Terminate(s.Grace)
}

// Tracker feeds captured frames through a Pipeline into the session store.
type Tracker struct {
	runner   execx.Runner
	store    *session.Store
	source   Source
	pipeline *Pipeline
	logger   *slog.Logger

	Interfaces []string
	// VendorOf resolves the manufacturer of a new client. Optional.
	VendorOf func(mac string) string
}

// NewTracker creates a Tracker reading from source.
func NewTracker(runner execx.Runner, store *session.Store, source Source, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		runner:     runner,
		store:      store,
		source:     source,
		pipeline:   NewPipeline(store.IsKnownAP),
		logger:     logger.With("component", "clients"),
		Interfaces: CandidateInterfaces,
	}
}

// SelectInterface returns the first candidate that `ip link show` knows.
func (t *Tracker) SelectInterface(ctx context.Context) (string, error) {
	for _, name := range t.Interfaces {
		res, err := t.runner.Run(ctx, 5*time.Second, "ip", "link", "show", name)
		if err == nil && res.OK() {
			return name, nil
		}
	}
	return "", ErrNoInterface
}

// Run captures until ctx is done or the source ends. A missing monitor
// interface is logged and is not an error.
func (t *Tracker) Run(ctx context.Context) error {
	iface, err := t.SelectInterface(ctx)
	if err != nil {
		t.logger.Warn("client tracking disabled", "error", err)
		return nil
	}

	frames, err := t.source.Open(ctx, iface)
	if err != nil {
		return fmt.Errorf("failed to start %s on %s: %w", t.source.Name(), iface, err)
	}
	defer t.source.Close()
	t.logger.Info("client tracker started", "iface", iface, "source", t.source.Name())

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("client tracker stopped")
			return nil
		case sum, ok := <-frames:
			if !ok {
				t.logger.Info("client tracker stopped", "reason", "capture ended")
				return nil
			}
			t.Handle(sum)
		}
	}
}

// Stop ends the capture; Run returns once the source drains.
func (t *Tracker) Stop() {
	if err := t.source.Close(); err != nil {
		t.logger.Debug("failed to stop capture", "error", err)
	}
}

// HandleLine processes one tcpdump line and returns the number of new
// associations.
func (t *Tracker) HandleLine(line string) int {
	return t.Handle(Extract(line))
}

// Handle records the associations implied by sum.
func (t *Tracker) Handle(sum models.FrameSummary) (n int) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Debug("frame parse error", "panic", r)
		}
	}()
	for _, a := range t.pipeline.Process(sum) {
		if !t.store.RecordClient(a.AP, a.Client, "") {
			continue
		}
		n++
		if t.VendorOf != nil {
			t.store.SetClientVendor(a.AP, a.Client, t.VendorOf(a.Client))
		}
		t.logger.Info("new client", "client", a.Client, "ap", a.AP)
	}
	return n
}

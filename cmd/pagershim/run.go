package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pagershim/internal/agent"
	"pagershim/internal/api"
	"pagershim/internal/events"
	"pagershim/internal/logging"
	"pagershim/internal/reporting"
	"pagershim/internal/tui"
)

var runTUI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the shim and the autonomous recon and attack loop",
	Long: `Run starts the shim, brings the recon module up and then cycles
through epochs of recon, channel hopping, association and deauthentication
until interrupted. A session report is written on exit.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show the live dashboard; logs go to the report directory")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	runID := uuid.NewString()
	started := time.Now()

	log := logger
	if runTUI {
		f, err := openLogFile(cfg.Report.Dir)
		if err != nil {
			return err
		}
		defer f.Close()
		if log, err = logging.Setup(cfg.Logging.Level, cfg.Logging.Format, f); err != nil {
			return err
		}
	}
	log = log.With("run", runID)

	router := newRouter(cfg, log)
	backend := router.Backend()

	sched := agent.NewScheduler(router, schedulerOptions(cfg), log)
	var epochs reporting.EpochLog
	sched.OnEpoch = epochs.Add
	if cfg.Report.APLog != "" {
		aplog, err := reporting.NewAPLog(cfg.Report.APLog, log)
		if err != nil {
			log.Warn("ap log disabled", "error", err)
		} else {
			sched.APLog = aplog
		}
	}

	hub := api.NewHub(log)
	var wg sync.WaitGroup
	startEvents(ctx, &wg, events.NewBridge(backend.Queue(), log), log,
		sched.OnEvent, hub.Consume)
	if cfg.API.Enabled {
		startAPI(ctx, &wg, api.NewServer(router, hub, apiOptions(cfg), log), log)
	}

	if err := sched.Setup(ctx); err != nil {
		cancel()
		wg.Wait()
		backend.Stop(context.Background())
		return fmt.Errorf("setup failed: %w", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- sched.Run(ctx) }()

	if runTUI {
		p := tea.NewProgram(tui.NewDashboardModel(sched, router, cfg.Main.Interface),
			tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			log.Error("dashboard exited", "error", err)
		}
		cancel()
	}

	runErr := <-errc
	cancel()
	wg.Wait()
	backend.Stop(context.Background())
	if err := sched.SaveRecovery(); err != nil {
		log.Error("failed to save recovery data", "error", err)
	}

	if cfg.Report.Dir != "" {
		path, err := reporting.GenerateSessionReport(cfg.Report.Dir, reporting.Session{
			RunID:           runID,
			Started:         started,
			Ended:           time.Now(),
			TotalHandshakes: backend.TotalHandshakes(),
			Handshakes:      backend.Store().Handshakes(),
			APs:             router.Session().WiFi.APs,
			Epochs:          epochs.Epochs(),
		}, "html")
		if err != nil {
			log.Error("failed to write session report", "error", err)
		} else {
			log.Info("session report written", "file", path)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// startEvents drains backend events into every consumer in order. A consumer
// error is logged and does not keep the event from the others.
func startEvents(ctx context.Context, wg *sync.WaitGroup, bridge *events.Bridge, log *slog.Logger, consumers ...events.Consumer) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := bridge.Start(ctx, func(ctx context.Context, msg string) error {
			for _, c := range consumers {
				if err := c(ctx, msg); err != nil {
					log.Debug("event consumer failed", "error", err)
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("event bridge stopped", "error", err)
		}
	}()
}

func startAPI(ctx context.Context, wg *sync.WaitGroup, srv *api.Server, log *slog.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(ctx); err != nil {
			log.Error("api server stopped", "error", err)
		}
	}()
}

func openLogFile(dir string) (*os.File, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return os.OpenFile(filepath.Join(dir, "pagershim.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

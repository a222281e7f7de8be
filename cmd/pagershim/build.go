package main

import (
	"log/slog"

	"pagershim/internal/agent"
	"pagershim/internal/api"
	"pagershim/internal/config"
	"pagershim/internal/execx"
	"pagershim/internal/frames"
	"pagershim/internal/shim"
)

// shimOptions maps the loaded configuration onto the backend options.
func shimOptions(c *config.Config) shim.Options {
	opts := shim.DefaultOptions()
	opts.Interface = c.Main.Interface
	opts.MonitorInterfaces = append([]string(nil), c.Main.MonitorInterfaces...)
	opts.HandshakeDir = c.Capture.HandshakeDir
	opts.ClientTTL = c.Capture.ClientExpiry()
	opts.ManageDaemon = c.Daemon.Manage
	opts.Daemon = c.Daemon.Config
	opts.FrameSource = c.Capture.FrameSource
	opts.ReconInterval = c.Capture.ReconPeriod()
	opts.WatchInterval = c.Capture.WatchPeriod()
	if c.Capture.FrameSource == shim.FrameSourcePcap {
		opts.Pcap = &frames.PcapConfig{
			SnapLen: int32(c.Capture.PcapSnapLen),
			Filter:  c.Capture.PcapFilter,
		}
	}
	return opts
}

// schedulerOptions maps the loaded configuration onto the scheduler options.
func schedulerOptions(c *config.Config) agent.Options {
	targets := agent.Targets{
		Whitelist: append([]agent.ListEntry(nil), c.Lists.Whitelist...),
		Blacklist: append([]agent.ListEntry(nil), c.Lists.Blacklist...),
	}
	return agent.Options{
		Config:       c.Personality,
		Targets:      targets.WithSSIDs(c.Main.Whitelist),
		Interface:    c.Main.Interface,
		HandshakeDir: c.Capture.HandshakeDir,
		MonStartCmd:  c.Main.MonStartCmd,
		NoRestart:    c.Main.NoRestart,
		Silence:      append([]string(nil), c.Capture.Silence...),
		RecoveryFile: c.Main.RecoveryFile,
	}
}

func apiOptions(c *config.Config) api.Options {
	return api.Options{
		Address:  c.API.Address,
		Username: c.API.Username,
		Password: c.API.Password,
	}
}

func newRouter(c *config.Config, l *slog.Logger) *shim.Router {
	runner := execx.NewRunner()
	backend := shim.NewBackend(runner, shimOptions(c), l)
	return shim.NewRouter(backend, runner, l)
}

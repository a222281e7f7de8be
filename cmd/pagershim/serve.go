package main

import (
	"context"
	"sync"

	"github.com/spf13/cobra"

	"pagershim/internal/api"
	"pagershim/internal/events"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the shim over the REST API without the scheduler",
	Long: `Serve exposes the command surface over HTTP for an external
controller. Recon is not started until a client sends "wifi.recon on".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		opts := apiOptions(cfg)
		if serveAddr != "" {
			opts.Address = serveAddr
		}

		router := newRouter(cfg, logger)
		backend := router.Backend()
		defer backend.Stop(context.Background())

		hub := api.NewHub(logger)
		var wg sync.WaitGroup
		startEvents(ctx, &wg, events.NewBridge(backend.Queue(), logger), logger, hub.Consume)

		err := api.NewServer(router, hub, opts, logger).ListenAndServe(ctx)
		wg.Wait()
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides api.address)")
}

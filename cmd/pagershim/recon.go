package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"pagershim/internal/models"
)

var reconFor time.Duration

var reconCmd = &cobra.Command{
	Use:   "recon",
	Short: "Run recon for a while and print the access points seen",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		router := newRouter(cfg, logger)
		backend := router.Backend()
		defer backend.Stop(ctx)

		if err := backend.Start(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
		case <-time.After(reconFor):
		}

		out := cmd.OutOrStdout()
		printAPs(out, router.Session().WiFi.APs, useColor(out))
		return nil
	},
}

func init() {
	reconCmd.Flags().DurationVar(&reconFor, "for", 30*time.Second, "how long to listen")
}

// useColor reports whether w is a terminal and NO_COLOR is unset.
func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// printAPs writes aps as a table, strongest signal first.
func printAPs(w io.Writer, aps []models.AccessPoint, colored bool) {
	slices.SortStableFunc(aps, func(a, b models.AccessPoint) int {
		return b.RSSI - a.RSSI
	})

	tbl := table.New("BSSID", "ENC", "PWR", "CH", "ESSID", "CLIENTS", "MANUFACTURER").WithWriter(w)
	if colored {
		tbl.WithHeaderFormatter(color.New(color.BgHiBlue, color.FgHiWhite).SprintfFunc())
	}
	for _, ap := range aps {
		tbl.AddRow(ap.MAC, ap.Encryption, ap.RSSI, models.FrequencyLabel(ap.Channel, ap.Frequency), ap.Hostname, len(ap.Clients), ap.Vendor)
	}
	tbl.Print()
	fmt.Fprintf(w, "\n%d access points\n", len(aps))
}

package pineap

import (
	"context"
	"log/slog"
	"time"

	"pagershim/internal/session"
)

// Poller refreshes the session AP table from the daemon.
type Poller struct {
	client *Client
	store  *session.Store
	logger *slog.Logger

	Interval time.Duration
	VendorOf func(mac string) string
}

// NewPoller creates a Poller that writes into store.
func NewPoller(client *Client, store *session.Store, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:   client,
		store:    store,
		logger:   logger.With("component", "recon"),
		Interval: 3 * time.Second,
	}
}

// Refresh fetches the AP list once and replaces the AP table with it.
// Hidden SSIDs are filled from identities learned from captured artifacts.
// On error the table is left alone.
func (p *Poller) Refresh(ctx context.Context) (int, error) {
	aps, err := p.client.ReconAPs(ctx)
	if err != nil {
		return 0, err
	}
	for i := range aps {
		if aps[i].Hostname == "" {
			if essid, ok := p.store.Identity(aps[i].MAC); ok {
				aps[i].Hostname = essid
			}
		}
		if p.VendorOf != nil {
			aps[i].Vendor = p.VendorOf(aps[i].MAC)
		}
	}
	p.store.ReplaceAccessPoints(aps)
	return len(aps), nil
}

// Run refreshes every Interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		p.safeRefresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) safeRefresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("recon refresh panicked", "panic", r)
		}
	}()
	if _, err := p.Refresh(ctx); err != nil {
		p.logger.Debug("recon refresh failed", "error", err)
	}
}

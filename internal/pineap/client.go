// Package pineap drives the recon daemon through its _pineap command-line
// client and keeps the session AP table in sync with it.
package pineap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"pagershim/internal/execx"
	"pagershim/internal/models"
)

// FocusSeconds is how long EXAMINE locks the radio.
const FocusSeconds = 300

// Broadcast is the station used when a deauth names none.
const Broadcast = "FF:FF:FF:FF:FF:FF"

var (
	// ErrNoOutput means the daemon printed nothing.
	ErrNoOutput = errors.New("no output from _pineap")
	// ErrNoChannel means no candidate interface reported a channel.
	ErrNoChannel = errors.New("no interface reported a channel")
)

var iwChannel = regexp.MustCompile(`channel\s+(\d+)\s+\((\d+)\s*MHz\)`)

// failureMarkers identify output that reports a real failure. _pineap also
// exits non-zero to report counts, so the exit code alone says nothing.
var failureMarkers = []string{"is an unknown bssid", "error", "invalid", "failed", "not running", "usage:"}

// IsFailureOutput reports whether out carries one of the failure markers.
func IsFailureOutput(out string) bool {
	out = strings.ToLower(out)
	for _, m := range failureMarkers {
		if strings.Contains(out, m) {
			return true
		}
	}
	return false
}

// CommandError is returned when _pineap exits non-zero and says why.
type CommandError struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("_pineap %v exited %d: %s", e.Args, e.ExitCode, e.Output)
}

// Client issues _pineap and iw commands.
type Client struct {
	runner execx.Runner
	logger *slog.Logger

	Timeout time.Duration
	// Interfaces are queried in order by InterfaceChannel.
	Interfaces []string
}

// NewClient returns a Client that runs commands through runner.
func NewClient(runner execx.Runner, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		runner:     runner,
		logger:     logger.With("component", "pineap"),
		Timeout:    10 * time.Second,
		Interfaces: []string{"wlan1mon", "wlan0mon", "wlan2mon"},
	}
}

func (c *Client) run(ctx context.Context, args ...string) (execx.Result, error) {
	res, err := c.runner.Run(ctx, c.Timeout, "_pineap", args...)
	if err != nil {
		c.logger.Debug("_pineap failed", "args", args, "error", err)
		return res, err
	}
	if !res.OK() {
		if IsFailureOutput(res.Output()) {
			return res, &CommandError{Args: args, ExitCode: res.ExitCode, Output: res.Output()}
		}
		c.logger.Debug("_pineap non-zero exit", "args", args, "exit", res.ExitCode, "output", res.Output())
	}
	return res, nil
}

// ReconAPs fetches the daemon's current AP list.
func (c *Client) ReconAPs(ctx context.Context) ([]models.AccessPoint, error) {
	res, err := c.runner.Run(ctx, c.Timeout, "_pineap", "RECON", "APS", "format=json", "limit=100")
	if err != nil {
		return nil, err
	}
	out := res.Output()
	if out == "" {
		return nil, fmt.Errorf("%w (exit %d)", ErrNoOutput, res.ExitCode)
	}
	return ParseReconAPs([]byte(out))
}

// ExamineChannel locks the radio to channel.
func (c *Client) ExamineChannel(ctx context.Context, channel int) error {
	_, err := c.run(ctx, "EXAMINE", "CHANNEL", strconv.Itoa(channel), strconv.Itoa(FocusSeconds))
	return err
}

// ExamineBSSID locks the radio to the channel of bssid.
func (c *Client) ExamineBSSID(ctx context.Context, bssid string) error {
	_, err := c.run(ctx, "EXAMINE", "BSSID", bssid, strconv.Itoa(FocusSeconds))
	return err
}

// ExamineCancel releases any lock and resumes hopping.
func (c *Client) ExamineCancel(ctx context.Context) error {
	_, err := c.run(ctx, "EXAMINE", "CANCEL")
	return err
}

// Deauth asks the daemon to deauthenticate station from bssid on channel.
// An empty station targets broadcast.
func (c *Client) Deauth(ctx context.Context, bssid, station string, channel int) error {
	if station == "" {
		station = Broadcast
	}
	c.logger.Info("deauth", "station", station, "ap", bssid, "channel", channel)
	_, err := c.run(ctx, "DEAUTH", bssid, station, strconv.Itoa(channel))
	return err
}

// InterfaceChannel returns the channel and centre frequency of the first
// interface iw reports one for.
func (c *Client) InterfaceChannel(ctx context.Context) (channel, freq int, err error) {
	for _, iface := range c.Interfaces {
		res, runErr := c.runner.Run(ctx, c.Timeout, "iw", "dev", iface, "info")
		if runErr != nil || !res.OK() {
			continue
		}
		m := iwChannel.FindStringSubmatch(res.Output())
		if m == nil {
			continue
		}
		channel, _ = strconv.Atoi(m[1])
		freq, _ = strconv.Atoi(m[2])
		return channel, freq, nil
	}
	return 0, 0, ErrNoChannel
}

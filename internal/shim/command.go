// Package shim exposes the recon daemon through a bettercap-style command
// and session interface.
package shim

import (
	"strconv"
	"strings"
)

// Command is one parsed command. The set of implementations is closed.
type Command interface {
	command()
}

type (
	// ReconOn starts the backend and its monitors.
	ReconOn struct{}
	// ReconOff stops them.
	ReconOff struct{}
	// ReconChannel locks to a single channel, or resumes hopping when
	// Clear is set or more than one channel is given. No channels and no
	// Clear means the argument did not parse; the command is then a no-op.
	ReconChannel struct {
		Clear    bool
		Channels []int
	}
	// WifiClear empties the AP table.
	WifiClear struct{}
	// Assoc focuses the daemon on a BSSID.
	Assoc struct{ MAC string }
	// Deauth asks the daemon to deauthenticate Station (broadcast if empty)
	// from BSSID.
	Deauth struct{ BSSID, Station string }
	// SetWifi is "set wifi.<Key> <Value>".
	SetWifi struct{ Key, Value string }
	// Events is any events.* command.
	Events struct{ Verb string }
	// Shell is "!<Line>".
	Shell struct{ Line string }
	// Unknown is anything else.
	Unknown struct{ Raw string }
)

func (ReconOn) command()      {}
func (ReconOff) command()     {}
func (ReconChannel) command() {}
func (WifiClear) command()    {}
func (Assoc) command()        {}
func (Deauth) command()       {}
func (SetWifi) command()      {}
func (Events) command()       {}
func (Shell) command()        {}
func (Unknown) command()      {}

// ParseCommand parses a single command.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "!") {
		return Shell{Line: strings.TrimSpace(line[1:])}
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Unknown{Raw: line}
	}

	switch head := fields[0]; {
	case head == "wifi.recon" && len(fields) == 2 && fields[1] == "on":
		return ReconOn{}
	case head == "wifi.recon" && len(fields) == 2 && fields[1] == "off":
		return ReconOff{}
	case head == "wifi.recon.channel":
		return parseReconChannel(fields[1:])
	case head == "wifi.clear" && len(fields) == 1:
		return WifiClear{}
	case head == "wifi.assoc":
		if len(fields) < 2 {
			return Assoc{}
		}
		return Assoc{MAC: fields[1]}
	case head == "wifi.deauth":
		d := Deauth{}
		if len(fields) > 1 {
			d.BSSID = fields[1]
		}
		if len(fields) > 2 {
			d.Station = fields[2]
		}
		return d
	case head == "set" && len(fields) >= 2 && strings.HasPrefix(fields[1], "wifi."):
		return SetWifi{
			Key:   strings.TrimPrefix(fields[1], "wifi."),
			Value: strings.Join(fields[2:], " "),
		}
	case strings.HasPrefix(head, "events."):
		return Events{Verb: strings.TrimPrefix(line, "events.")}
	}
	return Unknown{Raw: line}
}

func parseReconChannel(args []string) ReconChannel {
	if len(args) == 0 {
		return ReconChannel{}
	}
	if args[0] == "clear" {
		return ReconChannel{Clear: true}
	}
	var channels []int
	for _, part := range strings.Split(args[0], ",") {
		ch, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return ReconChannel{}
		}
		channels = append(channels, ch)
	}
	return ReconChannel{Channels: channels}
}

// SplitCommands splits a ';'-separated command line. Shell escapes are
// never split.
func SplitCommands(line string) []string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "!") {
		return []string{line}
	}
	var out []string
	for _, part := range strings.Split(line, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

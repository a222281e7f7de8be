// Package reporting writes the artifacts a run leaves behind: an HTML
// session summary and a JSON-lines log of access points.
package reporting

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pagershim/internal/agent"
	"pagershim/internal/models"
)

// Session is everything a report covers.
type Session struct {
	RunID           string
	Started         time.Time
	Ended           time.Time
	TotalHandshakes int
	Handshakes      []models.HandshakeRecord
	APs             []models.AccessPoint
	Epochs          []agent.EpochData
}

// EpochLog collects finished epochs for the report. Its Add method fits
// agent.Scheduler.OnEpoch.
type EpochLog struct {
	mu     sync.Mutex
	epochs []agent.EpochData
}

func (l *EpochLog) Add(d agent.EpochData) {
	l.mu.Lock()
	l.epochs = append(l.epochs, d)
	l.mu.Unlock()
}

// Epochs returns a copy of the collected epochs.
func (l *EpochLog) Epochs() []agent.EpochData {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]agent.EpochData, len(l.epochs))
	copy(out, l.epochs)
	return out
}

// GenerateSessionReport writes report_<timestamp>.html into dir and
// returns its path. Only "html" is supported.
func GenerateSessionReport(dir string, s Session, format string) (string, error) {
	if format != "html" {
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	if s.Ended.IsZero() {
		s.Ended = time.Now()
	}
	stamp := s.Ended.Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("report_%s.html", stamp))

	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>pagershim session report - %s</title>
    <style>
        body { font-family: sans-serif; margin: 20px; color: #333; }
        h1, h2 { color: #2c3e50; }
        table { width: 100%%; border-collapse: collapse; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .summary { background: #eef; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
        .pwnd { color: #d9534f; font-weight: bold; }
    </style>
</head>
<body>
    <h1>pagershim session report</h1>
    <div class="summary">
        <p><strong>Run:</strong> %s</p>
        <p><strong>Started:</strong> %s</p>
        <p><strong>Duration:</strong> %s</p>
        <p><strong>Epochs:</strong> %d</p>
        <p><strong>Handshakes this run:</strong> %d (%d on disk)</p>
        <p><strong>Access points in view:</strong> %d</p>
    </div>
`, esc(s.RunID), esc(s.RunID), s.Started.Format(time.RFC1123), s.Ended.Sub(s.Started).Round(time.Second),
		len(s.Epochs), len(s.Handshakes), s.TotalHandshakes, len(s.APs))

	b.WriteString(`
    <h2>Handshakes</h2>
    <table>
        <thead>
            <tr><th>Time</th><th>Network</th><th>AP</th><th>Station</th><th>File</th></tr>
        </thead>
        <tbody>
`)
	if len(s.Handshakes) == 0 {
		b.WriteString("            <tr><td colspan=\"5\">No handshakes captured during this session.</td></tr>\n")
	}
	for _, h := range s.Handshakes {
		fmt.Fprintf(&b, "            <tr><td>%s</td><td class=\"pwnd\">%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			h.CapturedAt.Format("15:04:05"), esc(h.APName), esc(h.AP), esc(h.Station), esc(filepath.Base(h.File)))
	}
	b.WriteString("        </tbody>\n    </table>\n")

	b.WriteString(`
    <h2>Access Points</h2>
    <table>
        <thead>
            <tr><th>BSSID</th><th>SSID</th><th>Channel</th><th>Encryption</th><th>RSSI</th><th>Clients</th></tr>
        </thead>
        <tbody>
`)
	if len(s.APs) == 0 {
		b.WriteString("            <tr><td colspan=\"6\">No access points seen.</td></tr>\n")
	}
	for _, ap := range s.APs {
		fmt.Fprintf(&b, "            <tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%d</td></tr>\n",
			esc(ap.MAC), esc(ap.Hostname), models.FrequencyLabel(ap.Channel, ap.Frequency), ap.Encryption, ap.RSSI, len(ap.Clients))
	}
	b.WriteString("        </tbody>\n    </table>\n")

	b.WriteString(`
    <h2>Epochs</h2>
    <table>
        <thead>
            <tr><th>#</th><th>Duration</th><th>APs</th><th>Hops</th><th>Assocs</th><th>Deauths</th><th>Missed</th><th>Handshakes</th><th>Reward</th><th>Mood</th></tr>
        </thead>
        <tbody>
`)
	for _, e := range s.Epochs {
		fmt.Fprintf(&b, "            <tr><td>%d</td><td>%s</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%.2f</td><td>%s</td></tr>\n",
			e.Epoch, e.Duration.Round(time.Second), e.APs, e.Hops, e.Assocs, e.Deauths, e.Missed, e.Handshakes, e.Reward, e.Mood)
	}
	b.WriteString(`        </tbody>
    </table>
</body>
</html>
`)

	if err := os.WriteFile(filename, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return filename, nil
}

// SSIDs are attacker controlled.
func esc(s string) string { return html.EscapeString(s) }

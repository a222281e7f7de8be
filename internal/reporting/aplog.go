package reporting

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pagershim/internal/models"
)

// APEntry is one line of the AP log.
type APEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	MAC        string            `json:"mac"`
	SSID       string            `json:"ssid"`
	Channel    int               `json:"channel"`
	Encryption models.Encryption `json:"encryption"`
	RSSI       int               `json:"rssi"`
	Clients    int               `json:"clients"`
}

// APLog appends one JSON object per newly seen access point to a file.
// Each BSSID is written once per run.
type APLog struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewAPLog creates the parent directory of path. The file itself is
// opened on each write.
func NewAPLog(path string, logger *slog.Logger) (*APLog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ap log directory: %w", err)
	}
	return &APLog{
		path:   path,
		logger: logger.With("component", "aplog"),
		now:    time.Now,
		seen:   make(map[string]struct{}),
	}, nil
}

// Path returns the log file.
func (l *APLog) Path() string { return l.path }

// LogAPs writes the APs not logged before. Write failures are logged.
func (l *APLog) LogAPs(aps []models.AccessPoint) {
	if err := l.write(aps); err != nil {
		l.logger.Error("failed to write ap log", "error", err)
	}
}

func (l *APLog) write(aps []models.AccessPoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var entries []APEntry
	batch := make(map[string]struct{}, len(aps))
	for _, ap := range aps {
		if ap.MAC == "" {
			continue
		}
		key := models.NormalizeMAC(ap.MAC)
		if _, ok := l.seen[key]; ok {
			continue
		}
		if _, ok := batch[key]; ok {
			continue
		}
		batch[key] = struct{}{}
		entries = append(entries, APEntry{
			Timestamp:  now,
			MAC:        ap.MAC,
			SSID:       ap.Hostname,
			Channel:    ap.Channel,
			Encryption: ap.Encryption,
			RSSI:       ap.RSSI,
			Clients:    len(ap.Clients),
		})
	}
	if len(entries) == 0 {
		return nil
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			f.Close()
			return err
		}
		l.seen[models.NormalizeMAC(e.MAC)] = struct{}{}
	}
	if err := f.Close(); err != nil {
		return err
	}
	l.logger.Debug("logged access points", "count", len(entries))
	return nil
}

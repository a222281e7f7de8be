package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pagershim/internal/models"
)

// HandshakeSource is implemented by shims that know of handshakes captured
// before the scheduler started, such as artifacts already on disk.
type HandshakeSource interface {
	KnownHandshakes() []models.HandshakeRecord
}

// Recovery is the scheduler state written between epochs and read back on
// the next start.
type Recovery struct {
	StartedAt time.Time `json:"started_at"`
	Epoch     int       `json:"epoch"`
	LastPwnd  string    `json:"last_pwnd"`
	PolicyState
}

// SaveRecovery writes the recovery file. It is a no-op when none is
// configured.
func (s *Scheduler) SaveRecovery() error {
	path := s.opts.RecoveryFile
	if path == "" {
		return nil
	}

	s.mu.Lock()
	rec := Recovery{StartedAt: s.started, LastPwnd: s.lastPwnd}
	s.mu.Unlock()
	rec.Epoch = s.epoch.Number()
	rec.PolicyState = s.policy.State()

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create recovery directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write recovery data: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write recovery data: %w", err)
	}
	return nil
}

// LoadRecovery applies and then deletes the recovery file. It reports
// whether one was found.
func (s *Scheduler) LoadRecovery() (bool, error) {
	path := s.opts.RecoveryFile
	if path == "" {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read recovery data: %w", err)
	}

	var rec Recovery
	if err := json.Unmarshal(data, &rec); err != nil {
		return false, fmt.Errorf("failed to decode recovery data: %w", err)
	}

	s.epoch.SetNumber(rec.Epoch)
	s.policy.Restore(rec.PolicyState)
	s.mu.Lock()
	s.lastPwnd = rec.LastPwnd
	if !rec.StartedAt.IsZero() {
		s.started = rec.StartedAt
	}
	s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		s.logger.Debug("failed to delete recovery data", "error", err)
	}
	return true, nil
}

// seedHandshakes feeds handshakes the shim already knows of into the
// interaction policy so their APs are not attacked again.
func (s *Scheduler) seedHandshakes() {
	src, ok := s.shim.(HandshakeSource)
	if !ok {
		return
	}
	n := 0
	for _, rec := range src.KnownHandshakes() {
		key := rec.Key
		if key == "" {
			key = models.HandshakeKey(rec.Station, rec.AP)
		}
		if s.policy.AddHandshake(key) {
			n++
		}
	}
	if n > 0 {
		s.logger.Info("skipping networks with known handshakes", "count", n)
	}
}

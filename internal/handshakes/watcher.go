package handshakes

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pagershim/internal/models"
	"pagershim/internal/session"
)

// Publisher receives handshake events.
type Publisher interface {
	Publish(models.Event)
}

// Watcher polls a directory for new 22000 artifacts. An fsnotify watch, when
// available, shortens the wait between a file appearing and the next scan.
//
// A path is marked known before it is parsed, so an artifact that does not
// parse on its first appearance is never retried.
type Watcher struct {
	store  *session.Store
	pub    Publisher
	logger *slog.Logger

	Interval time.Duration
	Settle   time.Duration

	mu   sync.RWMutex
	dir  string
	wake chan struct{}
}

// NewWatcher creates a Watcher for dir. Call Prime before Run so artifacts
// from earlier sessions are not reported as new.
func NewWatcher(dir string, store *session.Store, pub Publisher, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:    store,
		pub:      pub,
		logger:   logger.With("component", "handshakes"),
		Interval: 2 * time.Second,
		Settle:   500 * time.Millisecond,
		dir:      dir,
		wake:     make(chan struct{}, 1),
	}
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dir
}

// SetDir retargets the watcher. Files already in the new directory are
// primed before the directory is published, so no scan can report them.
func (w *Watcher) SetDir(dir string) {
	if dir == "" || dir == w.Dir() {
		return
	}
	n := w.primeDir(dir)

	w.mu.Lock()
	w.dir = dir
	w.mu.Unlock()

	w.logger.Info("handshake directory changed", "dir", dir, "existing", n)
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watcher) list(dir string) []string {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+Extension))
	if err != nil {
		w.logger.Debug("glob failed", "error", err)
		return nil
	}
	sort.Strings(paths)
	return paths
}

// Prime marks every artifact currently on disk as known, learns the
// identities they carry and records them as prior handshakes, without
// emitting events. It returns the number of newly known files.
func (w *Watcher) Prime() int {
	return w.primeDir(w.Dir())
}

func (w *Watcher) primeDir(dir string) int {
	n := 0
	for _, path := range w.list(dir) {
		if !w.store.MarkFileKnown(path) {
			continue
		}
		n++
		a, err := ParseFile(path)
		if err != nil {
			continue
		}
		if a.ESSID != "" {
			w.store.LearnIdentity(a.AP, a.ESSID)
			w.logger.Debug("learned ESSID", "essid", a.ESSID, "ap", a.AP)
		}
		captured := w.store.Now()
		if fi, err := os.Stat(path); err == nil {
			captured = fi.ModTime()
		}
		w.store.RecordPrior(models.HandshakeRecord{
			Key:        models.HandshakeKey(a.Station, a.AP),
			File:       path,
			AP:         a.AP,
			Station:    a.Station,
			APName:     w.apName(a),
			CapturedAt: captured,
		})
	}
	return n
}

// Scan processes artifacts not seen before and returns the number of new
// handshake records.
func (w *Watcher) Scan() int {
	n := 0
	for _, path := range w.list(w.Dir()) {
		if !w.store.MarkFileKnown(path) {
			continue
		}
		if w.process(path) {
			n++
		}
	}
	return n
}

func (w *Watcher) process(path string) bool {
	a, err := ParseFile(path)
	if err != nil {
		w.logger.Debug("skipping unparsable artifact", "file", path, "error", err)
		return false
	}
	w.logger.Info("new handshake detected", "file", filepath.Base(path))

	if a.ESSID != "" {
		w.store.LearnIdentity(a.AP, a.ESSID)
		w.logger.Info("learned ESSID", "essid", a.ESSID, "ap", a.AP)
	}

	rec := models.HandshakeRecord{
		Key:        models.HandshakeKey(a.Station, a.AP),
		File:       path,
		AP:         a.AP,
		Station:    a.Station,
		APName:     w.apName(a),
		CapturedAt: w.store.Now(),
	}
	if !w.store.RecordHandshake(rec) {
		return false
	}
	w.pub.Publish(models.NewHandshakeEvent(rec))
	return true
}

func (w *Watcher) apName(a Artifact) string {
	if a.ESSID != "" {
		return a.ESSID
	}
	if essid, ok := w.store.Identity(a.AP); ok {
		return essid
	}
	if ap, ok := w.store.AccessPoint(a.AP); ok {
		return ap.Hostname
	}
	return ""
}

// Run scans every Interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	var fsEvents <-chan fsnotify.Event
	var fsErrors <-chan error
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Debug("fsnotify unavailable, polling only", "error", err)
	} else {
		defer fsw.Close()
		fsEvents, fsErrors = fsw.Events, fsw.Errors
	}

	watched := ""
	rewatch := func() {
		dir := w.Dir()
		if fsw == nil || dir == watched {
			return
		}
		if watched != "" {
			_ = fsw.Remove(watched)
			watched = ""
		}
		if err := fsw.Add(dir); err != nil {
			w.logger.Debug("fsnotify add failed, polling only", "dir", dir, "error", err)
			return
		}
		watched = dir
	}

	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	w.safeScan()
	rewatch()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.safeScan()
			rewatch()
		case <-settle.C:
			w.safeScan()
		case <-w.wake:
			rewatch()
		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !strings.HasSuffix(ev.Name, Extension) {
				continue
			}
			settle.Reset(w.Settle)
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			w.logger.Debug("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) safeScan() {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handshake scan panicked", "panic", r)
		}
	}()
	w.Scan()
}

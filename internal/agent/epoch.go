package agent

import (
	"log/slog"
	"sync"
	"time"
)

// Mood summarizes how the last epoch went.
type Mood string

const (
	MoodNormal    Mood = "normal"
	MoodLonely    Mood = "lonely"
	MoodAngry     Mood = "angry"
	MoodSad       Mood = "sad"
	MoodBored     Mood = "bored"
	MoodMotivated Mood = "motivated"
	MoodExcited   Mood = "excited"
)

// EpochData is the record of one finished epoch.
type EpochData struct {
	Epoch       int           `json:"epoch"`
	Duration    time.Duration `json:"duration"`
	Hops        int           `json:"hops"`
	Assocs      int           `json:"assocs"`
	Deauths     int           `json:"deauths"`
	Handshakes  int           `json:"handshakes"`
	Missed      int           `json:"missed"`
	Slept       time.Duration `json:"slept"`
	APs         int           `json:"aps"`
	InactiveFor int           `json:"inactive_for"`
	ActiveFor   int           `json:"active_for"`
	BlindFor    int           `json:"blind_for"`
	SadFor      int           `json:"sad_for"`
	BoredFor    int           `json:"bored_for"`
	Reward      float64       `json:"reward"`
	Mood        Mood          `json:"mood"`
}

// Reward scores an epoch: handshakes count ten, associations and deauths
// one each, and every consecutive inactive epoch costs one.
func Reward(d EpochData) float64 {
	return float64(d.Handshakes)*10 + float64(d.Deauths) + float64(d.Assocs) - float64(d.InactiveFor)
}

// Epoch tracks activity within the current epoch and the streaks across
// epochs. It is safe for concurrent use; handshake events arrive on the
// event consumer goroutine.
type Epoch struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	epoch   int
	started time.Time

	hops, assocs, deauths, handshakes, missed int
	slept                                     time.Duration
	aps                                       int

	inactiveFor, activeFor, blindFor int
	sadFor, boredFor                 int

	mood Mood
}

// NewEpoch starts epoch zero.
func NewEpoch(cfg Config, logger *slog.Logger) *Epoch {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Epoch{
		cfg:    cfg,
		logger: logger.With("component", "epoch"),
		now:    time.Now,
		mood:   MoodNormal,
	}
	e.started = e.now()
	return e
}

func (e *Epoch) TrackHop() {
	e.mu.Lock()
	e.hops++
	e.mu.Unlock()
}

func (e *Epoch) TrackAssoc() {
	e.mu.Lock()
	e.assocs++
	e.mu.Unlock()
}

func (e *Epoch) TrackDeauth() {
	e.mu.Lock()
	e.deauths++
	e.mu.Unlock()
}

func (e *Epoch) TrackMiss() {
	e.mu.Lock()
	e.missed++
	e.mu.Unlock()
}

func (e *Epoch) TrackHandshakes(n int) {
	e.mu.Lock()
	e.handshakes += n
	e.mu.Unlock()
}

func (e *Epoch) TrackSleep(d time.Duration) {
	e.mu.Lock()
	e.slept += d
	e.mu.Unlock()
}

// Observe records the number of visible targets. An empty sweep extends
// the blind streak.
func (e *Epoch) Observe(aps int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aps = aps
	if aps == 0 {
		e.blindFor++
	} else {
		e.blindFor = 0
	}
}

// SetNumber resumes counting from n, as after a restart.
func (e *Epoch) SetNumber(n int) {
	e.mu.Lock()
	e.epoch = n
	e.mu.Unlock()
}

func (e *Epoch) Number() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

func (e *Epoch) Missed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.missed
}

func (e *Epoch) InactiveFor() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inactiveFor
}

func (e *Epoch) DidDeauth() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deauths > 0
}

func (e *Epoch) DidAssociate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.assocs > 0
}

// AnyActivity reports whether anything was sent this epoch.
func (e *Epoch) AnyActivity() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.anyActivityLocked()
}

func (e *Epoch) anyActivityLocked() bool {
	return e.assocs > 0 || e.deauths > 0
}

// Stale reports whether more targets went missing this epoch than the
// recon results can be trusted for.
func (e *Epoch) Stale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.missed > e.cfg.MaxMissesForRecon
}

// Mood returns the mood set by the last Next.
func (e *Epoch) Mood() Mood {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mood
}

// Next closes the current epoch, updates the streaks and returns the
// finished epoch's record.
func (e *Epoch) Next() EpochData {
	e.mu.Lock()
	defer e.mu.Unlock()

	wasStale := e.missed > e.cfg.MaxMissesForRecon
	active := e.anyActivityLocked()

	if !active && e.handshakes == 0 {
		e.inactiveFor++
		e.activeFor = 0
	} else {
		e.activeFor++
		e.inactiveFor = 0
		e.sadFor, e.boredFor = 0, 0
	}

	switch {
	case e.cfg.SadNumEpochs > 0 && e.inactiveFor >= e.cfg.SadNumEpochs:
		e.boredFor = 0
		e.sadFor++
	case e.cfg.BoredNumEpochs > 0 && e.inactiveFor >= e.cfg.BoredNumEpochs:
		e.sadFor = 0
		e.boredFor++
	default:
		e.sadFor, e.boredFor = 0, 0
	}

	now := e.now()
	d := EpochData{
		Epoch:       e.epoch,
		Duration:    now.Sub(e.started),
		Hops:        e.hops,
		Assocs:      e.assocs,
		Deauths:     e.deauths,
		Handshakes:  e.handshakes,
		Missed:      e.missed,
		Slept:       e.slept,
		APs:         e.aps,
		InactiveFor: e.inactiveFor,
		ActiveFor:   e.activeFor,
		BlindFor:    e.blindFor,
		SadFor:      e.sadFor,
		BoredFor:    e.boredFor,
	}
	d.Reward = Reward(d)
	d.Mood = e.moodLocked(d, wasStale, active)
	e.mood = d.Mood

	e.logger.Info("epoch",
		"epoch", d.Epoch,
		"duration", d.Duration.Round(time.Second),
		"slept", d.Slept.Round(time.Second),
		"aps", d.APs,
		"hops", d.Hops,
		"missed", d.Missed,
		"assocs", d.Assocs,
		"deauths", d.Deauths,
		"handshakes", d.Handshakes,
		"reward", d.Reward,
		"mood", d.Mood,
	)

	if e.cfg.MaxBlindEpochs > 0 && e.blindFor >= e.cfg.MaxBlindEpochs {
		e.logger.Error("epochs without visible access points", "count", e.blindFor)
		e.blindFor = 0
	}

	e.epoch++
	e.started = now
	e.hops, e.assocs, e.deauths, e.handshakes, e.missed = 0, 0, 0, 0, 0
	e.slept, e.aps = 0, 0
	return d
}

func (e *Epoch) moodLocked(d EpochData, wasStale, active bool) Mood {
	switch {
	case wasStale:
		if e.cfg.MaxMissesForRecon > 0 && float64(d.Missed)/float64(e.cfg.MaxMissesForRecon) >= 2 {
			return MoodAngry
		}
		return MoodLonely
	case d.SadFor > 0:
		if float64(d.InactiveFor)/float64(e.cfg.SadNumEpochs) >= 2 {
			return MoodAngry
		}
		return MoodSad
	case d.BoredFor > 0:
		return MoodBored
	case d.Handshakes > 0:
		return MoodMotivated
	case e.cfg.ExcitedNumEpochs > 0 && d.ActiveFor >= e.cfg.ExcitedNumEpochs:
		return MoodExcited
	case active && d.Reward >= 5:
		return MoodMotivated
	}
	return MoodNormal
}

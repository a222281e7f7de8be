package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"pagershim/internal/models"
)

// DefaultClientTTL is how long a client stays visible after its last
// sighting.
const DefaultClientTTL = 5 * time.Minute

// Store is the shared view of access points, client associations and
// captured handshakes. The AP table and the association table have separate
// locks: the AP table is swapped every recon cycle while associations are
// updated per captured frame. All getters return copies.
type Store struct {
	apMu    sync.RWMutex
	aps     map[string]models.AccessPoint // keyed by lowercase MAC
	apOrder []string

	assocMu sync.RWMutex
	assoc   map[string]map[string]models.Client // AP MAC -> client MAC -> client

	hsMu       sync.Mutex
	handshakes map[string]models.HandshakeRecord
	hsOrder    []string
	prior      map[string]models.HandshakeRecord
	identities map[string]string
	knownFiles map[string]struct{}

	clientTTL time.Duration
	now       func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		aps:        make(map[string]models.AccessPoint),
		assoc:      make(map[string]map[string]models.Client),
		handshakes: make(map[string]models.HandshakeRecord),
		prior:      make(map[string]models.HandshakeRecord),
		identities: make(map[string]string),
		knownFiles: make(map[string]struct{}),
		clientTTL:  DefaultClientTTL,
		now:        time.Now,
	}
}

// SetClientTTL overrides the association read-time TTL.
func (s *Store) SetClientTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.assocMu.Lock()
	s.clientTTL = ttl
	s.assocMu.Unlock()
}

// SetClock replaces the store's time source.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Now returns the current time by the store's clock.
func (s *Store) Now() time.Time { return s.now() }

func key(mac string) string { return strings.ToLower(strings.TrimSpace(mac)) }

// ReplaceAccessPoints swaps in a fresh AP table. First-seen timestamps of
// APs that were already known are carried over.
func (s *Store) ReplaceAccessPoints(aps []models.AccessPoint) {
	now := s.now()
	next := make(map[string]models.AccessPoint, len(aps))
	order := make([]string, 0, len(aps))

	s.apMu.Lock()
	defer s.apMu.Unlock()

	for _, ap := range aps {
		k := key(ap.MAC)
		if k == "" {
			continue
		}
		ap = ap.Clone()
		ap.Clients = nil
		if prev, ok := s.aps[k]; ok && !prev.FirstSeen.IsZero() {
			ap.FirstSeen = prev.FirstSeen
		}
		if ap.FirstSeen.IsZero() {
			ap.FirstSeen = now
		}
		if ap.LastSeen.IsZero() {
			ap.LastSeen = now
		}
		if _, dup := next[k]; !dup {
			order = append(order, k)
		}
		next[k] = ap
	}
	s.aps = next
	s.apOrder = order
}

// ClearAccessPoints empties the AP table. Associations and handshakes are
// kept.
func (s *Store) ClearAccessPoints() {
	s.apMu.Lock()
	s.aps = make(map[string]models.AccessPoint)
	s.apOrder = nil
	s.apMu.Unlock()
}

// AccessPoint returns a copy of the AP with the given MAC.
func (s *Store) AccessPoint(mac string) (models.AccessPoint, bool) {
	s.apMu.RLock()
	defer s.apMu.RUnlock()
	ap, ok := s.aps[key(mac)]
	if !ok {
		return models.AccessPoint{}, false
	}
	return ap.Clone(), true
}

// IsKnownAP reports whether mac is in the current AP table.
func (s *Store) IsKnownAP(mac string) bool {
	s.apMu.RLock()
	defer s.apMu.RUnlock()
	_, ok := s.aps[key(mac)]
	return ok
}

// APCount returns the size of the AP table.
func (s *Store) APCount() int {
	s.apMu.RLock()
	defer s.apMu.RUnlock()
	return len(s.aps)
}

// RecordClient associates clientMAC with apMAC, refreshing last-seen on
// repeat sightings. It reports whether the association is new.
func (s *Store) RecordClient(apMAC, clientMAC, vendor string) bool {
	ak, ck := key(apMAC), key(clientMAC)
	if ak == "" || ck == "" {
		return false
	}
	now := s.now()

	s.assocMu.Lock()
	defer s.assocMu.Unlock()

	clients, ok := s.assoc[ak]
	if !ok {
		clients = make(map[string]models.Client)
		s.assoc[ak] = clients
	}
	if c, ok := clients[ck]; ok {
		c.LastSeen = now
		if c.Vendor == "" {
			c.Vendor = vendor
		}
		clients[ck] = c
		return false
	}
	clients[ck] = models.Client{
		MAC:       models.NormalizeMAC(clientMAC),
		Vendor:    vendor,
		FirstSeen: now,
		LastSeen:  now,
	}
	return true
}

// SetClientVendor fills in the vendor of a recorded client.
func (s *Store) SetClientVendor(apMAC, clientMAC, vendor string) {
	if vendor == "" {
		return
	}
	ak, ck := key(apMAC), key(clientMAC)

	s.assocMu.Lock()
	defer s.assocMu.Unlock()
	if c, ok := s.assoc[ak][ck]; ok {
		c.Vendor = vendor
		s.assoc[ak][ck] = c
	}
}

// Clients returns the clients of apMAC seen within the TTL, ordered by
// first sighting.
func (s *Store) Clients(apMAC string) []models.Client {
	now := s.now()

	s.assocMu.RLock()
	defer s.assocMu.RUnlock()
	return s.activeClientsLocked(key(apMAC), now)
}

func (s *Store) activeClientsLocked(ak string, now time.Time) []models.Client {
	clients := s.assoc[ak]
	out := make([]models.Client, 0, len(clients))
	for _, c := range clients {
		if now.Sub(c.LastSeen) < s.clientTTL {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].MAC < out[j].MAC
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	return out
}

// Snapshot returns a deep copy of the AP table in recon order, each AP
// carrying its live clients.
func (s *Store) Snapshot() []models.AccessPoint {
	s.apMu.RLock()
	aps := make([]models.AccessPoint, 0, len(s.apOrder))
	for _, k := range s.apOrder {
		aps = append(aps, s.aps[k].Clone())
	}
	s.apMu.RUnlock()

	now := s.now()
	s.assocMu.RLock()
	defer s.assocMu.RUnlock()
	for i := range aps {
		aps[i].Clients = s.activeClientsLocked(key(aps[i].MAC), now)
	}
	return aps
}

// LearnIdentity records the ESSID for an AP. Later writes win.
func (s *Store) LearnIdentity(apMAC, essid string) {
	if apMAC == "" || essid == "" {
		return
	}
	s.hsMu.Lock()
	s.identities[models.NormalizeMAC(apMAC)] = essid
	s.hsMu.Unlock()
}

// Identity returns the learned ESSID for an AP.
func (s *Store) Identity(apMAC string) (string, bool) {
	s.hsMu.Lock()
	defer s.hsMu.Unlock()
	essid, ok := s.identities[models.NormalizeMAC(apMAC)]
	return essid, ok
}

// RecordHandshake stores rec unless a record with the same key exists. It
// reports whether rec was stored.
func (s *Store) RecordHandshake(rec models.HandshakeRecord) bool {
	if rec.Key == "" {
		rec.Key = models.HandshakeKey(rec.Station, rec.AP)
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = s.now()
	}

	s.hsMu.Lock()
	defer s.hsMu.Unlock()
	if _, dup := s.handshakes[rec.Key]; dup {
		return false
	}
	s.handshakes[rec.Key] = rec
	s.hsOrder = append(s.hsOrder, rec.Key)
	return true
}

// Handshakes returns all records in capture order.
func (s *Store) Handshakes() []models.HandshakeRecord {
	s.hsMu.Lock()
	defer s.hsMu.Unlock()
	out := make([]models.HandshakeRecord, 0, len(s.hsOrder))
	for _, k := range s.hsOrder {
		out = append(out, s.handshakes[k])
	}
	return out
}

// LatestHandshake returns the most recently recorded handshake.
func (s *Store) LatestHandshake() (models.HandshakeRecord, bool) {
	s.hsMu.Lock()
	defer s.hsMu.Unlock()
	if len(s.hsOrder) == 0 {
		return models.HandshakeRecord{}, false
	}
	return s.handshakes[s.hsOrder[len(s.hsOrder)-1]], true
}

// RecordPrior stores a handshake found on disk from an earlier run. Prior
// records are kept apart from this run's and raise no events. It reports
// whether rec was new.
func (s *Store) RecordPrior(rec models.HandshakeRecord) bool {
	if rec.Key == "" {
		rec.Key = models.HandshakeKey(rec.Station, rec.AP)
	}
	s.hsMu.Lock()
	defer s.hsMu.Unlock()
	if _, dup := s.prior[rec.Key]; dup {
		return false
	}
	s.prior[rec.Key] = rec
	return true
}

// PriorHandshakes returns the records found on disk, sorted by key.
func (s *Store) PriorHandshakes() []models.HandshakeRecord {
	s.hsMu.Lock()
	defer s.hsMu.Unlock()
	out := make([]models.HandshakeRecord, 0, len(s.prior))
	for _, rec := range s.prior {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// HasHandshakeFor reports whether any record key, from this run or an
// earlier one, mentions addr.
func (s *Store) HasHandshakeFor(addr string) bool {
	needle := strings.ToLower(strings.TrimSpace(addr))
	if needle == "" {
		return false
	}
	s.hsMu.Lock()
	defer s.hsMu.Unlock()
	for _, set := range []map[string]models.HandshakeRecord{s.handshakes, s.prior} {
		for k := range set {
			if strings.Contains(strings.ToLower(k), needle) {
				return true
			}
		}
	}
	return false
}

// MarkFileKnown adds path to the known artifact set and reports whether it
// was new.
func (s *Store) MarkFileKnown(path string) bool {
	s.hsMu.Lock()
	defer s.hsMu.Unlock()
	if _, ok := s.knownFiles[path]; ok {
		return false
	}
	s.knownFiles[path] = struct{}{}
	return true
}

// KnownFileCount counts known artifact paths ending in ext.
func (s *Store) KnownFileCount(ext string) int {
	s.hsMu.Lock()
	defer s.hsMu.Unlock()
	n := 0
	for p := range s.knownFiles {
		if strings.HasSuffix(p, ext) {
			n++
		}
	}
	return n
}

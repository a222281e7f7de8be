// Package frames infers client to access point associations from captured
// 802.11 data frames.
package frames

import (
	"regexp"
	"strings"

	"pagershim/internal/models"
)

var (
	macPattern   = regexp.MustCompile(`[0-9a-fA-F]{2}(?::[0-9a-fA-F]{2}){5}`)
	bssidPattern = regexp.MustCompile(`(?i)BSSID[:\s]+([0-9a-f:]{17})`)
)

// Extract pulls every hardware address out of a tcpdump -e line, in order of
// appearance, plus the explicit BSSID if the line labels one.
func Extract(line string) models.FrameSummary {
	sum := models.FrameSummary{Raw: line}
	for _, m := range macPattern.FindAllString(line, -1) {
		sum.Addrs = append(sum.Addrs, strings.ToLower(m))
	}
	if m := bssidPattern.FindStringSubmatch(line); m != nil {
		sum.BSSID = strings.ToLower(m[1])
	}
	return sum
}

// Exclusion reports whether a lowercase address can never be a client.
type Exclusion func(mac string) bool

func IsBroadcast(mac string) bool { return strings.HasPrefix(mac, "ff:ff:ff") }

func IsMulticast(mac string) bool { return strings.HasPrefix(mac, "01:") }

func IsIPv6Multicast(mac string) bool { return strings.HasPrefix(mac, "33:33:") }

// IsDestinationArtifact catches "DA:" labels that tcpdump glues onto the
// next address, producing things like da:33:33:...
func IsDestinationArtifact(mac string) bool {
	if !strings.HasPrefix(mac, "da:") || len(mac) < 5 {
		return false
	}
	switch mac[3:5] {
	case "33", "01", "f0", "c4", "94", "38", "ff":
		return true
	}
	return false
}

func IsMalformed(mac string) bool {
	return strings.Contains(mac, ":00:00:00") || strings.HasSuffix(mac, ":00:00")
}

// DefaultExclusions is the filter set applied to candidate clients.
func DefaultExclusions() []Exclusion {
	return []Exclusion{IsBroadcast, IsMulticast, IsIPv6Multicast, IsDestinationArtifact, IsMalformed}
}

// Association pairs an AP with a client address, both lowercase.
type Association struct {
	AP     string
	Client string
}

// Pipeline turns frame summaries into associations.
type Pipeline struct {
	Exclusions []Exclusion
	// KnownAP reports whether an address is in the current AP table. Known
	// APs are never clients, and without an explicit BSSID the first known
	// AP in the frame becomes the association target.
	KnownAP func(mac string) bool
}

// NewPipeline returns a Pipeline with the default exclusions.
func NewPipeline(knownAP func(string) bool) *Pipeline {
	return &Pipeline{Exclusions: DefaultExclusions(), KnownAP: knownAP}
}

func (p *Pipeline) isKnownAP(mac string) bool {
	return p.KnownAP != nil && p.KnownAP(mac)
}

func (p *Pipeline) excluded(mac string) bool {
	for _, ex := range p.Exclusions {
		if ex(mac) {
			return true
		}
	}
	return p.isKnownAP(mac)
}

// Process returns the associations implied by sum. Frames carrying fewer
// than two addresses yield nothing.
func (p *Pipeline) Process(sum models.FrameSummary) []Association {
	if len(sum.Addrs) < 2 {
		return nil
	}

	ap := sum.BSSID
	if ap == "" {
		for _, mac := range sum.Addrs {
			if p.isKnownAP(mac) {
				ap = mac
				break
			}
		}
		if ap == "" {
			return nil
		}
	}

	var out []Association
	seen := make(map[string]bool, len(sum.Addrs))
	for _, mac := range sum.Addrs {
		if mac == ap || seen[mac] || p.excluded(mac) {
			continue
		}
		seen[mac] = true
		out = append(out, Association{AP: ap, Client: mac})
	}
	return out
}

package agent

import (
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"pagershim/internal/models"
)

// ListEntry names a network by SSID, BSSID or both.
type ListEntry struct {
	SSID  string `mapstructure:"ssid" yaml:"ssid"`
	BSSID string `mapstructure:"bssid" yaml:"bssid"`
}

// Targets selects which networks the loop attacks. A non-empty Blacklist
// switches to target-only mode: only listed networks are attacked and the
// Whitelist is ignored.
type Targets struct {
	Whitelist []ListEntry
	Blacklist []ListEntry
}

// WithSSIDs returns t with ssids appended to the whitelist, skipping names
// already present.
func (t Targets) WithSSIDs(ssids []string) Targets {
	out := Targets{
		Whitelist: slices.Clone(t.Whitelist),
		Blacklist: slices.Clone(t.Blacklist),
	}
	for _, ssid := range ssids {
		if ssid == "" {
			continue
		}
		dup := slices.ContainsFunc(out.Whitelist, func(e ListEntry) bool {
			return strings.EqualFold(e.SSID, ssid)
		})
		if !dup {
			out.Whitelist = append(out.Whitelist, ListEntry{SSID: ssid})
		}
	}
	return out
}

// MatchesList reports whether ap equals any entry by SSID or BSSID,
// ignoring case.
func MatchesList(ap models.AccessPoint, list []ListEntry) bool {
	for _, e := range list {
		if e.SSID != "" && ap.Hostname != "" && strings.EqualFold(e.SSID, ap.Hostname) {
			return true
		}
		if e.BSSID != "" && ap.MAC != "" && strings.EqualFold(e.BSSID, ap.MAC) {
			return true
		}
	}
	return false
}

// FilterTargets drops open networks, applies the lists and sorts the
// rest by channel.
func FilterTargets(aps []models.AccessPoint, t Targets) []models.AccessPoint {
	out := make([]models.AccessPoint, 0, len(aps))
	for _, ap := range aps {
		if ap.Encryption == "" || ap.Encryption == models.EncryptionOpen {
			continue
		}
		if len(t.Blacklist) > 0 {
			if MatchesList(ap, t.Blacklist) {
				out = append(out, ap)
			}
			continue
		}
		if MatchesList(ap, t.Whitelist) {
			continue
		}
		out = append(out, ap)
	}
	slices.SortStableFunc(out, func(a, b models.AccessPoint) int {
		return a.Channel - b.Channel
	})
	return out
}

// ChannelGroup is the set of targets on one channel.
type ChannelGroup struct {
	Channel int
	APs     []models.AccessPoint
}

// GroupByChannel buckets aps by channel, most populated first. Ties keep
// channel order. A non-empty channels list restricts the result to those
// channels.
func GroupByChannel(aps []models.AccessPoint, channels []int) []ChannelGroup {
	grouped := make(map[int][]models.AccessPoint)
	for _, ap := range aps {
		if len(channels) > 0 && !slices.Contains(channels, ap.Channel) {
			continue
		}
		grouped[ap.Channel] = append(grouped[ap.Channel], ap)
	}

	keys := maps.Keys(grouped)
	slices.Sort(keys)
	out := make([]ChannelGroup, 0, len(keys))
	for _, ch := range keys {
		out = append(out, ChannelGroup{Channel: ch, APs: grouped[ch]})
	}
	slices.SortStableFunc(out, func(a, b ChannelGroup) int {
		return len(b.APs) - len(a.APs)
	})
	return out
}

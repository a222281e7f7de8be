package pineap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"pagershim/internal/models"
)

type reconAP struct {
	MAC        string                     `json:"mac"`
	Signal     *float64                   `json:"signal"`
	Freq       float64                    `json:"freq"`
	Encryption string                     `json:"encryption"`
	Beacon     map[string]json.RawMessage `json:"beacon"`
}

type beacon struct {
	SSID    string  `json:"ssid"`
	Channel float64 `json:"channel"`
}

// ParseReconAPs decodes RECON APS output. The daemon prints either a bare
// array or {"aps": [...]}; SSID and channel live in a beacon object keyed
// by hash. The daemon does not report encryption, so APs without one are
// taken to be WPA2 and RSSI defaults to -100.
func ParseReconAPs(data []byte) ([]models.AccessPoint, error) {
	data = bytes.TrimSpace(data)

	var raw []reconAP
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode AP list: %w", err)
		}
	} else {
		var wrapped struct {
			APs []reconAP `json:"aps"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode AP list: %w", err)
		}
		raw = wrapped.APs
	}

	aps := make([]models.AccessPoint, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.MAC) == "" {
			continue
		}
		ap := models.AccessPoint{
			MAC:        models.NormalizeMAC(r.MAC),
			RSSI:       -100,
			Encryption: models.EncryptionWPA2,
		}
		if r.Signal != nil {
			ap.RSSI = int(*r.Signal)
		}
		if r.Encryption != "" {
			ap.Encryption = models.ParseEncryption(r.Encryption)
		}
		if b, ok := firstBeacon(r.Beacon); ok {
			ap.Hostname = b.SSID
			ap.Channel = int(b.Channel)
		}
		if r.Freq > 0 {
			ap.Frequency = int(r.Freq)
			if ap.Channel == 0 {
				ap.Channel = models.FrequencyToChannel(ap.Frequency)
			}
		}
		aps = append(aps, ap)
	}
	return aps, nil
}

func firstBeacon(m map[string]json.RawMessage) (beacon, bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if bytes.Equal(bytes.TrimSpace(m[k]), []byte("null")) {
			continue
		}
		var b beacon
		if err := json.Unmarshal(m[k], &b); err == nil {
			return b, true
		}
	}
	return beacon{}, false
}

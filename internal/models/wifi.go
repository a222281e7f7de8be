package models

import (
	"strings"
	"time"
)

// Encryption is the security class advertised by an access point.
type Encryption string

const (
	EncryptionOpen Encryption = "OPEN"
	EncryptionWEP  Encryption = "WEP"
	EncryptionWPA  Encryption = "WPA"
	EncryptionWPA2 Encryption = "WPA2"
	EncryptionWPA3 Encryption = "WPA3"
)

// ParseEncryption maps the strings reported by the recon daemon onto an
// Encryption class. Unknown non-empty values are treated as WPA2, which is
// what the daemon captures handshakes for.
func ParseEncryption(s string) Encryption {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case v == "" || v == "OPEN" || v == "NONE":
		return EncryptionOpen
	case strings.Contains(v, "WPA3") || strings.Contains(v, "SAE"):
		return EncryptionWPA3
	case strings.Contains(v, "WPA2") || strings.Contains(v, "PSK2") || strings.Contains(v, "RSN"):
		return EncryptionWPA2
	case strings.Contains(v, "WPA") || strings.Contains(v, "PSK"):
		return EncryptionWPA
	case strings.Contains(v, "WEP"):
		return EncryptionWEP
	default:
		return EncryptionWPA2
	}
}

// Client is a station observed talking to an access point.
type Client struct {
	MAC       string    `json:"mac"`
	Vendor    string    `json:"vendor"`
	FirstSeen time.Time `json:"-"`
	LastSeen  time.Time `json:"-"`
}

// AccessPoint holds what the recon daemon reports for one BSSID, plus the
// clients the frame tracker has associated with it.
type AccessPoint struct {
	MAC        string     `json:"mac"`
	Hostname   string     `json:"hostname"`
	Vendor     string     `json:"vendor"`
	Channel    int        `json:"channel"`
	Frequency  int        `json:"frequency,omitempty"`
	RSSI       int        `json:"rssi"`
	Encryption Encryption `json:"encryption"`
	Clients    []Client   `json:"clients"`
	FirstSeen  time.Time  `json:"first_seen"`
	LastSeen   time.Time  `json:"last_seen"`
}

// Clone returns a copy that shares no slices with ap.
func (ap AccessPoint) Clone() AccessPoint {
	out := ap
	out.Clients = make([]Client, len(ap.Clients))
	copy(out.Clients, ap.Clients)
	return out
}

// DisplayName returns the SSID, or the BSSID for hidden networks.
func (ap AccessPoint) DisplayName() string {
	if ap.Hostname != "" && ap.Hostname != "<hidden>" {
		return ap.Hostname
	}
	return ap.MAC
}

// HandshakeRecord is a captured credential artifact, keyed by station and AP.
type HandshakeRecord struct {
	Key        string    `json:"key"`
	File       string    `json:"file"`
	AP         string    `json:"ap"`
	Station    string    `json:"station"`
	APName     string    `json:"ap_name"`
	CapturedAt time.Time `json:"captured_at"`
}

// HandshakeKey builds the "<station> -> <ap>" key, using "client" when the
// station address is unknown.
func HandshakeKey(station, ap string) string {
	if station == "" {
		station = "client"
	}
	return station + " -> " + ap
}

// FrameSummary is the address content of one captured data frame.
type FrameSummary struct {
	Raw   string
	Addrs []string
	BSSID string
}

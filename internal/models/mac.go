package models

import (
	"encoding/hex"
	"strings"
)

// NormalizeMAC returns mac as uppercase colon-separated hex. Input may use
// '-' separators or none at all. Values that are not 6 bytes are returned
// uppercased and trimmed.
func NormalizeMAC(mac string) string {
	raw := strings.NewReplacer(":", "", "-", "", ".", "").Replace(strings.TrimSpace(mac))
	if len(raw) == 12 {
		if _, err := hex.DecodeString(raw); err == nil {
			return FormatHexMAC(raw)
		}
	}
	return strings.ToUpper(strings.TrimSpace(mac))
}

// FormatHexMAC turns a 12 digit hex string into AA:BB:CC:DD:EE:FF. It
// returns "" when raw is not 12 hex digits.
func FormatHexMAC(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) != 12 {
		return ""
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return ""
	}
	raw = strings.ToUpper(raw)
	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, raw[i:i+2])
	}
	return strings.Join(parts, ":")
}

// SameMAC compares two addresses ignoring case and separators.
func SameMAC(a, b string) bool {
	return NormalizeMAC(a) == NormalizeMAC(b)
}

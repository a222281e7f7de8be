// Package handshakes watches the daemon's artifact directory for hashcat
// 22000 files and turns each new one into a handshake record and event.
package handshakes

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"pagershim/internal/models"
)

// Extension is the suffix of the artifacts we track.
const Extension = ".22000"

// ErrNoRecord means no line of the file could be parsed.
var ErrNoRecord = errors.New("no parsable WPA record")

// Artifact is the identity carried by one 22000 line.
type Artifact struct {
	AP      string
	Station string
	ESSID   string
}

// ParseLine parses WPA*<type>*<mic>*<ap>*<sta>*<essid_hex>*... Only the AP
// address is required. Invalid UTF-8 in the ESSID is dropped.
func ParseLine(line string) (Artifact, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "WPA*") {
		return Artifact{}, false
	}
	parts := strings.Split(line, "*")
	if len(parts) < 6 {
		return Artifact{}, false
	}
	ap := models.FormatHexMAC(parts[3])
	if ap == "" {
		return Artifact{}, false
	}
	raw, err := hex.DecodeString(parts[5])
	if err != nil {
		return Artifact{}, false
	}
	return Artifact{
		AP:      ap,
		Station: models.FormatHexMAC(parts[4]),
		ESSID:   strings.ToValidUTF8(string(raw), ""),
	}, true
}

// ParseFile returns the first line of path that parses, preferring one with
// a non-empty ESSID.
func ParseFile(path string) (Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	var first Artifact
	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		a, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		if a.ESSID != "" {
			return a, nil
		}
		if !found {
			first, found = a, true
		}
	}
	if err := scanner.Err(); err != nil {
		return Artifact{}, fmt.Errorf("failed to read artifact: %w", err)
	}
	if !found {
		return Artifact{}, ErrNoRecord
	}
	return first, nil
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct constraints and the personality timings.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("configuration is nil")
	}

	var msgs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validation error: %w", err)
		}
		for _, e := range verrs {
			msgs = append(msgs, formatValidationError(e))
		}
	}

	p := c.Personality
	positive := []struct {
		name  string
		value float64
	}{
		{"personality.recon_time", float64(p.ReconTime)},
		{"personality.hop_recon_time", float64(p.HopReconTime)},
		{"personality.min_recon_time", float64(p.MinReconTime)},
		{"personality.recon_inactive_multiplier", float64(p.ReconInactiveMultiplier)},
	}
	for _, f := range positive {
		if f.value <= 0 {
			msgs = append(msgs, fmt.Sprintf("%s must be positive (got: %v)", f.name, f.value))
		}
	}
	if p.ThrottleA < 0 || p.ThrottleD < 0 {
		msgs = append(msgs, "personality throttles must not be negative")
	}
	if p.MaxInteractions < 1 {
		msgs = append(msgs, fmt.Sprintf("personality.max_interactions must be at least 1 (got: %d)", p.MaxInteractions))
	}
	for _, ch := range p.Channels {
		if ch <= 0 {
			msgs = append(msgs, fmt.Sprintf("personality.channels contains invalid channel %d", ch))
		}
	}

	if len(msgs) > 0 {
		return fmt.Errorf("\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}

func formatValidationError(e validator.FieldError) string {
	path := formatFieldPath(e.Namespace())
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", path)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", path, e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", path, e.Param(), e.Value())
	default:
		return fmt.Sprintf("%s failed validation '%s' (got: %v)", path, e.Tag(), e.Value())
	}
}

// formatFieldPath turns "Config.Capture.ReconInterval" into
// "capture.recon_interval".
func formatFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) <= 1 {
		return namespace
	}
	out := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		out = append(out, camelToSnake(p))
	}
	return strings.Join(out, ".")
}

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
			b.WriteRune('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

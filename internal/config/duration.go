package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationField parses an optional Go duration string from the config file.
// Empty and zero values fall back to def, so a partially filled config keeps
// working defaults. Negative values are rejected: a hot reload must never
// hand a component an interval that would spin or stall it.
func DurationField(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	case d == 0:
		return def, nil
	}
	return d, nil
}

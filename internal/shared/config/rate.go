package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate is a request budget of Limit requests per Window.
type Rate struct {
	Limit  int
	Window time.Duration
}

var windowUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseRate parses rates such as "100/minute", "100 per minute",
// "10/5 minutes" or "10/30s".
func ParseRate(in string) (Rate, error) {
	s := strings.ToLower(strings.TrimSpace(in))

	var left, right string
	if i := strings.Index(s, "/"); i >= 0 {
		left, right = s[:i], s[i+1:]
	} else if i := strings.Index(s, " per "); i >= 0 {
		left, right = s[:i], s[i+len(" per "):]
	} else {
		return Rate{}, fmt.Errorf("invalid rate %q: expected N/window", in)
	}

	limit, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil || limit <= 0 {
		return Rate{}, fmt.Errorf("invalid rate %q: count must be a positive integer", in)
	}

	window, err := parseWindow(strings.TrimSpace(right))
	if err != nil {
		return Rate{}, fmt.Errorf("invalid rate %q: %w", in, err)
	}

	return Rate{Limit: limit, Window: window}, nil
}

func parseWindow(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("window must be positive")
		}
		return d, nil
	}

	count := 1
	unit := s
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
	case 2:
		n, err := strconv.Atoi(fields[0])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("window multiplier must be a positive integer")
		}
		count, unit = n, fields[1]
	default:
		return 0, fmt.Errorf("unrecognised window %q", s)
	}

	d, ok := windowUnits[strings.TrimSuffix(unit, "s")]
	if !ok {
		return 0, fmt.Errorf("unrecognised window unit %q", unit)
	}
	return time.Duration(count) * d, nil
}

// Decode implements envconfig.Decoder.
func (r *Rate) Decode(value string) error {
	parsed, err := ParseRate(value)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// String renders the rate the way it is reported to throttled clients,
// e.g. "100 per 1 minute".
func (r Rate) String() string {
	for _, name := range []string{"day", "hour", "minute", "second"} {
		unit := windowUnits[name]
		if r.Window >= unit && r.Window%unit == 0 {
			return fmt.Sprintf("%d per %d %s", r.Limit, r.Window/unit, name)
		}
	}
	return fmt.Sprintf("%d per %s", r.Limit, r.Window)
}

package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration with a human wire format: "10s", "5m", "1h",
// "3d", "2w", "1y". Days, weeks and years are fixed-width (24h, 7d, 365d),
// which is what retention horizons want.
type Duration time.Duration

const (
	day  = 24 * time.Hour
	week = 7 * day
	year = 365 * day
)

// ParseDuration parses the wire format. Plain time.ParseDuration strings are
// accepted as-is; a trailing d, w or y unit is handled here.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return Duration(d), nil
	}
	unit := s[len(s)-1]
	n, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	switch unit {
	case 'd':
		return Duration(time.Duration(n * float64(day))), nil
	case 'w':
		return Duration(time.Duration(n * float64(week))), nil
	case 'y':
		return Duration(time.Duration(n * float64(year))), nil
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Seconds returns the duration as whole seconds for storage.
func (d Duration) Seconds() int64 { return int64(time.Duration(d) / time.Second) }

// FromSeconds rebuilds a Duration from its stored representation.
func FromSeconds(s int64) Duration { return Duration(time.Duration(s) * time.Second) }

func (d Duration) String() string {
	v := time.Duration(d)
	switch {
	case v >= year && v%year == 0:
		return fmt.Sprintf("%dy", v/year)
	case v >= week && v%week == 0:
		return fmt.Sprintf("%dw", v/week)
	case v >= day && v%day == 0:
		return fmt.Sprintf("%dd", v/day)
	}
	return v.String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Date layouts for the query string contract.
const (
	DateTimeLayout = "2006-01-02T15:04:05"
	DateLayout     = "2006-01-02"
)

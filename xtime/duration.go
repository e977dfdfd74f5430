// Package xtime extends the stdlib time package with support for
// human-friendly durations using day and larger units.
package xtime

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var durRx = regexp.MustCompile(`(\d*\.\d+|\d+)[^\d]*`)

var unitHours = map[string]time.Duration{
	"d": 24,
	"D": 24,
	"w": 7 * 24,
	"W": 7 * 24,
	"M": 30 * 24,
	"y": 365 * 24,
	"Y": 365 * 24,
}

// ParseDuration parses a duration string. In addition to the units supported
// by time.ParseDuration, it accepts "d"/"D" (days), "w"/"W" (weeks),
// "M" (months) and "y"/"Y" (years). Examples: "10d", "-1.5w", "3Y4M5d".
func ParseDuration(s string) (time.Duration, error) {
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}

	var sum time.Duration
	for _, str := range durRx.FindAllString(s, -1) {
		var mult time.Duration = 1
		for unit, hours := range unitHours {
			if strings.Contains(str, unit) {
				str = strings.ReplaceAll(str, unit, "h")
				mult = hours
				break
			}
		}

		dur, err := time.ParseDuration(str)
		if err != nil {
			return 0, err //nolint:wrapcheck // This is wrapped by the caller.
		}

		sum += dur * mult
	}

	if neg {
		sum = -sum
	}

	return sum, nil
}

// FormatDuration formats a duration into a string with friendly units, e.g.
// "10d", "-1w2d" or "3h25m". The round parameter specifies the smallest unit
// to include.
func FormatDuration(d time.Duration, round time.Duration) string {
	if round > 0 {
		d = d.Round(round)
	}
	if d == 0 {
		return "0s"
	}

	neg := d < 0
	if neg {
		d = -d
	}

	hours := int64(d / time.Hour)
	weeks := hours / (7 * 24)
	hours %= 7 * 24
	days := hours / 24
	hours %= 24
	minutes := int64(d%time.Hour) / int64(time.Minute)
	seconds := int64(d%time.Minute) / int64(time.Second)

	var parts []string
	if weeks > 0 {
		parts = append(parts, fmt.Sprintf("%dw", weeks))
	}
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 && round <= time.Hour {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 && round <= time.Minute {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 && round <= time.Second {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	if len(parts) == 0 {
		return "0s"
	}

	result := strings.Join(parts, "")
	if neg {
		result = "-" + result
	}

	return result
}

package tle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EpochTime converts the verbatim epoch token to a UTC time.
func (e ElementSet) EpochTime() (time.Time, error) {
	return ParseEpoch(e.Epoch)
}

// ParseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func ParseEpoch(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	yearStr := s[:2]
	dayStr := s[2:]

	year, err := strconv.Atoi(yearStr)
	if err != nil || year < 0 {
		return time.Time{}, fmt.Errorf("invalid epoch year %q", yearStr)
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", dayStr, err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %q out of range", dayStr)
	}

	// dayOfYear is 1-based: day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}

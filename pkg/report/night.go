package report

import (
	"fmt"
	"strconv"
	"time"
)

const nightLayout = "20060102"

// ParseNight parses a night in YYYYMMDD form.
func ParseNight(s string) (int64, error) {
	t, err := time.Parse(nightLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid night %q, expected YYYYMMDD: %w", s, err)
	}

	return nightOf(t), nil
}

// FormatNight formats a night as YYYYMMDD.
func FormatNight(night int64) string {
	return strconv.FormatInt(night, 10)
}

// NightDate returns the calendar date the night starts on.
func NightDate(night int64) (time.Time, error) {
	return time.Parse(nightLayout, FormatNight(night))
}

// DefaultNight returns the night offsetDays before now, the most recent
// night whose QLA is expected to be complete.
func DefaultNight(now time.Time, offsetDays int) int64 {
	return nightOf(now.UTC().AddDate(0, 0, -offsetDays))
}

func nightOf(t time.Time) int64 {
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

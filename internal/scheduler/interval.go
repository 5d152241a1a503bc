package scheduler

import (
	"strconv"
	"strings"
	"time"
)

var intervalUnits = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseIntervalDuration turns a compact interval spec such as "5m", "1h",
// "1d" or "2w" into a duration. The second return value is false when the
// spec is empty, names an unknown unit, or its count is not a positive
// integer.
func ParseIntervalDuration(spec string) (time.Duration, bool) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	if len(spec) < 2 {
		return 0, false
	}
	unit, ok := intervalUnits[spec[len(spec)-1]]
	if !ok {
		return 0, false
	}
	count, err := strconv.Atoi(strings.TrimSpace(spec[:len(spec)-1]))
	if err != nil || count <= 0 {
		return 0, false
	}
	return time.Duration(count) * unit, true
}

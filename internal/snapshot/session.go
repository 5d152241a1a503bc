package snapshot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SessionConfig defines the exchange-local session boundaries. The mapping is
// total: every instant of the day resolves to exactly one phase.
type SessionConfig struct {
	Timezone        string `mapstructure:"timezone"`
	PreMarketOpen   string `mapstructure:"premarket_open"`
	RegularOpen     string `mapstructure:"regular_open"`
	RegularClose    string `mapstructure:"regular_close"`
	AfterHoursClose string `mapstructure:"afterhours_close"`
}

// DefaultSessionConfig covers the US equity session in America/New_York.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Timezone:        "America/New_York",
		PreMarketOpen:   "04:30",
		RegularOpen:     "09:30",
		RegularClose:    "16:00",
		AfterHoursClose: "20:00",
	}
}

// Location resolves the configured exchange timezone.
func (c SessionConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz = "America/New_York"
	}
	return time.LoadLocation(tz)
}

// PhaseAt maps an exchange-local instant to its session phase.
func (c SessionConfig) PhaseAt(local time.Time) Phase {
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return PhaseClosed
	}
	minute := local.Hour()*60 + local.Minute()

	preOpen := minuteOfDay(c.PreMarketOpen, 4*60+30)
	regOpen := minuteOfDay(c.RegularOpen, 9*60+30)
	regClose := minuteOfDay(c.RegularClose, 16*60)
	ahClose := minuteOfDay(c.AfterHoursClose, 20*60)

	switch {
	case minute >= preOpen && minute < regOpen:
		return PhasePreMarket
	case minute >= regOpen && minute < regClose:
		return PhaseRegular
	case minute >= regClose && minute < ahClose:
		return PhaseAfterHours
	default:
		return PhaseClosed
	}
}

// Validate rejects boundary strings that do not parse or are out of order.
func (c SessionConfig) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("session timezone: %w", err)
	}
	names := []string{"premarket_open", "regular_open", "regular_close", "afterhours_close"}
	values := []string{c.PreMarketOpen, c.RegularOpen, c.RegularClose, c.AfterHoursClose}
	prev := -1
	for i, v := range values {
		m, ok := parseMinuteOfDay(v)
		if !ok {
			return fmt.Errorf("session %s: invalid time %q", names[i], v)
		}
		if m <= prev {
			return fmt.Errorf("session %s: boundaries must be strictly increasing", names[i])
		}
		prev = m
	}
	return nil
}

func minuteOfDay(v string, fallback int) int {
	if m, ok := parseMinuteOfDay(v); ok {
		return m
	}
	return fallback
}

func parseMinuteOfDay(v string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

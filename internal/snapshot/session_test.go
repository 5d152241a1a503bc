package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseAt(t *testing.T) {
	cfg := DefaultSessionConfig()
	loc, err := cfg.Location()
	require.NoError(t, err)

	// Monday 2025-06-02, exchange-local times.
	at := func(hour, min int) time.Time {
		return time.Date(2025, 6, 2, hour, min, 0, 0, loc)
	}

	tests := []struct {
		name  string
		local time.Time
		want  Phase
	}{
		{"overnight", at(3, 0), PhaseClosed},
		{"premarket open boundary", at(4, 30), PhasePreMarket},
		{"late premarket", at(9, 29), PhasePreMarket},
		{"regular open boundary", at(9, 30), PhaseRegular},
		{"midday", at(12, 0), PhaseRegular},
		{"last regular minute", at(15, 59), PhaseRegular},
		{"close boundary", at(16, 0), PhaseAfterHours},
		{"after hours", at(18, 0), PhaseAfterHours},
		{"afterhours close boundary", at(20, 0), PhaseClosed},
		{"saturday midday", time.Date(2025, 6, 7, 12, 0, 0, 0, loc), PhaseClosed},
		{"sunday midday", time.Date(2025, 6, 8, 12, 0, 0, 0, loc), PhaseClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.PhaseAt(tt.local))
		})
	}
}

func TestSessionValidate(t *testing.T) {
	assert.NoError(t, DefaultSessionConfig().Validate())

	t.Run("bad timezone", func(t *testing.T) {
		cfg := DefaultSessionConfig()
		cfg.Timezone = "Mars/Olympus"
		assert.Error(t, cfg.Validate())
	})
	t.Run("unparseable boundary", func(t *testing.T) {
		cfg := DefaultSessionConfig()
		cfg.RegularOpen = "25:99"
		assert.Error(t, cfg.Validate())
	})
	t.Run("out of order", func(t *testing.T) {
		cfg := DefaultSessionConfig()
		cfg.RegularClose = "09:00"
		assert.Error(t, cfg.Validate())
	})
}
